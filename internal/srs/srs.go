// Package srs holds the spaced-repetition interval model: pure functions that
// turn an answer score and prior history into the next review date, and that
// render intervals as human words. All date/times are epoch milliseconds and
// "now" is always passed in explicitly so every function is deterministic.
package srs

import (
	"fmt"
	"math"

	"mapquiz-service/internal/domain"
	"mapquiz-service/internal/geo"
)

// Scheduling constants. Tuned by use, not science.
const (
	// ScoreForNeighbor is the partial credit for tapping a region that
	// shares a boundary point with the correct one.
	ScoreForNeighbor = 0.8
	// CloseMeters is the radius inside which a miss still earns some score.
	CloseMeters = 4000
	// FirstTimeMins is how long before the first review after a perfect
	// first answer.
	FirstTimeMins = 20
	// MinMins is the shortest possible interval.
	MinMins = 1
	// Multiplier scales the prior interval on a perfect answer.
	Multiplier = 2
	// MultiplierFloor keeps a wrong answer from collapsing the interval all
	// the way to the minimum in one step.
	MultiplierFloor = 0.1
	// LookaheadWindowMins is the window inside which a scheduled question
	// still counts as "due now".
	LookaheadWindowMins = 5
	// SessionSize is how many new questions to introduce at once.
	SessionSize = 10
)

// MinsToMillis converts minutes to milliseconds.
func MinsToMillis(mins float64) int64 {
	return int64(math.Round(mins * 60 * 1000))
}

// DaysToMillis converts days to milliseconds.
func DaysToMillis(days float64) int64 {
	return int64(math.Round(days * 24 * 60 * 60 * 1000))
}

// ReviewCutoff returns the lookahead cutoff: anything scheduled before it is
// still considered due now for session-queue membership.
func ReviewCutoff(now int64) int64 {
	return now + MinsToMillis(LookaheadWindowMins)
}

// NextAskDate returns the next date/time at which a question should be asked,
// based on the last time it was asked and the score it was given this time.
//
// The calculation is anchored on the "ostensible answer date": the later of
// now and the question's previously scheduled due date. Answering a few
// minutes early therefore doesn't shrink the next interval; the review is
// treated as happening when it was supposed to.
func NextAskDate(question domain.QuestionFeature, score float64, now int64) (int64, error) {
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("%w: got %v", domain.ErrScoreOutOfRange, score)
	}

	ostensibleAnswerDate := now
	if question.NextAskDate != nil && *question.NextAskDate > ostensibleAnswerDate {
		ostensibleAnswerDate = *question.NextAskDate
	}

	var lastInterval float64
	if question.LastAskDate != nil {
		lastInterval = float64(ostensibleAnswerDate - *question.LastAskDate)
	} else {
		// For new questions: sized so a perfect first answer lands the
		// first review FirstTimeMins out.
		lastInterval = float64(MinsToMillis(FirstTimeMins)) / Multiplier
	}

	multiplier := math.Max(MultiplierFloor, score*Multiplier)

	nextInterval := math.Max(
		float64(MinsToMillis(MinMins)),
		lastInterval*multiplier,
	)

	return ostensibleAnswerDate + int64(math.Round(nextInterval)), nil
}

// AnswerScore converts the relative location of the tapped region and the
// correct one into a score between 0 and 1: a fixed bonus for neighbors, else
// linear falloff with the distance from the correct region's center.
func AnswerScore(clicked, correct domain.QuestionFeature, clickCoords domain.LngLat) float64 {
	if geo.AreNeighbors(clicked.Geometry, correct.Geometry) {
		return ScoreForNeighbor
	}

	answerDistance := geo.DistanceBetween(correct.Center, clickCoords)

	return (CloseMeters - math.Min(answerDistance, CloseMeters)) / CloseMeters
}

// IntervalAsWords converts a duration in milliseconds into a readable string
// like "3 minutes" or "a week and a bit".
func IntervalAsWords(millis int64) string {
	minutes := int64(math.Round(float64(millis) / 1000 / 60))
	if minutes < 2 {
		return "1 minute"
	}
	if minutes < 50 {
		return fmt.Sprintf("%d minutes", minutes)
	}

	hours := int64(math.Round(float64(minutes) / 60))
	if hours < 2 {
		return "1 hour"
	}
	if hours < 20 {
		return fmt.Sprintf("%d hours", hours)
	}

	days := int64(math.Round(float64(hours) / 24))
	if days < 2 {
		return "1 day"
	}
	if days < 6 {
		return fmt.Sprintf("%d days", days)
	}

	weeks := int64(math.Round(float64(days) / 7))
	if weeks < 2 {
		return "a week"
	}
	if weeks < 3 {
		return "a week and a bit"
	}
	if weeks < 4 {
		return fmt.Sprintf("%d weeks", weeks)
	}

	months := int64(math.Round(float64(days) / 30))
	if months < 2 {
		return "a month"
	}
	if months < 11 {
		return fmt.Sprintf("%d months", months)
	}

	years := int64(math.Round(float64(days) / 365))
	if years < 2 {
		return "a year"
	}

	return fmt.Sprintf("%d years", years)
}

// DateTimeAsWords renders an absolute date/time relative to now. Anything
// inside the lookahead cutoff is just "soon".
func DateTimeAsWords(dateTime, now int64) string {
	if dateTime < ReviewCutoff(now) {
		return "soon"
	}
	return IntervalAsWords(dateTime - now)
}
