package srs

import (
	"errors"
	"testing"

	"mapquiz-service/internal/domain"
)

const now = int64(1000)

func millisPtr(v int64) *int64 { return &v }

func TestIntervalAsWords(t *testing.T) {
	tests := []struct {
		millis int64
		want   string
	}{
		{0, "1 minute"},
		{1000 * 60, "1 minute"},
		{1000 * 60 * 3, "3 minutes"},
		{1000 * 60 * 59, "1 hour"},
		{1000 * 60 * 60 * 7, "7 hours"},
		{1000 * 60 * 60 * 23, "1 day"},
		{1000 * 60 * 60 * 24 * 2, "2 days"},
		{1000 * 60 * 60 * 24 * 8, "a week"},
		{1000 * 60 * 60 * 24 * 15, "a week and a bit"},
		{1000 * 60 * 60 * 24 * 21, "3 weeks"},
		{1000 * 60 * 60 * 24 * 31 * 3, "3 months"},
		{1000 * 60 * 60 * 24 * 31 * 12, "a year"},
		{1000 * 60 * 60 * 24 * 365 * 1000, "1000 years"},
	}

	for _, tt := range tests {
		if got := IntervalAsWords(tt.millis); got != tt.want {
			t.Errorf("IntervalAsWords(%d) = %q, want %q", tt.millis, got, tt.want)
		}
	}
}

func TestDateTimeAsWords(t *testing.T) {
	if got := DateTimeAsWords(now+MinsToMillis(2), now); got != "soon" {
		t.Errorf("inside the lookahead window should be %q, got %q", "soon", got)
	}
	if got := DateTimeAsWords(now+DaysToMillis(2), now); got != "2 days" {
		t.Errorf("expected %q, got %q", "2 days", got)
	}
}

func TestNextAskDateNewQuestionAnsweredRight(t *testing.T) {
	got, err := NextAskDate(domain.QuestionFeature{}, 1, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Should be now + 20 minutes.
	if want := now + 20*60*1000; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestNextAskDateNewQuestionAnsweredWrong(t *testing.T) {
	got, err := NextAskDate(domain.QuestionFeature{}, 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Should be now + 1 minute.
	if want := now + 60*1000; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestNextAskDateRepeatQuestion(t *testing.T) {
	question := domain.QuestionFeature{
		LastAskDate: millisPtr(now - DaysToMillis(2)),
	}

	tests := []struct {
		name  string
		score float64
		want  int64
	}{
		{"right doubles the interval", 1, now + DaysToMillis(4)},
		{"close keeps the interval", 0.5, now + DaysToMillis(2)},
		{"wrong collapses the interval", 0, now + DaysToMillis(0.2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextAskDate(question, tt.score, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNextAskDateUsesOstensibleAnswerDate(t *testing.T) {
	// Reviewed a day early: the question was due at now + 1 day. The next
	// interval anchors on the due date, so answering early doesn't shrink it.
	question := domain.QuestionFeature{
		LastAskDate: millisPtr(now - DaysToMillis(2)),
		NextAskDate: millisPtr(now + DaysToMillis(1)),
	}

	got, err := NextAskDate(question, 1, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Ostensible answer date is now+1d, prior interval 3d, doubled to 6d.
	if want := now + DaysToMillis(1) + DaysToMillis(6); got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestNextAskDateRejectsOutOfRangeScores(t *testing.T) {
	for _, score := range []float64{-0.01, 1.01, 2, -5} {
		if _, err := NextAskDate(domain.QuestionFeature{}, score, now); !errors.Is(err, domain.ErrScoreOutOfRange) {
			t.Errorf("score %v: expected ErrScoreOutOfRange, got %v", score, err)
		}
	}
}

func TestNextAskDateMonotonicInScore(t *testing.T) {
	questions := []domain.QuestionFeature{
		{},
		{LastAskDate: millisPtr(now - DaysToMillis(2))},
		{LastAskDate: millisPtr(now - DaysToMillis(30)), NextAskDate: millisPtr(now - MinsToMillis(1))},
	}

	for qi, question := range questions {
		prev := int64(0)
		for i := 0; i <= 20; i++ {
			score := float64(i) / 20
			got, err := NextAskDate(question, score, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got < prev {
				t.Fatalf("question %d: next ask date decreased from %d to %d at score %v", qi, prev, got, score)
			}
			prev = got
		}
	}
}

func TestAnswerScore(t *testing.T) {
	center := domain.LngLat{151.1, -33.8}
	correct := domain.QuestionFeature{
		Name:   "Rhodes",
		Center: center,
		Geometry: domain.Geometry{Type: "Polygon", Rings: [][][]float64{{
			{151.09, -33.81}, {151.11, -33.81}, {151.11, -33.79}, {151.09, -33.79},
		}}},
	}
	neighbor := domain.QuestionFeature{
		Name:   "Wentworth Point",
		Center: domain.LngLat{151.12, -33.8},
		Geometry: domain.Geometry{Type: "Polygon", Rings: [][][]float64{{
			{151.11, -33.81}, {151.13, -33.81}, {151.11, -33.79},
		}}},
	}
	farAway := domain.QuestionFeature{
		Name:   "Berowra",
		Center: domain.LngLat{153.0, -31.0},
		Geometry: domain.Geometry{Type: "Polygon", Rings: [][][]float64{{
			{152.99, -31.01}, {153.01, -31.01}, {153.01, -30.99},
		}}},
	}

	if got := AnswerScore(neighbor, correct, neighbor.Center); got != ScoreForNeighbor {
		t.Errorf("neighbor should score the fixed bonus, got %v", got)
	}
	if got := AnswerScore(farAway, correct, farAway.Center); got != 0 {
		t.Errorf("a guess beyond the close radius should score 0, got %v", got)
	}
	if got := AnswerScore(farAway, correct, center); got != 1 {
		t.Errorf("a tap on the exact center should score 1, got %v", got)
	}

	// A near miss scores between 0 and 1, decaying with distance.
	near := AnswerScore(farAway, correct, domain.LngLat{151.1, -33.81})
	farther := AnswerScore(farAway, correct, domain.LngLat{151.1, -33.83})
	if near <= 0 || near >= 1 {
		t.Errorf("near miss should land strictly between 0 and 1, got %v", near)
	}
	if farther >= near {
		t.Errorf("score should decay with distance: near %v, farther %v", near, farther)
	}
}
