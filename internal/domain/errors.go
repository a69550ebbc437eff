package domain

import "errors"

var (
	// ErrScoreOutOfRange is returned when an answer score falls outside [0,1].
	// This signals a programming error upstream, never a runtime condition.
	ErrScoreOutOfRange = errors.New("score must be between 0 and 1")
	// ErrDatasetNotFound indicates the question dataset could not be loaded.
	ErrDatasetNotFound = errors.New("question dataset not found")
	// ErrRecordNotFound indicates the remote store has no record for an id.
	ErrRecordNotFound = errors.New("answer history record not found")
	// ErrNoActiveQuestion indicates an answer arrived with no question awaiting one.
	ErrNoActiveQuestion = errors.New("no question awaiting an answer")
)
