package app

import (
	"context"

	"mapquiz-service/internal/domain"
)

// SessionRepository abstracts how review sessions are stored (in-memory,
// Redis-backed liveness, etc). Sessions are keyed by the user's progress id.
type SessionRepository interface {
	Get(userID string) (*ReviewSession, bool)
	Put(userID string, session *ReviewSession)
	Delete(userID string)
}

// DatasetRepository loads question feature collections (from cache/backing store).
type DatasetRepository interface {
	GetDataset(ctx context.Context, datasetID string) (domain.QuestionFeatureCollection, error)
}

// HistoryStore is the answer-history adapter: it resolves progress ids
// against the remote record store, loads history, and persists answers
// fire-and-forget with an offline outbox.
type HistoryStore interface {
	// Open resolves the supplied progress id (creating a fresh record when
	// the id is empty or unknown) and returns the id plus its history.
	Open(ctx context.Context, suppliedID string) (string, []domain.AnswerHistoryItem, error)
	// SaveAnswer persists one answer for the user. It must not block on the
	// network and must never fail the caller.
	SaveAnswer(userID string, item domain.AnswerHistoryItem)
	// SetOnline signals a connectivity change; coming back online replays
	// any queued writes.
	SetOnline(online bool)
}

// ReviewService contains the review use cases: connect a user to a session
// over a dataset, and tear sessions down.
type ReviewService struct {
	sessions SessionRepository
	datasets DatasetRepository
	history  HistoryStore
}

func NewReviewService(sessions SessionRepository, datasets DatasetRepository, history HistoryStore) *ReviewService {
	return &ReviewService{sessions: sessions, datasets: datasets, history: history}
}

// Connect resolves the user's progress id, reuses their in-flight session if
// one exists, or builds a new one from the dataset and their history.
func (s *ReviewService) Connect(ctx context.Context, datasetID, progressID string) (*ReviewSession, error) {
	userID, history, err := s.history.Open(ctx, progressID)
	if err != nil {
		return nil, err
	}

	if session, ok := s.sessions.Get(userID); ok {
		return session, nil
	}

	collection, err := s.datasets.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	writer := HistoryWriterFunc(func(item domain.AnswerHistoryItem) {
		s.history.SaveAnswer(userID, item)
	})

	session := NewReviewSession(userID, collection, history, writer)
	s.sessions.Put(userID, session)
	return session, nil
}

// Disconnect drops the session for a user. History is already persisted, so
// the next Connect rebuilds from the record store.
func (s *ReviewService) Disconnect(userID string) {
	s.sessions.Delete(userID)
}

// SetOnline forwards a connectivity-change signal to the history store.
func (s *ReviewService) SetOnline(online bool) {
	s.history.SetOnline(online)
}
