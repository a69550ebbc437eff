package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"mapquiz-service/internal/domain"
)

// RecordStore is an in-process stand-in for the remote answer-history record
// store. Used when no cab URL is configured and in tests; records are lost on
// restart.
type RecordStore struct {
	mu      sync.Mutex
	records map[string][]domain.AnswerHistoryItem
}

func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string][]domain.AnswerHistoryItem)}
}

func (s *RecordStore) Create(_ context.Context) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := hex.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = []domain.AnswerHistoryItem{}
	return id, nil
}

func (s *RecordStore) Read(_ context.Context, id string) ([]domain.AnswerHistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.records[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	copied := make([]domain.AnswerHistoryItem, len(items))
	copy(copied, items)
	return copied, nil
}

func (s *RecordStore) Upsert(_ context.Context, id string, item domain.AnswerHistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.records[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	for i, existing := range items {
		if existing.ID == item.ID {
			items[i] = item
			s.records[id] = items
			return nil
		}
	}
	s.records[id] = append(items, item)
	return nil
}
