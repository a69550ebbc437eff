package memory

import (
	"sync"

	"mapquiz-service/internal/domain"
)

// Mirror is an in-memory implementation of history.Mirror. Useful for tests
// and for running without Redis; data lives only as long as the process.
type Mirror struct {
	mu   sync.RWMutex
	data map[string][]domain.AnswerHistoryItem
}

func NewMirror() *Mirror {
	return &Mirror{data: make(map[string][]domain.AnswerHistoryItem)}
}

func (m *Mirror) Get(userID string) ([]domain.AnswerHistoryItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items, ok := m.data[userID]
	if !ok {
		return nil, false
	}
	copied := make([]domain.AnswerHistoryItem, len(items))
	copy(copied, items)
	return copied, true
}

func (m *Mirror) Set(userID string, items []domain.AnswerHistoryItem) {
	copied := make([]domain.AnswerHistoryItem, len(items))
	copy(copied, items)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID] = copied
}
