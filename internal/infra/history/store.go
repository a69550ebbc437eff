// Package history adapts the remote record store and the local mirror into
// the answer-history contract the review core depends on. The in-memory
// session state is always updated first; everything here is a mirror of it,
// so a slow or failing save can never surface stale scheduling state.
package history

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"mapquiz-service/internal/domain"
)

// RemoteClient is the thin record-store contract (see infra/cab).
type RemoteClient interface {
	Create(ctx context.Context) (string, error)
	Read(ctx context.Context, id string) ([]domain.AnswerHistoryItem, error)
	Upsert(ctx context.Context, id string, item domain.AnswerHistoryItem) error
}

// Mirror is local persistent key-value storage of each user's history.
// Implementations swallow their own failures and report "no data".
type Mirror interface {
	Get(userID string) ([]domain.AnswerHistoryItem, bool)
	Set(userID string, items []domain.AnswerHistoryItem)
}

type pendingWrite struct {
	userID string
	item   domain.AnswerHistoryItem
}

// Store implements app.HistoryStore: id resolution with create fallback,
// synchronous mirror writes, asynchronous remote writes, and an explicit
// outbox that queues writes while offline and replays them on reconnect.
type Store struct {
	remote RemoteClient
	mirror Mirror

	mu     sync.Mutex
	online bool
	outbox []pendingWrite
}

func NewStore(remote RemoteClient, mirror Mirror) *Store {
	return &Store{remote: remote, mirror: mirror, online: true}
}

// Open resolves a progress id and loads its history. A bad or empty id falls
// back to creating a fresh record; an unreachable remote falls back to the
// mirror when it has data for the id.
func (s *Store) Open(ctx context.Context, suppliedID string) (string, []domain.AnswerHistoryItem, error) {
	if suppliedID != "" {
		items, err := s.remote.Read(ctx, suppliedID)
		if err == nil {
			// Mirror must stay in sync with the remote store.
			s.mirror.Set(suppliedID, items)
			return suppliedID, items, nil
		}

		if errors.Is(err, domain.ErrRecordNotFound) {
			log.Printf("seems like %q was a bad id, starting over: %v", suppliedID, err)
		} else {
			// Remote unreachable; the mirror is trusted to have the most
			// recent data because every save writes it first.
			if items, ok := s.mirror.Get(suppliedID); ok {
				log.Printf("record store unreachable, using mirrored history: %v", err)
				return suppliedID, items, nil
			}
			return "", nil, err
		}
	}

	id, err := s.remote.Create(ctx)
	if err != nil {
		return "", nil, err
	}
	s.mirror.Set(id, []domain.AnswerHistoryItem{})
	return id, nil, nil
}

// SaveAnswer persists one answer: mirror synchronously, remote
// fire-and-forget. While offline the remote write is queued instead.
func (s *Store) SaveAnswer(userID string, item domain.AnswerHistoryItem) {
	items, _ := s.mirror.Get(userID)
	s.mirror.Set(userID, upsertItem(items, item))

	s.mu.Lock()
	if !s.online {
		s.outbox = append(s.outbox, pendingWrite{userID: userID, item: item})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	go s.upsertRemote(userID, item)
}

// SetOnline records a connectivity change. Coming back online flushes the
// outbox.
func (s *Store) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()

	if online && !wasOnline {
		s.Flush(context.Background())
	}
}

// Flush replays queued writes in order, each independently and best-effort.
// There is no dedup: the record store's overwrite-by-id semantics make later
// writes win naturally.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	pending := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	for _, write := range pending {
		if err := s.remote.Upsert(ctx, write.userID, write.item); err != nil {
			log.Printf("could not save answer %d: %v", write.item.ID, err)
		}
	}
}

// PendingWrites reports the outbox length.
func (s *Store) PendingWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}

func (s *Store) upsertRemote(userID string, item domain.AnswerHistoryItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.remote.Upsert(ctx, userID, item); err != nil {
		log.Printf("could not save answer %d: %v", item.ID, err)
	}
}

// upsertItem replaces the item with a matching id, or appends.
func upsertItem(items []domain.AnswerHistoryItem, item domain.AnswerHistoryItem) []domain.AnswerHistoryItem {
	next := make([]domain.AnswerHistoryItem, 0, len(items)+1)
	replaced := false
	for _, existing := range items {
		if existing.ID == item.ID {
			next = append(next, item)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, item)
	}
	return next
}
