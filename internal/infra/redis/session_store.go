package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"mapquiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Review sessions themselves stay in the local map; their state is
//     rebuilt from the record store on a cold start anyway.
//   - Redis marks session liveness, so an operator (or another instance) can
//     see which progress ids are actively reviewing.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.ReviewSession
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.ReviewSession),
	}
}

func (s *SessionStore) Get(userID string) (*app.ReviewSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	return session, ok
}

func (s *SessionStore) Put(userID string, session *app.ReviewSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(userID), "1", s.ttl).Err()
}

func (s *SessionStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	_ = s.client.Del(context.Background(), s.key(userID)).Err()
}

func (s *SessionStore) key(userID string) string {
	return "mapquiz:session:" + userID
}
