package redis

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"mapquiz-service/internal/domain"
)

// Mirror keeps each user's answer history as a JSON blob in Redis. It plays
// the role browser local storage plays for the web client: a local mirror of
// the remote record store. Failures are swallowed and reported as "no data";
// the review flow never stops for a mirror problem.
type Mirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewMirror(client *redis.Client, ttl time.Duration) *Mirror {
	return &Mirror{client: client, ttl: ttl}
}

func (m *Mirror) Get(userID string) ([]domain.AnswerHistoryItem, bool) {
	raw, err := m.client.Get(context.Background(), m.key(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("history mirror read failed: %v", err)
		}
		return nil, false
	}

	var items []domain.AnswerHistoryItem
	if err := json.Unmarshal(raw, &items); err != nil {
		log.Printf("history mirror held malformed data for %s: %v", userID, err)
		return nil, false
	}
	return items, true
}

func (m *Mirror) Set(userID string, items []domain.AnswerHistoryItem) {
	raw, err := json.Marshal(items)
	if err != nil {
		log.Printf("history mirror encode failed: %v", err)
		return
	}
	if err := m.client.Set(context.Background(), m.key(userID), raw, m.ttl).Err(); err != nil {
		log.Printf("history mirror write failed: %v", err)
	}
}

func (m *Mirror) key(userID string) string {
	return "mapquiz:history:" + userID
}
