package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"mapquiz-service/internal/domain"
)

// DatasetLoader fetches question feature collections from a backing store
// (e.g., Postgres JSONB).
type DatasetLoader interface {
	LoadDataset(ctx context.Context, datasetID string) (domain.QuestionFeatureCollection, error)
}

// DatasetRepository caches serialized feature collections in Redis (one
// string key per dataset) and falls back to a loader on cache miss.
type DatasetRepository struct {
	client *redis.Client
	loader DatasetLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewDatasetRepository(client *redis.Client, loader DatasetLoader, ttl time.Duration) *DatasetRepository {
	return &DatasetRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *DatasetRepository) GetDataset(ctx context.Context, datasetID string) (domain.QuestionFeatureCollection, error) {
	key := r.key(datasetID)

	if collection, ok := r.cached(ctx, key); ok {
		return collection, nil
	}

	result, err, _ := r.sf.Do(datasetID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if collection, ok := r.cached(ctx, key); ok {
			return collection, nil
		}

		collection, err := r.loader.LoadDataset(ctx, datasetID)
		if err != nil {
			return domain.QuestionFeatureCollection{}, err
		}

		if raw, err := json.Marshal(collection); err == nil {
			// best-effort cache fill
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}

		return collection, nil
	})
	if err != nil {
		return domain.QuestionFeatureCollection{}, err
	}
	return result.(domain.QuestionFeatureCollection), nil
}

func (r *DatasetRepository) cached(ctx context.Context, key string) (domain.QuestionFeatureCollection, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.QuestionFeatureCollection{}, false
	}
	var collection domain.QuestionFeatureCollection
	if err := json.Unmarshal(raw, &collection); err != nil {
		return domain.QuestionFeatureCollection{}, false
	}
	return collection, true
}

func (r *DatasetRepository) key(datasetID string) string {
	return "mapquiz:dataset:" + datasetID
}

func (r *DatasetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
