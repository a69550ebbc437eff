package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mapquiz-service/internal/domain"
)

// DatasetLoader fetches question feature collections from a backing store
// (e.g., Postgres JSONB).
type DatasetLoader interface {
	LoadDataset(ctx context.Context, datasetID string) (domain.QuestionFeatureCollection, error)
}

// DatasetRepository caches feature collections with TTL to avoid repeated
// loads; collections are static per deploy so a short TTL is plenty.
type DatasetRepository struct {
	loader DatasetLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedDataset
}

type cachedDataset struct {
	collection domain.QuestionFeatureCollection
	expiresAt  time.Time
}

func NewDatasetRepository(loader DatasetLoader, ttl time.Duration) *DatasetRepository {
	return &DatasetRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedDataset),
	}
}

func (r *DatasetRepository) GetDataset(ctx context.Context, datasetID string) (domain.QuestionFeatureCollection, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[datasetID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.collection, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(datasetID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[datasetID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.collection, nil
		}
		r.mu.RUnlock()

		collection, err := r.loader.LoadDataset(ctx, datasetID)
		if err != nil {
			return domain.QuestionFeatureCollection{}, err
		}

		r.mu.Lock()
		r.cache[datasetID] = cachedDataset{
			collection: collection,
			expiresAt:  now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return collection, nil
	})
	if err != nil {
		return domain.QuestionFeatureCollection{}, err
	}
	return result.(domain.QuestionFeatureCollection), nil
}

// StaticDatasetLoader is a simple loader backed by an in-memory map (useful
// for tests/demos).
type StaticDatasetLoader struct {
	datasets map[string]domain.QuestionFeatureCollection
}

func NewStaticDatasetLoader(datasets map[string]domain.QuestionFeatureCollection) *StaticDatasetLoader {
	return &StaticDatasetLoader{datasets: datasets}
}

func (l *StaticDatasetLoader) LoadDataset(_ context.Context, datasetID string) (domain.QuestionFeatureCollection, error) {
	if collection, ok := l.datasets[datasetID]; ok {
		return collection, nil
	}
	return domain.QuestionFeatureCollection{}, domain.ErrDatasetNotFound
}

func (r *DatasetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
