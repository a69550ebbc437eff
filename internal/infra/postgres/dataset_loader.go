package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mapquiz-service/internal/domain"
)

// DatasetLoader loads GeoJSON feature collections from Postgres.
type DatasetLoader struct {
	pool *pgxpool.Pool
}

func NewDatasetLoader(pool *pgxpool.Pool) *DatasetLoader {
	return &DatasetLoader{pool: pool}
}

func (l *DatasetLoader) LoadDataset(ctx context.Context, datasetID string) (domain.QuestionFeatureCollection, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM datasets WHERE id=$1`, datasetID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionFeatureCollection{}, domain.ErrDatasetNotFound
	}
	if err != nil {
		return domain.QuestionFeatureCollection{}, fmt.Errorf("load dataset: %w", err)
	}
	var collection domain.QuestionFeatureCollection
	if err := json.Unmarshal(raw, &collection); err != nil {
		return domain.QuestionFeatureCollection{}, fmt.Errorf("unmarshal dataset: %w", err)
	}
	return collection, nil
}
