package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"mapquiz-service/internal/app"
	"mapquiz-service/internal/domain"
	"mapquiz-service/internal/infra/history"
	"mapquiz-service/internal/infra/memory"
	pgloader "mapquiz-service/internal/infra/postgres"
	pgmigrations "mapquiz-service/internal/infra/postgres/migrations"
	infraredis "mapquiz-service/internal/infra/redis"
)

func TestReviewEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedDataset(t, ctx, pgURL, "sydney", sampleDataset())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	loader := pgloader.NewDatasetLoader(pool)
	datasets := infraredis.NewDatasetRepository(redisClient, loader, 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	mirror := infraredis.NewMirror(redisClient, 5*time.Minute)
	store := history.NewStore(memory.NewRecordStore(), mirror)
	service := app.NewReviewService(sessions, datasets, store)

	session, err := service.Connect(ctx, "sydney", "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	userID := session.UserID()
	if userID == "" {
		t.Fatalf("expected a progress id")
	}

	question, ok := session.NextQuestion()
	if !ok {
		t.Fatalf("expected a question")
	}
	feature, ok := session.Feature(question.ID)
	if !ok {
		t.Fatalf("feature %d missing", question.ID)
	}

	center := feature.Center
	result, err := session.Answer(domain.TapEvent{Feature: &feature, ClickCoords: &center})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if result.Score != 1 || result.Text != "Correct!" {
		t.Fatalf("unexpected result: %+v", result)
	}

	// The mirror write is synchronous, so the answer is already visible.
	mirrored, ok := mirror.Get(userID)
	if !ok || len(mirrored) != 1 || mirrored[0].ID != question.ID {
		t.Fatalf("expected the answer mirrored in redis, got %+v ok=%v", mirrored, ok)
	}

	// A reconnect after losing the remote record falls back to the mirror.
	service.Disconnect(userID)
	broken := app.NewReviewService(sessions, datasets,
		history.NewStore(unreachableRemote{}, mirror))
	restored, err := broken.Connect(ctx, "sydney", userID)
	if err != nil {
		t.Fatalf("reconnect via mirror: %v", err)
	}
	got, ok := restored.Feature(question.ID)
	if !ok || got.LastScore == nil || *got.LastScore != 1 {
		t.Fatalf("expected mirrored progress restored, got %+v", got)
	}
}

type unreachableRemote struct{}

func (unreachableRemote) Create(context.Context) (string, error) {
	return "", fmt.Errorf("record store unreachable")
}

func (unreachableRemote) Read(context.Context, string) ([]domain.AnswerHistoryItem, error) {
	return nil, fmt.Errorf("record store unreachable")
}

func (unreachableRemote) Upsert(context.Context, string, domain.AnswerHistoryItem) error {
	return fmt.Errorf("record store unreachable")
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "mapquiz", "POSTGRES_PASSWORD": "mapquizpass", "POSTGRES_DB": "mapquizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://mapquiz:mapquizpass@%s:%s/mapquizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedDataset(t *testing.T, ctx context.Context, dsn, datasetID string, collection domain.QuestionFeatureCollection) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(collection)
	if err != nil {
		t.Fatalf("marshal dataset: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO datasets (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, datasetID, string(data)); err != nil {
		t.Fatalf("insert dataset: %v", err)
	}
}

func sampleDataset() domain.QuestionFeatureCollection {
	return domain.QuestionFeatureCollection{Features: []domain.RawFeature{
		{
			ID:         1,
			Properties: domain.RawProps{Name: "Rhodes", Center: domain.LngLat{151.0877, -33.8292}},
			Geometry: domain.Geometry{Type: "Polygon", Rings: [][][]float64{{
				{151.08, -33.835}, {151.095, -33.835}, {151.095, -33.823}, {151.08, -33.823},
			}}},
		},
		{
			ID:         2,
			Properties: domain.RawProps{Name: "Wentworth Point", Center: domain.LngLat{151.0772, -33.8276}},
			Geometry: domain.Geometry{Type: "Polygon", Rings: [][][]float64{{
				{151.07, -33.833}, {151.08, -33.833}, {151.08, -33.822}, {151.07, -33.822},
			}}},
		},
	}}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
