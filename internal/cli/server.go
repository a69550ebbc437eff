package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"mapquiz-service/internal/app"
	"mapquiz-service/internal/config"
	"mapquiz-service/internal/domain"
	"mapquiz-service/internal/infra/cab"
	"mapquiz-service/internal/infra/history"
	"mapquiz-service/internal/infra/memory"
	pgloader "mapquiz-service/internal/infra/postgres"
	redisinfra "mapquiz-service/internal/infra/redis"
	transport "mapquiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the map quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.DatasetLoader = memory.NewStaticDatasetLoader(sampleDatasets())
	if pool != nil {
		loader = pgloader.NewDatasetLoader(pool)
	}

	datasetTTL := config.TTLDuration(cfg.Dataset.TTL, time.Hour)
	var datasets app.DatasetRepository
	if redisClient != nil {
		datasets = redisinfra.NewDatasetRepository(redisClient, loader, datasetTTL)
	} else {
		datasets = memory.NewDatasetRepository(loader, datasetTTL)
	}

	var remote history.RemoteClient = memory.NewRecordStore()
	if cfg.Cab.URL != "" {
		remote = cab.NewClient(cfg.Cab.URL)
	}

	var mirror history.Mirror = memory.NewMirror()
	if redisClient != nil {
		mirror = redisinfra.NewMirror(redisClient, redisTTL)
	}
	historyStore := history.NewStore(remote, mirror)

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}
	service := app.NewReviewService(sessions, datasets, historyStore)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting map quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleDatasets provides a tiny feature collection so the server runs
// without Postgres; swap in the DB-backed loader for real maps.
func sampleDatasets() map[string]domain.QuestionFeatureCollection {
	square := func(lng, lat float64) domain.Geometry {
		return domain.Geometry{
			Type: "Polygon",
			Rings: [][][]float64{{
				{lng, lat},
				{lng + 0.01, lat},
				{lng + 0.01, lat + 0.01},
				{lng, lat + 0.01},
				{lng, lat},
			}},
		}
	}
	return map[string]domain.QuestionFeatureCollection{
		"demo": {
			Features: []domain.RawFeature{
				{
					ID:         1,
					Properties: domain.RawProps{Name: "Rhodes", Center: domain.LngLat{151.0877, -33.8292}},
					Geometry:   square(151.0827, -33.8342),
				},
				{
					ID:         2,
					Properties: domain.RawProps{Name: "Wentworth Point", Center: domain.LngLat{151.0772, -33.8276}},
					Geometry:   square(151.0722, -33.8326),
				},
				{
					ID:         3,
					Properties: domain.RawProps{Name: "Berowra", Center: domain.LngLat{151.1356, -33.6039}},
					Geometry:   square(151.1306, -33.6089),
				},
			},
		},
	}
}
