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
	"quiz-sync-service/internal/app"
	"quiz-sync-service/internal/config"
	"quiz-sync-service/internal/infra/memory"
	pgstore "quiz-sync-service/internal/infra/postgres"
	redisstats "quiz-sync-service/internal/infra/redis"
	transport "quiz-sync-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the sync server",
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

	var store app.RecordStore = memory.NewRecordStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		store = pgstore.NewRecordStore(pool)
	}

	statsTTL := config.TTLDuration(cfg.Stats.TTL, 5*time.Minute)
	var stats app.StatsProvider
	if redisClient != nil {
		stats = redisstats.NewStatsCache(redisClient, store, statsTTL)
	} else {
		stats = memory.NewStatsCache(store, statsTTL)
	}

	limits := app.DefaultLimits()
	if cfg.Sync.MaxSessions > 0 {
		limits.MaxSessions = cfg.Sync.MaxSessions
	}
	if cfg.Sync.MaxResults > 0 {
		limits.MaxResults = cfg.Sync.MaxResults
	}
	if cfg.Sync.DeltaLimit > 0 {
		limits.DeltaLimit = cfg.Sync.DeltaLimit
	}

	hub := app.NewHub()
	service := app.NewSyncService(store, stats, hub, limits)
	principals := transport.NewHeaderPrincipalResolver()
	syncHandler := transport.NewSyncHandler(service, principals)
	wsHandler := transport.NewWSHandler(hub, principals)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/sync-progress", syncHandler.HandleSyncProgress)
	mux.HandleFunc("/ws/sync", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting sync service on :%s", finalPort)
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
