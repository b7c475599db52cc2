package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bidline/api/internal/app"
	"bidline/api/internal/archive"
	"bidline/api/internal/cache"
	"bidline/api/internal/config"
	"bidline/api/internal/history"
	"bidline/api/internal/logger"
	"bidline/api/internal/search"
	"bidline/api/internal/store"
	"bidline/api/internal/syncer"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "api",
		Short:         "Bidline proposal API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and sync engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bidline-api version %s (build: %s)\n", Version, BuildTime)
		},
	})
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, cfg config.Config, log zerolog.Logger, db *store.PostgresStore) error {
				applied, err := store.ApplyMigrations(ctx, db.DB(), cfg.MigrationsDir)
				if err != nil {
					return err
				}
				log.Info().Strs("applied", applied).Msg("migrations applied")
				return nil
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, cfg config.Config, log zerolog.Logger, db *store.PostgresStore) error {
				rolledBack, err := store.RollbackMigrations(ctx, db.DB(), cfg.MigrationsDir, steps)
				if err != nil {
					return err
				}
				log.Info().Strs("rolled_back", rolledBack).Msg("migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back (0 for all)")
	cmd.AddCommand(down)
	return cmd
}

func withDatabase(ctx context.Context, fn func(context.Context, config.Config, zerolog.Logger, *store.PostgresStore) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Environment)

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	return fn(ctx, cfg, log, store.NewPostgresStore(db))
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Environment)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if len(applied) > 0 {
		log.Info().Strs("applied", applied).Msg("migrations applied")
	}
	dataStore := store.NewPostgresStore(db)

	// Redis holds the only full copy of each working proposal; the remote
	// store keeps summaries.
	snapshotCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	defer snapshotCache.Close()

	engine := syncer.NewEngine(dataStore, cache.NewSnapshots(snapshotCache, log), syncer.Options{
		Debounce:      cfg.Debounce,
		QuietWindow:   cfg.QuietWindow,
		RemoteTimeout: cfg.RemoteTimeout,
		Logger:        log,
	})

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
		index = meili
	}
	searchService := search.NewService(index, search.NewStoreSearcher(dataStore), log)
	go searchService.ReindexAll(ctx)
	engine.OnSynced(searchService.IndexSynced)

	var historyService *history.Service
	if strings.TrimSpace(cfg.HistoryDir) != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
		historyService = history.New(cfg.HistoryDir)
		engine.OnSynced(historyService.RecordSynced)
	}

	deps := app.Dependencies{
		Engine:  engine,
		Store:   dataStore,
		Cache:   snapshotCache,
		Search:  searchService,
		History: historyService,
	}
	if strings.TrimSpace(cfg.ArchiveEndpoint) != "" {
		bucket, err := archive.NewMinioBucket(ctx, archive.MinioOptions{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			UseSSL:    cfg.ArchiveUseSSL,
		})
		if err != nil {
			return fmt.Errorf("object storage connection failed: %w", err)
		}
		proposalArchive := archive.New(bucket, log)
		engine.OnSynced(proposalArchive.ArchiveSynced)
		deps.Archive = proposalArchive
		deps.ObjectStore = bucket
		log.Info().Str("bucket", cfg.ArchiveBucket).Msg("archiving synced proposals to object storage")
	}

	service := app.New(deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("version", Version).Msg("bidline api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final flush failed")
	}
	return nil
}
