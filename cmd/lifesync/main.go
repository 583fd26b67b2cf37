package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/kylewilkins/lifesync/internal/adapter/driven/github"
	"github.com/kylewilkins/lifesync/internal/adapter/driven/lastfm"
	sqliteadapter "github.com/kylewilkins/lifesync/internal/adapter/driven/sqlite"
	"github.com/kylewilkins/lifesync/internal/adapter/driven/steam"
	httphandler "github.com/kylewilkins/lifesync/internal/adapter/driving/http"
	"github.com/kylewilkins/lifesync/internal/application"
	"github.com/kylewilkins/lifesync/internal/config"
	"github.com/kylewilkins/lifesync/internal/crypto"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (.env first so local dev needs no exports,
	// then fail fast on missing required env vars).
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"stale_job_age", cfg.StaleJobAge,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	credentialStore := sqliteadapter.NewCredentialRepo(db)
	jobStore := sqliteadapter.NewJobRepo(db)
	activityStore := sqliteadapter.NewActivityRepo(db)
	snapshotStore := sqliteadapter.NewSnapshotRepo(db)

	vault, err := crypto.NewVault(cfg.SecretKey)
	if err != nil {
		return err
	}

	steamClient := steam.NewClient()
	registry, err := application.NewRegistry(
		steamClient,
		githubadapter.NewClient(),
		lastfm.NewClient(),
	)
	if err != nil {
		return err
	}

	// 6. Wire application services.
	cache := application.NewStatsCache(jobStore, time.Minute)
	syncSvc := application.NewSyncService(registry, credentialStore, jobStore, activityStore, vault, cache)
	snapshotSvc := application.NewSnapshotService(steamClient, snapshotStore, credentialStore, vault)
	credSvc := application.NewCredentialService(credentialStore, registry, vault)
	schedulerSvc := application.NewSchedulerService(credentialStore, syncSvc, snapshotSvc)

	// 7. Sweep jobs left running by an earlier crash before accepting
	// triggers, so the mutual-exclusion check starts from a clean log.
	if swept, err := syncSvc.ReconcileStale(ctx, cfg.StaleJobAge); err != nil {
		return err
	} else if swept > 0 {
		slog.Info("recovered orphaned jobs", "count", swept)
	}

	// 8. HTTP server.
	handler := httphandler.NewHandler(credSvc, syncSvc, snapshotSvc, schedulerSvc, cache, jobStore, activityStore, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, cfg.AdminToken, cfg.CronSecret, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second, // sync triggers block on upstream APIs
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("lifesync started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout to drain in-flight jobs.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
