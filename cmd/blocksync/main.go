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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/blocksync/internal/adapter/driven/github"
	"github.com/ericfisherdev/blocksync/internal/adapter/driven/session"
	sqliteadapter "github.com/ericfisherdev/blocksync/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/blocksync/internal/adapter/driven/twitter"
	httphandler "github.com/ericfisherdev/blocksync/internal/adapter/driving/http"
	"github.com/ericfisherdev/blocksync/internal/application"
	"github.com/ericfisherdev/blocksync/internal/config"
	"github.com/ericfisherdev/blocksync/internal/domain/model"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"idle_interval", cfg.IdleInterval,
		"backoff_floor", cfg.BackoffFloor,
		"backoff_ceiling", cfg.BackoffCeiling,
		"unblock_enabled", cfg.UnblockEnabled,
	)
	if !cfg.HasSecretKey() {
		slog.Warn("BLOCKSYNC_SECRET_KEY not set, credentials cannot be stored and remote calls will fail")
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
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

	// 5. Wire stores.
	handleStore := sqliteadapter.NewHandleRepo(db)
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)

	// 6. Wire platform adapters, one credential session each.
	twitterSession := session.New(credentialStore, model.PlatformTwitter, session.DefaultRefresh)
	twitterAccount, err := twitter.NewAccount(twitterSession, cfg.TwitterAPIURL, cfg.RequestTimeout)
	if err != nil {
		return err
	}

	githubSession := session.New(credentialStore, model.PlatformGitHub, session.DefaultRefresh)
	githubClient := githubadapter.NewClient(githubSession, cfg.RequestTimeout)

	registry := application.NewAdapterRegistry(twitterAccount, githubClient)
	slog.Info("platform adapters registered", "platforms", registry.Platforms())

	// 7. Create and start the reconciler.
	reconciler := application.NewReconciler(handleStore, registry, application.ReconcilerConfig{
		IdleInterval:   cfg.IdleInterval,
		BackoffFloor:   cfg.BackoffFloor,
		BackoffCeiling: cfg.BackoffCeiling,
		CallTimeout:    cfg.RequestTimeout,
		UnblockEnabled: cfg.UnblockEnabled,
	})
	reconcilerDone := make(chan struct{})
	go func() {
		defer close(reconcilerDone)
		reconciler.Start(ctx)
	}()

	// 7b. Create the services behind the ingest API.
	subscriptionSvc := application.NewSubscriptionService(handleStore, cfg.UnblockEnabled)
	credentialSvc := application.NewCredentialService(credentialStore, cfg.CredentialTTL, twitterSession, githubSession)
	blockListSync := application.NewBlockListSync(handleStore, registry)

	// 8. Create HTTP handler with middleware.
	apiHandler := httphandler.NewHandler(subscriptionSvc, credentialSvc, blockListSync, reconciler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("blocksync started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown: drain HTTP, then wait for the in-flight record.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	select {
	case <-reconcilerDone:
	case <-shutdownCtx.Done():
		slog.Warn("reconciler did not stop before shutdown timeout")
	}

	slog.Info("shutdown complete")
	return nil
}
