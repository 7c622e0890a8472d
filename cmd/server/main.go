package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/boardkeeper/internal/activity"
	"github.com/iudanet/boardkeeper/internal/config"
	"github.com/iudanet/boardkeeper/internal/media"
	"github.com/iudanet/boardkeeper/internal/metrics"
	"github.com/iudanet/boardkeeper/internal/server"
	"github.com/iudanet/boardkeeper/internal/server/handlers"
	"github.com/iudanet/boardkeeper/internal/server/middleware"
	"github.com/iudanet/boardkeeper/internal/server/storage"
	"github.com/iudanet/boardkeeper/internal/server/storage/file"
	"github.com/iudanet/boardkeeper/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = time.Hour
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "boardkeeper: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище: файловый снапшот или нормализованный SQLite
	var st storage.Storage
	var pinger handlers.Pinger
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		sqliteStorage, err := sqlite.New(ctx, cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		defer func() {
			if err := sqliteStorage.Close(); err != nil {
				logger.Error("failed to close sqlite storage", slog.Any("error", err))
			}
		}()
		st = sqliteStorage
		pinger = sqliteStorage
	case config.BackendFile:
		fileStorage, err := file.New(cfg.FilePath)
		if err != nil {
			return fmt.Errorf("failed to open file storage: %w", err)
		}
		st = fileStorage
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	mediaStore, err := media.NewStore(cfg.MediaRoot)
	if err != nil {
		return fmt.Errorf("failed to init media store: %w", err)
	}

	m := metrics.New(nil)

	grace := media.NewGrace(cfg.MediaGraceTTL)
	collector := media.NewCollector(mediaStore, grace, st, logger, media.CollectorConfig{
		QuotaBytes:    cfg.MediaQuotaBytes,
		SweepInterval: cfg.GCSweepInterval,
		Metrics:       m,
	})
	defer collector.Close()

	activityLog, err := activity.Open(cfg.ActivityPath, logger)
	if err != nil {
		// Журнал активности вспомогательный, без него жить можно
		logger.Warn("activity log unavailable", slog.Any("error", err))
		activityLog = nil
	}
	defer func() {
		if err := activityLog.Close(); err != nil {
			logger.Error("failed to close activity log", slog.Any("error", err))
		}
	}()

	limiter := middleware.NewRateLimiter(cfg.RateLimits, logger)

	router := server.NewRouter(server.Deps{
		Logger:     logger,
		Storage:    st,
		MediaStore: mediaStore,
		Grace:      grace,
		Collector:  collector,
		Activity:   activityLog,
		JWTConfig: handlers.JWTConfig{
			Secret:          []byte(cfg.JWTSecret),
			AccessTokenTTL:  cfg.AccessTokenTTL,
			RefreshTokenTTL: cfg.RefreshTokenTTL,
		},
		Limiter: limiter,
		Metrics: m,
		Version: Version,
		Pinger:  pinger,
	})

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Фоновые задачи: периодический GC проход и чистка сессий
	go collector.Run(ctx)
	go sessionCleanup(ctx, logger, st)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("address", cfg.Address),
			slog.String("backend", string(cfg.StorageBackend)),
			slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// sessionCleanup периодически удаляет истекшие refresh-сессии
func sessionCleanup(ctx context.Context, logger *slog.Logger, st storage.SessionStorage) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.DeleteExpiredSessions(ctx)
			if err != nil {
				logger.Warn("session cleanup failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", slog.Int("count", n))
			}
		}
	}
}

func printVersion() {
	fmt.Printf("BoardKeeper Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
