package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/scribe/internal/app/migrate"
	httpx "github.com/splax/scribe/internal/http"
	"github.com/splax/scribe/internal/provider/deepgram"
	"github.com/splax/scribe/internal/repository/postgres"
	"github.com/splax/scribe/internal/service/auth"
	"github.com/splax/scribe/internal/service/transcription"
	s3store "github.com/splax/scribe/internal/storage/s3"
	"github.com/splax/scribe/pkg/config"
	"github.com/splax/scribe/pkg/logger"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.LoadAPIConfig()
	log := logger.New("api", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if cfg.AutoMigrate {
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	} else {
		log.Info("automatic migrations disabled; run cmd/migrate")
	}

	repo := postgres.New(pool)

	var blobs transcription.AudioStore
	if cfg.AudioStore == config.AudioStoreS3 {
		store, err := s3store.New(ctx, cfg.S3)
		if err != nil {
			log.Error("failed to configure audio storage", "error", err)
			os.Exit(1)
		}
		blobs = store
		log.Info("audio stored in object storage", "bucket", cfg.S3.Bucket)
	}

	provider := deepgram.New(cfg.Deepgram.APIKey,
		deepgram.WithBaseURL(cfg.Deepgram.BaseURL),
		deepgram.WithModel(cfg.Deepgram.Model),
		deepgram.WithLanguage(cfg.Deepgram.Language),
		deepgram.WithTimeout(cfg.Deepgram.Timeout),
	)

	authSvc := auth.New(repo, log, cfg)
	transcriptionSvc := transcription.New(repo, provider, blobs, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, transcriptionSvc, limiter, httpx.Options{
		MaxUploadBytes:     cfg.MaxUploadBytes,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		DBHealth:           pool.Ping,
		TrustedProxies:     cfg.TrustedProxies,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
