package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"caderninho/backend/internal/cache"
	"caderninho/backend/internal/config"
	"caderninho/backend/internal/httpapi"
	"caderninho/backend/internal/logger"
	"caderninho/backend/internal/metrics"
	"caderninho/backend/internal/service"
	"caderninho/backend/internal/store"
	"caderninho/backend/internal/store/memory"
	pgstore "caderninho/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(); err != nil {
				log.Fatal("postgres migration failed", zap.Error(err))
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(log)
		log.Info("repository: in-memory", zap.String("business_id", memory.DemoBusinessID))
	}

	summaryCache := cache.SummaryCache(cache.NoopSummaryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			summaryCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		log.Info("cache: noop")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Warn("unknown business timezone, falling back to UTC", zap.String("timezone", cfg.BusinessTimezone), zap.Error(err))
		loc = time.UTC
	}

	svc := service.New(repo, service.Options{
		Location:        loc,
		MaxInstallments: cfg.MaxInstallments,
		AtomicWrites:    cfg.AtomicSaleWrites,
		SummaryCache:    summaryCache,
		SummaryCacheTTL: cfg.SummaryCacheTTL(),
		Metrics:         metrics.New(prometheus.DefaultRegisterer),
		Logger:          log,
	})
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	if cfg.BootstrapOwner != "" {
		created, err := auth.EnsureOwner(ctx, cfg.BootstrapOwner, cfg.BootstrapOwnerPassword, cfg.BootstrapBusinessID)
		if err != nil {
			log.Fatal("bootstrap owner failed", zap.Error(err))
		}
		if created {
			log.Info("bootstrap owner created", zap.String("username", cfg.BootstrapOwner), zap.String("business_id", cfg.BootstrapBusinessID))
		}
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log, prometheus.DefaultGatherer)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("caderninho backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.BootstrapOwner != "" && len(cfg.BootstrapOwnerPassword) < 8 {
		return fmt.Errorf("BOOTSTRAP_OWNER_PASSWORD must be at least 8 characters")
	}
	return nil
}
