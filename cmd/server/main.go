package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tokopos/internal/broker"
	"tokopos/internal/cache"
	"tokopos/internal/config"
	"tokopos/internal/httpapi"
	"tokopos/internal/logger"
	"tokopos/internal/service"
	"tokopos/internal/store"
	"tokopos/internal/store/memory"
	pgstore "tokopos/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			zlog.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		zlog.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		zlog.Info("repository: in-memory")
	}

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			zlog.Warn("redis unavailable, using noop report cache", zap.Error(err))
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			zlog.Info("report cache: redis")
		}
	} else {
		zlog.Info("report cache: noop")
	}

	publisher := broker.Publisher(broker.NoopPublisher{})
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := broker.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publisher = kafkaPublisher
		closers = append(closers, kafkaPublisher.Close)
		zlog.Info("sale events: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		zlog.Info("sale events: noop")
	}

	svc := service.New(repo, reportCache, publisher, zlog, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, zlog, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zlog.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			zlog.Error("close error", zap.Error(err))
		}
	}

	zlog.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
