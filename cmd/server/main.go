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

	"shiftbook/backend/internal/cache"
	"shiftbook/backend/internal/config"
	"shiftbook/backend/internal/httpapi"
	"shiftbook/backend/internal/ingest"
	"shiftbook/backend/internal/posclient"
	"shiftbook/backend/internal/scheduler"
	"shiftbook/backend/internal/service"
	"shiftbook/backend/internal/store"
	"shiftbook/backend/internal/store/memory"
	pgstore "shiftbook/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	aggCache := cache.AggregateCache(cache.NoopAggregateCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisAggregateCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			aggCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	posClient := posclient.New(posclient.Config{
		BaseURL:   cfg.PosBaseURL,
		Token:     cfg.PosToken,
		PageLimit: cfg.PosPageLimit,
	})
	engine := ingest.NewEngine(posClient, repo)
	svc := service.New(repo, aggCache, engine, time.Duration(cfg.AggregateCacheTTLSeconds)*time.Second)

	sched := scheduler.New(svc,
		time.Duration(cfg.SyncIntervalMinutes)*time.Minute,
		time.Duration(cfg.SyncLookbackMinutes)*time.Minute)
	sched.Start()

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("shiftbook backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.PosBaseURL == "" {
		return fmt.Errorf("POS_API_BASE_URL must be set")
	}
	if cfg.PosToken == "" {
		return fmt.Errorf("POS_API_TOKEN must be set")
	}
	return nil
}
