package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/cadence-settings/internal/api"
	"github.com/ignite/cadence-settings/internal/cache"
	"github.com/ignite/cadence-settings/internal/config"
	"github.com/ignite/cadence-settings/internal/leadscore"
	"github.com/ignite/cadence-settings/internal/repository/postgres"
	"github.com/ignite/cadence-settings/internal/service/settings"
	"github.com/ignite/cadence-settings/internal/taskplan"
	"github.com/ignite/cadence-settings/internal/worker"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Database ping failed: %v", err)
	}
	pingCancel()
	log.Println("Database connected")

	// Cache invalidation is best-effort: without Redis the engine still
	// runs, consumers just re-read from the database.
	var invalidator worker.CacheInvalidator = cache.NopInvalidator{}
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		var redisClient *redis.Client
		if err != nil {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
		} else {
			redisClient = redis.NewClient(opts)
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — cache invalidation disabled", cfg.Redis.URL, err)
			redisClient.Close()
		} else {
			invalidator = cache.NewRedisInvalidator(redisClient)
			log.Printf("Redis connected: %s", cfg.Redis.URL)
		}
		pingCancel()
	} else {
		log.Println("Redis not configured — cache invalidation disabled")
	}

	var scheduler worker.Scheduler
	if cfg.Scheduler.BaseURL != "" {
		scheduler = taskplan.NewClient(cfg.Scheduler)
		log.Printf("Scheduler service: %s", cfg.Scheduler.BaseURL)
	} else {
		log.Println("Scheduler service not configured — task plan recomputation disabled")
	}

	var scorer worker.LeadScorer
	if cfg.LeadScore.BaseURL != "" {
		scorer = leadscore.NewClient(cfg.LeadScore)
		log.Printf("Lead scoring service: %s", cfg.LeadScore.BaseURL)
	} else {
		log.Println("Lead scoring service not configured — score resets disabled")
	}

	dispatcher := worker.NewEffectDispatcher(scheduler, invalidator, scorer)
	dispatcher.SetWorkers(cfg.Dispatcher.Workers)
	if err := dispatcher.Start(); err != nil {
		log.Fatalf("Failed to start effect dispatcher: %v", err)
	}
	defer dispatcher.Stop()

	store := postgres.NewStore(db)
	svc := settings.NewService(store, dispatcher)
	handlers := api.NewSettingsHandlers(svc)
	router := api.SetupRouter(handlers, cfg.Server.AllowedOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("Settings service listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
