package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"gym-status-backend/config"
	"gym-status-backend/internal/api"
	"gym-status-backend/internal/coord"
	"gym-status-backend/internal/db"
	"gym-status-backend/internal/notification"
	"gym-status-backend/internal/store"
	"gym-status-backend/internal/timer"
	"gym-status-backend/internal/ws"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "gym-backend ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatalf("auth.jwt_secret must be configured")
	}
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Redis backs both the timer store and the delayed task queue.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	asynqInspector := asynq.NewInspector(redisOpt)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	hub := ws.NewHub()

	timerSvc := timer.NewService(
		timer.NewRedisKV(redisClient),
		timer.NewAsynqQueue(asynqClient, asynqInspector),
		hub,
		timer.Options{
			TagOffWarning:     cfg.Timers.TagOffWarning,
			GymSessionWarning: cfg.Timers.GymSessionWarning,
		},
	)

	pushPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	pushPool.Start(ctx)

	coordinator := coord.New(appStore, timerSvc, hub, pushPool, coord.Durations{
		QueueTurn:   cfg.Timers.QueueTurn,
		GymSession:  cfg.Timers.GymSession,
		SnapshotTTL: time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})
	timerSvc.SetExpiryHandler(coordinator)
	hub.OnBind = coordinator.OnConnectionBound

	// Timer jobs are processed in-process by the asynq worker server.
	asynqServer := timer.NewServer(redisOpt, cfg.WorkerPool.Size)
	go func() {
		if err := asynqServer.Run(timer.NewMux(timerSvc)); err != nil {
			logger.Fatalf("asynq server: %v", err)
		}
	}()

	// Initialize router
	router := api.NewRouter(coordinator, appStore, hub, &webpushOptions, api.RouterConfig{
		JWTSecret:       cfg.Auth.JWTSecret,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	asynqServer.Shutdown()

	logger.Println("Server gracefully stopped")
}
