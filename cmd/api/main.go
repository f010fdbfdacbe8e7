package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/infinite-story/internal/config"
	"github.com/jwebster45206/infinite-story/internal/handlers"
	"github.com/jwebster45206/infinite-story/internal/logger"
	"github.com/jwebster45206/infinite-story/internal/metrics"
	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/internal/services/events"
	"github.com/jwebster45206/infinite-story/internal/services/queue"
	"github.com/jwebster45206/infinite-story/internal/storage"
	"github.com/jwebster45206/infinite-story/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Infinite Story API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"database_path", cfg.DatabasePath,
		"embedded_worker", cfg.EmbeddedWorker)

	db, err := storage.OpenSQLite(cfg.DatabasePath, log)
	if err != nil {
		log.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", "error", err)
		}
	}()
	log.Info("Database opened successfully")

	redisClient, err := storage.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Error("Invalid Redis URL", "error", err)
		os.Exit(1)
	}
	sessions := storage.NewRedisSessionStore(redisClient, cfg.SessionTTL, log)
	defer func() {
		if err := sessions.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}()

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := sessions.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Redis connection established successfully")

	m := metrics.New()
	broadcaster := events.NewBroadcaster(redisClient, log)
	interactions := queue.NewInteractionQueue(queue.NewClientFromRedis(redisClient, log))

	stories := services.NewStoryService(db, sessions, log,
		services.WithPublisher(broadcaster),
		services.WithMetrics(m),
		services.WithLock(cfg.SessionLockTTL, 0, 0),
		services.WithActiveWindow(cfg.ActiveWindow),
	)

	handler := handlers.NewRouter(handlers.RouterConfig{
		Stories:   stories,
		Database:  db,
		Sessions:  sessions,
		Hub:       broadcaster,
		Queue:     interactions,
		Metrics:   m,
		StaticDir: cfg.StaticDir,
		Logger:    log,
	})

	var w *worker.Worker
	if cfg.EmbeddedWorker {
		w = worker.New(interactions, stories, broadcaster, log, cfg.WorkerID, worker.WithMetrics(m))
		go func() {
			if err := w.Start(); err != nil {
				log.Error("Worker error", "error", err)
			}
		}()
		log.Info("Embedded worker started", "worker_id", w.ID())
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout removed to enable streaming - SSE and WebSocket handle their own timeouts
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	if w != nil {
		w.Stop()
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
