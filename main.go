package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sykell/url-scraper/internal/api"
	"github.com/sykell/url-scraper/internal/auth"
	"github.com/sykell/url-scraper/internal/config"
	"github.com/sykell/url-scraper/internal/crawler"
	"github.com/sykell/url-scraper/internal/db"
	"github.com/sykell/url-scraper/internal/export"
	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/metrics"
	"github.com/sykell/url-scraper/internal/middleware"
	"github.com/sykell/url-scraper/internal/scheduler"
	"github.com/sykell/url-scraper/internal/service"
)

func main() {
	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		// The logger is configured from cfg, so fall back to a default one.
		logger.Must(logger.Config{Level: "info"}).Fatal("Failed to load configuration", logger.Error(err))
	}

	log := logger.Must(cfg.Log)
	defer func() { _ = log.Sync() }()

	for _, warning := range cfg.Warnings {
		log.Warn(warning)
	}

	// Initialize database
	log.Info("Initializing database...", logger.String("driver", cfg.Database.Driver))
	dbConn, err := db.InitDB(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize database", logger.Error(err))
	}
	log.Info("Database initialized successfully")

	created, err := db.EnsureAdmin(dbConn, cfg.Admin.Username, cfg.Admin.Password)
	if err != nil {
		log.Fatal("Failed to create admin user", logger.Error(err))
	}
	if created {
		log.Info("Created admin user", logger.String("username", cfg.Admin.Username))
	}

	sessions := service.NewSessionStore(dbConn)
	repaired, err := sessions.RepairInterrupted(context.Background())
	if err != nil {
		log.Fatal("Failed to repair interrupted sessions", logger.Error(err))
	}
	if repaired > 0 {
		log.Warn("Completed sessions interrupted by a previous shutdown", logger.Int("sessions", repaired))
	}

	revocations, closeRevocations := newRevocationStore(cfg.Redis, log)
	defer closeRevocations()

	m := metrics.New(prometheus.DefaultRegisterer)
	gate := auth.NewGate(service.NewUserStore(dbConn), revocations, cfg.Auth)

	// Initialize crawler
	fetcher := crawler.NewFetcher(cfg.Crawler, nil, log, m)
	coordinator := crawler.NewCoordinator(fetcher, sessions, cfg.Crawler, log, m)

	sched := scheduler.New(service.NewTaskStore(dbConn), coordinator, log, m)
	if err := sched.Start(context.Background()); err != nil {
		log.Fatal("Failed to start scheduler", logger.Error(err))
	}

	// Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   "url-scraper",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api.Register(r, api.Handlers{
		Gate:        gate,
		Sessions:    sessions,
		Coordinator: coordinator,
		Renderer:    export.NewRenderer(sessions),
		Scheduler:   sched,
		Log:         log,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Starting server", logger.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", logger.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}

	sched.Stop()

	if sqlDB, err := dbConn.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info("Server exited")
}

// newRevocationStore uses Redis when configured so logouts hold across
// instances, and process memory otherwise.
func newRevocationStore(cfg config.RedisConfig, log logger.Logger) (auth.RevocationStore, func()) {
	if cfg.Addr == "" {
		log.Info("Token revocations kept in memory")
		return auth.NewMemoryRevocations(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", logger.String("addr", cfg.Addr), logger.Error(err))
	}

	log.Info("Token revocations stored in Redis", logger.String("addr", cfg.Addr))
	return auth.NewRedisRevocations(client), func() { _ = client.Close() }
}
