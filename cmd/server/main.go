package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/live-tracking-backend/internal/broadcast"
	"github.com/smarttransit/live-tracking-backend/internal/cache"
	"github.com/smarttransit/live-tracking-backend/internal/config"
	"github.com/smarttransit/live-tracking-backend/internal/database"
	"github.com/smarttransit/live-tracking-backend/internal/handlers"
	"github.com/smarttransit/live-tracking-backend/internal/metrics"
	"github.com/smarttransit/live-tracking-backend/internal/middleware"
	"github.com/smarttransit/live-tracking-backend/internal/services"
	"github.com/smarttransit/live-tracking-backend/pkg/devicetoken"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SmartTransit Live Tracking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize Redis hot cache
	logger.Info("Connecting to Redis...")
	rdb, err := cache.NewClient(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()
	logger.Info("Redis connection established")

	// Initialize metrics
	collector := metrics.NewCollector()
	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = collector.Serve(cfg.Metrics.Addr, logger)
	}

	// Initialize repositories
	routeRepository := database.NewRouteRepository(db)
	polylineRepository := database.NewPolylineRepository(db)
	vehicleRepository := database.NewVehicleRepository(db)

	// Initialize hot stores
	geometryCache := cache.NewGeometryCache(rdb, routeRepository, polylineRepository, cfg.Tracking.GeometryCacheTTL, logger, collector)
	stateStore := cache.NewVehicleStateStore(rdb, cfg.Tracking.SpeedRingSize)

	// Initialize broadcast fan-out
	hub := broadcast.NewHub(logger, collector)
	var broadcaster services.Broadcaster = hub
	var bridge *broadcast.Bridge
	if cfg.NATS.URL != "" {
		logger.Info("Connecting to NATS...")
		bridge, err = broadcast.NewBridge(cfg.NATS.URL, hub, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to NATS: %v", err)
		}
		broadcaster = bridge
		logger.Info("NATS bridge established")
	}

	// Initialize services
	trackingService := services.NewTrackingService(
		vehicleRepository,
		geometryCache,
		stateStore,
		broadcaster,
		cfg.Tracking,
		logger,
		collector,
	)

	// Initialize handlers
	trackingHandler := handlers.NewTrackingHandler(trackingService, logger, cfg.Security.DeviceAuthEnabled)
	routeHandler := handlers.NewRouteHandler(routeRepository, polylineRepository, geometryCache, logger)
	wsHandler := handlers.NewWSHandler(hub, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(db, rdb.Ping))

	api := router.Group("/api")
	{
		bus := api.Group("/bus")
		{
			if cfg.Security.DeviceAuthEnabled {
				tokenService := devicetoken.NewService(cfg.Security.DeviceTokenSecret, cfg.Security.DeviceTokenExpiry)
				tokenHandler := handlers.NewTokenHandler(vehicleRepository, tokenService, int64(cfg.Security.DeviceTokenExpiry.Seconds()), logger)
				bus.POST("/token", tokenHandler.IssueToken)
				bus.POST("/update-location", middleware.DeviceAuthMiddleware(tokenService), trackingHandler.UpdateLocation)
			} else {
				bus.POST("/update-location", trackingHandler.UpdateLocation)
			}
			bus.GET("/:id/live", trackingHandler.LiveStatus)
		}

		api.GET("/routes-with-polyline", routeHandler.GetRouteWithPolyline)

		routes := api.Group("/routes")
		{
			routes.GET("/:id/stops", routeHandler.GetRouteStops)
			routes.POST("/:id/invalidate-geometry", routeHandler.InvalidateGeometry)
		}
	}

	router.GET("/ws", wsHandler.Serve)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if bridge != nil {
		logger.Info("Draining NATS bridge...")
		bridge.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Errorf("Metrics server forced to shutdown: %v", err)
		}
	}

	logger.Info("Server exited successfully")
}

// requestLogger logs every request with latency and caller details
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		entry := logger.WithFields(fields)
		status := c.Writer.Status()
		switch {
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Error("Request failed with errors")
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler reports liveness of the durable store and hot cache
func healthCheckHandler(db database.DB, redisPing func(ctx context.Context) *redis.StatusCmd) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "healthy"
		if err := db.Ping(); err != nil {
			dbStatus = "unhealthy"
		}
		cacheStatus := "healthy"
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := redisPing(ctx).Err(); err != nil {
			cacheStatus = "unhealthy"
		}

		status := http.StatusOK
		overall := "healthy"
		if dbStatus != "healthy" || cacheStatus != "healthy" {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":    overall,
			"database":  dbStatus,
			"cache":     cacheStatus,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
