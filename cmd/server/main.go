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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/app"
	"github.com/tripdesk/booking-backend/internal/config"
	"github.com/tripdesk/booking-backend/internal/handlers"
	"github.com/tripdesk/booking-backend/internal/metrics"
	"github.com/tripdesk/booking-backend/internal/middleware"
	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/internal/services"
	"github.com/tripdesk/booking-backend/internal/tracing"
	"github.com/tripdesk/booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize services: %v", err)
	}

	cronService := services.NewCronService(application.Saga, cfg.Reconcile, logger)
	if cfg.Reconcile.Enabled {
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
	} else {
		logger.Info("Scheduled reconciliation disabled")
	}

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)

	bookingHandler := handlers.NewBookingHandler(application.Saga, logger)
	webhookHandler := handlers.NewPaymentWebhookHandler(application.Saga, logger)
	adminHandler := handlers.NewAdminHandler(cronService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(metrics.Middleware)
	router.Use(tracing.Middleware())

	router.GET("/health", handlers.HealthCheck(application.Store, cfg.Store.Driver, version))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Authenticated by the HMAC signature, not a JWT
		v1.POST("/payments/webhook", webhookHandler.Handle)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(jwtService, logger))
		bookingHandler.RegisterRoutes(protected,
			middleware.RequireRole(models.RoleSuperAdmin),
			middleware.RequireRole(models.RoleSuperAdmin, models.RoleCompanyAdmin, models.RoleHR),
		)

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleSuperAdmin))
		{
			admin.GET("/reconcile", adminHandler.GetReconcileStatus)
			admin.POST("/reconcile/run", adminHandler.RunReconcile)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // supplier retries can take a while
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if cfg.Reconcile.Enabled {
		cronService.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	application.Close(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}

	logger.Info("Server exited successfully")
}
