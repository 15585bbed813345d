package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/sitiograph/sitio-profile-api/api/swagger"
	"github.com/sitiograph/sitio-profile-api/internal/handler"
	"github.com/sitiograph/sitio-profile-api/internal/middleware"
	"github.com/sitiograph/sitio-profile-api/internal/models"
	"github.com/sitiograph/sitio-profile-api/internal/repository"
	"github.com/sitiograph/sitio-profile-api/internal/service"
	"github.com/sitiograph/sitio-profile-api/pkg/cache"
	"github.com/sitiograph/sitio-profile-api/pkg/config"
	"github.com/sitiograph/sitio-profile-api/pkg/database"
	"github.com/sitiograph/sitio-profile-api/pkg/logger"
	corsmiddleware "github.com/sitiograph/sitio-profile-api/pkg/middleware/cors"
	reqidmiddleware "github.com/sitiograph/sitio-profile-api/pkg/middleware/requestid"
	"github.com/sitiograph/sitio-profile-api/pkg/storage"
)

// @title Sitio Profile API
// @version 1.0.0
// @description Sitio profile data management with review workflow, analytics and comparisons
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	// Redis is optional; analytics fall back to uncached reads when absent.
	var cacheSvc *service.CacheService
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Aggregation.CacheTTL, logr, true)
	}

	sitioRepo := repository.NewSitioRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	changeRepo := repository.NewChangeRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)

	auditSvc := service.NewAuditService(auditRepo, logr)
	authSvc := service.NewAuthService(userRepo, auditSvc, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "sitio-profile-api",
	})

	registry := service.NewAdapterRegistry(
		service.NewSitioAdapter(sitioRepo),
		service.NewProjectAdapter(projectRepo),
	)
	changeSvc := service.NewChangeRequestService(changeRepo, registry, auditSvc, metricsSvc, logr)

	aggSvc := service.NewAggregationService(sitioRepo, cacheSvc, metricsSvc, service.AggregationConfig{
		Enabled:          cfg.Aggregation.Enabled,
		CacheTTL:         cfg.Aggregation.CacheTTL,
		PovertyThreshold: cfg.Aggregation.PovertyThresholdDaily,
	}, logr)
	comparisonSvc := service.NewComparisonService(sitioRepo, aggSvc, service.ComparisonConfig{
		MaxSitios: cfg.Comparison.MaxSitios,
		MaxYears:  cfg.Comparison.MaxYears,
	}, logr)

	reviewSvc := service.NewReviewService(changeSvc, registry, aggSvc, logr)
	sitioSvc := service.NewSitioService(sitioRepo, changeSvc, aggSvc, auditSvc, logr)
	projectSvc := service.NewProjectService(projectRepo, changeSvc, auditSvc, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewReportStore(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
		}
		signer := storage.NewTokenSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(aggSvc, store, signer, auditSvc, logr, service.ReportConfig{
			WorkerConcurrency: cfg.Reports.WorkerConcurrency,
			WorkerRetries:     cfg.Reports.WorkerRetries,
		})
		reportSvc.Start(ctx)
		defer reportSvc.Stop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	sitioHandler := handler.NewSitioHandler(sitioSvc, reviewSvc)
	projectHandler := handler.NewProjectHandler(projectSvc, reviewSvc)
	changeHandler := handler.NewChangeRequestHandler(reviewSvc, changeSvc)
	aggHandler := handler.NewAggregationHandler(aggSvc, sitioSvc)
	comparisonHandler := handler.NewComparisonHandler(comparisonSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	systemHandler := handler.NewSystemHandler(metricsSvc, auditSvc)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	if cfg.Reports.Enabled {
		// Download tokens are self-authenticating.
		api.GET("/reports/download/:token", reportHandler.Download)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.GET("/auth/me", authHandler.Me)

		authed.GET("/sitios", sitioHandler.List)
		authed.GET("/sitios/:id", sitioHandler.Get)
		authed.POST("/sitios", middleware.RequireRoles(models.RoleAdmin), sitioHandler.Create)
		authed.PATCH("/sitios/:id", middleware.RequireRoles(models.RoleAdmin), sitioHandler.Update)
		authed.DELETE("/sitios/:id", middleware.RequireRoles(models.RoleAdmin), sitioHandler.Delete)

		authed.GET("/projects", projectHandler.List)
		authed.GET("/projects/:id", projectHandler.Get)
		authed.POST("/projects", middleware.RequireRoles(models.RoleAdmin), projectHandler.Create)
		authed.PATCH("/projects/:id", middleware.RequireRoles(models.RoleAdmin), projectHandler.Update)
		authed.DELETE("/projects/:id", middleware.RequireRoles(models.RoleAdmin), projectHandler.Delete)

		if cfg.Workflow.Enabled {
			review := middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin)
			authed.POST("/change-requests", changeHandler.Submit)
			authed.GET("/change-requests", changeHandler.List)
			authed.GET("/change-requests/counts", changeHandler.Counts)
			authed.GET("/change-requests/unseen", changeHandler.Unseen)
			authed.POST("/change-requests/mark-seen", changeHandler.MarkSeen)
			authed.GET("/change-requests/:id", changeHandler.Get)
			authed.POST("/change-requests/:id/approve", review, changeHandler.Approve)
			authed.POST("/change-requests/:id/reject", review, changeHandler.Reject)
			authed.POST("/change-requests/:id/request-revision", review, changeHandler.RequestRevision)
			authed.POST("/change-requests/:id/resubmit", changeHandler.Resubmit)
			authed.POST("/change-requests/:id/resolve", review, changeHandler.Resolve)
		}

		if cfg.Aggregation.Enabled {
			authed.GET("/analytics/overview", aggHandler.Overview)
			authed.GET("/analytics/rollups", aggHandler.Rollups)
			authed.GET("/analytics/bounds", aggHandler.Bounds)
		}

		if cfg.Comparison.Enabled {
			authed.POST("/comparisons", comparisonHandler.Compare)
			authed.GET("/comparisons/shared", comparisonHandler.Shared)
		}

		if cfg.Reports.Enabled {
			authed.POST("/reports", reportHandler.Generate)
			authed.GET("/reports/:id", reportHandler.Status)
		}

		admin := authed.Group("/system", middleware.RequireRoles(models.RoleAdmin))
		admin.GET("/metrics", systemHandler.Metrics)
		admin.GET("/audit-logs", systemHandler.AuditLogs)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
