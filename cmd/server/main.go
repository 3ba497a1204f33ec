package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"nexus-catalog/internal/catalog"
	"nexus-catalog/internal/config"
	"nexus-catalog/internal/controller"
	"nexus-catalog/internal/descriptor"
	"nexus-catalog/internal/discovery"
	"nexus-catalog/internal/logger"
	"nexus-catalog/internal/materializer"
	"nexus-catalog/internal/middleware"
	"nexus-catalog/internal/security"
	"nexus-catalog/internal/service"
	"nexus-catalog/pkg/response"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = logger.Writer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catalog
	cache := catalog.NewResultCache(cfg.Discovery.CacheTTL)
	go cache.Start(ctx)
	defer cache.Stop()

	opts := discovery.Options{MaxSampleRecords: cfg.Discovery.MaxSampleRecords}
	manager := catalog.NewManager(materializer.Default(), opts, cache)
	defer manager.Close()

	if err := loadDescriptors(ctx, cfg.Catalog, manager); err != nil {
		logrus.WithError(err).Fatal("Failed to load source descriptors")
	}

	// Security
	var auth *security.AuthMiddleware
	if cfg.Security.EnableAuth {
		auth = security.NewAuthMiddleware(security.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTExpiration))
	}

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RPM:             cfg.Security.RateLimitPerMinute,
		Burst:           cfg.Security.RateLimitBurst,
		CleanupInterval: 5 * time.Minute,
	})
	go rateLimiter.Start(ctx.Done())

	// Controllers
	catalogService := service.NewCatalogService(manager)
	routes := controller.Routes{
		Catalog: controller.NewCatalogController(catalogService),
		Sources: controller.NewSourceController(catalogService),
		Health:  controller.NewHealthController(manager, cache, version),
		Auth:    auth,
	}

	middleware.InitMetrics()
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(logger.RequestLogger(response.CorrelationIDKey))
	router.Use(middleware.PrometheusMiddleware())
	if cfg.Security.EnableRateLimit {
		router.Use(rateLimiter.RateLimit())
	}
	routes.Register(router)

	srv := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"sources": len(manager.Names()),
			"auth":    cfg.Security.EnableAuth,
		}).Info("Starting catalog server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Server shutdown failed")
	}
}

// loadDescriptors installs every configured descriptor file. Entries may be
// glob patterns. With watching enabled the files are reloaded on change.
func loadDescriptors(ctx context.Context, cfg config.CatalogConfig, manager *catalog.Manager) error {
	var paths []string
	for _, pattern := range cfg.Descriptors {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil
	}

	if !cfg.Watch {
		for _, p := range paths {
			desc, err := descriptor.DecodeFile(p)
			if err != nil {
				return err
			}
			if _, err := manager.Put(ctx, desc); err != nil {
				return err
			}
		}
		return nil
	}

	watcher, err := catalog.NewWatcher(manager, nil)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := watcher.Add(ctx, p); err != nil {
			watcher.Close()
			return err
		}
	}
	go func() {
		defer watcher.Close()
		watcher.Run(ctx)
	}()
	return nil
}
