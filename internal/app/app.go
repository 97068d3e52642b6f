// Package app wires configuration, clients and modules into the HTTP server.
package app

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gemkit/server/internal/module/imagegen"
	"github.com/gemkit/server/internal/module/storage"
	"github.com/gemkit/server/internal/module/studio"
	studiocache "github.com/gemkit/server/internal/module/studio/cache"
	sharedcache "github.com/gemkit/server/internal/shared/cache"
	"github.com/gemkit/server/internal/shared/config"
	"github.com/gemkit/server/internal/shared/logger"
	"github.com/gemkit/server/internal/shared/metrics"
	"github.com/gemkit/server/internal/shared/middleware"
)

// App represents the application.
type App struct {
	config    *config.Config
	router    *gin.Engine
	logger    *logger.Logger
	zapLogger *zap.Logger
	redis     redis.UniversalClient
	metrics   *metrics.Metrics

	runManager *Lifecycle
}

// Lifecycle groups the components that need an explicit stop.
type Lifecycle struct {
	Manager *studio.Manager
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    log,
		zapLogger: zapLog,
		metrics:   metrics.New(),
	}

	// Redis is optional; without it the result cache is disabled.
	if cfg.Cache.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Cache)
		if err != nil {
			log.Warn("redis connection failed, result cache disabled", logger.Err(err))
		} else {
			app.redis = redisClient
		}
	}

	store, err := storage.New(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	gen, err := imagegen.New(&cfg.Gemini, log)
	if err != nil {
		return nil, fmt.Errorf("init generation client: %w", err)
	}

	var results *studiocache.ResultCache
	if app.redis != nil {
		results = studiocache.New(app.redis, &studiocache.Config{
			Prefix: "gen:",
			TTL:    cfg.Cache.TTL,
		})
	}

	service := studio.NewService(store, gen, results, app.metrics, zapLog)
	orchestrator := studio.NewOrchestrator(service, service, zapLog)
	manager := studio.NewManager(orchestrator, app.metrics, cfg.Pipeline, zapLog)
	manager.Start()

	app.runManager = &Lifecycle{Manager: manager}

	app.router = app.setupRouter()

	handler := studio.NewHandler(service, manager)
	handler.RegisterRoutes(app.router.Group("/api"))

	return app, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		a.metrics.Registry(),
		promhttp.HandlerOpts{},
	)))

	return r
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop shuts the application down, waiting for in-flight runs.
func (a *App) Stop() {
	a.runManager.Manager.Stop()

	if a.redis != nil {
		if err := sharedcache.Close(a.redis); err != nil {
			a.logger.Warn("close redis", logger.Err(err))
		}
	}

	_ = a.zapLogger.Sync()
}
