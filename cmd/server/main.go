package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/botkit-ai/nlu-engine/internal/adapter/cache"
	"github.com/botkit-ai/nlu-engine/internal/adapter/http/fiber/handlers"
	"github.com/botkit-ai/nlu-engine/internal/adapter/http/fiber/middleware"
	"github.com/botkit-ai/nlu-engine/internal/adapter/langserver"
	"github.com/botkit-ai/nlu-engine/internal/adapter/queue"
	"github.com/botkit-ai/nlu-engine/internal/adapter/systement"
	"github.com/botkit-ai/nlu-engine/internal/nlu/engine"
	"github.com/botkit-ai/nlu-engine/internal/nlu/langdetect"
	"github.com/botkit-ai/nlu-engine/internal/ports"
	"github.com/botkit-ai/nlu-engine/internal/service/health"
	"github.com/botkit-ai/nlu-engine/internal/service/prediction"
	"github.com/botkit-ai/nlu-engine/internal/service/training"
	"github.com/botkit-ai/nlu-engine/pkg/config"

	// Import metrics to register them
	_ "github.com/botkit-ai/nlu-engine/internal/observability/telemetry"
)

const (
	serviceName    = "nlu-engine"
	serviceVersion = "v1.4.0"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// 2. Initialize Logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting NLU engine",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	// 3. Initialize Step Cache (redis with in-memory fallback)
	var stepCache ports.Cache
	if cfg.Redis.URL != "" {
		stepCache, err = cache.NewRedisCache(cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
	} else {
		logger.Warn("No redis configured, using in-memory step cache")
		stepCache = cache.NewLocalCache(time.Minute, logger)
	}
	defer stepCache.Close()
	if !cfg.NLU.StepCaching {
		logger.Info("Training step caching disabled")
		stepCache = nil
	}

	// 4. Initialize Session Store
	var sessions ports.SessionStore
	if cfg.Redis.URL != "" {
		store, err := cache.NewRedisSessionStore(cfg.Redis.URL, cfg.NLU.SessionTTL, cfg.NLU.LockTTL, logger)
		if err != nil {
			logger.Fatal("Failed to create session store", zap.Error(err))
		}
		defer store.Close()
		sessions = store
	} else {
		sessions = cache.NewLocalSessionStore()
	}

	// 5. Initialize Training Queue (NATS, optional)
	var trainingQueue ports.TrainingQueue
	if cfg.NATS.URL != "" {
		trainingQueue, err = queue.NewNATSTrainingQueue(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer trainingQueue.Close()
	} else {
		logger.Warn("No NATS configured, training progress will not be published")
	}

	// 6. Initialize Language Provider
	provider := langserver.New(cfg.LangServer, logger)
	initCtx, cancelInit := context.WithTimeout(context.Background(), 60*time.Second)
	if err := provider.Initialize(initCtx); err != nil {
		cancelInit()
		logger.Fatal("Failed to initialize language provider", zap.Error(err))
	}
	cancelInit()
	logger.Info("Language provider ready",
		zap.Strings("languages", provider.Languages()),
		zap.Int("dimensions", provider.Dimensions()),
	)

	// 7. Initialize Language Detector
	detector, err := langdetect.New(cfg.NLU.Languages)
	if err != nil {
		logger.Fatal("Failed to build language detector", zap.Error(err))
	}

	// 8. Initialize System Entity Extractor
	systemEntities := systement.NewClient(cfg.SystemEntity, logger)

	// 9. Initialize Engine and Services (Business Logic Layer)
	nluEngine := engine.New(provider, stepCache, logger)
	trainingService := training.NewService(nluEngine, sessions, trainingQueue, logger)
	predictionService := prediction.NewService(nluEngine, detector, systemEntities, logger)

	// 10. Initialize Health Service
	healthService := health.NewService(&health.Config{
		Version:  serviceVersion,
		Provider: provider,
		Cache:    stepCache,
		NatsURL:  cfg.NATS.URL,
	}, logger)

	// 11. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	// Global Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(middleware.NewCORS(cfg.HTTP))
	app.Use(middleware.CircuitBreaker(logger))

	// Health Check Endpoints
	healthHandler := health.NewFiberHandler(healthService)
	healthHandler.RegisterRoutes(app)

	// Metrics endpoint for Prometheus
	if cfg.Prometheus.Enabled {
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
			handler(c.Context())
			return nil
		})
	}

	// API v1 Routes
	v1 := app.Group("/v1")

	trainHandler := handlers.NewTrainHandler(trainingService, predictionService, cfg.NLU.TrainSeed, logger)
	v1.Post("/train", trainHandler.Train)
	v1.Get("/train/:botID/:lang", trainHandler.Status)
	v1.Delete("/train/:botID/:lang", trainHandler.Cancel)

	predictHandler := handlers.NewPredictHandler(predictionService, logger)
	v1.Post("/predict", predictHandler.Predict)

	// 12. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 13. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

// newLogger builds the zap logger from the logging config.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, err
		}
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
