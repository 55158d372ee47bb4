package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/worksheet-grader/internal/answerkey"
	"github.com/noah-isme/worksheet-grader/internal/config"
	"github.com/noah-isme/worksheet-grader/internal/database"
	"github.com/noah-isme/worksheet-grader/internal/handler"
	"github.com/noah-isme/worksheet-grader/internal/middleware"
	"github.com/noah-isme/worksheet-grader/internal/observability"
	"github.com/noah-isme/worksheet-grader/internal/pipeline"
	"github.com/noah-isme/worksheet-grader/internal/repository"
	"github.com/noah-isme/worksheet-grader/internal/router"
	"github.com/noah-isme/worksheet-grader/internal/service"
	"github.com/noah-isme/worksheet-grader/pkg/ai"
	cloud "github.com/noah-isme/worksheet-grader/pkg/cloudinary"
	"github.com/noah-isme/worksheet-grader/pkg/localstore"
	"github.com/noah-isme/worksheet-grader/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observability.RegisterMetrics()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var cache service.ExtractionCache
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		cache = service.NewRedisExtractionCache(redisClient, cfg.ExtractionCacheTTL, logger)
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	} else {
		logger.Warn().Msg("redis url not set, extraction cache disabled")
	}

	broker := service.NewProgressBroker(nil, cfg.EventsSubject, logger)
	if cfg.NATSURL != "" {
		natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
		broker = service.NewProgressBroker(natsConn, cfg.EventsSubject, logger)
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return fmt.Errorf("nats %s", natsConn.Status())
			}
			return nil
		}
	}
	broker.Start(ctx)

	storage, err := newStorage(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create image storage: %v", err)
	}

	index, err := answerkey.Load(cfg.AnswerKeyPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn().Str("path", cfg.AnswerKeyPath).Msg("answer key not found, every run falls back to the judge")
		index = answerkey.NewIndex()
	case err != nil:
		log.Fatalf("failed to load answer key: %v", err)
	default:
		logger.Info().Str("path", cfg.AnswerKeyPath).Int("worksheets", index.WorksheetCount()).Msg("answer key loaded")
	}

	extractionModel, closeExtraction, err := ai.NewGenerator(ctx, providerConfig(cfg, cfg.AIModel, logger))
	if err != nil {
		log.Fatalf("failed to create extraction model: %v", err)
	}
	defer closeExtraction()

	judgeModel := extractionModel
	if cfg.JudgeModel != "" && cfg.JudgeModel != cfg.AIModel {
		var closeJudge func() error
		judgeModel, closeJudge, err = ai.NewGenerator(ctx, providerConfig(cfg, cfg.JudgeModel, logger))
		if err != nil {
			log.Fatalf("failed to create judge model: %v", err)
		}
		defer closeJudge()
	}

	extractionLimiter := ratelimit.New(cfg.ExtractionRPM, cfg.LimitWindow, ratelimit.WithName("extraction"), ratelimit.WithLogger(logger))
	judgeLimiter := ratelimit.New(cfg.JudgeRPM, cfg.LimitWindow, ratelimit.WithName("judge"), ratelimit.WithLogger(logger))

	validate := validator.New(validator.WithRequiredStructEnabled())

	resultRepo := repository.NewWorksheetResultRepository(db)
	errorLogRepo := repository.NewErrorLogRepository(db)
	recorder := service.NewResultRecorder(resultRepo, errorLogRepo, extractionModel.Model(), logger)

	grader := pipeline.New(pipeline.Dependencies{
		Storage:   storage,
		Extractor: service.NewModelExtractor(extractionModel, extractionLimiter, cache, logger),
		Judge:     service.NewModelJudge(judgeModel, judgeLimiter, logger),
		AnswerKey: index,
		Persister: recorder,
		Failures:  recorder,
		Observer:  pipeline.Observers{broker},
	}, cfg.PipelineWorkers, logger)

	intake := service.NewImageIntake(cfg.UploadMaxSizeMB, cfg.UploadMaxFiles, logger)
	gradingService := service.NewGradingService(grader, intake, validate, extractionModel.Model(), logger)
	resultService := service.NewResultService(resultRepo, logger)
	errorLogService := service.NewErrorLogService(errorLogRepo, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB*cfg.UploadMaxFiles + 1) * 1024 * 1024,
		ReadTimeout:  time.Minute,
		WriteTimeout: 5 * time.Minute,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		WorksheetHandler:     handler.NewWorksheetHandler(gradingService, resultService, logger),
		AdminErrorLogHandler: handler.NewAdminErrorLogHandler(errorLogService, logger),
		ProgressHandler:      handler.NewProgressHandler(broker, logger),
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
		HealthProbes:         probes,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func providerConfig(cfg config.Config, model string, logger zerolog.Logger) ai.ProviderConfig {
	return ai.ProviderConfig{
		Provider:      cfg.AIProvider,
		Model:         model,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		Logger:        logger,
	}
}

func newStorage(cfg config.Config, logger zerolog.Logger) (pipeline.Storage, error) {
	if cfg.CloudinaryCloudName == "" {
		logger.Warn().Str("dir", cfg.StorageLocalDir).Msg("cloudinary not configured, storing images on local disk")
		return localstore.New(cfg.StorageLocalDir, logger)
	}

	return cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
