package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edukita/assessment-engine/internal/config"
	"github.com/edukita/assessment-engine/internal/database"
	"github.com/edukita/assessment-engine/internal/models"
	"github.com/edukita/assessment-engine/internal/observability"
	"github.com/edukita/assessment-engine/internal/queue"
	"github.com/edukita/assessment-engine/internal/repository"
	"github.com/edukita/assessment-engine/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, cfg.AppEnv, cfg.DatabaseMaxConns)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Assignment{},
		&models.Question{},
		&models.Submission{},
		&models.Answer{},
		&models.Grade{},
		&models.Override{},
		&models.Appeal{},
		&models.AuditLogEntry{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Redis and NATS are optional: without both the engine drops domain
	// events instead of publishing them.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NatsURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NatsURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	questionRepo := repository.NewQuestionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	var events service.EventPublisher = service.NopPublisher{}
	if natsConn != nil || redisClient != nil {
		events = service.NewBrokerPublisher(natsConn, redisClient, cfg.EventChannel, logger)
	}

	pool := queue.NewWorkerPool(cfg.QueueWorkers, cfg.JobRetries, cfg.JobTimeout, logger)

	auditService := service.NewAuditService(auditRepo, pool, logger)
	recalcService := service.NewRecalculationService(questionRepo, answerRepo, submissionRepo, gradeRepo, pool, auditService, events, cfg.RecalcBatchSize, logger)

	pool.Register(service.JobKindAuditRetry, auditService.RetryHandler())
	pool.Register(service.JobKindRecalculate, recalcService.Handler())

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	pool.Start(workerCtx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "env": cfg.AppEnv})
	})
	app.Get("/metrics", observability.MetricsHandler())

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, pool, stopWorkers)
}

func waitForShutdown(app *fiber.App, pool *queue.WorkerPool, stopWorkers context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	stopWorkers()
	pool.Wait()

	log.Println("engine stopped")
}
