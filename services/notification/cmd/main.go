package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/storefront/pkg/config"
	"github.com/sakashimaa/storefront/pkg/db"
	"github.com/sakashimaa/storefront/pkg/utils"
	"github.com/sakashimaa/storefront/services/notification/internal/infrastructure/email"
	"github.com/sakashimaa/storefront/services/notification/internal/infrastructure/sms"
	"github.com/sakashimaa/storefront/services/notification/internal/service"
	"github.com/sakashimaa/storefront/services/notification/transport/kafka"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := utils.InitTracer(ctx, cfg.TracerConfig("notification-service"))
	if err != nil {
		log.Fatalf("Error starting telemetry: %v", err)
	}

	logger, err := config.NewLogger(cfg.LoggerConfig("notification-service"))
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	version, _, err := db.Migrate(cfg.Postgres.URL, cfg.Postgres.MigrationsPath, db.Up)
	if err != nil {
		log.Fatalf("error applying migrations: %v", err)
	}
	log.Printf("Migrations applied ✅ version=%d\n", version)

	pool, err := db.NewPostgresDB(cfg.Postgres.URL, db.DefaultPoolOptions())
	if err != nil {
		log.Fatalf("error creating postgres db: %v", err)
	}

	notificationService := service.NewNotificationService(
		email.NewSMTPSender(cfg.SMTP, logger),
		sms.NewSender(cfg.Twilio, logger),
		logger,
		pool,
	)

	consumer := kafka.NewConsumer(notificationService, logger)

	log.Println("Notification consumer started 🔥")
	if err := consumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID); err != nil {
		log.Printf("Consumer stopped with error: %v\n", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error closing telemetry: %v\n", err)
	} else {
		log.Printf("Closed telemetry successfully")
	}

	pool.Close()
	log.Println("✅ Postgres pool closed")
}
