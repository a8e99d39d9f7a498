package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ammar1510/rideshare/internal/config"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/events"
	"github.com/ammar1510/rideshare/internal/logger"
	"github.com/ammar1510/rideshare/internal/mailer"
)

var log = logger.New("notifier")

func fatal(format string, args ...interface{}) {
	log.Error(format, args...)
	logger.Sync()
	os.Exit(1)
}

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Warn(".env file not found, using environment variables")
	}
	cfg := config.Load()
	logger.SetMinLevel(logger.ParseLevel(cfg.LogLevel))
	defer logger.Sync()

	if len(cfg.Kafka.Brokers) == 0 {
		fatal("KAFKA_BROKERS environment variable is required")
	}
	dsn, err := cfg.DSN()
	if err != nil {
		fatal("Invalid configuration: %v", err)
	}
	if cfg.DB.Type == string(database.Memory) {
		log.Warn("The in-memory database is not shared with the server; recipients will not be found")
	}

	db, err := database.NewDatabase(database.DatabaseType(cfg.DB.Type), dsn)
	if err != nil {
		fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var m mailer.Mailer = mailer.LogMailer{}
	if cfg.SMTP.Addr != "" {
		m = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Addr:     cfg.SMTP.Addr,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		log.Info("Sending mail through %s", cfg.SMTP.Addr)
	} else {
		log.Info("SMTP_ADDR is empty, e-mails are only logged")
	}
	notifier := mailer.NewNotifier(db, m, cfg.AppBaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic, cfg.Kafka.GroupID)
	defer consumer.Close()

	log.Info("Consuming %s as group %s", cfg.Kafka.NotificationTopic, cfg.Kafka.GroupID)
	if err := consumer.Run(ctx, notifier.Handle); err != nil {
		fatal("Consumer stopped: %v", err)
	}
	log.Info("Notifier exited properly")
}
