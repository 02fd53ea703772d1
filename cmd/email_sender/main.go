package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pricetracker/internal/config"
	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/models"
	"pricetracker/internal/notifier"
	"pricetracker/internal/rabbitmq"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// The email sender drains the mail queue published by the tracker and
// delivers each message over SMTP. Without SMTP credentials it logs
// the messages instead, which keeps local setups working.
func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting email sender", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
	}()

	rabbitMQClient, err := rabbitmq.New(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("failed to connect rabbitMQ", sl.Err(err))
		os.Exit(1)
	}
	defer rabbitMQClient.Close()

	if err := rabbitMQClient.DeclareQueue(cfg.RabbitMQ.QueueName); err != nil {
		log.Error("failed to declare mail queue", sl.Err(err))
		os.Exit(1)
	}

	var sender notifier.Sender
	if cfg.Mail.SMTP.Username == "" || cfg.Mail.SMTP.Password == "" {
		log.Warn("smtp credentials missing, messages will only be logged")
		sender = notifier.NewLog(log)
	} else {
		sender = notifier.NewSMTP(
			cfg.Mail.SMTP.Host,
			cfg.Mail.SMTP.Port,
			cfg.Mail.SMTP.Username,
			cfg.Mail.SMTP.Password,
			cfg.Mail.SMTP.From,
		)
	}

	consumer := rabbitmq.NewConsumer(
		rabbitMQClient.Channel,
		log,
		cfg.RabbitMQ.QueueName,
		cfg.RabbitMQ.WorkerPoolSize,
	)

	err = consumer.Consume(ctx, func(ctx context.Context, body []byte) error {
		var msg models.EmailMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			// A job that cannot be decoded will never succeed; drop it
			// instead of requeueing it forever.
			log.Error("dropping undecodable mail job", sl.Err(fmt.Errorf("decode mail job: %w", err)))
			return nil
		}

		if err := sender.Send(ctx, msg); err != nil {
			return err
		}

		log.Info("mail delivered", slog.String("to", msg.To), slog.String("subject", msg.Subject))

		return nil
	})
	if err != nil {
		log.Error("failed to start consumer", sl.Err(err))
		os.Exit(1)
	}

	<-ctx.Done()

	log.Info("email sender stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
