// Command mailer drains the notification queue and delivers queued emails.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Aeroer-Live/Note.Lab/internal/config"
	"github.com/Aeroer-Live/Note.Lab/internal/logging"
	"github.com/Aeroer-Live/Note.Lab/internal/queue"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	// The mailer needs no database, so only the broker settings are read.
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = config.EnvDevelopment
	}
	logger, err := logging.New(env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	mq := config.LoadMailConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &queue.MailConsumer{URL: mq.AMQPURL, Queue: mq.Queue, Outbox: mq.Outbox, Log: logger}
	logger.Info("mailer started", zap.String("queue", mq.Queue), zap.String("outbox", mq.Outbox))
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("mailer stopped", zap.Error(err))
	}
	logger.Info("mailer stopped")
}
