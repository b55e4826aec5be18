package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"smartmonitor/internal/notify"
	"smartmonitor/pkg/config"
	"smartmonitor/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("Alert notifier stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.RabbitMQ.Enabled() {
		return fmt.Errorf("%w: RABBITMQ_HOST", config.ErrMissingEnv)
	}

	logger, logFile, err := config.InitLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifiers := notify.Multi{notify.LogNotifier{Logger: logger}}
	if cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.AlertWebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, tg)
	}

	conn, err := config.DialRabbitMQ(ctx, cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer conn.Close()

	consumer, err := config.NewConsumer(conn, cfg.AlertQueue)
	if err != nil {
		return err
	}
	defer consumer.Close()

	handler := &notify.QueueHandler{Notifier: notifiers, Logger: logger}
	logger.WithFields(log.Fields{
		"queue":     cfg.AlertQueue,
		"notifiers": len(notifiers),
		"version":   utils.Version().String(),
	}).Info("Alert notifier started, waiting for messages...")

	return consumer.Consume(ctx, func(body []byte) error {
		return handler.Handle(ctx, body)
	})
}
