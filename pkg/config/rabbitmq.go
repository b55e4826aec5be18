package config

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

const (
	rabbitMaxRetries = 10
	rabbitRetryDelay = 3 * time.Second
)

// DialRabbitMQ connects to the broker, retrying while the broker starts.
func DialRabbitMQ(ctx context.Context, cfg RabbitMQConfig) (*amqp.Connection, error) {
	var err error
	for i := 0; i < rabbitMaxRetries; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(cfg.URL())
		if err == nil {
			log.WithField("host", cfg.Host).Info("Connected to RabbitMQ")
			return conn, nil
		}

		if i < rabbitMaxRetries-1 {
			log.WithFields(log.Fields{
				"attempt":  i + 1,
				"max":      rabbitMaxRetries,
				"retry_in": rabbitRetryDelay.String(),
				"error":    err.Error(),
			}).Warn("Failed to connect to RabbitMQ, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(rabbitRetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", rabbitMaxRetries, err)
}

// declareQueue declares a durable queue.
func declareQueue(ch amqpChannel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

// PurgeQueue removes all messages from a queue without deleting it.
func PurgeQueue(conn *amqp.Connection, queueName string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueuePurge(queueName, false); err != nil {
		return fmt.Errorf("failed to purge queue %s: %w", queueName, err)
	}
	log.WithField("queue", queueName).Info("Purged RabbitMQ queue")
	return nil
}
