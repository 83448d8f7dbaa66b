package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName is the topic exchange all pipeline stages publish to.
	ExchangeName = "pipeline"

	// routingPrefix namespaces stage routing keys, e.g. "pipeline.triage".
	routingPrefix = "pipeline."
)

// NewConnection creates a new RabbitMQ connection.
func NewConnection(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the pipeline exchange.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// StageRoutingKey returns the routing key for a stage name.
func StageRoutingKey(stage string) string {
	return routingPrefix + stage
}

// StageQueueName returns the durable queue name for a stage name.
func StageQueueName(stage string) string {
	return routingPrefix + stage + ".q"
}

// StageRetryQueueName returns the delay queue for a stage. Messages
// parked there dead-letter back onto the stage routing key once their
// per-message TTL expires.
func StageRetryQueueName(stage string) string {
	return routingPrefix + stage + ".retry.q"
}
