package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/pkg/trace"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/util"
)

// Enqueuer is the uniform stage-chaining capability: stage N hands work to
// stage N+1 through it, never through nested callbacks. The caller
// guarantees that enqueues with colliding job ids collapse into one job.
type Enqueuer interface {
	EnqueueStage(ctx context.Context, stage string, payload any, jobID string) error
}

// Publisher publishes stage jobs to the pipeline exchange.
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewPublisher(url string, deduper *util.Deduper, logger *zap.Logger) (*Publisher, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:    conn,
		channel: ch,
		deduper: deduper,
		logger:  logger,
	}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected checks if the publisher connection is still alive
func (p *Publisher) IsConnected() bool {
	if p.conn == nil || p.channel == nil {
		return false
	}
	if p.conn.IsClosed() {
		return false
	}
	return true
}

// EnqueueStage publishes one stage job keyed by its deterministic job id.
// Re-enqueuing an id the deduper has already seen is a no-op, which is what
// makes crash-retried fan-out safe: already-dispatched jobs collapse.
func (p *Publisher) EnqueueStage(ctx context.Context, stage string, payload any, jobID string) error {
	if p.deduper != nil && !p.deduper.AcquireOnce(ctx, jobID) {
		p.logger.Debug("Skipping enqueue of duplicate job",
			zap.String("stage", stage),
			zap.String("job_id", jobID),
		)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", stage, err)
	}

	headers := amqp091.Table{}
	if id := trace.FromContext(ctx); id != "" {
		headers[trace.HeaderName] = id
	}

	return p.channel.PublishWithContext(
		ctx,
		ExchangeName,
		StageRoutingKey(stage),
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			MessageId:    jobID,
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
		},
	)
}
