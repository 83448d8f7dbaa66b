package mq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/pkg/metrics"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/trace"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/util"
)

// UnrecoverableError signals that a stage execution failed permanently and
// has already been captured into the DLQ; the consumer must not requeue.
type UnrecoverableError struct {
	Stage  string
	JobID  string
	Reason string
	Msg    string
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("unrecoverable %s failure (%s): %s", e.Stage, e.Reason, e.Msg)
}

// Consumer consumes one stage queue and drives a JobHandler through the
// dedup gate, the begin-processing gate and the bounded retry policy.
type Consumer struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	queue      amqp091.Queue
	retryQueue amqp091.Queue
	stage      string
	handler    JobHandler

	jobStore     JobStateStore
	retryCounter *util.RetryCounter
	backoff      util.BackoffPolicy
	maxAttempts  int64
	logger       *zap.Logger
}

// NewConsumer creates a consumer bound to one stage queue.
func NewConsumer(
	url, stage string,
	jobStore JobStateStore,
	retryCounter *util.RetryCounter,
	backoff util.BackoffPolicy,
	maxAttempts int,
	logger *zap.Logger,
) (*Consumer, error) {
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

	q, err := ch.QueueDeclare(
		StageQueueName(stage),
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, StageRoutingKey(stage), ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	// Delay queue: retried deliveries wait out their backoff here instead
	// of stalling the consume loop, then dead-letter back onto the stage.
	retryQ, err := ch.QueueDeclare(
		StageRetryQueueName(stage),
		true,
		false,
		false,
		false,
		amqp091.Table{
			"x-dead-letter-exchange":    ExchangeName,
			"x-dead-letter-routing-key": StageRoutingKey(stage),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare retry queue: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("stage", stage),
		zap.String("queue", q.Name),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:         conn,
		channel:      ch,
		queue:        q,
		retryQueue:   retryQ,
		stage:        stage,
		jobStore:     jobStore,
		retryCounter: retryCounter,
		backoff:      backoff,
		maxAttempts:  int64(maxAttempts),
		logger:       logger,
	}, nil
}

func (c *Consumer) SetHandler(h JobHandler) {
	c.handler = h
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages. This method blocks and should
// be called in a goroutine.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"worker",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("stage", c.stage),
		zap.String("queue", c.queue.Name),
	)

	for msg := range deliveries {
		c.consumeOne(msg)
	}

	return nil
}

// consumeOne guarantees every delivery is acked or nacked, panics included.
func (c *Consumer) consumeOne(msg amqp091.Delivery) {
	// Deliveries without a correlation header get a fresh id, so every
	// sync run and receipt row downstream is traceable.
	id, _ := msg.Headers[trace.HeaderName].(string)
	if id == "" {
		id = trace.NewCorrelationID()
	}
	ctx := trace.WithContext(context.Background(), id)

	job := &Job{
		ID:      msg.MessageId,
		Stage:   c.stage,
		Payload: msg.Body,
	}
	log := logWith(c.logger, ctx).With(
		zap.String("stage", c.stage),
		zap.String("job_id", job.ID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			if err := msg.Nack(false, true); err != nil {
				log.Error("Failed to nack message after panic", zap.Error(err))
			}
		}
	}()

	// Single-flight gate: only one worker may move the job into
	// processing; everyone else observes "already processing"/"already
	// done" and drops the delivery.
	proceed, err := c.jobStore.BeginProcessing(ctx, job.ID, c.stage)
	if err != nil {
		log.Error("Failed to begin processing", zap.Error(err))
		c.requeueAfterBackoff(ctx, msg, job, util.Classify(err), log)
		return
	}
	if !proceed {
		log.Debug("Job already processing or done, dropping delivery")
		c.ack(msg, log)
		return
	}

	start := time.Now()
	handlerErr := c.handler(ctx, job)

	switch {
	case handlerErr == nil:
		metrics.RecordStageLatency(c.stage, "success", time.Since(start))
		if err := c.jobStore.MarkSucceeded(ctx, job.ID); err != nil {
			log.Error("Failed to mark job succeeded", zap.Error(err))
		}
		_ = c.retryCounter.Reset(ctx, job.ID)
		c.ack(msg, log)

	case job.Discarded() || isUnrecoverable(handlerErr):
		// Permanent failure already captured by the DLQ wrapper.
		metrics.RecordStageLatency(c.stage, "permanent", time.Since(start))
		log.Error("Job discarded permanently", zap.Error(handlerErr))
		if err := c.jobStore.MarkDiscarded(ctx, job.ID); err != nil {
			log.Error("Failed to mark job discarded", zap.Error(err))
		}
		_ = c.retryCounter.Reset(ctx, job.ID)
		c.ack(msg, log)

	default:
		metrics.RecordStageLatency(c.stage, "transient", time.Since(start))
		log.Warn("Handler error, transient", zap.Error(handlerErr))
		c.requeueAfterBackoff(ctx, msg, job, util.Classify(handlerErr), log)
	}
}

// requeueAfterBackoff counts the attempt and either parks the delivery
// on the delay queue for its backoff or fails the job terminally once
// the attempt budget is spent.
func (c *Consumer) requeueAfterBackoff(ctx context.Context, msg amqp091.Delivery, job *Job, class util.Classification, log *zap.Logger) {
	attempt, err := c.retryCounter.IncrementAndGet(ctx, job.ID)
	if err != nil {
		log.Warn("Failed to count retry attempt, assuming first", zap.Error(err))
		attempt = 1
	}

	if !util.ShouldRetry(attempt, c.maxAttempts, class) {
		log.Error("Transient retries exhausted, failing job terminally",
			zap.Int64("attempt", attempt),
			zap.Int64("max_attempts", c.maxAttempts),
		)
		if err := c.jobStore.MarkFailed(ctx, job.ID); err != nil {
			log.Error("Failed to mark job failed", zap.Error(err))
		}
		_ = c.retryCounter.Reset(ctx, job.ID)
		c.ack(msg, log)
		return
	}

	if err := c.jobStore.MarkFailed(ctx, job.ID); err != nil {
		log.Error("Failed to mark job failed", zap.Error(err))
	}

	delay := c.backoff.Delay(attempt)
	log.Info("Scheduling delayed retry",
		zap.Int64("attempt", attempt),
		zap.Duration("delay", delay),
	)

	if err := c.publishRetry(ctx, msg, delay); err != nil {
		// Fall back to an immediate broker requeue.
		log.Error("Failed to schedule delayed retry, requeueing inline", zap.Error(err))
		if err := msg.Nack(false, true); err != nil {
			log.Error("Failed to nack message", zap.Error(err))
		}
		return
	}
	c.ack(msg, log)
}

// publishRetry parks a copy of the delivery on the delay queue via the
// default exchange; the per-message TTL dead-letters it back onto the
// stage routing key when the backoff elapses.
func (c *Consumer) publishRetry(ctx context.Context, msg amqp091.Delivery, delay time.Duration) error {
	return c.channel.PublishWithContext(
		ctx,
		"",
		c.retryQueue.Name,
		false,
		false,
		amqp091.Publishing{
			ContentType:  msg.ContentType,
			MessageId:    msg.MessageId,
			Body:         msg.Body,
			Headers:      msg.Headers,
			DeliveryMode: amqp091.Persistent,
			Expiration:   retryExpiration(delay),
		},
	)
}

// retryExpiration renders a backoff as the broker's per-message TTL,
// which is milliseconds in string form.
func retryExpiration(delay time.Duration) string {
	ms := delay.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatInt(ms, 10)
}

func (c *Consumer) ack(msg amqp091.Delivery, log *zap.Logger) {
	if err := msg.Ack(false); err != nil {
		log.Error("Failed to ack message", zap.Error(err))
	}
}

func isUnrecoverable(err error) bool {
	var unrec *UnrecoverableError
	return errors.As(err, &unrec)
}

func logWith(l *zap.Logger, ctx context.Context) *zap.Logger {
	if id := trace.FromContext(ctx); id != "" {
		return l.With(zap.String("correlation_id", id))
	}
	return l
}
