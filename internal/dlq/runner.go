// Package dlq wraps stage execution with permanent-failure capture.
// Transient errors pass through untouched for the queue's retry/backoff;
// permanent ones discard the job, persist a dead-letter item and raise an
// unrecoverable signal.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/internal/repository"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/metrics"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/util"
)

// Store persists dead-lettered items.
type Store interface {
	Enqueue(ctx context.Context, item *repository.DlqItem) error
}

// payloadContext pulls the identifying fields every stage payload embeds.
type payloadContext struct {
	TenantID            string `json:"tenant_id"`
	MailboxID           string `json:"mailbox_id"`
	ThreadID            string `json:"thread_id"`
	TriggeringMessageID string `json:"triggering_message_id"`
}

// Runner executes stage handlers under DLQ capture.
type Runner struct {
	store      Store
	payloadCap int
	logger     *zap.Logger
}

func NewRunner(store Store, payloadCap int, logger *zap.Logger) *Runner {
	if payloadCap <= 0 {
		payloadCap = 64 * 1024
	}
	return &Runner{store: store, payloadCap: payloadCap, logger: logger}
}

// RunStage executes run. On error it classifies Transient vs Permanent:
// Transient errors return untouched; Permanent ones persist a DlqItem,
// discard the job and return an UnrecoverableError carrying the message.
func (r *Runner) RunStage(ctx context.Context, job *mq.Job, run func(ctx context.Context) error) error {
	err := run(ctx)
	if err == nil {
		return nil
	}

	class := util.Classify(err)
	if !class.Permanent() {
		// Let the queue's native retry/backoff handle it.
		return err
	}

	var pc payloadContext
	// Best effort: a payload broken enough to fail this unmarshal is the
	// very thing being dead-lettered.
	_ = json.Unmarshal(job.Payload, &pc)

	item := &repository.DlqItem{
		Stage:        job.Stage,
		TenantID:     pc.TenantID,
		MailboxID:    pc.MailboxID,
		ThreadID:     pc.ThreadID,
		MessageID:    pc.TriggeringMessageID,
		ReasonCode:   class.Reason,
		ErrorKind:    "permanent",
		ErrorMessage: err.Error(),
		Payload:      clonePayload(job.Payload, r.payloadCap),
	}

	if enqErr := r.store.Enqueue(ctx, item); enqErr != nil {
		// Capture failed: surface a transient error so the delivery is
		// retried and capture gets another chance.
		r.logger.Error("Failed to persist DLQ item",
			zap.String("stage", job.Stage),
			zap.String("job_id", job.ID),
			zap.Error(enqErr),
		)
		return fmt.Errorf("failed to capture permanent failure: %w", enqErr)
	}

	job.Discard()
	metrics.DLQCaptured.WithLabelValues(job.Stage, class.Reason).Inc()
	r.logger.Error("Stage failed permanently, captured to DLQ",
		zap.String("stage", job.Stage),
		zap.String("job_id", job.ID),
		zap.String("reason", class.Reason),
		zap.Error(err),
	)

	return &mq.UnrecoverableError{
		Stage:  job.Stage,
		JobID:  job.ID,
		Reason: class.Reason,
		Msg:    err.Error(),
	}
}

// clonePayload copies the payload so the stored item never aliases queue
// buffers, capping the size. Oversized payloads are replaced by a marker
// object; such items are not replayable but remain inspectable.
func clonePayload(payload json.RawMessage, limit int) json.RawMessage {
	if len(payload) <= limit {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out
	}
	marker, _ := json.Marshal(map[string]any{
		"payload_truncated": true,
		"original_size":     len(payload),
		"prefix":            string(payload[:limit]),
	})
	return marker
}
