package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/provider"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/circuitbreaker"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/mq"
)

// FetchThreadHandler 拉取规范化线程并转交 triage
type FetchThreadHandler struct {
	provider provider.MailChangeProvider
	breaker  *circuitbreaker.CircuitBreaker
	enqueuer mq.Enqueuer
	logger   *zap.Logger
}

func NewFetchThreadHandler(p provider.MailChangeProvider, breaker *circuitbreaker.CircuitBreaker, enqueuer mq.Enqueuer, logger *zap.Logger) *FetchThreadHandler {
	return &FetchThreadHandler{provider: p, breaker: breaker, enqueuer: enqueuer, logger: logger}
}

func (h *FetchThreadHandler) Handle(ctx context.Context, job *mq.Job) error {
	var p mqcontracts.FetchThreadPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal FetchThreadPayload: %w", err)
	}

	var thread *mail.NormalizedThread
	err := h.breaker.Execute(func() error {
		var err error
		thread, err = h.provider.GetThread(ctx, p.MailboxID, p.ThreadID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch thread %s: %w", p.ThreadID, err)
	}
	if thread == nil {
		// Triage maps the empty thread to needs_review downstream.
		thread = &mail.NormalizedThread{ID: p.ThreadID}
	}

	jobID := mqcontracts.MakeJobID(mqcontracts.StageTriage, p.TenantID, p.MailboxID, p.ThreadID, p.TriggeringMessageID)
	payload := mqcontracts.TriagePayload{ThreadRef: p.ThreadRef, Thread: *thread}
	if err := h.enqueuer.EnqueueStage(ctx, string(mqcontracts.StageTriage), payload, jobID); err != nil {
		return fmt.Errorf("failed to enqueue triage: %w", err)
	}

	h.logger.Info("Thread fetched",
		zap.String("tenant_id", p.TenantID),
		zap.String("thread_id", p.ThreadID),
		zap.Int("messages", len(thread.Messages)),
	)
	return nil
}
