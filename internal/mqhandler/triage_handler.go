package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/service"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/mq"
)

// TriageHandler 对线程做规则分诊；ignore 在此终止流水线
type TriageHandler struct {
	triage   *service.TriageEngine
	enqueuer mq.Enqueuer
	logger   *zap.Logger
}

func NewTriageHandler(triage *service.TriageEngine, enqueuer mq.Enqueuer, logger *zap.Logger) *TriageHandler {
	return &TriageHandler{triage: triage, enqueuer: enqueuer, logger: logger}
}

func (h *TriageHandler) Handle(ctx context.Context, job *mq.Job) error {
	var p mqcontracts.TriagePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal TriagePayload: %w", err)
	}

	var decision mail.TriageDecision
	if len(p.Thread.Messages) == 0 {
		// The provider handed back nothing usable. Not an error: a
		// human should look at whatever this thread is.
		decision = mail.TriageDecision{Action: mail.ActionNeedsReview, Reason: mail.ReasonProviderError}
	} else {
		decision = h.triage.Classify(&p.Thread)
	}

	h.logger.Info("Thread triaged",
		zap.String("tenant_id", p.TenantID),
		zap.String("thread_id", p.ThreadID),
		zap.String("action", string(decision.Action)),
		zap.String("reason", string(decision.Reason)),
	)

	if decision.Action == mail.ActionIgnore {
		return nil
	}

	jobID := mqcontracts.MakeJobID(mqcontracts.StageRetrieve, p.TenantID, p.MailboxID, p.ThreadID, p.TriggeringMessageID)
	payload := mqcontracts.RetrievePayload{ThreadRef: p.ThreadRef, Thread: p.Thread, Decision: decision}
	if err := h.enqueuer.EnqueueStage(ctx, string(mqcontracts.StageRetrieve), payload, jobID); err != nil {
		return fmt.Errorf("failed to enqueue retrieve: %w", err)
	}
	return nil
}
