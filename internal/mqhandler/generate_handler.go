package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/service"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/mq"
)

// GenerateHandler 生成回复草稿内容并转交 writeback
type GenerateHandler struct {
	generator service.ReplyGenerator
	enqueuer  mq.Enqueuer
	logger    *zap.Logger
}

func NewGenerateHandler(generator service.ReplyGenerator, enqueuer mq.Enqueuer, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{generator: generator, enqueuer: enqueuer, logger: logger}
}

func (h *GenerateHandler) Handle(ctx context.Context, job *mq.Job) error {
	var p mqcontracts.GeneratePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal GeneratePayload: %w", err)
	}

	content, err := h.generator.Generate(ctx, &p.Thread, p.ContextDocs)
	if err != nil {
		return fmt.Errorf("failed to generate reply: %w", err)
	}

	jobID := mqcontracts.MakeJobID(mqcontracts.StageWriteback, p.TenantID, p.MailboxID, p.ThreadID, p.TriggeringMessageID)
	payload := mqcontracts.WritebackPayload{
		ThreadRef:      p.ThreadRef,
		Thread:         p.Thread,
		Decision:       p.Decision,
		Draft:          content,
		IdempotencyKey: mqcontracts.IdempotencyKey(p.TenantID, p.MailboxID, p.TriggeringMessageID),
	}
	if err := h.enqueuer.EnqueueStage(ctx, string(mqcontracts.StageWriteback), payload, jobID); err != nil {
		return fmt.Errorf("failed to enqueue writeback: %w", err)
	}

	h.logger.Info("Reply generated",
		zap.String("tenant_id", p.TenantID),
		zap.String("thread_id", p.ThreadID),
		zap.String("subject", content.Subject),
	)
	return nil
}
