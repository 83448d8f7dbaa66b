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

// RetrieveHandler is the retrieval seam. The default retriever forwards
// an empty context list; a real retrieval backend slots in behind the
// ContextRetriever interface.
type RetrieveHandler struct {
	retriever service.ContextRetriever
	enqueuer  mq.Enqueuer
	logger    *zap.Logger
}

func NewRetrieveHandler(retriever service.ContextRetriever, enqueuer mq.Enqueuer, logger *zap.Logger) *RetrieveHandler {
	return &RetrieveHandler{retriever: retriever, enqueuer: enqueuer, logger: logger}
}

func (h *RetrieveHandler) Handle(ctx context.Context, job *mq.Job) error {
	var p mqcontracts.RetrievePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal RetrievePayload: %w", err)
	}

	docs, err := h.retriever.Retrieve(ctx, &p.Thread)
	if err != nil {
		return fmt.Errorf("failed to retrieve context: %w", err)
	}

	jobID := mqcontracts.MakeJobID(mqcontracts.StageGenerate, p.TenantID, p.MailboxID, p.ThreadID, p.TriggeringMessageID)
	payload := mqcontracts.GeneratePayload{
		ThreadRef:   p.ThreadRef,
		Thread:      p.Thread,
		Decision:    p.Decision,
		ContextDocs: docs,
	}
	if err := h.enqueuer.EnqueueStage(ctx, string(mqcontracts.StageGenerate), payload, jobID); err != nil {
		return fmt.Errorf("failed to enqueue generate: %w", err)
	}

	h.logger.Debug("Context retrieved",
		zap.String("thread_id", p.ThreadID),
		zap.Int("docs", len(docs)),
	)
	return nil
}
