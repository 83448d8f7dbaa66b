package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/repository"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/trace"
)

// ReceiptStore persists one row per received push notification.
type ReceiptStore interface {
	Insert(ctx context.Context, receipt *repository.NotificationReceipt) error
}

// PendingCursorStore folds a notification's cursor hint into the
// mailbox's pending max, so a later sync commit cannot move backwards
// past it.
type PendingCursorStore interface {
	FoldPendingMax(ctx context.Context, tenantID, mailboxID string, hint mail.Cursor, correlationID string) error
}

// NotificationHandler 处理外部推送通知：落库回执，折叠游标提示，触发同步
type NotificationHandler struct {
	receipts ReceiptStore
	cursors  PendingCursorStore
	enqueuer mq.Enqueuer
	logger   *zap.Logger
}

func NewNotificationHandler(receipts ReceiptStore, cursors PendingCursorStore, enqueuer mq.Enqueuer, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{receipts: receipts, cursors: cursors, enqueuer: enqueuer, logger: logger}
}

func (h *NotificationHandler) Handle(ctx context.Context, job *mq.Job) error {
	var p mqcontracts.NotificationPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal NotificationPayload: %w", err)
	}

	correlationID := trace.FromContext(ctx)
	if correlationID == "" {
		correlationID = trace.NewCorrelationID()
		ctx = trace.WithContext(ctx, correlationID)
	}
	receivedAt := p.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	receipt := &repository.NotificationReceipt{
		TenantID:      p.TenantID,
		MailboxID:     p.MailboxID,
		CorrelationID: correlationID,
		CursorHint:    p.CursorHint,
		ReceivedAt:    receivedAt,
	}
	if err := h.receipts.Insert(ctx, receipt); err != nil {
		return fmt.Errorf("failed to persist notification receipt: %w", err)
	}

	if p.CursorHint != "" {
		if err := h.cursors.FoldPendingMax(ctx, p.TenantID, p.MailboxID, mail.Cursor(p.CursorHint), correlationID); err != nil {
			return fmt.Errorf("failed to fold cursor hint: %w", err)
		}
	}

	// One sync job per (mailbox, hint): notifications with the same hint
	// collapse, distinct hints each get their pass.
	jobID := mqcontracts.MakeJobID(mqcontracts.StageMailboxSync, p.TenantID, p.MailboxID, "", p.CursorHint)
	syncPayload := mqcontracts.MailboxSyncPayload{MailboxRef: p.MailboxRef}
	if err := h.enqueuer.EnqueueStage(ctx, string(mqcontracts.StageMailboxSync), syncPayload, jobID); err != nil {
		return fmt.Errorf("failed to enqueue mailbox_sync: %w", err)
	}

	h.logger.Info("Notification ingested",
		zap.String("tenant_id", p.TenantID),
		zap.String("mailbox_id", p.MailboxID),
		zap.String("cursor_hint", p.CursorHint),
	)
	return nil
}
