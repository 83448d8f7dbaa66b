package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/service"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/mq"
)

// SyncRunner is the sync engine capability this handler consumes.
type SyncRunner interface {
	Sync(ctx context.Context, tenantID, mailboxID string, commitCursor bool) (*service.SyncResult, error)
	Commit(ctx context.Context, tenantID, mailboxID string, result *service.SyncResult) error
	ClearState(ctx context.Context, tenantID, mailboxID string) error
}

// MailboxSyncHandler 同步一个邮箱并按线程扇出 fetch_thread 任务
type MailboxSyncHandler struct {
	sync          SyncRunner
	enqueuer      mq.Enqueuer
	fanOutEnabled bool
	logger        *zap.Logger
}

func NewMailboxSyncHandler(sync SyncRunner, enqueuer mq.Enqueuer, fanOutEnabled bool, logger *zap.Logger) *MailboxSyncHandler {
	return &MailboxSyncHandler{
		sync:          sync,
		enqueuer:      enqueuer,
		fanOutEnabled: fanOutEnabled,
		logger:        logger,
	}
}

func (h *MailboxSyncHandler) Handle(ctx context.Context, job *mq.Job) error {
	var p mqcontracts.MailboxSyncPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal MailboxSyncPayload: %w", err)
	}

	// Read-only pass first: the snapshot stays stable while we fan out,
	// and the cursor only moves once every thread job is enqueued.
	result, err := h.sync.Sync(ctx, p.TenantID, p.MailboxID, false)
	if err != nil {
		var resync *service.ResyncRequiredError
		if errors.As(err, &resync) {
			return h.rebootstrap(ctx, p, resync)
		}
		return err
	}

	if !h.fanOutEnabled {
		// Visibility-only mode: the sync ran and was counted, but no
		// work is dispatched and the cursor stays put.
		h.logger.Info("Fan-out disabled, sync pass not committed",
			zap.String("tenant_id", p.TenantID),
			zap.String("mailbox_id", p.MailboxID),
			zap.Int("changes", len(result.Changes)),
		)
		return nil
	}

	groups := groupByThread(result.Changes)
	threadIDs := make([]string, 0, len(groups))
	for id := range groups {
		threadIDs = append(threadIDs, id)
	}
	sort.Strings(threadIDs)

	for _, threadID := range threadIDs {
		triggering := groups[threadID]
		jobID := mqcontracts.MakeJobID(mqcontracts.StageFetchThread, p.TenantID, p.MailboxID, threadID, triggering)
		payload := mqcontracts.FetchThreadPayload{
			ThreadRef: mqcontracts.ThreadRef{
				MailboxRef:          p.MailboxRef,
				ThreadID:            threadID,
				TriggeringMessageID: triggering,
			},
		}
		if err := h.enqueuer.EnqueueStage(ctx, string(mqcontracts.StageFetchThread), payload, jobID); err != nil {
			return fmt.Errorf("failed to enqueue fetch_thread for thread %s: %w", threadID, err)
		}
	}

	if err := h.sync.Commit(ctx, p.TenantID, p.MailboxID, result); err != nil {
		return err
	}

	h.logger.Info("Mailbox sync fanned out",
		zap.String("tenant_id", p.TenantID),
		zap.String("mailbox_id", p.MailboxID),
		zap.String("mode", string(result.Mode)),
		zap.Int("threads", len(threadIDs)),
	)
	return nil
}

// rebootstrap clears cursor state and runs a committing bootstrap pass.
// History expiry is an inline repair, never a DLQ case.
func (h *MailboxSyncHandler) rebootstrap(ctx context.Context, p mqcontracts.MailboxSyncPayload, cause *service.ResyncRequiredError) error {
	h.logger.Warn("Cursor outside retention, re-bootstrapping mailbox",
		zap.String("tenant_id", p.TenantID),
		zap.String("mailbox_id", p.MailboxID),
		zap.String("expired_cursor", cause.Cursor.String()),
	)
	if err := h.sync.ClearState(ctx, p.TenantID, p.MailboxID); err != nil {
		return fmt.Errorf("failed to clear cursor state: %w", err)
	}
	if _, err := h.sync.Sync(ctx, p.TenantID, p.MailboxID, true); err != nil {
		return fmt.Errorf("failed to re-bootstrap: %w", err)
	}
	return nil
}

// groupByThread buckets changes by thread id and picks each group's
// triggering message id: the lexicographically greatest. Deterministic
// across workers and not dependent on provider timestamps.
func groupByThread(changes []mail.MailChange) map[string]string {
	groups := make(map[string]string)
	for _, c := range changes {
		if c.ThreadID == "" {
			continue
		}
		if current, ok := groups[c.ThreadID]; !ok || c.MessageID > current {
			groups[c.ThreadID] = c.MessageID
		}
	}
	return groups
}
