package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/provider"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/repository"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/metrics"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/trace"
)

// CursorStore persists per-mailbox cursor state.
type CursorStore interface {
	Get(ctx context.Context, tenantID, mailboxID string) (*repository.SyncState, error)
	SetCommitted(ctx context.Context, tenantID, mailboxID string, cursor mail.Cursor, correlationID string) error
	Clear(ctx context.Context, tenantID, mailboxID string) error
}

// SyncRunStore appends per-run audit rows.
type SyncRunStore interface {
	Insert(ctx context.Context, run *repository.SyncRun) error
}

// ResyncRequiredError says the stored cursor fell outside the provider's
// retention window. The caller must clear cursor state and re-bootstrap;
// this is never a DLQ case.
type ResyncRequiredError struct {
	TenantID  string
	MailboxID string
	Cursor    mail.Cursor
}

func (e *ResyncRequiredError) Error() string {
	return fmt.Sprintf("mailbox %s/%s requires full resync, cursor %s outside retention",
		e.TenantID, e.MailboxID, e.Cursor)
}

// SyncResult is one sync pass over a mailbox.
type SyncResult struct {
	Mode        mail.SyncMode
	StartCursor mail.Cursor
	NextCursor  mail.Cursor
	Changes     []mail.MailChange
}

// SyncEngine advances and reads the per-mailbox change cursor.
type SyncEngine struct {
	provider provider.MailChangeProvider
	cursors  CursorStore
	runs     SyncRunStore
	logger   *zap.Logger
}

func NewSyncEngine(p provider.MailChangeProvider, cursors CursorStore, runs SyncRunStore, logger *zap.Logger) *SyncEngine {
	return &SyncEngine{
		provider: p,
		cursors:  cursors,
		runs:     runs,
		logger:   logger,
	}
}

// Sync performs one pass. With commitCursor=false it is a pure read: the
// store is untouched and two calls against an unchanged store return
// identical results. With commitCursor=true the coalesced max cursor is
// persisted, as the final step, together with an audit row.
func (e *SyncEngine) Sync(ctx context.Context, tenantID, mailboxID string, commitCursor bool) (*SyncResult, error) {
	state, err := e.cursors.Get(ctx, tenantID, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor state: %w", err)
	}

	if state == nil || state.LastCursor.IsZero() {
		return e.bootstrap(ctx, tenantID, mailboxID, state, commitCursor)
	}
	return e.incremental(ctx, tenantID, mailboxID, state, commitCursor)
}

// Commit persists the pass result after the caller has dispatched all
// work derived from it. A crash before this point re-runs the pass; the
// re-dispatched jobs collapse on their deterministic ids.
func (e *SyncEngine) Commit(ctx context.Context, tenantID, mailboxID string, result *SyncResult) error {
	state, err := e.cursors.Get(ctx, tenantID, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to read cursor state: %w", err)
	}
	return e.commit(ctx, tenantID, mailboxID, state, result)
}

// ClearState drops cursor state so the next pass re-bootstraps.
func (e *SyncEngine) ClearState(ctx context.Context, tenantID, mailboxID string) error {
	return e.cursors.Clear(ctx, tenantID, mailboxID)
}

func (e *SyncEngine) bootstrap(ctx context.Context, tenantID, mailboxID string, state *repository.SyncState, commitCursor bool) (*SyncResult, error) {
	baseline, err := e.provider.GetBaselineCursor(ctx, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch baseline cursor: %w", err)
	}

	result := &SyncResult{
		Mode:       mail.SyncModeBootstrap,
		NextCursor: baseline,
	}

	if commitCursor {
		if err := e.commit(ctx, tenantID, mailboxID, state, result); err != nil {
			return nil, err
		}
	}

	e.logger.Info("Mailbox sync pass",
		zap.String("tenant_id", tenantID),
		zap.String("mailbox_id", mailboxID),
		zap.String("mode", string(result.Mode)),
		zap.String("next_cursor", result.NextCursor.String()),
		zap.Bool("committed", commitCursor),
	)
	return result, nil
}

func (e *SyncEngine) incremental(ctx context.Context, tenantID, mailboxID string, state *repository.SyncState, commitCursor bool) (*SyncResult, error) {
	listed, err := e.provider.ListChanges(ctx, mailboxID, state.LastCursor)
	if err != nil {
		var expired *provider.HistoryExpiredError
		if errors.As(err, &expired) {
			metrics.SyncResyncRequired.Inc()
			return nil, &ResyncRequiredError{
				TenantID:  tenantID,
				MailboxID: mailboxID,
				Cursor:    state.LastCursor,
			}
		}
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}

	next := listed.NextCursor
	if next.IsZero() {
		next = state.LastCursor
	}

	result := &SyncResult{
		Mode:        mail.SyncModeIncremental,
		StartCursor: state.LastCursor,
		NextCursor:  next,
		Changes:     dedupeChanges(listed.Changes),
	}
	metrics.SyncChangesFetched.WithLabelValues(string(mail.SyncModeIncremental)).Add(float64(len(result.Changes)))

	if commitCursor {
		if err := e.commit(ctx, tenantID, mailboxID, state, result); err != nil {
			return nil, err
		}
	}

	e.logger.Info("Mailbox sync pass",
		zap.String("tenant_id", tenantID),
		zap.String("mailbox_id", mailboxID),
		zap.String("mode", string(result.Mode)),
		zap.String("from_cursor", result.StartCursor.String()),
		zap.String("next_cursor", result.NextCursor.String()),
		zap.Int("changes", len(result.Changes)),
		zap.Bool("committed", commitCursor),
	)
	return result, nil
}

// commit persists max(next cursor, pending notification max) and appends
// the audit row. Mutating the store is the very last step of a pass.
func (e *SyncEngine) commit(ctx context.Context, tenantID, mailboxID string, state *repository.SyncState, result *SyncResult) error {
	committed := result.NextCursor
	if state != nil {
		committed = mail.MaxCursor(committed, state.PendingMaxCursor)
	}

	correlationID := trace.FromContext(ctx)
	run := &repository.SyncRun{
		TenantID:      tenantID,
		MailboxID:     mailboxID,
		CorrelationID: correlationID,
		FromCursor:    result.StartCursor,
		ToCursor:      committed,
		FetchedCount:  len(result.Changes),
		Status:        "succeeded",
	}
	if err := e.runs.Insert(ctx, run); err != nil {
		// A lost audit row is log-worthy but must not fail the pass.
		e.logger.Warn("Failed to insert sync run audit row",
			zap.String("tenant_id", tenantID),
			zap.String("mailbox_id", mailboxID),
			zap.Error(err),
		)
	}

	// The cursor moves last: a crash anywhere earlier re-runs the pass.
	if err := e.cursors.SetCommitted(ctx, tenantID, mailboxID, committed, correlationID); err != nil {
		return fmt.Errorf("failed to commit cursor: %w", err)
	}
	return nil
}

// dedupeChanges drops repeated reports of the same logical change while
// preserving first-seen order.
func dedupeChanges(changes []mail.MailChange) []mail.MailChange {
	if len(changes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(changes))
	out := make([]mail.MailChange, 0, len(changes))
	for _, c := range changes {
		key := c.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
