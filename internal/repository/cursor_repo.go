package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
)

// SyncState is the per-(tenant, mailbox) cursor row. Cursors are stored as
// text-represented arbitrary-precision integers; the database side uses
// numeric casts for comparisons so precision above 2^53 survives.
type SyncState struct {
	TenantID          string
	MailboxID         string
	LastCursor        mail.Cursor
	PendingMaxCursor  mail.Cursor
	LastCorrelationID string
}

type CursorRepository struct {
	db *pgxpool.Pool
}

func NewCursorRepository(db *pgxpool.Pool) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get returns the stored sync state, or nil when the mailbox has never
// been bootstrapped.
func (r *CursorRepository) Get(ctx context.Context, tenantID, mailboxID string) (*SyncState, error) {
	query := `
		SELECT tenant_id, mailbox_id, last_cursor, COALESCE(pending_max_cursor, ''), COALESCE(last_correlation_id, '')
		FROM mailbox_sync_state
		WHERE tenant_id = $1 AND mailbox_id = $2
	`

	var s SyncState
	var last, pending string
	err := r.db.QueryRow(ctx, query, tenantID, mailboxID).Scan(
		&s.TenantID,
		&s.MailboxID,
		&last,
		&pending,
		&s.LastCorrelationID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	s.LastCursor = mail.Cursor(last)
	s.PendingMaxCursor = mail.Cursor(pending)
	return &s, nil
}

// SetCommitted stores the committed cursor and clears the pending max.
// This is the last step of a successful sync pass.
func (r *CursorRepository) SetCommitted(ctx context.Context, tenantID, mailboxID string, cursor mail.Cursor, correlationID string) error {
	query := `
		INSERT INTO mailbox_sync_state (tenant_id, mailbox_id, last_cursor, pending_max_cursor, last_correlation_id, updated_at)
		VALUES ($1, $2, $3, NULL, $4, NOW())
		ON CONFLICT (tenant_id, mailbox_id) DO UPDATE
		SET last_cursor = EXCLUDED.last_cursor,
		    pending_max_cursor = NULL,
		    last_correlation_id = EXCLUDED.last_correlation_id,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, tenantID, mailboxID, cursor.String(), correlationID)
	if err != nil {
		return fmt.Errorf("failed to commit cursor: %w", err)
	}
	return nil
}

// FoldPendingMax folds a notification cursor hint into the pending max:
// the stored value only ever grows. Distinct notifications before a sync
// pass coalesce into one pending cursor equal to their max.
func (r *CursorRepository) FoldPendingMax(ctx context.Context, tenantID, mailboxID string, hint mail.Cursor, correlationID string) error {
	query := `
		INSERT INTO mailbox_sync_state (tenant_id, mailbox_id, last_cursor, pending_max_cursor, last_correlation_id, updated_at)
		VALUES ($1, $2, '', $3, $4, NOW())
		ON CONFLICT (tenant_id, mailbox_id) DO UPDATE
		SET pending_max_cursor = CASE
		        WHEN mailbox_sync_state.pending_max_cursor IS NULL OR mailbox_sync_state.pending_max_cursor = ''
		            THEN EXCLUDED.pending_max_cursor
		        ELSE GREATEST(mailbox_sync_state.pending_max_cursor::numeric, EXCLUDED.pending_max_cursor::numeric)::text
		    END,
		    last_correlation_id = EXCLUDED.last_correlation_id,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, tenantID, mailboxID, hint.String(), correlationID)
	if err != nil {
		return fmt.Errorf("failed to fold pending cursor: %w", err)
	}
	return nil
}

// Clear removes all cursor state for the mailbox so the next sync pass
// re-bootstraps. Used after a history-expired signal.
func (r *CursorRepository) Clear(ctx context.Context, tenantID, mailboxID string) error {
	query := `DELETE FROM mailbox_sync_state WHERE tenant_id = $1 AND mailbox_id = $2`
	_, err := r.db.Exec(ctx, query, tenantID, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to clear sync state: %w", err)
	}
	return nil
}
