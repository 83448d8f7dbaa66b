package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
)

// SyncRun is the per-run audit row. Written only on committing passes so
// read-only sync stays pure.
type SyncRun struct {
	ID            int64
	TenantID      string
	MailboxID     string
	CorrelationID string
	FromCursor    mail.Cursor
	ToCursor      mail.Cursor
	FetchedCount  int
	Status        string // succeeded, resync_required
	CreatedAt     time.Time
}

type SyncRunRepository struct {
	db *pgxpool.Pool
}

func NewSyncRunRepository(db *pgxpool.Pool) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Insert appends one audit row.
func (r *SyncRunRepository) Insert(ctx context.Context, run *SyncRun) error {
	query := `
		INSERT INTO sync_runs (tenant_id, mailbox_id, correlation_id, from_cursor, to_cursor, fetched_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		run.TenantID,
		run.MailboxID,
		run.CorrelationID,
		run.FromCursor.String(),
		run.ToCursor.String(),
		run.FetchedCount,
		run.Status,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}
