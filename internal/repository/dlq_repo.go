package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DlqItem is one permanently failed stage execution. Payload is a
// size-capped clone of the original job payload; once ReplayedAt is set
// the item no longer appears in listings.
type DlqItem struct {
	ID           int64
	Stage        string
	TenantID     string
	MailboxID    string
	ThreadID     string
	MessageID    string
	ReasonCode   string
	ErrorKind    string
	ErrorMessage string
	Payload      json.RawMessage
	ReplayCount  int
	ReplayedAt   *time.Time
	CreatedAt    time.Time
}

// DlqFilter narrows a listing.
type DlqFilter struct {
	Limit    int
	TenantID string
	Stage    string
}

type DlqRepository struct {
	db *pgxpool.Pool
}

func NewDlqRepository(db *pgxpool.Pool) *DlqRepository {
	return &DlqRepository{db: db}
}

// Enqueue persists one dead-lettered item.
func (r *DlqRepository) Enqueue(ctx context.Context, item *DlqItem) error {
	query := `
		INSERT INTO dlq_items (stage, tenant_id, mailbox_id, thread_id, message_id, reason_code, error_kind, error_message, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		item.Stage,
		item.TenantID,
		item.MailboxID,
		item.ThreadID,
		item.MessageID,
		item.ReasonCode,
		item.ErrorKind,
		item.ErrorMessage,
		item.Payload,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue dlq item: %w", err)
	}
	return nil
}

// List returns unreplayed items oldest-first, optionally filtered by
// tenant and stage.
func (r *DlqRepository) List(ctx context.Context, filter DlqFilter) ([]*DlqItem, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, stage, tenant_id, mailbox_id, thread_id, message_id, reason_code, error_kind, error_message, payload, replay_count, replayed_at, created_at
		FROM dlq_items
		WHERE replayed_at IS NULL
		AND unreplayable = FALSE
		AND ($2 = '' OR tenant_id = $2)
		AND ($3 = '' OR stage = $3)
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit, filter.TenantID, filter.Stage)
	if err != nil {
		return nil, fmt.Errorf("failed to list dlq items: %w", err)
	}
	defer rows.Close()

	var items []*DlqItem
	for rows.Next() {
		var item DlqItem
		err := rows.Scan(
			&item.ID,
			&item.Stage,
			&item.TenantID,
			&item.MailboxID,
			&item.ThreadID,
			&item.MessageID,
			&item.ReasonCode,
			&item.ErrorKind,
			&item.ErrorMessage,
			&item.Payload,
			&item.ReplayCount,
			&item.ReplayedAt,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dlq item: %w", err)
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

// MarkUnreplayable flags an item no replay can ever re-inject, e.g. a
// truncated payload; it disappears from future listings.
func (r *DlqRepository) MarkUnreplayable(ctx context.Context, id int64) error {
	query := `
		UPDATE dlq_items
		SET unreplayable = TRUE
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark dlq item unreplayable: %w", err)
	}
	return nil
}

// MarkReplayed stamps the item and bumps its replay count; it disappears
// from future listings.
func (r *DlqRepository) MarkReplayed(ctx context.Context, id int64) error {
	query := `
		UPDATE dlq_items
		SET replayed_at = NOW(), replay_count = replay_count + 1
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark dlq item replayed: %w", err)
	}
	return nil
}
