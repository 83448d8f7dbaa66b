package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationReceipt records one provider push notification. Every
// notification persists its own receipt even when several coalesce into a
// single sync pass.
type NotificationReceipt struct {
	ID            int64
	TenantID      string
	MailboxID     string
	CorrelationID string
	CursorHint    string
	ReceivedAt    time.Time
}

type ReceiptRepository struct {
	db *pgxpool.Pool
}

func NewReceiptRepository(db *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) Insert(ctx context.Context, receipt *NotificationReceipt) error {
	query := `
		INSERT INTO notification_receipts (tenant_id, mailbox_id, correlation_id, cursor_hint, received_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		receipt.TenantID,
		receipt.MailboxID,
		receipt.CorrelationID,
		receipt.CursorHint,
		receipt.ReceivedAt,
	).Scan(&receipt.ID)
	if err != nil {
		return fmt.Errorf("failed to insert notification receipt: %w", err)
	}
	return nil
}
