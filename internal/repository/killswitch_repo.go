package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GlobalControls is the store-level global enable state per control.
type GlobalControls struct {
	WritebackEnabled bool
	LabelsEnabled    bool
}

// TenantControls are per-tenant partial overrides; nil means "no override,
// inherit global".
type TenantControls struct {
	WritebackEnabled *bool
	LabelsEnabled    *bool
}

type KillSwitchRepository struct {
	db *pgxpool.Pool
}

func NewKillSwitchRepository(db *pgxpool.Pool) *KillSwitchRepository {
	return &KillSwitchRepository{db: db}
}

// GetGlobalControls reads the single global controls row. A missing row
// means everything is enabled at the store level.
func (r *KillSwitchRepository) GetGlobalControls(ctx context.Context) (GlobalControls, error) {
	query := `
		SELECT writeback_enabled, labels_enabled
		FROM killswitch_global
		LIMIT 1
	`
	var c GlobalControls
	err := r.db.QueryRow(ctx, query).Scan(&c.WritebackEnabled, &c.LabelsEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GlobalControls{WritebackEnabled: true, LabelsEnabled: true}, nil
		}
		return GlobalControls{}, fmt.Errorf("failed to get global controls: %w", err)
	}
	return c, nil
}

// GetTenantControls reads a tenant's overrides. A missing row means no
// overrides.
func (r *KillSwitchRepository) GetTenantControls(ctx context.Context, tenantID string) (TenantControls, error) {
	query := `
		SELECT writeback_enabled, labels_enabled
		FROM killswitch_tenant
		WHERE tenant_id = $1
	`
	var c TenantControls
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&c.WritebackEnabled, &c.LabelsEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantControls{}, nil
		}
		return TenantControls{}, fmt.Errorf("failed to get tenant controls: %w", err)
	}
	return c, nil
}
