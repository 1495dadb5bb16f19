package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/auditseal/internal/domain"
	"github.com/persistorai/auditseal/internal/models"
)

const configColumns = `id, org_id, retention_years, retention_mode, worm_enabled,
	object_lock_supported, auto_export_payroll, auto_export_data_exports,
	is_enabled, created_at, updated_at`

// ConfigStore provides data access for audit_export_configs.
type ConfigStore struct {
	Base
}

var _ domain.ConfigStore = (*ConfigStore)(nil)

// NewConfigStore creates a ConfigStore.
func NewConfigStore(base Base) *ConfigStore {
	return &ConfigStore{Base: base}
}

func scanConfig(scan func(dest ...any) error) (*models.AuditExportConfig, error) {
	var c models.AuditExportConfig

	err := scan(&c.ID, &c.OrgID, &c.RetentionYears, &c.RetentionMode, &c.WORMEnabled,
		&c.ObjectLockSupported, &c.AutoExportPayroll, &c.AutoExportDataExports,
		&c.IsEnabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// GetConfig returns the organization's config or models.ErrConfigNotFound.
func (s *ConfigStore) GetConfig(ctx context.Context, orgID string) (*models.AuditExportConfig, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	c, err := scanConfig(tx.QueryRow(ctx,
		"SELECT "+configColumns+" FROM audit_export_configs WHERE org_id = $1", orgID).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting audit export config: %w", err)
	}

	return c, nil
}

// UpsertConfig inserts or replaces the organization's config row and
// re-enables it. There is one row per organization.
func (s *ConfigStore) UpsertConfig(ctx context.Context, cfg *models.AuditExportConfig) (*models.AuditExportConfig, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, cfg.OrgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	out, err := scanConfig(tx.QueryRow(ctx, `
		INSERT INTO audit_export_configs (org_id, retention_years, retention_mode, worm_enabled,
			object_lock_supported, auto_export_payroll, auto_export_data_exports, is_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		ON CONFLICT (org_id) DO UPDATE SET
			retention_years = EXCLUDED.retention_years,
			retention_mode = EXCLUDED.retention_mode,
			worm_enabled = EXCLUDED.worm_enabled,
			object_lock_supported = EXCLUDED.object_lock_supported,
			auto_export_payroll = EXCLUDED.auto_export_payroll,
			auto_export_data_exports = EXCLUDED.auto_export_data_exports,
			is_enabled = true,
			updated_at = now()
		RETURNING `+configColumns,
		cfg.OrgID, cfg.RetentionYears, cfg.RetentionMode, cfg.WORMEnabled,
		cfg.ObjectLockSupported, cfg.AutoExportPayroll, cfg.AutoExportDataExports,
	).Scan)
	if err != nil {
		return nil, fmt.Errorf("upserting audit export config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing config: %w", err)
	}

	return out, nil
}

// DisableConfig soft-disables the organization's config. The row is kept.
func (s *ConfigStore) DisableConfig(ctx context.Context, orgID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, orgID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	tag, err := tx.Exec(ctx,
		"UPDATE audit_export_configs SET is_enabled = false, updated_at = now() WHERE org_id = $1", orgID)
	if err != nil {
		return fmt.Errorf("disabling audit export config: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrConfigNotFound
	}

	return tx.Commit(ctx)
}
