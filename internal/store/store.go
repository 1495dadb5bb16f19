// Package store provides focused, single-concern data access stores for the
// audit export tables.
//
// Each store owns one table family (configs, keys, packages, verification
// logs, packs) and embeds shared helpers (Pool, logger) via the Base struct.
// Every org-scoped query runs inside a transaction that sets app.org_id, so
// the row level security policies installed by the migrations apply.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/dbpool"
)

const defaultQueryTimeout = 30 * time.Second

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// setOrg sets the organization context for RLS policies within a transaction.
func setOrg(ctx context.Context, tx pgx.Tx, orgID string) error {
	if _, err := uuid.Parse(orgID); err != nil {
		return fmt.Errorf("invalid org ID format: %w", err)
	}

	_, err := tx.Exec(ctx, "SELECT set_config('app.org_id', $1, true)", orgID)
	if err != nil {
		return fmt.Errorf("setting org context: %w", err)
	}

	return nil
}

// beginTx starts a read-write transaction and sets the org context.
func (b *Base) beginTx(ctx context.Context, orgID string) (pgx.Tx, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	if err := setOrg(ctx, tx, orgID); err != nil {
		tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on setup failure.

		return nil, err
	}

	return tx, nil
}

// beginReadTx starts a read-only transaction and sets the org context.
func (b *Base) beginReadTx(ctx context.Context, orgID string) (pgx.Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}

	if err := setOrg(ctx, tx, orgID); err != nil {
		tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on setup failure.

		return nil, err
	}

	return tx, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
