package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/domain"
	"github.com/persistorai/auditseal/internal/models"
)

const keyColumns = `id, org_id, algorithm, public_key, fingerprint, version,
	is_active, created_at, rotated_at, archived_at`

// KeyStore provides data access for audit_signing_keys. Rows are never deleted.
type KeyStore struct {
	Base
}

var _ domain.KeyStore = (*KeyStore)(nil)

// NewKeyStore creates a KeyStore.
func NewKeyStore(base Base) *KeyStore {
	return &KeyStore{Base: base}
}

// GenerateFunc produces the public material of a new keypair. It runs while
// the org's rotation lock is held.
type GenerateFunc = func(ctx context.Context) (*models.NewSigningKey, error)

func scanKey(scan func(dest ...any) error) (*models.SigningKey, error) {
	var k models.SigningKey

	err := scan(&k.ID, &k.OrgID, &k.Algorithm, &k.PublicKey, &k.Fingerprint, &k.Version,
		&k.IsActive, &k.CreatedAt, &k.RotatedAt, &k.ArchivedAt)
	if err != nil {
		return nil, err
	}

	return &k, nil
}

// GetActiveKey returns the org's active key or models.ErrNoActiveKey.
func (s *KeyStore) GetActiveKey(ctx context.Context, orgID string) (*models.SigningKey, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	k, err := scanKey(tx.QueryRow(ctx,
		"SELECT "+keyColumns+" FROM audit_signing_keys WHERE org_id = $1 AND is_active", orgID).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNoActiveKey
	}
	if err != nil {
		return nil, fmt.Errorf("getting active signing key: %w", err)
	}

	return k, nil
}

// GetKey returns one key by id, active or not.
func (s *KeyStore) GetKey(ctx context.Context, orgID, keyID string) (*models.SigningKey, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	k, err := scanKey(tx.QueryRow(ctx,
		"SELECT "+keyColumns+" FROM audit_signing_keys WHERE org_id = $1 AND id = $2", orgID, keyID).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting signing key: %w", err)
	}

	return k, nil
}

// ListKeys returns all keys of the org, newest version first.
func (s *KeyStore) ListKeys(ctx context.Context, orgID string) ([]models.SigningKey, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	rows, err := tx.Query(ctx,
		"SELECT "+keyColumns+" FROM audit_signing_keys WHERE org_id = $1 ORDER BY version DESC", orgID)
	if err != nil {
		return nil, fmt.Errorf("listing signing keys: %w", err)
	}
	defer rows.Close()

	keys := []models.SigningKey{}
	for rows.Next() {
		k, err := scanKey(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning signing key: %w", err)
		}
		keys = append(keys, *k)
	}

	return keys, rows.Err()
}

// RotateKey retires the active key (if any) and records a new active key
// with the next version. The whole rotation, including generate, runs under
// a transaction-scoped advisory lock on the org, so concurrent rotations
// across processes are serialised.
func (s *KeyStore) RotateKey(ctx context.Context, orgID string, generate GenerateFunc) (*models.SigningKey, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext('audit_signing_keys:' || $1))", orgID); err != nil {
		return nil, fmt.Errorf("acquiring rotation lock: %w", err)
	}

	var current int
	if err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM audit_signing_keys WHERE org_id = $1", orgID,
	).Scan(&current); err != nil {
		return nil, fmt.Errorf("reading current key version: %w", err)
	}

	material, err := generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE audit_signing_keys SET is_active = false, rotated_at = now() WHERE org_id = $1 AND is_active",
		orgID,
	); err != nil {
		return nil, fmt.Errorf("retiring active key: %w", err)
	}

	k, err := scanKey(tx.QueryRow(ctx, `
		INSERT INTO audit_signing_keys (org_id, algorithm, public_key, fingerprint, version, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING `+keyColumns,
		orgID, models.SignatureAlgorithm, material.PublicKey, material.Fingerprint, current+1,
	).Scan)
	if err != nil {
		return nil, fmt.Errorf("inserting signing key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing key rotation: %w", err)
	}

	s.Log.WithFields(logrus.Fields{
		"org_id":  orgID,
		"key_id":  k.ID,
		"version": k.Version,
	}).Info("signing key rotated")

	return k, nil
}

// ArchiveKey marks a retired key archived. The active key cannot be archived.
func (s *KeyStore) ArchiveKey(ctx context.Context, orgID, keyID string) (*models.SigningKey, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	k, err := scanKey(tx.QueryRow(ctx,
		"SELECT "+keyColumns+" FROM audit_signing_keys WHERE org_id = $1 AND id = $2 FOR UPDATE", orgID, keyID).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking signing key: %w", err)
	}

	switch {
	case k.IsActive:
		return nil, models.ErrKeyStillActive
	case k.ArchivedAt != nil:
		return nil, models.ErrKeyAlreadyArchived
	}

	k, err = scanKey(tx.QueryRow(ctx,
		"UPDATE audit_signing_keys SET archived_at = now() WHERE id = $1 RETURNING "+keyColumns, keyID).Scan)
	if err != nil {
		return nil, fmt.Errorf("archiving signing key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing key archive: %w", err)
	}

	return k, nil
}
