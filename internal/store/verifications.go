package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/persistorai/auditseal/internal/domain"
	"github.com/persistorai/auditseal/internal/models"
)

// VerificationStore provides data access for audit_verification_logs.
// The table is append-only: there is no update or delete here, and the
// database rejects both.
type VerificationStore struct {
	Base
}

var _ domain.VerificationStore = (*VerificationStore)(nil)

// NewVerificationStore creates a VerificationStore.
func NewVerificationStore(base Base) *VerificationStore {
	return &VerificationStore{Base: base}
}

// InsertVerification appends one log row and fills in its id and time.
func (s *VerificationStore) InsertVerification(ctx context.Context, l *models.VerificationLog) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	details, err := json.Marshal(l.ErrorDetails)
	if err != nil {
		return fmt.Errorf("marshaling error details: %w", err)
	}

	tx, err := s.beginTx(ctx, l.OrgID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	err = tx.QueryRow(ctx, `
		INSERT INTO audit_verification_logs (package_id, org_id, is_valid, checks_performed,
			checks_passed, checks_failed, error_details, verified_by, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, verified_at`,
		l.PackageID, l.OrgID, l.IsValid, l.ChecksPerformed,
		l.ChecksPassed, l.ChecksFailed, details, nullable(l.VerifiedBy), l.Source,
	).Scan(&l.ID, &l.VerifiedAt)
	if err != nil {
		return fmt.Errorf("inserting verification log: %w", err)
	}

	return tx.Commit(ctx)
}

// ListVerifications returns a package's verification history, newest first.
func (s *VerificationStore) ListVerifications(ctx context.Context, orgID, packageID string, limit int) ([]models.VerificationLog, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	rows, err := tx.Query(ctx, `
		SELECT id, package_id, org_id, is_valid, checks_performed, checks_passed,
			checks_failed, error_details, verified_by, source, verified_at
		FROM audit_verification_logs
		WHERE org_id = $1 AND package_id = $2
		ORDER BY verified_at DESC
		LIMIT $3`,
		orgID, packageID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing verification logs: %w", err)
	}
	defer rows.Close()

	logs := []models.VerificationLog{}
	for rows.Next() {
		var (
			l          models.VerificationLog
			details    []byte
			verifiedBy *string
		)

		if err := rows.Scan(&l.ID, &l.PackageID, &l.OrgID, &l.IsValid, &l.ChecksPerformed, &l.ChecksPassed,
			&l.ChecksFailed, &details, &verifiedBy, &l.Source, &l.VerifiedAt); err != nil {
			return nil, fmt.Errorf("scanning verification log: %w", err)
		}

		if err := json.Unmarshal(details, &l.ErrorDetails); err != nil {
			s.Log.WithError(err).WithField("verification_id", l.ID).Warn("failed to unmarshal error details")
		}

		l.VerifiedBy = deref(verifiedBy)
		logs = append(logs, l)
	}

	return logs, rows.Err()
}
