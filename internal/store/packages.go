package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/domain"
	"github.com/persistorai/auditseal/internal/models"
)

const packageColumns = `id, org_id, data_export_id, payroll_job_id, audit_pack_id, status,
	merkle_root, manifest_hash, file_count, signature_algorithm, signature_value,
	signing_key_id, signed_at, timestamp_token, timestamped_at, timestamp_authority,
	retention_until, object_lock_enabled, object_lock_mode, s3_key, file_size_bytes,
	error_message, created_by, created_at, updated_at, completed_at`

// PackageStore provides data access for audit_export_packages and the
// append-only audit_export_files table.
type PackageStore struct {
	Base
}

var _ domain.PackageStore = (*PackageStore)(nil)

// NewPackageStore creates a PackageStore.
func NewPackageStore(base Base) *PackageStore {
	return &PackageStore{Base: base}
}

func scanPackage(scan func(dest ...any) error) (*models.Package, error) {
	var (
		p                                    models.Package
		dataExportID, payrollJobID, packID   *string
		merkleRoot, manifestHash             *string
		sigAlg, sigValue, keyID, tsAuthority *string
		lockMode, s3Key, errMsg, createdBy   *string
	)

	err := scan(&p.ID, &p.OrgID, &dataExportID, &payrollJobID, &packID, &p.Status,
		&merkleRoot, &manifestHash, &p.FileCount, &sigAlg, &sigValue,
		&keyID, &p.SignedAt, &p.TimestampToken, &p.TimestampedAt, &tsAuthority,
		&p.RetentionUntil, &p.ObjectLockEnabled, &lockMode, &s3Key, &p.FileSizeBytes,
		&errMsg, &createdBy, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}

	p.Source, err = models.SourceFromColumns(dataExportID, payrollJobID, packID)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", p.ID, err)
	}

	p.MerkleRoot = deref(merkleRoot)
	p.ManifestHash = deref(manifestHash)
	p.SignatureAlgorithm = deref(sigAlg)
	p.SignatureValue = deref(sigValue)
	p.SigningKeyID = deref(keyID)
	p.TimestampAuthority = deref(tsAuthority)
	p.ObjectLockMode = models.RetentionMode(deref(lockMode))
	p.S3Key = deref(s3Key)
	p.ErrorMessage = deref(errMsg)
	p.CreatedBy = deref(createdBy)

	return &p, nil
}

// CreatePackage inserts a package in the pending state.
func (s *PackageStore) CreatePackage(ctx context.Context, orgID string, src models.SourceRef, createdBy string) (*models.Package, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	dataExportID, payrollJobID, packID := src.Columns()

	p, err := scanPackage(tx.QueryRow(ctx, `
		INSERT INTO audit_export_packages (org_id, data_export_id, payroll_job_id, audit_pack_id, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+packageColumns,
		orgID, dataExportID, payrollJobID, packID, models.PackagePending, nullable(createdBy),
	).Scan)
	if err != nil {
		return nil, fmt.Errorf("inserting package: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing package: %w", err)
	}

	return p, nil
}

// GetPackage returns one package or models.ErrPackageNotFound.
func (s *PackageStore) GetPackage(ctx context.Context, orgID, id string) (*models.Package, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	p, err := scanPackage(tx.QueryRow(ctx,
		"SELECT "+packageColumns+" FROM audit_export_packages WHERE org_id = $1 AND id = $2", orgID, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting package: %w", err)
	}

	return p, nil
}

// ListPackages returns packages newest first, plus whether more exist.
func (s *PackageStore) ListPackages(ctx context.Context, orgID string, opts models.PackageListOpts) ([]models.Package, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	limit := clampLimit(opts.Limit)

	query := "SELECT " + packageColumns + " FROM audit_export_packages WHERE org_id = $1"
	args := []any{orgID}

	if opts.Status != "" {
		args = append(args, opts.Status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}

	args = append(args, limit+1, opts.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("listing packages: %w", err)
	}
	defer rows.Close()

	pkgs := []models.Package{}
	for rows.Next() {
		p, err := scanPackage(rows.Scan)
		if err != nil {
			return nil, false, fmt.Errorf("scanning package: %w", err)
		}
		pkgs = append(pkgs, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterating packages: %w", err)
	}

	hasMore := len(pkgs) > limit
	if hasMore {
		pkgs = pkgs[:limit]
	}

	return pkgs, hasMore, nil
}

// AdvancePackage moves a package from one state to the next and applies
// patch in the same statement. The update only happens if the row is still
// in from; otherwise models.ErrStaleTransition is returned.
func (s *PackageStore) AdvancePackage(
	ctx context.Context, orgID, id string, from, to models.PackageStatus, patch *models.PackagePatch,
) (*models.Package, error) {
	return s.advance(ctx, orgID, id, from, to, patch, nil)
}

// RecordManifest inserts the package's file rows and advances it in one
// transaction, so a package never reaches signing without its file rows.
func (s *PackageStore) RecordManifest(
	ctx context.Context, orgID, id string, from, to models.PackageStatus,
	patch *models.PackagePatch, files []models.ExportFile,
) (*models.Package, error) {
	return s.advance(ctx, orgID, id, from, to, patch, files)
}

func (s *PackageStore) advance(
	ctx context.Context, orgID, id string, from, to models.PackageStatus,
	patch *models.PackagePatch, files []models.ExportFile,
) (*models.Package, error) {
	if !models.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrIllegalTransition, from, to)
	}

	if patch == nil {
		patch = &models.PackagePatch{}
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var lockMode *string
	if patch.ObjectLockMode != nil {
		m := string(*patch.ObjectLockMode)
		lockMode = &m
	}

	p, err := scanPackage(tx.QueryRow(ctx, `
		UPDATE audit_export_packages SET
			status = $4,
			merkle_root = COALESCE($5, merkle_root),
			manifest_hash = COALESCE($6, manifest_hash),
			file_count = COALESCE($7, file_count),
			signature_algorithm = COALESCE($8, signature_algorithm),
			signature_value = COALESCE($9, signature_value),
			signing_key_id = COALESCE($10, signing_key_id),
			signed_at = COALESCE($11, signed_at),
			timestamp_token = COALESCE($12, timestamp_token),
			timestamped_at = COALESCE($13, timestamped_at),
			timestamp_authority = COALESCE($14, timestamp_authority),
			s3_key = COALESCE($15, s3_key),
			file_size_bytes = COALESCE($16, file_size_bytes),
			retention_until = COALESCE($17, retention_until),
			object_lock_enabled = COALESCE($18, object_lock_enabled),
			object_lock_mode = COALESCE($19, object_lock_mode),
			completed_at = COALESCE($20, completed_at),
			updated_at = now()
		WHERE org_id = $1 AND id = $2 AND status = $3
		RETURNING `+packageColumns,
		orgID, id, from, to,
		patch.MerkleRoot, patch.ManifestHash, patch.FileCount, patch.SignatureAlgorithm,
		patch.SignatureValue, patch.SigningKeyID, patch.SignedAt, patch.TimestampToken,
		patch.TimestampedAt, patch.TimestampAuthority, patch.S3Key, patch.FileSizeBytes,
		patch.RetentionUntil, patch.ObjectLockEnabled, lockMode, patch.CompletedAt,
	).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missingOrStale(ctx, tx, orgID, id, from)
	}
	if err != nil {
		return nil, fmt.Errorf("advancing package %s -> %s: %w", from, to, err)
	}

	if len(files) > 0 {
		if err := insertFiles(ctx, tx, orgID, id, files); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing package transition: %w", err)
	}

	s.Log.WithFields(logrus.Fields{
		"org_id":     orgID,
		"package_id": id,
		"from":       from,
		"status":     to,
	}).Info("package.transition")

	return p, nil
}

// FailPackage moves a non-terminal package to failed with msg.
func (s *PackageStore) FailPackage(ctx context.Context, orgID, id, msg string) (*models.Package, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	p, err := scanPackage(tx.QueryRow(ctx, `
		UPDATE audit_export_packages
		SET status = 'failed', error_message = $3, updated_at = now()
		WHERE org_id = $1 AND id = $2 AND status NOT IN ('completed', 'failed')
		RETURNING `+packageColumns,
		orgID, id, msg,
	).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := s.missingOrStale(ctx, tx, orgID, id, ""); !errors.Is(err, models.ErrStaleTransition) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: package already terminal", models.ErrIllegalTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("failing package: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing package failure: %w", err)
	}

	s.Log.WithFields(logrus.Fields{
		"org_id":     orgID,
		"package_id": id,
		"status":     models.PackageFailed,
	}).Warn("package.transition")

	return p, nil
}

// missingOrStale explains why a conditional update matched no row.
func (s *PackageStore) missingOrStale(ctx context.Context, tx pgx.Tx, orgID, id string, from models.PackageStatus) error {
	var status models.PackageStatus

	err := tx.QueryRow(ctx,
		"SELECT status FROM audit_export_packages WHERE org_id = $1 AND id = $2", orgID, id,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrPackageNotFound
	}
	if err != nil {
		return fmt.Errorf("reading package status: %w", err)
	}

	return fmt.Errorf("%w: expected %q, found %q", models.ErrStaleTransition, from, status)
}

func insertFiles(ctx context.Context, tx pgx.Tx, orgID, packageID string, files []models.ExportFile) error {
	rows := make([][]any, len(files))
	for i, f := range files {
		rows[i] = []any{packageID, orgID, f.FilePath, f.SHA256Hash, f.SizeBytes, f.MerkleIndex}
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"audit_export_files"},
		[]string{"package_id", "org_id", "file_path", "sha256_hash", "size_bytes", "merkle_index"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("inserting package files: %w", err)
	}

	return nil
}

// ListFiles returns a package's file rows in Merkle leaf order.
func (s *PackageStore) ListFiles(ctx context.Context, orgID, packageID string) ([]models.ExportFile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	rows, err := tx.Query(ctx, `
		SELECT id, package_id, file_path, sha256_hash, size_bytes, merkle_index, created_at
		FROM audit_export_files
		WHERE org_id = $1 AND package_id = $2
		ORDER BY merkle_index`,
		orgID, packageID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing package files: %w", err)
	}
	defer rows.Close()

	files := []models.ExportFile{}
	for rows.Next() {
		var f models.ExportFile
		if err := rows.Scan(&f.ID, &f.PackageID, &f.FilePath, &f.SHA256Hash, &f.SizeBytes, &f.MerkleIndex, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning package file: %w", err)
		}
		files = append(files, f)
	}

	return files, rows.Err()
}
