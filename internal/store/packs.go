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

const packColumns = `id, org_id, start_date, end_date, requested_by, status,
	error_code, error_message, created_at, updated_at, completed_at`

const artifactColumns = `id, request_id, package_id, entry_count, correction_node_count,
	approval_event_count, timeline_event_count, expanded_node_count, created_at`

// PackStore provides data access for audit_pack_requests and audit_pack_artifacts.
type PackStore struct {
	Base
}

var _ domain.PackStore = (*PackStore)(nil)

// NewPackStore creates a PackStore.
func NewPackStore(base Base) *PackStore {
	return &PackStore{Base: base}
}

func scanPack(scan func(dest ...any) error) (*models.PackRequest, error) {
	var (
		p                      models.PackRequest
		requestedBy, code, msg *string
	)

	err := scan(&p.ID, &p.OrgID, &p.StartDate, &p.EndDate, &requestedBy, &p.Status,
		&code, &msg, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}

	p.RequestedBy = deref(requestedBy)
	p.ErrorCode = deref(code)
	p.ErrorMessage = deref(msg)

	return &p, nil
}

func scanArtifact(scan func(dest ...any) error) (*models.PackArtifact, error) {
	var a models.PackArtifact

	err := scan(&a.ID, &a.RequestID, &a.PackageID, &a.EntryCount, &a.CorrectionNodeCount,
		&a.ApprovalEventCount, &a.TimelineEventCount, &a.ExpandedNodeCount, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// CreatePack inserts a pack request in the requested state.
func (s *PackStore) CreatePack(ctx context.Context, orgID string, req *models.CreatePackRequest, requestedBy string) (*models.PackRequest, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	p, err := scanPack(tx.QueryRow(ctx, `
		INSERT INTO audit_pack_requests (org_id, start_date, end_date, requested_by, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+packColumns,
		orgID, req.StartDate.UTC(), req.EndDate.UTC(), nullable(requestedBy), models.PackRequested,
	).Scan)
	if err != nil {
		return nil, fmt.Errorf("inserting pack request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing pack request: %w", err)
	}

	return p, nil
}

// GetPack returns one pack request or models.ErrPackRequestNotFound.
func (s *PackStore) GetPack(ctx context.Context, orgID, id string) (*models.PackRequest, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	p, err := scanPack(tx.QueryRow(ctx,
		"SELECT "+packColumns+" FROM audit_pack_requests WHERE org_id = $1 AND id = $2", orgID, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrPackRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting pack request: %w", err)
	}

	return p, nil
}

// GetArtifact returns the artifact of a completed pack, or nil if there is none.
func (s *PackStore) GetArtifact(ctx context.Context, orgID, requestID string) (*models.PackArtifact, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	a, err := scanArtifact(tx.QueryRow(ctx,
		"SELECT "+artifactColumns+" FROM audit_pack_artifacts WHERE org_id = $1 AND request_id = $2",
		orgID, requestID).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting pack artifact: %w", err)
	}

	return a, nil
}

// ListPacks returns pack requests newest first, plus whether more exist.
func (s *PackStore) ListPacks(ctx context.Context, orgID string, opts models.PackListOpts) ([]models.PackRequest, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx, orgID)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	limit := clampLimit(opts.Limit)

	query := "SELECT " + packColumns + " FROM audit_pack_requests WHERE org_id = $1"
	args := []any{orgID}

	if opts.Status != "" {
		args = append(args, opts.Status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}

	args = append(args, limit+1, opts.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("listing pack requests: %w", err)
	}
	defer rows.Close()

	packs := []models.PackRequest{}
	for rows.Next() {
		p, err := scanPack(rows.Scan)
		if err != nil {
			return nil, false, fmt.Errorf("scanning pack request: %w", err)
		}
		packs = append(packs, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterating pack requests: %w", err)
	}

	hasMore := len(packs) > limit
	if hasMore {
		packs = packs[:limit]
	}

	return packs, hasMore, nil
}

// AdvancePack moves a pack request from one state to the next if it is still in from.
func (s *PackStore) AdvancePack(ctx context.Context, orgID, id string, from, to models.PackStatus) (*models.PackRequest, error) {
	if !models.CanTransitionPack(from, to) || to == models.PackCompleted || to == models.PackFailed {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrIllegalTransition, from, to)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	p, err := s.transition(ctx, tx, orgID, id, from, to, "", "")
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing pack transition: %w", err)
	}

	return p, nil
}

// CompletePack moves the pack to completed and inserts its artifact in the
// same transaction, so a completed pack always has exactly one artifact.
func (s *PackStore) CompletePack(
	ctx context.Context, orgID, id string, from models.PackStatus, artifact *models.PackArtifact,
) (*models.PackRequest, *models.PackArtifact, error) {
	if !models.CanTransitionPack(from, models.PackCompleted) {
		return nil, nil, fmt.Errorf("%w: %s -> %s", models.ErrIllegalTransition, from, models.PackCompleted)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	p, err := s.transition(ctx, tx, orgID, id, from, models.PackCompleted, "", "")
	if err != nil {
		return nil, nil, err
	}

	a, err := scanArtifact(tx.QueryRow(ctx, `
		INSERT INTO audit_pack_artifacts (request_id, org_id, package_id, entry_count,
			correction_node_count, approval_event_count, timeline_event_count, expanded_node_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+artifactColumns,
		id, orgID, artifact.PackageID, artifact.EntryCount, artifact.CorrectionNodeCount,
		artifact.ApprovalEventCount, artifact.TimelineEventCount, artifact.ExpandedNodeCount,
	).Scan)
	if err != nil {
		return nil, nil, fmt.Errorf("inserting pack artifact: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("committing pack completion: %w", err)
	}

	return p, a, nil
}

// FailPack moves the pack from its current state to failed with a code and message.
func (s *PackStore) FailPack(ctx context.Context, orgID, id string, from models.PackStatus, code, msg string) (*models.PackRequest, error) {
	if !models.CanTransitionPack(from, models.PackFailed) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrIllegalTransition, from, models.PackFailed)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	p, err := s.transition(ctx, tx, orgID, id, from, models.PackFailed, code, msg)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing pack failure: %w", err)
	}

	return p, nil
}

func (s *PackStore) transition(
	ctx context.Context, tx pgx.Tx, orgID, id string, from, to models.PackStatus, code, msg string,
) (*models.PackRequest, error) {
	p, err := scanPack(tx.QueryRow(ctx, `
		UPDATE audit_pack_requests SET
			status = $4,
			error_code = COALESCE($5, error_code),
			error_message = COALESCE($6, error_message),
			completed_at = CASE WHEN $4 IN ('completed', 'failed') THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE org_id = $1 AND id = $2 AND status = $3
		RETURNING `+packColumns,
		orgID, id, from, to, nullable(code), nullable(msg),
	).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		var status models.PackStatus

		err := tx.QueryRow(ctx, "SELECT status FROM audit_pack_requests WHERE org_id = $1 AND id = $2", orgID, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPackRequestNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("reading pack status: %w", err)
		}

		return nil, fmt.Errorf("%w: expected %q, found %q", models.ErrStaleTransition, from, status)
	}
	if err != nil {
		return nil, fmt.Errorf("updating pack %s -> %s: %w", from, to, err)
	}

	level := logrus.InfoLevel
	if to == models.PackFailed {
		level = logrus.WarnLevel
	}

	s.Log.WithFields(logrus.Fields{
		"org_id":  orgID,
		"pack_id": id,
		"from":    from,
		"status":  to,
	}).Log(level, "pack.transition")

	return p, nil
}
