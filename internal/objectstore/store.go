// Package objectstore stores sealed archives and manages their write-once
// retention through the provider's object lock.
package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/persistorai/auditseal/internal/models"
)

// PutResult describes a stored object.
type PutResult struct {
	Size int64
}

// DeleteOptions controls object deletion.
type DeleteOptions struct {
	// BypassGovernance lifts governance retention. It never lifts compliance retention.
	BypassGovernance bool
}

// Store is the object storage capability the pipeline consumes.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (*PutResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string, opts DeleteOptions) error
	ApplyRetention(ctx context.Context, key string, state models.RetentionState) error
	// GetRetentionState returns nil when the object carries no retention.
	GetRetentionState(ctx context.Context, key string) (*models.RetentionState, error)
	SupportsObjectLock(ctx context.Context) (bool, error)
}

// ArchiveKey returns the storage key of a package archive.
func ArchiveKey(orgID, packageID string, createdAt time.Time) string {
	return fmt.Sprintf("orgs/%s/audit-exports/%04d/%s.zip", orgID, createdAt.UTC().Year(), packageID)
}
