package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/persistorai/auditseal/internal/dbpool"
)

// OrgStore handles organization lookups (API key → org ID). The
// organizations table has no row level security: it is what resolves the
// org context in the first place.
type OrgStore struct {
	Pool *dbpool.Pool
}

// NewOrgStore creates a new OrgStore.
func NewOrgStore(pool *dbpool.Pool) *OrgStore {
	return &OrgStore{Pool: pool}
}

// GetOrgByAPIKey looks up an organization ID by API key hash.
func (s *OrgStore) GetOrgByAPIKey(ctx context.Context, apiKey string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var orgID string

	err := s.Pool.QueryRow(ctx, "SELECT id FROM organizations WHERE api_key_hash = $1", HashAPIKey(apiKey)).Scan(&orgID)
	if err != nil {
		return "", fmt.Errorf("looking up organization by API key: %w", err)
	}

	return orgID, nil
}

// CreateOrg inserts an organization and returns its id.
func (s *OrgStore) CreateOrg(ctx context.Context, name, apiKey string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var orgID string

	err := s.Pool.QueryRow(ctx,
		"INSERT INTO organizations (name, api_key_hash) VALUES ($1, $2) RETURNING id",
		name, HashAPIKey(apiKey),
	).Scan(&orgID)
	if err != nil {
		return "", fmt.Errorf("creating organization: %w", err)
	}

	return orgID, nil
}

// HashAPIKey returns the hex SHA-256 of an API key as stored in organizations.api_key_hash.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
