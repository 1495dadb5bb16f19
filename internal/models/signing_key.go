package models

import "time"

// SignatureAlgorithm is the only algorithm packages are signed with.
const SignatureAlgorithm = "Ed25519"

// SigningKey is the public half of an organization's package signing key.
// The private half lives in the secret store and never appears here.
// Rotated keys are kept forever so old packages stay verifiable.
type SigningKey struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"org_id"`
	Algorithm   string     `json:"algorithm"`
	PublicKey   string     `json:"public_key"` // base64 SPKI DER
	Fingerprint string     `json:"fingerprint"`
	Version     int        `json:"version"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	RotatedAt   *time.Time `json:"rotated_at,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// NewSigningKey carries the public material of a freshly generated keypair.
type NewSigningKey struct {
	PublicKey   string
	Fingerprint string
}
