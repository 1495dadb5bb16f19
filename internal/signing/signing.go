// Package signing provides Ed25519 package signatures backed by a
// pluggable secret store that owns the private key material.
package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/persistorai/auditseal/internal/hashing"
)

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("signature does not verify")

// SecretStore generates and holds per-organization signing keys.
// Private keys never leave the store.
type SecretStore interface {
	// GenerateKeypair creates a new key version for the org and makes it current.
	GenerateKeypair(ctx context.Context, orgID string) (ed25519.PublicKey, error)
	// PublicKey returns the current public key for the org.
	PublicKey(ctx context.Context, orgID string) (ed25519.PublicKey, error)
	// Sign signs payload with the org's current private key.
	Sign(ctx context.Context, orgID string, payload []byte) ([]byte, error)
}

// Payload returns the exact bytes a package signature covers:
// the raw manifest hash followed by the raw Merkle root.
func Payload(manifestHash, merkleRoot hashing.Digest) []byte {
	out := make([]byte, 0, 2*hashing.Size)
	out = append(out, manifestHash[:]...)
	out = append(out, merkleRoot[:]...)

	return out
}

// EncodePublicKey returns the base64 SPKI DER encoding of pub.
func EncodePublicKey(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("signing: marshal public key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePublicKey parses a base64 SPKI DER Ed25519 public key.
func DecodePublicKey(encoded string) (ed25519.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("signing: base64 decode public key: %w", err)
	}

	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("signing: parse public key: %w", err)
	}

	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signing: public key is %T, not Ed25519", key)
	}

	return pub, nil
}

// Fingerprint returns the hex SHA-256 of the SPKI DER encoding of pub.
func Fingerprint(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("signing: marshal public key: %w", err)
	}

	sum := sha256.Sum256(der)

	return hex.EncodeToString(sum[:]), nil
}

// Verify checks sig over payload with the base64 SPKI public key.
func Verify(encodedPub string, payload, sig []byte) error {
	pub, err := DecodePublicKey(encodedPub)
	if err != nil {
		return err
	}

	if !ed25519.Verify(pub, payload, sig) {
		return ErrBadSignature
	}

	return nil
}
