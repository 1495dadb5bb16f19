// Package archive writes and reads sealed package archives.
//
// An archive is a zip with a fixed layout:
//
//	files/<path>     the exported files, byte for byte
//	manifest.json    the manifest the signature commits to
//	signature.json   the detached signature and the public key it verifies under
//	timestamp.tsr    the RFC 3161 token over SHA-256(signature), when present
package archive

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/persistorai/auditseal/internal/hashing"
	"github.com/persistorai/auditseal/internal/models"
)

// ManifestVersion is the manifest format written by this package.
const ManifestVersion = 1

// HashAlgorithm names the digest used for files, Merkle nodes and the manifest.
const HashAlgorithm = "SHA-256"

// ManifestEntry is one file of a manifest, in Merkle leaf order.
type ManifestEntry struct {
	Path        string `json:"path"`
	SHA256      string `json:"sha256"`
	Size        int64  `json:"size"`
	MerkleIndex int    `json:"merkle_index"`
}

// Manifest lists every file of a package. Field order is the serialised
// order, so the encoding is stable for a given value.
type Manifest struct {
	Version       int              `json:"version"`
	PackageID     string           `json:"package_id"`
	OrgID         string           `json:"org_id"`
	Source        models.SourceRef `json:"source"`
	CreatedAt     time.Time        `json:"created_at"`
	HashAlgorithm string           `json:"hash_algorithm"`
	MerkleRoot    string           `json:"merkle_root"`
	FileCount     int              `json:"file_count"`
	Files         []ManifestEntry  `json:"files"`
}

// Encode returns the canonical manifest bytes.
func (m *Manifest) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("archive: encode manifest: %w", err)
	}

	return b, nil
}

// DecodeManifest parses manifest bytes.
func DecodeManifest(b []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("archive: decode manifest: %w", err)
	}

	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("archive: unsupported manifest version %d", m.Version)
	}

	return &m, nil
}

// ManifestHash is the SHA-256 over the exact manifest bytes.
func ManifestHash(encoded []byte) hashing.Digest {
	return hashing.SumBytes(encoded)
}

// ValidatePath rejects file paths that are absolute, escape the archive
// root, or are not in clean slash form.
func ValidatePath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("archive: empty file path")
	case strings.HasPrefix(p, "/"), strings.Contains(p, "\\"):
		return fmt.Errorf("archive: file path %q must be relative with forward slashes", p)
	case path.Clean(p) != p:
		return fmt.Errorf("archive: file path %q is not clean", p)
	case p == ".." || strings.HasPrefix(p, "../"):
		return fmt.Errorf("archive: file path %q escapes the archive", p)
	}

	return nil
}

// SignatureDoc is the detached signature stored next to the manifest.
type SignatureDoc struct {
	Algorithm    string    `json:"algorithm"`
	KeyID        string    `json:"key_id"`
	KeyVersion   int       `json:"key_version"`
	Fingerprint  string    `json:"fingerprint"`
	PublicKey    string    `json:"public_key"`
	Value        string    `json:"value"`
	SignedAt     time.Time `json:"signed_at"`
	ManifestHash string    `json:"manifest_hash"`
	MerkleRoot   string    `json:"merkle_root"`
}
