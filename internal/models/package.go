package models

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// PackageStatus is a state of the package build state machine.
type PackageStatus string

// Package states in build order. Completed and failed are terminal.
const (
	PackagePending          PackageStatus = "pending"
	PackageBuildingManifest PackageStatus = "building_manifest"
	PackageSigning          PackageStatus = "signing"
	PackageTimestamping     PackageStatus = "timestamping"
	PackageUploading        PackageStatus = "uploading"
	PackageCompleted        PackageStatus = "completed"
	PackageFailed           PackageStatus = "failed"
)

var packageNext = map[PackageStatus]PackageStatus{
	PackagePending:          PackageBuildingManifest,
	PackageBuildingManifest: PackageSigning,
	PackageSigning:          PackageTimestamping,
	PackageTimestamping:     PackageUploading,
	PackageUploading:        PackageCompleted,
}

// Terminal reports whether no transition leaves s.
func (s PackageStatus) Terminal() bool {
	return s == PackageCompleted || s == PackageFailed
}

// Valid reports whether s is a known state.
func (s PackageStatus) Valid() bool {
	_, ok := packageNext[s]
	return ok || s.Terminal()
}

// Next returns the single forward successor of s.
func (s PackageStatus) Next() (PackageStatus, error) {
	next, ok := packageNext[s]
	if !ok {
		return "", fmt.Errorf("%w: no successor for %q", ErrIllegalTransition, s)
	}

	return next, nil
}

// CanTransition reports whether from -> to is a legal edge: the forward
// successor, or failed from any non-terminal state.
func CanTransition(from, to PackageStatus) bool {
	if from.Terminal() {
		return false
	}

	if to == PackageFailed {
		return true
	}

	return packageNext[from] == to
}

// Package is a sealed (or in-progress) audit export archive.
// All cryptographic fields are frozen once Status is completed.
type Package struct {
	ID                 string        `json:"id"`
	OrgID              string        `json:"org_id"`
	Source             SourceRef     `json:"source"`
	Status             PackageStatus `json:"status"`
	MerkleRoot         string        `json:"merkle_root,omitempty"`
	ManifestHash       string        `json:"manifest_hash,omitempty"`
	FileCount          int           `json:"file_count"`
	SignatureAlgorithm string        `json:"signature_algorithm,omitempty"`
	SignatureValue     string        `json:"signature_value,omitempty"` // base64
	SigningKeyID       string        `json:"signing_key_id,omitempty"`
	SignedAt           *time.Time    `json:"signed_at,omitempty"`
	TimestampToken     []byte        `json:"timestamp_token,omitempty"`
	TimestampedAt      *time.Time    `json:"timestamped_at,omitempty"`
	TimestampAuthority string        `json:"timestamp_authority,omitempty"`
	RetentionUntil     *time.Time    `json:"retention_until,omitempty"`
	ObjectLockEnabled  bool          `json:"object_lock_enabled"`
	ObjectLockMode     RetentionMode `json:"object_lock_mode,omitempty"`
	S3Key              string        `json:"s3_key,omitempty"`
	FileSizeBytes      int64         `json:"file_size_bytes"`
	ErrorMessage       string        `json:"error_message,omitempty"`
	CreatedBy          string        `json:"created_by,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
}

// PackagePatch carries the fields a build step sets together with its state
// transition. Nil fields are left unchanged.
type PackagePatch struct {
	MerkleRoot         *string
	ManifestHash       *string
	FileCount          *int
	SignatureAlgorithm *string
	SignatureValue     *string
	SigningKeyID       *string
	SignedAt           *time.Time
	TimestampToken     []byte
	TimestampedAt      *time.Time
	TimestampAuthority *string
	S3Key              *string
	FileSizeBytes      *int64
	RetentionUntil     *time.Time
	ObjectLockEnabled  *bool
	ObjectLockMode     *RetentionMode
	CompletedAt        *time.Time
}

// PackageListOpts filters package listings.
type PackageListOpts struct {
	Status PackageStatus
	Limit  int
	Offset int
}

// ExportFile is one archived file of a package. Rows are insert-only.
type ExportFile struct {
	ID          int64     `json:"id"`
	PackageID   string    `json:"package_id"`
	FilePath    string    `json:"file_path"`
	SHA256Hash  string    `json:"sha256_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	MerkleIndex int       `json:"merkle_index"`
	CreatedAt   time.Time `json:"created_at"`
}

// SourceFile is one input file handed to the assembler. Open may be called
// more than once (hashing, then archiving).
type SourceFile struct {
	Path string
	Open func() (io.ReadCloser, error)
}

// BytesFile returns a SourceFile backed by an in-memory buffer.
func BytesFile(path string, data []byte) SourceFile {
	return SourceFile{
		Path: path,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
