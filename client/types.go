package client

import "time"

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Database      string  `json:"database"`
	SchemaVersion int     `json:"schema_version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ExportConfig is an organization's export policy.
type ExportConfig struct {
	ID                    string    `json:"id"`
	OrgID                 string    `json:"org_id"`
	RetentionYears        int       `json:"retention_years"`
	RetentionMode         string    `json:"retention_mode"`
	WORMEnabled           bool      `json:"worm_enabled"`
	ObjectLockSupported   bool      `json:"object_lock_supported"`
	AutoExportPayroll     bool      `json:"auto_export_payroll"`
	AutoExportDataExports bool      `json:"auto_export_data_exports"`
	IsEnabled             bool      `json:"is_enabled"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// UpsertConfigRequest changes the export policy. Nil fields are left unchanged.
type UpsertConfigRequest struct {
	RetentionYears        *int    `json:"retention_years,omitempty"`
	RetentionMode         *string `json:"retention_mode,omitempty"`
	WORMEnabled           *bool   `json:"worm_enabled,omitempty"`
	AutoExportPayroll     *bool   `json:"auto_export_payroll,omitempty"`
	AutoExportDataExports *bool   `json:"auto_export_data_exports,omitempty"`
}

// SigningKey is the public half of a package signing key.
type SigningKey struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"org_id"`
	Algorithm   string     `json:"algorithm"`
	PublicKey   string     `json:"public_key"`
	Fingerprint string     `json:"fingerprint"`
	Version     int        `json:"version"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	RotatedAt   *time.Time `json:"rotated_at,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// Source kinds accepted by Packages.Create.
const (
	SourceDataExport = "data_export"
	SourcePayrollJob = "payroll_job"
)

// Source names the record a package was built from.
type Source struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Package is a sealed or in-progress export package.
type Package struct {
	ID                 string     `json:"id"`
	OrgID              string     `json:"org_id"`
	Source             Source     `json:"source"`
	Status             string     `json:"status"`
	MerkleRoot         string     `json:"merkle_root,omitempty"`
	ManifestHash       string     `json:"manifest_hash,omitempty"`
	FileCount          int        `json:"file_count"`
	SignatureAlgorithm string     `json:"signature_algorithm,omitempty"`
	SignatureValue     string     `json:"signature_value,omitempty"`
	SigningKeyID       string     `json:"signing_key_id,omitempty"`
	SignedAt           *time.Time `json:"signed_at,omitempty"`
	TimestampToken     []byte     `json:"timestamp_token,omitempty"`
	TimestampedAt      *time.Time `json:"timestamped_at,omitempty"`
	TimestampAuthority string     `json:"timestamp_authority,omitempty"`
	RetentionUntil     *time.Time `json:"retention_until,omitempty"`
	ObjectLockEnabled  bool       `json:"object_lock_enabled"`
	ObjectLockMode     string     `json:"object_lock_mode,omitempty"`
	S3Key              string     `json:"s3_key,omitempty"`
	FileSizeBytes      int64      `json:"file_size_bytes"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	CreatedBy          string     `json:"created_by,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// PackageListOptions filters Packages.List.
type PackageListOptions struct {
	Status string
	Limit  int
	Offset int
}

// ExportFile is one manifest row of a package.
type ExportFile struct {
	ID          int64     `json:"id"`
	PackageID   string    `json:"package_id"`
	FilePath    string    `json:"file_path"`
	SHA256Hash  string    `json:"sha256_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	MerkleIndex int       `json:"merkle_index"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProofStep is one sibling on a Merkle inclusion path.
type ProofStep struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// Proof is a Merkle inclusion proof.
type Proof struct {
	LeafIndex int         `json:"leaf_index"`
	LeafCount int         `json:"leaf_count"`
	Siblings  []ProofStep `json:"siblings"`
}

// FileProof ties a file to its package's Merkle root.
type FileProof struct {
	PackageID  string `json:"package_id"`
	FilePath   string `json:"file_path"`
	Leaf       string `json:"leaf"`
	MerkleRoot string `json:"merkle_root"`
	Proof      *Proof `json:"proof"`
}

// CheckError describes one failed verification check.
type CheckError struct {
	Check    string `json:"check"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// VerificationLog records one verification run.
type VerificationLog struct {
	ID              string       `json:"id"`
	PackageID       string       `json:"package_id"`
	OrgID           string       `json:"org_id"`
	IsValid         bool         `json:"is_valid"`
	ChecksPerformed []string     `json:"checks_performed"`
	ChecksPassed    []string     `json:"checks_passed"`
	ChecksFailed    []string     `json:"checks_failed"`
	ErrorDetails    []CheckError `json:"error_details"`
	VerifiedBy      string       `json:"verified_by,omitempty"`
	Source          string       `json:"source"`
	VerifiedAt      time.Time    `json:"verified_at"`
}

// FileMismatch is a file whose bytes disagree with the manifest.
type FileMismatch struct {
	FilePath string `json:"file_path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// VerificationReport is the result of Packages.Verify.
type VerificationReport struct {
	VerificationLog
	FileMismatches []FileMismatch `json:"file_mismatches,omitempty"`
}

// PackRequest is an audit pack over a date range.
type PackRequest struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      time.Time  `json:"end_date"`
	RequestedBy  string     `json:"requested_by,omitempty"`
	Status       string     `json:"status"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// PackArtifact summarises a completed pack.
type PackArtifact struct {
	ID                  string    `json:"id"`
	RequestID           string    `json:"request_id"`
	PackageID           string    `json:"package_id"`
	EntryCount          int       `json:"entry_count"`
	CorrectionNodeCount int       `json:"correction_node_count"`
	ApprovalEventCount  int       `json:"approval_event_count"`
	TimelineEventCount  int       `json:"timeline_event_count"`
	ExpandedNodeCount   int       `json:"expanded_node_count"`
	CreatedAt           time.Time `json:"created_at"`
}

// CreatePackRequest requests a pack over [StartDate, EndDate].
type CreatePackRequest struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// PackListOptions filters Packs.List.
type PackListOptions struct {
	Status string
	Limit  int
	Offset int
}
