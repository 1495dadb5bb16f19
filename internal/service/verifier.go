package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/archive"
	"github.com/persistorai/auditseal/internal/domain"
	"github.com/persistorai/auditseal/internal/hashing"
	"github.com/persistorai/auditseal/internal/integrity"
	"github.com/persistorai/auditseal/internal/merkle"
	"github.com/persistorai/auditseal/internal/metrics"
	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/objectstore"
	"github.com/persistorai/auditseal/internal/timestamp"
)

// VerificationStore is the data-access interface for verification logs.
type VerificationStore = domain.VerificationStore

// KeyLookup resolves a specific signing key, active or historical.
type KeyLookup interface {
	GetKey(ctx context.Context, orgID, keyID string) (*models.SigningKey, error)
}

// VerifyRequest describes one verification run.
type VerifyRequest struct {
	OrgID     string
	PackageID string
	// Files, when set, are the bytes to check against the manifest.
	Files []models.SourceFile
	// FetchArchive loads the stored archive for the file check when Files is nil.
	FetchArchive bool
	VerifiedBy   string
	Source       string
}

// VerifierDeps wires a Verifier.
type VerifierDeps struct {
	Packages    PackageStore
	Keys        KeyLookup
	Logs        VerificationStore
	Objects     objectstore.Store
	HashWorkers int
	Timeout     time.Duration
	ClockSkew   time.Duration
	Log         *logrus.Logger
}

// Verifier re-derives a sealed package's integrity. It never modifies the
// package; each run that resolves a package appends exactly one log row.
type Verifier struct {
	packages    PackageStore
	keys        KeyLookup
	logs        VerificationStore
	objects     objectstore.Store
	hashWorkers int
	timeout     time.Duration
	skew        time.Duration
	now         func() time.Time
	log         *logrus.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(d VerifierDeps) *Verifier {
	if d.HashWorkers <= 0 {
		d.HashWorkers = 4
	}
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}
	if d.ClockSkew <= 0 {
		d.ClockSkew = integrity.DefaultClockSkew
	}

	return &Verifier{
		packages:    d.Packages,
		keys:        d.Keys,
		logs:        d.Logs,
		objects:     d.Objects,
		hashWorkers: d.HashWorkers,
		timeout:     d.Timeout,
		skew:        d.ClockSkew,
		now:         func() time.Time { return time.Now().UTC() },
		log:         d.Log,
	}
}

// Verify runs every applicable check and records the outcome.
// Checks run in order: file_hashes (when fresh bytes exist), merkle_root,
// signature, timestamp (when a token exists), worm_lock (when a lock was
// recorded).
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*models.VerificationReport, error) {
	pkg, err := v.packages.GetPackage(ctx, req.OrgID, req.PackageID)
	if err != nil {
		return nil, err
	}

	if pkg.Status != models.PackageCompleted {
		return nil, fmt.Errorf("%w: package %s is %s", models.ErrPackageNotSealed, pkg.ID, pkg.Status)
	}

	rows, err := v.packages.ListFiles(ctx, req.OrgID, pkg.ID)
	if err != nil {
		return nil, err
	}

	expected := make([]integrity.ExpectedFile, len(rows))
	for i, r := range rows {
		expected[i] = integrity.ExpectedFile{Path: r.FilePath, SHA256: r.SHA256Hash, MerkleIndex: r.MerkleIndex}
	}

	if req.Source == "" {
		req.Source = models.VerifySourceAPI
	}

	report := &models.VerificationReport{}
	report.PackageID = pkg.ID
	report.OrgID = pkg.OrgID
	report.VerifiedBy = req.VerifiedBy
	report.Source = req.Source

	now := v.now()

	actual := v.checkFiles(ctx, report, pkg, expected, req)
	v.checkRoot(report, pkg, expected, actual)
	v.checkSignature(ctx, report, pkg)

	if len(pkg.TimestampToken) > 0 {
		report.Record(models.CheckTimestamp, v.timestampFailure(pkg, now))
	}

	if pkg.ObjectLockEnabled {
		report.Record(models.CheckWORMLock, v.wormFailure(ctx, pkg))
	}

	report.Finalize()

	if err := v.logs.InsertVerification(ctx, &report.VerificationLog); err != nil {
		return nil, fmt.Errorf("recording verification: %w", err)
	}

	result := "valid"
	if !report.IsValid {
		result = "invalid"
	}
	metrics.VerificationsTotal.WithLabelValues(result).Inc()
	for _, c := range report.ChecksFailed {
		metrics.VerificationCheckFailures.WithLabelValues(c).Inc()
	}

	v.log.WithFields(logrus.Fields{
		"org_id":     pkg.OrgID,
		"package_id": pkg.ID,
		"is_valid":   report.IsValid,
		"failed":     report.ChecksFailed,
	}).Info("package verified")

	return report, nil
}

// checkFiles hashes the fresh bytes, if any, and records file_hashes.
// It returns nil when no fresh digests are available.
func (v *Verifier) checkFiles(
	ctx context.Context, report *models.VerificationReport, pkg *models.Package,
	expected []integrity.ExpectedFile, req VerifyRequest,
) []hashing.FileDigest {
	files := req.Files

	if files == nil && req.FetchArchive {
		a, err := v.fetchArchive(ctx, pkg)
		if err != nil {
			report.Record(models.CheckFileHashes, &models.CheckError{
				Message:  err.Error(),
				Expected: fmt.Sprintf("%d files", len(expected)),
				Actual:   "archive unavailable",
			})
			return nil
		}
		files = a.SourceFiles()
	}

	if files == nil {
		return nil
	}

	actual, err := hashing.HashFiles(ctx, files, v.hashWorkers)
	if err != nil {
		report.Record(models.CheckFileHashes, &models.CheckError{Message: err.Error()})
		return nil
	}

	failure, mismatches := integrity.CheckFileHashes(expected, actual)
	report.Record(models.CheckFileHashes, failure)
	report.FileMismatches = mismatches

	return actual
}

func (v *Verifier) fetchArchive(ctx context.Context, pkg *models.Package) (*archive.Archive, error) {
	if pkg.S3Key == "" {
		return nil, fmt.Errorf("package has no stored archive")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	data, err := v.objects.Get(ctx, pkg.S3Key)
	if err != nil {
		return nil, fmt.Errorf("fetching archive: %w", err)
	}

	return archive.Read(data)
}

func (v *Verifier) checkRoot(report *models.VerificationReport, pkg *models.Package, expected []integrity.ExpectedFile, actual []hashing.FileDigest) {
	leaves, err := integrity.Leaves(expected, actual)
	if err != nil {
		report.Record(models.CheckMerkleRoot, &models.CheckError{Message: err.Error(), Expected: pkg.MerkleRoot})
		return
	}

	report.Record(models.CheckMerkleRoot, integrity.CheckMerkleRoot(leaves, pkg.MerkleRoot))
}

// checkSignature verifies against the key the package names, which may
// have been rotated out since.
func (v *Verifier) checkSignature(ctx context.Context, report *models.VerificationReport, pkg *models.Package) {
	key, err := v.keys.GetKey(ctx, pkg.OrgID, pkg.SigningKeyID)
	if err != nil {
		report.Record(models.CheckSignature, &models.CheckError{
			Message:  fmt.Sprintf("resolving signing key: %v", err),
			Expected: pkg.SigningKeyID,
		})
		return
	}

	report.Record(models.CheckSignature, integrity.CheckSignature(key.PublicKey, pkg.ManifestHash, pkg.MerkleRoot, pkg.SignatureValue))
}

func (v *Verifier) timestampFailure(pkg *models.Package, now time.Time) *models.CheckError {
	tok, err := timestamp.ParseToken(pkg.TimestampToken)
	if err != nil {
		return &models.CheckError{Message: err.Error()}
	}

	sig, err := base64.StdEncoding.DecodeString(pkg.SignatureValue)
	if err != nil {
		return &models.CheckError{Message: fmt.Sprintf("invalid signature encoding: %v", err)}
	}

	return integrity.CheckTimestamp(tok, sig, pkg.CreatedAt, now, v.skew)
}

func (v *Verifier) wormFailure(ctx context.Context, pkg *models.Package) *models.CheckError {
	if pkg.RetentionUntil == nil {
		return &models.CheckError{Message: "package records an object lock without a retention date"}
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	state, err := v.objects.GetRetentionState(ctx, pkg.S3Key)
	if err != nil {
		return &models.CheckError{Message: fmt.Sprintf("reading object retention: %v", err)}
	}

	return integrity.CheckWORM(state, pkg.ObjectLockMode, *pkg.RetentionUntil)
}

// FileProof is an inclusion proof for one archived file.
type FileProof struct {
	PackageID  string        `json:"package_id"`
	FilePath   string        `json:"file_path"`
	Leaf       string        `json:"leaf"`
	MerkleRoot string        `json:"merkle_root"`
	Proof      *merkle.Proof `json:"proof"`
}

// Proof returns the inclusion proof of the file at Merkle index index, built
// from the recorded file digests.
func (v *Verifier) Proof(ctx context.Context, orgID, packageID string, index int) (*FileProof, error) {
	pkg, err := v.packages.GetPackage(ctx, orgID, packageID)
	if err != nil {
		return nil, err
	}

	if pkg.MerkleRoot == "" {
		return nil, fmt.Errorf("%w: package %s has no manifest yet", models.ErrPackageNotSealed, pkg.ID)
	}

	rows, err := v.packages.ListFiles(ctx, orgID, packageID)
	if err != nil {
		return nil, err
	}

	expected := make([]integrity.ExpectedFile, len(rows))
	for i, r := range rows {
		expected[i] = integrity.ExpectedFile{Path: r.FilePath, SHA256: r.SHA256Hash, MerkleIndex: r.MerkleIndex}
	}
	integrity.SortByIndex(expected)

	if index < 0 || index >= len(expected) {
		return nil, fmt.Errorf("%w: index %d, package has %d files", models.ErrFileNotFound, index, len(expected))
	}

	leaves, err := integrity.Leaves(expected, nil)
	if err != nil {
		return nil, err
	}

	tree, err := merkle.Build(leaves)
	if err != nil {
		return nil, err
	}

	proof, err := tree.Proof(index)
	if err != nil {
		return nil, err
	}

	return &FileProof{
		PackageID:  pkg.ID,
		FilePath:   expected[index].Path,
		Leaf:       leaves[index].Hex(),
		MerkleRoot: tree.Root().Hex(),
		Proof:      proof,
	}, nil
}

// ListVerifications returns the package's verification history (pass-through).
func (v *Verifier) ListVerifications(ctx context.Context, orgID, packageID string, limit int) ([]models.VerificationLog, error) {
	if _, err := v.packages.GetPackage(ctx, orgID, packageID); err != nil {
		return nil, err
	}

	return v.logs.ListVerifications(ctx, orgID, packageID, limit)
}
