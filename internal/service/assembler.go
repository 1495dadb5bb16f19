package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/archive"
	"github.com/persistorai/auditseal/internal/domain"
	"github.com/persistorai/auditseal/internal/hashing"
	"github.com/persistorai/auditseal/internal/merkle"
	"github.com/persistorai/auditseal/internal/metrics"
	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/objectstore"
	"github.com/persistorai/auditseal/internal/retention"
	"github.com/persistorai/auditseal/internal/signing"
	"github.com/persistorai/auditseal/internal/timestamp"
)

// PackageStore is the data-access interface the assembler and verifier depend on.
type PackageStore = domain.PackageStore

// FileFetcher loads the files of an export or payroll run.
type FileFetcher interface {
	FetchFiles(ctx context.Context, orgID string, src models.SourceRef) ([]models.SourceFile, error)
}

// AssemblerDeps wires an Assembler.
type AssemblerDeps struct {
	Packages    PackageStore
	Configs     ConfigStore
	Keys        *KeyManager
	TSA         timestamp.Authority
	Objects     objectstore.Store
	Files       FileFetcher
	HashWorkers int
	// Timeout bounds every call to the timestamp authority, object store and file source.
	Timeout time.Duration
	Log     *logrus.Logger
}

// Assembler drives the package build state machine:
// pending -> building_manifest -> signing -> timestamping -> uploading -> completed.
// Any step error moves the package to failed; a failed package is never
// resumed, a new package must be created instead.
type Assembler struct {
	packages    PackageStore
	configs     ConfigStore
	keys        *KeyManager
	tsa         timestamp.Authority
	objects     objectstore.Store
	files       FileFetcher
	hashWorkers int
	timeout     time.Duration
	locks       *keyedMutex
	log         *logrus.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(d AssemblerDeps) *Assembler {
	if d.HashWorkers <= 0 {
		d.HashWorkers = 4
	}
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}

	return &Assembler{
		packages:    d.Packages,
		configs:     d.Configs,
		keys:        d.Keys,
		tsa:         d.TSA,
		objects:     d.Objects,
		files:       d.Files,
		hashWorkers: d.HashWorkers,
		timeout:     d.Timeout,
		locks:       newKeyedMutex(),
		log:         d.Log,
	}
}

// Create validates the request and records a pending package.
func (a *Assembler) Create(ctx context.Context, orgID string, src models.SourceRef, createdBy string) (*models.Package, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	cfg, err := a.configs.GetConfig(ctx, orgID)
	if errors.Is(err, models.ErrConfigNotFound) {
		return nil, models.ErrConfigDisabled
	}
	if err != nil {
		return nil, err
	}
	if !cfg.IsEnabled {
		return nil, models.ErrConfigDisabled
	}

	pkg, err := a.packages.CreatePackage(ctx, orgID, src, createdBy)
	if err != nil {
		return nil, err
	}

	a.log.WithFields(logrus.Fields{
		"org_id":     orgID,
		"package_id": pkg.ID,
		"source":     src.String(),
	}).Info("package created")

	return pkg, nil
}

// Run builds a pending package from the files its source references.
func (a *Assembler) Run(ctx context.Context, orgID, id string) (*models.Package, error) {
	unlock, err := a.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	pkg, err := a.loadPending(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if pkg.Source.Kind() == models.SourceAuditPack {
		return nil, fmt.Errorf("%w: audit pack packages are built by their pack run", models.ErrInvalidSource)
	}

	fctx, cancel := context.WithTimeout(ctx, a.timeout)
	files, err := a.files.FetchFiles(fctx, orgID, pkg.Source)
	cancel()
	if err != nil {
		return a.fail(ctx, pkg, fmt.Errorf("fetching source files: %w", err))
	}

	// Nobody can correct a bad upstream file set, so it fails the package.
	sorted, err := prepareFiles(files)
	if err != nil {
		return a.fail(ctx, pkg, err)
	}

	return a.build(ctx, pkg, sorted)
}

// RunWithFiles builds a pending package from the supplied files. An invalid
// file set is rejected and the package stays pending.
func (a *Assembler) RunWithFiles(ctx context.Context, orgID, id string, files []models.SourceFile) (*models.Package, error) {
	unlock, err := a.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sorted, err := prepareFiles(files)
	if err != nil {
		return nil, err
	}

	pkg, err := a.loadPending(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	return a.build(ctx, pkg, sorted)
}

func (a *Assembler) lock(id string) (func(), error) {
	unlock, ok := a.locks.TryLock(id)
	if !ok {
		return nil, fmt.Errorf("%w: package %s is already being built", models.ErrStaleTransition, id)
	}

	return unlock, nil
}

func (a *Assembler) loadPending(ctx context.Context, orgID, id string) (*models.Package, error) {
	pkg, err := a.packages.GetPackage(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if pkg.Status != models.PackagePending {
		return nil, fmt.Errorf("%w: package %s is %s", models.ErrIllegalTransition, id, pkg.Status)
	}

	return pkg, nil
}

// buildState carries the artefacts of earlier steps into later ones.
type buildState struct {
	pkg          *models.Package
	files        []models.SourceFile
	manifest     []byte
	manifestHash hashing.Digest
	root         hashing.Digest
	sig          *Signature
	token        *timestamp.Token
}

type buildStep struct {
	name string
	run  func(ctx context.Context, b *buildState) error
}

// build runs every step over files, which must already be in manifest order.
func (a *Assembler) build(ctx context.Context, pkg *models.Package, files []models.SourceFile) (*models.Package, error) {
	b := &buildState{pkg: pkg, files: files}

	steps := []buildStep{
		{string(models.PackageBuildingManifest), a.buildManifest},
		{string(models.PackageSigning), a.signManifest},
		{string(models.PackageTimestamping), a.stampSignature},
		{string(models.PackageUploading), a.uploadArchive},
	}

	for _, s := range steps {
		start := time.Now()
		err := s.run(ctx, b)
		metrics.BuildStepDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())

		if err != nil {
			if errors.Is(err, models.ErrStaleTransition) {
				return nil, err
			}
			return a.fail(ctx, b.pkg, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	metrics.PackagesTotal.WithLabelValues(string(models.PackageCompleted)).Inc()

	a.log.WithFields(logrus.Fields{
		"org_id":      b.pkg.OrgID,
		"package_id":  b.pkg.ID,
		"merkle_root": b.pkg.MerkleRoot,
		"files":       b.pkg.FileCount,
	}).Info("package sealed")

	return b.pkg, nil
}

// prepareFiles rejects empty, duplicate or unsafe file sets and returns the
// files in manifest order (sorted by path).
func prepareFiles(files []models.SourceFile) ([]models.SourceFile, error) {
	if len(files) == 0 {
		return nil, models.ErrEmptyFileSet
	}

	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if err := archive.ValidatePath(f.Path); err != nil {
			return nil, err
		}
		if _, dup := seen[f.Path]; dup {
			return nil, fmt.Errorf("%w: %s", models.ErrDuplicateFilePath, f.Path)
		}
		seen[f.Path] = struct{}{}
	}

	sorted := append([]models.SourceFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	return sorted, nil
}

func (a *Assembler) advance(ctx context.Context, b *buildState, patch *models.PackagePatch) error {
	next, err := b.pkg.Status.Next()
	if err != nil {
		return err
	}

	pkg, err := a.packages.AdvancePackage(ctx, b.pkg.OrgID, b.pkg.ID, b.pkg.Status, next, patch)
	if err != nil {
		return err
	}

	b.pkg = pkg

	return nil
}

func (a *Assembler) buildManifest(ctx context.Context, b *buildState) error {
	if err := a.advance(ctx, b, nil); err != nil {
		return err
	}

	digests, err := hashing.HashFiles(ctx, b.files, a.hashWorkers)
	if err != nil {
		return err
	}

	leaves := make([]hashing.Digest, len(digests))
	rows := make([]models.ExportFile, len(digests))
	entries := make([]archive.ManifestEntry, len(digests))

	for i, d := range digests {
		leaves[i] = d.Digest
		rows[i] = models.ExportFile{FilePath: d.Path, SHA256Hash: d.Digest.Hex(), SizeBytes: d.Size, MerkleIndex: i}
		entries[i] = archive.ManifestEntry{Path: d.Path, SHA256: d.Digest.Hex(), Size: d.Size, MerkleIndex: i}
	}

	tree, err := merkle.Build(leaves)
	if err != nil {
		return err
	}
	b.root = tree.Root()

	m := archive.Manifest{
		Version:       archive.ManifestVersion,
		PackageID:     b.pkg.ID,
		OrgID:         b.pkg.OrgID,
		Source:        b.pkg.Source,
		CreatedAt:     b.pkg.CreatedAt.UTC(),
		HashAlgorithm: archive.HashAlgorithm,
		MerkleRoot:    b.root.Hex(),
		FileCount:     len(entries),
		Files:         entries,
	}

	b.manifest, err = m.Encode()
	if err != nil {
		return err
	}
	b.manifestHash = archive.ManifestHash(b.manifest)

	root := b.root.Hex()
	count := len(rows)

	pkg, err := a.packages.RecordManifest(ctx, b.pkg.OrgID, b.pkg.ID, b.pkg.Status, models.PackageSigning,
		&models.PackagePatch{MerkleRoot: &root, FileCount: &count}, rows)
	if err != nil {
		return err
	}
	b.pkg = pkg

	return nil
}

func (a *Assembler) signManifest(ctx context.Context, b *buildState) error {
	if _, err := a.keys.EnsureActiveKey(ctx, b.pkg.OrgID); err != nil {
		return err
	}

	sig, err := a.keys.Sign(ctx, b.pkg.OrgID, signing.Payload(b.manifestHash, b.root))
	if err != nil {
		return err
	}
	b.sig = sig

	mh := b.manifestHash.Hex()
	alg := models.SignatureAlgorithm
	value := base64.StdEncoding.EncodeToString(sig.Value)

	return a.advance(ctx, b, &models.PackagePatch{
		ManifestHash:       &mh,
		SignatureAlgorithm: &alg,
		SignatureValue:     &value,
		SigningKeyID:       &sig.Key.ID,
		SignedAt:           &sig.SignedAt,
	})
}

func (a *Assembler) stampSignature(ctx context.Context, b *buildState) error {
	imprint := timestamp.MessageImprint(b.sig.Value)

	tctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	tok, err := a.tsa.Timestamp(tctx, imprint)
	if err != nil {
		return fmt.Errorf("timestamp authority: %w", err)
	}
	if !tok.Covers(imprint) {
		return timestamp.ErrMismatch
	}
	b.token = tok

	name := a.tsa.Name()
	at := tok.Time.UTC()

	return a.advance(ctx, b, &models.PackagePatch{
		TimestampToken:     tok.Raw,
		TimestampedAt:      &at,
		TimestampAuthority: &name,
	})
}

func (a *Assembler) uploadArchive(ctx context.Context, b *buildState) error {
	data, err := archive.Bytes(&archive.Input{
		Manifest: b.manifest,
		Signature: archive.SignatureDoc{
			Algorithm:    models.SignatureAlgorithm,
			KeyID:        b.sig.Key.ID,
			KeyVersion:   b.sig.Key.Version,
			Fingerprint:  b.sig.Key.Fingerprint,
			PublicKey:    b.sig.Key.PublicKey,
			Value:        base64.StdEncoding.EncodeToString(b.sig.Value),
			SignedAt:     b.sig.SignedAt,
			ManifestHash: b.manifestHash.Hex(),
			MerkleRoot:   b.root.Hex(),
		},
		TimestampToken: b.token.Raw,
		Files:          b.files,
		ModTime:        b.pkg.CreatedAt,
	})
	if err != nil {
		return err
	}

	key := objectstore.ArchiveKey(b.pkg.OrgID, b.pkg.ID, b.pkg.CreatedAt)

	if err := a.external(ctx, func(ctx context.Context) error {
		_, err := a.objects.Put(ctx, key, data)
		return err
	}); err != nil {
		return fmt.Errorf("storing archive: %w", err)
	}

	decision, err := a.applyRetention(ctx, b.pkg, key)
	if err != nil {
		return err
	}

	size := int64(len(data))
	now := time.Now().UTC()
	patch := &models.PackagePatch{
		S3Key:             &key,
		FileSizeBytes:     &size,
		RetentionUntil:    &decision.Until,
		ObjectLockEnabled: &decision.Apply,
		CompletedAt:       &now,
	}
	if decision.Apply {
		patch.ObjectLockMode = &decision.Mode
	}

	return a.advance(ctx, b, patch)
}

// applyRetention evaluates the org's current policy and, when it calls for
// a lock, places it on the stored archive.
func (a *Assembler) applyRetention(ctx context.Context, pkg *models.Package, key string) (retention.Decision, error) {
	cfg, err := a.configs.GetConfig(ctx, pkg.OrgID)
	if err != nil {
		return retention.Decision{}, err
	}

	var supported bool
	if err := a.external(ctx, func(ctx context.Context) error {
		var err error
		supported, err = a.objects.SupportsObjectLock(ctx)
		return err
	}); err != nil {
		return retention.Decision{}, fmt.Errorf("probing object lock: %w", err)
	}

	d := retention.Evaluate(cfg, supported, pkg.CreatedAt)
	if !d.Apply {
		a.log.WithFields(logrus.Fields{
			"org_id":     pkg.OrgID,
			"package_id": pkg.ID,
			"reason":     d.Reason,
		}).Info("archive stored without object lock")

		return d, nil
	}

	if err := a.external(ctx, func(ctx context.Context) error {
		return a.objects.ApplyRetention(ctx, key, models.RetentionState{Mode: d.Mode, Until: d.Until})
	}); err != nil {
		return retention.Decision{}, fmt.Errorf("applying object lock: %w", err)
	}

	return d, nil
}

func (a *Assembler) external(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	return fn(ctx)
}

// fail moves pkg to failed and returns cause. The write uses a context that
// survives cancellation of ctx so a timed-out build still records its failure.
func (a *Assembler) fail(ctx context.Context, pkg *models.Package, cause error) (*models.Package, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	metrics.PackagesTotal.WithLabelValues(string(models.PackageFailed)).Inc()

	entry := a.log.WithError(cause).WithFields(logrus.Fields{
		"org_id":     pkg.OrgID,
		"package_id": pkg.ID,
		"status":     pkg.Status,
	})

	failed, err := a.packages.FailPackage(fctx, pkg.OrgID, pkg.ID, cause.Error())
	if err != nil {
		entry.WithField("fail_error", err.Error()).Error("package build failed and could not be marked failed")
		return nil, cause
	}

	entry.Warn("package build failed")

	return failed, cause
}
