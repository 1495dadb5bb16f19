package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	rfc3161 "github.com/digitorus/timestamp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/lineage"
	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/objectstore"
	"github.com/persistorai/auditseal/internal/signing"
	"github.com/persistorai/auditseal/internal/timestamp"
)

const testOrg = "8d5e1f0a-3b7c-4e2d-9a61-0f4c2b8e7d13"

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// calls is embedded by every fake to record method names under a mutex.
type calls struct {
	mu    sync.Mutex
	names []string
}

func (c *calls) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
}

func (c *calls) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, got := range c.names {
		if got == name {
			n++
		}
	}
	return n
}

func (c *calls) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}

// memConfigStore is an in-memory ConfigStore.
type memConfigStore struct {
	calls
	cfgs map[string]*models.AuditExportConfig
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{cfgs: make(map[string]*models.AuditExportConfig)}
}

func (s *memConfigStore) GetConfig(_ context.Context, orgID string) (*models.AuditExportConfig, error) {
	s.record("GetConfig")
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.cfgs[orgID]
	if !ok {
		return nil, models.ErrConfigNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (s *memConfigStore) UpsertConfig(_ context.Context, cfg *models.AuditExportConfig) (*models.AuditExportConfig, error) {
	s.record("UpsertConfig")
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cfg
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	s.cfgs[cfg.OrgID] = &cp
	out := cp
	return &out, nil
}

func (s *memConfigStore) DisableConfig(_ context.Context, orgID string) error {
	s.record("DisableConfig")
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.cfgs[orgID]
	if !ok {
		return models.ErrConfigNotFound
	}
	cfg.IsEnabled = false
	return nil
}

// memKeyStore is an in-memory KeyStore.
type memKeyStore struct {
	calls
	keys []models.SigningKey
}

func (s *memKeyStore) GetActiveKey(_ context.Context, orgID string) (*models.SigningKey, error) {
	s.record("GetActiveKey")
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.keys {
		if k.OrgID == orgID && k.IsActive {
			cp := k
			return &cp, nil
		}
	}
	return nil, models.ErrNoActiveKey
}

func (s *memKeyStore) GetKey(_ context.Context, orgID, keyID string) (*models.SigningKey, error) {
	s.record("GetKey")
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.keys {
		if k.OrgID == orgID && k.ID == keyID {
			cp := k
			return &cp, nil
		}
	}
	return nil, models.ErrKeyNotFound
}

func (s *memKeyStore) ListKeys(_ context.Context, orgID string) ([]models.SigningKey, error) {
	s.record("ListKeys")
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.SigningKey
	for _, k := range s.keys {
		if k.OrgID == orgID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (s *memKeyStore) RotateKey(ctx context.Context, orgID string, generate func(ctx context.Context) (*models.NewSigningKey, error)) (*models.SigningKey, error) {
	s.record("RotateKey")

	nk, err := generate(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	version := 0
	for i := range s.keys {
		k := &s.keys[i]
		if k.OrgID != orgID {
			continue
		}
		if k.Version > version {
			version = k.Version
		}
		if k.IsActive {
			k.IsActive = false
			k.RotatedAt = &now
		}
	}

	key := models.SigningKey{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		Algorithm:   models.SignatureAlgorithm,
		PublicKey:   nk.PublicKey,
		Fingerprint: nk.Fingerprint,
		Version:     version + 1,
		IsActive:    true,
		CreatedAt:   now,
	}
	s.keys = append(s.keys, key)

	return &key, nil
}

func (s *memKeyStore) ArchiveKey(_ context.Context, orgID, keyID string) (*models.SigningKey, error) {
	s.record("ArchiveKey")
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.keys {
		k := &s.keys[i]
		if k.OrgID != orgID || k.ID != keyID {
			continue
		}
		if k.IsActive {
			return nil, models.ErrKeyStillActive
		}
		if k.ArchivedAt != nil {
			return nil, models.ErrKeyAlreadyArchived
		}
		now := time.Now().UTC()
		k.ArchivedAt = &now
		cp := *k
		return &cp, nil
	}
	return nil, models.ErrKeyNotFound
}

// memPackageStore is an in-memory PackageStore enforcing the same
// compare-and-set rules as the Postgres store.
type memPackageStore struct {
	calls
	pkgs  map[string]*models.Package
	files map[string][]models.ExportFile
}

func newMemPackageStore() *memPackageStore {
	return &memPackageStore{
		pkgs:  make(map[string]*models.Package),
		files: make(map[string][]models.ExportFile),
	}
}

func (s *memPackageStore) CreatePackage(_ context.Context, orgID string, src models.SourceRef, createdBy string) (*models.Package, error) {
	s.record("CreatePackage")
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &models.Package{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Source:    src,
		Status:    models.PackagePending,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.pkgs[p.ID] = p
	cp := *p
	return &cp, nil
}

func (s *memPackageStore) GetPackage(_ context.Context, orgID, id string) (*models.Package, error) {
	s.record("GetPackage")
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pkgs[id]
	if !ok || p.OrgID != orgID {
		return nil, models.ErrPackageNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memPackageStore) ListPackages(_ context.Context, orgID string, opts models.PackageListOpts) ([]models.Package, bool, error) {
	s.record("ListPackages")
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Package
	for _, p := range s.pkgs {
		if p.OrgID == orgID && (opts.Status == "" || p.Status == opts.Status) {
			out = append(out, *p)
		}
	}
	return out, false, nil
}

func (s *memPackageStore) AdvancePackage(ctx context.Context, orgID, id string, from, to models.PackageStatus, patch *models.PackagePatch) (*models.Package, error) {
	s.record("AdvancePackage")
	return s.advance(orgID, id, from, to, patch, nil)
}

func (s *memPackageStore) RecordManifest(ctx context.Context, orgID, id string, from, to models.PackageStatus, patch *models.PackagePatch, files []models.ExportFile) (*models.Package, error) {
	s.record("RecordManifest")
	return s.advance(orgID, id, from, to, patch, files)
}

func (s *memPackageStore) advance(orgID, id string, from, to models.PackageStatus, patch *models.PackagePatch, files []models.ExportFile) (*models.Package, error) {
	if !models.CanTransition(from, to) {
		return nil, models.ErrIllegalTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pkgs[id]
	if !ok || p.OrgID != orgID {
		return nil, models.ErrPackageNotFound
	}
	if p.Status != from {
		return nil, models.ErrStaleTransition
	}

	applyPatch(p, patch)
	p.Status = to
	p.UpdatedAt = time.Now().UTC()

	for i := range files {
		f := files[i]
		f.ID = int64(len(s.files[id]) + 1)
		f.PackageID = id
		s.files[id] = append(s.files[id], f)
	}

	cp := *p
	return &cp, nil
}

func applyPatch(p *models.Package, patch *models.PackagePatch) {
	if patch == nil {
		return
	}
	if patch.MerkleRoot != nil {
		p.MerkleRoot = *patch.MerkleRoot
	}
	if patch.ManifestHash != nil {
		p.ManifestHash = *patch.ManifestHash
	}
	if patch.FileCount != nil {
		p.FileCount = *patch.FileCount
	}
	if patch.SignatureAlgorithm != nil {
		p.SignatureAlgorithm = *patch.SignatureAlgorithm
	}
	if patch.SignatureValue != nil {
		p.SignatureValue = *patch.SignatureValue
	}
	if patch.SigningKeyID != nil {
		p.SigningKeyID = *patch.SigningKeyID
	}
	if patch.SignedAt != nil {
		p.SignedAt = patch.SignedAt
	}
	if patch.TimestampToken != nil {
		p.TimestampToken = patch.TimestampToken
	}
	if patch.TimestampedAt != nil {
		p.TimestampedAt = patch.TimestampedAt
	}
	if patch.TimestampAuthority != nil {
		p.TimestampAuthority = *patch.TimestampAuthority
	}
	if patch.S3Key != nil {
		p.S3Key = *patch.S3Key
	}
	if patch.FileSizeBytes != nil {
		p.FileSizeBytes = *patch.FileSizeBytes
	}
	if patch.RetentionUntil != nil {
		p.RetentionUntil = patch.RetentionUntil
	}
	if patch.ObjectLockEnabled != nil {
		p.ObjectLockEnabled = *patch.ObjectLockEnabled
	}
	if patch.ObjectLockMode != nil {
		p.ObjectLockMode = *patch.ObjectLockMode
	}
	if patch.CompletedAt != nil {
		p.CompletedAt = patch.CompletedAt
	}
}

func (s *memPackageStore) FailPackage(_ context.Context, orgID, id, msg string) (*models.Package, error) {
	s.record("FailPackage")
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pkgs[id]
	if !ok || p.OrgID != orgID {
		return nil, models.ErrPackageNotFound
	}
	if p.Status.Terminal() {
		return nil, models.ErrIllegalTransition
	}

	p.Status = models.PackageFailed
	p.ErrorMessage = msg
	cp := *p
	return &cp, nil
}

func (s *memPackageStore) ListFiles(_ context.Context, orgID, packageID string) ([]models.ExportFile, error) {
	s.record("ListFiles")
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.ExportFile(nil), s.files[packageID]...), nil
}

// setStatus forces a status, bypassing the state machine.
func (s *memPackageStore) setStatus(id string, status models.PackageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkgs[id].Status = status
}

// memVerificationStore is an append-only in-memory VerificationStore.
type memVerificationStore struct {
	calls
	logs []models.VerificationLog
}

func (s *memVerificationStore) InsertVerification(_ context.Context, l *models.VerificationLog) error {
	s.record("InsertVerification")
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ID = uuid.NewString()
	l.VerifiedAt = time.Now().UTC()
	s.logs = append(s.logs, *l)
	return nil
}

func (s *memVerificationStore) ListVerifications(_ context.Context, orgID, packageID string, limit int) ([]models.VerificationLog, error) {
	s.record("ListVerifications")
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.VerificationLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].PackageID == packageID {
			out = append(out, s.logs[i])
		}
	}
	return out, nil
}

func (s *memVerificationStore) all() []models.VerificationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.VerificationLog(nil), s.logs...)
}

// memPackStore is an in-memory PackStore.
type memPackStore struct {
	calls
	packs     map[string]*models.PackRequest
	artifacts map[string]*models.PackArtifact
}

func newMemPackStore() *memPackStore {
	return &memPackStore{
		packs:     make(map[string]*models.PackRequest),
		artifacts: make(map[string]*models.PackArtifact),
	}
}

func (s *memPackStore) CreatePack(_ context.Context, orgID string, req *models.CreatePackRequest, requestedBy string) (*models.PackRequest, error) {
	s.record("CreatePack")
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := &models.PackRequest{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		RequestedBy: requestedBy,
		Status:      models.PackRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.packs[p.ID] = p
	cp := *p
	return &cp, nil
}

func (s *memPackStore) GetPack(_ context.Context, orgID, id string) (*models.PackRequest, error) {
	s.record("GetPack")
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packs[id]
	if !ok || p.OrgID != orgID {
		return nil, models.ErrPackRequestNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memPackStore) GetArtifact(_ context.Context, _, requestID string) (*models.PackArtifact, error) {
	s.record("GetArtifact")
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[requestID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memPackStore) ListPacks(_ context.Context, orgID string, _ models.PackListOpts) ([]models.PackRequest, bool, error) {
	s.record("ListPacks")
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.PackRequest
	for _, p := range s.packs {
		if p.OrgID == orgID {
			out = append(out, *p)
		}
	}
	return out, false, nil
}

func (s *memPackStore) transition(orgID, id string, from, to models.PackStatus) (*models.PackRequest, error) {
	if !models.CanTransitionPack(from, to) {
		return nil, models.ErrIllegalTransition
	}

	p, ok := s.packs[id]
	if !ok || p.OrgID != orgID {
		return nil, models.ErrPackRequestNotFound
	}
	if p.Status != from {
		return nil, models.ErrStaleTransition
	}

	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	if to.Terminal() {
		now := p.UpdatedAt
		p.CompletedAt = &now
	}
	return p, nil
}

func (s *memPackStore) AdvancePack(_ context.Context, orgID, id string, from, to models.PackStatus) (*models.PackRequest, error) {
	s.record("AdvancePack")
	if to.Terminal() {
		return nil, models.ErrIllegalTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.transition(orgID, id, from, to)
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (s *memPackStore) CompletePack(_ context.Context, orgID, id string, from models.PackStatus, artifact *models.PackArtifact) (*models.PackRequest, *models.PackArtifact, error) {
	s.record("CompletePack")
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.transition(orgID, id, from, models.PackCompleted)
	if err != nil {
		return nil, nil, err
	}

	a := *artifact
	a.ID = uuid.NewString()
	a.RequestID = id
	a.CreatedAt = time.Now().UTC()
	s.artifacts[id] = &a

	cp, ca := *p, a
	return &cp, &ca, nil
}

func (s *memPackStore) FailPack(_ context.Context, orgID, id string, from models.PackStatus, code, msg string) (*models.PackRequest, error) {
	s.record("FailPack")
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.transition(orgID, id, from, models.PackFailed)
	if err != nil {
		return nil, err
	}
	p.ErrorCode = code
	p.ErrorMessage = msg
	cp := *p
	return &cp, nil
}

// fakeTSA mints real RFC 3161 tokens with a throwaway certificate.
type fakeTSA struct {
	calls
	cert *x509.Certificate
	key  *rsa.PrivateKey
	err  error
	// clock, when set, overrides the token time.
	clock func() time.Time
}

var (
	tsaOnce sync.Once
	tsaCert *x509.Certificate
	tsaKey  *rsa.PrivateKey
	tsaErr  error
)

func newFakeTSA(t *testing.T) *fakeTSA {
	t.Helper()

	tsaOnce.Do(func() {
		tsaKey, tsaErr = rsa.GenerateKey(rand.Reader, 2048)
		if tsaErr != nil {
			return
		}

		var eku []byte
		eku, tsaErr = asn1.Marshal([]asn1.ObjectIdentifier{{1, 3, 6, 1, 5, 5, 7, 3, 8}})
		if tsaErr != nil {
			return
		}

		now := time.Now()
		tmpl := &x509.Certificate{
			SerialNumber:          big.NewInt(1),
			Subject:               pkix.Name{CommonName: "Test TSA"},
			NotBefore:             now.Add(-time.Hour),
			NotAfter:              now.Add(24 * time.Hour),
			KeyUsage:              x509.KeyUsageDigitalSignature,
			BasicConstraintsValid: true,
			ExtraExtensions: []pkix.Extension{
				{Id: asn1.ObjectIdentifier{2, 5, 29, 37}, Critical: true, Value: eku},
			},
		}

		var der []byte
		der, tsaErr = x509.CreateCertificate(rand.Reader, tmpl, tmpl, &tsaKey.PublicKey, tsaKey)
		if tsaErr != nil {
			return
		}
		tsaCert, tsaErr = x509.ParseCertificate(der)
	})

	if tsaErr != nil {
		t.Fatalf("test tsa: %v", tsaErr)
	}

	return &fakeTSA{cert: tsaCert, key: tsaKey}
}

func (f *fakeTSA) Name() string { return "tsa.test" }

func (f *fakeTSA) Timestamp(ctx context.Context, digest []byte) (*timestamp.Token, error) {
	f.record("Timestamp")
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	at := time.Now()
	if f.clock != nil {
		at = f.clock()
	}

	ts := rfc3161.Timestamp{
		HashAlgorithm:     crypto.SHA256,
		HashedMessage:     digest,
		Time:              at,
		SerialNumber:      big.NewInt(7),
		Policy:            asn1.ObjectIdentifier{1, 2, 3, 4, 1},
		AddTSACertificate: true,
	}

	resp, err := ts.CreateResponse(f.cert, f.key)
	if err != nil {
		return nil, fmt.Errorf("create response: %w", err)
	}

	parsed, err := rfc3161.ParseResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return timestamp.ParseToken(parsed.RawToken)
}

// failingStore wraps an object store and fails selected operations.
type failingStore struct {
	objectstore.Store
	putErr    error
	retainErr error
}

func (f *failingStore) Put(ctx context.Context, key string, data []byte) (*objectstore.PutResult, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	return f.Store.Put(ctx, key, data)
}

func (f *failingStore) ApplyRetention(ctx context.Context, key string, state models.RetentionState) error {
	if f.retainErr != nil {
		return f.retainErr
	}
	return f.Store.ApplyRetention(ctx, key, state)
}

// graphSource is a RecordSource over a fixed node set.
type graphSource struct {
	calls
	nodes      map[string]lineage.Node
	primary    []string
	collectErr error
}

func newGraphSource(primary []string, nodes ...lineage.Node) *graphSource {
	g := &graphSource{nodes: make(map[string]lineage.Node), primary: primary}
	for _, n := range nodes {
		g.nodes[n.ID] = n
	}
	return g
}

func (g *graphSource) CollectRecords(_ context.Context, _ string, _, _ time.Time) ([]lineage.Node, error) {
	g.record("CollectRecords")
	if g.collectErr != nil {
		return nil, g.collectErr
	}

	out := make([]lineage.Node, 0, len(g.primary))
	for _, id := range g.primary {
		out = append(out, g.nodes[id])
	}
	return out, nil
}

func (g *graphSource) FetchNodes(_ context.Context, _ string, ids []string) ([]lineage.Node, error) {
	g.record("FetchNodes")

	var out []lineage.Node
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (g *graphSource) FetchDependents(_ context.Context, _ string, ids []string) ([]lineage.Node, error) {
	g.record("FetchDependents")

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var out []lineage.Node
	for _, n := range g.nodes {
		for _, l := range n.Links {
			if want[l] {
				out = append(out, n)
				break
			}
		}
	}
	return out, nil
}

// fileFetcher serves fixed files per source id.
type fileFetcher struct {
	calls
	files map[string][]models.SourceFile
	err   error
}

func (f *fileFetcher) FetchFiles(_ context.Context, _ string, src models.SourceRef) ([]models.SourceFile, error) {
	f.record("FetchFiles")
	if f.err != nil {
		return nil, f.err
	}
	files, ok := f.files[src.ID()]
	if !ok {
		return nil, models.ErrObjectNotFound
	}
	return files, nil
}

// harness wires real services over in-memory fakes.
type harness struct {
	configs   *memConfigStore
	keys      *memKeyStore
	packages  *memPackageStore
	logs      *memVerificationStore
	packs     *memPackStore
	secrets   *signing.MemorySecretStore
	objects   *objectstore.MemoryStore
	tsa       *fakeTSA
	fetcher   *fileFetcher
	keyMgr    *KeyManager
	assembler *Assembler
	verifier  *Verifier
}

func newHarness(t *testing.T, lockSupported bool) *harness {
	t.Helper()

	h := &harness{
		configs:  newMemConfigStore(),
		keys:     &memKeyStore{},
		packages: newMemPackageStore(),
		logs:     &memVerificationStore{},
		packs:    newMemPackStore(),
		secrets:  signing.NewMemorySecretStore(),
		objects:  objectstore.NewMemoryStore(lockSupported),
		tsa:      newFakeTSA(t),
		fetcher:  &fileFetcher{files: make(map[string][]models.SourceFile)},
	}

	log := testLogger()

	h.keyMgr = NewKeyManager(h.keys, h.secrets, 5*time.Second, log)
	h.assembler = NewAssembler(AssemblerDeps{
		Packages:    h.packages,
		Configs:     h.configs,
		Keys:        h.keyMgr,
		TSA:         h.tsa,
		Objects:     h.objects,
		Files:       h.fetcher,
		HashWorkers: 2,
		Timeout:     5 * time.Second,
		Log:         log,
	})
	h.verifier = NewVerifier(VerifierDeps{
		Packages:    h.packages,
		Keys:        h.keyMgr,
		Logs:        h.logs,
		Objects:     h.objects,
		HashWorkers: 2,
		Timeout:     5 * time.Second,
		Log:         log,
	})

	cfg := models.DefaultConfig(testOrg)
	if _, err := h.configs.UpsertConfig(context.Background(), &cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	return h
}

func threeFiles() []models.SourceFile {
	return []models.SourceFile{
		models.BytesFile("payroll/c.csv", []byte("employee,net\n3,3000\n")),
		models.BytesFile("payroll/a.csv", []byte("employee,net\n1,1000\n")),
		models.BytesFile("payroll/b.csv", []byte("employee,net\n2,2000\n")),
	}
}

// seal creates and builds a package from files.
func (h *harness) seal(t *testing.T, files []models.SourceFile) *models.Package {
	t.Helper()

	ctx := context.Background()

	pkg, err := h.assembler.Create(ctx, testOrg, models.DataExportSource(uuid.NewString()), "tester")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sealed, err := h.assembler.RunWithFiles(ctx, testOrg, pkg.ID, files)
	if err != nil {
		t.Fatalf("RunWithFiles: %v", err)
	}

	return sealed
}
