package api_test

import (
	"context"
	"sync"

	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/service"
)

// mockConfigService implements api.ConfigService for testing.
type mockConfigService struct {
	getFn     func(ctx context.Context, orgID string) (*models.AuditExportConfig, error)
	upsertFn  func(ctx context.Context, orgID string, req *models.UpsertConfigRequest) (*models.AuditExportConfig, error)
	disableFn func(ctx context.Context, orgID string) error
}

func (m *mockConfigService) Get(ctx context.Context, orgID string) (*models.AuditExportConfig, error) {
	return m.getFn(ctx, orgID)
}

func (m *mockConfigService) Upsert(ctx context.Context, orgID string, req *models.UpsertConfigRequest) (*models.AuditExportConfig, error) {
	return m.upsertFn(ctx, orgID, req)
}

func (m *mockConfigService) Disable(ctx context.Context, orgID string) error {
	return m.disableFn(ctx, orgID)
}

// mockKeyService implements api.KeyService for testing.
type mockKeyService struct {
	activeFn  func(ctx context.Context, orgID string) (*models.SigningKey, error)
	listFn    func(ctx context.Context, orgID string) ([]models.SigningKey, error)
	rotateFn  func(ctx context.Context, orgID string) (*models.SigningKey, error)
	archiveFn func(ctx context.Context, orgID, keyID string) (*models.SigningKey, error)
}

func (m *mockKeyService) GetActiveKey(ctx context.Context, orgID string) (*models.SigningKey, error) {
	return m.activeFn(ctx, orgID)
}

func (m *mockKeyService) ListKeys(ctx context.Context, orgID string) ([]models.SigningKey, error) {
	return m.listFn(ctx, orgID)
}

func (m *mockKeyService) Rotate(ctx context.Context, orgID string) (*models.SigningKey, error) {
	return m.rotateFn(ctx, orgID)
}

func (m *mockKeyService) Archive(ctx context.Context, orgID, keyID string) (*models.SigningKey, error) {
	return m.archiveFn(ctx, orgID, keyID)
}

// mockPackages implements api.PackageCreator and api.PackageReader for testing.
type mockPackages struct {
	mu      sync.Mutex
	created []models.SourceRef

	createFn func(ctx context.Context, orgID string, src models.SourceRef, createdBy string) (*models.Package, error)
	getFn    func(ctx context.Context, orgID, id string) (*models.Package, error)
	listFn   func(ctx context.Context, orgID string, opts models.PackageListOpts) ([]models.Package, bool, error)
	filesFn  func(ctx context.Context, orgID, packageID string) ([]models.ExportFile, error)
}

func (m *mockPackages) Create(ctx context.Context, orgID string, src models.SourceRef, createdBy string) (*models.Package, error) {
	m.mu.Lock()
	m.created = append(m.created, src)
	m.mu.Unlock()

	return m.createFn(ctx, orgID, src, createdBy)
}

func (m *mockPackages) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.created)
}

func (m *mockPackages) GetPackage(ctx context.Context, orgID, id string) (*models.Package, error) {
	return m.getFn(ctx, orgID, id)
}

func (m *mockPackages) ListPackages(ctx context.Context, orgID string, opts models.PackageListOpts) ([]models.Package, bool, error) {
	return m.listFn(ctx, orgID, opts)
}

func (m *mockPackages) ListFiles(ctx context.Context, orgID, packageID string) ([]models.ExportFile, error) {
	return m.filesFn(ctx, orgID, packageID)
}

// mockVerifier implements api.VerificationService for testing.
type mockVerifier struct {
	mu       sync.Mutex
	requests []service.VerifyRequest

	verifyFn func(ctx context.Context, req service.VerifyRequest) (*models.VerificationReport, error)
	proofFn  func(ctx context.Context, orgID, packageID string, index int) (*service.FileProof, error)
	logsFn   func(ctx context.Context, orgID, packageID string, limit int) ([]models.VerificationLog, error)
}

func (m *mockVerifier) Verify(ctx context.Context, req service.VerifyRequest) (*models.VerificationReport, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	return m.verifyFn(ctx, req)
}

func (m *mockVerifier) lastRequest() service.VerifyRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.requests) == 0 {
		return service.VerifyRequest{}
	}

	return m.requests[len(m.requests)-1]
}

func (m *mockVerifier) Proof(ctx context.Context, orgID, packageID string, index int) (*service.FileProof, error) {
	return m.proofFn(ctx, orgID, packageID, index)
}

func (m *mockVerifier) ListVerifications(ctx context.Context, orgID, packageID string, limit int) ([]models.VerificationLog, error) {
	return m.logsFn(ctx, orgID, packageID, limit)
}

// mockPackService implements api.PackService for testing.
type mockPackService struct {
	createFn func(ctx context.Context, orgID string, req *models.CreatePackRequest, requestedBy string) (*models.PackRequest, error)
	getFn    func(ctx context.Context, orgID, id string) (*models.PackRequest, *models.PackArtifact, error)
	listFn   func(ctx context.Context, orgID string, opts models.PackListOpts) ([]models.PackRequest, bool, error)
}

func (m *mockPackService) Create(ctx context.Context, orgID string, req *models.CreatePackRequest, requestedBy string) (*models.PackRequest, error) {
	return m.createFn(ctx, orgID, req, requestedBy)
}

func (m *mockPackService) Get(ctx context.Context, orgID, id string) (*models.PackRequest, *models.PackArtifact, error) {
	return m.getFn(ctx, orgID, id)
}

func (m *mockPackService) List(ctx context.Context, orgID string, opts models.PackListOpts) ([]models.PackRequest, bool, error) {
	return m.listFn(ctx, orgID, opts)
}

// mockQueue implements api.JobQueue, recording every accepted job.
type mockQueue struct {
	mu   sync.Mutex
	jobs []service.BuildJob
	err  error
}

func (m *mockQueue) Enqueue(job service.BuildJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)

	return nil
}

func (m *mockQueue) enqueued() []service.BuildJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]service.BuildJob(nil), m.jobs...)
}
