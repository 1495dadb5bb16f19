package api

import (
	"context"

	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/service"
)

// ConfigService manages the org's export policy (service.ExportConfigService).
type ConfigService interface {
	Get(ctx context.Context, orgID string) (*models.AuditExportConfig, error)
	Upsert(ctx context.Context, orgID string, req *models.UpsertConfigRequest) (*models.AuditExportConfig, error)
	Disable(ctx context.Context, orgID string) error
}

// KeyService manages signing keys (service.KeyManager).
type KeyService interface {
	GetActiveKey(ctx context.Context, orgID string) (*models.SigningKey, error)
	ListKeys(ctx context.Context, orgID string) ([]models.SigningKey, error)
	Rotate(ctx context.Context, orgID string) (*models.SigningKey, error)
	Archive(ctx context.Context, orgID, keyID string) (*models.SigningKey, error)
}

// PackageCreator records new packages (service.Assembler).
type PackageCreator interface {
	Create(ctx context.Context, orgID string, src models.SourceRef, createdBy string) (*models.Package, error)
}

// PackageReader reads packages and their file rows (store.PackageStore).
type PackageReader interface {
	GetPackage(ctx context.Context, orgID, id string) (*models.Package, error)
	ListPackages(ctx context.Context, orgID string, opts models.PackageListOpts) ([]models.Package, bool, error)
	ListFiles(ctx context.Context, orgID, packageID string) ([]models.ExportFile, error)
}

// VerificationService verifies sealed packages (service.Verifier).
type VerificationService interface {
	Verify(ctx context.Context, req service.VerifyRequest) (*models.VerificationReport, error)
	Proof(ctx context.Context, orgID, packageID string, index int) (*service.FileProof, error)
	ListVerifications(ctx context.Context, orgID, packageID string, limit int) ([]models.VerificationLog, error)
}

// PackService manages audit packs (service.PackOrchestrator).
type PackService interface {
	Create(ctx context.Context, orgID string, req *models.CreatePackRequest, requestedBy string) (*models.PackRequest, error)
	Get(ctx context.Context, orgID, id string) (*models.PackRequest, *models.PackArtifact, error)
	List(ctx context.Context, orgID string, opts models.PackListOpts) ([]models.PackRequest, bool, error)
}

// JobQueue schedules builds (service.BuildQueue).
type JobQueue interface {
	Enqueue(job service.BuildJob) error
}
