// Package domain defines the canonical data-access interfaces the services
// depend on. The pgx stores in internal/store implement them; tests use hand
// mocks. Consumers should depend on these interfaces rather than
// re-declaring equivalent ones.
package domain

import (
	"context"

	"github.com/persistorai/auditseal/internal/models"
)

// ConfigStore persists the per-organization audit export policy.
type ConfigStore interface {
	GetConfig(ctx context.Context, orgID string) (*models.AuditExportConfig, error)
	UpsertConfig(ctx context.Context, cfg *models.AuditExportConfig) (*models.AuditExportConfig, error)
	DisableConfig(ctx context.Context, orgID string) error
}

// KeyStore persists the public half of signing keys. Rows are never deleted.
type KeyStore interface {
	GetActiveKey(ctx context.Context, orgID string) (*models.SigningKey, error)
	GetKey(ctx context.Context, orgID, keyID string) (*models.SigningKey, error)
	ListKeys(ctx context.Context, orgID string) ([]models.SigningKey, error)
	// RotateKey retires the active key and records the one generate produces,
	// serialised per org across processes.
	RotateKey(ctx context.Context, orgID string, generate func(ctx context.Context) (*models.NewSigningKey, error)) (*models.SigningKey, error)
	ArchiveKey(ctx context.Context, orgID, keyID string) (*models.SigningKey, error)
}

// PackageStore persists packages and their append-only file rows.
type PackageStore interface {
	CreatePackage(ctx context.Context, orgID string, src models.SourceRef, createdBy string) (*models.Package, error)
	GetPackage(ctx context.Context, orgID, id string) (*models.Package, error)
	ListPackages(ctx context.Context, orgID string, opts models.PackageListOpts) ([]models.Package, bool, error)
	// AdvancePackage is a compare-and-set on status.
	AdvancePackage(ctx context.Context, orgID, id string, from, to models.PackageStatus, patch *models.PackagePatch) (*models.Package, error)
	RecordManifest(ctx context.Context, orgID, id string, from, to models.PackageStatus, patch *models.PackagePatch, files []models.ExportFile) (*models.Package, error)
	FailPackage(ctx context.Context, orgID, id, msg string) (*models.Package, error)
	ListFiles(ctx context.Context, orgID, packageID string) ([]models.ExportFile, error)
}

// VerificationStore appends and lists verification logs.
type VerificationStore interface {
	InsertVerification(ctx context.Context, l *models.VerificationLog) error
	ListVerifications(ctx context.Context, orgID, packageID string, limit int) ([]models.VerificationLog, error)
}

// PackStore persists audit pack requests and their artifacts.
type PackStore interface {
	CreatePack(ctx context.Context, orgID string, req *models.CreatePackRequest, requestedBy string) (*models.PackRequest, error)
	GetPack(ctx context.Context, orgID, id string) (*models.PackRequest, error)
	GetArtifact(ctx context.Context, orgID, requestID string) (*models.PackArtifact, error)
	ListPacks(ctx context.Context, orgID string, opts models.PackListOpts) ([]models.PackRequest, bool, error)
	AdvancePack(ctx context.Context, orgID, id string, from, to models.PackStatus) (*models.PackRequest, error)
	CompletePack(ctx context.Context, orgID, id string, from models.PackStatus, artifact *models.PackArtifact) (*models.PackRequest, *models.PackArtifact, error)
	FailPack(ctx context.Context, orgID, id string, from models.PackStatus, code, msg string) (*models.PackRequest, error)
}
