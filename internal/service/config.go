package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/domain"
	"github.com/persistorai/auditseal/internal/models"
)

// ConfigStore is the data-access interface ExportConfigService depends on.
type ConfigStore = domain.ConfigStore

// LockChecker reports whether the archive store can place object locks.
type LockChecker interface {
	SupportsObjectLock(ctx context.Context) (bool, error)
}

// ExportConfigService manages the per-organization export policy.
// Policy changes only affect packages sealed afterwards.
type ExportConfigService struct {
	store   ConfigStore
	locks   LockChecker
	timeout time.Duration
	log     *logrus.Logger
}

// NewExportConfigService creates an ExportConfigService.
func NewExportConfigService(store ConfigStore, locks LockChecker, timeout time.Duration, log *logrus.Logger) *ExportConfigService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ExportConfigService{store: store, locks: locks, timeout: timeout, log: log}
}

// Get returns the org's config (pass-through).
func (s *ExportConfigService) Get(ctx context.Context, orgID string) (*models.AuditExportConfig, error) {
	return s.store.GetConfig(ctx, orgID)
}

// Upsert opts the org in, or changes its policy. Unset request fields keep
// their current value, or the default on first opt-in.
func (s *ExportConfigService) Upsert(ctx context.Context, orgID string, req *models.UpsertConfigRequest) (*models.AuditExportConfig, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg, err := s.store.GetConfig(ctx, orgID)
	switch {
	case errors.Is(err, models.ErrConfigNotFound):
		def := models.DefaultConfig(orgID)
		cfg = &def
	case err != nil:
		return nil, err
	}

	req.Apply(cfg)
	cfg.OrgID = orgID
	cfg.IsEnabled = true
	cfg.ObjectLockSupported = s.checkObjectLock(ctx, orgID)

	return s.store.UpsertConfig(ctx, cfg)
}

// Disable soft-disables the org's config (pass-through).
func (s *ExportConfigService) Disable(ctx context.Context, orgID string) error {
	return s.store.DisableConfig(ctx, orgID)
}

func (s *ExportConfigService) checkObjectLock(ctx context.Context, orgID string) bool {
	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.locks.SupportsObjectLock(lctx)
	if err != nil {
		s.log.WithError(err).WithField("org_id", orgID).Warn("object lock check failed, recording as unsupported")
		return false
	}

	return ok
}
