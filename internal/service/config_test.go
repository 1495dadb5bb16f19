package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/persistorai/auditseal/internal/models"
)

type stubLockChecker struct {
	ok  bool
	err error
}

func (p stubLockChecker) SupportsObjectLock(context.Context) (bool, error) { return p.ok, p.err }

func ptr[T any](v T) *T { return &v }

func TestExportConfigService_FirstOptInUsesDefaults(t *testing.T) {
	store := newMemConfigStore()
	svc := NewExportConfigService(store, stubLockChecker{ok: true}, time.Second, testLogger())

	cfg, err := svc.Upsert(context.Background(), testOrg, &models.UpsertConfigRequest{
		RetentionYears: ptr(7),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if cfg.RetentionYears != 7 {
		t.Errorf("retention_years = %d, want 7", cfg.RetentionYears)
	}
	if cfg.RetentionMode != models.RetentionCompliance || !cfg.WORMEnabled {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if !cfg.IsEnabled || !cfg.ObjectLockSupported {
		t.Errorf("enabled=%v lock_supported=%v", cfg.IsEnabled, cfg.ObjectLockSupported)
	}
}

func TestExportConfigService_UpsertKeepsUnsetFields(t *testing.T) {
	store := newMemConfigStore()
	svc := NewExportConfigService(store, stubLockChecker{}, time.Second, testLogger())
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, testOrg, &models.UpsertConfigRequest{RetentionYears: ptr(3)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	mode := models.RetentionGovernance
	cfg, err := svc.Upsert(ctx, testOrg, &models.UpsertConfigRequest{RetentionMode: &mode})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if cfg.RetentionYears != 3 || cfg.RetentionMode != models.RetentionGovernance {
		t.Errorf("cfg = %d years %s", cfg.RetentionYears, cfg.RetentionMode)
	}
}

func TestExportConfigService_RejectsInvalidPolicy(t *testing.T) {
	bad := models.RetentionMode("forever")

	tests := []struct {
		name string
		req  *models.UpsertConfigRequest
	}{
		{"too short", &models.UpsertConfigRequest{RetentionYears: ptr(0)}},
		{"too long", &models.UpsertConfigRequest{RetentionYears: ptr(31)}},
		{"unknown mode", &models.UpsertConfigRequest{RetentionMode: &bad}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemConfigStore()
			svc := NewExportConfigService(store, stubLockChecker{}, time.Second, testLogger())

			if _, err := svc.Upsert(context.Background(), testOrg, tt.req); !errors.Is(err, models.ErrInvalidRetention) {
				t.Errorf("err = %v, want ErrInvalidRetention", err)
			}
			if n := store.count("UpsertConfig"); n != 0 {
				t.Errorf("UpsertConfig called %d times", n)
			}
		})
	}
}

func TestExportConfigService_CheckFailureRecordsUnsupported(t *testing.T) {
	svc := NewExportConfigService(newMemConfigStore(), stubLockChecker{ok: true, err: errors.New("403")}, time.Second, testLogger())

	cfg, err := svc.Upsert(context.Background(), testOrg, &models.UpsertConfigRequest{})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if cfg.ObjectLockSupported {
		t.Error("object_lock_supported should be false when the check fails")
	}
}

func TestExportConfigService_DisableBlocksNewPackages(t *testing.T) {
	h := newHarness(t, false)
	svc := NewExportConfigService(h.configs, h.objects, time.Second, testLogger())
	ctx := context.Background()

	if err := svc.Disable(ctx, testOrg); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	cfg, err := svc.Get(ctx, testOrg)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.IsEnabled {
		t.Error("config still enabled")
	}

	if _, err := h.assembler.Create(ctx, testOrg, models.DataExportSource(testOrg), ""); !errors.Is(err, models.ErrConfigDisabled) {
		t.Errorf("Create err = %v, want ErrConfigDisabled", err)
	}

	if err := svc.Disable(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, models.ErrConfigNotFound) {
		t.Errorf("Disable unknown org err = %v, want ErrConfigNotFound", err)
	}
}
