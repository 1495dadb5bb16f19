package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/store"
)

func TestPackLifecycle(t *testing.T) {
	base, orgID := setupTestBase(t)
	packs := store.NewPackStore(base)
	pkgs := store.NewPackageStore(base)
	ctx := context.Background()

	req := &models.CreatePackRequest{
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}

	p, err := packs.CreatePack(ctx, orgID, req, "auditor")
	if err != nil {
		t.Fatalf("CreatePack: %v", err)
	}
	if p.Status != models.PackRequested {
		t.Fatalf("status = %s", p.Status)
	}

	steps := []models.PackStatus{models.PackCollecting, models.PackLineageExpanding, models.PackAssembling, models.PackHardening}
	from := models.PackRequested

	for _, to := range steps {
		if _, err := packs.AdvancePack(ctx, orgID, p.ID, from, to); err != nil {
			t.Fatalf("advance %s -> %s: %v", from, to, err)
		}
		from = to
	}

	pkg, err := pkgs.CreatePackage(ctx, orgID, models.AuditPackSource(p.ID), "auditor")
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}

	done, art, err := packs.CompletePack(ctx, orgID, p.ID, models.PackHardening, &models.PackArtifact{
		PackageID:           pkg.ID,
		EntryCount:          10,
		CorrectionNodeCount: 2,
		ApprovalEventCount:  3,
		TimelineEventCount:  4,
		ExpandedNodeCount:   1,
	})
	if err != nil {
		t.Fatalf("CompletePack: %v", err)
	}
	if done.Status != models.PackCompleted || done.CompletedAt == nil {
		t.Errorf("pack = %+v", done)
	}
	if art.RequestID != p.ID || art.EntryCount != 10 {
		t.Errorf("artifact = %+v", art)
	}

	got, err := packs.GetArtifact(ctx, orgID, p.ID)
	if err != nil || got == nil || got.ID != art.ID {
		t.Errorf("GetArtifact = %+v, %v", got, err)
	}
}

func TestFailPack(t *testing.T) {
	base, orgID := setupTestBase(t)
	packs := store.NewPackStore(base)
	ctx := context.Background()

	p, _ := packs.CreatePack(ctx, orgID, &models.CreatePackRequest{
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}, "")

	_, _ = packs.AdvancePack(ctx, orgID, p.ID, models.PackRequested, models.PackCollecting)

	failed, err := packs.FailPack(ctx, orgID, p.ID, models.PackCollecting, models.PackErrCollection, "upstream 503")
	if err != nil {
		t.Fatalf("FailPack: %v", err)
	}
	if failed.Status != models.PackFailed || failed.ErrorCode != models.PackErrCollection {
		t.Errorf("failed = %+v", failed)
	}

	if _, err := packs.AdvancePack(ctx, orgID, p.ID, models.PackFailed, models.PackCollecting); !errors.Is(err, models.ErrIllegalTransition) {
		t.Errorf("leaving failed: %v", err)
	}

	art, err := packs.GetArtifact(ctx, orgID, p.ID)
	if err != nil || art != nil {
		t.Errorf("failed pack has artifact %+v, %v", art, err)
	}

	list, _, _ := packs.ListPacks(ctx, orgID, models.PackListOpts{})
	if len(list) != 1 {
		t.Errorf("ListPacks = %d", len(list))
	}
}
