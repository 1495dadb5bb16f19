package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/domain"
	"github.com/persistorai/auditseal/internal/lineage"
	"github.com/persistorai/auditseal/internal/metrics"
	"github.com/persistorai/auditseal/internal/models"
)

// PackStore is the data-access interface PackOrchestrator depends on.
type PackStore = domain.PackStore

// RecordSource collects the primary records of a date range and resolves
// their lineage.
type RecordSource interface {
	lineage.Resolver
	CollectRecords(ctx context.Context, orgID string, start, end time.Time) ([]lineage.Node, error)
}

// PackOptions bounds pack runs.
type PackOptions struct {
	MaxLineageNodes  int
	MaxPackRangeDays int
	Timeout          time.Duration
}

// PackOrchestrator drives the audit pack state machine:
// requested -> collecting -> lineage_expanding -> assembling -> hardening -> completed.
// A pack whose lineage does not close fails with the missing ids instead of
// being sealed with dangling references.
type PackOrchestrator struct {
	packs     PackStore
	records   RecordSource
	assembler *Assembler
	opts      PackOptions
	locks     *keyedMutex
	log       *logrus.Logger
}

// NewPackOrchestrator creates a PackOrchestrator.
func NewPackOrchestrator(packs PackStore, records RecordSource, assembler *Assembler, opts PackOptions, log *logrus.Logger) *PackOrchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &PackOrchestrator{
		packs:     packs,
		records:   records,
		assembler: assembler,
		opts:      opts,
		locks:     newKeyedMutex(),
		log:       log,
	}
}

// Create validates the date range and records a requested pack.
func (o *PackOrchestrator) Create(ctx context.Context, orgID string, req *models.CreatePackRequest, requestedBy string) (*models.PackRequest, error) {
	if err := req.Validate(o.opts.MaxPackRangeDays); err != nil {
		return nil, err
	}

	return o.packs.CreatePack(ctx, orgID, req, requestedBy)
}

// Get returns one pack and, when it completed, its artifact.
func (o *PackOrchestrator) Get(ctx context.Context, orgID, id string) (*models.PackRequest, *models.PackArtifact, error) {
	pack, err := o.packs.GetPack(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}

	if pack.Status != models.PackCompleted {
		return pack, nil, nil
	}

	artifact, err := o.packs.GetArtifact(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}

	return pack, artifact, nil
}

// List returns packs newest first (pass-through).
func (o *PackOrchestrator) List(ctx context.Context, orgID string, opts models.PackListOpts) ([]models.PackRequest, bool, error) {
	return o.packs.ListPacks(ctx, orgID, opts)
}

// packRun carries one run's state between stages.
type packRun struct {
	pack      *models.PackRequest
	primary   []lineage.Node
	expansion *lineage.Expansion
	files     []models.SourceFile
	pkg       *models.Package
}

// packFailure attaches a pack error code to a stage error.
type packFailure struct {
	code string
	err  error
}

func (f *packFailure) Error() string { return f.code + ": " + f.err.Error() }
func (f *packFailure) Unwrap() error { return f.err }

func failWith(code string, err error) error {
	return &packFailure{code: code, err: err}
}

// Run processes a requested pack to completion or failure.
func (o *PackOrchestrator) Run(ctx context.Context, orgID, id string) (*models.PackRequest, error) {
	unlock, ok := o.locks.TryLock(id)
	if !ok {
		return nil, fmt.Errorf("%w: pack %s is already running", models.ErrStaleTransition, id)
	}
	defer unlock()

	pack, err := o.packs.GetPack(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if pack.Status != models.PackRequested {
		return nil, fmt.Errorf("%w: pack %s is %s", models.ErrIllegalTransition, id, pack.Status)
	}

	r := &packRun{pack: pack}

	stages := []struct {
		code string
		run  func(context.Context, *packRun) error
	}{
		{models.PackErrCollection, o.collect},
		{models.PackErrExpansion, o.expand},
		{models.PackErrAssembly, o.assemble},
		{models.PackErrHardening, o.harden},
	}

	for _, stage := range stages {
		err := stage.run(ctx, r)
		if err == nil {
			continue
		}

		if errors.Is(err, models.ErrStaleTransition) || errors.Is(err, models.ErrIllegalTransition) {
			return nil, err
		}

		pf := &packFailure{code: stage.code, err: err}
		errors.As(err, &pf)

		return o.fail(ctx, r.pack, pf)
	}

	counts := lineage.Count(r.expansion.Nodes)
	artifact := &models.PackArtifact{
		PackageID:           r.pkg.ID,
		EntryCount:          counts.Entries,
		CorrectionNodeCount: counts.Corrections,
		ApprovalEventCount:  counts.Approvals,
		TimelineEventCount:  counts.Timeline,
		ExpandedNodeCount:   r.expansion.ExpandedCount,
	}

	done, _, err := o.packs.CompletePack(ctx, orgID, id, r.pack.Status, artifact)
	if err != nil {
		return o.fail(ctx, r.pack, &packFailure{code: models.PackErrHardening, err: fmt.Errorf("recording artifact: %w", err)})
	}

	metrics.PacksTotal.WithLabelValues(string(models.PackCompleted)).Inc()

	o.log.WithFields(logrus.Fields{
		"org_id":     orgID,
		"pack_id":    id,
		"package_id": r.pkg.ID,
		"nodes":      len(r.expansion.Nodes),
	}).Info("audit pack completed")

	return done, nil
}

// advance moves the pack to its forward successor.
func (o *PackOrchestrator) advance(ctx context.Context, r *packRun) error {
	next, err := r.pack.Status.Next()
	if err != nil {
		return err
	}

	pack, err := o.packs.AdvancePack(ctx, r.pack.OrgID, r.pack.ID, r.pack.Status, next)
	if err != nil {
		return err
	}

	r.pack = pack

	return nil
}

func (o *PackOrchestrator) collect(ctx context.Context, r *packRun) error {
	if err := o.advance(ctx, r); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	nodes, err := o.records.CollectRecords(cctx, r.pack.OrgID, r.pack.StartDate, r.pack.EndDate)
	if err != nil {
		return failWith(models.PackErrCollection, err)
	}

	r.primary = nodes

	return nil
}

func (o *PackOrchestrator) expand(ctx context.Context, r *packRun) error {
	if err := o.advance(ctx, r); err != nil {
		return err
	}

	exp, err := lineage.Expand(ctx, r.pack.OrgID, r.primary, o.records, o.opts.MaxLineageNodes)
	if err != nil {
		return failWith(models.PackErrExpansion, err)
	}

	res := lineage.Verify(lineage.CoverageInput{
		NodeIDs:           exp.NodeIDs(),
		RequiredLinkedIDs: exp.RequiredLinkedIDs(),
	})
	if !res.IsValid {
		return failWith(models.PackErrLineage, &lineage.IncompleteError{Missing: res.MissingLinkedIDs})
	}

	r.expansion = exp

	return nil
}

// packSummary is written to pack.json at the archive root.
type packSummary struct {
	PackID        string    `json:"pack_id"`
	OrgID         string    `json:"org_id"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	PrimaryCount  int       `json:"primary_count"`
	ExpandedCount int       `json:"expanded_count"`
	Entries       int       `json:"entries"`
	Corrections   int       `json:"corrections"`
	Approvals     int       `json:"approvals"`
	Timeline      int       `json:"timeline_events"`
	NodeIDs       []string  `json:"node_ids"`
}

func (o *PackOrchestrator) assemble(ctx context.Context, r *packRun) error {
	if err := o.advance(ctx, r); err != nil {
		return err
	}

	files, err := packFiles(r.pack, r.expansion)
	if err != nil {
		return failWith(models.PackErrAssembly, err)
	}

	// Reject what the assembler would, so no package is created for a bad set.
	files, err = prepareFiles(files)
	if err != nil {
		return failWith(models.PackErrAssembly, err)
	}

	r.files = files

	return nil
}

// packFiles renders one JSON file per record plus the pack summary.
func packFiles(pack *models.PackRequest, exp *lineage.Expansion) ([]models.SourceFile, error) {
	files := make([]models.SourceFile, 0, len(exp.Nodes)+1)

	for _, n := range exp.Nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("encoding record %s: %w", n.ID, err)
		}
		files = append(files, models.BytesFile(fmt.Sprintf("records/%s/%s.json", n.Kind, n.ID), data))
	}

	counts := lineage.Count(exp.Nodes)
	summary, err := json.MarshalIndent(packSummary{
		PackID:        pack.ID,
		OrgID:         pack.OrgID,
		StartDate:     pack.StartDate.UTC(),
		EndDate:       pack.EndDate.UTC(),
		PrimaryCount:  exp.PrimaryCount,
		ExpandedCount: exp.ExpandedCount,
		Entries:       counts.Entries,
		Corrections:   counts.Corrections,
		Approvals:     counts.Approvals,
		Timeline:      counts.Timeline,
		NodeIDs:       exp.NodeIDs(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding pack summary: %w", err)
	}

	return append(files, models.BytesFile("pack.json", summary)), nil
}

func (o *PackOrchestrator) harden(ctx context.Context, r *packRun) error {
	if err := o.advance(ctx, r); err != nil {
		return err
	}

	pkg, err := o.assembler.Create(ctx, r.pack.OrgID, models.AuditPackSource(r.pack.ID), r.pack.RequestedBy)
	if err != nil {
		return failWith(models.PackErrHardening, err)
	}

	sealed, err := o.assembler.RunWithFiles(ctx, r.pack.OrgID, pkg.ID, r.files)
	if err != nil {
		return failWith(models.PackErrHardening, fmt.Errorf("package %s: %w", pkg.ID, err))
	}

	r.pkg = sealed

	return nil
}

func (o *PackOrchestrator) fail(ctx context.Context, pack *models.PackRequest, pf *packFailure) (*models.PackRequest, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.Timeout)
	defer cancel()

	metrics.PacksTotal.WithLabelValues(string(models.PackFailed)).Inc()

	entry := o.log.WithError(pf.err).WithFields(logrus.Fields{
		"org_id":  pack.OrgID,
		"pack_id": pack.ID,
		"status":  pack.Status,
		"code":    pf.code,
	})

	failed, err := o.packs.FailPack(fctx, pack.OrgID, pack.ID, pack.Status, pf.code, pf.err.Error())
	if err != nil {
		entry.WithField("fail_error", err.Error()).Error("audit pack failed and could not be marked failed")
		return nil, pf
	}

	entry.Warn("audit pack failed")

	return failed, pf
}
