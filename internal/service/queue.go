package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/metrics"
	"github.com/persistorai/auditseal/internal/models"
)

// JobKind selects the state machine a BuildJob drives.
type JobKind string

// Job kinds.
const (
	JobPackage JobKind = "package"
	JobPack    JobKind = "pack"
)

// BuildJob asks a worker to run one package build or pack run.
type BuildJob struct {
	Kind  JobKind
	OrgID string
	ID    string
}

// PackageRunner runs a package build.
type PackageRunner interface {
	Run(ctx context.Context, orgID, id string) (*models.Package, error)
}

// PackRunner runs an audit pack.
type PackRunner interface {
	Run(ctx context.Context, orgID, id string) (*models.PackRequest, error)
}

// BuildQueue runs package builds and pack runs on a fixed worker pool.
type BuildQueue struct {
	packages PackageRunner
	packs    PackRunner
	log      *logrus.Logger
	jobs     chan BuildJob
	workers  int
}

// NewBuildQueue creates a BuildQueue with the given capacity and worker count.
func NewBuildQueue(packages PackageRunner, packs PackRunner, log *logrus.Logger, queueSize, workers int) *BuildQueue {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workers <= 0 {
		workers = 2
	}

	return &BuildQueue{
		packages: packages,
		packs:    packs,
		log:      log,
		jobs:     make(chan BuildJob, queueSize),
		workers:  workers,
	}
}

// Enqueue adds a job without blocking. It returns ErrQueueFull when the
// queue is at capacity; the package or pack stays in its initial state.
func (q *BuildQueue) Enqueue(job BuildJob) error {
	select {
	case q.jobs <- job:
		metrics.BuildQueueDepth.Set(float64(len(q.jobs)))
		return nil
	default:
		q.log.WithFields(logrus.Fields{
			"kind": job.Kind,
			"id":   job.ID,
		}).Warn("build queue full, rejecting job")
		return models.ErrQueueFull
	}
}

// Run spawns the workers and blocks until ctx is cancelled and every queued
// job has been processed. Call in a goroutine.
func (q *BuildQueue) Run(ctx context.Context) {
	var wg sync.WaitGroup

	q.log.WithField("workers", q.workers).Info("starting build workers")

	for i := range q.workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.runWorker(ctx, id)
		}(i)
	}

	wg.Wait()
	q.log.Info("all build workers stopped")
}

func (q *BuildQueue) runWorker(ctx context.Context, id int) {
	q.log.WithField("worker_id", id).Debug("build worker started")

	// In-flight jobs are not cancelled on shutdown; external calls are
	// already bounded by their own timeouts.
	jobCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			q.drain(jobCtx)
			return
		case job := <-q.jobs:
			metrics.BuildQueueDepth.Set(float64(len(q.jobs)))
			q.process(jobCtx, job)
		}
	}
}

func (q *BuildQueue) drain(ctx context.Context) {
	for {
		select {
		case job := <-q.jobs:
			metrics.BuildQueueDepth.Set(float64(len(q.jobs)))
			q.process(ctx, job)
		default:
			return
		}
	}
}

func (q *BuildQueue) process(ctx context.Context, job BuildJob) {
	entry := q.log.WithFields(logrus.Fields{
		"org_id": job.OrgID,
		"kind":   job.Kind,
		"id":     job.ID,
	})

	var err error

	switch job.Kind {
	case JobPackage:
		_, err = q.packages.Run(ctx, job.OrgID, job.ID)
	case JobPack:
		_, err = q.packs.Run(ctx, job.OrgID, job.ID)
	default:
		entry.Error("unknown build job kind")
		return
	}

	if err != nil {
		entry.WithError(err).Warn("build job finished with error")
		return
	}

	entry.Debug("build job finished")
}
