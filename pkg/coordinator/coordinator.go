package coordinator

import (
	"context"
	"errors"
	"time"

	"custsync/internal/runner"
	"custsync/pkg/checkpoint"
	"custsync/pkg/config"
	errs "custsync/pkg/errors"
	"custsync/pkg/lock"
	"custsync/pkg/logger"
	"custsync/pkg/materializer"
	"custsync/pkg/metrics"
	"custsync/pkg/models"
	"custsync/pkg/pager"
	"custsync/pkg/ratelimit"
	"custsync/pkg/recordcache"
	"custsync/pkg/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	releaseTimeout      = 5 * time.Second
)

// Options modifies a start or resume
type Options struct {
	// MaterializeAfter writes the CSV artifact once the job completes
	MaterializeAfter bool
}

// Deps are the collaborators of a Coordinator
type Deps struct {
	Store        *checkpoint.Store
	Cache        *recordcache.Cache
	Source       pager.Source
	Locker       lock.Locker
	Pool         *runner.Pool
	Materializer *materializer.Materializer
	Logger       logger.Logger
}

// Coordinator owns the job lifecycle. It guarantees one active job per
// collection and that every run ends with its state persisted and its
// collection lease released.
type Coordinator struct {
	store        *checkpoint.Store
	cache        *recordcache.Cache
	source       pager.Source
	locker       lock.Locker
	pool         *runner.Pool
	materializer *materializer.Materializer
	logger       logger.Logger

	collections map[string]struct{}
	pagerOpts   pager.Options
}

// New creates a coordinator for the collections configured in cfg
func New(cfg *config.Config, deps Deps) *Coordinator {
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	collections := make(map[string]struct{}, len(cfg.Collections))
	for _, col := range cfg.Collections {
		collections[col.Name] = struct{}{}
	}

	return &Coordinator{
		store:        deps.Store,
		cache:        deps.Cache,
		source:       deps.Source,
		locker:       deps.Locker,
		pool:         deps.Pool,
		materializer: deps.Materializer,
		logger:       log.WithField("component", "coordinator"),
		collections:  collections,
		pagerOpts: pager.Options{
			PageSize: cfg.Paging.PageSize,
			Delay:    ratelimit.NewFixedDelay(cfg.Paging.PageDelay),
			MaxPages: cfg.Paging.MaxPages,
		},
	}
}

func lockKey(collection string) string {
	return "collection:" + collection
}

func (c *Coordinator) validCollection(op, collection string) error {
	if _, ok := c.collections[collection]; !ok {
		return errs.Validation(op, "unknown collection %q", collection)
	}
	return nil
}

// acquire takes the collection lease and checks no other job is active.
// except is a job id allowed to be active (the one being resumed).
func (c *Coordinator) acquire(ctx context.Context, op, collection, except string) (lock.Lease, error) {
	lease, err := c.locker.Acquire(ctx, lockKey(collection))
	if errors.Is(err, lock.ErrLocked) {
		return nil, errs.Conflict(op, "collection %q already has a job in progress", collection)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, op, err)
	}

	active, err := c.store.FindActive(ctx, collection)
	if err == nil && active != nil && active.ID != except {
		err = errs.Conflict(op, "collection %q has active job %s (%s)", collection, active.ID, active.Status)
	}
	if err != nil {
		c.release(lease)
		return nil, err
	}
	return lease, nil
}

func (c *Coordinator) release(lease lock.Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		c.logger.WithError(err).WarnWithFields("Failed to release collection lease", map[string]interface{}{
			"key": lease.Key(),
		})
	}
}

// Start creates a job for collection and runs it in the background
func (c *Coordinator) Start(ctx context.Context, collection string, opts Options) (*models.Job, *runner.Handle, error) {
	const op = "coordinator.start"
	if err := c.validCollection(op, collection); err != nil {
		return nil, nil, err
	}

	lease, err := c.acquire(ctx, op, collection, "")
	if err != nil {
		return nil, nil, err
	}

	job, err := c.store.Create(ctx, collection)
	if err != nil {
		c.release(lease)
		return nil, nil, err
	}
	return c.launch(ctx, op, job, lease, opts)
}

// Resume re-runs a failed or orphaned job from its checkpoint. target is a
// job id or a collection name; a collection resolves to its most recent
// unfinished job.
func (c *Coordinator) Resume(ctx context.Context, target string, opts Options) (*models.Job, *runner.Handle, error) {
	const op = "coordinator.resume"

	job, err := c.resolve(ctx, op, target)
	if err != nil {
		return nil, nil, err
	}
	if err := checkResumable(op, job); err != nil {
		return nil, nil, err
	}

	lease, err := c.acquire(ctx, op, job.Collection, job.ID)
	if err != nil {
		return nil, nil, err
	}

	// Re-read under the lease; the job may have moved since resolve
	job, err = c.store.Get(ctx, job.ID)
	if err == nil {
		err = checkResumable(op, job)
	}
	if err != nil {
		c.release(lease)
		return nil, nil, err
	}

	c.logger.InfoWithFields("Resuming job", map[string]interface{}{
		"job_id":     job.ID,
		"collection": job.Collection,
		"status":     string(job.Status),
		"processed":  job.ProcessedCount,
		"note":       "upstream total is not tracked; counts assume the collection did not change since the last run",
	})
	return c.launch(ctx, op, job, lease, opts)
}

func (c *Coordinator) resolve(ctx context.Context, op, target string) (*models.Job, error) {
	if _, ok := c.collections[target]; ok {
		job, err := c.store.LatestUnfinished(ctx, target)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, errs.InvalidState(op, "collection %q has no job to resume", target)
		}
		return job, nil
	}
	return c.store.Get(ctx, target)
}

func checkResumable(op string, job *models.Job) error {
	if job.Status == models.JobCompleted {
		return errs.InvalidState(op, "job %s is already completed", job.ID)
	}
	if job.Cursor == nil {
		return errs.InvalidState(op, "job %s has no committed page to resume from; start a new job", job.ID)
	}
	return nil
}

// launch moves the job to running and submits it. The lease passes to the task.
func (c *Coordinator) launch(ctx context.Context, op string, job *models.Job, lease lock.Lease, opts Options) (*models.Job, *runner.Handle, error) {
	from := job.Status
	if job.Status != models.JobRunning {
		if err := c.store.MarkRunning(ctx, job.ID); err != nil {
			c.release(lease)
			return nil, nil, err
		}
	}

	job, err := c.store.Get(ctx, job.ID)
	if err != nil {
		c.release(lease)
		return nil, nil, err
	}
	logger.LogJobTransition(c.logger, job.ID, job.Collection, string(from), string(models.JobRunning), nil)
	metrics.JobTransitions.WithLabelValues(string(models.JobRunning)).Inc()

	snapshot := *job
	handle, err := c.pool.Submit(job.ID, func(taskCtx context.Context) error {
		return c.run(taskCtx, &snapshot, lease, opts)
	})
	if err != nil {
		err = errs.Wrap(errs.KindUnknown, op, err)
		c.markFailed(ctx, job, err)
		c.release(lease)
		return nil, nil, err
	}
	return job, handle, nil
}

func (c *Coordinator) run(ctx context.Context, job *models.Job, lease lock.Lease, opts Options) (err error) {
	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()
	defer c.release(lease)

	// A panic still records the job as failed before the lease goes
	completed := false
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.KindUnknown, "coordinator.run", "job panicked: %v", r)
			if !completed {
				c.markFailed(ctx, job, err)
			}
		}
	}()

	log := c.logger.WithFields(map[string]interface{}{
		"job_id":     job.ID,
		"collection": job.Collection,
	})
	p := pager.New(c.source, c.cache, c.store, c.pagerOpts, log)

	res, err := p.Run(ctx, job)
	if err != nil {
		c.markFailed(ctx, job, err)
		return err
	}
	if err := c.markCompleted(ctx, job, res.Processed); err != nil {
		return err
	}
	completed = true

	if opts.MaterializeAfter && c.materializer != nil {
		path, err := c.materializer.Materialize(ctx, job.Collection)
		switch {
		case errs.Is(err, errs.KindEmptyCollection):
			log.Info("Collection is empty; skipping materialize")
		case err != nil:
			log.WithError(err).Error("Materialize after completion failed")
			return err
		default:
			log.InfoWithFields("Materialized after completion", map[string]interface{}{"path": path})
		}
	}
	return nil
}

// markCompleted records the final count and clears the cursor. It persists
// even when ctx is already cancelled.
func (c *Coordinator) markCompleted(ctx context.Context, job *models.Job, total int64) error {
	persistCtx := context.WithoutCancel(ctx)
	if err := c.store.Complete(persistCtx, job.ID, total); err != nil {
		c.markFailed(ctx, job, err)
		return err
	}
	logger.LogJobTransition(c.logger, job.ID, job.Collection, string(models.JobRunning), string(models.JobCompleted), nil)
	metrics.JobTransitions.WithLabelValues(string(models.JobCompleted)).Inc()
	return nil
}

// markFailed records cause on the job, keeping cursor and count
func (c *Coordinator) markFailed(ctx context.Context, job *models.Job, cause error) {
	persistCtx := context.WithoutCancel(ctx)
	if err := c.store.Fail(persistCtx, job.ID, errs.Message(cause)); err != nil {
		c.logger.WithError(err).ErrorWithFields("Failed to persist job failure", map[string]interface{}{
			"job_id": job.ID,
		})
		return
	}
	logger.LogJobTransition(c.logger, job.ID, job.Collection, string(models.JobRunning), string(models.JobFailed), cause)
	metrics.JobTransitions.WithLabelValues(string(models.JobFailed)).Inc()
}

// Status returns the latest job of a collection
func (c *Coordinator) Status(ctx context.Context, collection string) (*models.Job, error) {
	if err := c.validCollection("coordinator.status", collection); err != nil {
		return nil, err
	}
	return c.store.Latest(ctx, collection)
}

// Job returns a job by id
func (c *Coordinator) Job(ctx context.Context, id string) (*models.Job, error) {
	return c.store.Get(ctx, id)
}

// History returns up to limit jobs of a collection, newest first
func (c *Coordinator) History(ctx context.Context, collection string, limit int) ([]models.Job, error) {
	if err := c.validCollection("coordinator.history", collection); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return c.store.History(ctx, collection, limit)
}

// Materialize writes the collection's CSV artifact and returns its path
func (c *Coordinator) Materialize(ctx context.Context, collection string) (string, error) {
	if err := c.validCollection("coordinator.materialize", collection); err != nil {
		return "", err
	}
	return c.materializer.Materialize(ctx, collection)
}

// Record returns one cached record of a collection
func (c *Coordinator) Record(ctx context.Context, collection, externalID string) (*models.Record, error) {
	if err := c.validCollection("coordinator.record", collection); err != nil {
		return nil, err
	}
	return c.cache.Get(ctx, collection, externalID)
}

// Artifacts lists the materialized files in the output directory
func (c *Coordinator) Artifacts() ([]storage.Artifact, error) {
	return c.materializer.Artifacts()
}

// Purge deletes the cached records of a collection. It is refused while a
// job holds the collection.
func (c *Coordinator) Purge(ctx context.Context, collection string) (int64, error) {
	const op = "coordinator.purge"
	if err := c.validCollection(op, collection); err != nil {
		return 0, err
	}

	lease, err := c.acquire(ctx, op, collection, "")
	if err != nil {
		return 0, err
	}
	defer c.release(lease)

	return c.cache.Purge(ctx, collection)
}

// Cancel asks a live job to stop. The job ends failed with its cursor intact.
func (c *Coordinator) Cancel(jobID string) bool {
	ok := c.pool.Cancel(jobID)
	if ok {
		c.logger.InfoWithFields("Job cancellation requested", map[string]interface{}{"job_id": jobID})
	}
	return ok
}

// Recover fails jobs left pending or running by a previous process, so they
// no longer block the collection. Jobs whose lease is held elsewhere are
// skipped. It returns the number of jobs recovered.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	jobs, err := c.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for i := range jobs {
		job := &jobs[i]
		if _, live := c.pool.Lookup(job.ID); live {
			continue
		}

		lease, err := c.locker.Acquire(ctx, lockKey(job.Collection))
		if errors.Is(err, lock.ErrLocked) {
			continue
		}
		if err != nil {
			return recovered, errs.Wrap(errs.KindUnknown, "coordinator.recover", err)
		}

		err = c.store.Fail(ctx, job.ID, "interrupted: process exited while the job was "+string(job.Status))
		c.release(lease)
		if errs.Is(err, errs.KindInvalidState) {
			continue
		}
		if err != nil {
			return recovered, err
		}

		logger.LogJobTransition(c.logger, job.ID, job.Collection, string(job.Status), string(models.JobFailed), nil)
		metrics.JobTransitions.WithLabelValues(string(models.JobFailed)).Inc()
		recovered++
	}

	if recovered > 0 {
		c.logger.InfoWithFields("Recovered interrupted jobs", map[string]interface{}{"count": recovered})
	}
	return recovered, nil
}
