package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	errs "custsync/pkg/errors"
	"custsync/pkg/logger"
	"custsync/pkg/models"
)

// Store persists job identity, status, progress and resume cursor.
// Status changes are guarded in SQL so a completed job is never modified.
type Store struct {
	db     *gorm.DB
	logger logger.Logger
	now    func() time.Time

	seqMu   sync.Mutex
	lastSeq int64
}

// NewStore creates a checkpoint store on a migrated database
func NewStore(db *gorm.DB, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{
		db:     db,
		logger: log.WithField("component", "checkpoint"),
		now:    time.Now,
	}
}

func (s *Store) nextSequence() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	seq := s.now().UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

// Create inserts a new pending job for the collection
func (s *Store) Create(ctx context.Context, collection string) (*models.Job, error) {
	job := &models.Job{
		ID:         uuid.NewString(),
		Collection: collection,
		Status:     models.JobPending,
		Sequence:   s.nextSequence(),
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, errs.Wrap(errs.KindCheckpointWrite, "checkpoint.create", err)
	}

	s.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"job_id":     job.ID,
		"collection": collection,
	})
	return job, nil
}

// Get loads a job by id
func (s *Store) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("checkpoint.get", "job %q not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "checkpoint.get", err)
	}
	return &job, nil
}

// Latest returns the most recently created job for the collection
func (s *Store) Latest(ctx context.Context, collection string) (*models.Job, error) {
	job, err := s.first(ctx, s.db.WithContext(ctx).Where("collection = ?", collection))
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errs.NotFound("checkpoint.latest", "no jobs for collection %q", collection)
	}
	return job, nil
}

// LatestUnfinished returns the most recent job that is not completed, or nil
func (s *Store) LatestUnfinished(ctx context.Context, collection string) (*models.Job, error) {
	return s.first(ctx, s.db.WithContext(ctx).
		Where("collection = ? AND status <> ?", collection, models.JobCompleted))
}

// FindActive returns the pending or running job for the collection, or nil
func (s *Store) FindActive(ctx context.Context, collection string) (*models.Job, error) {
	return s.first(ctx, s.db.WithContext(ctx).
		Where("collection = ? AND status IN ?", collection, activeStatuses()))
}

func (s *Store) first(ctx context.Context, q *gorm.DB) (*models.Job, error) {
	var jobs []models.Job
	if err := q.Order("sequence DESC").Limit(1).Find(&jobs).Error; err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "checkpoint.query", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// History returns up to limit jobs for the collection, newest first
func (s *Store) History(ctx context.Context, collection string, limit int) ([]models.Job, error) {
	q := s.db.WithContext(ctx).Where("collection = ?", collection).Order("sequence DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var jobs []models.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "checkpoint.history", err)
	}
	return jobs, nil
}

// ListActive returns every pending or running job across collections
func (s *Store) ListActive(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Where("status IN ?", activeStatuses()).
		Order("sequence ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "checkpoint.list_active", err)
	}
	return jobs, nil
}

// MarkRunning moves a pending or failed job to running and clears its last error
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	now := s.now()
	return s.transition(ctx, "checkpoint.mark_running", id,
		s.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND status IN ?", id, []models.JobStatus{models.JobPending, models.JobFailed}),
		map[string]interface{}{
			"status":     models.JobRunning,
			"last_error": nil,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", now),
			"updated_at": now,
		})
}

// Advance records a committed page: the cursor to resume from and the running total.
// Both columns change in one statement. Processed never decreases.
func (s *Store) Advance(ctx context.Context, id string, cursor models.Cursor, processed int64) error {
	if cursor == "" {
		return errs.Validation("checkpoint.advance", "cursor must not be empty")
	}

	err := s.transition(ctx, "checkpoint.advance", id,
		s.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND status = ? AND processed_count <= ?", id, models.JobRunning, processed),
		map[string]interface{}{
			"cursor":          string(cursor),
			"processed_count": processed,
			"updated_at":      s.now(),
		})
	if err != nil {
		return err
	}

	s.logger.DebugWithFields("Checkpoint advanced", map[string]interface{}{
		"job_id":    id,
		"processed": processed,
	})
	return nil
}

// Complete finishes a running job: final count, total, cleared cursor
func (s *Store) Complete(ctx context.Context, id string, total int64) error {
	now := s.now()
	return s.transition(ctx, "checkpoint.complete", id,
		s.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND status = ? AND processed_count <= ?", id, models.JobRunning, total),
		map[string]interface{}{
			"status":          models.JobCompleted,
			"cursor":          nil,
			"processed_count": total,
			"total_count":     total,
			"completed_at":    now,
			"updated_at":      now,
		})
}

// Fail marks a pending or running job as failed; cursor and count are kept
func (s *Store) Fail(ctx context.Context, id string, message string) error {
	return s.transition(ctx, "checkpoint.fail", id,
		s.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND status IN ?", id, activeStatuses()),
		map[string]interface{}{
			"status":     models.JobFailed,
			"last_error": message,
			"updated_at": s.now(),
		})
}

func (s *Store) transition(ctx context.Context, op, id string, q *gorm.DB, values map[string]interface{}) error {
	res := q.Updates(values)
	if res.Error != nil {
		return errs.Wrap(errs.KindCheckpointWrite, op, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Nothing matched the guard; report why
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return errs.InvalidState(op, "job %s is %s", id, job.Status)
}

func activeStatuses() []models.JobStatus {
	return []models.JobStatus{models.JobPending, models.JobRunning}
}
