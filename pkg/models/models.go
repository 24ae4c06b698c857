package models

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus is the lifecycle state of a sync job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Active reports whether the status still holds the collection
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobRunning
}

// Cursor is the upstream pagination token. It is stored and passed back
// verbatim, never interpreted.
type Cursor string

// CursorPtr returns a pointer to c, or nil for the empty cursor
func CursorPtr(c Cursor) *Cursor {
	if c == "" {
		return nil
	}
	return &c
}

// Job is one ingestion run of a collection, resumable from its cursor
type Job struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Collection     string    `gorm:"type:varchar(255);not null;index:idx_jobs_collection_seq,priority:1" json:"collection"`
	Status         JobStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Cursor         *Cursor   `gorm:"type:text" json:"cursor,omitempty"`
	ProcessedCount int64     `gorm:"not null;default:0" json:"processed_count"`
	TotalCount     *int64    `json:"total_count,omitempty"`
	LastError      *string   `gorm:"type:text" json:"last_error,omitempty"`
	// Sequence orders jobs of one collection by creation, independent of clock resolution in the store
	Sequence    int64      `gorm:"not null;index:idx_jobs_collection_seq,priority:2" json:"-"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

// Resumable reports whether the job can re-enter the fetch loop
func (j *Job) Resumable() bool {
	return j.Status != JobCompleted && j.Cursor != nil
}

// Record is one upstream item cached under (collection, external id)
type Record struct {
	Collection      string         `gorm:"type:varchar(255);primaryKey;index:idx_records_order,priority:1"`
	ExternalID      string         `gorm:"type:varchar(255);primaryKey;index:idx_records_order,priority:3"`
	Payload         datatypes.JSON `gorm:"not null"`
	SourceTimestamp time.Time
	// CachedAt is the local write time in unix microseconds
	CachedAt int64 `gorm:"not null;index:idx_records_order,priority:2"`
}

func (Record) TableName() string {
	return "records"
}

// CachedTime returns CachedAt as a UTC time
func (r Record) CachedTime() time.Time {
	return time.UnixMicro(r.CachedAt).UTC()
}
