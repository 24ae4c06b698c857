package pager

import (
	"context"
	"strconv"

	"gorm.io/datatypes"

	errs "custsync/pkg/errors"
	"custsync/pkg/logger"
	"custsync/pkg/metrics"
	"custsync/pkg/models"
	"custsync/pkg/ratelimit"
	"custsync/pkg/upstream"
)

// Source serves pages of a collection
type Source interface {
	FetchPage(ctx context.Context, collection string, cursor *models.Cursor, limit int) (*upstream.Page, error)
}

// RecordWriter persists one page of records atomically
type RecordWriter interface {
	Upsert(ctx context.Context, collection string, records []models.Record) (int, error)
}

// Checkpointer records the resume point after a committed page
type Checkpointer interface {
	Advance(ctx context.Context, id string, cursor models.Cursor, processed int64) error
}

// Options controls the fetch loop
type Options struct {
	PageSize int
	// Delay is waited between pages while more remain
	Delay ratelimit.Limiter
	// MaxPages stops the run with a page limit error; 0 means unlimited
	MaxPages int
}

// Result summarizes a finished run
type Result struct {
	Processed int64
	Pages     int
}

// Pager runs the sequential fetch loop of a single job
type Pager struct {
	source      Source
	records     RecordWriter
	checkpoints Checkpointer
	opts        Options
	logger      logger.Logger
}

const defaultPageSize = 250

// New creates a pager
func New(source Source, records RecordWriter, checkpoints Checkpointer, opts Options, log logger.Logger) *Pager {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Delay == nil {
		opts.Delay = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Pager{
		source:      source,
		records:     records,
		checkpoints: checkpoints,
		opts:        opts,
		logger:      log.WithField("component", "pager"),
	}
}

// Run fetches from job's cursor until the collection is exhausted. Each page is
// written to the record cache before the checkpoint moves past it. The final
// page is not checkpointed; the caller completes the job with Result.Processed.
// On error Result holds the progress committed so far.
func (p *Pager) Run(ctx context.Context, job *models.Job) (Result, error) {
	res := Result{Processed: job.ProcessedCount}
	cursor := job.Cursor

	for {
		if res.Pages > 0 {
			if err := p.opts.Delay.Wait(ctx); err != nil {
				return res, errs.Wrap(errs.KindCancelled, "pager.run", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return res, errs.Wrap(errs.KindCancelled, "pager.run", err)
		}
		if p.opts.MaxPages > 0 && res.Pages >= p.opts.MaxPages {
			return res, errs.New(errs.KindPageLimit, "pager.run", "stopped after %d pages", res.Pages)
		}

		page, err := p.source.FetchPage(ctx, job.Collection, cursor, p.opts.PageSize)
		if err != nil {
			err = interrupted(ctx, err)
			metrics.FetchErrors.WithLabelValues(string(errs.KindOf(err))).Inc()
			return res, err
		}
		if err := validatePage(page, cursor); err != nil {
			metrics.FetchErrors.WithLabelValues(string(errs.KindOf(err))).Inc()
			return res, err
		}

		records := toRecords(job.Collection, page.Records)
		written, err := p.records.Upsert(ctx, job.Collection, records)
		if err != nil {
			return res, interrupted(ctx, err)
		}

		// Upsert counts distinct ids, so a page repeating an id is not double counted
		processed := res.Processed + int64(written)
		if page.HasMore {
			if err := p.checkpoints.Advance(ctx, job.ID, page.NextCursor, processed); err != nil {
				return res, interrupted(ctx, err)
			}
			next := page.NextCursor
			cursor = &next
		}
		res.Processed = processed
		res.Pages++

		metrics.PagesFetched.WithLabelValues(job.Collection).Inc()
		metrics.RecordsCommitted.WithLabelValues(job.Collection).Add(float64(written))
		logger.LogPageCommitted(p.logger, job.ID, job.Collection, written, processed, page.HasMore)

		if !page.HasMore {
			return res, nil
		}
	}
}

// interrupted reclassifies a failure caused by cancellation of ctx
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errs.Is(err, errs.KindCancelled) {
		return errs.Wrap(errs.KindCancelled, "pager.run", err)
	}
	return err
}

func validatePage(page *upstream.Page, requested *models.Cursor) error {
	if page == nil {
		return errs.New(errs.KindTransientFetch, "pager.validate", "empty response")
	}
	if !page.HasMore {
		return nil
	}
	if page.NextCursor == "" {
		return errs.New(errs.KindTransientFetch, "pager.validate", "page reports more results without a cursor")
	}
	if requested != nil && page.NextCursor == *requested {
		return errs.New(errs.KindTransientFetch, "pager.validate", "cursor did not advance: %s", strconv.Quote(string(page.NextCursor)))
	}
	return nil
}

func toRecords(collection string, items []upstream.Item) []models.Record {
	out := make([]models.Record, len(items))
	for i, item := range items {
		out[i] = models.Record{
			Collection:      collection,
			ExternalID:      item.ID,
			Payload:         datatypes.JSON(item.Payload),
			SourceTimestamp: item.UpdatedAt,
		}
	}
	return out
}
