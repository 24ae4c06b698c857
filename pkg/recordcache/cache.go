// Package recordcache stores fetched records keyed by (collection, external id).
package recordcache

import (
	"context"
	"iter"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	errs "custsync/pkg/errors"
	"custsync/pkg/logger"
	"custsync/pkg/models"
)

const (
	insertBatchSize = 100
	readBatchSize   = 500
)

// Cache is the durable, idempotent record store
type Cache struct {
	db        *gorm.DB
	logger    logger.Logger
	now       func() time.Time
	readBatch int
}

// New creates a record cache on a migrated database
func New(db *gorm.DB, log logger.Logger) *Cache {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Cache{
		db:        db,
		logger:    log.WithField("component", "recordcache"),
		now:       time.Now,
		readBatch: readBatchSize,
	}
}

// Upsert inserts or replaces the records of one page in a single transaction.
// Every written row gets the same fresh cached_at. When an id repeats within
// the batch the last occurrence wins.
func (c *Cache) Upsert(ctx context.Context, collection string, records []models.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	cachedAt := c.now().UnixMicro()
	rows := dedupe(records)
	for i := range rows {
		rows[i].Collection = collection
		rows[i].CachedAt = cachedAt
		if rows[i].ExternalID == "" {
			return 0, errs.Validation("recordcache.upsert", "record without external id in collection %q", collection)
		}
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "source_timestamp", "cached_at"}),
		}).CreateInBatches(&rows, insertBatchSize).Error
	})
	if err != nil {
		return 0, errs.Wrap(errs.KindCacheWrite, "recordcache.upsert", err)
	}

	c.logger.DebugWithFields("Records upserted", map[string]interface{}{
		"collection": collection,
		"count":      len(rows),
	})
	return len(rows), nil
}

func dedupe(records []models.Record) []models.Record {
	last := make(map[string]int, len(records))
	for i, r := range records {
		last[r.ExternalID] = i
	}
	if len(last) == len(records) {
		return append([]models.Record(nil), records...)
	}

	out := make([]models.Record, 0, len(last))
	for i, r := range records {
		if last[r.ExternalID] == i {
			out = append(out, r)
		}
	}
	return out
}

// All streams the collection ordered by cached_at descending, then external id.
// Rows are read lazily in keyset-paginated batches; every range starts over.
func (c *Cache) All(ctx context.Context, collection string) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		var (
			afterCachedAt int64
			afterID       string
			started       bool
		)

		for {
			q := c.db.WithContext(ctx).
				Where("collection = ?", collection).
				Order("cached_at DESC").
				Order("external_id ASC").
				Limit(c.readBatch)
			if started {
				q = q.Where("(cached_at < ? OR (cached_at = ? AND external_id > ?))", afterCachedAt, afterCachedAt, afterID)
			}

			var batch []models.Record
			if err := q.Find(&batch).Error; err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(models.Record{}, ctxErr)
					return
				}
				yield(models.Record{}, errs.Wrap(errs.KindUnknown, "recordcache.all", err))
				return
			}

			for _, r := range batch {
				if !yield(r, nil) {
					return
				}
			}
			if len(batch) < c.readBatch {
				return
			}

			tail := batch[len(batch)-1]
			afterCachedAt, afterID, started = tail.CachedAt, tail.ExternalID, true
		}
	}
}

// Get returns one cached record
func (c *Cache) Get(ctx context.Context, collection, externalID string) (*models.Record, error) {
	var records []models.Record
	err := c.db.WithContext(ctx).
		Where("collection = ? AND external_id = ?", collection, externalID).
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "recordcache.get", err)
	}
	if len(records) == 0 {
		return nil, errs.NotFound("recordcache.get", "record %q not found in %q", externalID, collection)
	}
	return &records[0], nil
}

// Count returns the number of cached records for the collection
func (c *Cache) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := c.db.WithContext(ctx).Model(&models.Record{}).Where("collection = ?", collection).Count(&n).Error
	if err != nil {
		return 0, errs.Wrap(errs.KindUnknown, "recordcache.count", err)
	}
	return n, nil
}

// Purge deletes every cached record of the collection
func (c *Cache) Purge(ctx context.Context, collection string) (int64, error) {
	res := c.db.WithContext(ctx).Where("collection = ?", collection).Delete(&models.Record{})
	if res.Error != nil {
		return 0, errs.Wrap(errs.KindCacheWrite, "recordcache.purge", res.Error)
	}

	c.logger.InfoWithFields("Collection purged", map[string]interface{}{
		"collection": collection,
		"deleted":    res.RowsAffected,
	})
	return res.RowsAffected, nil
}
