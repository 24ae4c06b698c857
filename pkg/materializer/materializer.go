package materializer

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"io"
	"iter"
	"path/filepath"
	"time"

	errs "custsync/pkg/errors"
	"custsync/pkg/logger"
	"custsync/pkg/metadata"
	"custsync/pkg/metrics"
	"custsync/pkg/models"
	"custsync/pkg/storage"
)

// RecordReader is the read side of the record cache
type RecordReader interface {
	Count(ctx context.Context, collection string) (int64, error)
	All(ctx context.Context, collection string) iter.Seq2[models.Record, error]
}

// Materializer renders cached collections as CSV
type Materializer struct {
	records RecordReader
	store   *storage.Manager
	logger  logger.Logger
	now     func() time.Time
}

// New creates a materializer writing artifacts through store
func New(records RecordReader, store *storage.Manager, log logger.Logger) *Materializer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Materializer{
		records: records,
		store:   store,
		logger:  log.WithField("component", "materializer"),
		now:     time.Now,
	}
}

// Write streams the collection as CSV to w, header first, and returns the
// number of data rows. Rows are flushed one record at a time.
func (m *Materializer) Write(ctx context.Context, collection string, w io.Writer) (int64, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return 0, errs.Wrap(errs.KindMaterializeIO, "materializer.write", err)
	}

	var rows int64
	row := make([]string, len(Columns))
	for rec, err := range m.records.All(ctx, collection) {
		if err != nil {
			return rows, err
		}

		doc, err := decodeDocument(rec.Payload)
		if err != nil {
			m.logger.WarnWithFields("Record payload is not a JSON object", map[string]interface{}{
				"collection":  collection,
				"external_id": rec.ExternalID,
				"error":       err.Error(),
			})
		}
		for i, col := range Columns {
			row[i] = col.Extract(doc, &rec)
		}

		if err := cw.Write(row); err != nil {
			return rows, errs.Wrap(errs.KindMaterializeIO, "materializer.write", err)
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return rows, errs.Wrap(errs.KindMaterializeIO, "materializer.write", err)
		}
		rows++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, errs.Wrap(errs.KindMaterializeIO, "materializer.write", err)
	}
	return rows, nil
}

// Materialize writes <output dir>/<collection>.csv atomically, with a JSON
// sidecar describing it, and returns the artifact path.
func (m *Materializer) Materialize(ctx context.Context, collection string) (string, error) {
	count, err := m.records.Count(ctx, collection)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", errs.EmptyCollection("materializer.materialize", collection)
	}

	start := m.now()
	var (
		rows int64
		size countingWriter
	)
	hash := sha256.New()

	path, err := m.store.Save(collection, func(w io.Writer) error {
		var werr error
		rows, werr = m.Write(ctx, collection, io.MultiWriter(w, hash, &size))
		return werr
	})
	if err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			err = errs.Wrap(errs.KindMaterializeIO, "materializer.materialize", err)
		}
		return "", err
	}

	meta := &metadata.ArtifactMetadata{
		Collection:  collection,
		File:        filepath.Base(path),
		Rows:        rows,
		Columns:     Header(),
		SHA256:      hex.EncodeToString(hash.Sum(nil)),
		SizeBytes:   int64(size),
		GeneratedAt: start.UTC(),
	}
	if err := meta.Save(path); err != nil {
		return "", errs.Wrap(errs.KindMaterializeIO, "materializer.materialize", err)
	}

	metrics.MaterializedRows.WithLabelValues(collection).Add(float64(rows))
	m.logger.InfoWithFields("Collection materialized", map[string]interface{}{
		"collection":  collection,
		"path":        path,
		"rows":        rows,
		"duration_ms": m.now().Sub(start).Milliseconds(),
	})
	return path, nil
}

type countingWriter int64

func (c *countingWriter) Write(p []byte) (int, error) {
	*c += countingWriter(len(p))
	return len(p), nil
}

// Artifacts lists the CSV files written so far
func (m *Materializer) Artifacts() ([]storage.Artifact, error) {
	artifacts, err := m.store.List()
	if err != nil {
		return nil, errs.Wrap(errs.KindMaterializeIO, "materializer.artifacts", err)
	}
	return artifacts, nil
}
