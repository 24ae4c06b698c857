package recordcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"custsync/internal/testutil"
	errs "custsync/pkg/errors"
	"custsync/pkg/logger"
	"custsync/pkg/models"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time {
	f.t = f.t.Add(time.Second)
	return f.t
}

func newCache(t *testing.T) *Cache {
	c := New(testutil.NewDB(t), logger.NewTestLogger())
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clock.now
	return c
}

func rec(id, payload string) models.Record {
	return models.Record{ExternalID: id, Payload: datatypes.JSON(payload)}
}

func collect(t *testing.T, c *Cache, collection string) []models.Record {
	t.Helper()
	var out []models.Record
	for r, err := range c.All(context.Background(), collection) {
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func ids(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ExternalID
	}
	return out
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	page := []models.Record{rec("1", `{"id":1,"email":"a@x"}`), rec("2", `{"id":2}`)}

	n, err := c.Upsert(ctx, "customers", page)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = c.Upsert(ctx, "customers", page)
	require.NoError(t, err)

	count, err := c.Count(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	got, err := c.Get(ctx, "customers", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"email":"a@x"}`, string(got.Payload))
}

func TestUpsertReplacesPayloadAndRefreshesCachedAt(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	_, err := c.Upsert(ctx, "customers", []models.Record{rec("1", `{"v":1}`)})
	require.NoError(t, err)
	before, _ := c.Get(ctx, "customers", "1")

	updated := rec("1", `{"v":2}`)
	updated.SourceTimestamp = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err = c.Upsert(ctx, "customers", []models.Record{updated})
	require.NoError(t, err)

	after, _ := c.Get(ctx, "customers", "1")
	assert.JSONEq(t, `{"v":2}`, string(after.Payload))
	assert.Greater(t, after.CachedAt, before.CachedAt)
	assert.True(t, updated.SourceTimestamp.Equal(after.SourceTimestamp))
}

func TestUpsertDuplicateIDsKeepLast(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	n, err := c.Upsert(ctx, "customers", []models.Record{
		rec("1", `{"v":"first"}`),
		rec("2", `{"v":"other"}`),
		rec("1", `{"v":"last"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, _ := c.Get(ctx, "customers", "1")
	assert.JSONEq(t, `{"v":"last"}`, string(got.Payload))
}

func TestUpsertLargePageSpansInsertBatches(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	page := make([]models.Record, 250)
	for i := range page {
		page[i] = rec(fmt.Sprintf("%03d", i), fmt.Sprintf(`{"id":%d}`, i))
	}

	n, err := c.Upsert(ctx, "customers", page)
	require.NoError(t, err)
	assert.Equal(t, 250, n)

	count, _ := c.Count(ctx, "customers")
	assert.Equal(t, int64(250), count)
}

func TestUpsertRejectsMissingID(t *testing.T) {
	c := newCache(t)
	_, err := c.Upsert(context.Background(), "customers", []models.Record{rec("", `{}`)})
	assert.True(t, errs.Is(err, errs.KindValidation))

	n, err := c.Upsert(context.Background(), "customers", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAllOrderAndKeysetPaging(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	c.readBatch = 2

	_, err := c.Upsert(ctx, "customers", []models.Record{rec("b", `{}`), rec("a", `{}`), rec("c", `{}`)})
	require.NoError(t, err)
	_, err = c.Upsert(ctx, "customers", []models.Record{rec("e", `{}`), rec("d", `{}`)})
	require.NoError(t, err)
	_, err = c.Upsert(ctx, "orders", []models.Record{rec("z", `{}`)})
	require.NoError(t, err)

	// Newest page first, ids ascending within a page
	assert.Equal(t, []string{"d", "e", "a", "b", "c"}, ids(collect(t, c, "customers")))

	// Ranging again restarts from the beginning
	assert.Equal(t, []string{"d", "e", "a", "b", "c"}, ids(collect(t, c, "customers")))
}

func TestAllStopsEarly(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	c.readBatch = 1

	_, err := c.Upsert(ctx, "customers", []models.Record{rec("1", `{}`), rec("2", `{}`), rec("3", `{}`)})
	require.NoError(t, err)

	seen := 0
	for _, err := range c.All(ctx, "customers") {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestAllEmptyCollection(t *testing.T) {
	c := newCache(t)
	assert.Empty(t, collect(t, c, "customers"))
}

func TestAllCancelled(t *testing.T) {
	c := newCache(t)
	_, err := c.Upsert(context.Background(), "customers", []models.Record{rec("1", `{}`)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, err := range c.All(ctx, "customers") {
		assert.True(t, errs.Is(err, errs.KindCancelled), "got %v", err)
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	_, _ = c.Upsert(ctx, "customers", []models.Record{rec("1", `{}`), rec("2", `{}`)})
	_, _ = c.Upsert(ctx, "orders", []models.Record{rec("1", `{}`)})

	deleted, err := c.Purge(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, _ := c.Count(ctx, "customers")
	assert.Zero(t, count)
	count, _ = c.Count(ctx, "orders")
	assert.Equal(t, int64(1), count)

	_, err = c.Get(ctx, "customers", "1")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestDedupe(t *testing.T) {
	in := []models.Record{rec("1", `1`), rec("2", `2`)}
	out := dedupe(in)
	out[0].ExternalID = "changed"
	assert.Equal(t, "1", in[0].ExternalID)
}
