package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custsync/pkg/models"
	"custsync/pkg/storage"
)

type recordingSender struct {
	titles   []string
	messages []string
	err      error
}

func (r *recordingSender) Send(title, message string) error {
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return r.err
}

func withoutColor(t *testing.T) {
	SetNoColor(true)
	t.Cleanup(func() { SetNoColor(false) })
}

func TestNotifyJob(t *testing.T) {
	withoutColor(t)
	lastErr := "fatal_fetch: upstream returned 401"

	tests := []struct {
		name string
		job  models.Job
		want string
	}{
		{"completed", models.Job{Collection: "customers", Status: models.JobCompleted, ProcessedCount: 520}, "Sync completed, 520 records"},
		{"failed", models.Job{Collection: "customers", Status: models.JobFailed, ProcessedCount: 250, LastError: &lastErr}, "Sync failed after 250 records: " + lastErr},
		{"running", models.Job{Collection: "customers", Status: models.JobRunning}, "Job is running"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{err: errors.New("no display")}
			var out bytes.Buffer

			NewNotifierWithSender(sender, &out).NotifyJob(&tt.job)

			require.Len(t, sender.messages, 1)
			assert.Equal(t, "custsync: customers", sender.titles[0])
			assert.Equal(t, tt.want, sender.messages[0])
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestNotifyJobWithoutSender(t *testing.T) {
	withoutColor(t)
	var out bytes.Buffer

	NewNotifierWithSender(nil, &out).NotifyJob(&models.Job{Collection: "orders", Status: models.JobCompleted, ProcessedCount: 3})
	assert.Contains(t, out.String(), "custsync: orders: Sync completed, 3 records")
}

func TestColorToggle(t *testing.T) {
	assert.Equal(t, "\033[32mok\033[0m", Green("ok"))
	withoutColor(t)
	assert.Equal(t, "ok", Green("ok"))
}

func TestWriteJob(t *testing.T) {
	withoutColor(t)
	cursor := models.Cursor("after:500")
	total := int64(520)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	WriteJob(&out, &models.Job{
		ID:             "job-1",
		Collection:     "customers",
		Status:         models.JobCompleted,
		Cursor:         &cursor,
		ProcessedCount: 520,
		TotalCount:     &total,
		StartedAt:      &started,
	})

	text := out.String()
	assert.Contains(t, text, "job-1")
	assert.Contains(t, text, "completed")
	assert.Contains(t, text, "after:500")
	assert.Contains(t, text, "2026-03-01T12:00:00Z")
	assert.NotContains(t, text, "Last error")
}

func TestWriteHistory(t *testing.T) {
	withoutColor(t)
	msg := "cancelled: context canceled"
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	WriteHistory(&out, []models.Job{
		{ID: "b", Status: models.JobFailed, ProcessedCount: 250, LastError: &msg, CreatedAt: created},
		{ID: "a", Status: models.JobCompleted, ProcessedCount: 520, CreatedAt: created},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], msg)
	assert.True(t, strings.HasPrefix(lines[2], "a "))

	out.Reset()
	WriteHistory(&out, nil)
	assert.Equal(t, "no jobs\n", out.String())
}

func TestWriteRecord(t *testing.T) {
	withoutColor(t)
	var out bytes.Buffer
	WriteRecord(&out, &models.Record{
		Collection:      "customers",
		ExternalID:      "cust-0001",
		Payload:         []byte(`{"id":"cust-0001","tags":["vip"]}`),
		SourceTimestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CachedAt:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).UnixMicro(),
	})

	text := out.String()
	assert.Contains(t, text, "ID:          cust-0001")
	assert.Contains(t, text, "Updated:     2026-03-01T12:00:00Z")
	assert.Contains(t, text, "Cached:      2026-03-02T00:00:00Z")
	assert.Contains(t, text, "  \"tags\": [\n    \"vip\"\n  ]")
}

func TestWriteArtifacts(t *testing.T) {
	withoutColor(t)
	var out bytes.Buffer
	WriteArtifacts(&out, []storage.Artifact{
		{Collection: "customers", Path: "exports/customers.csv", Size: 2048, Modified: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "COLLECTION"))
	assert.True(t, strings.HasPrefix(lines[1], "customers "))
	assert.Contains(t, lines[1], "2048")
	assert.True(t, strings.HasSuffix(lines[1], "exports/customers.csv"))

	out.Reset()
	WriteArtifacts(&out, nil)
	assert.Equal(t, "no artifacts\n", out.String())
}
