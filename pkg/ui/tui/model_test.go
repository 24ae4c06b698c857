package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "custsync/pkg/errors"
	"custsync/pkg/models"
)

func snapshot(id string, status models.JobStatus, processed int64) *models.Job {
	return &models.Job{ID: id, Collection: "customers", Status: status, ProcessedCount: processed}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestPollInvokesStatus(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context) (*models.Job, error) {
		calls++
		return snapshot("job-1", models.JobRunning, 10), nil
	}
	m := NewModel(context.Background(), "customers", fetch, time.Millisecond)

	msg := m.poll()()
	jm, ok := msg.(JobMsg)
	require.True(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "job-1", jm.Job.ID)
}

func TestRunningJobSchedulesNextPoll(t *testing.T) {
	m := NewModel(context.Background(), "customers", nil, time.Millisecond)

	m, cmd := update(t, m, JobMsg{Job: snapshot("job-1", models.JobRunning, 250), At: time.Now()})
	require.NotNil(t, cmd)
	assert.False(t, m.Finished())

	_, ok := cmd().(PollMsg)
	assert.True(t, ok)
	assert.Contains(t, m.View(), "250")
}

func TestTerminalJobQuits(t *testing.T) {
	m := NewModel(context.Background(), "customers", nil, time.Second)

	m, cmd := update(t, m, JobMsg{Job: snapshot("job-1", models.JobCompleted, 520), At: time.Now()})
	assert.True(t, isQuit(cmd))
	assert.True(t, m.Finished())
	assert.False(t, m.Detached())
	assert.Equal(t, int64(520), m.Job().ProcessedCount)
}

func TestRateBetweenSnapshots(t *testing.T) {
	m := NewModel(context.Background(), "customers", nil, time.Second)
	start := time.Now()

	m, _ = update(t, m, JobMsg{Job: snapshot("job-1", models.JobRunning, 250), At: start})
	m, _ = update(t, m, JobMsg{Job: snapshot("job-1", models.JobRunning, 500), At: start.Add(2 * time.Second)})
	assert.InDelta(t, 125.0, m.rate, 0.001)

	// A different job resets the rate
	m, _ = update(t, m, JobMsg{Job: snapshot("job-2", models.JobRunning, 0), At: start.Add(3 * time.Second)})
	assert.Zero(t, m.rate)
}

func TestQuitBeforeFinishDetaches(t *testing.T) {
	m := NewModel(context.Background(), "customers", nil, time.Second)
	m, _ = update(t, m, JobMsg{Job: snapshot("job-1", models.JobRunning, 1), At: time.Now()})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, isQuit(cmd))
	assert.True(t, m.Detached())
}

func TestPollErrorsKeepPolling(t *testing.T) {
	m := NewModel(context.Background(), "customers", nil, time.Millisecond)

	m, cmd := update(t, m, JobMsg{Err: errs.NotFound("coordinator.status", "no jobs for %q", "customers")})
	require.NotNil(t, cmd)
	assert.False(t, isQuit(cmd))
	assert.Contains(t, m.View(), "waiting for a job")

	m, _ = update(t, m, JobMsg{Err: errors.New("database is locked")})
	assert.Contains(t, m.View(), "poll failed: database is locked")
}

func TestFailedJobShowsError(t *testing.T) {
	m := NewModel(context.Background(), "customers", nil, time.Second)
	job := snapshot("job-1", models.JobFailed, 250)
	msg := "transient_fetch: upstream returned 503"
	job.LastError = &msg

	m, cmd := update(t, m, JobMsg{Job: job, At: time.Now()})
	assert.True(t, isQuit(cmd))
	assert.Contains(t, m.View(), msg)
}
