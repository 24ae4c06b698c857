package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	errs "custsync/pkg/errors"
	"custsync/pkg/models"
)

// StatusFunc returns the latest job snapshot for the watched collection
type StatusFunc func(ctx context.Context) (*models.Job, error)

// JobMsg carries the result of one status poll
type JobMsg struct {
	Job *models.Job
	Err error
	At  time.Time
}

// PollMsg asks the model to poll again
type PollMsg time.Time

// Model watches one collection until its latest job finishes
type Model struct {
	ctx        context.Context
	collection string
	fetch      StatusFunc
	interval   time.Duration
	spinner    spinner.Model

	job      *models.Job
	err      error
	rate     float64
	lastAt   time.Time
	detached bool
	width    int
}

// NewModel creates a watch model polling fetch every interval
func NewModel(ctx context.Context, collection string, fetch StatusFunc, interval time.Duration) Model {
	if interval <= 0 {
		interval = time.Second
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(cyan)

	return Model{
		ctx:        ctx,
		collection: collection,
		fetch:      fetch,
		interval:   interval,
		spinner:    s,
	}
}

// Job returns the last snapshot seen
func (m Model) Job() *models.Job { return m.job }

// Detached reports whether the user quit before the job finished
func (m Model) Detached() bool { return m.detached }

// Finished reports whether the last snapshot is in a terminal state
func (m Model) Finished() bool {
	return m.job != nil && !m.job.Status.Active()
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		job, err := m.fetch(m.ctx)
		return JobMsg{Job: job, Err: err, At: time.Now()}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.detached = !m.Finished()
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case JobMsg:
		m.observe(msg)
		if m.Finished() {
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg { return PollMsg(t) })

	case PollMsg:
		return m, m.poll()
	}
	return m, nil
}

func (m *Model) observe(msg JobMsg) {
	m.err = msg.Err
	if msg.Err != nil {
		return
	}

	if prev := m.job; prev != nil && prev.ID == msg.Job.ID && !m.lastAt.IsZero() {
		if elapsed := msg.At.Sub(m.lastAt).Seconds(); elapsed > 0 {
			m.rate = float64(msg.Job.ProcessedCount-prev.ProcessedCount) / elapsed
		}
	} else {
		m.rate = 0
	}
	m.job = msg.Job
	m.lastAt = msg.At
}

func (m Model) View() string {
	var b strings.Builder

	header := titleStyle.Render("custsync · " + m.collection)
	if !m.Finished() {
		header = m.spinner.View() + " " + header
	}
	b.WriteString(header + "\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}

	switch {
	case m.job == nil && m.err != nil && errs.Is(m.err, errs.KindNotFound):
		b.WriteString(valueStyle.Render("waiting for a job to start") + "\n")
	case m.job == nil && m.err == nil:
		b.WriteString(valueStyle.Render("loading...") + "\n")
	case m.job != nil:
		row("Job", m.job.ID)
		b.WriteString(labelStyle.Render("Status") + statusStyle(m.job.Status).Render(string(m.job.Status)) + "\n")
		row("Processed", strconv.FormatInt(m.job.ProcessedCount, 10))
		if m.job.Status == models.JobRunning {
			row("Rate", fmt.Sprintf("%.1f records/s", m.rate))
		}
		if m.job.Cursor != nil {
			row("Cursor", string(*m.job.Cursor))
		}
		if m.job.LastError != nil {
			b.WriteString(labelStyle.Render("Last error") + errorStyle.Render(*m.job.LastError) + "\n")
		}
	}

	if m.err != nil && !errs.Is(m.err, errs.KindNotFound) {
		b.WriteString("\n" + errorStyle.Render("poll failed: "+m.err.Error()) + "\n")
	}

	panel := panelStyle
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	return panel.Render(strings.TrimRight(b.String(), "\n")) + "\n" +
		helpStyle.Render("q to detach, the job keeps running") + "\n"
}
