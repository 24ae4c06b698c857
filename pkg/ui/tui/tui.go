// Package tui renders a live view of a collection's sync job.
package tui

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"custsync/pkg/models"
)

// Watch polls fetch until the job reaches a terminal state, the user quits
// or ctx is done. It returns the last snapshot seen.
func Watch(ctx context.Context, collection string, fetch StatusFunc, interval time.Duration, in io.Reader, out io.Writer) (*models.Job, bool, error) {
	model := NewModel(ctx, collection, fetch, interval)
	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)

	final, err := program.Run()
	if err != nil && ctx.Err() == nil {
		return nil, false, fmt.Errorf("watch %s: %w", collection, err)
	}

	m, ok := final.(Model)
	if !ok {
		return nil, false, nil
	}
	return m.Job(), m.Detached(), nil
}
