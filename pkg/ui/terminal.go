package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"custsync/pkg/models"
	"custsync/pkg/storage"
)

var noColor atomic.Bool

// SetNoColor disables ANSI colors for all print helpers
func SetNoColor(disabled bool) {
	noColor.Store(disabled)
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if noColor.Load() {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintError prints an error message in red to stderr
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(os.Stderr, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Println(Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label string, value string) {
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Println(Yellow(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Yellow(msg))
	}
}

// StatusColor picks the color used for a job status
func StatusColor(status models.JobStatus) func(string) string {
	switch status {
	case models.JobCompleted:
		return Green
	case models.JobFailed:
		return Red
	case models.JobRunning:
		return Cyan
	default:
		return Yellow
	}
}

// WriteJob prints a job snapshot as aligned label/value lines
func WriteJob(w io.Writer, job *models.Job) {
	line := func(label, value string) {
		fmt.Fprintf(w, "%-12s %s\n", Cyan(label+":"), value)
	}

	line("Job", job.ID)
	line("Collection", job.Collection)
	line("Status", StatusColor(job.Status)(string(job.Status)))
	line("Processed", strconv.FormatInt(job.ProcessedCount, 10))
	if job.TotalCount != nil {
		line("Total", strconv.FormatInt(*job.TotalCount, 10))
	}
	if job.Cursor != nil {
		line("Cursor", string(*job.Cursor))
	}
	if job.StartedAt != nil {
		line("Started", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		line("Completed", job.CompletedAt.Format(time.RFC3339))
	}
	if job.LastError != nil {
		line("Last error", Red(*job.LastError))
	}
}

// WriteHistory prints one row per job, newest first
func WriteHistory(w io.Writer, jobs []models.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, Dim("no jobs"))
		return
	}

	fmt.Fprintf(w, "%-36s  %-10s  %10s  %-20s  %s\n", "ID", "STATUS", "PROCESSED", "CREATED", "ERROR")
	for _, job := range jobs {
		lastErr := ""
		if job.LastError != nil {
			lastErr = *job.LastError
		}
		// Pad before coloring so escape codes do not break alignment
		status := StatusColor(job.Status)(fmt.Sprintf("%-10s", job.Status))
		fmt.Fprintf(w, "%-36s  %s  %10d  %-20s  %s\n",
			job.ID, status, job.ProcessedCount, job.CreatedAt.UTC().Format(time.RFC3339), lastErr)
	}
}

// WriteRecord prints a cached record with its payload indented
func WriteRecord(w io.Writer, rec *models.Record) {
	fmt.Fprintf(w, "%-12s %s\n", "Collection:", rec.Collection)
	fmt.Fprintf(w, "%-12s %s\n", "ID:", Cyan(rec.ExternalID))
	if !rec.SourceTimestamp.IsZero() {
		fmt.Fprintf(w, "%-12s %s\n", "Updated:", rec.SourceTimestamp.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "%-12s %s\n", "Cached:", rec.CachedTime().Format(time.RFC3339))

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, rec.Payload, "", "  "); err != nil {
		fmt.Fprintln(w, string(rec.Payload))
		return
	}
	fmt.Fprintln(w, pretty.String())
}

// WriteArtifacts prints one row per materialized file
func WriteArtifacts(w io.Writer, artifacts []storage.Artifact) {
	if len(artifacts) == 0 {
		fmt.Fprintln(w, Dim("no artifacts"))
		return
	}

	fmt.Fprintf(w, "%-24s  %12s  %-20s  %s\n", "COLLECTION", "BYTES", "MODIFIED", "PATH")
	for _, a := range artifacts {
		fmt.Fprintf(w, "%-24s  %12d  %-20s  %s\n",
			a.Collection, a.Size, a.Modified.UTC().Format(time.RFC3339), a.Path)
	}
}
