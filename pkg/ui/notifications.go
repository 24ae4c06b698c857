package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"custsync/pkg/models"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// Notifier reports finished jobs on the console and, where supported, the desktop
type Notifier struct {
	sender NotificationSender
	out    io.Writer
}

// NewNotifier creates a Notifier for the current platform
func NewNotifier() *Notifier {
	var sender NotificationSender
	switch runtime.GOOS {
	case "linux":
		sender = &LinuxNotificationSender{}
	case "darwin":
		sender = &MacOSNotificationSender{}
	}
	return &Notifier{sender: sender, out: os.Stdout}
}

// NewNotifierWithSender creates a Notifier with an explicit sender and console writer
func NewNotifierWithSender(sender NotificationSender, out io.Writer) *Notifier {
	return &Notifier{sender: sender, out: out}
}

// NotifyJob announces the terminal state of a job
func (n *Notifier) NotifyJob(job *models.Job) {
	title := fmt.Sprintf("custsync: %s", job.Collection)

	var message string
	switch job.Status {
	case models.JobCompleted:
		message = fmt.Sprintf("Sync completed, %d records", job.ProcessedCount)
		fmt.Fprintf(n.out, "\n%s: %s\n", Green(title), Green(message))
	case models.JobFailed:
		message = fmt.Sprintf("Sync failed after %d records", job.ProcessedCount)
		if job.LastError != nil {
			message += ": " + *job.LastError
		}
		fmt.Fprintf(n.out, "\n%s: %s\n", Red(title), Red(message))
	default:
		message = fmt.Sprintf("Job is %s", job.Status)
		fmt.Fprintf(n.out, "\n%s: %s\n", Cyan(title), Yellow(message))
	}

	if n.sender != nil {
		// Desktop notifications are best effort
		_ = n.sender.Send(title, message)
	}
}
