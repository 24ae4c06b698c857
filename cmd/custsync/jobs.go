package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"custsync/internal/runner"
	"custsync/pkg/coordinator"
	"custsync/pkg/models"
	"custsync/pkg/ui"
	"custsync/pkg/ui/tui"
)

var (
	materializeAfter bool
	notify           bool
	pageSize         int
	maxPages         int
	historyLimit     int
	watchInterval    time.Duration
)

var startCmd = &cobra.Command{
	Use:   "start <collection>",
	Short: "Start a new sync job for a collection",
	Long: `Start a new sync job and wait for it to finish.

The job fetches the collection page by page from the beginning,
checkpointing after every page. Press Ctrl-C to stop it; the job is
recorded as failed with its cursor intact and can be resumed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, func(ctx context.Context, c *coordinator.Coordinator, opts coordinator.Options) (*models.Job, *runner.Handle, error) {
			return c.Start(ctx, args[0], opts)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <collection|job-id>",
	Short: "Resume a failed or interrupted job from its checkpoint",
	Long: `Resume a job from its last committed cursor and wait for it to finish.

The target is either a job id or a collection name. A collection resolves to
its most recent job that has not completed. Jobs that never committed a
page have no cursor and must be started again instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, func(ctx context.Context, c *coordinator.Coordinator, opts coordinator.Options) (*models.Job, *runner.Handle, error) {
			return c.Resume(ctx, args[0], opts)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <collection>",
	Short: "Show the latest job of a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		job, err := a.coordinator.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ui.WriteJob(os.Stdout, job)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <collection>",
	Short: "List past jobs of a collection, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		jobs, err := a.coordinator.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		ui.WriteHistory(os.Stdout, jobs)
		return nil
	},
}

var materializeCmd = &cobra.Command{
	Use:   "materialize <collection>",
	Short: "Write the cached records of a collection to CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		path, err := a.coordinator.Materialize(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ui.PrintSuccess("Collection materialized")
		ui.PrintInfo("Artifact", path)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge <collection>",
	Short: "Delete the cached records of a collection",
	Long: `Delete every cached record of a collection. Job history is kept.
Purge is refused while a job is active for the collection.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		deleted, err := a.coordinator.Purge(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Purged %d records from %s", deleted, args[0]))
		return nil
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Fail jobs left pending or running by a crashed process",
	Long: `Mark jobs that are still pending or running, but have no live process,
as failed so their collections are no longer blocked. With the redis lock
backend, jobs whose collection lease is still held are left alone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.coordinator.Recover(cmd.Context())
		if err != nil {
			return err
		}
		ui.PrintInfo("Recovered jobs", strconv.Itoa(n))
		return nil
	},
}

var recordCmd = &cobra.Command{
	Use:   "record <collection> <external-id>",
	Short: "Print one cached record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := a.coordinator.Record(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		ui.WriteRecord(os.Stdout, rec)
		return nil
	},
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List materialized CSV files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		artifacts, err := a.coordinator.Artifacts()
		if err != nil {
			return err
		}
		ui.PrintInfo("Output directory", a.artifacts.GetOutputDir())
		ui.WriteArtifacts(os.Stdout, artifacts)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <collection>",
	Short: "Follow the latest job of a collection until it finishes",
	Long: `Follow the latest job of a collection, typically one started through the
HTTP API of a running server. Quitting the view does not stop the job.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	for _, cmd := range []*cobra.Command{startCmd, resumeCmd} {
		cmd.Flags().BoolVar(&materializeAfter, "materialize", false, "write the CSV artifact once the job completes")
		cmd.Flags().BoolVar(&notify, "notify", false, "send a desktop notification when the job finishes")
		cmd.Flags().IntVar(&pageSize, "page-size", 0, "records requested per page")
		cmd.Flags().IntVar(&maxPages, "max-pages", -1, "stop after this many pages (0 = unlimited)")
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of jobs to list")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "status poll interval")

	rootCmd.AddCommand(startCmd, resumeCmd, statusCmd, historyCmd, materializeCmd, purgeCmd, recordCmd, artifactsCmd, recoverCmd, watchCmd)
}

type launchFunc func(ctx context.Context, c *coordinator.Coordinator, opts coordinator.Options) (*models.Job, *runner.Handle, error)

// runJob launches a job and blocks until it finishes. Ctrl-C cancels the
// job and still waits for it to record its state.
func runJob(cmd *cobra.Command, launch launchFunc) error {
	sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd.Context(), map[string]interface{}{
		"page-size": pageSize,
		"max-pages": maxPages,
	})
	if err != nil {
		return err
	}
	defer a.close()

	job, handle, err := launch(cmd.Context(), a.coordinator, coordinator.Options{MaterializeAfter: materializeAfter})
	if err != nil {
		return err
	}
	ui.PrintInfo("Job", job.ID)
	ui.PrintInfo("Collection", job.Collection)
	if job.Cursor != nil {
		ui.PrintInfo("Resuming from", string(*job.Cursor))
	}

	select {
	case <-handle.Done():
	case <-sigCtx.Done():
		ui.PrintWarning("Interrupted, stopping job after the current step")
		a.coordinator.Cancel(job.ID)
		<-handle.Done()
	}

	final, err := a.coordinator.Job(context.Background(), job.ID)
	if err != nil {
		return err
	}
	fmt.Println()
	ui.WriteJob(os.Stdout, final)
	if notify {
		ui.NewNotifier().NotifyJob(final)
	}

	if final.Status == models.JobCompleted {
		if err := handle.Err(); err != nil {
			return fmt.Errorf("job completed but materialize failed: %w", err)
		}
		if materializeAfter && a.artifacts.Exists(final.Collection) {
			ui.PrintInfo("Artifact", a.artifacts.PathFor(final.Collection))
		}
		return nil
	}
	if err := handle.Err(); err != nil {
		return err
	}
	return fmt.Errorf("job %s ended %s", final.ID, final.Status)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	collection := args[0]
	fetch := func(ctx context.Context) (*models.Job, error) {
		return a.coordinator.Status(ctx, collection)
	}

	// Without a terminal there is nothing to animate
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		job, err := fetch(ctx)
		if err != nil {
			return err
		}
		ui.WriteJob(os.Stdout, job)
		return nil
	}

	job, detached, err := tui.Watch(ctx, collection, fetch, watchInterval, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if job != nil && !detached {
		ui.WriteJob(os.Stdout, job)
	}
	return nil
}
