package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/models"
	"github.com/raphaelgruber/localgenius/internal/service"
)

var taskNoProgress bool

var taskCmd = &cobra.Command{
	Use:   "task <description>",
	Short: "Plan and run a coding task",
	Long: `Plan a task into steps and execute each step.

Every step is recorded as it runs. When stdout is a terminal a live progress
view is shown and Ctrl+C pauses the job after the current step; the job can
be continued later with 'localgenius resume'.

Examples:
  localgenius task "create a script that prints the first 10 primes"
  localgenius task --no-progress "write a CSV to JSON converter"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	taskCmd.Flags().BoolVar(&taskNoProgress, "no-progress", false, "disable the live progress view")
}

func runTask(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	if !taskNoProgress && isTerminal(os.Stdout) {
		return runTaskWithProgress(cmd.Context(), description)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := a.Runner.ExecuteTask(ctx, description)
	var planErr *service.PlanningError
	switch {
	case errors.As(err, &planErr):
		return fmt.Errorf("job %s: planning failed: %w", id, planErr.Err)
	case errors.Is(err, context.Canceled):
		fmt.Printf("Interrupted. Use 'localgenius resume %s' to continue.\n", id)
		return nil
	case err != nil:
		return fmt.Errorf("run task: %w", err)
	}

	return printJob(ctx, id, false)
}

func runTaskWithProgress(ctx context.Context, description string) error {
	id, err := a.Runner.StartTask(ctx, description)
	if err != nil {
		return fmt.Errorf("start task: %w", err)
	}
	fmt.Printf("Job %s started\n", id)

	quit, err := runJobProgress(a.Store, id)
	if err != nil {
		return err
	}
	if quit {
		// The background loop stops before its next step; Execute waits for it.
		return pauseWhenRunning(context.Background(), a.Runner, id)
	}
	return nil
}

// pauseWhenRunning pauses the job, first waiting until it leaves pending and
// planning since only a running job can be paused. A job that already
// finished or failed to plan is left alone.
func pauseWhenRunning(ctx context.Context, runner *service.Runner, id string) error {
	for {
		err := runner.PauseJob(ctx, id)
		if !errors.Is(err, jobs.ErrInvalidTransition) {
			return err
		}
		job, getErr := runner.Store().GetJob(ctx, id)
		if getErr != nil {
			return getErr
		}
		if job.Metadata[service.MetadataPlanningError] != nil {
			return nil
		}
		switch job.Status {
		case models.JobStatusPending, models.JobStatusPlanning:
		default:
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
