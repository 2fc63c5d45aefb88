package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/models"
)

var resumeAll bool

var resumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Resume a paused or interrupted job",
	Long: `Resume a job from its first unfinished step.

A job left running by a crashed or interrupted process continues from the
step that was in progress. With --all, every paused and interrupted job is
resumed in turn.

Examples:
  localgenius resume 3f2a9c1e
  localgenius resume --all`,
	Args: func(cmd *cobra.Command, args []string) error {
		if resumeAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeAll, "all", false, "resume every paused and interrupted job")
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !resumeAll {
		return resumeOne(ctx, args[0])
	}

	ids, err := resumableJobs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No jobs to resume.")
		return nil
	}
	for _, id := range ids {
		if err := resumeOne(ctx, id); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return nil
}

// resumableJobs lists running jobs first since those were interrupted mid-step.
func resumableJobs() ([]string, error) {
	var ids []string
	for _, status := range []models.JobStatus{models.JobStatusRunning, models.JobStatusPaused} {
		summaries, err := a.Store.ListJobs(jobs.ListOptions{Status: status})
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		for _, s := range summaries {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func resumeOne(ctx context.Context, id string) error {
	res, err := a.Runner.ResumeJob(ctx, id)
	if errors.Is(err, context.Canceled) {
		fmt.Printf("Interrupted. Use 'localgenius resume %s' to continue.\n", id)
		return err
	}
	if err != nil {
		return fmt.Errorf("resume job %s: %w", id, err)
	}
	if res.NothingToDo {
		job, err := a.Store.GetJob(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s has no unfinished steps (%s).\n", id, job.Status)
		return nil
	}
	fmt.Printf("Resumed job %s from step %d\n\n", id, res.FromStep+1)
	return printJob(ctx, id, false)
}
