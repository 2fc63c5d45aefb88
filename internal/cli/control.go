package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a running job after its current step",
	Args:  cobra.ExactArgs(1),
	RunE:  runPause,
}

var abortCmd = &cobra.Command{
	Use:   "abort <id>",
	Short: "Abort a job",
	Long: `Mark a job aborted. A job that is executing stops before its next step.
Aborted jobs cannot be resumed, but single steps can still be retried.`,
	Args: cobra.ExactArgs(1),
	RunE: runAbort,
}

func runPause(cmd *cobra.Command, args []string) error {
	if err := a.Runner.PauseJob(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("pause job: %w", err)
	}
	fmt.Printf("Paused: %s\n", args[0])
	return nil
}

func runAbort(cmd *cobra.Command, args []string) error {
	if err := a.Runner.AbortJob(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("abort job: %w", err)
	}
	fmt.Printf("Aborted: %s\n", args[0])
	return nil
}
