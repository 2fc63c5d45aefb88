package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry <id> <step>",
	Short: "Re-run a single step",
	Long: `Re-run exactly one step of a job, whatever its current status.
Steps are numbered from 1 as shown by 'localgenius show'.

Examples:
  localgenius retry 3f2a9c1e 2`,
	Args: cobra.ExactArgs(2),
	RunE: runRetry,
}

func runRetry(cmd *cobra.Command, args []string) error {
	id := args[0]
	index, err := parseStepArg(args[1])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status, err := a.Runner.RetryStep(ctx, id, index)
	if err != nil {
		return fmt.Errorf("retry step: %w", err)
	}
	fmt.Printf("Step %d %s\n\n", index+1, status)
	return printJob(ctx, id, true)
}

// parseStepArg converts a 1-based step number into a step index.
func parseStepArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid step number %q: must be a positive integer", s)
	}
	return n - 1, nil
}
