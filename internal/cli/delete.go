package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a job record",
	Long: `Delete a job record. Files written by its steps are kept.

Requires confirmation unless --force is used. A job that is executing in
this process cannot be deleted.

Examples:
  localgenius delete 3f2a9c1e
  localgenius delete 3f2a9c1e --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := cmd.Context()

	job, err := a.Store.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	// Confirm deletion
	if !deleteForce {
		if !isTerminal(os.Stdin) {
			return errors.New("refusing to delete without confirmation: use --force")
		}
		fmt.Printf("About to delete: %s [%s] %s\n", job.ID, job.Status, clip(job.Task, 60))
		fmt.Print("\nContinue? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := a.Runner.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	fmt.Printf("Deleted: %s\n", id)
	return nil
}
