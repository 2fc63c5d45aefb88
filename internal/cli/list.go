package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/models"
)

var (
	listLimit  int
	listStatus string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Long: `List recorded jobs, most recently created first.

Examples:
  localgenius list
  localgenius list --status paused
  localgenius list -n 5`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "max results (0 for all)")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by job status")
}

func runList(cmd *cobra.Command, args []string) error {
	opts := jobs.ListOptions{Limit: listLimit}
	if listStatus != "" {
		status, err := models.ParseJobStatus(listStatus)
		if err != nil {
			return err
		}
		opts.Status = status
	}

	summaries, err := a.Store.ListJobs(opts)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	writeSummaries(os.Stdout, summaries)
	return nil
}

func writeSummaries(w io.Writer, summaries []models.JobSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tTASK")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Status, s.CreatedAt.Local().Format(time.DateTime), clip(s.Task, 60))
	}
	_ = tw.Flush()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
