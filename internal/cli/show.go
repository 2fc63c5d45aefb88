package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/localgenius/internal/models"
	"github.com/raphaelgruber/localgenius/internal/service"
)

var showResults bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a job with its steps",
	Long: `Show a job's status, plan steps, artifacts and timings.

Examples:
  localgenius show 3f2a9c1e
  localgenius show 3f2a9c1e --results`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVarP(&showResults, "results", "r", false, "print full step results")
}

func runShow(cmd *cobra.Command, args []string) error {
	return printJob(cmd.Context(), args[0], showResults)
}

func printJob(ctx context.Context, id string, full bool) error {
	job, err := a.Store.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	writeJob(os.Stdout, job, full || verbose)
	return nil
}

// stepMark is the one-character status marker used in listings.
func stepMark(s models.StepStatus) string {
	switch s {
	case models.StepStatusCompleted:
		return "✓"
	case models.StepStatusFailed:
		return "✗"
	case models.StepStatusRunning:
		return "→"
	default:
		return "·"
	}
}

func writeJob(w io.Writer, job *models.Job, full bool) {
	fmt.Fprintf(w, "Job %s [%s]\n", job.ID, job.Status)
	fmt.Fprintf(w, "Task:    %s\n", job.Task)
	fmt.Fprintf(w, "Created: %s\n", job.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Updated: %s\n", job.UpdatedAt.Local().Format(time.DateTime))

	if reason, ok := job.Metadata[service.MetadataPlanningError]; ok {
		fmt.Fprintf(w, "Planning error: %v\n", reason)
	}

	if len(job.Steps) > 0 {
		fmt.Fprintf(w, "\nSteps (%d/%d completed):\n", job.CountSteps(models.StepStatusCompleted), len(job.Steps))
		for _, s := range job.Steps {
			fmt.Fprintf(w, "  %s %d. %s", stepMark(s.Status), s.Index+1, s.Description)
			if s.Duration != nil {
				fmt.Fprintf(w, " (%.1fs)", *s.Duration)
			}
			if s.Attempts > 1 {
				fmt.Fprintf(w, " [%d attempts]", s.Attempts)
			}
			fmt.Fprintln(w)
			if s.Result != nil && *s.Result != "" {
				fmt.Fprintf(w, "%s\n", indent(resultText(*s.Result, full), "      "))
			}
		}
	}

	if len(job.Artifacts) > 0 {
		fmt.Fprintf(w, "\nArtifacts (%d):\n", len(job.Artifacts))
		for _, art := range job.Artifacts {
			fmt.Fprintf(w, "  - [%s] %s  %s\n", art.Type, art.Name, art.Path)
		}
	}
}

// resultText returns the first line of a result unless full output is wanted.
func resultText(result string, full bool) string {
	result = strings.TrimSpace(result)
	if full {
		return result
	}
	first, rest, found := strings.Cut(result, "\n")
	if found && strings.TrimSpace(rest) != "" {
		return first + " …"
	}
	return first
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
