package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/localgenius/internal/models"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a job record",
	Long: `Export a job record as JSON, YAML or a Markdown report.

The Markdown report keeps the job fields in YAML frontmatter followed by one
section per step.

Examples:
  localgenius export 3f2a9c1e
  localgenius export 3f2a9c1e --format yaml
  localgenius export 3f2a9c1e --format md --output ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "F", "json", "output format: json, yaml or md")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file or directory instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	job, err := a.Store.GetJob(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	data, err := exportDocument(job, exportFormat)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	path := exportOutput
	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		path = filepath.Join(path, job.ID+"."+exportExtension(exportFormat))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Printf("Exported %s to %s\n", job.ID, path)
	return nil
}

func exportExtension(format string) string {
	switch format {
	case "yaml":
		return "yaml"
	case "md", "markdown":
		return "md"
	default:
		return "json"
	}
}

// exportDocument renders job in the given format. YAML output mirrors the
// JSON field names.
func exportDocument(job *models.Job, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal job: %w", err)
		}
		return append(data, '\n'), nil
	case "yaml":
		doc, err := jsonMap(job)
		if err != nil {
			return nil, err
		}
		return marshalYAML(doc)
	case "md", "markdown":
		return markdownReport(job)
	default:
		return nil, fmt.Errorf("unknown export format %q (use json, yaml or md)", format)
	}
}

func jsonMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return doc, nil
}

func marshalYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return buf.Bytes(), nil
}

type reportFrontmatter struct {
	ID        string           `yaml:"id"`
	Task      string           `yaml:"task"`
	Status    models.JobStatus `yaml:"status"`
	CreatedAt string           `yaml:"created_at"`
	UpdatedAt string           `yaml:"updated_at"`
	Steps     int              `yaml:"steps"`
	Completed int              `yaml:"completed"`
	Failed    int              `yaml:"failed"`
	Artifacts []string         `yaml:"artifacts,omitempty"`
}

func markdownReport(job *models.Job) ([]byte, error) {
	fm := reportFrontmatter{
		ID:        job.ID,
		Task:      job.Task,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
		Steps:     len(job.Steps),
		Completed: job.CountSteps(models.StepStatusCompleted),
		Failed:    job.CountSteps(models.StepStatusFailed),
	}
	for _, art := range job.Artifacts {
		fm.Artifacts = append(fm.Artifacts, art.Path)
	}

	header, err := marshalYAML(fm)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", job.Task)
	for _, s := range job.Steps {
		fmt.Fprintf(&b, "## %d. %s\n\n", s.Index+1, s.Description)
		fmt.Fprintf(&b, "Status: %s", s.Status)
		if s.Duration != nil {
			fmt.Fprintf(&b, " (%.1fs)", *s.Duration)
		}
		b.WriteString("\n\n")
		if s.Result != nil && *s.Result != "" {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.TrimSpace(*s.Result))
		}
	}
	return []byte(b.String()), nil
}
