package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/raphaelgruber/localgenius/internal/models"
	"github.com/raphaelgruber/localgenius/internal/service"
)

const codePrompt = `You are a Python developer. Write clean, working Python code for the following step.
Include print statements so the result of running the code is visible.
Respond with a single Python code block.

Step: %s
`

var (
	fencedCode = regexp.MustCompile("(?s)```(?:python|py)?[ \t]*\n(.*?)```")
	wordRe     = regexp.MustCompile(`\w+`)
	// Steps mentioning these verbs keep their code in the workspace.
	fileVerbs = []string{"create", "write", "implement", "develop"}
)

// Runner executes a piece of source code. *Sandbox satisfies it.
type Runner interface {
	Run(ctx context.Context, code string) (string, error)
}

// CodeExecutor turns a step into code with a model and runs it.
type CodeExecutor struct {
	gen       Generator
	runner    Runner
	workspace string
	logger    *slog.Logger
	now       func() time.Time
}

// NewCodeExecutor creates an executor that saves generated files under
// workspace.
func NewCodeExecutor(gen Generator, runner Runner, workspace string, logger *slog.Logger) *CodeExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CodeExecutor{gen: gen, runner: runner, workspace: workspace, logger: logger, now: time.Now}
}

// Execute runs step and returns its textual result.
func (e *CodeExecutor) Execute(ctx context.Context, step string) (string, error) {
	out, err := e.ExecuteStep(ctx, step)
	return out.Result, err
}

// ExecuteStep runs step and reports any file it wrote as an artifact.
func (e *CodeExecutor) ExecuteStep(ctx context.Context, step string) (service.StepOutput, error) {
	resp, err := e.gen.Generate(ctx, fmt.Sprintf(codePrompt, step))
	if err != nil {
		return service.StepOutput{}, fmt.Errorf("generate code: %w", err)
	}
	code := ExtractCode(resp)
	if code == "" {
		return service.StepOutput{}, &ExecutionError{Message: "model returned no code"}
	}

	var out service.StepOutput
	var written string
	if wantsFile(step) {
		name := ScriptName(step)
		path := filepath.Join(e.workspace, name)
		if err := writeScript(path, code); err != nil {
			return out, err
		}
		written = path
		out.Artifacts = append(out.Artifacts, models.Artifact{
			Type:      "file",
			Name:      name,
			Path:      path,
			CreatedAt: e.now(),
			Metadata:  map[string]any{"step": step, "bytes": len(code)},
		})
		e.logger.Debug("script written", "path", path)
	}

	result, err := e.runner.Run(ctx, code)
	if err != nil {
		return out, err
	}

	if written != "" {
		out.Result = fmt.Sprintf("Code written to %s and executed with result:\n%s", written, result)
	} else {
		out.Result = fmt.Sprintf("Code executed with result:\n%s", result)
	}
	return out, nil
}

// ExtractCode returns the first fenced code block in resp, or resp itself
// when it has none.
func ExtractCode(resp string) string {
	if m := fencedCode.FindStringSubmatch(resp); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(resp)
}

// ScriptName derives a file name from the first five words of step.
func ScriptName(step string) string {
	words := wordRe.FindAllString(strings.ToLower(step), 5)
	if len(words) == 0 {
		return "step.py"
	}
	return strings.Join(words, "_") + ".py"
}

func wantsFile(step string) bool {
	lower := strings.ToLower(step)
	for _, v := range fileVerbs {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

func writeScript(path, code string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	if err := os.WriteFile(path, []byte(code+"\n"), 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	return nil
}
