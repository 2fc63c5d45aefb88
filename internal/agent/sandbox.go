package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// maxOutput bounds the interpreter output kept in results.
const maxOutput = 8000

// ExecutionError reports code that ran but did not finish cleanly.
type ExecutionError struct {
	Message string
	Output  string
}

func (e *ExecutionError) Error() string {
	if e.Output == "" {
		return "code execution failed: " + e.Message
	}
	return fmt.Sprintf("code execution failed: %s\n%s", e.Message, e.Output)
}

// Sandbox runs generated code through an external interpreter.
type Sandbox struct {
	Interpreter string
	Timeout     time.Duration
	Dir         string
}

// Run writes code to a temporary file and executes it. It returns the
// combined output, or *ExecutionError on a non-zero exit or timeout.
func (s *Sandbox) Run(ctx context.Context, code string) (string, error) {
	interpreter := s.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	f, err := os.CreateTemp("", "localgenius-*.py")
	if err != nil {
		return "", fmt.Errorf("create script: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.WriteString(code); err != nil {
		f.Close()
		return "", fmt.Errorf("write script: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close script: %w", err)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, interpreter, f.Name())
	cmd.Dir = s.Dir
	cmd.WaitDelay = time.Second

	out, err := cmd.CombinedOutput()
	output := clip(strings.TrimSpace(string(out)), maxOutput)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return output, &ExecutionError{Message: "execution timed out", Output: output}
		}
		return output, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, &ExecutionError{Message: fmt.Sprintf("exit status %d", exitErr.ExitCode()), Output: output}
	}
	if err != nil {
		return output, fmt.Errorf("run %s: %w", interpreter, err)
	}
	return output, nil
}

func clip(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n[output truncated]"
}
