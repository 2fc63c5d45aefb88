// Package agent implements the LLM-backed planner and code executor.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/localgenius/internal/service"
)

// Generator produces text from a prompt. *llm.Model satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const planPrompt = `You are a helpful developer assistant that writes Python code to accomplish tasks.

Here is relevant memory from past tasks:
%s

Break down this task into 3-5 executable steps.
IMPORTANT: Focus on coding steps - each step should involve writing or running code.
Avoid planning/research steps that don't involve coding.

Your response MUST follow this format, with each step on a new line starting with a number followed by a period:
1. First coding step (e.g., "Write a script to...")
2. Second coding step (e.g., "Implement a function that...")
3. Third coding step (e.g., "Create a loop to...")

Task: %s
Steps:
`

// Planner asks a model to break a task into coding steps.
type Planner struct {
	gen    Generator
	logger *slog.Logger
}

// NewPlanner creates a planner over gen.
func NewPlanner(gen Generator, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{gen: gen, logger: logger}
}

// Plan returns the parsed steps, or an error wrapping service.ErrNoSteps when
// none could be parsed.
func (p *Planner) Plan(ctx context.Context, task string, memoryContext []string) ([]string, error) {
	prompt := fmt.Sprintf(planPrompt, strings.Join(memoryContext, "\n"), task)

	out, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	steps := ParseSteps(out)
	if len(steps) == 0 {
		p.logger.Warn("could not parse steps from model output", "output", truncate(out, 200))
		return nil, fmt.Errorf("parse plan: %w", service.ErrNoSteps)
	}
	p.logger.Debug("plan parsed", "steps", len(steps))
	return steps, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
