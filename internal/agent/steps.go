package agent

import (
	"regexp"
	"strings"
)

// maxSalvagedSteps caps steps recovered from unstructured output.
const maxSalvagedSteps = 5

var (
	numberedLine = regexp.MustCompile(`^\d+\.\s*(.*)$`)
	labeledLine  = regexp.MustCompile(`(?i)step\s*\d+[:)]\s*(.*)`)
	noiseWords   = []string{"reason", "explanation", "note:"}
)

// ParseSteps extracts step descriptions from model output. It accepts, in
// order of preference, "1. ..." lines, "Step 1: ..." or "Step 1) ..." lines,
// and finally any instruction-like lines, capped at five.
func ParseSteps(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	lines := strings.Split(raw, "\n")

	var steps []string
	for _, line := range lines {
		if m := numberedLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if s := strings.TrimSpace(m[1]); s != "" {
				steps = append(steps, s)
			}
		}
	}
	if len(steps) > 0 {
		return steps
	}

	for _, line := range lines {
		if m := labeledLine.FindStringSubmatch(line); m != nil {
			if s := strings.TrimSpace(m[1]); s != "" {
				steps = append(steps, s)
			}
		}
	}
	if len(steps) > 0 {
		return steps
	}

	for _, line := range lines {
		s := strings.TrimSpace(line)
		if len(s) <= 10 || strings.HasSuffix(s, ":") || strings.HasPrefix(s, "#") {
			continue
		}
		if containsAny(strings.ToLower(s), noiseWords) {
			continue
		}
		steps = append(steps, s)
		if len(steps) == maxSalvagedSteps {
			break
		}
	}
	return steps
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
