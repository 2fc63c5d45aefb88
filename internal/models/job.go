// Package models defines data structures for localgenius jobs and steps.
package models

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusPlanning  JobStatus = "planning"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusAborted   JobStatus = "aborted"
)

// JobStatuses lists every job status in lifecycle order.
var JobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusPlanning,
	JobStatusRunning,
	JobStatusPaused,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusAborted,
}

// ParseJobStatus converts a string into a JobStatus, rejecting unknown values.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the defined job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusPlanning, JobStatusRunning, JobStatusPaused,
		JobStatusCompleted, JobStatusFailed, JobStatusAborted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are defined from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusAborted:
		return true
	case JobStatusPending, JobStatusPlanning, JobStatusRunning, JobStatusPaused:
		return false
	default:
		return false
	}
}

// Halted reports whether an execution loop must stop before the next step.
func (s JobStatus) Halted() bool {
	switch s {
	case JobStatusPaused, JobStatusAborted:
		return true
	case JobStatusPending, JobStatusPlanning, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed:
		return false
	default:
		return false
	}
}

// Resumable reports whether a job in status s may be resumed.
func (s JobStatus) Resumable() bool {
	switch s {
	case JobStatusPaused, JobStatusRunning:
		return true
	case JobStatusPending, JobStatusPlanning, JobStatusCompleted,
		JobStatusFailed, JobStatusAborted:
		return false
	default:
		return false
	}
}

// StepStatus is the state of one step's most recent run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// ParseStepStatus converts a string into a StepStatus, rejecting unknown values.
func ParseStepStatus(s string) (StepStatus, error) {
	st := StepStatus(s)
	switch st {
	case StepStatusPending, StepStatusRunning, StepStatusCompleted, StepStatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown step status %q", s)
	}
}

// IsTerminal reports whether the step's current run has finished.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed:
		return true
	case StepStatusPending, StepStatusRunning:
		return false
	default:
		return false
	}
}

// Step is one execution unit within a job.
type Step struct {
	Index       int        `json:"index"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Result      *string    `json:"result"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Duration    *float64   `json:"duration"` // seconds, most recent run
	Attempts    int        `json:"attempts"`
}

// Artifact is a typed reference to an output produced during execution.
type Artifact struct {
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Path      string         `json:"path"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Job is one tracked unit of work derived from a task description.
type Job struct {
	ID            string         `json:"id"`
	Task          string         `json:"task"`
	Status        JobStatus      `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Plan          []string       `json:"plan"`
	Steps         []Step         `json:"steps"`
	MemoryContext []string       `json:"memory_context"`
	Artifacts     []Artifact     `json:"artifacts"`
	Metadata      map[string]any `json:"metadata"`
}

// JobSummary is the index entry for a job.
type JobSummary struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJob returns a pending job with empty collections.
func NewJob(id, task string, now time.Time) *Job {
	return &Job{
		ID:            id,
		Task:          task,
		Status:        JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Plan:          []string{},
		Steps:         []Step{},
		MemoryContext: []string{},
		Artifacts:     []Artifact{},
		Metadata:      map[string]any{},
	}
}

// NewSteps builds one pending step per plan entry.
func NewSteps(plan []string) []Step {
	steps := make([]Step, len(plan))
	for i, desc := range plan {
		steps[i] = Step{
			Index:       i,
			Description: desc,
			Status:      StepStatusPending,
		}
	}
	return steps
}

// Summary returns the index entry for j.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:        j.ID,
		Task:      j.Task,
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// FirstIncompleteStep returns the index of the first pending or running step,
// or -1 when every step has finished.
func (j *Job) FirstIncompleteStep() int {
	for i, s := range j.Steps {
		if !s.Status.IsTerminal() {
			return i
		}
	}
	return -1
}

// CountSteps returns how many steps are in the given status.
func (j *Job) CountSteps(status StepStatus) int {
	n := 0
	for _, s := range j.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

// DeriveStatus applies the recomputation rule to a step sequence. It returns
// false when at least one step has not finished or there are no steps.
func DeriveStatus(steps []Step) (JobStatus, bool) {
	if len(steps) == 0 {
		return "", false
	}
	failed := false
	for _, s := range steps {
		switch s.Status {
		case StepStatusCompleted:
		case StepStatusFailed:
			failed = true
		case StepStatusPending, StepStatusRunning:
			return "", false
		default:
			return "", false
		}
	}
	if failed {
		return JobStatusFailed, true
	}
	return JobStatusCompleted, true
}

// Clone returns a deep copy of j. Metadata values are copied shallowly.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Plan = slices.Clone(j.Plan)
	c.MemoryContext = slices.Clone(j.MemoryContext)
	c.Metadata = maps.Clone(j.Metadata)

	c.Steps = make([]Step, len(j.Steps))
	for i, s := range j.Steps {
		c.Steps[i] = s.clone()
	}

	c.Artifacts = make([]Artifact, len(j.Artifacts))
	for i, a := range j.Artifacts {
		a.Metadata = maps.Clone(a.Metadata)
		c.Artifacts[i] = a
	}
	return &c
}

func (s Step) clone() Step {
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	if s.Duration != nil {
		d := *s.Duration
		s.Duration = &d
	}
	return s
}
