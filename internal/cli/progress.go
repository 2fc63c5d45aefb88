package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/models"
	"github.com/raphaelgruber/localgenius/internal/service"
)

const pollInterval = 500 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job *models.Job
	err error
}

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	store    *jobs.Store
	jobID    string
	job      *models.Job
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(store *jobs.Store, jobID string) progressModel {
	return progressModel{
		store: store,
		jobID: jobID,
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchJob(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		m.job = msg.job

		if reason, ok := m.job.Metadata[service.MetadataPlanningError]; ok {
			m.err = fmt.Errorf("planning failed: %v", reason)
			m.done = true
			return m, tea.Quit
		}
		if m.job.Status.IsTerminal() || m.job.Status == models.JobStatusPaused {
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.job == nil {
		return "Loading job status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to pause the job")

	total := len(m.job.Steps)
	if total == 0 {
		return fmt.Sprintf("%s planning: %s\n%s\n", status, m.job.Task, hint)
	}

	finished := total - m.job.CountSteps(models.StepStatusPending) - m.job.CountSteps(models.StepStatusRunning)
	bar := m.progress.ViewAs(float64(finished) / float64(total))
	counts := fmt.Sprintf("%d/%d steps", finished, total)

	current := ""
	for _, s := range m.job.Steps {
		if s.Status == models.StepStatusRunning {
			current = fmt.Sprintf("\n  → %d. %s", s.Index+1, s.Description)
			break
		}
	}
	return fmt.Sprintf("%s %s %s%s\n%s\n", status, bar, counts, current, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render(fmt.Sprintf(
			"\nPausing job %s after the current step.\nUse 'localgenius resume %s' to continue.\n", m.jobID, m.jobID))
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}
	if m.job == nil {
		return ""
	}

	var b strings.Builder
	switch m.job.Status {
	case models.JobStatusCompleted:
		b.WriteString(m.theme.completedStyle().Render("✓ Completed"))
	case models.JobStatusPaused:
		b.WriteString(m.theme.hintStyle().Render("Paused"))
	default:
		b.WriteString(m.theme.errorStyle().Render("✗ " + string(m.job.Status)))
	}
	b.WriteString("\n\n")
	for _, s := range m.job.Steps {
		fmt.Fprintf(&b, "  %s %d. %s\n", stepMark(s.Status), s.Index+1, s.Description)
	}
	return b.String()
}

// fetchJob reads the job from the store in a command so Update never blocks.
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.store.GetJob(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runJobProgress shows live progress for jobID until the job finishes,
// halts, or the user quits. It reports whether the user quit.
func runJobProgress(store *jobs.Store, jobID string) (quit bool, err error) {
	p := tea.NewProgram(newProgressModel(store, jobID))

	finalModel, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return true, nil
		}
		return false, m.err
	}
	return false, nil
}
