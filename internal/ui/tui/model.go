package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/ui/benchmarks"
)

// recentLines is how many activity lines the dashboard keeps.
const recentLines = 6

// PhaseRow represents one pipeline phase for display.
type PhaseRow struct {
	Name      string
	Active    bool
	Done      bool
	Warning   bool
	Err       error
	StartedAt time.Time
	EndedAt   *time.Time
}

// Model is the Bubble Tea model for the deployment dashboard.
type Model struct {
	ClusterName string
	Location    string
	Title       string

	Phases []PhaseRow

	// Activity
	Recent   []string
	Warnings []string

	// ETA
	EstimatedRemaining time.Duration
	PerformanceScale   float64
	StartTime          time.Time

	// Animation
	SpinnerFrame int

	// UI state
	Width  int
	Height int
	Err    error
	Done   bool

	now func() time.Time
}

// NewModel creates a dashboard model for a run of the named phases.
func NewModel(title, clusterName, location string, phases []string) Model {
	m := Model{
		ClusterName:      clusterName,
		Location:         location,
		Title:            title,
		StartTime:        time.Now(),
		PerformanceScale: 1.0,
		now:              time.Now,
	}
	for _, name := range phases {
		m.Phases = append(m.Phases, PhaseRow{Name: name})
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case PhaseMsg:
		m.updatePhase(msg)
		m.updateETA()

	case LineMsg:
		if msg.Warning {
			m.Warnings = append(m.Warnings, msg.Text)
		} else {
			m.Recent = append(m.Recent, msg.Text)
			if len(m.Recent) > recentLines {
				m.Recent = m.Recent[len(m.Recent)-recentLines:]
			}
		}

	case TickMsg:
		m.SpinnerFrame++
		m.updateETA()
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

func (m *Model) updatePhase(msg PhaseMsg) {
	idx := -1
	for i, phase := range m.Phases {
		if phase.Name == msg.Phase {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	row := &m.Phases[idx]
	switch {
	case msg.Err != nil:
		row.Err = msg.Err
		row.Active = false
		now := m.clock()
		row.EndedAt = &now
	case msg.Done:
		row.Done = true
		row.Active = false
		row.Warning = msg.Status == provisioning.StatusWarning
		now := m.clock()
		row.EndedAt = &now
	default:
		row.Active = true
		row.StartedAt = m.clock()
	}
}

// history converts finished and running rows into benchmark records.
func (m *Model) history() []benchmarks.PhaseRecord {
	var out []benchmarks.PhaseRecord
	for _, p := range m.Phases {
		if p.StartedAt.IsZero() {
			continue
		}
		out = append(out, benchmarks.PhaseRecord{Phase: p.Name, StartedAt: p.StartedAt, EndedAt: p.EndedAt})
	}
	return out
}

func (m *Model) activePhase() *PhaseRow {
	for i := range m.Phases {
		if m.Phases[i].Active {
			return &m.Phases[i]
		}
	}
	return nil
}

func (m *Model) updateETA() {
	active := m.activePhase()
	if active == nil || m.Done {
		m.EstimatedRemaining = 0
		return
	}

	elapsed := m.clock().Sub(active.StartedAt)
	history := m.history()
	m.PerformanceScale = benchmarks.PerformanceScale(active.Name, elapsed, history)
	m.EstimatedRemaining = benchmarks.EstimateRemaining(active.Name, elapsed, history)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
