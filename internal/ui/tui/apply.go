package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// RunFunc runs a pipeline, reporting through observer.
type RunFunc func(ctx context.Context, observer provisioning.Observer) error

// Run wraps a pipeline run with a Bubble Tea dashboard. The run happens in a
// background goroutine; its events drive the phase rows.
func Run(ctx context.Context, run RunFunc, title, clusterName, location string, phases []string) error {
	m := NewModel(title, clusterName, location, phases)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		if err := run(ctx, NewObserver(p.Send)); err != nil {
			p.Send(ErrMsg{Err: err})
			return
		}
		p.Send(DoneMsg{})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	fm := finalModel.(Model)
	if fm.Err != nil {
		return fm.Err
	}
	if !fm.Done {
		return fmt.Errorf("interrupted")
	}
	return nil
}

// Observer turns provisioning events into dashboard messages.
type Observer struct {
	send func(tea.Msg)
}

// NewObserver returns an Observer delivering messages through send.
func NewObserver(send func(tea.Msg)) *Observer {
	return &Observer{send: send}
}

// Printf implements provisioning.Logger.
func (o *Observer) Printf(format string, v ...interface{}) {
	o.send(LineMsg{Text: strings.TrimSpace(fmt.Sprintf(format, v...))})
}

// Event implements provisioning.Observer.
func (o *Observer) Event(e provisioning.Event) {
	switch e.Type {
	case provisioning.EventPhaseStarted:
		o.send(PhaseMsg{Phase: e.Phase})
	case provisioning.EventPhaseCompleted:
		o.send(PhaseMsg{Phase: e.Phase, Done: true, Status: provisioning.PhaseStatus(e.Fields[provisioning.FieldStatus])})
	case provisioning.EventPhaseFailed:
		o.send(PhaseMsg{Phase: e.Phase, Err: fmt.Errorf("%s", e.Message)})
	case provisioning.EventPhaseWarning:
		o.send(LineMsg{Text: fmt.Sprintf("[%s] %s", e.Phase, e.Message), Warning: true})
	case provisioning.EventResourceAdopted, provisioning.EventResourceCreated,
		provisioning.EventResourceUpdated, provisioning.EventResourceDeleted,
		provisioning.EventResourceProtected, provisioning.EventCertificateResolved,
		provisioning.EventBackupUploaded, provisioning.EventRestoreCompleted:
		o.send(LineMsg{Text: fmt.Sprintf("[%s] %s %s", e.Phase, e.Resource, e.Message)})
	}
}

// Progress implements provisioning.Observer.
func (o *Observer) Progress(string, int, int) {}

// WithFields implements provisioning.Observer.
func (o *Observer) WithFields(map[string]string) provisioning.Observer { return o }

var _ provisioning.Observer = (*Observer)(nil)
