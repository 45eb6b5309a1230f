// Package tui provides a Bubble Tea-based terminal UI for deployment runs.
package tui

import "github.com/imamik/webui-gke/internal/provisioning"

// PhaseMsg reports progress of a pipeline phase.
type PhaseMsg struct {
	Phase  string
	Done   bool
	Status provisioning.PhaseStatus
	Err    error
}

// LineMsg carries one line of activity output, such as an applied action.
type LineMsg struct {
	Text    string
	Warning bool
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg carries an error.
type ErrMsg struct{ Err error }

// DoneMsg signals that the operation is complete.
type DoneMsg struct{}
