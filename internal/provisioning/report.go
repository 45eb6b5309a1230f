package provisioning

import (
	"fmt"
	"time"
)

// PhaseStatus is the outcome of one phase.
type PhaseStatus string

const (
	StatusSuccess PhaseStatus = "success"
	StatusWarning PhaseStatus = "warning"
	StatusFailed  PhaseStatus = "failed"
	StatusNotRun  PhaseStatus = "not-run"
)

// PhaseResult records what one phase did.
type PhaseResult struct {
	Name     string
	Status   PhaseStatus
	Actions  []Action
	Skipped  []string
	Warnings []string
	Err      error
	Duration time.Duration
}

// Report collects the results of a pipeline run in execution order.
type Report struct {
	Phases []*PhaseResult
}

// Phase returns the result for name, or nil.
func (r *Report) Phase(name string) *PhaseResult {
	for _, p := range r.Phases {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Actions returns every action across all phases.
func (r *Report) Actions() []Action {
	var out []Action
	for _, p := range r.Phases {
		out = append(out, p.Actions...)
	}
	return out
}

// Status is the worst status of any phase that ran.
func (r *Report) Status() PhaseStatus {
	status := StatusSuccess
	for _, p := range r.Phases {
		switch p.Status {
		case StatusFailed:
			return StatusFailed
		case StatusWarning:
			status = StatusWarning
		}
	}
	return status
}

// Summary is a one-line account of the run.
func (r *Report) Summary() string {
	counts := map[ActionType]int{}
	for _, a := range r.Actions() {
		counts[a.Type]++
	}
	return fmt.Sprintf("%s: %d adopted, %d created, %d updated, %d destroyed",
		r.Status(), counts[ActionAdopt], counts[ActionCreate], counts[ActionUpdate], counts[ActionDestroy])
}
