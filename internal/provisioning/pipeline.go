package provisioning

import (
	"fmt"
	"time"
)

// Pipeline runs phases strictly in order. A fatal error in one phase leaves
// every later phase un-run.
type Pipeline struct {
	Phases []Phase
}

// NewPipeline creates a pipeline from phases.
func NewPipeline(phases ...Phase) *Pipeline {
	return &Pipeline{Phases: phases}
}

// Run executes the phases and fills ctx.Report.
func (p *Pipeline) Run(ctx *Context) error {
	start := time.Now()
	ctx.Observer.Printf("Starting provisioning with %d phases...", len(p.Phases))

	if ctx.Report == nil {
		ctx.Report = &Report{}
	}

	var failed error
	for i, phase := range p.Phases {
		result := &PhaseResult{Name: phase.Name(), Status: StatusNotRun}
		ctx.Report.Phases = append(ctx.Report.Phases, result)
		if failed != nil {
			continue
		}

		if err := ctx.Err(); err != nil {
			result.Err = err
			failed = fmt.Errorf("aborted before %s phase: %w", phase.Name(), err)
			continue
		}

		ctx.current = result
		ctx.Observer.Progress(phase.Name(), i+1, len(p.Phases))
		LogPhaseStart(ctx.Observer, phase.Name())

		phaseStart := time.Now()
		err := phase.Provision(ctx)
		result.Duration = time.Since(phaseStart)
		ctx.current = nil

		switch {
		case err != nil:
			result.Status = StatusFailed
			result.Err = err
			LogPhaseFailed(ctx.Observer, phase.Name(), err, result.Duration)
			failed = fmt.Errorf("%s phase failed: %w", phase.Name(), err)
		case len(result.Warnings) > 0:
			result.Status = StatusWarning
			LogPhaseComplete(ctx.Observer, phase.Name(), result.Status, result.Duration)
		default:
			result.Status = StatusSuccess
			LogPhaseComplete(ctx.Observer, phase.Name(), result.Status, result.Duration)
		}
	}

	if failed != nil {
		return failed
	}

	ctx.Observer.Printf("Provisioning completed in %v (%s)", time.Since(start).Round(time.Millisecond), ctx.Report.Summary())
	return nil
}

// PhaseFunc adapts a function to the Phase interface.
type PhaseFunc struct {
	PhaseName string
	Fn        func(ctx *Context) error
}

// Name implements Phase.
func (f PhaseFunc) Name() string { return f.PhaseName }

// Provision implements Phase.
func (f PhaseFunc) Provision(ctx *Context) error { return f.Fn(ctx) }
