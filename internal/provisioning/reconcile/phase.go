package reconcile

import (
	"fmt"

	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/locate"
)

// ForPhase builds a Reconciler whose events and retry budget follow pctx.
func ForPhase(pctx *provisioning.Context, drivers locate.Drivers, opts ...Option) *Reconciler {
	base := []Option{
		WithObserver(pctx.Observer),
		WithPhase(pctx.PhaseName()),
	}
	if t := pctx.Timeouts; t != nil {
		base = append(base, WithLookupRetry(t.RetryMaxAttempts, t.RetryInitialDelay))
	}
	return New(locate.New(pctx.Store, drivers), pctx.Store, append(base, opts...)...)
}

// Apply reconciles desired under group, or plans it when pctx.DryRun is set,
// and records the outcome in the current phase. Resource failures are
// returned as the phase's fatal error.
func Apply(pctx *provisioning.Context, r *Reconciler, group string, desired []provisioning.ManagedResource) (*Result, error) {
	var (
		res *Result
		err error
	)
	if pctx.DryRun {
		res, err = r.Plan(pctx, group, desired)
	} else {
		res, err = r.Reconcile(pctx, group, desired)
	}
	if res != nil {
		Record(pctx, res)
	}
	if err != nil {
		return res, err
	}
	if err := res.Err(); err != nil {
		return res, fmt.Errorf("%s: %w", group, err)
	}
	return res, nil
}

// Record adds the result's actions, skips and warnings to the current phase.
func Record(pctx *provisioning.Context, res *Result) {
	pctx.RecordActions(res.Applied...)
	for _, s := range res.Skipped {
		pctx.RecordSkipped(s.String())
	}
	for _, w := range res.Warnings {
		pctx.Warnf("%s", w)
	}
}
