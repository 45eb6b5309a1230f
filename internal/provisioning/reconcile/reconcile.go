// Package reconcile converges a desired set of managed resources onto their
// backing stores.
//
// For each resource, in dependency order, the reconciler locates it and then:
//   - adopts it into state when it exists but is untracked,
//   - updates it when the desired descriptor diverges from what was recorded,
//   - creates it when it is absent,
//   - leaves it alone otherwise.
//
// Records of the same group that are no longer desired are destroyed in
// reverse dependency order. Persistent-protected resources are never updated
// in place and never destroyed unless the caller overrides protection.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/locate"
	"github.com/imamik/webui-gke/internal/util/retry"
)

// Skip is a resource the run deliberately did not act on.
type Skip struct {
	Ref    provisioning.Ref
	Reason string
}

func (s Skip) String() string {
	return fmt.Sprintf("%s: %s", s.Ref, s.Reason)
}

// Result is what one reconciliation did, or would do in a plan.
type Result struct {
	// Applied holds the actions taken, in order. No-ops never appear here.
	Applied []provisioning.Action
	Skipped []Skip
	Errors  []provisioning.ResourceError
	// Warnings are non-fatal findings such as drift or protected divergence.
	Warnings []string
	// Outputs are the observed outputs per resource key.
	Outputs map[string]map[string]string
}

// Err joins the resource errors, or returns nil.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Output returns one output of the resource with the given key.
func (r *Result) Output(key, name string) string {
	return r.Outputs[key][name]
}

// HasDestructive reports whether the result destroys anything, or updates a
// resource of one of the given types.
func (r *Result) HasDestructive(updateTypes ...string) bool {
	for _, a := range r.Applied {
		if a.Type == provisioning.ActionDestroy {
			return true
		}
		if a.Type == provisioning.ActionUpdate {
			for _, t := range updateTypes {
				if a.Ref.Type == t {
					return true
				}
			}
		}
	}
	return false
}

func (r *Result) skip(ref provisioning.Ref, format string, args ...interface{}) {
	r.Skipped = append(r.Skipped, Skip{Ref: ref, Reason: fmt.Sprintf(format, args...)})
}

func (r *Result) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Reconciler applies desired sets through a Locator.
type Reconciler struct {
	locator  *locate.Locator
	store    provisioning.StateStore
	observer provisioning.Observer
	phase    string
	retry    []retry.Option
	prune    bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithObserver sets the observer that receives resource events.
func WithObserver(o provisioning.Observer) Option {
	return func(r *Reconciler) {
		r.observer = o
	}
}

// WithPhase sets the phase name attached to events.
func WithPhase(name string) Option {
	return func(r *Reconciler) {
		r.phase = name
	}
}

// WithLookupRetry sets how often a retryable lookup failure is retried.
func WithLookupRetry(attempts int, initialDelay time.Duration) Option {
	return func(r *Reconciler) {
		r.retry = []retry.Option{
			retry.WithMaxRetries(attempts),
			retry.WithInitialDelay(initialDelay),
		}
	}
}

// WithoutPrune disables destroying stale records of the group.
func WithoutPrune() Option {
	return func(r *Reconciler) {
		r.prune = false
	}
}

// New creates a Reconciler.
func New(locator *locate.Locator, store provisioning.StateStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		locator:  locator,
		store:    store,
		observer: provisioning.NewLogObserver(logr.Discard()),
		prune:    true,
		retry: []retry.Option{
			retry.WithMaxRetries(4),
			retry.WithInitialDelay(time.Second),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile converges desired, recording every resource under group. A
// returned error is a configuration problem found before any action, a
// cancelled context, or a fatal protection violation. Per-resource failures
// are in Result.Errors.
func (r *Reconciler) Reconcile(ctx context.Context, group string, desired []provisioning.ManagedResource) (*Result, error) {
	return r.run(ctx, group, desired, false)
}

// Plan makes the same decisions as Reconcile without mutating anything.
func (r *Reconciler) Plan(ctx context.Context, group string, desired []provisioning.ManagedResource) (*Result, error) {
	return r.run(ctx, group, desired, true)
}

func (r *Reconciler) run(ctx context.Context, group string, desired []provisioning.ManagedResource, dryRun bool) (*Result, error) {
	ordered, external, err := Order(desired)
	if err != nil {
		return nil, err
	}

	res := &Result{Outputs: map[string]map[string]string{}}
	blocked := map[string]string{} // key -> failed dependency
	var failed string

	for i, m := range ordered {
		key := m.Key()

		if err := ctx.Err(); err != nil {
			for _, rest := range ordered[i:] {
				res.skip(rest.Ref, "not applied: %v", err)
			}
			return res, err
		}

		if failed != "" {
			if dep := blockingDependency(m, blocked); dep != "" {
				blocked[key] = dep
				res.Errors = append(res.Errors, provisioning.ResourceError{
					Ref: m.Ref,
					Err: &provisioning.DependencyUnresolvedError{Ref: m.Ref, Dependency: dep},
				})
			} else {
				res.skip(m.Ref, "not applied: run halted after %s failed", failed)
			}
			continue
		}

		if !dryRun {
			if dep, err := r.checkExternal(ctx, external[key]); err != nil || dep != "" {
				if err == nil {
					err = &provisioning.DependencyUnresolvedError{Ref: m.Ref, Dependency: dep}
				}
				r.fail(res, m.Ref, err)
				failed, blocked[key] = key, key
				continue
			}
		}

		if err := r.apply(ctx, group, m, dryRun, res); err != nil {
			r.fail(res, m.Ref, err)
			failed, blocked[key] = key, key
		}
	}

	if failed != "" || group == "" || !r.prune {
		return res, nil
	}
	return res, r.pruneGroup(ctx, group, desired, dryRun, res)
}

// blockingDependency returns the failed resource m transitively waits on.
func blockingDependency(m provisioning.ManagedResource, blocked map[string]string) string {
	for _, dep := range m.DependsOn {
		if failedDep, ok := blocked[dep]; ok {
			return failedDep
		}
	}
	return ""
}

// checkExternal verifies that dependencies outside the desired set are
// recorded in state. It returns the first missing key.
func (r *Reconciler) checkExternal(ctx context.Context, deps []string) (string, error) {
	for _, dep := range deps {
		rec, err := r.store.GetResource(ctx, dep)
		if err != nil {
			return "", fmt.Errorf("failed to read dependency %s: %w", dep, err)
		}
		if rec == nil {
			return dep, nil
		}
	}
	return "", nil
}

func (r *Reconciler) fail(res *Result, ref provisioning.Ref, err error) {
	res.Errors = append(res.Errors, provisioning.ResourceError{Ref: ref, Err: err})
	r.observer.Event(provisioning.Event{
		Type:     provisioning.EventResourceFailed,
		Phase:    r.phase,
		Resource: ref.Name,
		Message:  fmt.Sprintf("%s failed: %v", ref.Type, err),
		Fields:   map[string]string{provisioning.FieldType: ref.Type},
	})
}

func (r *Reconciler) locate(ctx context.Context, ref provisioning.Ref) (*locate.Result, error) {
	var loc *locate.Result
	opts := append([]retry.Option{retry.WithRetryIf(provisioning.IsRetryable)}, r.retry...)
	err := retry.WithExponentialBackoff(ctx, func() error {
		var err error
		loc, err = r.locator.Locate(ctx, ref)
		return err
	}, opts...)
	return loc, err
}

func (r *Reconciler) apply(ctx context.Context, group string, m provisioning.ManagedResource, dryRun bool, res *Result) error {
	loc, err := r.locate(ctx, m.Ref)
	if err != nil {
		return err
	}
	driver, err := r.locator.Driver(m.Type)
	if err != nil {
		return err
	}

	switch loc.Presence {
	case provisioning.Absent:
		if loc.Drift {
			res.warn("%s is recorded in state but no longer exists; recreating", m.Ref)
		}
		if dryRun {
			res.Applied = append(res.Applied, provisioning.Action{Type: provisioning.ActionCreate, Ref: m.Ref})
			return nil
		}
		provisioning.LogResourceStep(r.observer, r.phase, provisioning.EventResourceCreating, m.Ref)
		obs, err := driver.Create(ctx, m)
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}
		return r.applied(ctx, group, m, m.Descriptor, obs, provisioning.ActionCreate, "", res)

	case provisioning.PresentExternal:
		if dryRun {
			res.Applied = append(res.Applied, provisioning.Action{Type: provisioning.ActionAdopt, Ref: m.Ref, Identity: loc.Identity})
		} else if err := r.applied(ctx, group, m, loc.Observation.Descriptor, loc.Observation, provisioning.ActionAdopt, "", res); err != nil {
			return err
		}
		return r.converge(ctx, group, m, driver, loc.Observation.Descriptor, loc.Observation, true, dryRun, res)

	default:
		return r.converge(ctx, group, m, driver, loc.Record.Resource.Descriptor, loc.Observation, false, dryRun, res)
	}
}

// converge updates m when its desired descriptor diverges from recorded.
func (r *Reconciler) converge(ctx context.Context, group string, m provisioning.ManagedResource, driver provisioning.Driver,
	recorded map[string]string, current *provisioning.Observation, adopted, dryRun bool, res *Result) error {
	diff := m.Diverges(recorded)
	if len(diff) == 0 {
		res.Outputs[m.Key()] = current.Outputs
		if adopted {
			return nil
		}
		res.skip(m.Ref, "up to date")
		provisioning.LogResourceExists(r.observer, r.phase, m.Ref, current.Identity)
		if dryRun {
			return nil
		}
		return r.refresh(ctx, group, m, recorded, current)
	}

	reason := "changed: " + strings.Join(diff, ", ")
	if m.Protected() {
		res.Outputs[m.Key()] = current.Outputs
		res.skip(m.Ref, "persistent-protected, not updated (%s)", reason)
		res.warn("%s differs from the desired state (%s) but is persistent-protected; left untouched", m.Ref, reason)
		provisioning.LogResourceProtected(r.observer, r.phase, m.Ref, "not updated ("+reason+")")
		return nil
	}

	if dryRun {
		res.Applied = append(res.Applied, provisioning.Action{Type: provisioning.ActionUpdate, Ref: m.Ref, Identity: current.Identity, Reason: reason})
		return nil
	}
	provisioning.LogResourceStep(r.observer, r.phase, provisioning.EventResourceUpdating, m.Ref)
	obs, err := driver.Update(ctx, m, current)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return r.applied(ctx, group, m, m.Descriptor, obs, provisioning.ActionUpdate, reason, res)
}

// applied records a successful mutation in state and in the result.
func (r *Reconciler) applied(ctx context.Context, group string, m provisioning.ManagedResource, descriptor map[string]string,
	obs *provisioning.Observation, t provisioning.ActionType, reason string, res *Result) error {
	if err := r.record(ctx, group, m, descriptor, obs); err != nil {
		return err
	}
	action := provisioning.Action{Type: t, Ref: m.Ref, Reason: reason}
	if obs != nil {
		action.Identity = obs.Identity
		res.Outputs[m.Key()] = obs.Outputs
	}
	res.Applied = append(res.Applied, action)
	provisioning.LogAction(r.observer, r.phase, action)
	return nil
}

// refresh rewrites a record whose outputs, identity or dependencies moved
// without a descriptor change. It is not an action.
func (r *Reconciler) refresh(ctx context.Context, group string, m provisioning.ManagedResource, recorded map[string]string, obs *provisioning.Observation) error {
	rec, err := r.store.GetResource(ctx, m.Key())
	if err != nil || rec == nil {
		return err
	}
	if rec.Group == group && rec.Resource.Identity == obs.Identity &&
		maps.Equal(rec.Outputs, obs.Outputs) && slices.Equal(rec.Resource.DependsOn, m.DependsOn) {
		return nil
	}
	return r.record(ctx, group, m, recorded, obs)
}

func (r *Reconciler) record(ctx context.Context, group string, m provisioning.ManagedResource, descriptor map[string]string, obs *provisioning.Observation) error {
	stored := m
	stored.Data = nil
	stored.Descriptor = maps.Clone(descriptor)
	rec := provisioning.ResourceRecord{Resource: stored, Group: group}
	if obs != nil {
		if obs.Identity != "" {
			rec.Resource.Identity = obs.Identity
		}
		rec.Outputs = obs.Outputs
	}
	if err := r.store.PutResource(ctx, rec); err != nil {
		return fmt.Errorf("failed to record state: %w", err)
	}
	return nil
}
