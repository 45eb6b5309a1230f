// Package locate answers, for one resource reference, whether the resource
// exists in its backing store and whether it is already tracked in state.
package locate

import (
	"context"
	"fmt"
	"sort"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// Result is the three-way answer of a lookup.
type Result struct {
	Presence provisioning.Presence
	Identity string

	// Observation is what the driver saw. Nil when Absent.
	Observation *provisioning.Observation
	// Record is the state record, if any. It may be set even when Absent.
	Record *provisioning.ResourceRecord
	// Drift is set when a state record exists but the backing store no longer
	// has the resource.
	Drift bool
}

// Drivers maps a resource type to the driver that serves it.
type Drivers map[string]provisioning.Driver

// Types returns the registered resource types, sorted.
func (d Drivers) Types() []string {
	types := make([]string, 0, len(d))
	for t := range d {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Locator combines the state store and the drivers. It never mutates either.
type Locator struct {
	store   provisioning.StateStore
	drivers Drivers
}

// New creates a Locator.
func New(store provisioning.StateStore, drivers Drivers) *Locator {
	return &Locator{store: store, drivers: drivers}
}

// Driver returns the driver for a resource type.
func (l *Locator) Driver(typ string) (provisioning.Driver, error) {
	d, ok := l.drivers[typ]
	if !ok {
		return nil, fmt.Errorf("no driver registered for resource type %q", typ)
	}
	return d, nil
}

// Locate reports the presence of ref. A backing store that reports "not
// found" yields Absent, not an error. Failed queries are *LookupError.
func (l *Locator) Locate(ctx context.Context, ref provisioning.Ref) (*Result, error) {
	driver, err := l.Driver(ref.Type)
	if err != nil {
		return nil, &provisioning.LookupError{Ref: ref, Err: err}
	}

	rec, err := l.store.GetResource(ctx, ref.Key())
	if err != nil {
		return nil, &provisioning.LookupError{Ref: ref, Err: fmt.Errorf("state: %w", err)}
	}

	obs, err := driver.Lookup(ctx, ref)
	if err != nil {
		return nil, &provisioning.LookupError{Ref: ref, Err: err, Retryable: retryable(ctx, driver, err)}
	}

	res := &Result{Record: rec, Observation: obs}
	switch {
	case obs == nil:
		res.Presence = provisioning.Absent
		res.Drift = rec != nil
	case rec != nil:
		res.Presence = provisioning.PresentInState
		res.Identity = obs.Identity
	default:
		res.Presence = provisioning.PresentExternal
		res.Identity = obs.Identity
	}
	if res.Identity == "" && rec != nil && obs != nil {
		res.Identity = rec.Resource.Identity
	}
	return res, nil
}

// retryable classifies a lookup failure. Cancellation is never retryable;
// drivers without a classifier have every other failure retried.
func retryable(ctx context.Context, driver provisioning.Driver, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if c, ok := driver.(provisioning.RetryClassifier); ok {
		return c.IsRetryable(err)
	}
	return true
}
