package reconcile

import (
	"context"
	"fmt"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// DestroyOptions selects what Destroy removes.
type DestroyOptions struct {
	// Group limits the request to one group. Empty means every group.
	Group string
	// Keys names the resources to destroy. Empty means everything in Group,
	// in which case persistent-protected resources are left out.
	Keys []string
	// OverrideProtection allows persistent-protected resources to be destroyed.
	OverrideProtection bool
}

// PlanDestroy returns the destroy actions Destroy would take.
func (r *Reconciler) PlanDestroy(ctx context.Context, opts DestroyOptions) (*Result, error) {
	return r.destroy(ctx, opts, true)
}

// Destroy removes tracked resources in reverse dependency order and drops
// their records. Naming a persistent-protected resource in Keys without
// OverrideProtection is a *ProtectedResourceViolation and nothing is destroyed.
func (r *Reconciler) Destroy(ctx context.Context, opts DestroyOptions) (*Result, error) {
	return r.destroy(ctx, opts, false)
}

func (r *Reconciler) destroy(ctx context.Context, opts DestroyOptions, dryRun bool) (*Result, error) {
	records, err := r.store.ListResources(ctx, opts.Group)
	if err != nil {
		return nil, err
	}
	res := &Result{Outputs: map[string]map[string]string{}}

	var selected []provisioning.ResourceRecord
	if len(opts.Keys) > 0 {
		byKey := make(map[string]provisioning.ResourceRecord, len(records))
		for _, rec := range records {
			byKey[rec.Resource.Key()] = rec
		}
		for _, key := range opts.Keys {
			rec, ok := byKey[key]
			if !ok {
				return nil, fmt.Errorf("%s is not tracked in state", key)
			}
			if rec.Resource.Protected() && !opts.OverrideProtection {
				return nil, &provisioning.ProtectedResourceViolation{Ref: rec.Resource.Ref, Operation: "destroy"}
			}
			selected = append(selected, rec)
		}
	} else {
		for _, rec := range records {
			if rec.Resource.Protected() && !opts.OverrideProtection {
				res.skip(rec.Resource.Ref, "persistent-protected, kept")
				provisioning.LogResourceProtected(r.observer, r.phase, rec.Resource.Ref, "kept")
				continue
			}
			selected = append(selected, rec)
		}
	}

	return res, r.destroyRecords(ctx, selected, "requested", opts.OverrideProtection, dryRun, res)
}

// pruneGroup destroys records of group that are no longer desired.
// Persistent-protected records are kept and reported.
func (r *Reconciler) pruneGroup(ctx context.Context, group string, desired []provisioning.ManagedResource, dryRun bool, res *Result) error {
	records, err := r.store.ListResources(ctx, group)
	if err != nil {
		return fmt.Errorf("failed to list %s state: %w", group, err)
	}

	wanted := make(map[string]bool, len(desired))
	for _, m := range desired {
		wanted[m.Key()] = true
	}

	var stale []provisioning.ResourceRecord
	for _, rec := range records {
		if wanted[rec.Resource.Key()] {
			continue
		}
		if rec.Resource.Protected() {
			res.skip(rec.Resource.Ref, "persistent-protected, no longer desired but kept")
			provisioning.LogResourceProtected(r.observer, r.phase, rec.Resource.Ref, "no longer desired but kept")
			continue
		}
		stale = append(stale, rec)
	}

	return r.destroyRecords(ctx, stale, "no longer desired", false, dryRun, res)
}

// destroyRecords deletes records dependents-first, halting at the first failure.
func (r *Reconciler) destroyRecords(ctx context.Context, records []provisioning.ResourceRecord, reason string,
	override, dryRun bool, res *Result) error {
	ordered, err := reverseOrder(records)
	if err != nil {
		return err
	}

	var failed string
	for _, rec := range ordered {
		m := rec.Resource
		if failed != "" {
			res.skip(m.Ref, "not destroyed: run halted after %s failed", failed)
			continue
		}
		if err := ctx.Err(); err != nil {
			res.skip(m.Ref, "not destroyed: %v", err)
			failed = m.Key()
			continue
		}

		action := provisioning.Action{Type: provisioning.ActionDestroy, Ref: m.Ref, Identity: m.Identity, Reason: reason}
		if dryRun {
			res.Applied = append(res.Applied, action)
			continue
		}

		if err := r.destroyOne(ctx, m, override); err != nil {
			if provisioning.IsProtectedViolation(err) {
				return err
			}
			r.fail(res, m.Ref, err)
			failed = m.Key()
			continue
		}
		res.Applied = append(res.Applied, action)
		provisioning.LogAction(r.observer, r.phase, action)
	}
	return nil
}

// destroyOne is the only path to Driver.Delete. It re-checks the policy.
func (r *Reconciler) destroyOne(ctx context.Context, m provisioning.ManagedResource, override bool) error {
	if m.Protected() && !override {
		return &provisioning.ProtectedResourceViolation{Ref: m.Ref, Operation: "destroy"}
	}
	driver, err := r.locator.Driver(m.Type)
	if err != nil {
		return err
	}

	provisioning.LogResourceStep(r.observer, r.phase, provisioning.EventResourceDeleting, m.Ref)
	if err := driver.Delete(ctx, m); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if err := r.store.DeleteResource(ctx, m.Key()); err != nil {
		return fmt.Errorf("failed to drop state record: %w", err)
	}
	return nil
}
