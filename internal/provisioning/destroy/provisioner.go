package destroy

import (
	"errors"
	"fmt"

	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/backup"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
	"github.com/imamik/webui-gke/internal/provisioning/infrastructure"
	"github.com/imamik/webui-gke/internal/provisioning/locate"
	"github.com/imamik/webui-gke/internal/provisioning/platform"
	"github.com/imamik/webui-gke/internal/provisioning/reconcile"
	"github.com/imamik/webui-gke/internal/provisioning/workload"
)

// clusterGroups are destroyed through the cluster API, in this order.
var clusterGroups = []string{workload.Group, platform.Group}

// Options selects what a destroy removes.
type Options struct {
	// Keys limits the destroy to these tracked resources.
	Keys []string
	// OverrideProtection also destroys the static IP and the backup bucket.
	OverrideProtection bool
	// SkipBackup skips the pre-destroy snapshot.
	SkipBackup bool
}

// Provisioner handles deployment destruction.
type Provisioner struct {
	infra    locate.Drivers
	tokens   cluster.TokenSourceFunc
	connect  cluster.Connector
	snapshot backup.Snapshotter
	opts     Options
}

// NewProvisioner creates a new destroy provisioner. infra are the
// infrastructure drivers; snapshot may be nil.
func NewProvisioner(infra locate.Drivers, tokens cluster.TokenSourceFunc, connect cluster.Connector,
	snapshot backup.Snapshotter, opts Options) *Provisioner {
	return &Provisioner{infra: infra, tokens: tokens, connect: connect, snapshot: snapshot, opts: opts}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return "destroy"
}

// Provision destroys the deployment. In a dry run it only plans.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	ctx.Observer.Printf("[Destroy] Starting teardown of %s", ctx.Config.ClusterPath())

	keys, err := p.keysByGroup(ctx)
	if err != nil {
		return err
	}

	conn, err := p.connectIfRunning(ctx)
	if err != nil {
		return err
	}
	if conn != nil {
		p.backup(ctx, conn)
	}

	for _, group := range clusterGroups {
		if _, selected := keys[group]; len(p.opts.Keys) > 0 && !selected {
			continue
		}
		if conn == nil {
			if err := forget(ctx, group, keys[group]); err != nil {
				return err
			}
			continue
		}
		if err := p.destroyGroup(ctx, conn.Drivers(), group, keys[group]); err != nil {
			return err
		}
	}

	if _, selected := keys[infrastructure.Group]; len(p.opts.Keys) == 0 || selected {
		if err := p.destroyGroup(ctx, p.infra, infrastructure.Group, keys[infrastructure.Group]); err != nil {
			return err
		}
	}

	if !ctx.DryRun {
		ctx.Observer.Printf("[Destroy] Teardown of %s finished", ctx.Config.ClusterPath())
	}
	return nil
}

// keysByGroup sorts the requested keys into the groups that track them.
func (p *Provisioner) keysByGroup(ctx *provisioning.Context) (map[string][]string, error) {
	out := map[string][]string{}
	for _, key := range p.opts.Keys {
		rec, err := ctx.Store.GetResource(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("%s is not tracked in state", key)
		}
		out[rec.Group] = append(out[rec.Group], key)
	}
	return out, nil
}

// connectIfRunning returns a connection to the cluster, or nil when the
// cluster does not exist. A cluster that exists but cannot be reached is an
// error: its records must not be dropped.
func (p *Provisioner) connectIfRunning(ctx *provisioning.Context) (*cluster.Connection, error) {
	creds, err := cluster.Kubeconfig(ctx, ctx.Config, p.infra[gcp.TypeCluster], p.tokens)
	if errors.Is(err, cluster.ErrClusterNotFound) {
		ctx.Observer.Printf("[Destroy] Cluster %s does not exist", ctx.Config.ClusterName)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cluster unreachable: %w", err)
	}
	conn, err := p.connect(ctx, creds.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("cluster unreachable: %w", err)
	}
	ctx.State.Kubeconfig = creds.Kubeconfig
	return conn, nil
}

func (p *Provisioner) backup(ctx *provisioning.Context, conn *cluster.Connection) {
	if p.snapshot == nil || p.opts.SkipBackup {
		return
	}
	if ctx.DryRun {
		ctx.Observer.Printf("[Destroy] Would snapshot the database first")
		return
	}
	snap, err := p.snapshot(ctx, conn)
	switch {
	case errors.Is(err, backup.ErrNothingToBackup):
		ctx.Warn(err)
	case err != nil:
		ctx.Warn(fmt.Errorf("pre-destroy backup failed: %w", err))
	default:
		provisioning.LogBackupUploaded(ctx.Observer, ctx.PhaseName(), snap.Key, snap.Size)
	}
}

func (p *Provisioner) destroyGroup(ctx *provisioning.Context, drivers locate.Drivers, group string, keys []string) error {
	r := reconcile.ForPhase(ctx, drivers)
	opts := reconcile.DestroyOptions{Group: group, Keys: keys, OverrideProtection: p.opts.OverrideProtection}

	var (
		res *reconcile.Result
		err error
	)
	if ctx.DryRun {
		res, err = r.PlanDestroy(ctx, opts)
	} else {
		res, err = r.Destroy(ctx, opts)
	}
	if res != nil {
		reconcile.Record(ctx, res)
	}
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("%s: %w", group, err)
	}
	for _, s := range res.Skipped {
		ctx.Observer.Printf("[Destroy] Kept %s", s.Ref.Name)
	}
	return nil
}

// forget drops the records of a group whose cluster is gone; its objects went
// with the cluster.
func forget(ctx *provisioning.Context, group string, keys []string) error {
	records, err := ctx.Store.ListResources(ctx, group)
	if err != nil {
		return err
	}
	wanted := map[string]bool{}
	for _, k := range keys {
		wanted[k] = true
	}
	for _, rec := range records {
		key := rec.Resource.Key()
		if len(keys) > 0 && !wanted[key] {
			continue
		}
		if ctx.DryRun {
			ctx.RecordSkipped(fmt.Sprintf("%s: record dropped, cluster is gone", key))
			continue
		}
		if err := ctx.Store.DeleteResource(ctx, key); err != nil {
			return fmt.Errorf("failed to drop state record %s: %w", key, err)
		}
		ctx.Warnf("dropped record of %s: cluster is gone", key)
	}
	return nil
}
