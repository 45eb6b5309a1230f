package backup

import (
	"errors"
	"fmt"

	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
	"github.com/imamik/webui-gke/internal/provisioning/infrastructure"
	"github.com/imamik/webui-gke/internal/provisioning/locate"
	"github.com/imamik/webui-gke/internal/provisioning/reconcile"
)

func kubeCluster(conn *cluster.Connection) Cluster { return conn.Kube }

// PreflightPhase snapshots the database before an apply that would replace
// or reshape the cluster.
type PreflightPhase struct {
	drivers locate.Drivers
	tokens  cluster.TokenSourceFunc
	connect cluster.Connector
	store   objectstore.Store
	cluster func(*cluster.Connection) Cluster
}

// NewPreflightPhase creates the phase. drivers are the infrastructure drivers.
func NewPreflightPhase(drivers locate.Drivers, tokens cluster.TokenSourceFunc, connect cluster.Connector, store objectstore.Store) *PreflightPhase {
	return &PreflightPhase{drivers: drivers, tokens: tokens, connect: connect, store: store, cluster: kubeCluster}
}

// Name implements the provisioning.Phase interface.
func (p *PreflightPhase) Name() string {
	return "preflight-backup"
}

// Provision implements the provisioning.Phase interface. Backup failures are
// warnings; only a failing plan stops the run.
func (p *PreflightPhase) Provision(ctx *provisioning.Context) error {
	set := infrastructure.Desired(ctx.Config)
	plan, err := reconcile.ForPhase(ctx, p.drivers).Plan(ctx, infrastructure.Group, set.Resources())
	if err != nil {
		return fmt.Errorf("failed to plan infrastructure: %w", err)
	}
	if err := plan.Err(); err != nil {
		return fmt.Errorf("failed to plan infrastructure: %w", err)
	}
	if !plan.HasDestructive(infrastructure.DestructiveUpdateTypes...) {
		ctx.RecordSkipped("preflight-backup: no destructive change planned")
		return nil
	}

	creds, err := cluster.Kubeconfig(ctx, ctx.Config, p.drivers[gcp.TypeCluster], p.tokens)
	if errors.Is(err, cluster.ErrClusterNotFound) {
		ctx.RecordSkipped("preflight-backup: no cluster to back up")
		return nil
	}
	if err != nil {
		ctx.Warn(fmt.Errorf("pre-flight backup skipped: %w", err))
		return nil
	}
	if ctx.DryRun {
		ctx.Observer.Printf("[Backup] Destructive change planned, would snapshot the database first")
		return nil
	}

	ctx.Observer.Printf("[Backup] Destructive change planned, snapshotting the database first")
	conn, err := p.connect(ctx, creds.Kubeconfig)
	if err != nil {
		ctx.Warn(fmt.Errorf("pre-flight backup skipped: %w", err))
		return nil
	}
	snap, err := New(p.store, p.cluster(conn), TargetFromConfig(ctx.Config), ctx.Timeouts).Backup(ctx)
	switch {
	case errors.Is(err, ErrNothingToBackup):
		ctx.Warn(err)
	case err != nil:
		ctx.Warn(fmt.Errorf("pre-flight backup failed: %w", err))
	default:
		provisioning.LogBackupUploaded(ctx.Observer, ctx.PhaseName(), snap.Key, snap.Size)
	}
	return nil
}

// RestorePhase restores the latest snapshot into a data volume that has not
// been initialized yet, then scales the application up.
type RestorePhase struct {
	connect cluster.Connector
	store   objectstore.Store
	opts    []Option
	cluster func(*cluster.Connection) Cluster
}

// NewRestorePhase creates the phase.
func NewRestorePhase(connect cluster.Connector, store objectstore.Store, opts ...Option) *RestorePhase {
	return &RestorePhase{connect: connect, store: store, opts: opts, cluster: kubeCluster}
}

// Name implements the provisioning.Phase interface.
func (p *RestorePhase) Name() string {
	return "restore"
}

// Provision implements the provisioning.Phase interface.
func (p *RestorePhase) Provision(ctx *provisioning.Context) error {
	cfg := ctx.Config
	switch {
	case !cfg.Restore.Enabled:
		ctx.RecordSkipped("restore: disabled")
		return nil
	case ctx.DryRun:
		ctx.RecordSkipped("restore: not run in a dry run")
		return nil
	case !ctx.State.RestorePending:
		ctx.RecordSkipped("restore: data volume already initialized")
		return nil
	}

	conn, err := cluster.Open(ctx, p.connect)
	if err != nil {
		return err
	}
	res, err := New(p.store, p.cluster(conn), TargetFromConfig(cfg), ctx.Timeouts, p.opts...).
		Restore(ctx, RestoreOptions{BlockOnFailure: cfg.Restore.BlockOnFailure})
	if res != nil {
		ctx.State.RestoreOutcome = string(res.Outcome)
		for _, w := range res.Warnings {
			ctx.Warn(w)
		}
	}
	if res != nil {
		Report(ctx.Observer, ctx.PhaseName(), res)
	}
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	if res != nil && res.Outcome != OutcomeFailed {
		return MarkInitialized(ctx)
	}
	return nil
}

// MarkInitialized records that the environment's data volume holds a
// database, so later applies install the release at its normal scale.
func MarkInitialized(ctx *provisioning.Context) error {
	t, err := ctx.Store.GetTarget(ctx, ctx.Environment())
	if err != nil {
		return err
	}
	if t == nil || t.DataInitialized {
		return nil
	}
	t.DataInitialized = true
	if err := ctx.Store.PutTarget(ctx, *t); err != nil {
		return fmt.Errorf("failed to record initialized data volume: %w", err)
	}
	ctx.State.RestorePending = false
	return nil
}

// Report emits the outcome of a restore.
func Report(observer provisioning.Observer, phase string, res *RestoreResult) {
	var msg string
	switch res.Outcome {
	case OutcomeRestored:
		msg = fmt.Sprintf("restored %s (%d bytes)", res.Snapshot.Key, res.Snapshot.Size)
	case OutcomeColdStart:
		msg = "no snapshot found, starting with an empty database"
	case OutcomeSkipped:
		msg = "data volume already initialised"
	case OutcomeFailed:
		msg = fmt.Sprintf("restore failed: %v", res.Err)
	default:
		return
	}
	provisioning.LogRestoreCompleted(observer, phase, string(res.Outcome), msg)
}

// Snapshotter backs up the database through an open connection.
type Snapshotter func(ctx *provisioning.Context, conn *cluster.Connection) (*Snapshot, error)

// SnapshotTo returns a Snapshotter that uploads to store.
func SnapshotTo(store objectstore.Store) Snapshotter {
	return func(ctx *provisioning.Context, conn *cluster.Connection) (*Snapshot, error) {
		return New(store, kubeCluster(conn), TargetFromConfig(ctx.Config), ctx.Timeouts).Backup(ctx)
	}
}
