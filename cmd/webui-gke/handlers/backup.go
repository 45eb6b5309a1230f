package handlers

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/backup"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
)

// runRestore restores through an open connection. It can be replaced in tests.
var runRestore = func(ctx *provisioning.Context, objects objectstore.Store, conn *cluster.Connection, opts backup.RestoreOptions) (*backup.RestoreResult, error) {
	return backup.New(objects, conn.Kube, backup.TargetFromConfig(ctx.Config), ctx.Timeouts).Restore(ctx, opts)
}

// Backup handles the backup command: it snapshots the running database into
// the bucket.
func Backup(ctx context.Context, opts Options) error {
	env, err := setup(ctx, opts, true)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	snapshot := newSnapshotter(env.cloud.Objects)
	phase := provisioning.PhaseFunc{PhaseName: "backup", Fn: func(ctx *provisioning.Context) error {
		conn, err := cluster.Open(ctx, connectCluster)
		if err != nil {
			return err
		}
		snap, err := snapshot(ctx, conn)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		provisioning.LogBackupUploaded(ctx.Observer, ctx.PhaseName(), snap.Key, snap.Size)
		fmt.Fprintf(output, "Saved %s (%d bytes, sha256 %s)\n", snap.Key, snap.Size, snap.SHA256)
		return nil
	}}

	return provisioning.NewPipeline(
		cluster.NewAccessPhase(env.cloud.Drivers[gcp.TypeCluster], env.cloud.Tokens),
		phase,
	).Run(env.newContext(ctx))
}

// ListBackups handles the backup list command.
func ListBackups(ctx context.Context, opts Options) error {
	env, err := setup(ctx, opts, false)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	snaps, err := backup.New(env.cloud.Objects, nil, backup.TargetFromConfig(env.cfg), nil).List(ctx)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintf(output, "No snapshots in %s\n", env.cloud.Objects.Bucket())
		return nil
	}

	w := tabwriter.NewWriter(output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTAKEN\tSIZE\tCLASS")
	for _, s := range snaps {
		taken := "-"
		if !s.Timestamp.IsZero() {
			taken = s.Timestamp.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Key, taken, s.Size, s.RetentionClass)
	}
	return w.Flush()
}

// RestoreOptions are the flags of restore.
type RestoreOptions struct {
	Options
	Force bool
}

// Restore handles the restore command. Without Force it only restores into
// an uninitialised volume, like the restore gate of apply.
func Restore(ctx context.Context, opts RestoreOptions) error {
	env, err := setup(ctx, opts.Options, true)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	phase := provisioning.PhaseFunc{PhaseName: "restore", Fn: func(ctx *provisioning.Context) error {
		conn, err := cluster.Open(ctx, connectCluster)
		if err != nil {
			return err
		}
		res, err := runRestore(ctx, env.cloud.Objects, conn, backup.RestoreOptions{
			Force:          opts.Force,
			BlockOnFailure: ctx.Config.Restore.BlockOnFailure,
		})
		if res != nil {
			for _, w := range res.Warnings {
				ctx.Warn(w)
			}
			backup.Report(ctx.Observer, ctx.PhaseName(), res)
			ctx.State.RestoreOutcome = string(res.Outcome)
		}
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		if res.Outcome != backup.OutcomeFailed {
			if err := backup.MarkInitialized(ctx); err != nil {
				return err
			}
		}
		switch {
		case res.Outcome == backup.OutcomeSkipped:
			fmt.Fprintln(output, "Data volume already initialised; use --force to overwrite it")
		case res.Outcome == backup.OutcomeColdStart && errors.Is(res.Err, provisioning.ErrRestoreDataMissing):
			fmt.Fprintln(output, "No snapshot to restore")
		case res.Outcome == backup.OutcomeRestored:
			fmt.Fprintf(output, "Restored %s\n", res.Snapshot.Key)
		}
		return nil
	}}

	pCtx := env.newContext(ctx)
	err = provisioning.NewPipeline(
		cluster.NewAccessPhase(env.cloud.Drivers[gcp.TypeCluster], env.cloud.Tokens),
		phase,
	).Run(pCtx)
	printReport(pCtx.Report, false)
	return err
}
