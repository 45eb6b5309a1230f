package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/backup"
	"github.com/imamik/webui-gke/internal/provisioning/destroy"
	"github.com/imamik/webui-gke/internal/ui/tui"
)

// ErrAborted is returned when the user declines the confirmation.
var ErrAborted = errors.New("aborted")

var (
	// confirm asks the user before a destructive run.
	confirm = tui.Confirm

	newSnapshotter = backup.SnapshotTo
)

// DestroyOptions are the flags of destroy.
type DestroyOptions struct {
	Options
	DryRun             bool
	Yes                bool
	OverrideProtection bool
	SkipBackup         bool
	Keys               []string
}

// Destroy handles the destroy command.
//
// It backs up the database, then removes the application, the cluster
// platform and the cluster in reverse order of creation. The static IP and
// the backup bucket are kept unless protection is overridden.
func Destroy(ctx context.Context, opts DestroyOptions) error {
	env, err := setup(ctx, opts.Options, !opts.DryRun)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	if !opts.DryRun && !opts.Yes {
		if !isInteractive() {
			return fmt.Errorf("refusing to destroy without --yes on a non-interactive terminal")
		}
		desc := "The cluster, its node pool and every release will be deleted. The static IP and backup bucket are kept."
		if opts.OverrideProtection {
			desc = "Everything will be deleted, including the static IP and the backup bucket with every snapshot."
		}
		ok, err := confirm(ctx, fmt.Sprintf("Destroy %s?", env.cfg.ClusterName), desc)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAborted
		}
	}

	phase := destroy.NewProvisioner(env.cloud.Drivers, env.cloud.Tokens, connectCluster, newSnapshotter(env.cloud.Objects), destroy.Options{
		Keys:               opts.Keys,
		OverrideProtection: opts.OverrideProtection,
		SkipBackup:         opts.SkipBackup,
	})

	pCtx := env.newContext(ctx)
	pCtx.DryRun = opts.DryRun
	err = provisioning.NewPipeline(provisioning.NewValidationPhase(), phase).Run(pCtx)
	printReport(pCtx.Report, opts.DryRun)
	return err
}
