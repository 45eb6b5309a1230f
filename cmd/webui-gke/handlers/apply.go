package handlers

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/backup"
	"github.com/imamik/webui-gke/internal/provisioning/certificate"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
	"github.com/imamik/webui-gke/internal/provisioning/infrastructure"
	"github.com/imamik/webui-gke/internal/provisioning/platform"
	"github.com/imamik/webui-gke/internal/provisioning/workload"
	"github.com/imamik/webui-gke/internal/ui/tui"
)

// output is where summaries are written.
var output io.Writer = os.Stdout

// runDashboard runs a pipeline under the Bubble Tea dashboard.
var runDashboard = tui.Run

// ApplyOptions are the flags of apply and plan.
type ApplyOptions struct {
	Options
	DryRun bool
	TUI    bool
}

// Apply handles the apply and plan commands.
//
// It reconciles the cloud resources, the cluster platform, the TLS
// certificate and the application, backing up the database first when the
// plan would replace the cluster and restoring it into a fresh volume last.
// With DryRun the same phases plan instead of mutating anything.
func Apply(ctx context.Context, opts ApplyOptions) error {
	env, err := setup(ctx, opts.Options, !opts.DryRun)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	pipeline := provisioning.NewPipeline(applyPhases(env)...)

	if opts.TUI && isInteractive() {
		title := "apply"
		if opts.DryRun {
			title = "plan"
		}
		var pCtx *provisioning.Context
		err := runDashboard(ctx, func(ctx context.Context, observer provisioning.Observer) error {
			pCtx = env.newContext(ctx, observer)
			pCtx.DryRun = opts.DryRun
			return pipeline.Run(pCtx)
		}, title, env.cfg.ClusterName, env.cfg.Location(), phaseNames(pipeline))
		if pCtx != nil {
			printReport(pCtx.Report, opts.DryRun)
		}
		return err
	}

	pCtx := env.newContext(ctx)
	pCtx.DryRun = opts.DryRun
	err = pipeline.Run(pCtx)
	printReport(pCtx.Report, opts.DryRun)
	if err != nil {
		return err
	}

	if !opts.DryRun {
		fmt.Fprintf(output, "\nOpen WebUI is available at https://%s (ingress %s)\n", env.cfg.TLS.Domain, pCtx.State.StaticIP)
	}
	return nil
}

func applyPhases(env *environment) []provisioning.Phase {
	cloud := env.cloud
	return []provisioning.Phase{
		provisioning.NewValidationPhase(),
		backup.NewPreflightPhase(cloud.Drivers, cloud.Tokens, connectCluster, cloud.Objects),
		infrastructure.NewProvisioner(cloud.Drivers),
		cluster.NewAccessPhase(cloud.Drivers[gcp.TypeCluster], cloud.Tokens),
		platform.NewProvisioner(connectCluster),
		certificate.NewPhase(cloud.Objects, connectCluster),
		workload.NewProvisioner(connectCluster, cloud.Secrets),
		backup.NewRestorePhase(connectCluster, cloud.Objects),
	}
}

func phaseNames(p *provisioning.Pipeline) []string {
	names := make([]string, 0, len(p.Phases))
	for _, phase := range p.Phases {
		names = append(names, phase.Name())
	}
	return names
}

func printReport(report *provisioning.Report, dryRun bool) {
	fmt.Fprint(output, tui.NewRenderer(isInteractive()).Report(report, dryRun))
}
