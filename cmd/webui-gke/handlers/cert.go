package handlers

import (
	"context"

	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/certificate"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
)

// Cert handles the cert command: it resolves the certificate for the
// configured domain and publishes it to the cluster.
func Cert(ctx context.Context, opts Options) error {
	env, err := setup(ctx, opts, true)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	pCtx := env.newContext(ctx)
	err = provisioning.NewPipeline(
		cluster.NewAccessPhase(env.cloud.Drivers[gcp.TypeCluster], env.cloud.Tokens),
		certificate.NewPhase(env.cloud.Objects, connectCluster),
	).Run(pCtx)
	printReport(pCtx.Report, false)
	return err
}
