package cluster

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/infrastructure"
)

// ErrClusterNotFound means the cluster does not exist.
var ErrClusterNotFound = errors.New("cluster not found")

// TokenSourceFunc returns credentials for the cluster API server.
type TokenSourceFunc func(ctx context.Context) (oauth2.TokenSource, error)

// Credentials is what it takes to reach the cluster.
type Credentials struct {
	Endpoint   string
	CA         string
	Kubeconfig []byte
}

// Kubeconfig looks up the cluster cfg describes and renders credentials for
// it. A missing cluster is ErrClusterNotFound.
func Kubeconfig(ctx context.Context, cfg *config.Config, driver provisioning.Driver, tokens TokenSourceFunc) (*Credentials, error) {
	ref := infrastructure.Desired(cfg).Cluster.Ref
	obs, err := driver.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, fmt.Errorf("%w: %s", ErrClusterNotFound, cfg.ClusterPath())
	}

	ts, err := tokens(ctx)
	if err != nil {
		return nil, err
	}
	creds := &Credentials{
		Endpoint: obs.Outputs[gcp.OutputEndpoint],
		CA:       obs.Outputs[gcp.OutputCACertificate],
	}
	creds.Kubeconfig, err = gcp.ClusterKubeconfig(ts, cfg.ClusterName, creds.Endpoint, creds.CA)
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// AccessPhase fetches the cluster endpoint and CA and builds the kubeconfig
// later phases use.
type AccessPhase struct {
	driver provisioning.Driver
	tokens TokenSourceFunc
}

// NewAccessPhase creates the phase. driver is the cluster driver.
func NewAccessPhase(driver provisioning.Driver, tokens TokenSourceFunc) *AccessPhase {
	return &AccessPhase{driver: driver, tokens: tokens}
}

// Name implements provisioning.Phase.
func (p *AccessPhase) Name() string {
	return "cluster-access"
}

// Provision implements provisioning.Phase.
func (p *AccessPhase) Provision(ctx *provisioning.Context) error {
	creds, err := Kubeconfig(ctx, ctx.Config, p.driver, p.tokens)
	if err != nil {
		if ctx.DryRun && errors.Is(err, ErrClusterNotFound) {
			ctx.RecordSkipped("cluster-access: cluster does not exist yet")
			return nil
		}
		return fmt.Errorf("failed to get cluster credentials: %w", err)
	}

	ctx.State.ClusterEndpoint = creds.Endpoint
	ctx.State.ClusterCA = creds.CA
	ctx.State.Kubeconfig = creds.Kubeconfig
	ctx.Observer.Printf("[Cluster] Credentials ready for %s (endpoint %s)", ctx.Config.ClusterName, creds.Endpoint)
	return nil
}
