package platform

import (
	"errors"

	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
	"github.com/imamik/webui-gke/internal/provisioning/reconcile"
)

// Provisioner reconciles the platform resources.
type Provisioner struct {
	connect cluster.Connector
}

// NewProvisioner creates a new platform provisioner.
func NewProvisioner(connect cluster.Connector) *Provisioner {
	return &Provisioner{connect: connect}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return "platform"
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	conn, err := cluster.Open(ctx, p.connect)
	if err != nil || conn == nil {
		return err
	}
	if ctx.State.StaticIP == "" && !ctx.DryRun {
		return errors.New("no static IP: the infrastructure phase has not reserved one")
	}

	desired, err := Desired(ctx.Config, conn.Releases, ctx.State.StaticIP)
	if err != nil {
		return err
	}
	ctx.Observer.Printf("[Platform] Reconciling ingress and TLS tooling (load balancer IP %s)", ctx.State.StaticIP)

	_, err = reconcile.Apply(ctx, reconcile.ForPhase(ctx, conn.Drivers()), Group, desired)
	return err
}
