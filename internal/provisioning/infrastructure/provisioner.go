package infrastructure

import (
	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/locate"
	"github.com/imamik/webui-gke/internal/provisioning/reconcile"
)

// Provisioner reconciles the cloud resources.
type Provisioner struct {
	drivers locate.Drivers
}

// NewProvisioner creates a new infrastructure provisioner over the cloud and
// bucket drivers.
func NewProvisioner(drivers locate.Drivers) *Provisioner {
	return &Provisioner{drivers: drivers}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return "infrastructure"
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	set := Desired(ctx.Config)
	ctx.Observer.Printf("[Infrastructure] Reconciling cluster %s in %s", ctx.Config.ClusterName, ctx.Config.Location())

	r := reconcile.ForPhase(ctx, p.drivers)
	res, err := reconcile.Apply(ctx, r, Group, set.Resources())
	if err != nil {
		return err
	}

	ctx.State.StaticIP = res.Output(set.StaticIP.Key(), gcp.OutputAddress)
	ctx.State.ClusterEndpoint = res.Output(set.Cluster.Key(), gcp.OutputEndpoint)
	ctx.State.ClusterCA = res.Output(set.Cluster.Key(), gcp.OutputCACertificate)
	if ctx.State.StaticIP != "" {
		ctx.Observer.Printf("[Infrastructure] Static IP %s reserved as %s", ctx.State.StaticIP, set.StaticIP.Name)
	}
	return nil
}
