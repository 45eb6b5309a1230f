package gcp

import (
	"context"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// Drivers returns the drivers of every cloud resource type, keyed by type.
func (c *Clients) Drivers(ctx context.Context, labels map[string]string) (map[string]provisioning.Driver, error) {
	addresses, err := c.Addresses(ctx)
	if err != nil {
		return nil, err
	}
	gke, err := c.Container(ctx)
	if err != nil {
		return nil, err
	}
	services, err := c.Services(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]provisioning.Driver{
		TypeService:  NewServiceDriver(services),
		TypeStaticIP: NewAddressDriver(addresses, labels),
		TypeCluster:  NewClusterDriver(gke, labels),
		TypeNodePool: NewNodePoolDriver(gke, labels),
	}, nil
}
