package gcp

import (
	"context"

	"cloud.google.com/go/compute/apiv1/computepb"
	container "google.golang.org/api/container/v1"
	serviceusage "google.golang.org/api/serviceusage/v1"
)

// Resource types handled by this package.
const (
	TypeService  = "project-service"
	TypeStaticIP = "static-ip"
	TypeCluster  = "gke-cluster"
	TypeNodePool = "node-pool"
)

// AddressAPI is the subset of the Compute Engine regional addresses API the
// static address driver uses. Mutating calls return once the operation is done.
type AddressAPI interface {
	GetAddress(ctx context.Context, project, region, name string) (*computepb.Address, error)
	InsertAddress(ctx context.Context, project, region string, addr *computepb.Address) error
	SetAddressLabels(ctx context.Context, project, region, name, fingerprint string, labels map[string]string) error
	DeleteAddress(ctx context.Context, project, region, name string) error
}

// ContainerAPI is the subset of the GKE API used for clusters and node pools.
// Names are fully qualified resource names. Mutating calls return once the
// long-running operation is done.
type ContainerAPI interface {
	GetCluster(ctx context.Context, name string) (*container.Cluster, error)
	CreateCluster(ctx context.Context, parent string, cluster *container.Cluster) error
	UpdateCluster(ctx context.Context, name string, update *container.ClusterUpdate) error
	DeleteCluster(ctx context.Context, name string) error

	GetNodePool(ctx context.Context, name string) (*container.NodePool, error)
	CreateNodePool(ctx context.Context, parent string, pool *container.NodePool) error
	SetNodePoolSize(ctx context.Context, name string, count int64) error
	SetNodePoolAutoscaling(ctx context.Context, name string, autoscaling *container.NodePoolAutoscaling) error
	DeleteNodePool(ctx context.Context, name string) error
}

// ServiceAPI is the subset of the Service Usage API used to enable project services.
type ServiceAPI interface {
	GetService(ctx context.Context, name string) (*serviceusage.GoogleApiServiceusageV1Service, error)
	EnableService(ctx context.Context, name string) error
}
