package infrastructure

import (
	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/util/naming"
)

// Group owns the cloud resources in the state store.
const Group = "infrastructure"

// Set is the desired cloud resources of one deployment.
type Set struct {
	Services []provisioning.ManagedResource
	StaticIP provisioning.ManagedResource
	Cluster  provisioning.ManagedResource
	NodePool provisioning.ManagedResource
	Bucket   provisioning.ManagedResource
}

// Desired builds the cloud resources cfg describes. Everything waits for the
// project services; the node pool also waits for its cluster.
func Desired(cfg *config.Config) Set {
	var s Set
	var services []string
	for _, name := range cfg.Services.Enable {
		svc := gcp.ProjectService(cfg.ProjectID, name)
		s.Services = append(s.Services, svc)
		services = append(services, svc.Key())
	}

	s.StaticIP = gcp.StaticAddress(cfg.ProjectID, cfg.Region, cfg.Network.StaticIPName)
	s.StaticIP.DependsOn = services

	s.Cluster = gcp.Cluster(cfg.ProjectID, cfg.Location(), cfg.ClusterName, cfg.Cluster.ReleaseChannel)
	s.Cluster.DependsOn = services

	s.NodePool = gcp.NodePool(cfg.ProjectID, cfg.Location(), cfg.ClusterName, cfg.Cluster.NodePool, gcp.NodePoolSpec{
		MachineType: cfg.Cluster.MachineType,
		DiskSizeGB:  cfg.Cluster.DiskSizeGB,
		Spot:        cfg.Cluster.Spot,
		NodeCount:   cfg.Cluster.NodeCount,
		MinNodes:    cfg.Cluster.MinNodes,
		MaxNodes:    cfg.Cluster.MaxNodes,
	})
	s.NodePool.DependsOn = []string{s.Cluster.Key()}

	s.Bucket = objectstore.Bucket(cfg.ProjectID, cfg.BucketName(), objectstore.BucketSpec{
		Location:        cfg.Storage.Location,
		Versioning:      true,
		LifecyclePrefix: naming.SnapshotPrefix,
		RetentionDays:   cfg.Storage.RetentionDays,
	})
	s.Bucket.DependsOn = services
	return s
}

// Resources returns the set in reconciliation input order.
func (s Set) Resources() []provisioning.ManagedResource {
	out := append([]provisioning.ManagedResource(nil), s.Services...)
	return append(out, s.StaticIP, s.Cluster, s.NodePool, s.Bucket)
}

// DestructiveUpdateTypes are the resource types whose in-place update can
// restart the application.
var DestructiveUpdateTypes = []string{gcp.TypeCluster, gcp.TypeNodePool}
