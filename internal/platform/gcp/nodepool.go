package gcp

import (
	"context"
	"fmt"
	"strconv"

	container "google.golang.org/api/container/v1"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// Node pool descriptor keys.
const (
	DescMachineType = "machine_type"
	DescDiskSizeGB  = "disk_size_gb"
	DescSpot        = "spot"
	DescNodeCount   = "node_count"
	DescMinNodes    = "min_nodes"
	DescMaxNodes    = "max_nodes"
)

// immutablePoolKeys force a node pool to be recreated when they change.
var immutablePoolKeys = map[string]bool{
	DescMachineType: true,
	DescDiskSizeGB:  true,
	DescSpot:        true,
}

// NodePoolSpec is the desired shape of the managed node pool.
type NodePoolSpec struct {
	MachineType string
	DiskSizeGB  int
	Spot        bool
	NodeCount   int
	MinNodes    int
	MaxNodes    int
}

// NodePoolDriver manages GKE node pools. The ref's Scope.Cluster names the cluster.
type NodePoolDriver struct {
	Classifier
	api    ContainerAPI
	labels map[string]string
}

// NewNodePoolDriver returns a driver that labels nodes with labels.
func NewNodePoolDriver(api ContainerAPI, labels map[string]string) *NodePoolDriver {
	return &NodePoolDriver{api: api, labels: labels}
}

// NodePool returns the desired node pool of cluster.
func NodePool(project, location, cluster, name string, spec NodePoolSpec) provisioning.ManagedResource {
	// Without a range to scale in, autoscaling is off and GKE reports no bounds.
	if spec.MaxNodes <= spec.MinNodes {
		spec.MinNodes, spec.MaxNodes = 0, 0
	}
	return provisioning.ManagedResource{
		Ref: provisioning.Ref{
			Kind:  provisioning.KindCloud,
			Type:  TypeNodePool,
			Name:  name,
			Scope: provisioning.Scope{Project: project, Location: location, Cluster: cluster},
		},
		Descriptor: map[string]string{
			DescMachineType: spec.MachineType,
			DescDiskSizeGB:  strconv.Itoa(spec.DiskSizeGB),
			DescSpot:        strconv.FormatBool(spec.Spot),
			DescNodeCount:   strconv.Itoa(spec.NodeCount),
			DescMinNodes:    strconv.Itoa(spec.MinNodes),
			DescMaxNodes:    strconv.Itoa(spec.MaxNodes),
		},
		Policy: provisioning.PolicyEphemeral,
	}
}

// NodePoolName returns the fully qualified name of the node pool ref points at.
func NodePoolName(ref provisioning.Ref) string {
	return fmt.Sprintf("%s/clusters/%s/nodePools/%s", parent(ref.Scope), ref.Scope.Cluster, ref.Name)
}

func clusterOf(ref provisioning.Ref) string {
	return fmt.Sprintf("%s/clusters/%s", parent(ref.Scope), ref.Scope.Cluster)
}

// Lookup implements provisioning.Driver.
func (d *NodePoolDriver) Lookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	np, err := d.api.GetNodePool(ctx, NodePoolName(ref))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get node pool %s: %w", ref.Name, err)
	}
	return poolObservation(ref, np), nil
}

// Create implements provisioning.Driver.
func (d *NodePoolDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	np, err := d.nodePool(r)
	if err != nil {
		return nil, err
	}
	if err := d.api.CreateNodePool(ctx, clusterOf(r.Ref), np); err != nil {
		return nil, fmt.Errorf("failed to create node pool %s: %w", r.Name, err)
	}
	return d.mustLookup(ctx, r.Ref)
}

// Update implements provisioning.Driver. Size and autoscaling bounds change in
// place; machine type, disk size and spot provisioning recreate the pool.
func (d *NodePoolDriver) Update(ctx context.Context, r provisioning.ManagedResource, current *provisioning.Observation) (*provisioning.Observation, error) {
	var recorded map[string]string
	if current != nil {
		recorded = current.Descriptor
	}
	diverging := r.Diverges(recorded)

	for _, key := range diverging {
		if immutablePoolKeys[key] {
			return d.recreate(ctx, r)
		}
	}

	name := NodePoolName(r.Ref)
	var resized, rescaled bool
	for _, key := range diverging {
		switch key {
		case DescNodeCount:
			resized = true
		case DescMinNodes, DescMaxNodes:
			rescaled = true
		}
	}
	if rescaled {
		autoscaling, err := poolAutoscaling(r.Descriptor)
		if err != nil {
			return nil, err
		}
		if err := d.api.SetNodePoolAutoscaling(ctx, name, autoscaling); err != nil {
			return nil, fmt.Errorf("failed to set autoscaling of node pool %s: %w", r.Name, err)
		}
	}
	if resized {
		count, err := strconv.ParseInt(r.Descriptor[DescNodeCount], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid node count %q: %w", r.Descriptor[DescNodeCount], err)
		}
		if err := d.api.SetNodePoolSize(ctx, name, count); err != nil {
			return nil, fmt.Errorf("failed to resize node pool %s: %w", r.Name, err)
		}
	}

	obs, err := d.mustLookup(ctx, r.Ref)
	if err != nil {
		return nil, err
	}
	// GKE reports the initial node count only; the size just set is authoritative.
	obs.Descriptor[DescNodeCount] = r.Descriptor[DescNodeCount]
	return obs, nil
}

// Delete implements provisioning.Driver.
func (d *NodePoolDriver) Delete(ctx context.Context, r provisioning.ManagedResource) error {
	if err := d.api.DeleteNodePool(ctx, NodePoolName(r.Ref)); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete node pool %s: %w", r.Name, err)
	}
	return nil
}

func (d *NodePoolDriver) recreate(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	if err := d.Delete(ctx, r); err != nil {
		return nil, err
	}
	return d.Create(ctx, r)
}

func (d *NodePoolDriver) mustLookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	obs, err := d.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, fmt.Errorf("node pool %s not found after change", ref.Name)
	}
	return obs, nil
}

func (d *NodePoolDriver) nodePool(r provisioning.ManagedResource) (*container.NodePool, error) {
	disk, err := strconv.ParseInt(r.Descriptor[DescDiskSizeGB], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid disk size %q: %w", r.Descriptor[DescDiskSizeGB], err)
	}
	count, err := strconv.ParseInt(r.Descriptor[DescNodeCount], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid node count %q: %w", r.Descriptor[DescNodeCount], err)
	}
	autoscaling, err := poolAutoscaling(r.Descriptor)
	if err != nil {
		return nil, err
	}

	return &container.NodePool{
		Name:             r.Name,
		InitialNodeCount: count,
		Autoscaling:      autoscaling,
		Config: &container.NodeConfig{
			MachineType: r.Descriptor[DescMachineType],
			DiskSizeGb:  disk,
			Spot:        r.Descriptor[DescSpot] == "true",
			Labels:      d.labels,
			OauthScopes: []string{cloudPlatformScope},
		},
		Management: &container.NodeManagement{AutoRepair: true, AutoUpgrade: true},
	}, nil
}

func poolAutoscaling(desc map[string]string) (*container.NodePoolAutoscaling, error) {
	minNodes, err := strconv.ParseInt(desc[DescMinNodes], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid min nodes %q: %w", desc[DescMinNodes], err)
	}
	maxNodes, err := strconv.ParseInt(desc[DescMaxNodes], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid max nodes %q: %w", desc[DescMaxNodes], err)
	}
	if maxNodes <= minNodes {
		return &container.NodePoolAutoscaling{Enabled: false, ForceSendFields: []string{"Enabled"}}, nil
	}
	return &container.NodePoolAutoscaling{Enabled: true, MinNodeCount: minNodes, MaxNodeCount: maxNodes}, nil
}

func poolObservation(ref provisioning.Ref, np *container.NodePool) *provisioning.Observation {
	desc := map[string]string{
		DescNodeCount: strconv.FormatInt(np.InitialNodeCount, 10),
		DescMinNodes:  "0",
		DescMaxNodes:  "0",
	}
	if np.Config != nil {
		desc[DescMachineType] = np.Config.MachineType
		desc[DescDiskSizeGB] = strconv.FormatInt(np.Config.DiskSizeGb, 10)
		desc[DescSpot] = strconv.FormatBool(np.Config.Spot)
	}
	if a := np.Autoscaling; a != nil && a.Enabled {
		desc[DescMinNodes] = strconv.FormatInt(a.MinNodeCount, 10)
		desc[DescMaxNodes] = strconv.FormatInt(a.MaxNodeCount, 10)
	}
	identity := np.SelfLink
	if identity == "" {
		identity = NodePoolName(ref)
	}
	return &provisioning.Observation{Identity: identity, Descriptor: desc}
}
