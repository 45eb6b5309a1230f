package gcp

import (
	"context"
	"fmt"

	container "google.golang.org/api/container/v1"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// Cluster descriptor keys.
const (
	DescReleaseChannel = "release_channel"
	DescNetwork        = "network"
)

// Cluster outputs consumed by the cluster-access phase.
const (
	OutputEndpoint      = "endpoint"
	OutputCACertificate = "ca_certificate"
)

// defaultPool is the node pool GKE creates with every cluster. It is removed
// right after creation; the managed node pool replaces it.
const defaultPool = "default-pool"

// ClusterDriver manages GKE clusters. The ref's Scope.Location is a region or zone.
type ClusterDriver struct {
	Classifier
	api    ContainerAPI
	labels map[string]string
}

// NewClusterDriver returns a driver that labels created clusters with labels.
func NewClusterDriver(api ContainerAPI, labels map[string]string) *ClusterDriver {
	return &ClusterDriver{api: api, labels: labels}
}

// Cluster returns the desired GKE cluster.
func Cluster(project, location, name, releaseChannel string) provisioning.ManagedResource {
	return provisioning.ManagedResource{
		Ref: provisioning.Ref{
			Kind:  provisioning.KindCloud,
			Type:  TypeCluster,
			Name:  name,
			Scope: provisioning.Scope{Project: project, Location: location},
		},
		Descriptor: map[string]string{
			DescReleaseChannel: releaseChannel,
			DescNetwork:        "default",
		},
		Policy: provisioning.PolicyEphemeral,
	}
}

// ClusterName returns the fully qualified name of the cluster ref points at.
func ClusterName(ref provisioning.Ref) string {
	return fmt.Sprintf("%s/clusters/%s", parent(ref.Scope), ref.Name)
}

func parent(s provisioning.Scope) string {
	return fmt.Sprintf("projects/%s/locations/%s", s.Project, s.Location)
}

// Lookup implements provisioning.Driver.
func (d *ClusterDriver) Lookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	c, err := d.api.GetCluster(ctx, ClusterName(ref))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cluster %s: %w", ref.Name, err)
	}
	return clusterObservation(ref, c), nil
}

// Create implements provisioning.Driver.
func (d *ClusterDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	c := &container.Cluster{
		Name:             r.Name,
		InitialNodeCount: 1,
		Network:          r.Descriptor[DescNetwork],
		ResourceLabels:   d.labels,
	}
	if ch := r.Descriptor[DescReleaseChannel]; ch != "" {
		c.ReleaseChannel = &container.ReleaseChannel{Channel: ch}
	}

	if err := d.api.CreateCluster(ctx, parent(r.Scope), c); err != nil {
		return nil, fmt.Errorf("failed to create cluster %s: %w", r.Name, err)
	}

	pool := fmt.Sprintf("%s/nodePools/%s", ClusterName(r.Ref), defaultPool)
	if err := d.api.DeleteNodePool(ctx, pool); err != nil && !IsNotFound(err) {
		return nil, fmt.Errorf("failed to remove default node pool of %s: %w", r.Name, err)
	}

	return d.mustLookup(ctx, r.Ref)
}

// Update implements provisioning.Driver. The release channel is the only
// property changed in place.
func (d *ClusterDriver) Update(ctx context.Context, r provisioning.ManagedResource, current *provisioning.Observation) (*provisioning.Observation, error) {
	var recorded map[string]string
	if current != nil {
		recorded = current.Descriptor
	}
	for _, key := range r.Diverges(recorded) {
		switch key {
		case DescReleaseChannel:
			update := &container.ClusterUpdate{
				DesiredReleaseChannel: &container.ReleaseChannel{Channel: r.Descriptor[DescReleaseChannel]},
			}
			if err := d.api.UpdateCluster(ctx, ClusterName(r.Ref), update); err != nil {
				return nil, fmt.Errorf("failed to update release channel of %s: %w", r.Name, err)
			}
		default:
			return nil, fmt.Errorf("cluster %s cannot change %s in place", r.Name, key)
		}
	}
	return d.mustLookup(ctx, r.Ref)
}

// Delete implements provisioning.Driver.
func (d *ClusterDriver) Delete(ctx context.Context, r provisioning.ManagedResource) error {
	if err := d.api.DeleteCluster(ctx, ClusterName(r.Ref)); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete cluster %s: %w", r.Name, err)
	}
	return nil
}

func (d *ClusterDriver) mustLookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	obs, err := d.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, fmt.Errorf("cluster %s not found after change", ref.Name)
	}
	return obs, nil
}

func clusterObservation(ref provisioning.Ref, c *container.Cluster) *provisioning.Observation {
	desc := map[string]string{DescNetwork: c.Network}
	if c.ReleaseChannel != nil {
		desc[DescReleaseChannel] = c.ReleaseChannel.Channel
	}
	outputs := map[string]string{OutputEndpoint: c.Endpoint}
	if c.MasterAuth != nil {
		outputs[OutputCACertificate] = c.MasterAuth.ClusterCaCertificate
	}
	identity := c.SelfLink
	if identity == "" {
		identity = ClusterName(ref)
	}
	return &provisioning.Observation{Identity: identity, Descriptor: desc, Outputs: outputs}
}
