package gcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"github.com/go-logr/logr"
	container "google.golang.org/api/container/v1"
	"google.golang.org/api/option"
	serviceusage "google.golang.org/api/serviceusage/v1"

	"github.com/imamik/webui-gke/internal/config"
)

// Clients lazily creates and caches Google Cloud API clients so a run
// authenticates once per API.
type Clients struct {
	mu       sync.Mutex
	opts     []option.ClientOption
	timeouts *config.Timeouts

	addresses *compute.AddressesClient
	container *container.Service
	services  *serviceusage.Service
	secrets   *secretmanager.Client
}

// NewClients returns a client pool for cfg. A credentials file in cfg takes
// precedence over Application Default Credentials.
func NewClients(cfg *config.Config, timeouts *config.Timeouts, opts ...option.ClientOption) *Clients {
	if cfg.CredentialsFile != "" {
		opts = append([]option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}, opts...)
	}
	if timeouts == nil {
		timeouts = config.LoadTimeouts()
	}
	return &Clients{opts: opts, timeouts: timeouts}
}

// Options returns the client options every API client is built with.
func (c *Clients) Options() []option.ClientOption {
	return append([]option.ClientOption(nil), c.opts...)
}

// Addresses returns the regional addresses API.
func (c *Clients) Addresses(ctx context.Context) (AddressAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.addresses == nil {
		client, err := compute.NewAddressesRESTClient(ctx, c.opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create addresses client: %w", err)
		}
		logr.FromContextOrDiscard(ctx).V(1).Info("created addresses client")
		c.addresses = client
	}
	return addressClient{c: c.addresses}, nil
}

// Container returns the GKE API.
func (c *Clients) Container(ctx context.Context) (ContainerAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.container == nil {
		svc, err := container.NewService(ctx, c.opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create container client: %w", err)
		}
		logr.FromContextOrDiscard(ctx).V(1).Info("created container client")
		c.container = svc
	}
	return containerClient{svc: c.container, timeouts: c.timeouts}, nil
}

// Services returns the Service Usage API.
func (c *Clients) Services(ctx context.Context) (ServiceAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.services == nil {
		svc, err := serviceusage.NewService(ctx, c.opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create service usage client: %w", err)
		}
		logr.FromContextOrDiscard(ctx).V(1).Info("created service usage client")
		c.services = svc
	}
	return serviceClient{svc: c.services, timeout: c.timeouts.Operation}, nil
}

// Secrets returns the Secret Manager accessor.
func (c *Clients) Secrets(ctx context.Context) (SecretAccessor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.secrets == nil {
		client, err := secretmanager.NewClient(ctx, c.opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create secret manager client: %w", err)
		}
		c.secrets = client
	}
	return secretClient{c: c.secrets}, nil
}

// Close closes all cached clients. Safe to call multiple times.
func (c *Clients) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.addresses != nil {
		_ = c.addresses.Close()
		c.addresses = nil
	}
	if c.secrets != nil {
		_ = c.secrets.Close()
		c.secrets = nil
	}
	c.container = nil
	c.services = nil
}

type addressClient struct {
	c *compute.AddressesClient
}

func (a addressClient) GetAddress(ctx context.Context, project, region, name string) (*computepb.Address, error) {
	return a.c.Get(ctx, &computepb.GetAddressRequest{Project: project, Region: region, Address: name})
}

func (a addressClient) InsertAddress(ctx context.Context, project, region string, addr *computepb.Address) error {
	op, err := a.c.Insert(ctx, &computepb.InsertAddressRequest{Project: project, Region: region, AddressResource: addr})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a addressClient) SetAddressLabels(ctx context.Context, project, region, name, fingerprint string, labels map[string]string) error {
	op, err := a.c.SetLabels(ctx, &computepb.SetLabelsAddressRequest{
		Project:  project,
		Region:   region,
		Resource: name,
		RegionSetLabelsRequestResource: &computepb.RegionSetLabelsRequest{
			LabelFingerprint: &fingerprint,
			Labels:           labels,
		},
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a addressClient) DeleteAddress(ctx context.Context, project, region, name string) error {
	op, err := a.c.Delete(ctx, &computepb.DeleteAddressRequest{Project: project, Region: region, Address: name})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

type containerClient struct {
	svc      *container.Service
	timeouts *config.Timeouts
}

func (c containerClient) getOperation(ctx context.Context, name string) (*container.Operation, error) {
	return c.svc.Projects.Locations.Operations.Get(name).Context(ctx).Do()
}

func (c containerClient) wait(ctx context.Context, resource string, op *container.Operation, err error, timeout time.Duration) error {
	if err != nil {
		return err
	}
	if op == nil {
		return nil
	}
	return waitContainerOperation(ctx, c.getOperation, operationName(resource, op.Name), timeout)
}

func (c containerClient) GetCluster(ctx context.Context, name string) (*container.Cluster, error) {
	return c.svc.Projects.Locations.Clusters.Get(name).Context(ctx).Do()
}

func (c containerClient) CreateCluster(ctx context.Context, parent string, cluster *container.Cluster) error {
	op, err := c.svc.Projects.Locations.Clusters.Create(parent, &container.CreateClusterRequest{Cluster: cluster}).Context(ctx).Do()
	return c.wait(ctx, parent, op, err, c.timeouts.Cluster)
}

func (c containerClient) UpdateCluster(ctx context.Context, name string, update *container.ClusterUpdate) error {
	op, err := c.svc.Projects.Locations.Clusters.Update(name, &container.UpdateClusterRequest{Update: update}).Context(ctx).Do()
	return c.wait(ctx, name, op, err, c.timeouts.Cluster)
}

func (c containerClient) DeleteCluster(ctx context.Context, name string) error {
	op, err := c.svc.Projects.Locations.Clusters.Delete(name).Context(ctx).Do()
	return c.wait(ctx, name, op, err, c.timeouts.Cluster)
}

func (c containerClient) GetNodePool(ctx context.Context, name string) (*container.NodePool, error) {
	return c.svc.Projects.Locations.Clusters.NodePools.Get(name).Context(ctx).Do()
}

func (c containerClient) CreateNodePool(ctx context.Context, parent string, pool *container.NodePool) error {
	op, err := c.svc.Projects.Locations.Clusters.NodePools.Create(parent, &container.CreateNodePoolRequest{NodePool: pool}).Context(ctx).Do()
	return c.wait(ctx, parent, op, err, c.timeouts.NodePool)
}

func (c containerClient) SetNodePoolSize(ctx context.Context, name string, count int64) error {
	op, err := c.svc.Projects.Locations.Clusters.NodePools.SetSize(name, &container.SetNodePoolSizeRequest{NodeCount: count}).Context(ctx).Do()
	return c.wait(ctx, name, op, err, c.timeouts.NodePool)
}

func (c containerClient) SetNodePoolAutoscaling(ctx context.Context, name string, autoscaling *container.NodePoolAutoscaling) error {
	req := &container.SetNodePoolAutoscalingRequest{Autoscaling: autoscaling}
	op, err := c.svc.Projects.Locations.Clusters.NodePools.SetAutoscaling(name, req).Context(ctx).Do()
	return c.wait(ctx, name, op, err, c.timeouts.NodePool)
}

func (c containerClient) DeleteNodePool(ctx context.Context, name string) error {
	op, err := c.svc.Projects.Locations.Clusters.NodePools.Delete(name).Context(ctx).Do()
	return c.wait(ctx, name, op, err, c.timeouts.NodePool)
}

type serviceClient struct {
	svc     *serviceusage.Service
	timeout time.Duration
}

func (s serviceClient) GetService(ctx context.Context, name string) (*serviceusage.GoogleApiServiceusageV1Service, error) {
	return s.svc.Services.Get(name).Context(ctx).Do()
}

func (s serviceClient) EnableService(ctx context.Context, name string) error {
	op, err := s.svc.Services.Enable(name, &serviceusage.EnableServiceRequest{}).Context(ctx).Do()
	if err != nil {
		return err
	}
	return waitServiceOperation(ctx, func(ctx context.Context, name string) (*serviceusage.Operation, error) {
		return s.svc.Operations.Get(name).Context(ctx).Do()
	}, op, s.timeout)
}
