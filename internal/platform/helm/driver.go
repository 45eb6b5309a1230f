package helm

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// TypeRelease is the resource type of chart releases.
const TypeRelease = "helm-release"

// Descriptor keys.
const (
	DescChart        = "chart"
	DescVersion      = "version"
	DescValuesSHA256 = "values_sha256"
)

// Outputs.
const (
	OutputStatus   = "status"
	OutputRevision = "revision"
)

// Release returns the desired release of spec in cluster. The spec itself,
// values included, is passed to the driver through DriverSpecs.
func Release(cluster string, spec ReleaseSpec) (provisioning.ManagedResource, error) {
	hash, err := spec.Values.Hash()
	if err != nil {
		return provisioning.ManagedResource{}, fmt.Errorf("release %s: %w", spec.Name, err)
	}
	desc := map[string]string{
		DescChart:        chartName(spec),
		DescValuesSHA256: hash,
	}
	if spec.Version != "" {
		desc[DescVersion] = spec.Version
	}
	return provisioning.ManagedResource{
		Ref: provisioning.Ref{
			Kind:  provisioning.KindCluster,
			Type:  TypeRelease,
			Name:  spec.Name,
			Scope: provisioning.Scope{Cluster: cluster, Namespace: spec.Namespace},
		},
		Descriptor: desc,
		Policy:     provisioning.PolicyEphemeral,
	}, nil
}

func chartName(spec ReleaseSpec) string {
	if spec.Chart != "" {
		return spec.Chart
	}
	return filepath.Base(spec.ChartPath)
}

// ReleaserFactory returns the Releaser for a namespace.
type ReleaserFactory func(namespace string) (Releaser, error)

// ReleaseDriver manages chart releases. Releases are keyed by
// namespace/name; the driver must be given the full spec of every release it
// creates or updates.
type ReleaseDriver struct {
	factory ReleaserFactory

	mu        sync.Mutex
	releasers map[string]Releaser
	specs     map[string]ReleaseSpec
}

// NewReleaseDriver returns a driver that obtains Releasers from factory.
func NewReleaseDriver(factory ReleaserFactory) *ReleaseDriver {
	return &ReleaseDriver{
		factory:   factory,
		releasers: map[string]Releaser{},
		specs:     map[string]ReleaseSpec{},
	}
}

// Desire registers spec and returns its desired resource.
func (d *ReleaseDriver) Desire(cluster string, spec ReleaseSpec) (provisioning.ManagedResource, error) {
	r, err := Release(cluster, spec)
	if err != nil {
		return r, err
	}
	d.mu.Lock()
	d.specs[specKey(spec.Namespace, spec.Name)] = spec
	d.mu.Unlock()
	return r, nil
}

func specKey(namespace, name string) string {
	return namespace + "/" + name
}

func (d *ReleaseDriver) releaser(namespace string) (Releaser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.releasers[namespace]; ok {
		return r, nil
	}
	r, err := d.factory(namespace)
	if err != nil {
		return nil, err
	}
	d.releasers[namespace] = r
	return r, nil
}

// Lookup implements provisioning.Driver. A release that exists only as a
// failed or uninstalled record still counts as present.
func (d *ReleaseDriver) Lookup(_ context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	rel, err := d.releaser(ref.Scope.Namespace)
	if err != nil {
		return nil, err
	}
	info, err := rel.Status(ref.Name)
	if err != nil || info == nil {
		return nil, err
	}
	return releaseObservation(info)
}

// Create implements provisioning.Driver.
func (d *ReleaseDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	d.mu.Lock()
	spec, ok := d.specs[specKey(r.Scope.Namespace, r.Name)]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("release %s/%s has no spec; build it with Desire", r.Scope.Namespace, r.Name)
	}

	rel, err := d.releaser(r.Scope.Namespace)
	if err != nil {
		return nil, err
	}
	info, err := rel.InstallOrUpgrade(ctx, spec)
	if err != nil {
		return nil, err
	}
	return releaseObservation(info)
}

// Update implements provisioning.Driver.
func (d *ReleaseDriver) Update(ctx context.Context, r provisioning.ManagedResource, _ *provisioning.Observation) (*provisioning.Observation, error) {
	return d.Create(ctx, r)
}

// Delete implements provisioning.Driver.
func (d *ReleaseDriver) Delete(_ context.Context, r provisioning.ManagedResource) error {
	rel, err := d.releaser(r.Scope.Namespace)
	if err != nil {
		return err
	}
	return rel.Uninstall(r.Name)
}

func releaseObservation(info *ReleaseInfo) (*provisioning.Observation, error) {
	hash, err := info.Values.Hash()
	if err != nil {
		return nil, err
	}
	return &provisioning.Observation{
		Identity: fmt.Sprintf("namespaces/%s/releases/%s", info.Namespace, info.Name),
		Descriptor: map[string]string{
			DescChart:        info.Chart,
			DescVersion:      info.ChartVersion,
			DescValuesSHA256: hash,
		},
		Outputs: map[string]string{
			OutputStatus:   info.Status,
			OutputRevision: strconv.Itoa(info.Revision),
		},
	}, nil
}
