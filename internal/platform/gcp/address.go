package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/compute/apiv1/computepb"

	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/util/ptr"
)

// Static address descriptor keys.
const (
	DescAddressType = "address_type"
	DescNetworkTier = "network_tier"
)

// OutputAddress is the reserved IP of a static address.
const OutputAddress = "address"

// AddressDriver manages regional static addresses. The ref's Scope.Location
// is the region.
type AddressDriver struct {
	Classifier
	api    AddressAPI
	labels map[string]string
}

// NewAddressDriver returns a driver that labels created addresses with labels.
func NewAddressDriver(api AddressAPI, labels map[string]string) *AddressDriver {
	return &AddressDriver{api: api, labels: labels}
}

// StaticAddress returns the desired regional external address.
func StaticAddress(project, region, name string) provisioning.ManagedResource {
	return provisioning.ManagedResource{
		Ref: provisioning.Ref{
			Kind:  provisioning.KindCloud,
			Type:  TypeStaticIP,
			Name:  name,
			Scope: provisioning.Scope{Project: project, Location: region},
		},
		Descriptor: map[string]string{
			DescAddressType: "EXTERNAL",
			DescNetworkTier: "PREMIUM",
		},
		Policy: provisioning.PolicyProtected,
	}
}

// Lookup implements provisioning.Driver.
func (d *AddressDriver) Lookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	addr, err := d.api.GetAddress(ctx, ref.Scope.Project, ref.Scope.Location, ref.Name)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get address %s: %w", ref.Name, err)
	}
	return addressObservation(ref, addr), nil
}

// Create implements provisioning.Driver.
func (d *AddressDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	addr := &computepb.Address{
		Name:        ptr.String(r.Name),
		AddressType: ptr.String(r.Descriptor[DescAddressType]),
		NetworkTier: ptr.String(r.Descriptor[DescNetworkTier]),
		Labels:      d.labels,
	}
	if err := d.api.InsertAddress(ctx, r.Scope.Project, r.Scope.Location, addr); err != nil {
		return nil, fmt.Errorf("failed to reserve address %s: %w", r.Name, err)
	}
	return d.mustLookup(ctx, r.Ref)
}

// Update implements provisioning.Driver. Only labels can change in place;
// the address type and network tier are fixed at reservation.
func (d *AddressDriver) Update(ctx context.Context, r provisioning.ManagedResource, current *provisioning.Observation) (*provisioning.Observation, error) {
	if current != nil {
		if keys := r.Diverges(current.Descriptor); len(keys) > 0 {
			return nil, fmt.Errorf("address %s cannot change %v in place", r.Name, keys)
		}
	}

	addr, err := d.api.GetAddress(ctx, r.Scope.Project, r.Scope.Location, r.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get address %s: %w", r.Name, err)
	}
	if len(d.labels) > 0 {
		if err := d.api.SetAddressLabels(ctx, r.Scope.Project, r.Scope.Location, r.Name, addr.GetLabelFingerprint(), d.labels); err != nil {
			return nil, fmt.Errorf("failed to label address %s: %w", r.Name, err)
		}
	}
	return addressObservation(r.Ref, addr), nil
}

// Delete implements provisioning.Driver.
func (d *AddressDriver) Delete(ctx context.Context, r provisioning.ManagedResource) error {
	if err := d.api.DeleteAddress(ctx, r.Scope.Project, r.Scope.Location, r.Name); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to release address %s: %w", r.Name, err)
	}
	return nil
}

func (d *AddressDriver) mustLookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	obs, err := d.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, fmt.Errorf("address %s not found after creation", ref.Name)
	}
	return obs, nil
}

func addressObservation(ref provisioning.Ref, addr *computepb.Address) *provisioning.Observation {
	identity := addr.GetSelfLink()
	if identity == "" {
		identity = fmt.Sprintf("projects/%s/regions/%s/addresses/%s", ref.Scope.Project, ref.Scope.Location, ref.Name)
	}
	return &provisioning.Observation{
		Identity: identity,
		Descriptor: map[string]string{
			DescAddressType: addr.GetAddressType(),
			DescNetworkTier: addr.GetNetworkTier(),
		},
		Outputs: map[string]string{OutputAddress: addr.GetAddress()},
	}
}
