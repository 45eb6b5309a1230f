package gcp

import (
	"context"
	"fmt"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// DescState is the enablement state of a project service.
const DescState = "state"

const stateEnabled = "ENABLED"

// ServiceDriver enables project services. Services are never disabled:
// Delete only forgets them, since other workloads in the project may rely on them.
type ServiceDriver struct {
	Classifier
	api ServiceAPI
}

// NewServiceDriver returns a driver for project services.
func NewServiceDriver(api ServiceAPI) *ServiceDriver {
	return &ServiceDriver{api: api}
}

// ProjectService returns the desired enabled service, e.g. container.googleapis.com.
func ProjectService(project, service string) provisioning.ManagedResource {
	return provisioning.ManagedResource{
		Ref: provisioning.Ref{
			Kind:  provisioning.KindCloud,
			Type:  TypeService,
			Name:  service,
			Scope: provisioning.Scope{Project: project},
		},
		Descriptor: map[string]string{DescState: stateEnabled},
		Policy:     provisioning.PolicyEphemeral,
	}
}

func serviceName(ref provisioning.Ref) string {
	return fmt.Sprintf("projects/%s/services/%s", ref.Scope.Project, ref.Name)
}

// Lookup implements provisioning.Driver. A disabled service is present with
// state DISABLED, so it is adopted and then enabled.
func (d *ServiceDriver) Lookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	svc, err := d.api.GetService(ctx, serviceName(ref))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get service %s: %w", ref.Name, err)
	}
	return &provisioning.Observation{
		Identity:   serviceName(ref),
		Descriptor: map[string]string{DescState: svc.State},
	}, nil
}

// Create implements provisioning.Driver.
func (d *ServiceDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	return d.enable(ctx, r)
}

// Update implements provisioning.Driver.
func (d *ServiceDriver) Update(ctx context.Context, r provisioning.ManagedResource, _ *provisioning.Observation) (*provisioning.Observation, error) {
	return d.enable(ctx, r)
}

// Delete implements provisioning.Driver.
func (d *ServiceDriver) Delete(context.Context, provisioning.ManagedResource) error {
	return nil
}

func (d *ServiceDriver) enable(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	if err := d.api.EnableService(ctx, serviceName(r.Ref)); err != nil {
		return nil, fmt.Errorf("failed to enable service %s: %w", r.Name, err)
	}
	return &provisioning.Observation{
		Identity:   serviceName(r.Ref),
		Descriptor: map[string]string{DescState: stateEnabled},
	}, nil
}
