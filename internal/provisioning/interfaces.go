package provisioning

import "context"

// Phase defines the interface for a provisioning phase.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision executes the provisioning logic for this phase.
	// A returned error is fatal and stops the pipeline; non-fatal problems
	// are reported through Context.Warn.
	Provision(ctx *Context) error
}

// Driver performs backing-store calls for one resource type.
type Driver interface {
	// Lookup queries the backing store's read API. It never mutates and
	// returns (nil, nil) when the store reports the resource as not found.
	Lookup(ctx context.Context, ref Ref) (*Observation, error)

	// Create creates the resource and returns what now exists.
	Create(ctx context.Context, r ManagedResource) (*Observation, error)

	// Update converges an existing resource to r.Descriptor.
	Update(ctx context.Context, r ManagedResource, current *Observation) (*Observation, error)

	// Delete removes the resource. Deleting an absent resource is not an error.
	Delete(ctx context.Context, r ManagedResource) error
}

// RetryClassifier is implemented by drivers that can tell transient failures
// from permanent ones. Drivers without it have every lookup failure retried.
type RetryClassifier interface {
	IsRetryable(err error) bool
}

// StateStore persists what the tool has adopted or created.
type StateStore interface {
	// GetResource returns (nil, nil) when no record exists for key.
	GetResource(ctx context.Context, key string) (*ResourceRecord, error)
	// ListResources returns the records of group, or all records when group is empty.
	ListResources(ctx context.Context, group string) ([]ResourceRecord, error)
	PutResource(ctx context.Context, rec ResourceRecord) error
	DeleteResource(ctx context.Context, key string) error

	// GetTarget returns (nil, nil) when the environment has no target yet.
	GetTarget(ctx context.Context, environment string) (*DeploymentTarget, error)
	PutTarget(ctx context.Context, target DeploymentTarget) error
}
