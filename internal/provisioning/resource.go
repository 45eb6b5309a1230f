package provisioning

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the backing store a resource lives in.
type Kind string

const (
	KindCloud   Kind = "cloud-resource"
	KindCluster Kind = "cluster-object"
	KindStorage Kind = "storage-object"
)

// Policy controls whether a resource may be destroyed by this tool.
type Policy string

const (
	// PolicyEphemeral resources are created, updated and destroyed freely.
	PolicyEphemeral Policy = "ephemeral"
	// PolicyProtected resources are only ever adopted or left untouched.
	PolicyProtected Policy = "persistent-protected"
)

// Scope locates a resource within its backing store.
type Scope struct {
	Project   string `json:"project,omitempty"`
	Location  string `json:"location,omitempty"`
	Cluster   string `json:"cluster,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// Ref identifies a resource independently of its desired state.
type Ref struct {
	Kind  Kind   `json:"kind"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Scope Scope  `json:"scope"`
}

// Key is the stable identifier used by the state store and by DependsOn.
func (r Ref) Key() string {
	parts := []string{r.Type}
	for _, p := range []string{r.Scope.Project, r.Scope.Location, r.Scope.Cluster, r.Scope.Namespace} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, r.Name)
	return strings.Join(parts, "/")
}

func (r Ref) String() string {
	return fmt.Sprintf("%s %q", r.Type, r.Name)
}

// ManagedResource is one resource in a desired set.
type ManagedResource struct {
	Ref
	// Identity is the external identity once known, e.g. a cloud resource path.
	Identity string
	// Descriptor is the desired state. Only the keys present here are compared
	// against what was recorded or observed.
	Descriptor map[string]string
	Policy     Policy
	// DependsOn lists the Keys of resources that must be applied first.
	DependsOn []string
	// Data carries payloads that are applied but never persisted, such as secret values.
	Data map[string][]byte
}

// Protected reports whether the resource is persistent-protected.
func (r ManagedResource) Protected() bool {
	return r.Policy == PolicyProtected
}

// Diverges reports whether any desired descriptor key differs from recorded.
// The returned keys are sorted.
func (r ManagedResource) Diverges(recorded map[string]string) []string {
	var keys []string
	for k, v := range r.Descriptor {
		if recorded[k] != v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Observation is what a driver saw in the backing store.
type Observation struct {
	Identity   string
	Descriptor map[string]string
	// Outputs are values later phases consume, such as an IP address or endpoint.
	Outputs map[string]string
}

// Presence is the three-way result of a lookup.
type Presence int

const (
	Absent Presence = iota
	PresentExternal
	PresentInState
)

func (p Presence) String() string {
	switch p {
	case Absent:
		return "absent"
	case PresentExternal:
		return "present-external"
	case PresentInState:
		return "present-in-state"
	default:
		return fmt.Sprintf("presence(%d)", int(p))
	}
}

// ActionType is what the reconciler did, or plans to do, to one resource.
type ActionType string

const (
	ActionAdopt   ActionType = "adopt"
	ActionCreate  ActionType = "create"
	ActionUpdate  ActionType = "update"
	ActionDestroy ActionType = "destroy"
)

// Action is one planned or applied change.
type Action struct {
	Type     ActionType
	Ref      Ref
	Identity string
	// Reason explains an Update (diverging keys) or a Destroy (pruned, requested).
	Reason string
}

func (a Action) String() string {
	if a.Reason != "" {
		return fmt.Sprintf("%s %s (%s)", a.Type, a.Ref, a.Reason)
	}
	return fmt.Sprintf("%s %s", a.Type, a.Ref)
}

// ResourceError ties a failure to the resource it happened on.
type ResourceError struct {
	Ref Ref
	Err error
}

func (e ResourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Ref, e.Err)
}

func (e ResourceError) Unwrap() error {
	return e.Err
}

// ResourceRecord is the state store's view of a managed resource.
type ResourceRecord struct {
	Resource ManagedResource
	// Group is the desired set that owns the record; pruning never crosses groups.
	Group     string
	Outputs   map[string]string
	UpdatedAt time.Time
}

// DeploymentTarget is the one active release target per environment.
type DeploymentTarget struct {
	Environment string
	Cluster     string
	Namespace   string
	Release     string
	// DataInitialized is set once a restore or cold start has prepared the
	// data volume. Until then the release is installed scaled to zero.
	DataInitialized bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
