package labels

import "strings"

// Standard label keys for Kubernetes objects.
const (
	// KeyCluster identifies which cluster a resource belongs to
	KeyCluster = "webui-gke.io/cluster"

	// KeyComponent identifies the part of the deployment a resource serves
	KeyComponent = "webui-gke.io/component"

	// KeyManagedBy identifies the management system
	KeyManagedBy = "app.kubernetes.io/managed-by"
)

// ManagedBy is the value of KeyManagedBy on every object this tool creates.
const ManagedBy = "webui-gke"

// Component values
const (
	ComponentInfrastructure = "infrastructure"
	ComponentIngress        = "ingress"
	ComponentTLS            = "tls"
	ComponentApp            = "app"
	ComponentRestore        = "restore"
)

// LabelBuilder provides a fluent interface for building resource labels.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a new label builder with the cluster name pre-set.
func NewLabelBuilder(clusterName string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyCluster:   clusterName,
			KeyManagedBy: ManagedBy,
		},
	}
}

// WithComponent adds a component label.
func (lb *LabelBuilder) WithComponent(component string) *LabelBuilder {
	lb.labels[KeyComponent] = component
	return lb
}

// Merge adds all labels from the provided map.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map for Kubernetes objects.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}

// BuildCloud returns the labels in the format Google Cloud accepts:
// lowercase keys and values made of letters, digits, '-' and '_'.
func (lb *LabelBuilder) BuildCloud() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[cloudSafe(k)] = cloudSafe(v)
	}
	return result
}

func cloudSafe(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// SelectorForCluster returns a label selector string for all objects in a cluster.
func SelectorForCluster(clusterName string) string {
	return KeyCluster + "=" + clusterName
}
