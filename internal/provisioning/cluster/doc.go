// Package cluster gives phases access to the GKE cluster. It builds
// credentials from the cluster the infrastructure phase reconciled and opens
// Kubernetes and Helm connections with them.
package cluster
