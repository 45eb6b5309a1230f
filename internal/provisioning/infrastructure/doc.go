// Package infrastructure reconciles the cloud resources of a deployment: the
// project services, the regional static address, the GKE cluster with its node
// pool, and the bucket that holds certificates and snapshots.
//
// It also builds cluster credentials for the phases that talk to Kubernetes.
package infrastructure
