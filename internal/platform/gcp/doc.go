// Package gcp drives the Google Cloud resources of a deployment: project
// services, the regional static address, the GKE cluster and its node pool.
//
// Each resource type has a provisioning.Driver built on a narrow API
// interface (AddressAPI, ContainerAPI, ServiceAPI). Clients lazily creates
// the real SDK clients behind those interfaces and caches them for the run.
package gcp
