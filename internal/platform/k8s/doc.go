// Package k8s wraps the Kubernetes API for the cluster side of a deployment:
// namespaces, secrets, volume claims, server-side applied manifests, workload
// scaling, pod exec and readiness waits.
//
// Client is built from in-memory kubeconfig bytes. The drivers in this
// package implement provisioning.Driver for cluster objects.
package k8s
