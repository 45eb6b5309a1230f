// Package provisioning provides shared types, interfaces, and orchestration for
// converging an Open WebUI deployment on GKE.
//
// # Subpackages
//
//   - locate/: three-way presence lookup (Absent, PresentExternal, PresentInState)
//   - reconcile/: adopt/create/update/prune planning and execution in dependency order
//   - certificate/: TLS bundle resolution (remote cache, local cache, generate)
//   - backup/: database snapshot and restore coordinator
//   - infrastructure/: project services, cluster, node pool, static IP, bucket
//   - cluster/: kubeconfig and connections to the cluster
//   - platform/: ingress controller, cert-manager, issuer, app namespace
//   - workload/: API key secret, data volume, Open WebUI release
//   - destroy/: teardown that preserves persistent-protected resources
//
// # Core Types
//
// ManagedResource describes one resource the tool owns. Driver performs the
// backing-store calls for one resource type. Context carries configuration,
// state store, observer and the per-phase report. Phase is a provisioning step
// with Name() and Provision() methods, run in order by Pipeline.
package provisioning
