// Package platform reconciles the cluster tooling the application relies on:
// its namespaces, the ingress-nginx controller bound to the static address,
// cert-manager, and an optional ACME ClusterIssuer.
package platform
