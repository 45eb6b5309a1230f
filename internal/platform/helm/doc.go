// Package helm installs, upgrades and removes chart releases with an
// in-memory kubeconfig, and exposes releases to the reconciler as
// "helm-release" cluster objects.
package helm
