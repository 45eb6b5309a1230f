// Package labels provides consistent labeling for resources managed by webui-gke.
//
// Kubernetes objects use the webui-gke.io domain prefix. Google Cloud labels
// cannot contain dots or slashes, so BuildCloud rewrites the same set into the
// flat key format GCE and GKE accept.
package labels
