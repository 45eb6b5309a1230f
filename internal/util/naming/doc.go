// Package naming centralizes the names and object keys webui-gke derives from
// the deployment configuration, so lookups and creates always agree.
package naming
