// Package config holds the deployment configuration for webui-gke.
//
// Configuration is resolved in three layers: built-in defaults (Default),
// an optional YAML file (webui-gke.yaml), and environment variable overrides
// (ApplyEnv). Command-line flags are applied last by the CLI. The resulting
// Config is passed explicitly into every provisioning component.
package config
