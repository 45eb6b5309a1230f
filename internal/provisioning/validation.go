package provisioning

import "fmt"

// ValidationPhase implements the Phase interface for pre-flight validation.
type ValidationPhase struct{}

// NewValidationPhase creates a new validation phase.
func NewValidationPhase() *ValidationPhase {
	return &ValidationPhase{}
}

// Name implements the Phase interface.
func (vp *ValidationPhase) Name() string {
	return "validation"
}

// Provision implements the Phase interface.
func (vp *ValidationPhase) Provision(ctx *Context) error {
	if err := ctx.Config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	for _, w := range warnings(ctx) {
		ctx.Warnf("%s", w)
	}
	return nil
}

// warnings lists configurations that work but are probably not intended.
func warnings(ctx *Context) []string {
	cfg := ctx.Config
	var out []string

	if cfg.TLS.ACMEEmail == "" {
		out = append(out, "tls.acme_email is not set: the ingress will serve the self-signed bootstrap certificate")
	}
	if !cfg.Restore.Enabled {
		out = append(out, "restore is disabled: a fresh volume will start with an empty database")
	}
	if cfg.Cluster.Spot && cfg.Cluster.NodeCount < 2 {
		out = append(out, "a single spot node can be preempted at any time")
	}
	if cfg.Restore.BlockOnFailure && !cfg.Restore.Enabled {
		out = append(out, "restore.block_on_failure has no effect while restore is disabled")
	}

	return out
}
