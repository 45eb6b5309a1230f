package workload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
	"github.com/imamik/webui-gke/internal/provisioning/reconcile"
)

// ErrNoAPIKey means neither a key nor a Secret Manager secret is configured.
var ErrNoAPIKey = errors.New("no OpenRouter API key: set OPENROUTER_API_KEY or OPENROUTER_API_KEY_SECRET")

// Provisioner reconciles the application.
type Provisioner struct {
	connect cluster.Connector
	secrets gcp.SecretAccessor
}

// NewProvisioner creates a new workload provisioner. secrets may be nil when
// the API key is configured directly.
func NewProvisioner(connect cluster.Connector, secrets gcp.SecretAccessor) *Provisioner {
	return &Provisioner{connect: connect, secrets: secrets}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return "workload"
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	conn, err := cluster.Open(ctx, p.connect)
	if err != nil || conn == nil {
		return err
	}

	apiKey, err := ResolveAPIKey(ctx, ctx.Config, p.secrets)
	if err != nil {
		return err
	}

	prev, err := ctx.Store.GetTarget(ctx, ctx.Environment())
	if err != nil {
		return err
	}
	initialized := prev != nil && prev.DataInitialized
	// Until the data volume holds a database the release stays at zero
	// replicas; the restore phase scales it up.
	hold := ctx.Config.Restore.Enabled && !initialized

	set, err := Desired(ctx.Config, conn.Releases, apiKey, hold)
	if err != nil {
		return err
	}
	ctx.Observer.Printf("[Workload] Reconciling release %s in namespace %s", ctx.Config.App.Release, ctx.Config.App.Namespace)

	if _, err := reconcile.Apply(ctx, reconcile.ForPhase(ctx, conn.Drivers()), Group, set.Resources()); err != nil {
		return err
	}
	ctx.State.RestorePending = hold

	if ctx.DryRun {
		return nil
	}
	t := target(ctx.Environment(), ctx.Config)
	t.DataInitialized = initialized
	if err := ctx.Store.PutTarget(ctx, t); err != nil {
		return fmt.Errorf("failed to record deployment target: %w", err)
	}
	return nil
}

// ResolveAPIKey returns the configured OpenRouter key, or reads it from
// Secret Manager.
func ResolveAPIKey(ctx context.Context, cfg *config.Config, secrets gcp.SecretAccessor) (string, error) {
	if cfg.App.APIKey != "" {
		return cfg.App.APIKey, nil
	}
	if cfg.App.APIKeySecretID == "" || secrets == nil {
		return "", ErrNoAPIKey
	}
	payload, err := secrets.AccessSecret(ctx, cfg.ProjectID, cfg.App.APIKeySecretID)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(payload)), nil
}
