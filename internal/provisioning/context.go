package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/webui-gke/internal/config"
)

// State holds the shared results of provisioning phases.
// It is progressively populated as each phase completes and is passed
// to subsequent phases that need earlier results.
type State struct {
	// Infrastructure results
	StaticIP        string
	ClusterEndpoint string
	// ClusterCA is base64-encoded, as GKE returns it.
	ClusterCA string

	// Cluster access
	Kubeconfig []byte

	// Certificate results
	CertificateSource string

	// RestorePending is set when the workload phase installed the release
	// scaled to zero because the data volume is not initialized yet.
	RestorePending bool

	// Restore gate outcome ("restored", "cold-start", "skipped", "failed")
	RestoreOutcome string
}

// Context wraps all dependencies and state needed for a provisioning phase.
type Context struct {
	context.Context
	Config   *config.Config
	Timeouts *config.Timeouts
	Store    StateStore
	State    *State
	Observer Observer
	Report   *Report

	// DryRun makes reconciling phases plan without mutating anything.
	DryRun bool

	current *PhaseResult
}

// NewContext creates a new provisioning context.
func NewContext(ctx context.Context, cfg *config.Config, store StateStore, observer Observer) *Context {
	return &Context{
		Context:  ctx,
		Config:   cfg,
		Timeouts: config.LoadTimeouts(),
		Store:    store,
		State:    &State{},
		Observer: observer,
		Report:   &Report{},
	}
}

// PhaseName is the name of the phase currently running, if any.
func (c *Context) PhaseName() string {
	if c.current == nil {
		return ""
	}
	return c.current.Name
}

// Warn records a non-fatal problem against the current phase.
func (c *Context) Warn(err error) {
	if err == nil {
		return
	}
	LogPhaseWarning(c.Observer, c.PhaseName(), err)
	if c.current != nil {
		c.current.Warnings = append(c.current.Warnings, err.Error())
	}
}

// Warnf is Warn with formatting.
func (c *Context) Warnf(format string, args ...interface{}) {
	c.Warn(fmt.Errorf(format, args...))
}

// RecordActions attributes applied actions to the current phase.
func (c *Context) RecordActions(actions ...Action) {
	if c.current != nil {
		c.current.Actions = append(c.current.Actions, actions...)
	}
}

// RecordSkipped attributes skipped items to the current phase.
func (c *Context) RecordSkipped(items ...string) {
	if c.current != nil {
		c.current.Skipped = append(c.current.Skipped, items...)
	}
}

// Environment is the name under which the deployment target is recorded.
func (c *Context) Environment() string {
	return fmt.Sprintf("%s/%s", c.Config.ProjectID, c.Config.ClusterName)
}

// RequireKubeconfig returns the kubeconfig, or an error naming the phase that
// should have produced it.
func (c *Context) RequireKubeconfig() ([]byte, error) {
	if len(c.State.Kubeconfig) == 0 {
		return nil, errors.New("no cluster credentials: cluster-access phase has not run")
	}
	return c.State.Kubeconfig, nil
}
