package certificate

import (
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
)

// Phase resolves the domain's certificate and publishes it into the
// application namespace.
type Phase struct {
	store   objectstore.Store
	connect cluster.Connector
	opts    []Option
}

// NewPhase creates the certificate phase. opts are passed to every
// Provisioner it creates.
func NewPhase(store objectstore.Store, connect cluster.Connector, opts ...Option) *Phase {
	return &Phase{store: store, connect: connect, opts: opts}
}

// Name implements the provisioning.Phase interface.
func (p *Phase) Name() string {
	return "certificate"
}

// Provision implements the provisioning.Phase interface.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	cfg := ctx.Config
	if ctx.DryRun {
		ctx.RecordSkipped("certificate: not resolved in a dry run")
		return nil
	}

	opts := append([]Option{WithWarn(ctx.Warn)}, p.opts...)
	bundle, err := New(p.store, cfg.StateDir, opts...).EnsureCertificate(ctx, cfg.TLS.Domain)
	if err != nil {
		return err
	}
	ctx.State.CertificateSource = string(bundle.Source)
	provisioning.LogCertificateResolved(ctx.Observer, ctx.PhaseName(), bundle.Domain, string(bundle.Source))
	ctx.Observer.Printf("[Certificate] Certificate for %s expires %s", bundle.Domain, bundle.NotAfter.Format("2006-01-02"))

	conn, err := cluster.Open(ctx, p.connect)
	if err != nil {
		return err
	}
	created, err := Publish(ctx, conn.Kube, bundle, cfg.App.Namespace, cfg.TLS.SecretName)
	if err != nil {
		return err
	}
	if created {
		ctx.Observer.Printf("[Certificate] Published secret %s/%s", cfg.App.Namespace, cfg.TLS.SecretName)
	}
	return nil
}
