package certificate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/util/labels"
	"github.com/imamik/webui-gke/internal/util/naming"
	"github.com/imamik/webui-gke/internal/util/retry"
)

// Local cache file names under <state dir>/certs/<domain>/.
const (
	certFile = "tls.crt"
	keyFile  = "tls.key"
)

// SecretCreator creates a secret unless one with the same name exists.
type SecretCreator interface {
	CreateSecretIfAbsent(ctx context.Context, secret *corev1.Secret) (bool, error)
}

// Provisioner resolves certificate bundles.
type Provisioner struct {
	store    objectstore.Store
	stateDir string
	now      func() time.Time
	generate func(domain string, now time.Time) (*Bundle, error)
	warn     func(error)
	retry    []retry.Option
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithWarn routes non-fatal problems, such as failed uploads, to fn.
func WithWarn(fn func(error)) Option {
	return func(p *Provisioner) {
		p.warn = fn
	}
}

// WithClock overrides the time used for validity checks and generation.
func WithClock(now func() time.Time) Option {
	return func(p *Provisioner) {
		p.now = now
	}
}

// WithGenerator replaces the self-signed generator.
func WithGenerator(fn func(domain string, now time.Time) (*Bundle, error)) Option {
	return func(p *Provisioner) {
		p.generate = fn
	}
}

// WithRetry tunes how bucket reads are retried.
func WithRetry(opts ...retry.Option) Option {
	return func(p *Provisioner) {
		p.retry = append(p.retry, opts...)
	}
}

// New creates a Provisioner. A nil store disables the remote cache.
func New(store objectstore.Store, stateDir string, opts ...Option) *Provisioner {
	p := &Provisioner{
		store:    store,
		stateDir: stateDir,
		now:      time.Now,
		generate: Generate,
		retry: []retry.Option{
			retry.WithMaxRetries(3),
			retry.WithInitialDelay(time.Second),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureCertificate returns a valid bundle for domain. The remote cache wins;
// a local hit is uploaded; a generated bundle is saved locally and uploaded.
// Upload and save failures are warnings. It fails only when every source does.
//
// When the bucket cannot be read, the remote state is unknown: a local hit is
// used without uploading it, and no bundle is generated.
func (p *Provisioner) EnsureCertificate(ctx context.Context, domain string) (*Bundle, error) {
	if domain == "" {
		return nil, errors.New("no domain configured")
	}
	log := logr.FromContextOrDiscard(ctx).WithValues("domain", domain)
	var unavailable []error

	bundle, known, err := p.fromRemote(ctx, domain)
	if err == nil {
		log.V(1).Info("Using certificate from bucket")
		return bundle, nil
	}
	unavailable = append(unavailable, err)
	log.V(1).Info("Remote certificate unavailable", "reason", err.Error())

	if !known {
		bundle, lerr := p.fromLocal(domain)
		if lerr != nil {
			unavailable = append(unavailable, lerr)
			return nil, fmt.Errorf("no certificate for %s: bucket unreadable: %w", domain, errors.Join(unavailable...))
		}
		log.Info("Bucket unreadable, using locally cached certificate without uploading it")
		p.warnf("certificate bucket unreadable, using the local copy for %s: %w", domain, err)
		return bundle, nil
	}

	bundle, err = p.fromLocal(domain)
	if err == nil {
		log.V(1).Info("Using locally cached certificate")
		p.upload(ctx, bundle)
		return bundle, nil
	}
	unavailable = append(unavailable, err)
	log.V(1).Info("Local certificate unavailable", "reason", err.Error())

	bundle, err = p.generate(domain, p.now())
	if err == nil {
		err = bundle.Validate(domain, p.now())
	}
	if err != nil {
		unavailable = append(unavailable, &provisioning.CertificateSourceUnavailableError{
			Source: string(SourceGenerated), Domain: domain, Err: err,
		})
		return nil, fmt.Errorf("no certificate for %s: %w", domain, errors.Join(unavailable...))
	}
	bundle.Domain = domain
	bundle.Source = SourceGenerated
	log.Info("Generated self-signed certificate", "notAfter", bundle.NotAfter)

	if err := p.saveLocal(bundle); err != nil {
		p.warnf("failed to cache certificate locally: %w", err)
	}
	p.upload(ctx, bundle)
	return bundle, nil
}

// fromRemote reads the cached bundle. known is false when the bucket could
// not be read, so whether a bundle exists there is unknown.
func (p *Provisioner) fromRemote(ctx context.Context, domain string) (b *Bundle, known bool, err error) {
	unavailable := func(err error) error {
		return &provisioning.CertificateSourceUnavailableError{Source: string(SourceCache), Domain: domain, Err: err}
	}
	if p.store == nil {
		return nil, true, unavailable(errors.New("no bucket configured"))
	}

	cert, err := p.get(ctx, naming.CertificateKey(domain))
	if err != nil {
		return nil, objectstore.IsNotFound(err), unavailable(err)
	}
	key, err := p.get(ctx, naming.PrivateKeyKey(domain))
	if err != nil {
		return nil, objectstore.IsNotFound(err), unavailable(err)
	}

	b = &Bundle{Domain: domain, CertificatePEM: cert, PrivateKeyPEM: key, Source: SourceCache}
	if err := b.Validate(domain, p.now()); err != nil {
		return nil, true, unavailable(err)
	}
	return b, true, nil
}

func (p *Provisioner) get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	opts := append([]retry.Option{retry.WithRetryIf(func(err error) bool {
		return !objectstore.IsNotFound(err)
	})}, p.retry...)
	err := retry.WithExponentialBackoff(ctx, func() error {
		var err error
		data, _, err = p.store.Get(ctx, key)
		return err
	}, opts...)
	return data, err
}

func (p *Provisioner) localDir(domain string) string {
	return filepath.Join(p.stateDir, "certs", domain)
}

func (p *Provisioner) fromLocal(domain string) (*Bundle, error) {
	unavailable := func(err error) error {
		return &provisioning.CertificateSourceUnavailableError{Source: string(SourceLocal), Domain: domain, Err: err}
	}
	if p.stateDir == "" {
		return nil, unavailable(errors.New("no state directory configured"))
	}

	dir := p.localDir(domain)
	cert, err := os.ReadFile(filepath.Join(dir, certFile))
	if err != nil {
		return nil, unavailable(err)
	}
	key, err := os.ReadFile(filepath.Join(dir, keyFile))
	if err != nil {
		return nil, unavailable(err)
	}

	b := &Bundle{Domain: domain, CertificatePEM: cert, PrivateKeyPEM: key, Source: SourceLocal}
	if err := b.Validate(domain, p.now()); err != nil {
		return nil, unavailable(err)
	}
	return b, nil
}

func (p *Provisioner) saveLocal(b *Bundle) error {
	if p.stateDir == "" {
		return errors.New("no state directory configured")
	}
	dir := p.localDir(b.Domain)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, certFile), b.CertificatePEM, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, keyFile), b.PrivateKeyPEM, 0o600)
}

func (p *Provisioner) upload(ctx context.Context, b *Bundle) {
	if p.store == nil {
		return
	}
	meta := map[string]string{
		objectstore.MetaSource: string(b.Source),
		"not-after":            b.NotAfter.UTC().Format(time.RFC3339),
	}
	if err := p.store.Put(ctx, naming.CertificateKey(b.Domain), b.CertificatePEM, meta); err != nil {
		p.warnf("failed to upload certificate for %s: %w", b.Domain, err)
		return
	}
	if err := p.store.Put(ctx, naming.PrivateKeyKey(b.Domain), b.PrivateKeyPEM, meta); err != nil {
		p.warnf("failed to upload private key for %s: %w", b.Domain, err)
	}
}

func (p *Provisioner) warnf(format string, args ...interface{}) {
	if p.warn != nil {
		p.warn(fmt.Errorf(format, args...))
	}
}

// Publish creates a kubernetes.io/tls secret from the bundle unless a secret
// of that name already exists. It reports whether the secret was created.
func Publish(ctx context.Context, client SecretCreator, b *Bundle, namespace, secretName string) (bool, error) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      secretName,
			Namespace: namespace,
			Labels: map[string]string{
				labels.KeyManagedBy: labels.ManagedBy,
				labels.KeyComponent: labels.ComponentTLS,
			},
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			corev1.TLSCertKey:       b.CertificatePEM,
			corev1.TLSPrivateKeyKey: b.PrivateKeyPEM,
		},
	}
	created, err := client.CreateSecretIfAbsent(ctx, secret)
	if err != nil {
		return false, fmt.Errorf("failed to publish certificate for %s: %w", b.Domain, err)
	}
	return created, nil
}
