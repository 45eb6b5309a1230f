package certificate

import (
	"context"
	"crypto/rsa"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/imamik/webui-gke/internal/platform/k8s"
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
	testutil "github.com/imamik/webui-gke/internal/testing"
	"github.com/imamik/webui-gke/internal/util/naming"
	"github.com/imamik/webui-gke/internal/util/retry"
)

const domain = "chat.example.com"

var (
	fixtureOnce sync.Once
	fixture     *Bundle
	otherOnce   sync.Once
	other       *Bundle
)

// testBundle is generated once per run; RSA key generation is slow.
func testBundle(t *testing.T) *Bundle {
	t.Helper()
	fixtureOnce.Do(func() {
		b, err := Generate(domain, time.Now())
		require.NoError(t, err)
		fixture = b
	})
	copied := *fixture
	return &copied
}

func otherDomainBundle(t *testing.T) *Bundle {
	t.Helper()
	otherOnce.Do(func() {
		b, err := Generate("other.example.com", time.Now())
		require.NoError(t, err)
		other = b
	})
	copied := *other
	return &copied
}

type countingGenerator struct {
	calls int
	err   error
}

func (g *countingGenerator) generate(d string, now time.Time) (*Bundle, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return Generate(d, now)
}

func putBundle(t *testing.T, store objectstore.Store, b *Bundle) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, naming.CertificateKey(domain), b.CertificatePEM, nil))
	require.NoError(t, store.Put(ctx, naming.PrivateKeyKey(domain), b.PrivateKeyPEM, nil))
}

func writeLocal(t *testing.T, stateDir string, b *Bundle) {
	t.Helper()
	dir := filepath.Join(stateDir, "certs", domain)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tls.crt"), b.CertificatePEM, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tls.key"), b.PrivateKeyPEM, 0o600))
}

func TestGenerate(t *testing.T) {
	now := time.Now()
	b := testBundle(t)

	require.NoError(t, b.Validate(domain, now))
	assert.Equal(t, SourceGenerated, b.Source)
	assert.WithinDuration(t, now.Add(365*24*time.Hour), b.NotAfter, time.Hour)

	cert, err := parseCertificate(b.CertificatePEM)
	require.NoError(t, err)
	assert.Equal(t, []string{domain}, cert.DNSNames)
	key, err := parsePrivateKey(b.PrivateKeyPEM)
	require.NoError(t, err)
	assert.Equal(t, 2048, key.(*rsa.PrivateKey).N.BitLen())
}

func TestValidate_AcceptsDomainAmongSeveralNames(t *testing.T) {
	now := time.Now()
	b, err := generate(domain, []string{"www.example.com", "Chat.Example.com"}, now)
	require.NoError(t, err)
	require.NoError(t, b.Validate(domain, now))
}

func TestValidate_Rejects(t *testing.T) {
	now := time.Now()

	t.Run("wrong domain", func(t *testing.T) {
		err := testBundle(t).Validate("other.example.com", now)
		assert.ErrorContains(t, err, "does not cover")
	})
	t.Run("expired", func(t *testing.T) {
		err := testBundle(t).Validate(domain, now.Add(400*24*time.Hour))
		assert.ErrorContains(t, err, "expired")
	})
	t.Run("key mismatch", func(t *testing.T) {
		b := testBundle(t)
		b.PrivateKeyPEM = otherDomainBundle(t).PrivateKeyPEM
		assert.ErrorContains(t, b.Validate(domain, now), "does not match")
	})
	t.Run("wildcard", func(t *testing.T) {
		b, err := generate("*.example.com", []string{"*.example.com"}, now)
		require.NoError(t, err)
		assert.ErrorContains(t, b.Validate(domain, now), "does not cover")
	})
	t.Run("garbage", func(t *testing.T) {
		b := &Bundle{CertificatePEM: []byte("nope"), PrivateKeyPEM: []byte("nope")}
		assert.ErrorContains(t, b.Validate(domain, now), "no PEM certificate")
	})
}

func TestEnsureCertificate_RemoteCacheWins(t *testing.T) {
	store := objectstore.NewMemory("webui-backups", true)
	putBundle(t, store, testBundle(t))
	gen := &countingGenerator{}

	p := New(store, t.TempDir(), WithGenerator(gen.generate))
	b, err := p.EnsureCertificate(context.Background(), domain)
	require.NoError(t, err)

	assert.Equal(t, SourceCache, b.Source)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, testBundle(t).CertificatePEM, b.CertificatePEM)
}

func TestEnsureCertificate_CorruptRemoteFallsBackToLocal(t *testing.T) {
	store := objectstore.NewMemory("webui-backups", true)
	putBundle(t, store, otherDomainBundle(t))
	stateDir := t.TempDir()
	writeLocal(t, stateDir, testBundle(t))
	gen := &countingGenerator{}

	p := New(store, stateDir, WithGenerator(gen.generate))
	b, err := p.EnsureCertificate(context.Background(), domain)
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, b.Source)
	assert.Equal(t, 0, gen.calls)

	uploaded, _, err := store.Get(context.Background(), naming.CertificateKey(domain))
	require.NoError(t, err)
	assert.Equal(t, testBundle(t).CertificatePEM, uploaded, "local hit replaces the remote copy")
}

// flakyStore fails the first failures reads with a server error.
type flakyStore struct {
	*objectstore.Memory
	failures int
	gets     int
	puts     int
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, *objectstore.ObjectInfo, error) {
	s.gets++
	if s.failures > 0 {
		s.failures--
		return nil, nil, errors.New("googleapi: Error 503: service unavailable")
	}
	return s.Memory.Get(ctx, key)
}

func (s *flakyStore) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	s.puts++
	return s.Memory.Put(ctx, key, data, metadata)
}

func fastRetry() Option {
	return WithRetry(retry.WithMaxRetries(2), retry.WithInitialDelay(time.Millisecond))
}

func TestEnsureCertificate_TransientBucketErrorIsRetried(t *testing.T) {
	store := &flakyStore{Memory: objectstore.NewMemory("webui-backups", true), failures: 1}
	putBundle(t, store.Memory, testBundle(t))
	gen := &countingGenerator{}

	p := New(store, t.TempDir(), WithGenerator(gen.generate), fastRetry())
	b, err := p.EnsureCertificate(context.Background(), domain)
	require.NoError(t, err)

	assert.Equal(t, SourceCache, b.Source)
	assert.Equal(t, testBundle(t).CertificatePEM, b.CertificatePEM)
	assert.Equal(t, 0, gen.calls)
	assert.Zero(t, store.puts)
}

func TestEnsureCertificate_UnreadableBucketIsNeverOverwritten(t *testing.T) {
	t.Run("without a local copy", func(t *testing.T) {
		store := &flakyStore{Memory: objectstore.NewMemory("webui-backups", true), failures: 100}
		putBundle(t, store.Memory, testBundle(t))
		gen := &countingGenerator{}

		p := New(store, t.TempDir(), WithGenerator(gen.generate), fastRetry())
		_, err := p.EnsureCertificate(context.Background(), domain)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket unreadable")
		assert.Equal(t, 3, store.gets)
		assert.Equal(t, 0, gen.calls)
		assert.Zero(t, store.puts)

		remote, _, err := store.Memory.Get(context.Background(), naming.CertificateKey(domain))
		require.NoError(t, err)
		assert.Equal(t, testBundle(t).CertificatePEM, remote)
	})

	t.Run("with a local copy", func(t *testing.T) {
		store := &flakyStore{Memory: objectstore.NewMemory("webui-backups", true), failures: 100}
		stateDir := t.TempDir()
		writeLocal(t, stateDir, testBundle(t))
		var warnings []error

		p := New(store, stateDir, fastRetry(), WithWarn(func(err error) { warnings = append(warnings, err) }))
		b, err := p.EnsureCertificate(context.Background(), domain)
		require.NoError(t, err)
		assert.Equal(t, SourceLocal, b.Source)
		assert.Zero(t, store.puts)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Error(), "bucket unreadable")
	})
}

func TestEnsureCertificate_GeneratesSavesAndUploads(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("webui-backups", true)
	stateDir := t.TempDir()
	gen := &countingGenerator{}

	p := New(store, stateDir, WithGenerator(gen.generate))
	b, err := p.EnsureCertificate(ctx, domain)
	require.NoError(t, err)
	assert.Equal(t, SourceGenerated, b.Source)
	assert.Equal(t, 1, gen.calls)

	local, err := os.ReadFile(filepath.Join(stateDir, "certs", domain, "tls.key"))
	require.NoError(t, err)
	assert.Equal(t, b.PrivateKeyPEM, local)

	again, err := p.EnsureCertificate(ctx, domain)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, again.Source)
	assert.Equal(t, b.CertificatePEM, again.CertificatePEM)
	assert.Equal(t, 1, gen.calls)
}

func TestEnsureCertificate_UploadFailureIsWarning(t *testing.T) {
	store := objectstore.NewMemory("webui-backups", true)
	store.FailPut = errors.New("403 forbidden")
	stateDir := t.TempDir()
	writeLocal(t, stateDir, testBundle(t))

	var warnings []error
	p := New(store, stateDir, WithWarn(func(err error) { warnings = append(warnings, err) }))
	b, err := p.EnsureCertificate(context.Background(), domain)
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, b.Source)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Error(), "failed to upload certificate")
}

func TestEnsureCertificate_AllSourcesFail(t *testing.T) {
	gen := &countingGenerator{err: errors.New("entropy exhausted")}

	p := New(nil, "", WithGenerator(gen.generate))
	_, err := p.EnsureCertificate(context.Background(), domain)
	require.Error(t, err)

	var unavailable *provisioning.CertificateSourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, err.Error(), "source cache")
	assert.Contains(t, err.Error(), "source local")
	assert.Contains(t, err.Error(), "entropy exhausted")
}

func TestEnsureCertificate_NoDomain(t *testing.T) {
	_, err := New(nil, "").EnsureCertificate(context.Background(), "")
	assert.Error(t, err)
}

func TestPublish_OnlyIfAbsent(t *testing.T) {
	ctx := context.Background()
	//nolint:staticcheck // SA1019: NewSimpleClientset is sufficient for our testing needs
	cs := fake.NewSimpleClientset()
	client := k8s.NewClient(cs, nil, nil)
	b := testBundle(t)

	created, err := Publish(ctx, client, b, "open-webui", "open-webui-tls")
	require.NoError(t, err)
	assert.True(t, created)

	secret, err := cs.CoreV1().Secrets("open-webui").Get(ctx, "open-webui-tls", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.SecretTypeTLS, secret.Type)
	assert.Equal(t, b.CertificatePEM, secret.Data[corev1.TLSCertKey])

	created, err = Publish(ctx, client, otherDomainBundle(t), "open-webui", "open-webui-tls")
	require.NoError(t, err)
	assert.False(t, created)

	secret, err = cs.CoreV1().Secrets("open-webui").Get(ctx, "open-webui-tls", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, b.CertificatePEM, secret.Data[corev1.TLSCertKey])
}

func TestPhase_PublishesCachedCertificate(t *testing.T) {
	store := objectstore.NewMemory("webui-backups", true)
	putBundle(t, store, testBundle(t))
	//nolint:staticcheck // SA1019: NewSimpleClientset is sufficient for our testing needs
	cs := fake.NewSimpleClientset()
	connect := func(*provisioning.Context, []byte) (*cluster.Connection, error) {
		return &cluster.Connection{Kube: k8s.NewClient(cs, nil, nil)}, nil
	}
	gen := &countingGenerator{}

	cfg := testutil.NewConfigBuilder().WithStateDir(t.TempDir()).Build()
	ctx := provisioning.NewContext(context.Background(), cfg, testutil.NewMemoryStore(), testutil.NewRecordingObserver())
	ctx.State.Kubeconfig = []byte("apiVersion: v1")

	phase := NewPhase(store, connect, WithGenerator(gen.generate))
	assert.Equal(t, "certificate", phase.Name())
	require.NoError(t, provisioning.NewPipeline(phase).Run(ctx))

	assert.Equal(t, string(SourceCache), ctx.State.CertificateSource)
	assert.Equal(t, 0, gen.calls)
	secret, err := cs.CoreV1().Secrets(cfg.App.Namespace).Get(context.Background(), cfg.TLS.SecretName, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, testBundle(t).PrivateKeyPEM, secret.Data[corev1.TLSPrivateKeyKey])
}

func TestPhase_UploadFailureIsPhaseWarning(t *testing.T) {
	store := objectstore.NewMemory("webui-backups", true)
	store.FailPut = errors.New("403 forbidden")
	stateDir := t.TempDir()
	writeLocal(t, stateDir, testBundle(t))
	//nolint:staticcheck // SA1019: NewSimpleClientset is sufficient for our testing needs
	cs := fake.NewSimpleClientset()
	connect := func(*provisioning.Context, []byte) (*cluster.Connection, error) {
		return &cluster.Connection{Kube: k8s.NewClient(cs, nil, nil)}, nil
	}

	cfg := testutil.NewConfigBuilder().WithStateDir(stateDir).Build()
	ctx := provisioning.NewContext(context.Background(), cfg, testutil.NewMemoryStore(), testutil.NewRecordingObserver())
	ctx.State.Kubeconfig = []byte("apiVersion: v1")

	require.NoError(t, provisioning.NewPipeline(NewPhase(store, connect)).Run(ctx))
	assert.Equal(t, string(SourceLocal), ctx.State.CertificateSource)
	assert.Equal(t, provisioning.StatusWarning, ctx.Report.Phase("certificate").Status)
}

func TestPhase_SkippedInDryRun(t *testing.T) {
	connect := func(*provisioning.Context, []byte) (*cluster.Connection, error) {
		t.Fatal("dry run must not connect")
		return nil, nil
	}
	ctx := provisioning.NewContext(context.Background(), testutil.NewConfigBuilder().Build(), testutil.NewMemoryStore(), testutil.NewRecordingObserver())
	ctx.DryRun = true

	require.NoError(t, provisioning.NewPipeline(NewPhase(nil, connect)).Run(ctx))
	assert.Empty(t, ctx.State.CertificateSource)
	assert.NotEmpty(t, ctx.Report.Phase("certificate").Skipped)
}
