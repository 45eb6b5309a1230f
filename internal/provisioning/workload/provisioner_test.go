package workload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/kubernetes/scheme"
	ctrlfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/platform/helm"
	"github.com/imamik/webui-gke/internal/platform/k8s"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
	"github.com/imamik/webui-gke/internal/provisioning/platform"
	testutil "github.com/imamik/webui-gke/internal/testing"
)

type fakeSecrets struct {
	payload []byte
	err     error
	asked   string
}

func (f *fakeSecrets) AccessSecret(_ context.Context, project, secretID string) ([]byte, error) {
	f.asked = project + "/" + secretID
	return f.payload, f.err
}

type fixture struct {
	clientset *fake.Clientset
	releaser  *testutil.FakeReleaser
	store     *testutil.MemoryStore
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		//nolint:staticcheck // SA1019: NewSimpleClientset is sufficient for our testing needs
		clientset: fake.NewSimpleClientset(),
		releaser:  testutil.NewFakeReleaser(),
		store:     testutil.NewMemoryStore(),
	}
	require.NoError(t, f.store.PutResource(context.Background(), provisioning.ResourceRecord{
		Resource: platform.AppNamespace(cfg),
		Group:    platform.Group,
	}))
	return f
}

func (f *fixture) connect(*provisioning.Context, []byte) (*cluster.Connection, error) {
	ctrl := ctrlfake.NewClientBuilder().WithScheme(scheme.Scheme).Build()
	return &cluster.Connection{
		Kube:     k8s.NewClient(f.clientset, ctrl, nil),
		Releases: helm.NewReleaseDriver(f.releaser.Factory()),
	}, nil
}

func (f *fixture) context(cfg *config.Config) *provisioning.Context {
	ctx := provisioning.NewContext(context.Background(), cfg, f.store, testutil.NewRecordingObserver())
	ctx.State.Kubeconfig = []byte("apiVersion: v1")
	return ctx
}

func TestProvisioner_DeploysApplication(t *testing.T) {
	cfg := testutil.NewConfigBuilder().Build()
	f := newFixture(t, cfg)
	p := NewProvisioner(f.connect, nil)
	assert.Equal(t, "workload", p.Name())

	ctx := f.context(cfg)
	require.NoError(t, provisioning.NewPipeline(p).Run(ctx))
	assert.True(t, ctx.State.RestorePending)

	secret, err := f.clientset.CoreV1().Secrets(cfg.App.Namespace).Get(context.Background(), cfg.App.APIKeySecret, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("sk-or-test"), secret.Data[APIKeyField])

	_, err = f.clientset.CoreV1().PersistentVolumeClaims(cfg.App.Namespace).Get(context.Background(), cfg.App.VolumeClaim, metav1.GetOptions{})
	require.NoError(t, err)

	rel := f.releaser.Release(cfg.App.Namespace, cfg.App.Release)
	require.NotNil(t, rel)
	assert.Equal(t, config.DefaultOpenRouterBase, rel.Values["openaiBaseApiUrl"])
	assert.Equal(t, cfg.App.VolumeClaim, rel.Values["persistence"].(helm.Values)["existingClaim"])

	tgt, err := f.store.GetTarget(context.Background(), ctx.Environment())
	require.NoError(t, err)
	require.NotNil(t, tgt)
	assert.Equal(t, cfg.ClusterPath(), tgt.Cluster)
	assert.Equal(t, "open-webui/open-webui", tgt.Release)

	again := f.context(cfg)
	require.NoError(t, provisioning.NewPipeline(p).Run(again))
	assert.Empty(t, again.Report.Actions())
	assert.True(t, again.State.RestorePending)
}

func TestProvisioner_HoldsReleaseUntilDataInitialized(t *testing.T) {
	cfg := testutil.NewConfigBuilder().Build()
	f := newFixture(t, cfg)
	p := NewProvisioner(f.connect, nil)

	ctx := f.context(cfg)
	require.NoError(t, provisioning.NewPipeline(p).Run(ctx))
	require.Len(t, f.releaser.Installed, 1)
	assert.Equal(t, 0, f.releaser.Installed[0].Values["replicaCount"])
	assert.True(t, ctx.State.RestorePending)

	tgt, err := f.store.GetTarget(context.Background(), ctx.Environment())
	require.NoError(t, err)
	tgt.DataInitialized = true
	require.NoError(t, f.store.PutTarget(context.Background(), *tgt))

	again := f.context(cfg)
	require.NoError(t, provisioning.NewPipeline(p).Run(again))
	assert.False(t, again.State.RestorePending)
	require.Len(t, f.releaser.Installed, 2)
	assert.NotContains(t, f.releaser.Installed[1].Values, "replicaCount")

	tgt, err = f.store.GetTarget(context.Background(), ctx.Environment())
	require.NoError(t, err)
	assert.True(t, tgt.DataInitialized)
}

func TestProvisioner_NoHoldWithoutRestore(t *testing.T) {
	cfg := testutil.NewConfigBuilder().WithRestore(false, false).Build()
	f := newFixture(t, cfg)
	ctx := f.context(cfg)
	require.NoError(t, provisioning.NewPipeline(NewProvisioner(f.connect, nil)).Run(ctx))

	assert.False(t, ctx.State.RestorePending)
	require.Len(t, f.releaser.Installed, 1)
	assert.NotContains(t, f.releaser.Installed[0].Values, "replicaCount")
}

func TestProvisioner_InterruptedRunStillRestores(t *testing.T) {
	cfg := testutil.NewConfigBuilder().Build()
	f := newFixture(t, cfg)
	p := NewProvisioner(f.connect, nil)

	f.releaser.InstallErr = errors.New("context deadline exceeded")
	first := f.context(cfg)
	require.Error(t, provisioning.NewPipeline(p).Run(first))
	assert.False(t, first.State.RestorePending)
	_, err := f.clientset.CoreV1().PersistentVolumeClaims(cfg.App.Namespace).Get(context.Background(), cfg.App.VolumeClaim, metav1.GetOptions{})
	require.NoError(t, err, "volume claim is created before the release")

	f.releaser.InstallErr = nil
	second := f.context(cfg)
	require.NoError(t, provisioning.NewPipeline(p).Run(second))
	assert.True(t, second.State.RestorePending)
	require.Len(t, f.releaser.Installed, 1)
	assert.Equal(t, 0, f.releaser.Installed[0].Values["replicaCount"])
}

func TestProvisioner_KeyRotationUpdatesSecret(t *testing.T) {
	cfg := testutil.NewConfigBuilder().Build()
	f := newFixture(t, cfg)
	p := NewProvisioner(f.connect, nil)
	require.NoError(t, provisioning.NewPipeline(p).Run(f.context(cfg)))

	cfg.App.APIKey = "sk-or-rotated"
	ctx := f.context(cfg)
	require.NoError(t, provisioning.NewPipeline(p).Run(ctx))

	actions := ctx.Report.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, provisioning.ActionUpdate, actions[0].Type)
	assert.Equal(t, cfg.App.APIKeySecret, actions[0].Ref.Name)
}

func TestProvisioner_NamespaceMustBeRecorded(t *testing.T) {
	cfg := testutil.NewConfigBuilder().Build()
	f := newFixture(t, cfg)
	require.NoError(t, f.store.DeleteResource(context.Background(), platform.AppNamespace(cfg).Key()))

	err := provisioning.NewPipeline(NewProvisioner(f.connect, nil)).Run(f.context(cfg))
	require.Error(t, err)
	assert.True(t, provisioning.IsDependencyUnresolved(err))
	assert.Empty(t, f.releaser.Installed)
}

func TestDesired_ValuesFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ingress:\n  host: chat.internal\nresources:\n  limits:\n    memory: 2Gi\n"), 0o600))

	cfg := testutil.NewConfigBuilder().Build()
	cfg.App.ValuesFile = path
	set, err := Desired(cfg, helm.NewReleaseDriver(testutil.NewFakeReleaser().Factory()), "sk", false)
	require.NoError(t, err)

	assert.Equal(t, []string{set.Secret.Key(), set.VolumeClaim.Key()}, set.Release.DependsOn)

	withoutFile := testutil.NewConfigBuilder().Build()
	plain, err := Desired(withoutFile, helm.NewReleaseDriver(testutil.NewFakeReleaser().Factory()), "sk", false)
	require.NoError(t, err)
	assert.NotEqual(t, plain.Release.Descriptor[helm.DescValuesSHA256], set.Release.Descriptor[helm.DescValuesSHA256])

	cfg.App.ValuesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = Desired(cfg, helm.NewReleaseDriver(testutil.NewFakeReleaser().Factory()), "sk", false)
	assert.Error(t, err)
}

func TestAppValues_ACMEAnnotation(t *testing.T) {
	cfg := testutil.NewConfigBuilder().WithACMEEmail("ops@example.com").Build()
	ingress := appValues(cfg)["ingress"].(helm.Values)
	assert.Equal(t, "open-webui-cluster-letsencrypt", ingress["annotations"].(helm.Values)["cert-manager.io/cluster-issuer"])
	assert.Equal(t, "chat.example.com", ingress["host"])

	plain := appValues(testutil.NewConfigBuilder().Build())["ingress"].(helm.Values)
	assert.NotContains(t, plain, "annotations")
}

func TestResolveAPIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("configured directly", func(t *testing.T) {
		key, err := ResolveAPIKey(ctx, testutil.NewConfigBuilder().Build(), nil)
		require.NoError(t, err)
		assert.Equal(t, "sk-or-test", key)
	})

	t.Run("from secret manager", func(t *testing.T) {
		cfg := testutil.NewConfigBuilder().Build()
		cfg.App.APIKey = ""
		cfg.App.APIKeySecretID = "openrouter"
		secrets := &fakeSecrets{payload: []byte("sk-or-from-sm\n")}

		key, err := ResolveAPIKey(ctx, cfg, secrets)
		require.NoError(t, err)
		assert.Equal(t, "sk-or-from-sm", key)
		assert.Equal(t, "demo-project/openrouter", secrets.asked)
	})

	t.Run("secret manager failure", func(t *testing.T) {
		cfg := testutil.NewConfigBuilder().Build()
		cfg.App.APIKey = ""
		cfg.App.APIKeySecretID = "openrouter"
		_, err := ResolveAPIKey(ctx, cfg, &fakeSecrets{err: errors.New("permission denied")})
		assert.ErrorContains(t, err, "permission denied")
	})

	t.Run("nothing configured", func(t *testing.T) {
		cfg := testutil.NewConfigBuilder().Build()
		cfg.App.APIKey = ""
		_, err := ResolveAPIKey(ctx, cfg, nil)
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})
}
