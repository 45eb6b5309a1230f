package cluster

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/infrastructure"
	testutil "github.com/imamik/webui-gke/internal/testing"
)

func staticTokens(context.Context) (oauth2.TokenSource, error) {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ya29.test"}), nil
}

func newContext() *provisioning.Context {
	cfg := testutil.NewConfigBuilder().Build()
	return provisioning.NewContext(context.Background(), cfg, testutil.NewMemoryStore(), testutil.NewRecordingObserver())
}

func seedCluster(ctx *provisioning.Context) *testutil.FakeDriver {
	driver := testutil.NewFakeDriver()
	ref := infrastructure.Desired(ctx.Config).Cluster.Ref
	driver.Seed(ref, nil, map[string]string{
		gcp.OutputEndpoint:      "10.0.0.2",
		gcp.OutputCACertificate: base64.StdEncoding.EncodeToString([]byte("-----BEGIN CERTIFICATE-----")),
	})
	return driver
}

func TestAccessPhase_BuildsKubeconfig(t *testing.T) {
	ctx := newContext()
	p := NewAccessPhase(seedCluster(ctx), staticTokens)
	assert.Equal(t, "cluster-access", p.Name())

	require.NoError(t, provisioning.NewPipeline(p).Run(ctx))
	assert.Equal(t, "10.0.0.2", ctx.State.ClusterEndpoint)

	kc, err := clientcmd.Load(ctx.State.Kubeconfig)
	require.NoError(t, err)
	cluster := kc.Clusters[ctx.Config.ClusterName]
	require.NotNil(t, cluster)
	assert.Equal(t, "https://10.0.0.2", cluster.Server)
	assert.Equal(t, "ya29.test", kc.AuthInfos[ctx.Config.ClusterName].Token)
}

func TestAccessPhase_MissingCluster(t *testing.T) {
	ctx := newContext()
	err := provisioning.NewPipeline(NewAccessPhase(testutil.NewFakeDriver(), staticTokens)).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestAccessPhase_DryRunWithoutCluster(t *testing.T) {
	ctx := newContext()
	ctx.DryRun = true

	require.NoError(t, provisioning.NewPipeline(NewAccessPhase(testutil.NewFakeDriver(), staticTokens)).Run(ctx))
	assert.Empty(t, ctx.State.Kubeconfig)
	assert.Len(t, ctx.Report.Phase("cluster-access").Skipped, 1)
}

func TestAccessPhase_TokenFailure(t *testing.T) {
	ctx := newContext()
	failing := func(context.Context) (oauth2.TokenSource, error) { return nil, errors.New("no credentials") }

	err := provisioning.NewPipeline(NewAccessPhase(seedCluster(ctx), failing)).Run(ctx)
	assert.ErrorContains(t, err, "no credentials")
}

func TestOpen(t *testing.T) {
	never := func(*provisioning.Context, []byte) (*Connection, error) {
		t.Fatal("connector must not be called")
		return nil, nil
	}

	t.Run("dry run without credentials skips", func(t *testing.T) {
		ctx := newContext()
		ctx.DryRun = true
		conn, err := Open(ctx, never)
		require.NoError(t, err)
		assert.Nil(t, conn)
	})

	t.Run("missing credentials is an error", func(t *testing.T) {
		_, err := Open(newContext(), never)
		assert.Error(t, err)
	})

	t.Run("passes the kubeconfig", func(t *testing.T) {
		ctx := newContext()
		ctx.State.Kubeconfig = []byte("apiVersion: v1")
		var got []byte
		_, err := Open(ctx, func(_ *provisioning.Context, kc []byte) (*Connection, error) {
			got = kc
			return &Connection{}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("apiVersion: v1"), got)
	})
}
