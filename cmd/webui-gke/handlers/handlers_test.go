package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/kubernetes/scheme"
	ctrlfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/logging"
	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/platform/helm"
	"github.com/imamik/webui-gke/internal/platform/k8s"
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/backup"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
	"github.com/imamik/webui-gke/internal/provisioning/locate"
	"github.com/imamik/webui-gke/internal/state"
	testutil "github.com/imamik/webui-gke/internal/testing"
	"github.com/imamik/webui-gke/internal/util/naming"
)

// fixture replaces every backend the handlers reach with an in-memory fake.
type fixture struct {
	cfg       *config.Config
	cloud     *testutil.FakeDriver
	objects   *objectstore.Memory
	clientset *fake.Clientset
	releaser  *testutil.FakeReleaser
	out       *bytes.Buffer

	interactive bool
	snapshots   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cfg: testutil.NewConfigBuilder().
			WithStateDir(t.TempDir()).
			WithRestore(false, false).
			Build(),
		cloud: testutil.NewFakeDriver(),
		//nolint:staticcheck // SA1019: NewSimpleClientset is sufficient for our testing needs
		clientset: fake.NewSimpleClientset(),
		releaser:  testutil.NewFakeReleaser(),
		out:       &bytes.Buffer{},
	}
	f.objects = objectstore.NewMemory(f.cfg.BucketName(), true)
	f.cloud.Outputs = func(r provisioning.ManagedResource) map[string]string {
		switch r.Type {
		case gcp.TypeStaticIP:
			return map[string]string{gcp.OutputAddress: "34.120.0.9"}
		case gcp.TypeCluster:
			return map[string]string{
				gcp.OutputEndpoint:      "10.0.0.2",
				gcp.OutputCACertificate: base64.StdEncoding.EncodeToString([]byte("-----BEGIN CERTIFICATE-----")),
			}
		}
		return nil
	}

	origLoad, origFind, origLogger, origCloud := loadConfig, findConfig, newLogger, newCloud
	origConnect, origInteractive, origOutput := connectCluster, isInteractive, output
	origConfirm, origSnapshotter, origRestore := confirm, newSnapshotter, runRestore
	t.Cleanup(func() {
		loadConfig, findConfig, newLogger, newCloud = origLoad, origFind, origLogger, origCloud
		connectCluster, isInteractive, output = origConnect, origInteractive, origOutput
		confirm, newSnapshotter, runRestore = origConfirm, origSnapshotter, origRestore
	})

	findConfig = func() (string, error) { return "", config.ErrConfigNotFound }
	loadConfig = func(string) (*config.Config, error) { return f.cfg, nil }
	newLogger = func(logging.Options) (logr.Logger, func(), error) {
		return logr.Discard(), func() {}, nil
	}
	newCloud = func(context.Context, *config.Config) (*Cloud, error) {
		return &Cloud{
			Drivers: locate.Drivers{
				gcp.TypeService:        f.cloud,
				gcp.TypeStaticIP:       f.cloud,
				gcp.TypeCluster:        f.cloud,
				gcp.TypeNodePool:       f.cloud,
				objectstore.TypeBucket: f.cloud,
			},
			Objects: f.objects,
			Tokens: func(context.Context) (oauth2.TokenSource, error) {
				return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ya29.test"}), nil
			},
		}, nil
	}
	connectCluster = f.connect
	isInteractive = func() bool { return f.interactive }
	output = f.out
	newSnapshotter = func(objectstore.Store) backup.Snapshotter { return f.snapshot }
	return f
}

func (f *fixture) connect(*provisioning.Context, []byte) (*cluster.Connection, error) {
	ctrl := ctrlfake.NewClientBuilder().WithScheme(scheme.Scheme).Build()
	return &cluster.Connection{
		Kube:     k8s.NewClient(f.clientset, ctrl, nil),
		Releases: helm.NewReleaseDriver(f.releaser.Factory()),
	}, nil
}

func (f *fixture) snapshot(*provisioning.Context, *cluster.Connection) (*backup.Snapshot, error) {
	f.snapshots++
	return &backup.Snapshot{Key: "backups/snapshots/webui-20261017T083000Z.db", Size: 4096}, nil
}

func (f *fixture) records(t *testing.T) []provisioning.ResourceRecord {
	t.Helper()
	store, err := state.Open(f.cfg.StateDir, naming.StateDatabase())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	recs, err := store.ListResources(context.Background(), "")
	require.NoError(t, err)
	return recs
}

func TestPlan_ChangesNothing(t *testing.T) {
	f := newFixture(t)

	err := Apply(context.Background(), ApplyOptions{DryRun: true})
	require.NoError(t, err)

	out := f.out.String()
	assert.Contains(t, out, "Plan")
	assert.Contains(t, out, `create gke-cluster`)
	assert.NotContains(t, out, "Open WebUI is available")
	assert.Empty(t, f.cloud.Mutations("create"))
	assert.Empty(t, f.records(t))
}

func TestApply_DeploysAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, Apply(ctx, ApplyOptions{}))
	assert.Contains(t, f.out.String(), "Open WebUI is available at https://chat.example.com (ingress 34.120.0.9)")

	created := len(f.cloud.Mutations("create"))
	assert.NotZero(t, created)
	recs := f.records(t)
	assert.NotEmpty(t, recs)

	// The lock from the first run was released, and nothing is recreated.
	f.out.Reset()
	require.NoError(t, Apply(ctx, ApplyOptions{}))
	assert.Len(t, f.cloud.Mutations("create"), created)
	assert.Len(t, f.records(t), len(recs))
}

func TestApply_ValidatesFirst(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, Apply(context.Background(), ApplyOptions{DryRun: true}))
	out := f.out.String()
	require.Contains(t, out, "validation")
	assert.Less(t, strings.Index(out, "validation"), strings.Index(out, "preflight-backup"))
	assert.Contains(t, out, "restore is disabled")
}

func TestApply_WritesMetricsFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "webui-gke.prom")

	require.NoError(t, Apply(context.Background(), ApplyOptions{Options: Options{MetricsFile: path}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "webui_gke_last_run_timestamp_seconds")
	assert.Contains(t, string(data), "webui_gke_phase_total")
	assert.NotEmpty(t, f.cloud.Mutations("create"))
}

func TestApply_InvalidConfig(t *testing.T) {
	f := newFixture(t)
	f.cfg.ProjectID = ""

	err := Apply(context.Background(), ApplyOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, Status(ctx, Options{}))
	assert.Contains(t, f.out.String(), "not deployed")
	assert.Contains(t, f.out.String(), "no snapshot")

	require.NoError(t, Apply(ctx, ApplyOptions{}))
	require.NoError(t, f.objects.Put(ctx, naming.LatestSnapshot, []byte("sqlite"), nil))

	f.out.Reset()
	require.NoError(t, Status(ctx, Options{}))
	out := f.out.String()
	assert.Contains(t, out, "demo-project/open-webui-cluster")
	assert.Contains(t, out, "https://chat.example.com")
	assert.Contains(t, out, "protected")
	assert.Contains(t, out, naming.LatestSnapshot)
	assert.NotContains(t, out, "not deployed")
}

func TestDestroy_RefusesWithoutYesWhenNotInteractive(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, Apply(context.Background(), ApplyOptions{}))

	err := Destroy(context.Background(), DestroyOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to destroy")
	assert.Empty(t, f.cloud.Mutations("delete"))
}

func TestDestroy_Declined(t *testing.T) {
	f := newFixture(t)
	f.interactive = true
	var asked string
	confirm = func(_ context.Context, title, _ string) (bool, error) {
		asked = title
		return false, nil
	}

	err := Destroy(context.Background(), DestroyOptions{})
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, "Destroy open-webui-cluster?", asked)
}

func TestDestroy_KeepsProtectedResources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, Apply(ctx, ApplyOptions{}))

	require.NoError(t, Destroy(ctx, DestroyOptions{Yes: true}))

	assert.Equal(t, 1, f.snapshots)
	assert.NotEmpty(t, f.cloud.Mutations("delete"))
	for _, rec := range f.records(t) {
		assert.True(t, rec.Resource.Protected(), rec.Resource.String())
	}
	assert.Contains(t, f.out.String(), "destroy")
}

func TestDestroy_ValidatesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, Apply(ctx, ApplyOptions{}))

	f.out.Reset()
	require.NoError(t, Destroy(ctx, DestroyOptions{DryRun: true}))
	out := f.out.String()
	require.Contains(t, out, "validation")
	assert.Less(t, strings.Index(out, "validation"), strings.Index(out, "destroy"))
	assert.Empty(t, f.cloud.Mutations("delete"))
}

func TestDestroy_SkipBackup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, Apply(ctx, ApplyOptions{}))

	require.NoError(t, Destroy(ctx, DestroyOptions{Yes: true, SkipBackup: true}))
	assert.Zero(t, f.snapshots)
}

func TestListBackups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, ListBackups(ctx, Options{}))
	assert.Contains(t, f.out.String(), "No snapshots in "+f.cfg.BucketName())

	require.NoError(t, f.objects.Put(ctx, "backups/snapshots/webui-20261016T083000Z.db", []byte("one"), nil))
	require.NoError(t, f.objects.Put(ctx, "backups/snapshots/webui-20261017T083000Z.db", []byte("two!"), nil))

	f.out.Reset()
	require.NoError(t, ListBackups(ctx, Options{}))
	out := f.out.String()
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "webui-20261016T083000Z.db")
	assert.Contains(t, out, "webui-20261017T083000Z.db")
}

func TestRestore_ReportsOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, Apply(ctx, ApplyOptions{}))

	var got backup.RestoreOptions
	runRestore = func(_ *provisioning.Context, _ objectstore.Store, _ *cluster.Connection, opts backup.RestoreOptions) (*backup.RestoreResult, error) {
		got = opts
		return &backup.RestoreResult{
			Outcome:  backup.OutcomeRestored,
			Snapshot: &backup.Snapshot{Key: naming.LatestSnapshot, Size: 6},
		}, nil
	}

	require.NoError(t, Restore(ctx, RestoreOptions{Force: true}))
	assert.True(t, got.Force)
	assert.Contains(t, f.out.String(), "Restored "+naming.LatestSnapshot)
}
