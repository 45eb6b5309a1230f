package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/platform/k8s"
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/util/naming"
)

var testDB = append([]byte("SQLite format 3\x00"), []byte("chats and users")...)

// fakeCluster interprets the shell snippets the coordinator runs against an
// in-memory application pod and data volume.
type fakeCluster struct {
	mu sync.Mutex

	appDB      []byte
	noAppPod   bool
	replicas   int32
	noWorkload bool
	volume     map[string][]byte

	scaleCalls []int32
	helper     *corev1.Pod
	helpers    int
	deletes    int
	readyErr   error
	writeErr   error
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{replicas: 2, volume: map[string][]byte{}}
}

func (f *fakeCluster) RunningPod(_ context.Context, ns, _ string) (*corev1.Pod, error) {
	if f.noAppPod {
		return nil, nil
	}
	return &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "open-webui-0", Namespace: ns}}, nil
}

func (f *fakeCluster) Exec(_ context.Context, req k8s.ExecRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	script := req.Command[len(req.Command)-1]
	if req.Pod == "open-webui-0" {
		return append([]byte(nil), f.appDB...), nil
	}
	if f.helper == nil || req.Pod != f.helper.Name {
		return nil, fmt.Errorf("pod %s not running", req.Pod)
	}

	switch {
	case strings.HasPrefix(script, "test -f"):
		if _, ok := f.volume[naming.InitMarker]; ok {
			return []byte("yes\n"), nil
		}
		return []byte("no\n"), nil
	case strings.HasPrefix(script, "date -u"):
		f.volume[naming.InitMarker] = []byte("2026-10-17T00:00:00Z")
		return nil, nil
	case strings.HasPrefix(script, "cat >"):
		if f.writeErr != nil {
			return nil, f.writeErr
		}
		data, err := io.ReadAll(req.Stdin)
		if err != nil {
			return nil, err
		}
		f.volume["webui.db"] = data
		return nil, nil
	case strings.HasPrefix(script, "sha256sum"):
		sum := sha256.Sum256(f.volume["webui.db"])
		return []byte(hex.EncodeToString(sum[:]) + "  /data/webui.db\n"), nil
	}
	return nil, fmt.Errorf("unexpected script %q", script)
}

func (f *fakeCluster) GetReplicas(context.Context, k8s.WorkloadRef) (int32, bool, error) {
	return f.replicas, !f.noWorkload, nil
}

func (f *fakeCluster) Scale(_ context.Context, _ k8s.WorkloadRef, replicas int32) error {
	f.scaleCalls = append(f.scaleCalls, replicas)
	return nil
}

func (f *fakeCluster) WaitForPodsGone(context.Context, string, string, time.Duration) error {
	return nil
}

func (f *fakeCluster) WaitForPodsReady(context.Context, string, string, time.Duration) error {
	return f.readyErr
}

func (f *fakeCluster) CreatePod(_ context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	f.helper = pod
	f.helpers++
	return pod, nil
}

func (f *fakeCluster) WaitForPodRunning(context.Context, string, string, time.Duration) error {
	return nil
}

func (f *fakeCluster) DeletePod(context.Context, string, string) error {
	f.helper = nil
	f.deletes++
	return nil
}

func (f *fakeCluster) WaitForPodDeleted(context.Context, string, string, time.Duration) error {
	return nil
}

func testTarget() Target {
	return Target{
		Namespace:    "open-webui",
		PodSelector:  "app.kubernetes.io/name=open-webui",
		Container:    "open-webui",
		DatabasePath: "/app/backend/data/webui.db",
		Workload:     k8s.WorkloadRef{Namespace: "open-webui", Kind: k8s.KindStatefulSet, Name: "open-webui"},
		VolumeClaim:  "open-webui-data",
		HelperPod:    "open-webui-restore",
		HelperImage:  "busybox:1.36",
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)
}

func newTestCoordinator(store objectstore.Store, cluster Cluster) *Coordinator {
	return New(store, cluster, testTarget(), config.LoadTimeouts(), WithClock(fixedClock))
}

func TestTargetFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.App.Release = "chat"

	target := TargetFromConfig(cfg)
	assert.Equal(t, "chat-restore", target.HelperPod)
	assert.Equal(t, cfg.App.Namespace, target.Workload.Namespace)
	assert.Equal(t, cfg.Restore.HelperImage, target.HelperImage)
}

func TestBackup_UploadsRollingAndLatest(t *testing.T) {
	store := objectstore.NewMemory("webui-backups", true)
	cluster := newFakeCluster()
	cluster.appDB = testDB
	c := newTestCoordinator(store, cluster)

	snap, err := c.Backup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, naming.SnapshotKey(fixedClock()), snap.Key)
	assert.Equal(t, int64(len(testDB)), snap.Size)
	assert.Equal(t, RetentionRolling, snap.RetentionClass)
	assert.Equal(t, StateIdle, c.State())

	rolling, info, err := store.Get(context.Background(), snap.Key)
	require.NoError(t, err)
	assert.Equal(t, testDB, rolling)
	assert.Equal(t, snap.SHA256, info.Metadata[objectstore.MetaSHA256])
	assert.Equal(t, "open-webui-0", info.Metadata[objectstore.MetaSource])

	latest, err := c.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, snap.SHA256, latest.SHA256)
	assert.Equal(t, RetentionLatest, latest.RetentionClass)
}

func TestBackup_NothingToBackup(t *testing.T) {
	store := objectstore.NewMemory("webui-backups", true)

	t.Run("no pod", func(t *testing.T) {
		cluster := newFakeCluster()
		cluster.noAppPod = true
		_, err := newTestCoordinator(store, cluster).Backup(context.Background())
		assert.ErrorIs(t, err, ErrNothingToBackup)
	})

	t.Run("empty database", func(t *testing.T) {
		_, err := newTestCoordinator(store, newFakeCluster()).Backup(context.Background())
		assert.ErrorIs(t, err, ErrNothingToBackup)
	})

	objects, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestBackup_UploadFailure(t *testing.T) {
	store := objectstore.NewMemory("webui-backups", true)
	store.FailPut = errors.New("quota exceeded")
	cluster := newFakeCluster()
	cluster.appDB = testDB

	c := newTestCoordinator(store, cluster)
	_, err := c.Backup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, StateIdle, c.State())
}

func TestBackup_RequiresCluster(t *testing.T) {
	c := newTestCoordinator(objectstore.NewMemory("webui-backups", true), nil)
	_, err := c.Backup(context.Background())
	assert.Error(t, err)
}

func TestCoordinator_Busy(t *testing.T) {
	c := newTestCoordinator(objectstore.NewMemory("webui-backups", true), newFakeCluster())
	require.NoError(t, c.begin(StateRestoring))

	_, err := c.Backup(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = c.Restore(context.Background(), RestoreOptions{})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestBackup_SameInstantKeepsBothSnapshots(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("webui-backups", true)
	cluster := newFakeCluster()
	cluster.appDB = testDB
	c := newTestCoordinator(store, cluster)

	first, err := c.Backup(ctx)
	require.NoError(t, err)
	cluster.appDB = []byte("SQLite format 3\x00second")
	second, err := c.Backup(ctx)
	require.NoError(t, err)

	assert.Equal(t, naming.SnapshotKey(fixedClock()), first.Key)
	assert.Equal(t, naming.SnapshotKey(fixedClock().Add(time.Millisecond)), second.Key)

	kept, _, err := store.Get(ctx, first.Key)
	require.NoError(t, err)
	assert.Equal(t, testDB, kept)

	snaps, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, first.Key, snaps[0].Key)
	assert.Equal(t, second.Key, snaps[1].Key)
}

func TestList_OldestFirstSkipsForeignKeys(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("webui-backups", true)
	newer := naming.SnapshotKey(fixedClock())
	older := naming.SnapshotKey(fixedClock().Add(-24 * time.Hour))
	require.NoError(t, store.Put(ctx, newer, testDB, map[string]string{objectstore.MetaSHA256: "b"}))
	require.NoError(t, store.Put(ctx, older, testDB, map[string]string{objectstore.MetaSHA256: "a"}))
	require.NoError(t, store.Put(ctx, naming.SnapshotPrefix+"notes.txt", []byte("x"), nil))

	snaps, err := newTestCoordinator(store, nil).List(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, older, snaps[0].Key)
	assert.Equal(t, "a", snaps[0].SHA256)
	assert.Equal(t, newer, snaps[1].Key)
}

func TestLatest_None(t *testing.T) {
	latest, err := newTestCoordinator(objectstore.NewMemory("webui-backups", true), nil).Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("webui-backups", true)
	source := newFakeCluster()
	source.appDB = testDB
	_, err := newTestCoordinator(store, source).Backup(ctx)
	require.NoError(t, err)

	fresh := newFakeCluster()
	c := newTestCoordinator(store, fresh)
	res, err := c.Restore(ctx, RestoreOptions{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeRestored, res.Outcome)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, testDB, fresh.volume["webui.db"])
	assert.Contains(t, fresh.volume, naming.InitMarker)
	assert.Equal(t, []int32{0, 2}, fresh.scaleCalls)
	assert.Nil(t, fresh.helper, "helper pod removed")
	assert.Equal(t, 1, fresh.helpers)
	assert.Equal(t, StateReady, c.State())
	assert.Empty(t, res.Warnings)
}

func TestRestore_HelperPodMountsVolume(t *testing.T) {
	c := newTestCoordinator(objectstore.NewMemory("webui-backups", true), newFakeCluster())
	pod := c.helperPod()

	require.Len(t, pod.Spec.Volumes, 1)
	assert.Equal(t, "open-webui-data", pod.Spec.Volumes[0].PersistentVolumeClaim.ClaimName)
	assert.Equal(t, naming.RestoreMountPath, pod.Spec.Containers[0].VolumeMounts[0].MountPath)
	assert.Equal(t, corev1.RestartPolicyNever, pod.Spec.RestartPolicy)
	assert.Equal(t, "busybox:1.36", pod.Spec.Containers[0].Image)
}

func TestRestore_ColdStart(t *testing.T) {
	cluster := newFakeCluster()
	c := newTestCoordinator(objectstore.NewMemory("webui-backups", true), cluster)

	res, err := c.Restore(context.Background(), RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeColdStart, res.Outcome)
	assert.ErrorIs(t, res.Err, provisioning.ErrRestoreDataMissing)
	assert.Contains(t, cluster.volume, naming.InitMarker, "later runs skip")
	assert.NotContains(t, cluster.volume, "webui.db")
	assert.Equal(t, []int32{0, 2}, cluster.scaleCalls)
	assert.Equal(t, StateReady, c.State())
}

func TestRestore_SkipsInitialisedVolume(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("webui-backups", true)
	require.NoError(t, store.Put(ctx, naming.LatestSnapshot, testDB, nil))

	cluster := newFakeCluster()
	cluster.volume[naming.InitMarker] = []byte("earlier")
	cluster.volume["webui.db"] = []byte("SQLite format 3\x00live data")

	res, err := newTestCoordinator(store, cluster).Restore(ctx, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, []byte("SQLite format 3\x00live data"), cluster.volume["webui.db"])
	assert.Equal(t, []int32{0, 2}, cluster.scaleCalls)
}

func TestRestore_ForceOverwritesInitialisedVolume(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("webui-backups", true)
	require.NoError(t, store.Put(ctx, naming.LatestSnapshot, testDB, nil))

	cluster := newFakeCluster()
	cluster.volume[naming.InitMarker] = []byte("earlier")
	cluster.volume["webui.db"] = []byte("stale")

	res, err := newTestCoordinator(store, cluster).Restore(ctx, RestoreOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestored, res.Outcome)
	assert.Equal(t, testDB, cluster.volume["webui.db"])
}

func TestRestore_CorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("webui-backups", true)
	source := newFakeCluster()
	source.appDB = testDB
	_, err := newTestCoordinator(store, source).Backup(ctx)
	require.NoError(t, err)
	store.Corrupt(naming.LatestSnapshot, []byte("SQLite format 3\x00tampered!!!!!!"))

	t.Run("warns and starts the application", func(t *testing.T) {
		cluster := newFakeCluster()
		c := newTestCoordinator(store, cluster)

		res, err := c.Restore(ctx, RestoreOptions{})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		var snapErr *SnapshotError
		require.ErrorAs(t, res.Err, &snapErr)
		require.Len(t, res.Warnings, 1)
		assert.NotContains(t, cluster.volume, naming.InitMarker, "retried on the next run")
		assert.NotContains(t, cluster.volume, "webui.db")
		assert.Equal(t, []int32{0, 2}, cluster.scaleCalls)
		assert.Equal(t, StateRestoreFailed, c.State())
	})

	t.Run("blocks", func(t *testing.T) {
		cluster := newFakeCluster()
		res, err := newTestCoordinator(store, cluster).Restore(ctx, RestoreOptions{BlockOnFailure: true})
		require.Error(t, err)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Equal(t, []int32{0}, cluster.scaleCalls, "application stays down")
		assert.Nil(t, cluster.helper)
	})
}

func TestRestore_NotADatabase(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("webui-backups", true)
	require.NoError(t, store.Put(ctx, naming.LatestSnapshot, []byte("<html>oops</html>"), nil))

	res, err := newTestCoordinator(store, newFakeCluster()).Restore(ctx, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Err.Error(), "not an SQLite database")
}

func TestRestore_WriteFailure(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("webui-backups", true)
	require.NoError(t, store.Put(ctx, naming.LatestSnapshot, testDB, nil))

	cluster := newFakeCluster()
	cluster.writeErr = errors.New("no space left on device")

	res, err := newTestCoordinator(store, cluster).Restore(ctx, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.NotContains(t, cluster.volume, naming.InitMarker)
	assert.Equal(t, []int32{0, 2}, cluster.scaleCalls)
}

func TestRestore_NotReadyIsWarning(t *testing.T) {
	cluster := newFakeCluster()
	cluster.readyErr = errors.New("timed out")

	res, err := newTestCoordinator(objectstore.NewMemory("webui-backups", true), cluster).Restore(context.Background(), RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeColdStart, res.Outcome)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Error(), "not ready")
}

func TestRestore_ScaledToZeroComesBackWithOne(t *testing.T) {
	cluster := newFakeCluster()
	cluster.replicas = 0

	_, err := newTestCoordinator(objectstore.NewMemory("webui-backups", true), cluster).Restore(context.Background(), RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1}, cluster.scaleCalls)
}

func TestRestore_MissingWorkload(t *testing.T) {
	cluster := newFakeCluster()
	cluster.noWorkload = true

	c := newTestCoordinator(objectstore.NewMemory("webui-backups", true), cluster)
	_, err := c.Restore(context.Background(), RestoreOptions{})
	require.Error(t, err)
	assert.Empty(t, cluster.scaleCalls)
	assert.Equal(t, StateRestoreFailed, c.State())
}
