package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/imamik/webui-gke/internal/platform/k8s"
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/util/labels"
	"github.com/imamik/webui-gke/internal/util/naming"
)

// sqliteHeader starts every SQLite 3 database file.
var sqliteHeader = []byte("SQLite format 3\x00")

// Outcome is how a restore ended.
type Outcome string

const (
	OutcomeRestored  Outcome = "restored"
	OutcomeColdStart Outcome = "cold-start"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// RestoreOptions tunes one restore.
type RestoreOptions struct {
	// Force restores even when the volume is already initialised.
	Force bool
	// BlockOnFailure keeps the application scaled down when the snapshot is
	// unusable, and makes that a fatal error.
	BlockOnFailure bool
}

// RestoreResult reports a restore.
type RestoreResult struct {
	Outcome  Outcome
	Snapshot *Snapshot
	// Err explains a cold start (ErrRestoreDataMissing) or a failed restore.
	Err error
	// Warnings are problems that did not stop the application from starting.
	Warnings []error
}

// SnapshotError is an unusable snapshot.
type SnapshotError struct {
	Key    string
	Reason string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s is unusable: %s", e.Key, e.Reason)
}

// Restore is the gate that runs before the application serves traffic. It
// scales the workload to zero, and restores the latest snapshot into the data
// volume unless the volume is already initialised. The workload is scaled back
// up afterwards, except when a failed restore blocks.
//
// Infrastructure failures (scaling, the helper pod) are returned as errors.
// A missing snapshot is OutcomeColdStart; an unusable one is OutcomeFailed.
func (c *Coordinator) Restore(ctx context.Context, opts RestoreOptions) (res *RestoreResult, err error) {
	if err := c.requireCluster(); err != nil {
		return nil, err
	}
	if err := c.begin(StateRestoring); err != nil {
		return nil, err
	}
	res = &RestoreResult{}
	defer func() {
		if err == nil && res.Outcome != OutcomeFailed {
			c.finish(StateReady)
		} else {
			c.finish(StateRestoreFailed)
		}
	}()

	log := logr.FromContextOrDiscard(ctx).WithValues("namespace", c.target.Namespace)
	w := c.target.Workload

	replicas, found, err := c.cluster.GetReplicas(ctx, w)
	if err != nil {
		return res, err
	}
	if !found {
		return res, fmt.Errorf("workload %s not found", w)
	}
	if replicas < 1 {
		replicas = 1
	}

	log.Info("Scaling application down for restore", "workload", w.String())
	if err := c.cluster.Scale(ctx, w, 0); err != nil {
		return res, err
	}
	if err := c.cluster.WaitForPodsGone(ctx, c.target.Namespace, c.target.PodSelector, c.timeouts.ScaleDown); err != nil {
		return res, err
	}

	scaleUp := true
	defer func() {
		if !scaleUp {
			return
		}
		if serr := c.cluster.Scale(ctx, w, replicas); serr != nil {
			if err == nil {
				err = serr
			}
			return
		}
		if werr := c.cluster.WaitForPodsReady(ctx, c.target.Namespace, c.target.PodSelector, c.timeouts.PodReady); werr != nil {
			res.Warnings = append(res.Warnings, fmt.Errorf("application not ready after restore: %w", werr))
		}
	}()

	if err := c.startHelper(ctx); err != nil {
		return res, err
	}
	defer func() {
		if derr := c.stopHelper(ctx); derr != nil {
			res.Warnings = append(res.Warnings, derr)
		}
	}()

	initialised, err := c.volumeInitialised(ctx)
	if err != nil {
		return res, err
	}
	if initialised && !opts.Force {
		log.Info("Data volume already initialised, skipping restore")
		res.Outcome = OutcomeSkipped
		return res, nil
	}

	data, snap, err := c.download(ctx)
	switch {
	case errors.Is(err, provisioning.ErrRestoreDataMissing):
		log.Info("No snapshot found, starting with an empty database")
		res.Outcome = OutcomeColdStart
		res.Err = err
		return res, c.markInitialised(ctx)
	case err != nil:
		var snapErr *SnapshotError
		if !errors.As(err, &snapErr) {
			return res, err
		}
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Snapshot = snap
		if opts.BlockOnFailure {
			scaleUp = false
			return res, err
		}
		res.Warnings = append(res.Warnings, err)
		return res, nil
	}
	res.Snapshot = snap

	if err := c.writeDatabase(ctx, data, snap); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		if opts.BlockOnFailure {
			scaleUp = false
			return res, err
		}
		res.Warnings = append(res.Warnings, err)
		return res, nil
	}
	if err := c.markInitialised(ctx); err != nil {
		return res, err
	}

	log.Info("Database restored", "bytes", snap.Size)
	res.Outcome = OutcomeRestored
	return res, nil
}

func (c *Coordinator) helperPod() *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      c.target.HelperPod,
			Namespace: c.target.Namespace,
			Labels: map[string]string{
				labels.KeyManagedBy: labels.ManagedBy,
				labels.KeyComponent: labels.ComponentRestore,
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:    "restore",
				Image:   c.target.HelperImage,
				Command: []string{"sh", "-c", "sleep 3600"},
				VolumeMounts: []corev1.VolumeMount{{
					Name:      "data",
					MountPath: naming.RestoreMountPath,
				}},
			}},
			Volumes: []corev1.Volume{{
				Name: "data",
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: c.target.VolumeClaim},
				},
			}},
		},
	}
}

// startHelper replaces any helper left behind by an interrupted run.
func (c *Coordinator) startHelper(ctx context.Context) error {
	if err := c.stopHelper(ctx); err != nil {
		return err
	}
	if _, err := c.cluster.CreatePod(ctx, c.helperPod()); err != nil {
		return err
	}
	return c.cluster.WaitForPodRunning(ctx, c.target.Namespace, c.target.HelperPod, c.timeouts.PodReady)
}

func (c *Coordinator) stopHelper(ctx context.Context) error {
	if err := c.cluster.DeletePod(ctx, c.target.Namespace, c.target.HelperPod); err != nil {
		return err
	}
	if err := c.cluster.WaitForPodDeleted(ctx, c.target.Namespace, c.target.HelperPod, c.timeouts.PodReady); err != nil {
		return fmt.Errorf("restore helper %s not deleted: %w", c.target.HelperPod, err)
	}
	return nil
}

func (c *Coordinator) helperExec(ctx context.Context, script string, stdin []byte) ([]byte, error) {
	req := k8s.ExecRequest{
		Namespace: c.target.Namespace,
		Pod:       c.target.HelperPod,
		Container: "restore",
		Command:   []string{"sh", "-c", script},
	}
	if stdin != nil {
		req.Stdin = bytes.NewReader(stdin)
	}
	return c.cluster.Exec(ctx, req)
}

func (c *Coordinator) volumePath(name string) string {
	return naming.RestoreMountPath + "/" + name
}

func (c *Coordinator) volumeInitialised(ctx context.Context) (bool, error) {
	out, err := c.helperExec(ctx, fmt.Sprintf("test -f %q && echo yes || echo no", c.volumePath(naming.InitMarker)), nil)
	if err != nil {
		return false, fmt.Errorf("failed to check initialisation marker: %w", err)
	}
	return strings.TrimSpace(string(out)) == "yes", nil
}

func (c *Coordinator) markInitialised(ctx context.Context) error {
	_, err := c.helperExec(ctx, fmt.Sprintf("date -u +%%Y-%%m-%%dT%%H:%%M:%%SZ > %q", c.volumePath(naming.InitMarker)), nil)
	if err != nil {
		return fmt.Errorf("failed to write initialisation marker: %w", err)
	}
	return nil
}

// download fetches and verifies the latest snapshot.
func (c *Coordinator) download(ctx context.Context) ([]byte, *Snapshot, error) {
	data, info, err := c.store.Get(ctx, naming.LatestSnapshot)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, nil, provisioning.ErrRestoreDataMissing
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download snapshot: %w", err)
	}

	sum := sha256.Sum256(data)
	snap := &Snapshot{
		Key:            naming.LatestSnapshot,
		Timestamp:      info.Updated,
		Size:           int64(len(data)),
		SHA256:         hex.EncodeToString(sum[:]),
		RetentionClass: RetentionLatest,
	}
	if err := verify(data, snap, info.Metadata); err != nil {
		return nil, snap, err
	}
	return data, snap, nil
}

func verify(data []byte, snap *Snapshot, meta map[string]string) error {
	unusable := func(format string, args ...interface{}) error {
		return &SnapshotError{Key: snap.Key, Reason: fmt.Sprintf(format, args...)}
	}
	if want, ok := meta[objectstore.MetaSize]; ok {
		size, err := strconv.ParseInt(want, 10, 64)
		if err != nil {
			return unusable("invalid size metadata %q", want)
		}
		if size != snap.Size {
			return unusable("size %d does not match recorded %d", snap.Size, size)
		}
	}
	if want, ok := meta[objectstore.MetaSHA256]; ok && want != snap.SHA256 {
		return unusable("sha256 %s does not match recorded %s", snap.SHA256, want)
	}
	if !bytes.HasPrefix(data, sqliteHeader) {
		return unusable("not an SQLite database")
	}
	return nil
}

// writeDatabase streams data to a temporary file and renames it over the
// database, then checks the written checksum.
func (c *Coordinator) writeDatabase(ctx context.Context, data []byte, snap *Snapshot) error {
	dst := c.volumePath(c.target.databaseFile())
	tmp := dst + ".restore"
	script := fmt.Sprintf("cat > %q && mv -f %q %q && rm -f %q-wal %q-shm", tmp, tmp, dst, dst, dst)
	if _, err := c.helperExec(ctx, script, data); err != nil {
		return fmt.Errorf("failed to write database: %w", err)
	}

	out, err := c.helperExec(ctx, fmt.Sprintf("sha256sum %q", dst), nil)
	if err != nil {
		return fmt.Errorf("failed to verify restored database: %w", err)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 || fields[0] != snap.SHA256 {
		return &SnapshotError{Key: snap.Key, Reason: "restored file checksum differs from snapshot"}
	}
	return nil
}
