package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/webui-gke/internal/platform/k8s"
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/util/naming"
)

// Backup copies the database out of a running application pod and uploads
// it as a new rolling snapshot and as the latest snapshot. A missing pod or an
// empty database returns ErrNothingToBackup.
func (c *Coordinator) Backup(ctx context.Context) (*Snapshot, error) {
	if err := c.requireCluster(); err != nil {
		return nil, err
	}
	if err := c.begin(StateBackingUp); err != nil {
		return nil, err
	}
	defer c.finish(StateIdle)

	log := logr.FromContextOrDiscard(ctx).WithValues("namespace", c.target.Namespace)

	pod, err := c.cluster.RunningPod(ctx, c.target.Namespace, c.target.PodSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to find application pod: %w", err)
	}
	if pod == nil {
		return nil, fmt.Errorf("%w: no running pod matches %q", ErrNothingToBackup, c.target.PodSelector)
	}

	data, err := c.cluster.Exec(ctx, k8s.ExecRequest{
		Namespace: c.target.Namespace,
		Pod:       pod.Name,
		Container: c.target.Container,
		Command:   []string{"sh", "-c", fmt.Sprintf("test -f %q && cat %q || true", c.target.DatabasePath, c.target.DatabasePath)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read database from pod %s: %w", pod.Name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: database %s is empty or missing", ErrNothingToBackup, c.target.DatabasePath)
	}

	key, err := c.freeSnapshotKey(ctx, c.now())
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	snap := &Snapshot{
		Key:            key,
		Size:           int64(len(data)),
		SHA256:         hex.EncodeToString(sum[:]),
		RetentionClass: RetentionRolling,
	}
	snap.Timestamp, _ = naming.ParseSnapshotKey(snap.Key)

	meta := map[string]string{
		objectstore.MetaSize:   strconv.FormatInt(snap.Size, 10),
		objectstore.MetaSHA256: snap.SHA256,
		objectstore.MetaSource: pod.Name,
	}
	if err := c.store.Put(ctx, snap.Key, data, meta); err != nil {
		return nil, fmt.Errorf("failed to upload snapshot: %w", err)
	}
	if err := c.store.Put(ctx, naming.LatestSnapshot, data, meta); err != nil {
		return nil, fmt.Errorf("failed to update latest snapshot: %w", err)
	}

	log.Info("Database backed up", "key", snap.Key, "bytes", snap.Size)
	return snap, nil
}

// freeSnapshotKey returns the snapshot key for ts, moved forward a
// millisecond at a time while a snapshot already holds it.
func (c *Coordinator) freeSnapshotKey(ctx context.Context, ts time.Time) (string, error) {
	for {
		key := naming.SnapshotKey(ts)
		_, err := c.store.Stat(ctx, key)
		if errors.Is(err, objectstore.ErrNotFound) {
			return key, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check snapshot key %s: %w", key, err)
		}
		ts = ts.Add(time.Millisecond)
	}
}

// List returns the rolling snapshots, oldest first.
func (c *Coordinator) List(ctx context.Context) ([]Snapshot, error) {
	objects, err := c.store.List(ctx, naming.SnapshotPrefix)
	if err != nil {
		return nil, err
	}

	snaps := make([]Snapshot, 0, len(objects))
	for _, obj := range objects {
		ts, ok := naming.ParseSnapshotKey(obj.Key)
		if !ok {
			continue
		}
		snaps = append(snaps, Snapshot{
			Key:            obj.Key,
			Timestamp:      ts,
			Size:           obj.Size,
			SHA256:         obj.Metadata[objectstore.MetaSHA256],
			RetentionClass: RetentionRolling,
		})
	}
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].Timestamp.Before(snaps[j].Timestamp) })
	return snaps, nil
}

// Latest describes the latest snapshot, or returns nil when none exists.
func (c *Coordinator) Latest(ctx context.Context) (*Snapshot, error) {
	info, err := c.store.Stat(ctx, naming.LatestSnapshot)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Key:            info.Key,
		Timestamp:      info.Updated,
		Size:           info.Size,
		SHA256:         info.Metadata[objectstore.MetaSHA256],
		RetentionClass: RetentionLatest,
	}, nil
}
