// Package backup snapshots the application's SQLite database into the bucket
// and restores the latest snapshot into a fresh data volume before the
// application first starts.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/platform/k8s"
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/util/naming"
)

// ErrNothingToBackup means there was no running application or no database
// to snapshot. Callers treat it as a warning.
var ErrNothingToBackup = errors.New("nothing to back up")

// ErrBusy means another backup or restore is in progress on this coordinator.
var ErrBusy = errors.New("backup coordinator is busy")

// State is the coordinator's lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateBackingUp     State = "backing-up"
	StateRestoring     State = "restoring"
	StateReady         State = "ready"
	StateRestoreFailed State = "restore-failed"
)

// RetentionClass tells rolling snapshots from the "latest" pointer.
type RetentionClass string

const (
	RetentionRolling RetentionClass = "rolling"
	RetentionLatest  RetentionClass = "latest"
)

// Snapshot is one stored copy of the database.
type Snapshot struct {
	Key            string
	Timestamp      time.Time
	Size           int64
	SHA256         string
	RetentionClass RetentionClass
}

// Cluster is the subset of the Kubernetes client the coordinator uses.
type Cluster interface {
	RunningPod(ctx context.Context, namespace, labelSelector string) (*corev1.Pod, error)
	Exec(ctx context.Context, req k8s.ExecRequest) ([]byte, error)
	GetReplicas(ctx context.Context, w k8s.WorkloadRef) (int32, bool, error)
	Scale(ctx context.Context, w k8s.WorkloadRef, replicas int32) error
	WaitForPodsGone(ctx context.Context, namespace, labelSelector string, timeout time.Duration) error
	WaitForPodsReady(ctx context.Context, namespace, labelSelector string, timeout time.Duration) error
	CreatePod(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error)
	WaitForPodRunning(ctx context.Context, namespace, name string, timeout time.Duration) error
	DeletePod(ctx context.Context, namespace, name string) error
	WaitForPodDeleted(ctx context.Context, namespace, name string, timeout time.Duration) error
}

// Target locates the application and its data.
type Target struct {
	Namespace   string
	PodSelector string
	Container   string
	// DatabasePath is the database file inside the application container. It
	// lives at the root of the data volume.
	DatabasePath string
	Workload     k8s.WorkloadRef
	VolumeClaim  string
	HelperPod    string
	HelperImage  string
}

// TargetFromConfig derives the target from the application settings.
func TargetFromConfig(cfg *config.Config) Target {
	return Target{
		Namespace:    cfg.App.Namespace,
		PodSelector:  cfg.App.PodSelector,
		Container:    cfg.App.Container,
		DatabasePath: cfg.App.DatabasePath,
		Workload: k8s.WorkloadRef{
			Namespace: cfg.App.Namespace,
			Kind:      cfg.App.WorkloadKind,
			Name:      cfg.App.WorkloadName,
		},
		VolumeClaim: cfg.App.VolumeClaim,
		HelperPod:   naming.RestoreHelperPod(cfg.App.Release),
		HelperImage: cfg.Restore.HelperImage,
	}
}

// databaseFile is the database's name on the data volume.
func (t Target) databaseFile() string {
	return path.Base(t.DatabasePath)
}

// Coordinator runs backups and restores. One operation runs at a time.
type Coordinator struct {
	store    objectstore.Store
	cluster  Cluster
	target   Target
	timeouts *config.Timeouts
	now      func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time used to name snapshots.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates a Coordinator. cluster may be nil for List and Latest.
func New(store objectstore.Store, cluster Cluster, target Target, timeouts *config.Timeouts, opts ...Option) *Coordinator {
	if timeouts == nil {
		timeouts = config.LoadTimeouts()
	}
	c := &Coordinator{
		store:    store,
		cluster:  cluster,
		target:   target,
		timeouts: timeouts,
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// begin moves from a resting state to s.
func (c *Coordinator) begin(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateBackingUp || c.state == StateRestoring {
		return fmt.Errorf("%w: %s", ErrBusy, c.state)
	}
	c.state = s
	return nil
}

func (c *Coordinator) finish(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) requireCluster() error {
	if c.cluster == nil {
		return errors.New("no cluster access")
	}
	return nil
}
