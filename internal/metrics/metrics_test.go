package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/webui-gke/internal/provisioning"
)

func TestRecorder_CountsActions(t *testing.T) {
	r := NewRecorder()
	obs := r.Observer()

	ref := provisioning.Ref{Type: "static-ip", Name: "open-webui-ip", Kind: provisioning.KindCloud}
	for i := 0; i < 2; i++ {
		obs.Event(provisioning.Event{
			Type:  provisioning.EventResourceCreated,
			Phase: "infrastructure",
			Fields: map[string]string{
				provisioning.FieldType:   ref.Type,
				provisioning.FieldKind:   string(ref.Kind),
				provisioning.FieldAction: "create",
			},
		})
	}
	obs.Event(provisioning.Event{Type: provisioning.EventResourceExists, Phase: "infrastructure"})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.actionsTotal.WithLabelValues("static-ip", string(provisioning.KindCloud), "create")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.actionsTotal))
}

func TestRecorder_PhaseEvents(t *testing.T) {
	r := NewRecorder()

	r.Observe(provisioning.Event{
		Type:  provisioning.EventPhaseCompleted,
		Phase: "platform",
		Fields: map[string]string{
			provisioning.FieldStatus:   "success",
			provisioning.FieldDuration: (3 * time.Second).String(),
		},
	})
	r.Observe(provisioning.Event{
		Type:   provisioning.EventPhaseFailed,
		Phase:  "workload",
		Fields: map[string]string{provisioning.FieldStatus: "failed"},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.phaseTotal.WithLabelValues("platform", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.phaseTotal.WithLabelValues("workload", "failed")))
	// The failed phase carried no duration.
	assert.Equal(t, 1, testutil.CollectAndCount(r.phaseDuration))
}

func TestRecorder_BackupAndRestore(t *testing.T) {
	r := NewRecorder()

	provisioning.LogBackupUploaded(r.Observer(), "preflight-backup", "backups/latest.db", 4096)
	provisioning.LogRestoreCompleted(r.Observer(), "restore", "restored", "restored backups/latest.db")
	provisioning.LogRestoreCompleted(r.Observer(), "restore", "restored", "restored backups/latest.db")

	assert.Equal(t, 4096.0, testutil.ToFloat64(r.backupBytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.restoreTotal.WithLabelValues("restored")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	provisioning.LogBackupUploaded(r.Observer(), "backup", "backups/latest.db", 10)

	path := filepath.Join(t.TempDir(), "webui-gke.prom")
	now := time.Unix(1767225600, 0)
	require.NoError(t, r.WriteTextfile(path, now))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, "webui_gke_backup_bytes 10"), text)
	assert.True(t, strings.Contains(text, "webui_gke_last_run_timestamp_seconds 1.7672256e+09"), text)
}

func TestRecorder_WriteTextfileBadPath(t *testing.T) {
	r := NewRecorder()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write metrics")
}
