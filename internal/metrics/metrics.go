// Package metrics records provisioning runs as Prometheus metrics.
//
// A Recorder is fed through the provisioning.Observer interface and written
// out as a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/webui-gke/internal/provisioning"
)

const namespace = "webui_gke"

// Recorder holds the metrics of one run.
type Recorder struct {
	registry *prometheus.Registry

	actionsTotal  *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	phaseTotal    *prometheus.CounterVec
	backupBytes   prometheus.Gauge
	restoreTotal  *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Reconciler actions applied, by resource type, backing-store kind and action",
			},
			[]string{"type", "kind", "action"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of provisioning phases in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 500ms to ~17min
			},
			[]string{"phase"},
		),
		phaseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_total",
				Help:      "Provisioning phases run, by status",
			},
			[]string{"phase", "status"},
		),
		backupBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_bytes",
			Help:      "Size of the last uploaded database snapshot",
		}),
		restoreTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "restore_total",
				Help:      "Restore gate runs, by outcome",
			},
			[]string{"outcome"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished",
		}),
	}
	r.registry.MustRegister(r.actionsTotal, r.phaseDuration, r.phaseTotal, r.backupBytes, r.restoreTotal, r.lastRun)
	return r
}

// Registry returns the registry the metrics are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records one provisioning event. Events it does not know are ignored.
func (r *Recorder) Observe(e provisioning.Event) {
	switch e.Type {
	case provisioning.EventResourceAdopted, provisioning.EventResourceCreated,
		provisioning.EventResourceUpdated, provisioning.EventResourceDeleted:
		r.actionsTotal.WithLabelValues(e.Fields[provisioning.FieldType], e.Fields[provisioning.FieldKind], e.Fields[provisioning.FieldAction]).Inc()

	case provisioning.EventPhaseCompleted, provisioning.EventPhaseFailed:
		r.phaseTotal.WithLabelValues(e.Phase, e.Fields[provisioning.FieldStatus]).Inc()
		if d, err := time.ParseDuration(e.Fields[provisioning.FieldDuration]); err == nil {
			r.phaseDuration.WithLabelValues(e.Phase).Observe(d.Seconds())
		}

	case provisioning.EventBackupUploaded:
		if n, err := strconv.ParseInt(e.Fields[provisioning.FieldBytes], 10, 64); err == nil {
			r.backupBytes.Set(float64(n))
		}

	case provisioning.EventRestoreCompleted:
		r.restoreTotal.WithLabelValues(e.Fields[provisioning.FieldStatus]).Inc()
	}
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string, now time.Time) error {
	r.lastRun.Set(float64(now.Unix()))
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// Observer adapts a Recorder to provisioning.Observer.
type Observer struct {
	r *Recorder
}

// Observer returns an Observer feeding r. Combine it with a logging observer
// through provisioning.MultiObserver.
func (r *Recorder) Observer() provisioning.Observer {
	return Observer{r: r}
}

func (o Observer) Printf(string, ...interface{}) {}

func (o Observer) Event(e provisioning.Event) { o.r.Observe(e) }

func (o Observer) Progress(string, int, int) {}

func (o Observer) WithFields(map[string]string) provisioning.Observer { return o }
