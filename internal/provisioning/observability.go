package provisioning

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Logger is the minimal printf-style logging surface.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Observer defines the interface for structured observability during provisioning.
type Observer interface {
	Logger

	// Event emits a structured event
	Event(event Event)

	// Progress reports progress for a phase
	Progress(phase string, current, total int)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Phase name (e.g., "infrastructure", "restore")
	Message   string            // Human-readable message
	Resource  string            // Resource name/ID if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseWarning   EventType = "phase.warning"
	EventPhaseFailed    EventType = "phase.failed"

	EventResourceAdopted   EventType = "resource.adopted"
	EventResourceCreating  EventType = "resource.creating"
	EventResourceCreated   EventType = "resource.created"
	EventResourceUpdating  EventType = "resource.updating"
	EventResourceUpdated   EventType = "resource.updated"
	EventResourceExists    EventType = "resource.exists"
	EventResourceProtected EventType = "resource.protected"
	EventResourceFailed    EventType = "resource.failed"
	EventResourceDeleting  EventType = "resource.deleting"
	EventResourceDeleted   EventType = "resource.deleted"

	EventCertificateResolved EventType = "certificate.resolved"
	EventBackupUploaded      EventType = "backup.uploaded"
	EventRestoreCompleted    EventType = "restore.completed"

	EventProgress EventType = "progress"
)

// Field keys used on events.
const (
	FieldType     = "type"
	FieldKind     = "kind"
	FieldID       = "id"
	FieldAction   = "action"
	FieldStatus   = "status"
	FieldDuration = "duration"
	FieldSource   = "source"
	FieldBytes    = "bytes"
)

// LogObserver implements Observer on top of a logr.Logger.
type LogObserver struct {
	log           logr.Logger
	contextFields map[string]string
}

// NewLogObserver creates an observer writing to log.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{
		log:           log,
		contextFields: make(map[string]string),
	}
}

// Printf implements Logger.
func (o *LogObserver) Printf(format string, v ...interface{}) {
	o.log.Info(fmt.Sprintf(format, v...), o.keysAndValues(nil)...)
}

// Event implements Observer.
func (o *LogObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	kv := o.keysAndValues(event.Fields)
	kv = append(kv, "event", string(event.Type))
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}

	msg := event.Message
	if event.Phase != "" {
		msg = fmt.Sprintf("[%s] %s", event.Phase, event.Message)
	}

	switch event.Type {
	case EventPhaseFailed, EventResourceFailed:
		o.log.Error(nil, msg, kv...)
	case EventProgress:
		o.log.V(1).Info(msg, kv...)
	default:
		o.log.Info(msg, kv...)
	}
}

// Progress implements Observer.
func (o *LogObserver) Progress(phase string, current, total int) {
	msg := fmt.Sprintf("[%s] Progress: %d/%d", phase, current, total)
	if total > 0 {
		msg = fmt.Sprintf("%s (%d%%)", msg, (current*100)/total)
	}
	o.log.V(1).Info(msg, o.keysAndValues(nil)...)
}

// WithFields implements Observer.
func (o *LogObserver) WithFields(fields map[string]string) Observer {
	merged := make(map[string]string, len(o.contextFields)+len(fields))
	for k, v := range o.contextFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &LogObserver{log: o.log, contextFields: merged}
}

// keysAndValues flattens context fields and extra into sorted logr key/value pairs.
// Event fields win over context fields.
func (o *LogObserver) keysAndValues(extra map[string]string) []interface{} {
	merged := make(map[string]string, len(o.contextFields)+len(extra))
	for k, v := range o.contextFields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		kv = append(kv, k, merged[k])
	}
	return kv
}

// MultiObserver fans every call out to several observers.
type MultiObserver []Observer

func (m MultiObserver) Printf(format string, v ...interface{}) {
	for _, o := range m {
		o.Printf(format, v...)
	}
}

func (m MultiObserver) Event(event Event) {
	for _, o := range m {
		o.Event(event)
	}
}

func (m MultiObserver) Progress(phase string, current, total int) {
	for _, o := range m {
		o.Progress(phase, current, total)
	}
}

func (m MultiObserver) WithFields(fields map[string]string) Observer {
	out := make(MultiObserver, len(m))
	for i, o := range m {
		out[i] = o.WithFields(fields)
	}
	return out
}

// Helper functions for common events

// LogPhaseStart logs a phase start event.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{
		Type:    EventPhaseStarted,
		Phase:   phase,
		Message: "starting",
	})
}

// LogPhaseComplete logs a phase completion event.
func LogPhaseComplete(observer Observer, phase string, status PhaseStatus, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
		Fields: map[string]string{
			FieldStatus:   string(status),
			FieldDuration: duration.String(),
		},
	})
}

// LogPhaseFailed logs a phase failure event.
func LogPhaseFailed(observer Observer, phase string, err error, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseFailed,
		Phase:   phase,
		Message: fmt.Sprintf("failed: %v", err),
		Fields: map[string]string{
			FieldStatus:   string(StatusFailed),
			FieldDuration: duration.String(),
		},
	})
}

// LogPhaseWarning logs a non-fatal problem within a phase.
func LogPhaseWarning(observer Observer, phase string, err error) {
	observer.Event(Event{
		Type:    EventPhaseWarning,
		Phase:   phase,
		Message: fmt.Sprintf("warning: %v", err),
	})
}

// LogAction logs a reconciler action once it has been applied.
func LogAction(observer Observer, phase string, a Action) {
	var t EventType
	var msg string
	switch a.Type {
	case ActionAdopt:
		t, msg = EventResourceAdopted, fmt.Sprintf("%s adopted", a.Ref.Type)
	case ActionCreate:
		t, msg = EventResourceCreated, fmt.Sprintf("%s created", a.Ref.Type)
	case ActionUpdate:
		t, msg = EventResourceUpdated, fmt.Sprintf("%s updated", a.Ref.Type)
	case ActionDestroy:
		t, msg = EventResourceDeleted, fmt.Sprintf("%s deleted", a.Ref.Type)
	default:
		t, msg = EventProgress, string(a.Type)
	}
	if a.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, a.Reason)
	}

	observer.Event(Event{
		Type:     t,
		Phase:    phase,
		Resource: a.Ref.Name,
		Message:  msg,
		Fields: map[string]string{
			FieldType:   a.Ref.Type,
			FieldKind:   string(a.Ref.Kind),
			FieldAction: string(a.Type),
			FieldID:     a.Identity,
		},
	})
}

// LogResourceExists logs when a resource already matches its desired state.
func LogResourceExists(observer Observer, phase string, ref Ref, identity string) {
	observer.Event(Event{
		Type:     EventResourceExists,
		Phase:    phase,
		Resource: ref.Name,
		Message:  fmt.Sprintf("%s already exists", ref.Type),
		Fields: map[string]string{
			FieldType: ref.Type,
			FieldKind: string(ref.Kind),
			FieldID:   identity,
		},
	})
}

// LogResourceProtected logs a persistent-protected resource left untouched.
func LogResourceProtected(observer Observer, phase string, ref Ref, reason string) {
	observer.Event(Event{
		Type:     EventResourceProtected,
		Phase:    phase,
		Resource: ref.Name,
		Message:  fmt.Sprintf("%s is persistent-protected, %s", ref.Type, reason),
		Fields: map[string]string{
			FieldType: ref.Type,
			FieldKind: string(ref.Kind),
		},
	})
}

// LogResourceStep logs the start of a mutating call on a resource.
func LogResourceStep(observer Observer, phase string, t EventType, ref Ref) {
	verb := strings.TrimPrefix(string(t), "resource.")
	observer.Event(Event{
		Type:     t,
		Phase:    phase,
		Resource: ref.Name,
		Message:  fmt.Sprintf("%s %s", verb, ref.Type),
		Fields: map[string]string{
			FieldType: ref.Type,
			FieldKind: string(ref.Kind),
		},
	})
}

// LogCertificateResolved logs where the domain's certificate came from.
func LogCertificateResolved(observer Observer, phase, domain, source string) {
	observer.Event(Event{
		Type:     EventCertificateResolved,
		Phase:    phase,
		Resource: domain,
		Message:  fmt.Sprintf("using %s certificate", source),
		Fields:   map[string]string{FieldSource: source},
	})
}

// LogBackupUploaded logs an uploaded database snapshot.
func LogBackupUploaded(observer Observer, phase, key string, size int64) {
	observer.Event(Event{
		Type:     EventBackupUploaded,
		Phase:    phase,
		Resource: key,
		Message:  fmt.Sprintf("snapshot uploaded (%d bytes)", size),
		Fields:   map[string]string{FieldBytes: strconv.FormatInt(size, 10)},
	})
}

// LogRestoreCompleted logs the outcome of the restore gate.
func LogRestoreCompleted(observer Observer, phase, outcome, message string) {
	observer.Event(Event{
		Type:    EventRestoreCompleted,
		Phase:   phase,
		Message: message,
		Fields:  map[string]string{FieldStatus: outcome},
	})
}
