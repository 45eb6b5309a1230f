package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// MockDriver is a testify mock of provisioning.Driver for tests that assert
// exact call sequences.
type MockDriver struct {
	mock.Mock
}

// Lookup returns the mocked observation.
func (m *MockDriver) Lookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provisioning.Observation), args.Error(1)
}

// Create returns the mocked observation.
func (m *MockDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provisioning.Observation), args.Error(1)
}

// Update returns the mocked observation.
func (m *MockDriver) Update(ctx context.Context, r provisioning.ManagedResource, current *provisioning.Observation) (*provisioning.Observation, error) {
	args := m.Called(ctx, r, current)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provisioning.Observation), args.Error(1)
}

// Delete returns the mocked error.
func (m *MockDriver) Delete(ctx context.Context, r provisioning.ManagedResource) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// RecordingObserver keeps every event and log line for assertions.
type RecordingObserver struct {
	mu     *sync.Mutex
	events *[]provisioning.Event
	lines  *[]string
	fields map[string]string
}

// NewRecordingObserver returns an empty recorder.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{
		mu:     &sync.Mutex{},
		events: &[]provisioning.Event{},
		lines:  &[]string{},
	}
}

func (o *RecordingObserver) Printf(format string, v ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	*o.lines = append(*o.lines, fmt.Sprintf(format, v...))
}

func (o *RecordingObserver) Event(e provisioning.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.fields) > 0 {
		merged := make(map[string]string, len(o.fields)+len(e.Fields))
		for k, v := range o.fields {
			merged[k] = v
		}
		for k, v := range e.Fields {
			merged[k] = v
		}
		e.Fields = merged
	}
	*o.events = append(*o.events, e)
}

func (o *RecordingObserver) Progress(phase string, current, total int) {
	o.Event(provisioning.Event{
		Type:    provisioning.EventProgress,
		Phase:   phase,
		Message: fmt.Sprintf("%d/%d", current, total),
	})
}

// WithFields returns an observer sharing this recorder's event log.
func (o *RecordingObserver) WithFields(fields map[string]string) provisioning.Observer {
	merged := make(map[string]string, len(o.fields)+len(fields))
	for k, v := range o.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &RecordingObserver{mu: o.mu, events: o.events, lines: o.lines, fields: merged}
}

// Events returns a copy of the recorded events.
func (o *RecordingObserver) Events() []provisioning.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]provisioning.Event(nil), *o.events...)
}

// EventsOfType returns the recorded events of type t.
func (o *RecordingObserver) EventsOfType(t provisioning.EventType) []provisioning.Event {
	var out []provisioning.Event
	for _, e := range o.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Lines returns a copy of the Printf output.
func (o *RecordingObserver) Lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), *o.lines...)
}

var (
	_ provisioning.Driver   = (*MockDriver)(nil)
	_ provisioning.Observer = (*RecordingObserver)(nil)
)
