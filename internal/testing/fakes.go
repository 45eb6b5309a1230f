package testing

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// MemoryStore is an in-memory provisioning.StateStore. Records keep their
// insertion order, which ListResources reports.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]provisioning.ResourceRecord
	order   []string
	targets map[string]provisioning.DeploymentTarget

	// FailGet makes GetResource fail for every key.
	FailGet error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]provisioning.ResourceRecord{},
		targets: map[string]provisioning.DeploymentTarget{},
	}
}

func (s *MemoryStore) GetResource(_ context.Context, key string) (*provisioning.ResourceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGet != nil {
		return nil, s.FailGet
	}
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) ListResources(_ context.Context, group string) ([]provisioning.ResourceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []provisioning.ResourceRecord
	for _, key := range s.order {
		rec := s.records[key]
		if group == "" || rec.Group == group {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) PutResource(_ context.Context, rec provisioning.ResourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.Resource.Key()
	if _, ok := s.records[key]; !ok {
		s.order = append(s.order, key)
	}
	rec.Resource.Descriptor = maps.Clone(rec.Resource.Descriptor)
	rec.Outputs = maps.Clone(rec.Outputs)
	rec.UpdatedAt = time.Now()
	s.records[key] = rec
	return nil
}

func (s *MemoryStore) DeleteResource(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return nil
	}
	delete(s.records, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) GetTarget(_ context.Context, environment string) (*provisioning.DeploymentTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[environment]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *MemoryStore) PutTarget(_ context.Context, t provisioning.DeploymentTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.targets[t.Environment]; ok {
		t.CreatedAt = prev.CreatedAt
	} else {
		t.CreatedAt = time.Now()
	}
	t.UpdatedAt = time.Now()
	s.targets[t.Environment] = t
	return nil
}

// Keys returns the keys of all records, sorted.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Call is one mutating call seen by a FakeDriver.
type Call struct {
	Op  string // create, update, delete
	Key string
}

// FakeDriver is a map-backed provisioning.Driver. Objects holds what "exists"
// in the backing store, keyed by Ref.Key().
type FakeDriver struct {
	mu      sync.Mutex
	Objects map[string]*provisioning.Observation
	Calls   []Call

	// LookupErr, when set for a key, is returned by Lookup that many times
	// (see LookupFailures) before lookups succeed.
	LookupErr      map[string]error
	LookupFailures map[string]int
	// FailOn makes the given op fail for a key, e.g. FailOn["create:<key>"].
	FailOn map[string]error
	// Retryable classifies lookup errors. Nil treats every error as retryable.
	Retryable func(error) bool
	// Outputs are merged into every observation the driver creates.
	Outputs func(r provisioning.ManagedResource) map[string]string

	seq int
}

// NewFakeDriver returns an empty driver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Objects:        map[string]*provisioning.Observation{},
		LookupErr:      map[string]error{},
		LookupFailures: map[string]int{},
		FailOn:         map[string]error{},
	}
}

// Seed makes r exist in the backing store as if created out of band.
func (d *FakeDriver) Seed(ref provisioning.Ref, descriptor, outputs map[string]string) *provisioning.Observation {
	d.mu.Lock()
	defer d.mu.Unlock()
	obs := &provisioning.Observation{
		Identity:   "external/" + ref.Key(),
		Descriptor: maps.Clone(descriptor),
		Outputs:    maps.Clone(outputs),
	}
	d.Objects[ref.Key()] = obs
	return obs
}

// Exists reports whether the backing store holds key.
func (d *FakeDriver) Exists(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.Objects[key]
	return ok
}

// Mutations returns the recorded calls of op, in order.
func (d *FakeDriver) Mutations(op string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var keys []string
	for _, c := range d.Calls {
		if c.Op == op {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

func (d *FakeDriver) Lookup(_ context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := ref.Key()
	if err := d.LookupErr[key]; err != nil {
		if d.LookupFailures[key] != 0 {
			d.LookupFailures[key]--
			return nil, err
		}
	}
	obs, ok := d.Objects[key]
	if !ok {
		return nil, nil
	}
	cp := *obs
	cp.Descriptor = maps.Clone(obs.Descriptor)
	cp.Outputs = maps.Clone(obs.Outputs)
	return &cp, nil
}

func (d *FakeDriver) Create(_ context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	return d.write("create", r)
}

func (d *FakeDriver) Update(_ context.Context, r provisioning.ManagedResource, _ *provisioning.Observation) (*provisioning.Observation, error) {
	return d.write("update", r)
}

func (d *FakeDriver) Delete(_ context.Context, r provisioning.ManagedResource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := r.Key()
	d.Calls = append(d.Calls, Call{Op: "delete", Key: key})
	if err := d.FailOn["delete:"+key]; err != nil {
		return err
	}
	delete(d.Objects, key)
	return nil
}

func (d *FakeDriver) IsRetryable(err error) bool {
	if d.Retryable == nil {
		return true
	}
	return d.Retryable(err)
}

func (d *FakeDriver) write(op string, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := r.Key()
	d.Calls = append(d.Calls, Call{Op: op, Key: key})
	if err := d.FailOn[op+":"+key]; err != nil {
		return nil, err
	}

	identity := r.Identity
	if prev, ok := d.Objects[key]; ok {
		identity = prev.Identity
	}
	if identity == "" {
		d.seq++
		identity = fmt.Sprintf("fake/%s/%d", key, d.seq)
	}

	var outputs map[string]string
	if prev, ok := d.Objects[key]; ok {
		outputs = maps.Clone(prev.Outputs)
	}
	if d.Outputs != nil {
		if outputs == nil {
			outputs = map[string]string{}
		}
		maps.Copy(outputs, d.Outputs(r))
	}

	obs := &provisioning.Observation{
		Identity:   identity,
		Descriptor: maps.Clone(r.Descriptor),
		Outputs:    outputs,
	}
	d.Objects[key] = obs
	cp := *obs
	return &cp, nil
}

var (
	_ provisioning.StateStore      = (*MemoryStore)(nil)
	_ provisioning.Driver          = (*FakeDriver)(nil)
	_ provisioning.RetryClassifier = (*FakeDriver)(nil)
)
