package objectstore

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	name    string
	bucket  *BucketInfo
	objects map[string]memObject
	now     func() time.Time

	// FailPut, when set, is returned by every Put.
	FailPut error
}

type memObject struct {
	data []byte
	info ObjectInfo
}

// NewMemory returns an in-memory store for bucket. The bucket exists when
// exists is true.
func NewMemory(bucket string, exists bool) *Memory {
	m := &Memory{name: bucket, objects: map[string]memObject{}, now: time.Now}
	if exists {
		m.bucket = &BucketInfo{Name: bucket}
	}
	return m
}

func (m *Memory) Bucket() string { return m.name }

func (m *Memory) GetBucket(context.Context) (*BucketInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bucket == nil {
		return nil, nil
	}
	b := *m.bucket
	return &b, nil
}

func (m *Memory) CreateBucket(ctx context.Context, spec BucketSpec) error {
	m.mu.Lock()
	if m.bucket == nil {
		m.bucket = &BucketInfo{Name: m.name}
	}
	m.mu.Unlock()
	return m.ConfigureBucket(ctx, spec)
}

func (m *Memory) ConfigureBucket(_ context.Context, spec BucketSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bucket == nil {
		return fmt.Errorf("bucket %s does not exist", m.name)
	}
	m.bucket.Location = spec.Location
	m.bucket.Versioning = spec.Versioning
	m.bucket.LifecyclePrefix = spec.LifecyclePrefix
	m.bucket.RetentionDays = spec.RetentionDays
	return nil
}

func (m *Memory) DeleteBucket(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.objects) > 0 {
		return fmt.Errorf("bucket %s is not empty", m.name)
	}
	m.bucket = nil
	return nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut != nil {
		return m.FailPut
	}
	if m.bucket == nil {
		return fmt.Errorf("bucket %s does not exist", m.name)
	}
	m.objects[key] = memObject{
		data: append([]byte(nil), data...),
		info: ObjectInfo{Key: key, Size: int64(len(data)), Updated: m.now(), Metadata: maps.Clone(metadata)},
	}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, *ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	info := obj.info
	return append([]byte(nil), obj.data...), &info, nil
}

func (m *Memory) Stat(_ context.Context, key string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	info := obj.info
	return &info, nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for k, obj := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Corrupt overwrites an object's body without touching its metadata.
func (m *Memory) Corrupt(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj := m.objects[key]
	obj.data = append([]byte(nil), data...)
	m.objects[key] = obj
}

var _ Store = (*Memory)(nil)
