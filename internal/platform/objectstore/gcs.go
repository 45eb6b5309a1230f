package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/imamik/webui-gke/internal/platform/gcp"
)

// GCSStore is a bucket behind the Cloud Storage JSON API.
type GCSStore struct {
	svc     *storage.Service
	project string
	bucket  string
}

// NewGCSStore creates a Store for bucket, billed to project.
func NewGCSStore(ctx context.Context, project, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{svc: svc, project: project, bucket: bucket}, nil
}

// Bucket implements Store.
func (g *GCSStore) Bucket() string { return g.bucket }

// GetBucket implements Store.
func (g *GCSStore) GetBucket(ctx context.Context) (*BucketInfo, error) {
	b, err := g.svc.Buckets.Get(g.bucket).Context(ctx).Do()
	if err != nil {
		if gcp.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bucket %s: %w", g.bucket, err)
	}

	info := &BucketInfo{Name: b.Name, Location: b.Location}
	if b.Versioning != nil {
		info.Versioning = b.Versioning.Enabled
	}
	if b.Lifecycle != nil {
		for _, rule := range b.Lifecycle.Rule {
			if rule.Action == nil || rule.Action.Type != "Delete" || rule.Condition == nil || rule.Condition.Age == nil {
				continue
			}
			info.RetentionDays = int(*rule.Condition.Age)
			if len(rule.Condition.MatchesPrefix) > 0 {
				info.LifecyclePrefix = rule.Condition.MatchesPrefix[0]
			}
			break
		}
	}
	return info, nil
}

// CreateBucket implements Store.
func (g *GCSStore) CreateBucket(ctx context.Context, spec BucketSpec) error {
	b := g.bucketResource(spec)
	b.Name = g.bucket
	b.Location = spec.Location
	b.IamConfiguration = &storage.BucketIamConfiguration{
		UniformBucketLevelAccess: &storage.BucketIamConfigurationUniformBucketLevelAccess{Enabled: true},
	}

	_, err := g.svc.Buckets.Insert(g.project, b).Context(ctx).Do()
	if err != nil {
		if gcp.IsConflict(err) {
			return g.ConfigureBucket(ctx, spec)
		}
		return fmt.Errorf("failed to create bucket %s: %w", g.bucket, err)
	}
	return nil
}

// ConfigureBucket implements Store.
func (g *GCSStore) ConfigureBucket(ctx context.Context, spec BucketSpec) error {
	patch := g.bucketResource(spec)
	if spec.RetentionDays <= 0 {
		patch.NullFields = append(patch.NullFields, "Lifecycle")
	}
	if _, err := g.svc.Buckets.Patch(g.bucket, patch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to configure bucket %s: %w", g.bucket, err)
	}
	return nil
}

func (g *GCSStore) bucketResource(spec BucketSpec) *storage.Bucket {
	b := &storage.Bucket{
		Versioning: &storage.BucketVersioning{Enabled: spec.Versioning, ForceSendFields: []string{"Enabled"}},
		Labels:     spec.Labels,
	}
	if spec.RetentionDays > 0 {
		age := int64(spec.RetentionDays)
		cond := &storage.BucketLifecycleRuleCondition{Age: &age}
		if spec.LifecyclePrefix != "" {
			cond.MatchesPrefix = []string{spec.LifecyclePrefix}
		}
		b.Lifecycle = &storage.BucketLifecycle{
			Rule: []*storage.BucketLifecycleRule{{
				Action:    &storage.BucketLifecycleRuleAction{Type: "Delete"},
				Condition: cond,
			}},
		}
	}
	return b
}

// DeleteBucket implements Store.
func (g *GCSStore) DeleteBucket(ctx context.Context) error {
	if err := g.svc.Buckets.Delete(g.bucket).Context(ctx).Do(); err != nil && !gcp.IsNotFound(err) {
		return fmt.Errorf("failed to delete bucket %s: %w", g.bucket, err)
	}
	return nil
}

// Put implements Store.
func (g *GCSStore) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	obj := &storage.Object{Name: key, Metadata: metadata}
	_, err := g.svc.Objects.Insert(g.bucket, obj).Media(bytes.NewReader(data)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to put object %s in bucket %s: %w", key, g.bucket, err)
	}
	return nil
}

// Get implements Store.
func (g *GCSStore) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	info, err := g.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	resp, err := g.svc.Objects.Get(g.bucket, key).Context(ctx).Download()
	if err != nil {
		if gcp.IsNotFound(err) {
			return nil, nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, g.bucket, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, info, nil
}

// Stat implements Store.
func (g *GCSStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	obj, err := g.svc.Objects.Get(g.bucket, key).Context(ctx).Do()
	if err != nil {
		if gcp.IsNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat object %s in bucket %s: %w", key, g.bucket, err)
	}
	return objectInfo(obj), nil
}

// List implements Store.
func (g *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	call := g.svc.Objects.List(g.bucket).Context(ctx)
	if prefix != "" {
		call = call.Prefix(prefix)
	}
	err := call.Pages(ctx, func(page *storage.Objects) error {
		for _, obj := range page.Items {
			out = append(out, *objectInfo(obj))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in bucket %s: %w", g.bucket, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete implements Store.
func (g *GCSStore) Delete(ctx context.Context, key string) error {
	err := g.svc.Objects.Delete(g.bucket, key).Context(ctx).Do()
	if err != nil && !gcp.IsNotFound(err) {
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", key, g.bucket, err)
	}
	return nil
}

func objectInfo(obj *storage.Object) *ObjectInfo {
	info := &ObjectInfo{Key: obj.Name, Size: int64(obj.Size), Metadata: obj.Metadata}
	if t, err := time.Parse(time.RFC3339, obj.Updated); err == nil {
		info.Updated = t
	}
	return info
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var _ Store = (*GCSStore)(nil)
