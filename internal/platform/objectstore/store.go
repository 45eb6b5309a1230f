// Package objectstore provides the bucket that holds certificate bundles and
// database snapshots.
//
// Two backends implement Store: the native Cloud Storage JSON API, and any
// S3-compatible endpoint (Cloud Storage interoperability with HMAC keys, or a
// third-party object store). Memory is an in-process Store for tests.
package objectstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get and Stat for a missing object.
var ErrNotFound = errors.New("object not found")

// Metadata keys written alongside snapshots.
const (
	MetaSize   = "size"
	MetaSHA256 = "sha256"
	MetaSource = "source"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key      string
	Size     int64
	Updated  time.Time
	Metadata map[string]string
}

// BucketSpec is the desired configuration of the bucket.
type BucketSpec struct {
	Location   string
	Versioning bool
	// Objects under LifecyclePrefix are deleted by the store once they are
	// older than RetentionDays. Zero disables the rule.
	LifecyclePrefix string
	RetentionDays   int
	Labels          map[string]string
}

// BucketInfo is the observed configuration of the bucket.
type BucketInfo struct {
	Name            string
	Location        string
	Versioning      bool
	LifecyclePrefix string
	RetentionDays   int
}

// Store is one bucket.
type Store interface {
	// Bucket is the bucket name.
	Bucket() string

	// GetBucket returns (nil, nil) when the bucket does not exist.
	GetBucket(ctx context.Context) (*BucketInfo, error)
	// CreateBucket creates the bucket and applies spec. An existing bucket
	// owned by the caller is not an error.
	CreateBucket(ctx context.Context, spec BucketSpec) error
	// ConfigureBucket applies versioning and the lifecycle rule to an existing bucket.
	ConfigureBucket(ctx context.Context, spec BucketSpec) error
	// DeleteBucket deletes an empty bucket.
	DeleteBucket(ctx context.Context) error

	Put(ctx context.Context, key string, data []byte, metadata map[string]string) error
	// Get returns the object body and its info, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error)
	// Stat returns the object info, or ErrNotFound.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	// List returns the objects under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
