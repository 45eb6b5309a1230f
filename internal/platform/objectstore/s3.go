package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const lifecycleRuleID = "expire-snapshots"

// S3Store is a bucket behind an S3-compatible API, such as Cloud Storage
// interoperability with HMAC keys.
type S3Store struct {
	s3     *s3.Client
	bucket string
	region string
}

// NewS3Store creates a Store for bucket at endpoint. Cloud Storage accepts
// region "auto".
func NewS3Store(endpoint, region, accessKey, secretKey, bucket string) (*S3Store, error) {
	if region == "" {
		region = "auto"
	}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{s3: client, bucket: bucket, region: region}, nil
}

// Bucket implements Store.
func (c *S3Store) Bucket() string { return c.bucket }

// GetBucket implements Store.
func (c *S3Store) GetBucket(ctx context.Context) (*BucketInfo, error) {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check bucket %s: %w", c.bucket, err)
	}

	info := &BucketInfo{Name: c.bucket}

	versioning, err := c.s3.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return nil, fmt.Errorf("failed to read versioning of bucket %s: %w", c.bucket, err)
	}
	info.Versioning = versioning.Status == types.BucketVersioningStatusEnabled

	lifecycle, err := c.s3.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{Bucket: aws.String(c.bucket)})
	switch {
	case err == nil:
		for _, rule := range lifecycle.Rules {
			if rule.Status != types.ExpirationStatusEnabled || rule.Expiration == nil || rule.Expiration.Days == nil {
				continue
			}
			info.RetentionDays = int(*rule.Expiration.Days)
			if rule.Filter != nil && rule.Filter.Prefix != nil {
				info.LifecyclePrefix = *rule.Filter.Prefix
			}
			break
		}
	case hasErrorCode(err, "NoSuchLifecycleConfiguration"):
	default:
		return nil, fmt.Errorf("failed to read lifecycle of bucket %s: %w", c.bucket, err)
	}

	return info, nil
}

// CreateBucket implements Store.
// Returns nil if the bucket already exists and is owned by us.
func (c *S3Store) CreateBucket(ctx context.Context, spec BucketSpec) error {
	_, err := c.s3.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil && !isBucketAlreadyOwnedByYou(err) {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return c.ConfigureBucket(ctx, spec)
}

// ConfigureBucket implements Store.
func (c *S3Store) ConfigureBucket(ctx context.Context, spec BucketSpec) error {
	status := types.BucketVersioningStatusSuspended
	if spec.Versioning {
		status = types.BucketVersioningStatusEnabled
	}
	_, err := c.s3.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket:                  aws.String(c.bucket),
		VersioningConfiguration: &types.VersioningConfiguration{Status: status},
	})
	if err != nil {
		return fmt.Errorf("failed to set versioning on bucket %s: %w", c.bucket, err)
	}

	if spec.RetentionDays <= 0 {
		_, err := c.s3.DeleteBucketLifecycle(ctx, &s3.DeleteBucketLifecycleInput{Bucket: aws.String(c.bucket)})
		if err != nil && !hasErrorCode(err, "NoSuchLifecycleConfiguration") {
			return fmt.Errorf("failed to clear lifecycle on bucket %s: %w", c.bucket, err)
		}
		return nil
	}

	_, err = c.s3.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(c.bucket),
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{
			Rules: []types.LifecycleRule{{
				ID:         aws.String(lifecycleRuleID),
				Status:     types.ExpirationStatusEnabled,
				Filter:     &types.LifecycleRuleFilter{Prefix: aws.String(spec.LifecyclePrefix)},
				Expiration: &types.LifecycleExpiration{Days: aws.Int32(int32(spec.RetentionDays))},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set lifecycle on bucket %s: %w", c.bucket, err)
	}
	return nil
}

// DeleteBucket implements Store. The bucket must be empty.
func (c *S3Store) DeleteBucket(ctx context.Context) error {
	_, err := c.s3.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Put implements Store.
func (c *S3Store) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s in bucket %s: %w", key, c.bucket, err)
	}
	return nil
}

// Get implements Store.
func (c *S3Store) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	result, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, c.bucket, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, nil, fmt.Errorf("failed to read object body: %w", err)
	}

	info := &ObjectInfo{Key: key, Size: int64(buf.Len()), Metadata: result.Metadata}
	if result.ContentLength != nil {
		info.Size = *result.ContentLength
	}
	if result.LastModified != nil {
		info.Updated = *result.LastModified
	}
	return buf.Bytes(), info, nil
}

// Stat implements Store.
func (c *S3Store) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	result, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat object %s in bucket %s: %w", key, c.bucket, err)
	}

	info := &ObjectInfo{Key: key, Metadata: result.Metadata}
	if result.ContentLength != nil {
		info.Size = *result.ContentLength
	}
	if result.LastModified != nil {
		info.Updated = *result.LastModified
	}
	return info, nil
}

// List implements Store.
func (c *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var out []ObjectInfo
	pages := s3.NewListObjectsV2Paginator(c.s3, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %s: %w", c.bucket, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			info := ObjectInfo{Key: *obj.Key}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.Updated = *obj.LastModified
			}
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete implements Store.
func (c *S3Store) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", key, c.bucket, err)
	}
	return nil
}

// isBucketAlreadyOwnedByYou checks if the error indicates the bucket exists and is owned by us.
func isBucketAlreadyOwnedByYou(err error) bool {
	if err == nil {
		return false
	}

	// Check for typed S3 errors first
	var baoby *types.BucketAlreadyOwnedByYou
	if errors.As(err, &baoby) {
		return true
	}

	// Fall back to API error code checking for S3-compatible services
	// that may not return the exact SDK error types
	return hasErrorCode(err, "BucketAlreadyOwnedByYou")
}

// isNotFoundError checks if the error is a not found error.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	// Check for typed S3 errors first
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	return hasErrorCode(err, "NotFound", "NoSuchBucket", "NoSuchKey", "404")
}

func hasErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}

var _ Store = (*S3Store)(nil)
