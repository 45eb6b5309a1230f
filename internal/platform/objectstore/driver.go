package objectstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// TypeBucket is the resource type of the backup bucket.
const TypeBucket = "bucket"

// Descriptor keys.
const (
	DescLocation        = "location"
	DescVersioning      = "versioning"
	DescLifecyclePrefix = "lifecycle_prefix"
	DescRetentionDays   = "retention_days"
)

// Bucket returns the desired bucket. It holds certificate bundles and
// snapshots, so it is protected from teardown.
func Bucket(project, name string, spec BucketSpec) provisioning.ManagedResource {
	desc := map[string]string{
		DescVersioning:    strconv.FormatBool(spec.Versioning),
		DescRetentionDays: strconv.Itoa(spec.RetentionDays),
	}
	if spec.Location != "" {
		desc[DescLocation] = strings.ToUpper(spec.Location)
	}
	if spec.RetentionDays > 0 {
		desc[DescLifecyclePrefix] = spec.LifecyclePrefix
	}
	return provisioning.ManagedResource{
		Ref: provisioning.Ref{
			Kind:  provisioning.KindStorage,
			Type:  TypeBucket,
			Name:  name,
			Scope: provisioning.Scope{Project: project},
		},
		Descriptor: desc,
		Policy:     provisioning.PolicyProtected,
	}
}

// BucketDriver manages the one bucket behind a Store.
type BucketDriver struct {
	store  Store
	labels map[string]string
}

// NewBucketDriver returns a driver for store's bucket.
func NewBucketDriver(store Store, labels map[string]string) *BucketDriver {
	return &BucketDriver{store: store, labels: labels}
}

func (d *BucketDriver) check(name string) error {
	if name != d.store.Bucket() {
		return fmt.Errorf("bucket driver serves %s, not %s", d.store.Bucket(), name)
	}
	return nil
}

// Lookup implements provisioning.Driver.
func (d *BucketDriver) Lookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	if err := d.check(ref.Name); err != nil {
		return nil, err
	}
	info, err := d.store.GetBucket(ctx)
	if err != nil || info == nil {
		return nil, err
	}
	return bucketObservation(info), nil
}

// Create implements provisioning.Driver.
func (d *BucketDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	if err := d.check(r.Name); err != nil {
		return nil, err
	}
	if err := d.store.CreateBucket(ctx, d.spec(r)); err != nil {
		return nil, err
	}
	return d.mustLookup(ctx, r.Ref)
}

// Update implements provisioning.Driver. The location is fixed at creation.
func (d *BucketDriver) Update(ctx context.Context, r provisioning.ManagedResource, current *provisioning.Observation) (*provisioning.Observation, error) {
	if current != nil {
		if want, ok := r.Descriptor[DescLocation]; ok && current.Descriptor[DescLocation] != "" && current.Descriptor[DescLocation] != want {
			return nil, fmt.Errorf("bucket %s cannot move from %s to %s", r.Name, current.Descriptor[DescLocation], want)
		}
	}
	if err := d.store.ConfigureBucket(ctx, d.spec(r)); err != nil {
		return nil, err
	}
	return d.mustLookup(ctx, r.Ref)
}

// Delete implements provisioning.Driver. Only an empty bucket is removed.
func (d *BucketDriver) Delete(ctx context.Context, r provisioning.ManagedResource) error {
	if err := d.check(r.Name); err != nil {
		return err
	}
	return d.store.DeleteBucket(ctx)
}

func (d *BucketDriver) spec(r provisioning.ManagedResource) BucketSpec {
	days, _ := strconv.Atoi(r.Descriptor[DescRetentionDays])
	return BucketSpec{
		Location:        r.Descriptor[DescLocation],
		Versioning:      r.Descriptor[DescVersioning] == "true",
		LifecyclePrefix: r.Descriptor[DescLifecyclePrefix],
		RetentionDays:   days,
		Labels:          d.labels,
	}
}

func (d *BucketDriver) mustLookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	obs, err := d.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, fmt.Errorf("bucket %s not found after creation", ref.Name)
	}
	return obs, nil
}

func bucketObservation(info *BucketInfo) *provisioning.Observation {
	desc := map[string]string{
		DescVersioning:    strconv.FormatBool(info.Versioning),
		DescRetentionDays: strconv.Itoa(info.RetentionDays),
	}
	if info.Location != "" {
		desc[DescLocation] = strings.ToUpper(info.Location)
	}
	if info.RetentionDays > 0 {
		desc[DescLifecyclePrefix] = info.LifecyclePrefix
	}
	return &provisioning.Observation{
		Identity:   "buckets/" + info.Name,
		Descriptor: desc,
	}
}
