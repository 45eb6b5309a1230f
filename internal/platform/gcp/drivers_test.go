package gcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	container "google.golang.org/api/container/v1"

	"github.com/imamik/webui-gke/internal/provisioning"
)

func TestAddressDriver(t *testing.T) {
	ctx := context.Background()
	api := newFakeAddresses()
	d := NewAddressDriver(api, map[string]string{"managed-by": "webui-gke"})
	want := StaticAddress("demo", "us-central1", "open-webui-ip")

	t.Run("absent address is not an error", func(t *testing.T) {
		obs, err := d.Lookup(ctx, want.Ref)
		require.NoError(t, err)
		assert.Nil(t, obs)
	})

	t.Run("create reserves and reports the IP", func(t *testing.T) {
		obs, err := d.Create(ctx, want)
		require.NoError(t, err)
		assert.Equal(t, "35.0.0.10", obs.Outputs[OutputAddress])
		assert.Empty(t, want.Diverges(obs.Descriptor))
		assert.Equal(t, "projects/demo/regions/us-central1/addresses/open-webui-ip", obs.Identity)
	})

	t.Run("update relabels with the current fingerprint", func(t *testing.T) {
		obs, err := d.Update(ctx, want, &provisioning.Observation{Descriptor: want.Descriptor})
		require.NoError(t, err)
		assert.Equal(t, "35.0.0.10", obs.Outputs[OutputAddress])
		assert.Contains(t, api.calls, "labels:open-webui-ip:fp")
	})

	t.Run("tier change is refused", func(t *testing.T) {
		_, err := d.Update(ctx, want, &provisioning.Observation{Descriptor: map[string]string{
			DescAddressType: "EXTERNAL", DescNetworkTier: "STANDARD",
		}})
		assert.ErrorContains(t, err, "cannot change")
	})

	t.Run("delete tolerates absence", func(t *testing.T) {
		require.NoError(t, d.Delete(ctx, want))
		require.NoError(t, d.Delete(ctx, want))
	})

	assert.Equal(t, provisioning.PolicyProtected, want.Policy)
}

func TestClusterDriver_CreateRemovesDefaultPool(t *testing.T) {
	ctx := context.Background()
	api := newFakeContainer()
	d := NewClusterDriver(api, nil)
	want := Cluster("demo", "us-central1-a", "open-webui-cluster", "REGULAR")

	obs, err := d.Create(ctx, want)
	require.NoError(t, err)

	assert.Equal(t, []string{"create-cluster:open-webui-cluster", "delete-pool:default-pool"}, api.calls)
	assert.Equal(t, "34.1.2.3", obs.Outputs[OutputEndpoint])
	assert.Equal(t, "Q0E=", obs.Outputs[OutputCACertificate])
	assert.Empty(t, want.Diverges(obs.Descriptor))
}

func TestClusterDriver_Update(t *testing.T) {
	ctx := context.Background()
	api := newFakeContainer()
	d := NewClusterDriver(api, nil)
	_, err := d.Create(ctx, Cluster("demo", "us-central1-a", "c1", "REGULAR"))
	require.NoError(t, err)

	stable := Cluster("demo", "us-central1-a", "c1", "STABLE")
	current, err := d.Lookup(ctx, stable.Ref)
	require.NoError(t, err)

	obs, err := d.Update(ctx, stable, current)
	require.NoError(t, err)
	assert.Equal(t, "STABLE", obs.Descriptor[DescReleaseChannel])

	moved := stable
	moved.Descriptor = map[string]string{DescReleaseChannel: "STABLE", DescNetwork: "custom"}
	_, err = d.Update(ctx, moved, obs)
	assert.ErrorContains(t, err, "cannot change network in place")
}

func TestNodePoolDriver(t *testing.T) {
	ctx := context.Background()
	api := newFakeContainer()
	d := NewNodePoolDriver(api, nil)
	spec := NodePoolSpec{MachineType: "e2-standard-2", DiskSizeGB: 50, NodeCount: 1, MinNodes: 1, MaxNodes: 3}
	want := NodePool("demo", "us-central1-a", "c1", "primary-pool", spec)

	obs, err := d.Create(ctx, want)
	require.NoError(t, err)
	assert.Empty(t, want.Diverges(obs.Descriptor))
	assert.Equal(t, "projects/demo/locations/us-central1-a/clusters/c1/nodePools/primary-pool", NodePoolName(want.Ref))

	t.Run("bounds and size change in place", func(t *testing.T) {
		api.calls = nil
		spec := spec
		spec.NodeCount, spec.MaxNodes = 2, 5
		resized := NodePool("demo", "us-central1-a", "c1", "primary-pool", spec)

		obs, err := d.Update(ctx, resized, obs)
		require.NoError(t, err)
		assert.Equal(t, []string{"autoscale:1-5", "resize:2"}, api.calls)
		assert.Equal(t, "2", obs.Descriptor[DescNodeCount])
	})

	t.Run("machine type change recreates the pool", func(t *testing.T) {
		api.calls = nil
		spec := spec
		spec.MachineType = "e2-standard-4"
		bigger := NodePool("demo", "us-central1-a", "c1", "primary-pool", spec)

		obs, err := d.Update(ctx, bigger, obs)
		require.NoError(t, err)
		assert.Equal(t, []string{"delete-pool:primary-pool", "create-pool:primary-pool"}, api.calls)
		assert.Equal(t, "e2-standard-4", obs.Descriptor[DescMachineType])
	})
}

func TestNodePool_FixedSizeHasNoBounds(t *testing.T) {
	r := NodePool("demo", "z", "c1", "p", NodePoolSpec{MachineType: "e2", DiskSizeGB: 10, NodeCount: 2, MinNodes: 2, MaxNodes: 2})
	assert.Equal(t, "0", r.Descriptor[DescMinNodes])
	assert.Equal(t, "0", r.Descriptor[DescMaxNodes])

	obs := poolObservation(r.Ref, &container.NodePool{
		InitialNodeCount: 2,
		Config:           &container.NodeConfig{MachineType: "e2", DiskSizeGb: 10},
	})
	assert.Empty(t, r.Diverges(obs.Descriptor))
}

func TestServiceDriver(t *testing.T) {
	ctx := context.Background()
	api := &fakeServices{states: map[string]string{
		"projects/demo/services/container.googleapis.com": "DISABLED",
	}}
	d := NewServiceDriver(api)
	want := ProjectService("demo", "container.googleapis.com")

	obs, err := d.Lookup(ctx, want.Ref)
	require.NoError(t, err)
	assert.Equal(t, []string{DescState}, want.Diverges(obs.Descriptor))

	obs, err = d.Update(ctx, want, obs)
	require.NoError(t, err)
	assert.Empty(t, want.Diverges(obs.Descriptor))
	assert.Equal(t, []string{"projects/demo/services/container.googleapis.com"}, api.enabled)

	require.NoError(t, d.Delete(ctx, want))
	assert.Equal(t, "ENABLED", api.states["projects/demo/services/container.googleapis.com"])
}

func TestDriversImplementRetryClassifier(t *testing.T) {
	for _, d := range []provisioning.Driver{
		&AddressDriver{}, &ClusterDriver{}, &NodePoolDriver{}, &ServiceDriver{},
	} {
		_, ok := d.(provisioning.RetryClassifier)
		assert.True(t, ok, "%T", d)
	}
}
