package gcp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/compute/apiv1/computepb"
	container "google.golang.org/api/container/v1"
	"google.golang.org/api/googleapi"
	serviceusage "google.golang.org/api/serviceusage/v1"

	"github.com/imamik/webui-gke/internal/util/ptr"
)

func notFoundErr() error { return &googleapi.Error{Code: 404, Message: "not found"} }

type fakeAddresses struct {
	mu        sync.Mutex
	addresses map[string]*computepb.Address
	calls     []string
	insertErr error
}

func newFakeAddresses() *fakeAddresses {
	return &fakeAddresses{addresses: map[string]*computepb.Address{}}
}

func (f *fakeAddresses) GetAddress(_ context.Context, project, region, name string) (*computepb.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.addresses[project+"/"+region+"/"+name]
	if !ok {
		return nil, notFoundErr()
	}
	return a, nil
}

func (f *fakeAddresses) InsertAddress(_ context.Context, project, region string, addr *computepb.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "insert:"+addr.GetName())
	if f.insertErr != nil {
		return f.insertErr
	}
	addr.Address = ptr.String("35.0.0.10")
	addr.LabelFingerprint = ptr.String("fp")
	f.addresses[project+"/"+region+"/"+addr.GetName()] = addr
	return nil
}

func (f *fakeAddresses) SetAddressLabels(_ context.Context, _, _, name, fingerprint string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("labels:%s:%s", name, fingerprint))
	return nil
}

func (f *fakeAddresses) DeleteAddress(_ context.Context, project, region, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete:"+name)
	key := project + "/" + region + "/" + name
	if _, ok := f.addresses[key]; !ok {
		return notFoundErr()
	}
	delete(f.addresses, key)
	return nil
}

type fakeContainer struct {
	mu       sync.Mutex
	clusters map[string]*container.Cluster
	pools    map[string]*container.NodePool
	calls    []string
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{clusters: map[string]*container.Cluster{}, pools: map[string]*container.NodePool{}}
}

func (f *fakeContainer) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeContainer) GetCluster(_ context.Context, name string) (*container.Cluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clusters[name]
	if !ok {
		return nil, notFoundErr()
	}
	return c, nil
}

func (f *fakeContainer) CreateCluster(_ context.Context, parent string, cluster *container.Cluster) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create-cluster:" + cluster.Name)
	name := parent + "/clusters/" + cluster.Name
	cluster.Endpoint = "34.1.2.3"
	cluster.MasterAuth = &container.MasterAuth{ClusterCaCertificate: "Q0E="}
	f.clusters[name] = cluster
	f.pools[name+"/nodePools/default-pool"] = &container.NodePool{Name: "default-pool"}
	return nil
}

func (f *fakeContainer) UpdateCluster(_ context.Context, name string, update *container.ClusterUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update-cluster")
	if update.DesiredReleaseChannel != nil {
		f.clusters[name].ReleaseChannel = update.DesiredReleaseChannel
	}
	return nil
}

func (f *fakeContainer) DeleteCluster(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete-cluster")
	if _, ok := f.clusters[name]; !ok {
		return notFoundErr()
	}
	delete(f.clusters, name)
	return nil
}

func (f *fakeContainer) GetNodePool(_ context.Context, name string) (*container.NodePool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	np, ok := f.pools[name]
	if !ok {
		return nil, notFoundErr()
	}
	return np, nil
}

func (f *fakeContainer) CreateNodePool(_ context.Context, parent string, pool *container.NodePool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create-pool:" + pool.Name)
	f.pools[parent+"/nodePools/"+pool.Name] = pool
	return nil
}

func (f *fakeContainer) SetNodePoolSize(_ context.Context, name string, count int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("resize:%d", count))
	return nil
}

func (f *fakeContainer) SetNodePoolAutoscaling(_ context.Context, name string, a *container.NodePoolAutoscaling) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("autoscale:%d-%d", a.MinNodeCount, a.MaxNodeCount))
	f.pools[name].Autoscaling = a
	return nil
}

func (f *fakeContainer) DeleteNodePool(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete-pool:" + name[strings.LastIndex(name, "/")+1:])
	if _, ok := f.pools[name]; !ok {
		return notFoundErr()
	}
	delete(f.pools, name)
	return nil
}

type fakeServices struct {
	states  map[string]string
	enabled []string
}

func (f *fakeServices) GetService(_ context.Context, name string) (*serviceusage.GoogleApiServiceusageV1Service, error) {
	st, ok := f.states[name]
	if !ok {
		return nil, notFoundErr()
	}
	return &serviceusage.GoogleApiServiceusageV1Service{Name: name, State: st}, nil
}

func (f *fakeServices) EnableService(_ context.Context, name string) error {
	f.enabled = append(f.enabled, name)
	f.states[name] = "ENABLED"
	return nil
}
