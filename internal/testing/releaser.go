package testing

import (
	"context"
	"sync"

	"github.com/imamik/webui-gke/internal/platform/helm"
)

// FakeReleaser records chart releases in memory across namespaces.
type FakeReleaser struct {
	mu          sync.Mutex
	releases    map[string]*helm.ReleaseInfo
	Installed   []helm.ReleaseSpec
	Uninstalled []string

	// InstallErr, when set, fails every install or upgrade.
	InstallErr error
}

// NewFakeReleaser returns a releaser without releases.
func NewFakeReleaser() *FakeReleaser {
	return &FakeReleaser{releases: map[string]*helm.ReleaseInfo{}}
}

// Factory hands out namespace-bound views of f.
func (f *FakeReleaser) Factory() helm.ReleaserFactory {
	return func(namespace string) (helm.Releaser, error) {
		return &namespacedReleaser{f: f, namespace: namespace}, nil
	}
}

// Release returns the deployed release, or nil.
func (f *FakeReleaser) Release(namespace, name string) *helm.ReleaseInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases[namespace+"/"+name]
}

type namespacedReleaser struct {
	f         *FakeReleaser
	namespace string
}

func (r *namespacedReleaser) Status(name string) (*helm.ReleaseInfo, error) {
	return r.f.Release(r.namespace, name), nil
}

func (r *namespacedReleaser) InstallOrUpgrade(_ context.Context, spec helm.ReleaseSpec) (*helm.ReleaseInfo, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.InstallErr != nil {
		return nil, r.f.InstallErr
	}
	key := r.namespace + "/" + spec.Name
	revision := 1
	if prev, ok := r.f.releases[key]; ok {
		revision = prev.Revision + 1
	}
	chart := spec.Chart
	if chart == "" {
		chart = spec.ChartPath
	}
	info := &helm.ReleaseInfo{
		Name:         spec.Name,
		Namespace:    r.namespace,
		Chart:        chart,
		ChartVersion: spec.Version,
		Revision:     revision,
		Status:       "deployed",
		Values:       spec.Values,
	}
	r.f.releases[key] = info
	r.f.Installed = append(r.f.Installed, spec)
	return info, nil
}

func (r *namespacedReleaser) Uninstall(name string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	delete(r.f.releases, r.namespace+"/"+name)
	r.f.Uninstalled = append(r.f.Uninstalled, r.namespace+"/"+name)
	return nil
}
