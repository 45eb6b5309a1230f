package helm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/repo"
	"helm.sh/helm/v3/pkg/storage/driver"
)

// ReleaseSpec is one chart release. Exactly one of ChartPath or Repo+Chart
// names the chart.
type ReleaseSpec struct {
	Name      string
	Namespace string

	Repo      string
	Chart     string
	Version   string
	ChartPath string

	Values          Values
	CreateNamespace bool
}

// Source describes where the chart comes from.
func (s ReleaseSpec) Source() string {
	if s.ChartPath != "" {
		return s.ChartPath
	}
	return s.Repo + "/" + s.Chart
}

// ReleaseInfo is the deployed state of a release.
type ReleaseInfo struct {
	Name         string
	Namespace    string
	Chart        string
	ChartVersion string
	AppVersion   string
	Revision     int
	Status       string
	Values       Values
}

// Releaser manages the releases of one namespace.
type Releaser interface {
	// Status returns (nil, nil) when the release does not exist.
	Status(name string) (*ReleaseInfo, error)
	InstallOrUpgrade(ctx context.Context, spec ReleaseSpec) (*ReleaseInfo, error)
	// Uninstall removes a release. A missing release is not an error.
	Uninstall(name string) error
}

// Client provides Helm operations using in-memory kubeconfig.
type Client struct {
	namespace    string
	timeout      time.Duration
	actionConfig *action.Configuration
}

// NewClient creates a Helm client for namespace from kubeconfig bytes.
// Install, upgrade and uninstall wait up to timeout for resources.
func NewClient(kubeconfig []byte, namespace string, timeout time.Duration, log logr.Logger) (*Client, error) {
	actionConfig := new(action.Configuration)
	restGetter := newKubeconfigGetter(kubeconfig, namespace)

	debug := func(format string, v ...interface{}) {
		log.V(2).Info(fmt.Sprintf(format, v...), "namespace", namespace)
	}
	if err := actionConfig.Init(restGetter, namespace, "secret", debug); err != nil {
		return nil, fmt.Errorf("failed to initialize helm action config: %w", err)
	}

	return newClient(actionConfig, namespace, timeout), nil
}

func newClient(cfg *action.Configuration, namespace string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{namespace: namespace, timeout: timeout, actionConfig: cfg}
}

// Status implements Releaser.
func (c *Client) Status(name string) (*ReleaseInfo, error) {
	rel, err := action.NewStatus(c.actionConfig).Run(name)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get status of release %s: %w", name, err)
	}
	return releaseInfo(rel), nil
}

// InstallOrUpgrade implements Releaser. A release with no history is
// installed, anything else is upgraded.
func (c *Client) InstallOrUpgrade(ctx context.Context, spec ReleaseSpec) (*ReleaseInfo, error) {
	ch, err := c.loadChart(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart: %w", err)
	}

	histClient := action.NewHistory(c.actionConfig)
	histClient.Max = 1
	if _, err := histClient.Run(spec.Name); err != nil {
		if !errors.Is(err, driver.ErrReleaseNotFound) {
			return nil, fmt.Errorf("failed to read history of release %s: %w", spec.Name, err)
		}
		return c.install(ctx, spec, ch)
	}
	return c.upgrade(ctx, spec, ch)
}

func (c *Client) install(ctx context.Context, spec ReleaseSpec, ch *chart.Chart) (*ReleaseInfo, error) {
	installClient := action.NewInstall(c.actionConfig)
	installClient.ReleaseName = spec.Name
	installClient.Namespace = c.namespace
	installClient.CreateNamespace = spec.CreateNamespace
	installClient.Version = spec.Version
	installClient.Wait = true
	installClient.Timeout = c.timeout

	rel, err := installClient.RunWithContext(ctx, ch, spec.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to install release %s: %w", spec.Name, err)
	}
	return releaseInfo(rel), nil
}

func (c *Client) upgrade(ctx context.Context, spec ReleaseSpec, ch *chart.Chart) (*ReleaseInfo, error) {
	upgradeClient := action.NewUpgrade(c.actionConfig)
	upgradeClient.Namespace = c.namespace
	upgradeClient.Version = spec.Version
	upgradeClient.Wait = true
	upgradeClient.Timeout = c.timeout
	upgradeClient.ReuseValues = false

	rel, err := upgradeClient.RunWithContext(ctx, spec.Name, ch, spec.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade release %s: %w", spec.Name, err)
	}
	return releaseInfo(rel), nil
}

func (c *Client) loadChart(spec ReleaseSpec) (*chart.Chart, error) {
	if spec.ChartPath != "" {
		return loader.Load(spec.ChartPath)
	}
	if spec.Repo == "" || spec.Chart == "" {
		return nil, fmt.Errorf("release %s names neither a chart path nor a repository chart", spec.Name)
	}

	settings := cli.New()
	chartPath, err := repo.FindChartInRepoURL(
		spec.Repo,
		spec.Chart,
		spec.Version,
		"", "", "",
		getter.All(settings),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find chart %s in repo %s: %w", spec.Chart, spec.Repo, err)
	}
	defer func() {
		_ = os.Remove(chartPath)
	}()

	return loader.Load(chartPath)
}

// Uninstall implements Releaser.
func (c *Client) Uninstall(name string) error {
	uninstallClient := action.NewUninstall(c.actionConfig)
	uninstallClient.Wait = true
	uninstallClient.Timeout = c.timeout
	uninstallClient.IgnoreNotFound = true

	if _, err := uninstallClient.Run(name); err != nil {
		return fmt.Errorf("failed to uninstall release %s: %w", name, err)
	}
	return nil
}

func releaseInfo(rel *release.Release) *ReleaseInfo {
	info := &ReleaseInfo{
		Name:      rel.Name,
		Namespace: rel.Namespace,
		Revision:  rel.Version,
		Values:    Values(rel.Config),
	}
	if rel.Info != nil {
		info.Status = rel.Info.Status.String()
	}
	if rel.Chart != nil && rel.Chart.Metadata != nil {
		info.Chart = rel.Chart.Metadata.Name
		info.ChartVersion = rel.Chart.Metadata.Version
		info.AppVersion = rel.Chart.Metadata.AppVersion
	}
	return info
}

var _ Releaser = (*Client)(nil)
