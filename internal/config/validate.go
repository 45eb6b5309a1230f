package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

var (
	// GCE resource names: lowercase letters, digits and hyphens, starting with a letter.
	gceNamePattern = regexp.MustCompile(`^[a-z]([-a-z0-9]{0,61}[a-z0-9])?$`)
	domainPattern  = regexp.MustCompile(`^([a-z0-9]([-a-z0-9]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
)

// ValidWorkloadKinds are the workload kinds whose scale subresource the restore gate can drive.
var ValidWorkloadKinds = map[string]bool{
	"StatefulSet": true,
	"Deployment":  true,
}

// Validate checks the configuration and returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.ProjectID == "" {
		errs = append(errs, fmt.Errorf("project_id is required"))
	}
	if c.Region == "" {
		errs = append(errs, fmt.Errorf("region is required"))
	}
	if c.Zone != "" && !strings.HasPrefix(c.Zone, c.Region+"-") {
		errs = append(errs, fmt.Errorf("zone %q is not in region %q", c.Zone, c.Region))
	}
	if !gceNamePattern.MatchString(c.ClusterName) {
		errs = append(errs, fmt.Errorf("cluster_name %q is not a valid resource name", c.ClusterName))
	}
	if !gceNamePattern.MatchString(c.Network.StaticIPName) {
		errs = append(errs, fmt.Errorf("network.static_ip_name %q is not a valid resource name", c.Network.StaticIPName))
	}
	if !gceNamePattern.MatchString(c.Cluster.NodePool) {
		errs = append(errs, fmt.Errorf("cluster.node_pool %q is not a valid resource name", c.Cluster.NodePool))
	}

	errs = append(errs, c.validateNodePool()...)

	if c.TLS.Domain == "" {
		errs = append(errs, fmt.Errorf("tls.domain is required"))
	} else if !domainPattern.MatchString(c.TLS.Domain) {
		errs = append(errs, fmt.Errorf("tls.domain %q is not a valid DNS name", c.TLS.Domain))
	}

	if c.BucketName() == "" {
		errs = append(errs, fmt.Errorf("storage.bucket is required"))
	}
	if c.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Errorf("storage.retention_days must be at least 1"))
	}
	if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
		errs = append(errs, fmt.Errorf("storage.access_key and storage.secret_key must be set together"))
	}

	if c.App.APIKey == "" && c.App.APIKeySecretID == "" {
		errs = append(errs, fmt.Errorf("app.api_key or app.api_key_secret_id is required"))
	}
	if c.App.ChartPath == "" && (c.App.ChartRepo == "" || c.App.Chart == "") {
		errs = append(errs, fmt.Errorf("app.chart_path or app.chart_repo with app.chart is required"))
	}
	if !ValidWorkloadKinds[c.App.WorkloadKind] {
		errs = append(errs, fmt.Errorf("app.workload_kind %q must be StatefulSet or Deployment", c.App.WorkloadKind))
	}
	if _, err := resource.ParseQuantity(c.App.VolumeSize); err != nil {
		errs = append(errs, fmt.Errorf("app.volume_size %q: %w", c.App.VolumeSize, err))
	}
	if c.StateDir == "" {
		errs = append(errs, fmt.Errorf("state_dir is required"))
	}

	return errors.Join(errs...)
}

func (c *Config) validateNodePool() []error {
	var errs []error
	p := c.Cluster

	if p.MachineType == "" {
		errs = append(errs, fmt.Errorf("cluster.machine_type is required"))
	}
	if p.DiskSizeGB < 10 {
		errs = append(errs, fmt.Errorf("cluster.disk_size_gb must be at least 10"))
	}
	if p.NodeCount < 1 {
		errs = append(errs, fmt.Errorf("cluster.node_count must be at least 1"))
	}
	if p.MaxNodes > 0 && (p.MinNodes > p.MaxNodes || p.NodeCount > p.MaxNodes) {
		errs = append(errs, fmt.Errorf("cluster.min_nodes <= cluster.node_count <= cluster.max_nodes must hold"))
	}

	return errs
}
