package config

import "fmt"

// Config is the complete description of one Open WebUI deployment on GKE.
type Config struct {
	ProjectID   string `yaml:"project_id"`
	Region      string `yaml:"region"`
	Zone        string `yaml:"zone"`
	ClusterName string `yaml:"cluster_name"`

	// CredentialsFile is a service account key. Empty means Application Default Credentials.
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	Cluster  ClusterConfig  `yaml:"cluster"`
	Network  NetworkConfig  `yaml:"network"`
	Storage  StorageConfig  `yaml:"storage"`
	TLS      TLSConfig      `yaml:"tls"`
	App      AppConfig      `yaml:"app"`
	Ingress  IngressConfig  `yaml:"ingress"`
	Restore  RestoreConfig  `yaml:"restore"`
	StateDir string         `yaml:"state_dir"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
	Services ServicesConfig `yaml:"services,omitempty"`
}

// ClusterConfig describes the GKE cluster and its single node pool.
type ClusterConfig struct {
	ReleaseChannel string `yaml:"release_channel"`
	NodePool       string `yaml:"node_pool"`
	MachineType    string `yaml:"machine_type"`
	DiskSizeGB     int    `yaml:"disk_size_gb"`
	NodeCount      int    `yaml:"node_count"`
	MinNodes       int    `yaml:"min_nodes"`
	MaxNodes       int    `yaml:"max_nodes"`
	Spot           bool   `yaml:"spot"`
}

// NetworkConfig describes the reserved regional address used by the ingress controller.
type NetworkConfig struct {
	StaticIPName string `yaml:"static_ip_name"`
}

// StorageConfig selects the object store holding certificates and database snapshots.
//
// With Endpoint and HMAC keys set, the S3-compatible API is used (GCS interoperability
// or any other S3 endpoint). Otherwise the native GCS JSON API is used.
type StorageConfig struct {
	Bucket        string `yaml:"bucket"`
	Location      string `yaml:"location,omitempty"`
	RetentionDays int    `yaml:"retention_days"`
	Endpoint      string `yaml:"endpoint,omitempty"`
	AccessKey     string `yaml:"access_key,omitempty"`
	SecretKey     string `yaml:"secret_key,omitempty"`
}

// UseS3 reports whether the S3-compatible backend is configured.
func (s StorageConfig) UseS3() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != ""
}

// TLSConfig controls certificate provisioning for the application domain.
type TLSConfig struct {
	Domain     string `yaml:"domain"`
	SecretName string `yaml:"secret_name"`
	ACMEEmail  string `yaml:"acme_email,omitempty"`
	// ACMEServer defaults to the Let's Encrypt production directory when ACMEEmail is set.
	ACMEServer string `yaml:"acme_server,omitempty"`
}

// AppConfig describes the Open WebUI release.
type AppConfig struct {
	Namespace      string `yaml:"namespace"`
	Release        string `yaml:"release"`
	ChartRepo      string `yaml:"chart_repo"`
	Chart          string `yaml:"chart"`
	ChartVersion   string `yaml:"chart_version,omitempty"`
	ChartPath      string `yaml:"chart_path,omitempty"`
	ValuesFile     string `yaml:"values_file,omitempty"`
	VolumeClaim    string `yaml:"volume_claim"`
	VolumeSize     string `yaml:"volume_size"`
	DatabasePath   string `yaml:"database_path"`
	PodSelector    string `yaml:"pod_selector"`
	Container      string `yaml:"container"`
	WorkloadKind   string `yaml:"workload_kind"`
	WorkloadName   string `yaml:"workload_name"`
	APIBaseURL     string `yaml:"api_base_url"`
	APIKey         string `yaml:"api_key,omitempty"`
	APIKeySecretID string `yaml:"api_key_secret_id,omitempty"`
	APIKeySecret   string `yaml:"api_key_secret"`
}

// IngressConfig describes the ingress controller and cert-manager releases.
type IngressConfig struct {
	Namespace          string `yaml:"namespace"`
	ChartRepo          string `yaml:"chart_repo"`
	ChartVersion       string `yaml:"chart_version,omitempty"`
	CertManager        bool   `yaml:"cert_manager"`
	CertManagerRepo    string `yaml:"cert_manager_repo"`
	CertManagerVersion string `yaml:"cert_manager_version,omitempty"`
}

// RestoreConfig controls the restore gate that runs before the application starts.
type RestoreConfig struct {
	Enabled bool `yaml:"enabled"`
	// BlockOnFailure turns a corrupt snapshot into a fatal error instead of a warning.
	BlockOnFailure bool   `yaml:"block_on_failure"`
	HelperImage    string `yaml:"helper_image"`
}

// MetricsConfig controls the Prometheus textfile written at the end of a run.
type MetricsConfig struct {
	File string `yaml:"file,omitempty"`
}

// ServicesConfig lists the project services that must be enabled before the cluster.
type ServicesConfig struct {
	Enable []string `yaml:"enable,omitempty"`
}

// Location returns the cluster location. Zonal clusters are used when a zone is set.
func (c *Config) Location() string {
	if c.Zone != "" {
		return c.Zone
	}
	return c.Region
}

// ClusterPath returns the fully qualified GKE cluster name.
func (c *Config) ClusterPath() string {
	return fmt.Sprintf("projects/%s/locations/%s/clusters/%s", c.ProjectID, c.Location(), c.ClusterName)
}

// BucketName returns the configured bucket, or the project-derived default.
func (c *Config) BucketName() string {
	if c.Storage.Bucket != "" {
		return c.Storage.Bucket
	}
	if c.ProjectID == "" {
		return ""
	}
	return c.ProjectID + "-open-webui-backups"
}
