package config

// Default values. Every default lives here and nowhere else.
const (
	DefaultRegion         = "us-central1"
	DefaultZone           = "us-central1-a"
	DefaultClusterName    = "open-webui-cluster"
	DefaultStateDir       = ".webui-gke"
	DefaultNamespace      = "open-webui"
	DefaultRelease        = "open-webui"
	DefaultRetentionDays  = 90
	DefaultOpenRouterBase = "https://openrouter.ai/api/v1"
	DefaultLetsEncrypt    = "https://acme-v02.api.letsencrypt.org/directory"
)

// DefaultServices are the project APIs the cluster depends on.
var DefaultServices = []string{
	"compute.googleapis.com",
	"container.googleapis.com",
	"storage.googleapis.com",
}

// Default returns a Config populated with all built-in defaults.
func Default() *Config {
	return &Config{
		Region:      DefaultRegion,
		Zone:        DefaultZone,
		ClusterName: DefaultClusterName,
		Cluster: ClusterConfig{
			ReleaseChannel: "REGULAR",
			NodePool:       "primary-pool",
			MachineType:    "e2-standard-2",
			DiskSizeGB:     50,
			NodeCount:      1,
			MinNodes:       1,
			MaxNodes:       3,
		},
		Network: NetworkConfig{
			StaticIPName: "open-webui-ip",
		},
		Storage: StorageConfig{
			Location:      "US",
			RetentionDays: DefaultRetentionDays,
		},
		TLS: TLSConfig{
			SecretName: "open-webui-tls",
		},
		App: AppConfig{
			Namespace:    DefaultNamespace,
			Release:      DefaultRelease,
			ChartRepo:    "https://helm.openwebui.com/",
			Chart:        "open-webui",
			VolumeClaim:  "open-webui-data",
			VolumeSize:   "10Gi",
			DatabasePath: "/app/backend/data/webui.db",
			PodSelector:  "app.kubernetes.io/component=open-webui",
			Container:    "open-webui",
			WorkloadKind: "StatefulSet",
			WorkloadName: "open-webui",
			APIBaseURL:   DefaultOpenRouterBase,
			APIKeySecret: "openrouter-api-key",
		},
		Ingress: IngressConfig{
			Namespace:       "ingress-nginx",
			ChartRepo:       "https://kubernetes.github.io/ingress-nginx",
			CertManager:     true,
			CertManagerRepo: "https://charts.jetstack.io",
		},
		Restore: RestoreConfig{
			Enabled:     true,
			HelperImage: "busybox:1.36",
		},
		StateDir: DefaultStateDir,
		Services: ServicesConfig{
			Enable: append([]string(nil), DefaultServices...),
		},
	}
}
