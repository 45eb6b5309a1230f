package workload

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/platform/helm"
	"github.com/imamik/webui-gke/internal/platform/k8s"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/platform"
	"github.com/imamik/webui-gke/internal/util/naming"
)

// Group owns the workload resources in the state store.
const Group = "workload"

// APIKeyField is the key of the API key inside its secret.
const APIKeyField = "api-key"

// Set is the desired application resources.
type Set struct {
	Secret      provisioning.ManagedResource
	VolumeClaim provisioning.ManagedResource
	Release     provisioning.ManagedResource
}

// Resources returns the set in reconciliation input order.
func (s Set) Resources() []provisioning.ManagedResource {
	return []provisioning.ManagedResource{s.Secret, s.VolumeClaim, s.Release}
}

// Desired builds the application resources. The release is registered with
// releases; its values are the generated values overlaid with the values file.
// With hold set the release is installed with zero replicas.
func Desired(cfg *config.Config, releases *helm.ReleaseDriver, apiKey string, hold bool) (Set, error) {
	var s Set
	cluster, ns := cfg.ClusterName, cfg.App.Namespace
	namespace := platform.AppNamespace(cfg).Key()

	s.Secret = k8s.Secret(cluster, ns, cfg.App.APIKeySecret, corev1.SecretTypeOpaque,
		map[string][]byte{APIKeyField: []byte(apiKey)})
	s.Secret.DependsOn = []string{namespace}

	s.VolumeClaim = k8s.VolumeClaim(cluster, ns, cfg.App.VolumeClaim, cfg.App.VolumeSize, "")
	s.VolumeClaim.DependsOn = []string{namespace}

	values := appValues(cfg)
	if cfg.App.ValuesFile != "" {
		overrides, err := helm.ReadFile(cfg.App.ValuesFile)
		if err != nil {
			return s, err
		}
		values = helm.Merge(values, overrides)
	}
	if hold {
		values["replicaCount"] = 0
	}

	release, err := releases.Desire(cluster, helm.ReleaseSpec{
		Name:      cfg.App.Release,
		Namespace: ns,
		Repo:      cfg.App.ChartRepo,
		Chart:     cfg.App.Chart,
		Version:   cfg.App.ChartVersion,
		ChartPath: cfg.App.ChartPath,
		Values:    values,
	})
	if err != nil {
		return s, err
	}
	release.DependsOn = []string{s.Secret.Key(), s.VolumeClaim.Key()}
	s.Release = release
	return s, nil
}

// appValues points the chart at OpenRouter, the existing data volume and the
// published TLS secret. The bundled Ollama and pipelines are turned off.
func appValues(cfg *config.Config) helm.Values {
	ingress := helm.Values{
		"enabled":        true,
		"class":          platform.IngressClass,
		"host":           cfg.TLS.Domain,
		"tls":            true,
		"existingSecret": cfg.TLS.SecretName,
	}
	if cfg.TLS.ACMEEmail != "" {
		ingress["annotations"] = helm.Values{
			"cert-manager.io/cluster-issuer": naming.ClusterIssuer(cfg.ClusterName),
		}
	}

	return helm.Values{
		"ollama":           helm.Values{"enabled": false},
		"pipelines":        helm.Values{"enabled": false},
		"openaiBaseApiUrl": cfg.App.APIBaseURL,
		"persistence": helm.Values{
			"enabled":       true,
			"existingClaim": cfg.App.VolumeClaim,
		},
		"extraEnvVars": []any{
			helm.Values{"name": "OPENAI_API_BASE_URL", "value": cfg.App.APIBaseURL},
			helm.Values{"name": "OPENAI_API_KEY", "valueFrom": helm.Values{
				"secretKeyRef": helm.Values{"name": cfg.App.APIKeySecret, "key": APIKeyField},
			}},
		},
		"ingress": ingress,
	}
}

// target is the deployment target this configuration describes.
func target(env string, cfg *config.Config) provisioning.DeploymentTarget {
	return provisioning.DeploymentTarget{
		Environment: env,
		Cluster:     cfg.ClusterPath(),
		Namespace:   cfg.App.Namespace,
		Release:     fmt.Sprintf("%s/%s", cfg.App.Namespace, cfg.App.Release),
	}
}
