package platform

import (
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/platform/helm"
	"github.com/imamik/webui-gke/internal/platform/k8s"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/util/labels"
	"github.com/imamik/webui-gke/internal/util/naming"
)

// Group owns the platform resources in the state store.
const Group = "platform"

// Release names.
const (
	IngressRelease     = "ingress-nginx"
	CertManagerRelease = "cert-manager"
)

// IngressClass is the class the ingress controller serves.
const IngressClass = "nginx"

// CertManagerNamespace hosts the cert-manager release.
const CertManagerNamespace = "cert-manager"

// AppNamespace returns the desired application namespace. The workload
// phase depends on its key.
func AppNamespace(cfg *config.Config) provisioning.ManagedResource {
	return k8s.Namespace(cfg.ClusterName, cfg.App.Namespace,
		labels.NewLabelBuilder(cfg.ClusterName).WithComponent(labels.ComponentApp).Build())
}

// Desired builds the platform resources. releases registers the chart specs;
// staticIP is the address the ingress controller's load balancer takes.
func Desired(cfg *config.Config, releases *helm.ReleaseDriver, staticIP string) ([]provisioning.ManagedResource, error) {
	cluster := cfg.ClusterName
	ingressLabels := labels.NewLabelBuilder(cluster).WithComponent(labels.ComponentIngress).Build()

	appNS := AppNamespace(cfg)
	ingressNS := k8s.Namespace(cluster, cfg.Ingress.Namespace, ingressLabels)
	out := []provisioning.ManagedResource{appNS, ingressNS}

	ingress, err := releases.Desire(cluster, helm.ReleaseSpec{
		Name:      IngressRelease,
		Namespace: cfg.Ingress.Namespace,
		Repo:      cfg.Ingress.ChartRepo,
		Chart:     IngressRelease,
		Version:   cfg.Ingress.ChartVersion,
		Values:    ingressValues(staticIP),
	})
	if err != nil {
		return nil, err
	}
	ingress.DependsOn = []string{ingressNS.Key()}
	out = append(out, ingress)

	if !cfg.Ingress.CertManager {
		return out, nil
	}

	cmNS := k8s.Namespace(cluster, CertManagerNamespace,
		labels.NewLabelBuilder(cluster).WithComponent(labels.ComponentTLS).Build())
	certManager, err := releases.Desire(cluster, helm.ReleaseSpec{
		Name:      CertManagerRelease,
		Namespace: CertManagerNamespace,
		Repo:      cfg.Ingress.CertManagerRepo,
		Chart:     CertManagerRelease,
		Version:   cfg.Ingress.CertManagerVersion,
		Values:    helm.Values{"crds": helm.Values{"enabled": true}},
	})
	if err != nil {
		return nil, err
	}
	certManager.DependsOn = []string{cmNS.Key()}
	out = append(out, cmNS, certManager)

	if cfg.TLS.ACMEEmail == "" {
		return out, nil
	}
	issuer, err := ClusterIssuer(cfg)
	if err != nil {
		return nil, err
	}
	issuer.DependsOn = []string{certManager.Key()}
	return append(out, issuer), nil
}

func ingressValues(staticIP string) helm.Values {
	service := helm.Values{"externalTrafficPolicy": "Local"}
	if staticIP != "" {
		service["loadBalancerIP"] = staticIP
	}
	return helm.Values{
		"controller": helm.Values{
			"service": service,
			"ingressClassResource": helm.Values{
				"name":    IngressClass,
				"default": true,
			},
		},
	}
}

// ClusterIssuer returns the desired ACME issuer solving HTTP-01 challenges
// through the ingress controller.
func ClusterIssuer(cfg *config.Config) (provisioning.ManagedResource, error) {
	name := naming.ClusterIssuer(cfg.ClusterName)
	server := cfg.TLS.ACMEServer
	if server == "" {
		server = config.DefaultLetsEncrypt
	}

	manifest, err := yaml.Marshal(map[string]any{
		"apiVersion": k8s.ClusterIssuerGVK.GroupVersion().String(),
		"kind":       k8s.ClusterIssuerGVK.Kind,
		"metadata": map[string]any{
			"name":   name,
			"labels": labels.NewLabelBuilder(cfg.ClusterName).WithComponent(labels.ComponentTLS).Build(),
		},
		"spec": map[string]any{
			"acme": map[string]any{
				"email":               cfg.TLS.ACMEEmail,
				"server":              server,
				"privateKeySecretRef": map[string]any{"name": name + "-account-key"},
				"solvers": []any{
					map[string]any{"http01": map[string]any{"ingress": map[string]any{"ingressClassName": IngressClass}}},
				},
			},
		},
	})
	if err != nil {
		return provisioning.ManagedResource{}, fmt.Errorf("failed to render ClusterIssuer: %w", err)
	}
	return k8s.Manifest(k8s.TypeClusterIssuer, cfg.ClusterName, k8s.ClusterIssuerGVK, "", name, manifest), nil
}
