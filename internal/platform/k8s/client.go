package k8s

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
)

// FieldManager identifies this tool in server-side apply and managed fields.
const FieldManager = "webui-gke"

// Client wraps Kubernetes API operations for one cluster.
type Client struct {
	clientset kubernetes.Interface
	ctrl      ctrlclient.Client
	rest      *rest.Config
}

// NewClientFromBytes creates a new Kubernetes client from kubeconfig bytes.
func NewClientFromBytes(kubeconfigData []byte) (*Client, error) {
	config, err := clientcmd.RESTConfigFromKubeConfig(kubeconfigData)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig from bytes: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	ctrl, err := ctrlclient.New(config, ctrlclient.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller-runtime client: %w", err)
	}

	return &Client{clientset: clientset, ctrl: ctrl, rest: config}, nil
}

// NewClient wraps existing clients. Exec needs a REST config and is
// unavailable when restConfig is nil.
func NewClient(clientset kubernetes.Interface, ctrl ctrlclient.Client, restConfig *rest.Config) *Client {
	return &Client{clientset: clientset, ctrl: ctrl, rest: restConfig}
}

// Clientset returns the typed clientset.
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}
