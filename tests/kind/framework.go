//go:build kind

// Package kind runs the cluster-side phases against a local kind cluster:
// the ingress and cert-manager releases, the TLS secret and Open WebUI.
package kind

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

const clusterName = "webui-gke-test"

// skipError marks setup failures that mean the host cannot run the suite.
type skipError string

func (e skipError) Error() string { return string(e) }

// Framework owns the kind cluster for the suite.
type Framework struct {
	kubeconfig []byte
	clientset  kubernetes.Interface
	created    bool
}

// NewFramework creates a test framework instance.
func NewFramework() *Framework {
	return &Framework{}
}

// Setup creates the kind cluster, or reuses one left by an earlier run.
func (f *Framework) Setup() error {
	if _, err := exec.LookPath("kind"); err != nil {
		return skipError("kind not installed")
	}
	if err := exec.Command("docker", "info").Run(); err != nil {
		return skipError("docker not running")
	}

	out, err := exec.Command("kind", "get", "clusters").Output()
	if err != nil {
		return fmt.Errorf("list kind clusters: %w", err)
	}
	if strings.Contains(string(out), clusterName) {
		fmt.Printf("Using existing kind cluster: %s\n", clusterName)
	} else {
		fmt.Printf("Creating kind cluster: %s\n", clusterName)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		// #nosec G204 -- test code with controlled command arguments
		cmd := exec.CommandContext(ctx, "kind", "create", "cluster", "--name", clusterName, "--wait", "120s")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("create cluster: %w", err)
		}
		f.created = true
	}

	f.kubeconfig, err = exec.Command("kind", "get", "kubeconfig", "--name", clusterName).Output()
	if err != nil {
		return fmt.Errorf("get kubeconfig: %w", err)
	}
	restConfig, err := clientcmd.RESTConfigFromKubeConfig(f.kubeconfig)
	if err != nil {
		return fmt.Errorf("parse kubeconfig: %w", err)
	}
	f.clientset, err = kubernetes.NewForConfig(restConfig)
	return err
}

// Teardown deletes a cluster this run created, unless KEEP_KIND_CLUSTER is set.
func (f *Framework) Teardown() {
	if !f.created {
		return
	}
	if os.Getenv("KEEP_KIND_CLUSTER") != "" {
		fmt.Printf("\nCluster preserved: kind delete cluster --name %s\n", clusterName)
		return
	}
	fmt.Printf("Deleting kind cluster: %s\n", clusterName)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	_ = exec.CommandContext(ctx, "kind", "delete", "cluster", "--name", clusterName).Run()
}

// Kubeconfig returns the kubeconfig of the cluster.
func (f *Framework) Kubeconfig() []byte {
	return f.kubeconfig
}
