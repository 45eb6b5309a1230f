//go:build kind

package kind

import (
	"context"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

const pollInterval = 5 * time.Second

// waitFor polls until condition holds, dumping the namespace on timeout.
func (f *Framework) waitFor(t *testing.T, namespace, desc string, timeout time.Duration, condition wait.ConditionWithContextFunc) {
	t.Helper()
	t.Logf("Waiting for %s...", desc)
	err := wait.PollUntilContextTimeout(context.Background(), pollInterval, timeout, true, condition)
	if err != nil {
		f.DumpNamespace(t, namespace)
		t.Fatalf("timeout waiting for %s: %v", desc, err)
	}
	t.Logf("  ✓ %s", desc)
}

// WaitForDeployment waits until every replica of a deployment is ready.
func (f *Framework) WaitForDeployment(t *testing.T, namespace, name string, timeout time.Duration) {
	t.Helper()
	f.waitFor(t, namespace, "deployment "+namespace+"/"+name, timeout, func(ctx context.Context) (bool, error) {
		d, err := f.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return d.Status.ReadyReplicas > 0 && d.Status.ReadyReplicas == d.Status.Replicas, nil
	})
}

// WaitForStatefulSet waits until every replica of a stateful set is ready.
func (f *Framework) WaitForStatefulSet(t *testing.T, namespace, name string, timeout time.Duration) {
	t.Helper()
	f.waitFor(t, namespace, "statefulset "+namespace+"/"+name, timeout, func(ctx context.Context) (bool, error) {
		s, err := f.clientset.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return s.Status.ReadyReplicas > 0 && s.Status.ReadyReplicas == s.Status.Replicas, nil
	})
}

// Secret fails the test unless the secret exists, and returns it.
func (f *Framework) Secret(t *testing.T, namespace, name string) *corev1.Secret {
	t.Helper()
	s, err := f.clientset.CoreV1().Secrets(namespace).Get(context.Background(), name, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("secret %s/%s: %v", namespace, name, err)
	}
	return s
}

// DeleteSecret removes a secret, ignoring one that is already gone.
func (f *Framework) DeleteSecret(t *testing.T, namespace, name string) {
	t.Helper()
	err := f.clientset.CoreV1().Secrets(namespace).Delete(context.Background(), name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		t.Fatalf("delete secret %s/%s: %v", namespace, name, err)
	}
}

// DumpNamespace logs the pods and recent events of a namespace.
func (f *Framework) DumpNamespace(t *testing.T, namespace string) {
	t.Helper()
	ctx := context.Background()
	t.Logf("\n=== Namespace %s ===", namespace)

	if pods, err := f.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{}); err == nil {
		for _, p := range pods.Items {
			t.Logf("pod %s: %s", p.Name, p.Status.Phase)
		}
	}
	if events, err := f.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{}); err == nil {
		for _, e := range events.Items {
			t.Logf("event %s/%s: %s %s", e.InvolvedObject.Kind, e.InvolvedObject.Name, e.Reason, e.Message)
		}
	}
}
