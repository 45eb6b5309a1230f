package k8s

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

// pollInterval is the delay between readiness checks. Tests shorten it.
var pollInterval = 5 * time.Second

// WaitForPodRunning waits until the pod is running.
func (c *Client) WaitForPodRunning(ctx context.Context, namespace, name string, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		pod, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		if pod.Status.Phase == corev1.PodFailed || pod.Status.Phase == corev1.PodSucceeded {
			return false, fmt.Errorf("pod %s/%s terminated with phase %s", namespace, name, pod.Status.Phase)
		}
		return pod.Status.Phase == corev1.PodRunning, nil
	})
	if err != nil {
		return fmt.Errorf("pod %s/%s not running: %w", namespace, name, err)
	}
	return nil
}

// WaitForPodsReady waits for all pods matching a label selector to become ready.
func (c *Client) WaitForPodsReady(ctx context.Context, namespace, labelSelector string, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		pods, err := c.GetPods(ctx, namespace, labelSelector)
		if err != nil || len(pods) == 0 {
			return false, nil
		}
		for i := range pods {
			if !isPodReady(&pods[i]) {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("pods %q in %s not ready: %w", labelSelector, namespace, err)
	}
	return nil
}

// WaitForPodsGone waits until no pod matches the label selector.
func (c *Client) WaitForPodsGone(ctx context.Context, namespace, labelSelector string, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		pods, err := c.GetPods(ctx, namespace, labelSelector)
		if err != nil {
			return false, nil
		}
		return len(pods) == 0, nil
	})
	if err != nil {
		return fmt.Errorf("pods %q in %s still present: %w", labelSelector, namespace, err)
	}
	return nil
}

// WaitForPodDeleted waits until the named pod no longer exists.
func (c *Client) WaitForPodDeleted(ctx context.Context, namespace, name string, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		_, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
		return apierrors.IsNotFound(err), nil
	})
}

// isPodReady checks if a pod is ready.
func isPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}

	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady &&
			condition.Status == corev1.ConditionTrue {
			return true
		}
	}

	return false
}
