package k8s

import (
	"context"
	"fmt"

	autoscalingv1 "k8s.io/api/autoscaling/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Workload kinds accepted by Scale and GetReplicas.
const (
	KindDeployment  = "Deployment"
	KindStatefulSet = "StatefulSet"
)

// WorkloadRef names a scalable workload.
type WorkloadRef struct {
	Namespace string
	Kind      string
	Name      string
}

func (w WorkloadRef) String() string {
	return fmt.Sprintf("%s %s/%s", w.Kind, w.Namespace, w.Name)
}

// GetReplicas returns the desired replica count of the workload. A missing
// workload reports found=false.
func (c *Client) GetReplicas(ctx context.Context, w WorkloadRef) (replicas int32, found bool, err error) {
	scale, err := c.getScale(ctx, w)
	if apierrors.IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get scale of %s: %w", w, err)
	}
	return scale.Spec.Replicas, true, nil
}

// Scale sets the replica count through the scale subresource.
func (c *Client) Scale(ctx context.Context, w WorkloadRef, replicas int32) error {
	scale, err := c.getScale(ctx, w)
	if err != nil {
		return fmt.Errorf("failed to get scale of %s: %w", w, err)
	}
	if scale.Spec.Replicas == replicas {
		return nil
	}
	scale.Spec.Replicas = replicas

	switch w.Kind {
	case KindStatefulSet:
		_, err = c.clientset.AppsV1().StatefulSets(w.Namespace).UpdateScale(ctx, w.Name, scale, metav1.UpdateOptions{})
	default:
		_, err = c.clientset.AppsV1().Deployments(w.Namespace).UpdateScale(ctx, w.Name, scale, metav1.UpdateOptions{})
	}
	if err != nil {
		return fmt.Errorf("failed to scale %s to %d: %w", w, replicas, err)
	}
	return nil
}

func (c *Client) getScale(ctx context.Context, w WorkloadRef) (*autoscalingv1.Scale, error) {
	switch w.Kind {
	case KindStatefulSet:
		return c.clientset.AppsV1().StatefulSets(w.Namespace).GetScale(ctx, w.Name, metav1.GetOptions{})
	case KindDeployment, "":
		return c.clientset.AppsV1().Deployments(w.Namespace).GetScale(ctx, w.Name, metav1.GetOptions{})
	default:
		return nil, fmt.Errorf("unsupported workload kind %q", w.Kind)
	}
}

// GetPods returns pods matching a label selector.
func (c *Client) GetPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	return pods.Items, nil
}

// RunningPod returns the first ready pod matching labelSelector, falling back
// to any running pod. It returns nil when none is running.
func (c *Client) RunningPod(ctx context.Context, namespace, labelSelector string) (*corev1.Pod, error) {
	pods, err := c.GetPods(ctx, namespace, labelSelector)
	if err != nil {
		return nil, err
	}

	var running *corev1.Pod
	for i := range pods {
		p := &pods[i]
		if p.DeletionTimestamp != nil || p.Status.Phase != corev1.PodRunning {
			continue
		}
		if isPodReady(p) {
			return p, nil
		}
		if running == nil {
			running = p
		}
	}
	return running, nil
}

// CreatePod creates a pod.
func (c *Client) CreatePod(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	created, err := c.clientset.CoreV1().Pods(pod.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create pod %s/%s: %w", pod.Namespace, pod.Name, err)
	}
	return created, nil
}

// DeletePod deletes a pod immediately, returning nil if not found.
func (c *Client) DeletePod(ctx context.Context, namespace, name string) error {
	grace := int64(0)
	err := c.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{GracePeriodSeconds: &grace})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete pod %s/%s: %w", namespace, name, err)
	}
	return nil
}
