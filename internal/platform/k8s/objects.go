package k8s

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// GetNamespace returns the namespace, or nil when it does not exist.
func (c *Client) GetNamespace(ctx context.Context, name string) (*corev1.Namespace, error) {
	ns, err := c.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get namespace %s: %w", name, err)
	}
	return ns, nil
}

// EnsureNamespace creates the namespace if absent and sets labels on it.
func (c *Client) EnsureNamespace(ctx context.Context, name string, labels map[string]string) (*corev1.Namespace, error) {
	ns, err := c.GetNamespace(ctx, name)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		ns = &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels}}
		created, err := c.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create namespace %s: %w", name, err)
		}
		return created, nil
	}

	if ns.Labels == nil {
		ns.Labels = map[string]string{}
	}
	for k, v := range labels {
		ns.Labels[k] = v
	}
	updated, err := c.clientset.CoreV1().Namespaces().Update(ctx, ns, metav1.UpdateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to label namespace %s: %w", name, err)
	}
	return updated, nil
}

// DeleteNamespace deletes a namespace, returning nil if not found.
func (c *Client) DeleteNamespace(ctx context.Context, name string) error {
	err := c.clientset.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete namespace %s: %w", name, err)
	}
	return nil
}

// GetSecret returns the secret, or nil when it does not exist.
func (c *Client) GetSecret(ctx context.Context, namespace, name string) (*corev1.Secret, error) {
	secret, err := c.clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s/%s: %w", namespace, name, err)
	}
	return secret, nil
}

// CreateSecretIfAbsent creates the secret unless one with the same name
// exists. It reports whether it created the secret.
func (c *Client) CreateSecretIfAbsent(ctx context.Context, secret *corev1.Secret) (bool, error) {
	_, err := c.clientset.CoreV1().Secrets(secret.Namespace).Create(ctx, secret, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create secret %s/%s: %w", secret.Namespace, secret.Name, err)
	}
	return true, nil
}

// PutSecret creates or updates a secret.
func (c *Client) PutSecret(ctx context.Context, secret *corev1.Secret) (*corev1.Secret, error) {
	secrets := c.clientset.CoreV1().Secrets(secret.Namespace)
	created, err := secrets.Create(ctx, secret, metav1.CreateOptions{})
	if err == nil {
		return created, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return nil, fmt.Errorf("failed to create secret %s/%s: %w", secret.Namespace, secret.Name, err)
	}

	current, err := secrets.Get(ctx, secret.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s/%s: %w", secret.Namespace, secret.Name, err)
	}
	current.Data = secret.Data
	current.Type = secret.Type
	current.Labels = secret.Labels
	updated, err := secrets.Update(ctx, current, metav1.UpdateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to update secret %s/%s: %w", secret.Namespace, secret.Name, err)
	}
	return updated, nil
}

// DeleteSecret deletes a secret, returning nil if not found.
func (c *Client) DeleteSecret(ctx context.Context, namespace, name string) error {
	err := c.clientset.CoreV1().Secrets(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete secret %s/%s: %w", namespace, name, err)
	}
	return nil
}

// GetVolumeClaim returns the claim, or nil when it does not exist.
func (c *Client) GetVolumeClaim(ctx context.Context, namespace, name string) (*corev1.PersistentVolumeClaim, error) {
	pvc, err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get volume claim %s/%s: %w", namespace, name, err)
	}
	return pvc, nil
}

// CreateVolumeClaim creates a ReadWriteOnce claim of size.
func (c *Client) CreateVolumeClaim(ctx context.Context, namespace, name, size, storageClass string, labels map[string]string) (*corev1.PersistentVolumeClaim, error) {
	qty, err := resource.ParseQuantity(size)
	if err != nil {
		return nil, fmt.Errorf("invalid volume size %q: %w", size, err)
	}
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: qty},
			},
		},
	}
	if storageClass != "" {
		pvc.Spec.StorageClassName = &storageClass
	}
	created, err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).Create(ctx, pvc, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create volume claim %s/%s: %w", namespace, name, err)
	}
	return created, nil
}

// ExpandVolumeClaim raises the requested size of a claim. Claims never shrink.
func (c *Client) ExpandVolumeClaim(ctx context.Context, namespace, name, size string) (*corev1.PersistentVolumeClaim, error) {
	qty, err := resource.ParseQuantity(size)
	if err != nil {
		return nil, fmt.Errorf("invalid volume size %q: %w", size, err)
	}
	pvc, err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get volume claim %s/%s: %w", namespace, name, err)
	}
	current := pvc.Spec.Resources.Requests[corev1.ResourceStorage]
	if qty.Cmp(current) < 0 {
		return nil, fmt.Errorf("volume claim %s/%s cannot shrink from %s to %s", namespace, name, current.String(), size)
	}
	pvc.Spec.Resources.Requests[corev1.ResourceStorage] = qty
	updated, err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).Update(ctx, pvc, metav1.UpdateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to expand volume claim %s/%s: %w", namespace, name, err)
	}
	return updated, nil
}

// DeleteVolumeClaim deletes a claim, returning nil if not found.
func (c *Client) DeleteVolumeClaim(ctx context.Context, namespace, name string) error {
	err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete volume claim %s/%s: %w", namespace, name, err)
	}
	return nil
}
