package k8s

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/yaml"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
)

// DecodeManifests parses multi-document YAML into objects.
// Empty documents are skipped.
func DecodeManifests(manifests []byte) ([]*unstructured.Unstructured, error) {
	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(manifests), 4096)

	var objs []*unstructured.Unstructured
	for docIndex := 0; ; docIndex++ {
		var obj unstructured.Unstructured
		if err := decoder.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode manifest document %d: %w", docIndex, err)
		}
		if len(obj.Object) == 0 {
			continue
		}
		if obj.GetKind() == "" {
			return nil, fmt.Errorf("manifest document %d has no kind", docIndex)
		}
		objs = append(objs, &obj)
	}
	return objs, nil
}

// ApplyObject applies obj using Server-Side Apply, taking ownership of
// conflicting fields.
func (c *Client) ApplyObject(ctx context.Context, obj *unstructured.Unstructured) error {
	//nolint:staticcheck // unstructured objects have no apply configuration
	err := c.ctrl.Patch(ctx, obj, ctrlclient.Apply,
		ctrlclient.FieldOwner(FieldManager),
		ctrlclient.ForceOwnership,
	)
	if err != nil {
		return fmt.Errorf("failed to apply %s %s: %w", obj.GetKind(), objectName(obj), err)
	}
	return nil
}

// ApplyManifests applies every object in multi-document YAML.
func (c *Client) ApplyManifests(ctx context.Context, manifests []byte) error {
	objs, err := DecodeManifests(manifests)
	if err != nil {
		return err
	}
	for _, obj := range objs {
		if err := c.ApplyObject(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// GetObject reads the live object with obj's kind, namespace and name.
// It returns nil when the object or its kind does not exist.
func (c *Client) GetObject(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	live := &unstructured.Unstructured{}
	live.SetGroupVersionKind(obj.GroupVersionKind())
	err := c.ctrl.Get(ctx, ctrlclient.ObjectKeyFromObject(obj), live)
	if apierrors.IsNotFound(err) || meta.IsNoMatchError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", obj.GetKind(), objectName(obj), err)
	}
	return live, nil
}

// DeleteObject deletes the object, returning nil if it or its kind is gone.
func (c *Client) DeleteObject(ctx context.Context, obj *unstructured.Unstructured) error {
	err := c.ctrl.Delete(ctx, obj)
	if err != nil && !apierrors.IsNotFound(err) && !meta.IsNoMatchError(err) {
		return fmt.Errorf("failed to delete %s %s: %w", obj.GetKind(), objectName(obj), err)
	}
	return nil
}

func objectName(obj *unstructured.Unstructured) string {
	if ns := obj.GetNamespace(); ns != "" {
		return ns + "/" + obj.GetName()
	}
	return obj.GetName()
}
