package k8s

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/util/labels"
)

// Resource types served by this package.
const (
	TypeNamespace     = "namespace"
	TypeSecret        = "secret"
	TypeVolumeClaim   = "volume-claim"
	TypeClusterIssuer = "cluster-issuer"
)

// Descriptor keys.
const (
	DescSecretType   = "type"
	DescSHA256       = "sha256"
	DescSize         = "size"
	DescStorageClass = "storage_class"
	DescAPIVersion   = "api_version"
	DescKind         = "kind"

	// labelPrefix marks namespace descriptor keys that are labels.
	labelPrefix = "label/"
)

// DataManifest is the ManagedResource.Data key holding a manifest's YAML.
const DataManifest = "manifest"

// AppliedHashAnnotation records the hash of the manifest last applied to an object.
const AppliedHashAnnotation = "webui-gke.io/applied-sha256"

// ClusterIssuerGVK is cert-manager's ClusterIssuer kind.
var ClusterIssuerGVK = schema.GroupVersionKind{Group: "cert-manager.io", Version: "v1", Kind: "ClusterIssuer"}

// Drivers returns the cluster-object drivers keyed by resource type.
func (c *Client) Drivers() map[string]provisioning.Driver {
	return map[string]provisioning.Driver{
		TypeNamespace:     &NamespaceDriver{client: c},
		TypeSecret:        &SecretDriver{client: c},
		TypeVolumeClaim:   &VolumeClaimDriver{client: c},
		TypeClusterIssuer: &ManifestDriver{client: c, gvk: ClusterIssuerGVK},
	}
}

func clusterRef(typ, cluster, namespace, name string) provisioning.Ref {
	return provisioning.Ref{
		Kind:  provisioning.KindCluster,
		Type:  typ,
		Name:  name,
		Scope: provisioning.Scope{Cluster: cluster, Namespace: namespace},
	}
}

// Namespace returns a desired namespace carrying labels.
func Namespace(cluster, name string, nsLabels map[string]string) provisioning.ManagedResource {
	desc := make(map[string]string, len(nsLabels))
	for k, v := range nsLabels {
		desc[labelPrefix+k] = v
	}
	return provisioning.ManagedResource{
		Ref:        clusterRef(TypeNamespace, cluster, "", name),
		Descriptor: desc,
		Policy:     provisioning.PolicyEphemeral,
	}
}

// NamespaceDriver manages namespaces.
type NamespaceDriver struct {
	client *Client
}

// Lookup implements provisioning.Driver.
func (d *NamespaceDriver) Lookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	ns, err := d.client.GetNamespace(ctx, ref.Name)
	if err != nil || ns == nil {
		return nil, err
	}
	return namespaceObservation(ns), nil
}

// Create implements provisioning.Driver.
func (d *NamespaceDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	ns, err := d.client.EnsureNamespace(ctx, r.Name, descriptorLabels(r.Descriptor))
	if err != nil {
		return nil, err
	}
	return namespaceObservation(ns), nil
}

// Update implements provisioning.Driver.
func (d *NamespaceDriver) Update(ctx context.Context, r provisioning.ManagedResource, _ *provisioning.Observation) (*provisioning.Observation, error) {
	return d.Create(ctx, r)
}

// Delete implements provisioning.Driver.
func (d *NamespaceDriver) Delete(ctx context.Context, r provisioning.ManagedResource) error {
	return d.client.DeleteNamespace(ctx, r.Name)
}

func descriptorLabels(desc map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range desc {
		if name, ok := strings.CutPrefix(k, labelPrefix); ok {
			out[name] = v
		}
	}
	return out
}

func namespaceObservation(ns *corev1.Namespace) *provisioning.Observation {
	desc := map[string]string{}
	for k, v := range ns.Labels {
		desc[labelPrefix+k] = v
	}
	return &provisioning.Observation{Identity: "namespaces/" + ns.Name, Descriptor: desc}
}

// Secret returns a desired secret. Only a hash of data is kept in the
// descriptor; the values travel in Data and are never recorded.
func Secret(cluster, namespace, name string, secretType corev1.SecretType, data map[string][]byte) provisioning.ManagedResource {
	return provisioning.ManagedResource{
		Ref: clusterRef(TypeSecret, cluster, namespace, name),
		Descriptor: map[string]string{
			DescSecretType: string(secretType),
			DescSHA256:     DataHash(data),
		},
		Policy: provisioning.PolicyEphemeral,
		Data:   data,
	}
}

// DataHash is a stable sha256 over a secret's keys and values.
func DataHash(data map[string][]byte) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%d:", k, len(data[k]))
		h.Write(data[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SecretDriver manages opaque secrets whose values are held in memory only.
type SecretDriver struct {
	client *Client
}

// Lookup implements provisioning.Driver.
func (d *SecretDriver) Lookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	s, err := d.client.GetSecret(ctx, ref.Scope.Namespace, ref.Name)
	if err != nil || s == nil {
		return nil, err
	}
	return secretObservation(s), nil
}

// Create implements provisioning.Driver.
func (d *SecretDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	s, err := d.client.PutSecret(ctx, &corev1.Secret{
		ObjectMeta: objectMeta(r),
		Type:       corev1.SecretType(r.Descriptor[DescSecretType]),
		Data:       r.Data,
	})
	if err != nil {
		return nil, err
	}
	return secretObservation(s), nil
}

// Update implements provisioning.Driver. A changed type cannot be written in
// place, so the secret is replaced.
func (d *SecretDriver) Update(ctx context.Context, r provisioning.ManagedResource, current *provisioning.Observation) (*provisioning.Observation, error) {
	if current != nil && current.Descriptor[DescSecretType] != r.Descriptor[DescSecretType] {
		if err := d.client.DeleteSecret(ctx, r.Scope.Namespace, r.Name); err != nil {
			return nil, err
		}
	}
	return d.Create(ctx, r)
}

// Delete implements provisioning.Driver.
func (d *SecretDriver) Delete(ctx context.Context, r provisioning.ManagedResource) error {
	return d.client.DeleteSecret(ctx, r.Scope.Namespace, r.Name)
}

func secretObservation(s *corev1.Secret) *provisioning.Observation {
	return &provisioning.Observation{
		Identity: fmt.Sprintf("namespaces/%s/secrets/%s", s.Namespace, s.Name),
		Descriptor: map[string]string{
			DescSecretType: string(s.Type),
			DescSHA256:     DataHash(s.Data),
		},
	}
}

// VolumeClaim returns a desired ReadWriteOnce claim. An empty storageClass
// uses the cluster default.
func VolumeClaim(cluster, namespace, name, size, storageClass string) provisioning.ManagedResource {
	desc := map[string]string{DescSize: size}
	if storageClass != "" {
		desc[DescStorageClass] = storageClass
	}
	return provisioning.ManagedResource{
		Ref:        clusterRef(TypeVolumeClaim, cluster, namespace, name),
		Descriptor: desc,
		Policy:     provisioning.PolicyEphemeral,
	}
}

// VolumeClaimDriver manages persistent volume claims. Claims only grow.
type VolumeClaimDriver struct {
	client *Client
}

// Lookup implements provisioning.Driver.
func (d *VolumeClaimDriver) Lookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	pvc, err := d.client.GetVolumeClaim(ctx, ref.Scope.Namespace, ref.Name)
	if err != nil || pvc == nil {
		return nil, err
	}
	return claimObservation(pvc), nil
}

// Create implements provisioning.Driver.
func (d *VolumeClaimDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	pvc, err := d.client.CreateVolumeClaim(ctx, r.Scope.Namespace, r.Name, r.Descriptor[DescSize], r.Descriptor[DescStorageClass], nil)
	if err != nil {
		return nil, err
	}
	return claimObservation(pvc), nil
}

// Update implements provisioning.Driver.
func (d *VolumeClaimDriver) Update(ctx context.Context, r provisioning.ManagedResource, current *provisioning.Observation) (*provisioning.Observation, error) {
	if current != nil {
		if want, ok := r.Descriptor[DescStorageClass]; ok && current.Descriptor[DescStorageClass] != want {
			return nil, fmt.Errorf("volume claim %s cannot change storage class from %q to %q", r.Name, current.Descriptor[DescStorageClass], want)
		}
	}
	pvc, err := d.client.ExpandVolumeClaim(ctx, r.Scope.Namespace, r.Name, r.Descriptor[DescSize])
	if err != nil {
		return nil, err
	}
	return claimObservation(pvc), nil
}

// Delete implements provisioning.Driver.
func (d *VolumeClaimDriver) Delete(ctx context.Context, r provisioning.ManagedResource) error {
	return d.client.DeleteVolumeClaim(ctx, r.Scope.Namespace, r.Name)
}

func claimObservation(pvc *corev1.PersistentVolumeClaim) *provisioning.Observation {
	desc := map[string]string{}
	if qty, ok := pvc.Spec.Resources.Requests[corev1.ResourceStorage]; ok {
		desc[DescSize] = qty.String()
	}
	if pvc.Spec.StorageClassName != nil {
		desc[DescStorageClass] = *pvc.Spec.StorageClassName
	}
	return &provisioning.Observation{
		Identity:   fmt.Sprintf("namespaces/%s/persistentvolumeclaims/%s", pvc.Namespace, pvc.Name),
		Descriptor: desc,
	}
}

// Manifest returns a desired object of kind gvk rendered from manifest YAML.
// typ must name a ManifestDriver registered for gvk.
func Manifest(typ, cluster string, gvk schema.GroupVersionKind, namespace, name string, manifest []byte) provisioning.ManagedResource {
	return provisioning.ManagedResource{
		Ref: clusterRef(typ, cluster, namespace, name),
		Descriptor: map[string]string{
			DescAPIVersion: gvk.GroupVersion().String(),
			DescKind:       gvk.Kind,
			DescSHA256:     manifestHash(manifest),
		},
		Policy: provisioning.PolicyEphemeral,
		Data:   map[string][]byte{DataManifest: manifest},
	}
}

func manifestHash(manifest []byte) string {
	sum := sha256.Sum256(manifest)
	return hex.EncodeToString(sum[:])
}

// ManifestDriver server-side applies single-object manifests of one kind.
type ManifestDriver struct {
	client *Client
	gvk    schema.GroupVersionKind
}

// NewManifestDriver returns a driver for objects of kind gvk.
func NewManifestDriver(client *Client, gvk schema.GroupVersionKind) *ManifestDriver {
	return &ManifestDriver{client: client, gvk: gvk}
}

func (d *ManifestDriver) key(ref provisioning.Ref) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(d.gvk)
	obj.SetNamespace(ref.Scope.Namespace)
	obj.SetName(ref.Name)
	return obj
}

// Lookup implements provisioning.Driver. An object applied by anyone else
// carries no hash and is re-applied after adoption.
func (d *ManifestDriver) Lookup(ctx context.Context, ref provisioning.Ref) (*provisioning.Observation, error) {
	live, err := d.client.GetObject(ctx, d.key(ref))
	if err != nil || live == nil {
		return nil, err
	}
	return d.observation(live), nil
}

// Create implements provisioning.Driver.
func (d *ManifestDriver) Create(ctx context.Context, r provisioning.ManagedResource) (*provisioning.Observation, error) {
	objs, err := DecodeManifests(r.Data[DataManifest])
	if err != nil {
		return nil, err
	}
	if len(objs) != 1 {
		return nil, fmt.Errorf("manifest for %s must hold exactly one object, got %d", r.Ref, len(objs))
	}
	obj := objs[0]
	if obj.GroupVersionKind() != d.gvk || obj.GetName() != r.Name || obj.GetNamespace() != r.Scope.Namespace {
		return nil, fmt.Errorf("manifest for %s describes %s %s", r.Ref, obj.GetKind(), objectName(obj))
	}

	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[AppliedHashAnnotation] = r.Descriptor[DescSHA256]
	obj.SetAnnotations(annotations)

	if err := d.client.ApplyObject(ctx, obj); err != nil {
		return nil, err
	}
	return d.observation(obj), nil
}

// Update implements provisioning.Driver.
func (d *ManifestDriver) Update(ctx context.Context, r provisioning.ManagedResource, _ *provisioning.Observation) (*provisioning.Observation, error) {
	return d.Create(ctx, r)
}

// Delete implements provisioning.Driver.
func (d *ManifestDriver) Delete(ctx context.Context, r provisioning.ManagedResource) error {
	return d.client.DeleteObject(ctx, d.key(r.Ref))
}

func (d *ManifestDriver) observation(obj *unstructured.Unstructured) *provisioning.Observation {
	identity := fmt.Sprintf("%s/%s", strings.ToLower(d.gvk.Kind), obj.GetName())
	if ns := obj.GetNamespace(); ns != "" {
		identity = fmt.Sprintf("namespaces/%s/%s", ns, identity)
	}
	return &provisioning.Observation{
		Identity: identity,
		Descriptor: map[string]string{
			DescAPIVersion: d.gvk.GroupVersion().String(),
			DescKind:       d.gvk.Kind,
			DescSHA256:     obj.GetAnnotations()[AppliedHashAnnotation],
		},
	}
}

func objectMeta(r provisioning.ManagedResource) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:      r.Name,
		Namespace: r.Scope.Namespace,
		Labels:    map[string]string{labels.KeyManagedBy: labels.ManagedBy},
	}
}
