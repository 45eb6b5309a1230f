package k8s

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/kubernetes/scheme"
	ctrlfake "sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func newTestClient(t *testing.T, objs ...runtime.Object) (*Client, *fake.Clientset) {
	t.Helper()
	//nolint:staticcheck // SA1019: NewSimpleClientset is sufficient for our testing needs
	cs := fake.NewSimpleClientset(objs...)
	ctrl := ctrlfake.NewClientBuilder().WithScheme(scheme.Scheme).Build()
	return NewClient(cs, ctrl, nil), cs
}

func fastPolling(t *testing.T) {
	t.Helper()
	old := pollInterval
	pollInterval = 10 * time.Millisecond
	t.Cleanup(func() { pollInterval = old })
}

func TestEnsureNamespace(t *testing.T) {
	ctx := context.Background()
	c, cs := newTestClient(t)

	_, err := c.EnsureNamespace(ctx, "open-webui", map[string]string{"team": "chat"})
	require.NoError(t, err)

	_, err = c.EnsureNamespace(ctx, "open-webui", map[string]string{"tier": "app"})
	require.NoError(t, err)

	ns, err := cs.CoreV1().Namespaces().Get(ctx, "open-webui", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "chat", ns.Labels["team"])
	assert.Equal(t, "app", ns.Labels["tier"])

	require.NoError(t, c.DeleteNamespace(ctx, "open-webui"))
	require.NoError(t, c.DeleteNamespace(ctx, "open-webui"), "deleting twice is fine")

	got, err := c.GetNamespace(ctx, "open-webui")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateSecretIfAbsent(t *testing.T) {
	ctx := context.Background()
	existing := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "webui-tls", Namespace: "open-webui"},
		Data:       map[string][]byte{"tls.crt": []byte("old")},
	}
	c, cs := newTestClient(t, existing)

	created, err := c.CreateSecretIfAbsent(ctx, &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "webui-tls", Namespace: "open-webui"},
		Data:       map[string][]byte{"tls.crt": []byte("new")},
	})
	require.NoError(t, err)
	assert.False(t, created)

	s, err := cs.CoreV1().Secrets("open-webui").Get(ctx, "webui-tls", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), s.Data["tls.crt"], "existing secret is left alone")

	created, err = c.CreateSecretIfAbsent(ctx, &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "other", Namespace: "open-webui"},
	})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestPutSecret_Overwrites(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "openrouter", Namespace: "open-webui"},
		Data:       map[string][]byte{"api-key": []byte("one")},
	}
	_, err := c.PutSecret(ctx, secret)
	require.NoError(t, err)

	secret = secret.DeepCopy()
	secret.Data = map[string][]byte{"api-key": []byte("two")}
	_, err = c.PutSecret(ctx, secret)
	require.NoError(t, err)

	got, err := c.GetSecret(ctx, "open-webui", "openrouter")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got.Data["api-key"])

	require.NoError(t, c.DeleteSecret(ctx, "open-webui", "openrouter"))
	got, err = c.GetSecret(ctx, "open-webui", "openrouter")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestVolumeClaim_ExpandOnly(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	_, err := c.CreateVolumeClaim(ctx, "open-webui", "open-webui-data", "10Gi", "", nil)
	require.NoError(t, err)

	pvc, err := c.ExpandVolumeClaim(ctx, "open-webui", "open-webui-data", "20Gi")
	require.NoError(t, err)
	qty := pvc.Spec.Resources.Requests[corev1.ResourceStorage]
	assert.Equal(t, 0, qty.Cmp(resource.MustParse("20Gi")))

	_, err = c.ExpandVolumeClaim(ctx, "open-webui", "open-webui-data", "5Gi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot shrink")

	_, err = c.CreateVolumeClaim(ctx, "open-webui", "bad", "lots", "", nil)
	assert.Error(t, err)
}
