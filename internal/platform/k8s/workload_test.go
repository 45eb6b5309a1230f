package k8s

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func testPod(name string, phase corev1.PodPhase, ready bool) *corev1.Pod {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "open-webui",
			Labels:    map[string]string{"app.kubernetes.io/name": "open-webui"},
		},
		Status: corev1.PodStatus{
			Phase:      phase,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: status}},
		},
	}
}

const selector = "app.kubernetes.io/name=open-webui"

func TestRunningPod_PrefersReady(t *testing.T) {
	c, _ := newTestClient(t,
		testPod("pending", corev1.PodPending, false),
		testPod("starting", corev1.PodRunning, false),
		testPod("ready", corev1.PodRunning, true),
	)

	pod, err := c.RunningPod(context.Background(), "open-webui", selector)
	require.NoError(t, err)
	require.NotNil(t, pod)
	assert.Equal(t, "ready", pod.Name)
}

func TestRunningPod_FallsBackToRunning(t *testing.T) {
	c, _ := newTestClient(t, testPod("starting", corev1.PodRunning, false))

	pod, err := c.RunningPod(context.Background(), "open-webui", selector)
	require.NoError(t, err)
	require.NotNil(t, pod)
	assert.Equal(t, "starting", pod.Name)
}

func TestRunningPod_None(t *testing.T) {
	c, _ := newTestClient(t, testPod("pending", corev1.PodPending, false))

	pod, err := c.RunningPod(context.Background(), "open-webui", selector)
	require.NoError(t, err)
	assert.Nil(t, pod)
}

func TestWaitForPodsReady(t *testing.T) {
	fastPolling(t)
	c, _ := newTestClient(t, testPod("ready", corev1.PodRunning, true))

	err := c.WaitForPodsReady(context.Background(), "open-webui", selector, time.Second)
	assert.NoError(t, err)
}

func TestWaitForPodsReady_Timeout(t *testing.T) {
	fastPolling(t)
	c, _ := newTestClient(t, testPod("starting", corev1.PodRunning, false))

	err := c.WaitForPodsReady(context.Background(), "open-webui", selector, 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestWaitForPodRunning_FailedPod(t *testing.T) {
	fastPolling(t)
	c, _ := newTestClient(t, testPod("helper", corev1.PodFailed, false))

	err := c.WaitForPodRunning(context.Background(), "open-webui", "helper", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminated")
}

func TestWaitForPodsGone(t *testing.T) {
	fastPolling(t)
	c, _ := newTestClient(t)

	assert.NoError(t, c.WaitForPodsGone(context.Background(), "open-webui", selector, time.Second))
}

func TestDeletePod_Missing(t *testing.T) {
	c, _ := newTestClient(t)
	assert.NoError(t, c.DeletePod(context.Background(), "open-webui", "nope"))
}

func TestExec_RequiresRESTConfig(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Exec(context.Background(), ExecRequest{Namespace: "open-webui", Pod: "p", Command: []string{"true"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no REST config")
}

func TestGetScale_UnsupportedKind(t *testing.T) {
	c, _ := newTestClient(t)
	_, _, err := c.GetReplicas(context.Background(), WorkloadRef{Namespace: "open-webui", Kind: "DaemonSet", Name: "x"})
	assert.Error(t, err)
}
