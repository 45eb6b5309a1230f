package k8s

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
)

// ExecRequest is one non-interactive command run in a pod container.
type ExecRequest struct {
	Namespace string
	Pod       string
	Container string
	Command   []string
	// Stdin is streamed to the command when set.
	Stdin io.Reader
	// Stdout receives the command output. When nil, output is buffered and
	// returned by Exec.
	Stdout io.Writer
}

// Exec runs a command in a pod and returns its stdout when req.Stdout is nil.
// A non-zero exit is returned as an error carrying stderr.
func (c *Client) Exec(ctx context.Context, req ExecRequest) ([]byte, error) {
	if c.rest == nil {
		return nil, fmt.Errorf("exec in %s/%s: no REST config", req.Namespace, req.Pod)
	}

	call := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(req.Namespace).
		Name(req.Pod).
		SubResource("exec")
	call.VersionedParams(&corev1.PodExecOptions{
		Container: req.Container,
		Command:   req.Command,
		Stdin:     req.Stdin != nil,
		Stdout:    true,
		Stderr:    true,
	}, scheme.ParameterCodec)

	ex, err := remotecommand.NewSPDYExecutor(c.rest, "POST", call.URL())
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}

	var stdout, stderr bytes.Buffer
	out := req.Stdout
	if out == nil {
		out = &stdout
	}
	err = ex.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  req.Stdin,
		Stdout: out,
		Stderr: &stderr,
	})
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("exec %s in %s/%s: %w: %s", strings.Join(req.Command, " "), req.Namespace, req.Pod, err, msg)
		}
		return nil, fmt.Errorf("exec %s in %s/%s: %w", strings.Join(req.Command, " "), req.Namespace, req.Pod, err)
	}
	return stdout.Bytes(), nil
}
