package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	container "google.golang.org/api/container/v1"
	serviceusage "google.golang.org/api/serviceusage/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

// pollInterval is how often long-running operations are polled.
var pollInterval = 5 * time.Second

// waitContainerOperation polls a GKE operation until it is DONE or timeout
// passes. Transient polling errors are tolerated.
func waitContainerOperation(ctx context.Context, get func(ctx context.Context, name string) (*container.Operation, error),
	name string, timeout time.Duration) error {
	var last *container.Operation
	err := wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		op, err := get(ctx, name)
		if err != nil {
			if IsRetryable(err) {
				return false, nil
			}
			return false, err
		}
		last = op
		return op.Status == "DONE", nil
	})
	if err != nil {
		return fmt.Errorf("operation %s did not complete: %w", name, err)
	}
	if last.Error != nil && last.Error.Message != "" {
		return fmt.Errorf("operation %s failed: %s", name, last.Error.Message)
	}
	return nil
}

// waitServiceOperation polls a Service Usage operation until it is done.
func waitServiceOperation(ctx context.Context, get func(ctx context.Context, name string) (*serviceusage.Operation, error),
	op *serviceusage.Operation, timeout time.Duration) error {
	if op == nil {
		return nil
	}
	last := op
	if !op.Done {
		err := wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
			cur, err := get(ctx, op.Name)
			if err != nil {
				if IsRetryable(err) {
					return false, nil
				}
				return false, err
			}
			last = cur
			return cur.Done, nil
		})
		if err != nil {
			return fmt.Errorf("operation %s did not complete: %w", op.Name, err)
		}
	}
	if last.Error != nil {
		return fmt.Errorf("operation %s failed: %s", op.Name, last.Error.Message)
	}
	return nil
}

// operationName returns the fully qualified name of a GKE operation started
// against resource, which must be a projects/*/locations/*/... path.
func operationName(resource, op string) string {
	parts := strings.SplitN(resource, "/", 5)
	if len(parts) < 4 {
		return op
	}
	return strings.Join(parts[:4], "/") + "/operations/" + op
}
