// Package async runs independent read-only lookups concurrently.
package async

import (
	"context"
	"errors"
	"fmt"
)

// Task is a named operation.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Run executes tasks concurrently and waits for all of them. Every failure
// is returned, wrapped with its task name, in task order.
func Run(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}

	errs := make([]error, len(tasks))
	done := make(chan struct{}, len(tasks))
	for i, task := range tasks {
		go func() {
			defer func() { done <- struct{}{} }()
			if err := task.Func(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", task.Name, err)
			}
		}()
	}
	for range tasks {
		<-done
	}
	return errors.Join(errs...)
}
