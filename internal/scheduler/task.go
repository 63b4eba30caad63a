// Package scheduler runs periodic maintenance and report tasks on cron
// schedules.
package scheduler

import "context"

// Task is a unit of periodic work. Run should respect ctx cancellation.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}
