package types

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	taskKey      contextKey = "task"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithTaskName tags the context with the scheduler task currently running so
// downstream clients can attach it to outbound calls and log lines.
func WithTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskKey, name)
}

// GetTaskName returns the scheduler task name, or "" outside a task run.
func GetTaskName(ctx context.Context) string {
	name, _ := ctx.Value(taskKey).(string)
	return name
}
