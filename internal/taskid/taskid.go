package taskid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New generates a random UUID v4 task ID.
func New() string {
	return uuid.NewString()
}

// WithTaskID returns a copy of ctx with the task ID attached. The front door
// attaches the request ID here; the listener attaches the job ID, so every log
// line written while a message is being processed carries it.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the task ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
