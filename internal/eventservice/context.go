package eventservice

import (
	"context"

	"github.com/boredhf/conexus/internal/message"
)

type priorityCtxKey struct{}
type originalNodeCtxKey struct{}

func withEventContext(ctx context.Context, priority message.Priority, originalNodeID string) context.Context {
	ctx = context.WithValue(ctx, priorityCtxKey{}, priority)
	ctx = context.WithValue(ctx, originalNodeCtxKey{}, originalNodeID)
	return ctx
}

// PriorityFromContext returns the priority of the NetworkEventMessage
// wrapper that produced the listener invocation carrying ctx.
func PriorityFromContext(ctx context.Context) (message.Priority, bool) {
	v, ok := ctx.Value(priorityCtxKey{}).(message.Priority)
	return v, ok
}

// OriginalNodeIDFromContext returns the originating node id of the
// event that produced the listener invocation carrying ctx.
func OriginalNodeIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(originalNodeCtxKey{}).(string)
	return v, ok
}
