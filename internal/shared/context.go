package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the id of the user acting on the request. Identity
// is established upstream; zero means the system itself.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user id, or zero.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
