package shared

import "context"

type actorContextKey struct{}

// SystemActor is recorded when no caller identity is present.
const SystemActor = "system"

// ContextWithActor stores the calling user or service in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the caller, falling back to SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}

// ActorHeader carries the calling user or service between services.
const ActorHeader = "X-Actor"
