// Package identity carries the authenticated actor through request contexts.
package identity

import (
	"context"

	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
)

type ctxKey string

const actorKey ctxKey = "barbershop.actor"

// WithActor stores the authenticated actor in context.
func WithActor(ctx context.Context, actor scheduling.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor if present.
func ActorFromContext(ctx context.Context) (scheduling.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(scheduling.Actor)
	return actor, ok && actor.ID != "" && actor.Role != ""
}
