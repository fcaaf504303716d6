package shared

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
)

type actorContextKey struct{}

type primaryReadContextKey struct{}

// Actor identifies the caller as forwarded by the gateway.
type Actor struct {
	ID    int64    `json:"id"`
	Roles []string `json:"roles"`
}

// Valid reports whether the actor carries an identity.
func (a Actor) Valid() bool {
	return a.ID > 0
}

// HasAnyRole reports whether any actor role matches one of the required roles.
// Comparison uses Unicode case folding.
func (a Actor) HasAnyRole(required []string) bool {
	if len(required) == 0 {
		return true
	}
	held := make(map[string]struct{}, len(a.Roles))
	for _, role := range a.Roles {
		held[FoldKey(role)] = struct{}{}
	}
	for _, role := range required {
		if _, ok := held[FoldKey(role)]; ok {
			return true
		}
	}
	return false
}

// FoldKey normalises a code or role name for case-insensitive comparison.
func FoldKey(value string) string {
	return cases.Fold().String(strings.TrimSpace(value))
}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.Valid()
}

// WithPrimaryRead marks the context so list queries bypass the read replica.
func WithPrimaryRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, primaryReadContextKey{}, true)
}

// PrimaryReadRequested reports whether WithPrimaryRead was applied.
func PrimaryReadRequested(ctx context.Context) bool {
	v, _ := ctx.Value(primaryReadContextKey{}).(bool)
	return v
}
