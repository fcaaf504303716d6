package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/threeway/internal/shared"
)

const (
	// HeaderActorID carries the authenticated user id set by the gateway.
	HeaderActorID = "X-Actor-ID"
	// HeaderActorRoles carries a comma separated role list.
	HeaderActorRoles = "X-Actor-Roles"
	// HeaderReadYourWrites forces list reads onto the primary.
	HeaderReadYourWrites = "X-Read-Your-Writes"
)

// ActorFromHeaders stores the forwarded actor in the request context.
// Requests without a valid id pass through anonymous.
func ActorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderActorID)), 10, 64); err == nil && id > 0 {
			ctx = shared.ContextWithActor(ctx, shared.Actor{ID: id, Roles: splitRoles(r.Header.Get(HeaderActorRoles))})
		}
		if r.Header.Get(HeaderReadYourWrites) == "1" {
			ctx = shared.WithPrimaryRead(ctx)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireActor rejects requests that carry no actor.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.ActorFromContext(r.Context()); !ok {
			RespondError(w, ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func splitRoles(raw string) []string {
	var roles []string
	for _, part := range strings.Split(raw, ",") {
		if role := strings.TrimSpace(part); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
