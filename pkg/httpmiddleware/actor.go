package httpmiddleware

import (
	"context"
	"net/http"
)

// ActorHeader carries the authenticated user ID set by the upstream gateway.
const ActorHeader = "X-Actor-ID"

type actorKey struct{}

// ActorFromContext returns the acting user ID, or "" for anonymous requests.
func ActorFromContext(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor stores the X-Actor-ID header in the request context. Malformed
// values are rejected with 400.
func Actor() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(ActorHeader)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !printableASCII(id, 128) {
				writeError(w, http.StatusBadRequest, "invalid "+ActorHeader+" header")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), id)))
		})
	}
}

// printableASCII reports whether s is non-empty, at most max bytes and
// consists of 0x20..0x7E only.
func printableASCII(s string, max int) bool {
	if len(s) == 0 || len(s) > max {
		return false
	}
	for i := range len(s) {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}
