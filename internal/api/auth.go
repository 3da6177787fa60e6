package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/opencivics/hustings/internal/auth"
	"github.com/opencivics/hustings/internal/middleware"
)

// actorKey is the context key for the authenticated actor.
type actorKey struct{}

// ActorFrom retrieves the authenticated actor from context.
func ActorFrom(ctx context.Context) (auth.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(auth.Actor)
	return actor, ok
}

// WithActor stores the actor in the context. Exposed for handler tests.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Authenticate parses the bearer token and stores the actor in the request
// context. Requests without a token pass through unauthenticated; handlers
// that need an actor reject those with 401. An invalid token is always a
// 401 so clients learn about expiry instead of acting anonymous.
func Authenticate(parser *auth.TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Authorization header must use the Bearer scheme")
				return
			}

			actor, err := parser.Parse(token)
			if err != nil {
				WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid or expired token")
				return
			}

			ctx := WithActor(r.Context(), actor)
			ctx = middleware.SetUserID(ctx, actor.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireActor fetches the actor or writes a 401. Handlers use the second
// return value to bail out.
func requireActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return auth.Actor{}, false
	}
	return actor, true
}
