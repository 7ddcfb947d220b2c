package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/signalix/accounts/internal/auth"
	"github.com/signalix/accounts/internal/logging"
	"github.com/signalix/accounts/internal/model"
)

type contextKey string

const userKey contextKey = "user"

// RoutePolicy is the access rule of one route.
type RoutePolicy struct {
	// BypassAuth lets every request through.
	BypassAuth bool
	// RequireToken rejects requests without a bearer token before any
	// verification is attempted.
	RequireToken bool
	// AllowedRoles defaults to user and admin when empty.
	AllowedRoles []model.Role
}

// Public is the policy of routes open to anyone.
var Public = RoutePolicy{BypassAuth: true}

// Authenticated returns a policy that requires a valid token held by one of
// roles.
func Authenticated(roles ...model.Role) RoutePolicy {
	return RoutePolicy{RequireToken: true, AllowedRoles: roles}
}

// Gate enforces policy in front of a route. Every rejection, including a
// panic while verifying, is the same 401 so callers learn nothing about why.
func Gate(verifier auth.TokenVerifier, policy RoutePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.BypassAuth {
				next.ServeHTTP(w, r)
				return
			}

			user, ok := authorize(r, verifier, policy)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, auth.MsgUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authorize(r *http.Request, verifier auth.TokenVerifier, policy RoutePolicy) (user *model.User, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.FromContext(r.Context()).Error().Interface("panic", rec).Msg("Authorization panicked")
			user, ok = nil, false
		}
	}()

	token := BearerToken(r)
	if token == "" && policy.RequireToken {
		return nil, false
	}
	return verifier.Verify(r.Context(), token, policy.AllowedRoles...)
}

// BearerToken returns the second word of the Authorization header.
func BearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// GetUser returns the user attached to the request context (set by Gate)
func GetUser(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// WithUser attaches user to ctx the way Gate does.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(auth.Result{StatusCode: statusCode, Message: []string{message}})
}
