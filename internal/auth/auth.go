package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sendrec/watchtrail/internal/httputil"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	scopeKey  contextKey = "scope"
)

type Authenticator struct {
	jwtSecret string
}

func New(jwtSecret string) *Authenticator {
	return &Authenticator{jwtSecret: jwtSecret}
}

// Middleware accepts any valid bearer token and records its user and scope.
// Routes narrow access further with RequireScope.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := ValidateToken(a.jwtSecret, tokenStr)
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := ContextWithUserID(r.Context(), claims.UserID())
		ctx = context.WithValue(ctx, scopeKey, claims.Scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope lets owner tokens through everywhere and other tokens only
// when their scope is one of scopes.
func RequireScope(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := ScopeFromContext(r.Context())
			if scope != ScopeOwner && !contains(scopes, scope) {
				httputil.WriteError(w, http.StatusForbidden, "token scope does not allow this request")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func ScopeFromContext(ctx context.Context) string {
	scope, _ := ctx.Value(scopeKey).(string)
	return scope
}
