package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// authUserKey is a context key for the authenticated user.
type authUserKey struct{}

// ClaimsFromContext returns the verified claims, or nil for anonymous callers.
func ClaimsFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(authUserKey{}).(*Claims); ok {
		return c
	}
	return nil
}

// UserID returns the authenticated user ID, or "" for anonymous callers.
func UserID(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID()
	}
	return ""
}

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, authUserKey{}, c)
}

// Middleware attaches claims to the request context when a valid bearer
// token is present. Missing or invalid tokens leave the request anonymous.
// WebSocket paths may pass the token as a query parameter, since browsers
// cannot set headers on the upgrade request.
func Middleware(v *Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil || !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := v.Verify(token)
			if err != nil {
				logger.Debug("ignoring invalid token",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if strings.HasPrefix(r.URL.Path, "/api/v1/ws/") {
		return r.URL.Query().Get("token")
	}
	return ""
}
