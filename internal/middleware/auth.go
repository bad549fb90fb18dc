package middleware

import (
	"context"
	"net/http"
	"strings"

	"telehealth-backend/internal/auth"
	"telehealth-backend/internal/transport"
)

type callerKey struct{}

// Auth parses the bearer token and stores the resulting Caller in the request
// context. Handlers read it with CallerFromContext and pass it explicitly into
// services.
func Auth(manager *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				transport.WriteError(w, http.StatusServiceUnavailable, "auth not configured", nil)
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}

			claims, err := manager.Parse(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}

			caller := auth.Caller{ID: claims.UserID, Role: claims.Role}
			ctx := context.WithValue(r.Context(), callerKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a sub-router to the listed roles. Must run after Auth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			if _, ok := allowed[caller.Role]; !ok {
				transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContextWithCaller attaches the caller the way Auth does.
func ContextWithCaller(ctx context.Context, caller auth.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func CallerFromContext(ctx context.Context) (auth.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(auth.Caller)
	return caller, ok
}
