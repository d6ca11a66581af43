package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/confcore/internal/httpserver"
)

// Middleware resolves the caller's Principal from the Authorization header
// on every request and attaches it to the request context. Unlike the
// teacher's tenant-schema auth, a missing or unresolved credential does not
// reject the request here — routes that require authentication check
// identity.FromContext(ctx).HasPermission themselves, since some routes
// (health, readiness, metrics) are intentionally anonymous.
func Middleware(resolver *Resolver, pool *pgxpool.Pool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			bearer := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			var principal *Principal
			if bearer != "" {
				orgHint := chi.URLParam(r, "org")
				p, err := resolver.Resolve(r.Context(), pool, orgHint, sourceIP(r), bearer)
				if err != nil {
					logger.Debug("identity resolution did not produce a principal", "error", err)
				} else {
					principal = p
				}
			}

			ctx := NewContext(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sourceIP extracts the caller's address for rate-limiting, preferring a
// trusted proxy header if present.
func sourceIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}

// RequireAuthenticated is a route-level guard for handlers that must reject
// unresolved callers outright rather than checking HasPermission inline.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
