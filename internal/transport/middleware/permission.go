package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/coursehub/internal"
	"github.com/frahmantamala/coursehub/internal/authz"
	"github.com/frahmantamala/coursehub/internal/transport"
)

// PermissionChecker is satisfied by *authz.Resolver.
type PermissionChecker interface {
	HasAnyPermission(ctx context.Context, userID int64, names []string) (bool, error)
}

// RequirePermission lets the request through when the authenticated user holds any of permissions.
// It must run after the auth middleware.
func RequirePermission(checker PermissionChecker, lg *slog.Logger, permissions ...string) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := internal.UserIDFromContext(r.Context())
			if !ok {
				base.WriteAppError(w, r, internal.NewUnauthorizedError("unauthorized", internal.ErrCodeInvalidToken))
				return
			}

			allowed, err := checker.HasAnyPermission(r.Context(), userID, permissions)
			if err != nil {
				base.WriteAppError(w, r, authz.ToAppError(err))
				return
			}
			if !allowed {
				base.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", userID,
					"required_permissions", permissions)
				base.WriteAppError(w, r, internal.ErrPermissionDenied)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
