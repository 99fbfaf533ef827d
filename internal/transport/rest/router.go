package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/coursehub/internal/auth"
	"github.com/frahmantamala/coursehub/internal/authz"
	"github.com/frahmantamala/coursehub/internal/observability"
	"github.com/frahmantamala/coursehub/internal/transport/middleware"
	"github.com/frahmantamala/coursehub/internal/transport/openapi"
	"github.com/frahmantamala/coursehub/internal/transport/swagger"
	"github.com/frahmantamala/coursehub/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// Routes groups what RegisterAllRoutes wires. Nil handlers leave their routes unregistered.
type Routes struct {
	Health      *HealthHandler
	Auth        *auth.Handler
	User        *user.Handler
	Authz       *authz.Handler
	Permissions middleware.PermissionChecker
	Validator   *openapi.Validator
	Metrics     *observability.Metrics
	MetricsPath string
	OpenAPISpec []byte
}

func RegisterAllRoutes(router *chi.Mux, routes Routes, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware)
	router.Use(routes.Metrics.Middleware)

	if len(routes.OpenAPISpec) > 0 {
		router.Get("/openapi.yml", swagger.SpecHandler(routes.OpenAPISpec))
		router.Handle("/swagger/*", swagger.Handler())
	}
	if routes.Metrics != nil && routes.MetricsPath != "" {
		router.Handle(routes.MetricsPath, routes.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if routes.Validator != nil {
			r.Use(routes.Validator.Middleware)
		}

		if routes.Health != nil {
			r.Get("/health", routes.Health.healthCheckHandler)
			r.Get("/ping", routes.Health.pingHandler)
		}

		if routes.Auth == nil {
			return
		}

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", routes.Auth.Login)
			sr.Post("/refresh", routes.Auth.RefreshToken)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(routes.Auth.AuthMiddleware)

			require := func(perms ...string) func(http.Handler) http.Handler {
				return middleware.RequirePermission(routes.Permissions, logger, perms...)
			}

			if routes.User != nil {
				pr.Get("/users/me", routes.User.GetCurrentUser)
				pr.With(require(authz.PermManageRoles)).Put("/users/{id}/role", routes.User.AssignRole)
			}

			if routes.Authz == nil {
				return
			}

			pr.Get("/permissions", routes.Authz.ListPermissions)
			pr.Get("/roles", routes.Authz.ListRoles)
			pr.Post("/authz/can-modify", routes.Authz.CanModify)

			pr.Route("/users/{id}", func(ur chi.Router) {
				ur.Use(require(authz.PermManageUserPermissions))
				ur.Get("/permissions", routes.Authz.GetUserPermissions)
				ur.Get("/overrides", routes.Authz.GetUserOverrides)
				ur.Put("/grants/{permission}", routes.Authz.Grant)
				ur.Delete("/grants/{permission}", routes.Authz.Revoke)
				ur.Put("/blocks/{permission}", routes.Authz.Block)
				ur.Delete("/blocks/{permission}", routes.Authz.Unblock)
			})
		})
	})
}
