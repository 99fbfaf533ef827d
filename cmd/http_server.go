package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/frahmantamala/coursehub/api"
	"github.com/frahmantamala/coursehub/internal/auth"
	"github.com/frahmantamala/coursehub/internal/authz"
	"github.com/frahmantamala/coursehub/internal/transport/openapi"
	"github.com/frahmantamala/coursehub/internal/transport/rest"
	"github.com/frahmantamala/coursehub/internal/user"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Reconcile the permission catalog, then start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startHTTPServer(); err != nil {
			fmt.Fprintf(os.Stderr, "server: %v\n", err)
			os.Exit(1)
		}
	},
}

func startHTTPServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	// Never serve against a catalog that did not reconcile.
	result, err := deps.Reconciler.Run(ctx)
	if err != nil {
		return err
	}
	reportBootstrap(deps.Logger, os.Stderr, result)

	router, err := setupRoutes(deps)
	if err != nil {
		return err
	}

	cfg := deps.Config.Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Logger.Info("starting HTTP server", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		deps.Logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	deps.Logger.Info("server stopped")
	return nil
}

func setupRoutes(deps *Dependencies) (*chi.Mux, error) {
	validator, err := openapi.NewValidator(api.OpenAPISpec, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}

	components := map[string]rest.Pinger{"postgres": deps.SQL}
	if deps.Redis != nil {
		components["redis"] = rest.PingFunc(func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		})
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Routes{
		Health:      rest.NewHealthHandler(components),
		Auth:        auth.NewHandler(deps.Auth, deps.Logger),
		User:        user.NewHandler(deps.Users, deps.Logger),
		Authz:       authz.NewHandler(deps.AuthzRepo, deps.Registry, deps.Resolver, deps.Overrides, deps.Guard, deps.Logger),
		Permissions: deps.Resolver,
		Validator:   validator,
		Metrics:     deps.Metrics,
		MetricsPath: deps.Config.Observability.Metrics.Path,
		OpenAPISpec: api.OpenAPISpec,
	}, deps.Logger)
	return router, nil
}
