// Package app contains the application setup for the cart service.
package app

import (
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/middleware"
	"github.com/abgdnv/storefront/internal/remote"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/pkg/server"

	"github.com/go-chi/chi/v5"
)

type Dependencies struct {
	Registry   *cart.Registry
	Resolver   *identity.Resolver
	Reconciler *cart.Reconciler
	Sessions   *session.Store
	Logger     *slog.Logger
}

func SetupDependencies(cfg *config.Config, logger *slog.Logger) *Dependencies {
	sessions := session.NewStore(cfg.Session.TTL)
	cartStore := remote.NewClient(cfg.CartStore.URL, cfg.CartStore.Timeout, logger)
	variants := catalog.NewClient(cfg.Catalog.URL, cfg.Catalog.Timeout, logger)

	return &Dependencies{
		Registry:   cart.NewRegistry(cartStore, variants, logger),
		Resolver:   identity.NewResolver(sessions, logger),
		Reconciler: cart.NewReconciler(cartStore, sessions, logger),
		Sessions:   sessions,
		Logger:     logger,
	}
}

// SetupHttpHandler initializes the HTTP routes and middleware for the cart
// service.
func SetupHttpHandler(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	mux.Use(middleware.Identity(cfg.Session.CookieName))
	wireRoutes(mux, deps, cfg)
	return mux
}

// wireRoutes sets up the HTTP routes for the cart service.
func wireRoutes(mux *chi.Mux, deps *Dependencies, cfg *config.Config) {
	cartHandler := rest.NewHandler(deps.Registry, deps.Resolver, deps.Reconciler, cfg.Session.CookieName, cfg.Session.TTL, deps.Logger)
	cartHandler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures an HTTP server for the cart service.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps, cfg)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
