// Package server assembles the HTTP API
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/platform/middleware"
	graphroutes "github.com/Ramsey-B/fern/pkg/routes/graph"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	reconroutes "github.com/Ramsey-B/fern/pkg/routes/reconciliation"
	recordroutes "github.com/Ramsey-B/fern/pkg/routes/record"
	ruleroutes "github.com/Ramsey-B/fern/pkg/routes/rule"
	tenantroutes "github.com/Ramsey-B/fern/pkg/routes/tenant"
)

// Server wraps the echo instance with its configuration
type Server struct {
	echo   *echo.Echo
	cfg    config.Config
	logger ectologger.Logger
}

// Handlers carries the route handlers the server mounts. Nil handlers are
// replaced with dependency-less ones that resolve their collaborators from
// the request context; Graph is only mounted when set, since the graph store
// is optional.
type Handlers struct {
	Rules          *ruleroutes.Handler
	Reconciliation *reconroutes.Handler
	Records        *recordroutes.Handler
	Tenant         *tenantroutes.Handler
	Graph          *graphroutes.Handler
	Health         *health.Checker
}

// New builds the HTTP server: tracing and platform middleware, CORS, and all
// route groups. Extra middleware (auth, request decoration) is attached in
// request order before the routes.
func New(cfg config.Config, logger ectologger.Logger, handlers Handlers, extra ...echo.MiddlewareFunc) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	for _, m := range extra {
		e.Use(m)
	}
	e.HTTPErrorHandler = middleware.Error(logger)

	if handlers.Rules == nil {
		handlers.Rules = ruleroutes.NewHandler(nil, nil, logger)
	}
	if handlers.Reconciliation == nil {
		handlers.Reconciliation = reconroutes.NewHandler(nil, nil, nil)
	}
	if handlers.Records == nil {
		handlers.Records = recordroutes.NewHandler(nil, nil)
	}
	if handlers.Tenant == nil {
		handlers.Tenant = tenantroutes.NewHandler(nil, logger)
	}

	api := e.Group("/api/v1")
	handlers.Rules.Register(api.Group("/rules"))
	handlers.Reconciliation.Register(api.Group("/reconciliation"))
	handlers.Records.Register(api.Group("/records"))
	handlers.Tenant.Register(api.Group("/admin"))
	if handlers.Graph != nil {
		handlers.Graph.Register(api.Group("/graph"))
	}
	if handlers.Health != nil {
		handlers.Health.RegisterRoutes(e)
	}

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	return &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger,
	}
}

// Echo exposes the underlying echo instance, mainly for tests
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start begins serving and blocks until the server stops
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.WithFields(map[string]any{"addr": addr}).Info("Starting HTTP server")
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
