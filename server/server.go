// Package server wires the echo HTTP server: middleware, health and metrics
// endpoints, and the v1 API routes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/kaleow/omnichat/ai/llm"
	"github.com/kaleow/omnichat/internal/metrics"
	"github.com/kaleow/omnichat/internal/profile"
	apiv1 "github.com/kaleow/omnichat/server/router/api/v1"
	"github.com/kaleow/omnichat/store"
)

type Server struct {
	e *echo.Echo

	Profile *profile.Profile
	Store   *store.Store

	apiV1    *apiv1.APIV1Service
	exporter *metrics.Exporter
}

// NewServer assembles the HTTP server from its collaborators.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, "X-User-ID"},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))

	registry := llm.NewRegistry()
	adapters := llm.NewAdapters(profile)
	dispatcher := llm.NewDispatcher(registry, adapters)
	exporter := metrics.NewExporter(metrics.DefaultConfig())

	s := &Server{
		e:        e,
		Profile:  profile,
		Store:    store,
		exporter: exporter,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": profile.Version})
	})
	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))

	s.apiV1 = apiv1.NewAPIV1Service(profile, store, dispatcher, exporter)
	s.apiV1.RegisterRoutes(e)

	_ = ctx
	return s, nil
}

// Start begins serving in the background. Listener failures other than a
// clean shutdown are logged.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to serve", "error", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.e.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("omnichat stopped properly")
}
