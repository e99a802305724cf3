// Package server exposes the dashboard pages, note search and session
// bootstrap over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/invalidate"
	"github.com/noah-analytics/noah-server/internal/notes"
	"github.com/noah-analytics/noah-server/internal/notify"
	"github.com/noah-analytics/noah-server/internal/pages"
	"github.com/noah-analytics/noah-server/internal/prefs"
	"github.com/noah-analytics/noah-server/internal/session"
	"github.com/noah-analytics/noah-server/internal/table"
)

// Config wires a Server. Notes, Session and Transport are optional; the
// routes that need them answer 503 without.
type Config struct {
	Pages   *pages.Service
	Toasts  *notify.Center
	Notes   *notes.Searcher
	Session *session.Bootstrapper
	// Transport and Subscriber keep the invalidation listener of the
	// bootstrapped session running
	Transport  invalidate.Transport
	Subscriber invalidate.Subscriber
	// Deps are handed to the context of each authorized session. Prefs
	// defaults to an in-memory store.
	Deps session.Deps
	// TextDebounce is the quiet period of live text filters
	TextDebounce time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

// Server is the HTTP API
type Server struct {
	echo *echo.Echo
	cfg  Config
	// base outlives requests; invalidation listeners run under it
	base   context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	// current is the context of the last authorized bootstrap
	current *session.Context
}

// New builds the server and its routes
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Toasts == nil {
		cfg.Toasts = notify.NewCenter()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Deps.Prefs == nil {
		cfg.Deps.Prefs = prefs.NewMemoryStore()
	}
	if cfg.Deps.Notify == nil {
		cfg.Deps.Notify = cfg.Toasts
	}
	if cfg.TextDebounce <= 0 {
		cfg.TextDebounce = table.TextDebounce
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(mapError(err), c)
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/healthz"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error == nil {
				cfg.Logger.Info("request completed", fields...)
			} else {
				cfg.Logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	base, cancel := context.WithCancel(context.Background())
	s := &Server{echo: e, cfg: cfg, base: base, cancel: cancel}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/healthz", s.health)

	api := e.Group("/api")
	api.POST("/highlight", s.highlight)
	api.POST("/match", s.match)
	api.GET("/session", s.session)
	api.POST("/account/photo", s.uploadPhoto)
	api.POST("/impersonate", s.impersonate)
	api.DELETE("/impersonate", s.stopImpersonating)
	api.GET("/apps/recent", s.recentApps)
	api.POST("/apps/:id/open", s.openApp)

	api.GET("/pages", s.listPages)
	api.GET("/tables/:page", s.table)
	api.GET("/tables/:page/export", s.export)
	api.GET("/tables/:page/live", s.liveTable)

	api.GET("/notes/search", s.searchNotes)
	api.POST("/notes/reload", s.reloadNotes)

	api.POST("/apps/:id/star", s.star)
	api.DELETE("/apps/:id/star", s.unstar)
	api.GET("/triggerwords/:id/highlight", s.highlightReview)
	api.POST("/triggerwords/:id/feedback", s.triggerFeedback)
	api.POST("/mds/:id/review", s.reviewMDS)
	api.PUT("/access/:email", s.updateAccess)

	api.GET("/toasts", s.toasts)
	api.DELETE("/toasts/:id", s.dismissToast)
}

// Handler returns the server as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.cfg.Logger.Info("http server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the invalidation listener and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.cfg.Session != nil {
		s.cfg.Session.Stop()
	}
	return s.echo.Shutdown(ctx)
}
