package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/session"
)

// photoField is the multipart field carrying an uploaded profile photo
const photoField = "photo"

// setSessionContext replaces the current session context with the one of
// st, or clears it when st is not authorized.
func (s *Server) setSessionContext(st session.State) {
	var sc *session.Context
	if st.Authorized() {
		var err error
		if sc, err = session.NewContext(st, s.cfg.Deps); err != nil {
			s.cfg.Logger.Warn("failed to build session context", zap.Error(err))
		}
	}

	s.mu.Lock()
	s.current = sc
	s.mu.Unlock()
}

func (s *Server) sessionContext() (*session.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, session.ErrNoSession
	}
	return s.current, nil
}

// endSession drops everything tied to the current identity. The client
// bootstraps again to get a context for the new one.
func (s *Server) endSession() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if s.cfg.Session != nil {
		s.cfg.Session.Stop()
	}
}

func (s *Server) uploadPhoto(c echo.Context) error {
	fh, err := c.FormFile(photoField)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("missing %s file", photoField))
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded photo: %w", err)
	}
	defer f.Close()

	u, err := s.cfg.Pages.UploadPhoto(c.Request().Context(), fh.Filename, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

type impersonateRequest struct {
	Email string `json:"email"`
}

func (s *Server) impersonate(c echo.Context) error {
	var req impersonateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	u, err := s.cfg.Pages.Impersonate(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	s.endSession()
	return c.JSON(http.StatusOK, u)
}

func (s *Server) stopImpersonating(c echo.Context) error {
	if err := s.cfg.Pages.StopImpersonating(c.Request().Context()); err != nil {
		return err
	}
	s.endSession()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) recentApps(c echo.Context) error {
	sc, err := s.sessionContext()
	if err != nil {
		return err
	}
	apps, err := sc.RecentApps()
	if err != nil {
		return err
	}
	if apps == nil {
		apps = []api.App{}
	}
	return c.JSON(http.StatusOK, apps)
}

func (s *Server) openApp(c echo.Context) error {
	sc, err := s.sessionContext()
	if err != nil {
		return err
	}
	recent, err := sc.OpenApp(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string][]string{"recent": recent})
}
