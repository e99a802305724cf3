package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/export"
	"github.com/noah-analytics/noah-server/internal/notes"
	"github.com/noah-analytics/noah-server/internal/pages"
	"github.com/noah-analytics/noah-server/internal/table"
	"github.com/noah-analytics/noah-server/internal/textmatch"
)

// Query parameters of the table routes that are not column filters
const (
	pageIndexParam = "page_index"
	pageSizeParam  = "page_size"
	rowsParam      = "rows"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

type highlightRequest struct {
	Text  string   `json:"text"`
	Terms []string `json:"terms"`
}

func (s *Server) highlight(c echo.Context) error {
	var req highlightRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"segments": textmatch.Highlight(req.Text, req.Terms),
	})
}

type matchRequest struct {
	Value  string `json:"value"`
	Filter string `json:"filter"`
}

func (s *Server) match(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"match":        textmatch.StemMatch(req.Value, req.Filter),
		"value_stems":  textmatch.Stems(req.Value),
		"filter_stems": textmatch.Stems(req.Filter),
	})
}

func (s *Server) session(c echo.Context) error {
	if s.cfg.Session == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session bootstrap not configured")
	}

	st := s.cfg.Session.Start(c.Request().Context(), c.QueryParam("path"))
	s.setSessionContext(st)
	if s.cfg.Transport != nil && s.cfg.Subscriber != nil {
		s.cfg.Session.Restart(s.base, st, s.cfg.Transport, s.cfg.Subscriber)
	}
	return c.JSON(http.StatusOK, st)
}

type pageInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (s *Server) listPages(c echo.Context) error {
	ids := s.cfg.Pages.Pages()
	out := make([]pageInfo, 0, len(ids))
	for _, id := range ids {
		title, _ := s.cfg.Pages.Title(id)
		out = append(out, pageInfo{ID: id, Title: title})
	}
	return c.JSON(http.StatusOK, out)
}

// splitTableQuery separates pagination from the filter parameters
func splitTableQuery(q url.Values) (url.Values, table.Pagination, error) {
	filters := url.Values{}
	for k, v := range q {
		filters[k] = v
	}
	delete(filters, pageIndexParam)
	delete(filters, pageSizeParam)
	delete(filters, rowsParam)

	var p table.Pagination
	if raw := q.Get(pageIndexParam); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, p, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s %q", pageIndexParam, raw))
		}
		p.PageIndex = n
	}
	if raw := q.Get(pageSizeParam); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, p, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s %q", pageSizeParam, raw))
		}
		p.PageSize = n
	}
	return filters, p, nil
}

type tableResponse struct {
	*pages.View
	// Warning reports filter parameters that were ignored as malformed
	Warning string `json:"warning,omitempty"`
}

func (s *Server) table(c echo.Context) error {
	filters, p, err := splitTableQuery(c.QueryParams())
	if err != nil {
		return err
	}

	view, err := s.cfg.Pages.View(c.Request().Context(), c.Param("page"), filters, p)
	resp := tableResponse{View: view}
	if err != nil {
		if !errors.Is(err, pages.ErrInvalidFilter) {
			return err
		}
		resp.Warning = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) export(c echo.Context) error {
	page := c.Param("page")
	filters, p, err := splitTableQuery(c.QueryParams())
	if err != nil {
		return err
	}
	set, err := export.ParseRowSet(c.QueryParam(rowsParam))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	t, err := s.cfg.Pages.Table(c.Request().Context(), page, filters)
	if t == nil {
		return err
	}
	defer s.cfg.Pages.Release(t)
	if err != nil {
		s.cfg.Logger.Warn("exporting with malformed filters ignored", zap.String("page", page), zap.Error(err))
	}
	if p.PageSize > 0 {
		t.SetPageSize(p.PageSize)
	}
	t.SetPageIndex(p.PageIndex)

	var buf bytes.Buffer
	if err := export.Workbook(t, set, &buf); err != nil {
		return fmt.Errorf("failed to export %s: %w", page, err)
	}

	name := export.FileName(page, s.cfg.Now())
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid date %q", raw))
	}
	return ts, nil
}

func (s *Server) searchNotes(c echo.Context) error {
	if s.cfg.Notes == nil {
		return notes.ErrNotLoaded
	}

	q := c.QueryParams()
	opts := notes.SearchOptions{
		Facility: q.Get("facility"),
		NoteType: q.Get("note_type"),
	}
	var err error
	if opts.From, err = parseDay(q.Get("from")); err != nil {
		return err
	}
	if opts.To, err = parseDay(q.Get("to")); err != nil {
		return err
	}
	if !opts.To.IsZero() {
		// a day bound includes the whole day
		opts.To = opts.To.Add(24*time.Hour - time.Nanosecond)
	}
	if raw := q.Get("limit"); raw != "" {
		if opts.Limit, err = strconv.Atoi(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if opts.Offset, err = strconv.Atoi(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid offset %q", raw))
		}
	}

	res, err := s.cfg.Notes.Search(c.Request().Context(), q["term"], opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) reloadNotes(c echo.Context) error {
	if s.cfg.Notes == nil {
		return notes.ErrNotLoaded
	}
	count, err := s.cfg.Notes.Reload()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]uint64{"passages": count})
}

func (s *Server) star(c echo.Context) error {
	if err := s.cfg.Pages.SetStarred(c.Request().Context(), c.Param("id"), true); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) unstar(c echo.Context) error {
	if err := s.cfg.Pages.SetStarred(c.Request().Context(), c.Param("id"), false); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) highlightReview(c echo.Context) error {
	segs, err := s.cfg.Pages.HighlightReview(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"segments": segs})
}

func (s *Server) triggerFeedback(c echo.Context) error {
	var fb api.TriggerFeedback
	if err := c.Bind(&fb); err != nil {
		return err
	}
	if err := s.cfg.Pages.SubmitTriggerFeedback(c.Request().Context(), c.Param("id"), fb); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) reviewMDS(c echo.Context) error {
	var review api.MDSReview
	if err := c.Bind(&review); err != nil {
		return err
	}
	if err := s.cfg.Pages.ReviewMDSSuggestion(c.Request().Context(), c.Param("id"), review); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) updateAccess(c echo.Context) error {
	var update api.AccessUpdate
	if err := c.Bind(&update); err != nil {
		return err
	}
	email, err := url.PathUnescape(c.Param("email"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid email")
	}
	if err := s.cfg.Pages.UpdateAccess(c.Request().Context(), email, update); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) toasts(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cfg.Toasts.Active())
}

func (s *Server) dismissToast(c echo.Context) error {
	if !s.cfg.Toasts.Dismiss(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "toast not found")
	}
	return c.NoContent(http.StatusNoContent)
}
