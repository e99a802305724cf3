package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/notes"
	"github.com/noah-analytics/noah-server/internal/pages"
	"github.com/noah-analytics/noah-server/internal/session"
)

// mapError converts a service error into the echo.HTTPError sent to the
// client.
func mapError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	var apiErr *api.Error
	switch {
	case errors.As(err, &he):
		return he

	case errors.Is(err, pages.ErrUnknownPage):
		return echo.NewHTTPError(http.StatusNotFound, "unknown page")

	case errors.Is(err, pages.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, pages.ErrInvalidFilter),
		errors.Is(err, pages.ErrInvalidInput),
		errors.Is(err, notes.ErrNoTerms):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.Is(err, notes.ErrNotLoaded),
		errors.Is(err, notes.ErrSchemaVersion):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "notes search unavailable")

	case errors.Is(err, session.ErrNoSession),
		api.IsUnauthorized(err):
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")

	case errors.Is(err, session.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, "no authorized applications")

	case api.IsNetwork(err):
		return echo.NewHTTPError(http.StatusBadGateway, "data service unavailable")

	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return echo.NewHTTPError(apiErr.Status, apiErr.Message)
		}
		return echo.NewHTTPError(http.StatusBadGateway, "data service error")

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
