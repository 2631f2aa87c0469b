package visitmetrics

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/visitmetrics/analytics"
	"github.com/eringen/visitmetrics/views"
)

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, analytics.Response{OK: true})
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	he, ok := err.(*echo.HTTPError)
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
	}

	if isAPIPath(c.Request().URL.Path) {
		msg := "failed"
		if code < 500 {
			msg = http.StatusText(code)
		}
		_ = c.JSON(code, analytics.Response{Error: msg})
		return
	}
	if code == http.StatusNotFound || code >= 500 {
		_ = RenderStatus(c, code, views.StatusPage(code, http.StatusText(code)))
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
