package visitmetrics

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/eringen/visitmetrics/views"
)

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, views.AdminLogin(a.Config.Name, false, CsrfToken(c)))
	}
	visits := a.metrics.SeriesComponent(c.Request().Context(), c.QueryParam("days"))
	return Render(c, views.AdminDashboard(a.Config.Name, CsrfToken(c), visits))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	if a.checkPassword(c.FormValue("password")) {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	a.loginLimiter.Record(ip)
	return RenderStatus(c, http.StatusUnauthorized, views.AdminLogin(a.Config.Name, true, CsrfToken(c)))
}

// checkPassword compares against the bcrypt hash when configured, otherwise
// against the plain password in constant time.
func (a *App) checkPassword(pass string) bool {
	if a.Config.AdminPasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.Config.AdminPasswordHash), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}
