package visitmetrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/eringen/visitmetrics/analytics"
)

func setupTestApp(t *testing.T, cfg SiteConfig) *App {
	t.Helper()
	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		cfg.AdminPassword = "secret"
	}
	cfg.SessionSecret = "test-session-secret"
	cfg.AnalyticsDatabasePath = filepath.Join(t.TempDir(), "analytics.db")
	cfg.LogLevel = "off"

	a := New(cfg)
	if err := a.Setup(context.Background()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func serve(a *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// login signs in through the form and returns the admin session cookie.
func login(t *testing.T, a *App, password string) (*httptest.ResponseRecorder, *http.Cookie) {
	t.Helper()
	rec := serve(a, httptest.NewRequest(http.MethodGet, "/admin/", nil))
	csrf := cookieNamed(rec, "_csrf")
	if csrf == nil {
		t.Fatal("login page should set a csrf cookie")
	}

	form := url.Values{"password": {password}, "_csrf": {csrf.Value}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(csrf)
	rec = serve(a, req)
	return rec, cookieNamed(rec, sessionName)
}

func TestSetupRequiresCredentials(t *testing.T) {
	a := New(SiteConfig{SessionSecret: "x"})
	if err := a.Setup(context.Background()); err == nil {
		t.Fatal("expected error without admin password")
	}

	a = New(SiteConfig{AdminPassword: "x"})
	if err := a.Setup(context.Background()); err == nil {
		t.Fatal("expected error without session secret")
	}
}

func TestSetupUnknownDriver(t *testing.T) {
	a := New(SiteConfig{AdminPassword: "x", SessionSecret: "y", AnalyticsDriver: "mongo"})
	if err := a.Setup(context.Background()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	a := New(SiteConfig{})
	if a.Config.Addr != ":3000" {
		t.Errorf("Addr = %q, want :3000", a.Config.Addr)
	}
	if a.Config.AnalyticsDriver != DriverSQLite {
		t.Errorf("AnalyticsDriver = %q, want sqlite", a.Config.AnalyticsDriver)
	}
	if a.Config.AnalyticsRateLimit != 120 {
		t.Errorf("AnalyticsRateLimit = %d, want 120", a.Config.AnalyticsRateLimit)
	}
}

func TestHealthz(t *testing.T) {
	a := setupTestApp(t, SiteConfig{})

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestIngestWithoutCSRF(t *testing.T) {
	a := setupTestApp(t, SiteConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/metrics/visit", strings.NewReader(`{"path":"/"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(a, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp analytics.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected ok response, got %+v", resp)
	}
}

func TestSeriesRequiresAdmin(t *testing.T) {
	a := setupTestApp(t, SiteConfig{})

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/api/admin/metrics/visits", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var resp analytics.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK || resp.Error != "unauthorized" {
		t.Fatalf("unexpected body %+v", resp)
	}

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/admin/metrics/fragments/visits", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("fragment status = %d, want 303", rec.Code)
	}
}

func TestLoginAndReadSeries(t *testing.T) {
	a := setupTestApp(t, SiteConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/metrics/visit", strings.NewReader(`{"path":"/about"}`))
	req.Header.Set(analytics.SessionHeader, "visitor-1")
	if rec := serve(a, req); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	rec, sess := login(t, a, "secret")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	if sess == nil {
		t.Fatal("login should set the admin session cookie")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/metrics/visits?days=3", nil)
	req.AddCookie(sess)
	rec = serve(a, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("series status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp analytics.SeriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Points) != 3 || resp.Range.Days != 3 {
		t.Fatalf("expected 3 points, got %d", len(resp.Points))
	}
	if resp.Totals.Visits != 1 || resp.Totals.Unique != 1 {
		t.Fatalf("totals = %+v, want 1/1", resp.Totals)
	}
	if last := resp.Points[2]; last.Visits != 1 {
		t.Fatalf("today should hold the visit, got %+v", last)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.AddCookie(sess)
	rec = serve(a, req)
	if !strings.Contains(rec.Body.String(), "unique sessions") {
		t.Fatal("dashboard should render the visits fragment")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	a := setupTestApp(t, SiteConfig{})

	rec, sess := login(t, a, "nope")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if sess != nil && sess.MaxAge >= 0 {
		t.Fatal("failed login must not grant a session")
	}
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a := New(SiteConfig{AdminPassword: "ignored", AdminPasswordHash: string(hash)})

	if !a.checkPassword("hunter2") {
		t.Error("expected hashed password to match")
	}
	if a.checkPassword("ignored") {
		t.Error("hash must take precedence over the plain password")
	}
}

func TestUnknownAPIPathIsJSON(t *testing.T) {
	a := setupTestApp(t, SiteConfig{})

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}
}

type staticStore struct {
	analytics.EventStore
	closed bool
}

func (s *staticStore) DailyRollup(context.Context, time.Time, time.Time) ([]analytics.DayRow, error) {
	return []analytics.DayRow{{YMD: analytics.YMD(time.Now()), Visits: 7, Unique: 3}}, nil
}

func (s *staticStore) Close() error {
	s.closed = true
	return nil
}

func TestWithEventStore(t *testing.T) {
	store := &staticStore{}
	a := New(SiteConfig{AdminPassword: "secret", SessionSecret: "s", LogLevel: "off"}, WithEventStore(store))
	if err := a.Setup(context.Background()); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, sess := login(t, a, "secret")
	req := httptest.NewRequest(http.MethodGet, "/api/admin/metrics/visits?days=1", nil)
	req.AddCookie(sess)
	rec := serve(a, req)

	var resp analytics.SeriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Totals.Visits != 7 {
		t.Fatalf("totals = %+v, want 7 visits", resp.Totals)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !store.closed {
		t.Fatal("app should close the store it was given")
	}
	select {
	case <-a.loginLimiter.stop:
	default:
		t.Fatal("app should stop the login limiter cleanup")
	}
}

func TestWithCustomRoutes(t *testing.T) {
	var called bool
	a := New(SiteConfig{AdminPassword: "x", SessionSecret: "y", LogLevel: "off"},
		WithEventStore(&staticStore{}),
		WithCustomRoutes(func(a *App) { called = true }))
	if err := a.Setup(context.Background()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer a.Close()
	if !called {
		t.Fatal("custom routes callback not invoked")
	}
}
