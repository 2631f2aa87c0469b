// Package visitmetrics is a privacy-conscious page-visit telemetry server
// built with Go and Echo. It ingests anonymized visit events and serves a
// daily-visits series to an admin dashboard.
package visitmetrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/visitmetrics/analytics"
)

// App is the central visitmetrics application. It wires together the event
// store, handlers and middleware.
type App struct {
	Config SiteConfig
	Echo   *echo.Echo
	Store  analytics.EventStore

	metrics      *analytics.Handler
	loginLimiter *LoginLimiter
	customRoutes []func(*App)
}

// New creates a new App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
	}
	a.Echo.HideBanner = true
	a.Echo.Logger.SetLevel(logLevel(cfg.LogLevel))

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Setup validates the config, opens the event store, and registers
// middleware and routes. Start calls it; tests call it directly.
func (a *App) Setup(ctx context.Context) error {
	if a.Config.AdminPassword == "" && a.Config.AdminPasswordHash == "" {
		return fmt.Errorf("visitmetrics: AdminPassword or AdminPasswordHash is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("visitmetrics: SessionSecret is required")
	}

	if a.Store == nil {
		store, err := openEventStore(ctx, a.Config)
		if err != nil {
			return fmt.Errorf("visitmetrics: init analytics: %w", err)
		}
		a.Store = store
	}

	a.loginLimiter = NewLoginLimiter(5, time.Minute)
	a.metrics = analytics.NewHandler(a.Store, analytics.HandlerConfig{
		Salt:      a.Config.AnalyticsSalt,
		RateLimit: a.Config.AnalyticsRateLimit,
		Logger:    a.Echo.Logger,
	})

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start sets the app up and serves HTTP until the server is shut down.
func (a *App) Start(ctx context.Context) error {
	if err := a.Setup(ctx); err != nil {
		return err
	}
	a.Echo.Logger.Infof("visitmetrics listening on %s (store: %s)", a.Config.Addr, a.Config.AnalyticsDriver)
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func openEventStore(ctx context.Context, cfg SiteConfig) (analytics.EventStore, error) {
	switch cfg.AnalyticsDriver {
	case DriverSQLite:
		return analytics.NewSQLiteStore(cfg.AnalyticsDatabasePath)
	case DriverClickHouse:
		return analytics.NewClickHouseStore(ctx, cfg.ClickHouse)
	default:
		return nil, fmt.Errorf("unknown analytics driver %q", cfg.AnalyticsDriver)
	}
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/healthz", handleHealth)

	// Admin routes
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	// Visit routes
	publicGroup := e.Group("")
	a.metrics.RegisterRoutes(e, publicGroup, adminOnly)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.metrics != nil {
		a.metrics.Close()
	}
	if a.loginLimiter != nil {
		a.loginLimiter.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
