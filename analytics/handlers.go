package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/eringen/visitmetrics/analytics/templates"
	"github.com/labstack/echo/v4"
)

// Input validation limits for the ingest endpoint.
const (
	maxBodyBytes   = 8 << 10
	maxPathLen     = 2048
	maxReferrerLen = 2048
)

// Handler handles visit ingestion and series HTTP requests.
type Handler struct {
	store      EventStore
	aggregator *Aggregator
	hasher     *Hasher
	limiter    *ingestLimiter
	now        func() time.Time
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Salt      string // hash salt; empty is allowed
	RateLimit int    // ingest requests per client IP per minute; <= 0 disables
	Logger    Logger
}

// NewHandler creates a handler writing to and aggregating from store.
func NewHandler(store EventStore, cfg HandlerConfig) *Handler {
	return &Handler{
		store:      store,
		aggregator: NewAggregator(store, cfg.Logger),
		hasher:     NewHasher(cfg.Salt),
		limiter:    newIngestLimiter(cfg.RateLimit, time.Minute),
		now:        time.Now,
	}
}

// Close stops the handler's background work. It does not close the store.
func (h *Handler) Close() {
	h.limiter.close()
}

// Response is the JSON envelope for ingest results and errors.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SeriesResponse is the JSON response for the series endpoint.
type SeriesResponse struct {
	OK bool `json:"ok"`
	VisitSeries
}

// IngestRequest is the expected body for the ingest endpoint. Fields are
// decoded loosely so that wrong JSON types can be told apart from absence.
type IngestRequest struct {
	Path      any `json:"path"`
	Ref       any `json:"ref"`
	TS        any `json:"ts"`
	SessionID any `json:"session_id"`
}

// Ingest validates, sanitizes and stores a single visit event.
func (h *Handler) Ingest(c echo.Context) error {
	if !h.limiter.allow(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, Response{Error: "rate_limited"})
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Error: "invalid_body"})
	}
	var req IngestRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := decodeIngest(body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, Response{Error: "invalid_body"})
		}
	}

	visit, err := h.buildVisit(c.Request(), &req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Error: "invalid_path"})
	}

	if err := h.store.Append(c.Request().Context(), visit); err != nil {
		c.Logger().Errorf("Failed to save visit: %v", err)
		return c.JSON(http.StatusInternalServerError, Response{Error: "store_failed"})
	}
	return c.JSON(http.StatusOK, Response{OK: true})
}

// decodeIngest decodes a single JSON object. Numbers stay json.Number so an
// out-of-range value degrades like any other bad field instead of failing
// the whole body.
func decodeIngest(body []byte, req *IngestRequest) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(req); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// buildVisit turns a decoded request into a VisitEvent. Only the path can
// make it fail; every other field degrades to a default or nil.
func (h *Handler) buildVisit(r *http.Request, req *IngestRequest) (*VisitEvent, error) {
	path, ok := req.Path.(string)
	if !ok || !strings.HasPrefix(path, "/") || len(path) > maxPathLen {
		return nil, ErrInvalidPath
	}

	ref, _ := req.Ref.(string)
	if len(ref) > maxReferrerLen {
		ref = ""
	}
	bodySession, _ := req.SessionID.(string)

	return &VisitEvent{
		Timestamp:      h.resolveTimestamp(req.TS),
		Path:           path,
		ReferrerDomain: ReferrerDomain(ref),
		IPHash:         h.hasher.Hash(FirstForwardedIP(r.Header.Get(echo.HeaderXForwardedFor))),
		UAHash:         h.hasher.Hash(r.UserAgent()),
		SessionID:      ResolveSession(r.Header.Get(SessionHeader), bodySession),
	}, nil
}

// maxTimestampMillis keeps caller timestamps inside time.UnixMilli's range.
const maxTimestampMillis = 1 << 53

// resolveTimestamp uses a finite numeric ts (milliseconds since the epoch)
// or the server's current time.
func (h *Handler) resolveTimestamp(ts any) time.Time {
	n, ok := ts.(json.Number)
	if !ok {
		return h.now().UTC()
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxTimestampMillis {
		return h.now().UTC()
	}
	return time.UnixMilli(int64(f)).UTC()
}

// Series returns the gap-filled daily visit series as JSON.
func (h *Handler) Series(c echo.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.Logger().Errorf("Failed to build visit series: %v", r)
			err = c.JSON(http.StatusInternalServerError, Response{Error: "failed"})
		}
	}()

	series := h.aggregator.Series(c.Request().Context(), parseDays(c.QueryParam("days")))
	return c.JSON(http.StatusOK, SeriesResponse{OK: true, VisitSeries: series})
}

// SeriesFragment returns the visits table as an HTML fragment (htmx).
func (h *Handler) SeriesFragment(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	return h.SeriesComponent(c.Request().Context(), c.QueryParam("days")).Render(c.Request().Context(), c.Response())
}

// SeriesComponent builds the visits table for a raw days parameter.
func (h *Handler) SeriesComponent(ctx context.Context, days string) templ.Component {
	series := h.aggregator.Series(ctx, parseDays(days))
	return templates.VisitsFragment(convertSeriesToViewModel(series))
}

// parseDays reads the days query parameter, defaulting to DefaultDays when it
// is absent or not a number. Infinite and out-of-range values clamp.
func parseDays(raw string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if (err != nil && !errors.Is(err, strconv.ErrRange)) || math.IsNaN(f) {
		return DefaultDays
	}
	if f > MaxDays {
		return MaxDays
	}
	if f < MinDays {
		return MinDays
	}
	return int(f)
}

// convertSeriesToViewModel converts a VisitSeries to templates.SeriesViewModel.
func convertSeriesToViewModel(s VisitSeries) *templates.SeriesViewModel {
	vm := &templates.SeriesViewModel{
		From:        s.Range.From,
		To:          s.Range.To,
		Days:        s.Range.Days,
		TotalVisits: s.Totals.Visits,
		TotalUnique: s.Totals.Unique,
		Points:      make([]templates.PointViewModel, len(s.Points)),
	}
	for i, p := range s.Points {
		vm.Points[i] = templates.PointViewModel{Date: p.Date, Visits: p.Visits, Unique: p.Unique}
		if p.Visits > vm.MaxVisits {
			vm.MaxVisits = p.Visits
		}
	}
	return vm
}

// RegisterRoutes registers the visit routes with the Echo router.
func (h *Handler) RegisterRoutes(e *echo.Echo, publicGroup *echo.Group, authMiddleware echo.MiddlewareFunc) {
	// Public endpoint for collecting visits (CSRF-exempt)
	publicGroup.POST("/api/metrics/visit", h.Ingest)

	// Admin API endpoint (JSON)
	e.GET("/api/admin/metrics/visits", h.Series, authMiddleware)

	// Admin fragment endpoint (HTML for htmx)
	admin := e.Group("/admin/metrics")
	admin.Use(authMiddleware)
	admin.GET("/fragments/visits", h.SeriesFragment)
}
