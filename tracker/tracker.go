// Package tracker is the client side of visit telemetry. It decides whether a
// page view should be reported, keeps the session identity and the per-path
// dedup markers, and sends the visit to the ingest endpoint.
package tracker

import (
	"context"

	"github.com/google/uuid"
)

// SessionStore persists the session identifier of one browser profile.
type SessionStore interface {
	SessionID() (string, bool)
	SetSessionID(id string) error
}

// DedupStore records which paths were already reported during the current
// browsing session.
type DedupStore interface {
	Sent(path string) bool
	MarkSent(path string)
}

// Sender delivers a visit to the ingest endpoint. A nil error means the
// endpoint acknowledged it.
type Sender interface {
	Send(ctx context.Context, p Payload, sessionID string) error
}

// Payload is the body sent to the ingest endpoint.
type Payload struct {
	Path      string `json:"path"`
	Ref       string `json:"ref,omitempty"`
	TS        int64  `json:"ts,omitempty"`
	SessionID string `json:"session_id"`
}

// Visit describes one page view. Empty fields fall back to the current page.
type Visit struct {
	Path     string
	Referrer string
}

// PageFunc reports the currently navigated path and the document referrer.
type PageFunc func() (path, referrer string)

// Logger is the subset of echo.Logger the tracker writes to.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Tracker emits at most one visit per path per browsing session.
type Tracker struct {
	sessions SessionStore
	dedup    DedupStore
	sender   Sender
	page     PageFunc
	newID    func() string
	now      func() int64
	logger   Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPage sets the source of the default path and referrer.
func WithPage(fn PageFunc) Option {
	return func(t *Tracker) {
		t.page = fn
	}
}

// WithLogger routes the tracker's debug output to l.
func WithLogger(l Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithIDGenerator replaces the random session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) {
		t.newID = fn
	}
}

// WithClock sets the timestamp source, in milliseconds since the epoch.
func WithClock(fn func() int64) Option {
	return func(t *Tracker) {
		t.now = fn
	}
}

// New creates a Tracker.
func New(sessions SessionStore, dedup DedupStore, sender Sender, opts ...Option) *Tracker {
	t := &Tracker{
		sessions: sessions,
		dedup:    dedup,
		sender:   sender,
		page:     func() (string, string) { return "/", "" },
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track reports v unless its path was already sent in this browsing session.
// Failures are swallowed; the path stays unmarked so a later call retries.
func (t *Tracker) Track(ctx context.Context, v Visit) {
	curPath, curRef := t.page()
	path := v.Path
	if path == "" {
		path = curPath
	}
	ref := v.Referrer
	if ref == "" {
		ref = curRef
	}

	if t.dedup.Sent(path) {
		return
	}

	sid := t.sessionID()
	p := Payload{Path: path, Ref: ref, SessionID: sid}
	if t.now != nil {
		p.TS = t.now()
	}

	if err := t.sender.Send(ctx, p, sid); err != nil {
		t.debugf("visit %s not sent: %v", path, err)
		return
	}
	t.dedup.MarkSent(path)
}

// sessionID returns the stored identifier, creating and persisting one if needed.
func (t *Tracker) sessionID() string {
	if id, ok := t.sessions.SessionID(); ok && id != "" {
		return id
	}
	id := t.newID()
	if err := t.sessions.SetSessionID(id); err != nil {
		t.debugf("persist session id: %v", err)
	}
	return id
}

func (t *Tracker) debugf(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Debugf(format, args...)
	}
}
