// Package analytics provides privacy-first page-visit telemetry: ingestion,
// storage and daily visit series.
package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"
)

const (
	// AnonSession is stored when a visit arrives without any session identifier.
	AnonSession = "anon"

	// SessionHeader carries the tracker's session id alongside the body field.
	SessionHeader = "X-Session-Id"

	maxSessionLen = 64
	hashLen       = 32 // hex chars, 128 bits

	// MinDays and MaxDays bound the series window.
	MinDays = 1
	MaxDays = 120

	// DefaultDays is used when the days parameter is absent or not numeric.
	DefaultDays = 30

	ymdLayout = "2006-01-02"
)

// ErrInvalidPath is returned for visits whose path is missing, not a string,
// or does not start with "/".
var ErrInvalidPath = errors.New("path must be a string starting with /")

// VisitEvent is a single stored page view. Nil pointers are stored as NULL.
type VisitEvent struct {
	Timestamp      time.Time `json:"ts"`
	Path           string    `json:"path"`
	ReferrerDomain *string   `json:"referrer_domain"`
	IPHash         *string   `json:"ip_hash"`
	UAHash         *string   `json:"ua_hash"`
	SessionID      string    `json:"session_id"`
}

// DayRow is the canonical day-bucketed aggregate row returned by every EventStore.
type DayRow struct {
	YMD    string
	Visits int
	Unique int
}

// Range is the inclusive date window of a series.
type Range struct {
	From string `json:"from"`
	To   string `json:"to"`
	Days int    `json:"days"`
}

// Point holds the counts for one calendar day.
type Point struct {
	Date   string `json:"date"`
	Visits int    `json:"visits"`
	Unique int    `json:"unique"`
}

// Totals sums all points of a series.
type Totals struct {
	Visits int `json:"visits"`
	Unique int `json:"unique"`
}

// VisitSeries is a dense per-day visit series over a bounded window.
type VisitSeries struct {
	Range  Range   `json:"range"`
	Points []Point `json:"points"`
	Totals Totals  `json:"totals"`
}

// Hasher produces salted one-way digests of IP addresses and user agents.
type Hasher struct {
	salt string
}

// NewHasher returns a Hasher keyed by salt. An empty salt is allowed.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// Hash returns the truncated salted SHA-256 of v, or nil when v is empty.
func (h *Hasher) Hash(v string) *string {
	if v == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(h.salt + v))
	s := hex.EncodeToString(sum[:])[:hashLen]
	return &s
}

// ReferrerDomain keeps only the host of a referrer URL. Anything that does
// not parse to a URL with a host yields nil.
func ReferrerDomain(ref string) *string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return nil
	}
	host := strings.ToLower(u.Host)
	return &host
}

// FirstForwardedIP returns the first entry of an X-Forwarded-For style header.
func FirstForwardedIP(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// ResolveSession picks the header value, then the body value, then AnonSession,
// truncated to 64 characters.
func ResolveSession(header, body string) string {
	s := strings.TrimSpace(header)
	if s == "" {
		s = strings.TrimSpace(body)
	}
	if s == "" {
		return AnonSession
	}
	if r := []rune(s); len(r) > maxSessionLen {
		s = string(r[:maxSessionLen])
	}
	return s
}

// ClampDays bounds days to [MinDays, MaxDays].
func ClampDays(days int) int {
	if days < MinDays {
		return MinDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

// Window returns the UTC midnight-aligned [from, to] dates for a clamped
// day count, where to is the current date.
func Window(now time.Time, days int) (time.Time, time.Time) {
	now = now.UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -(days - 1))
	return from, to
}

// YMD formats t as a calendar date key in UTC.
func YMD(t time.Time) string {
	return t.UTC().Format(ymdLayout)
}
