package analytics

import (
	"sync"
	"time"
)

// ingestLimiter caps visit submissions per client key over a sliding window.
// A limit of zero or less disables it.
type ingestLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
	stop   chan struct{}
	once   sync.Once
}

func newIngestLimiter(limit int, window time.Duration) *ingestLimiter {
	l := &ingestLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	if limit > 0 {
		go l.sweep()
	}
	return l
}

// allow records a submission for key and reports whether it is within the limit.
func (l *ingestLimiter) allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := prune(l.hits[key], now.Add(-l.window))
	if len(kept) >= l.limit {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

func (l *ingestLimiter) close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *ingestLimiter) sweep() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := l.now().Add(-l.window)
			l.mu.Lock()
			for key, hits := range l.hits {
				if kept := prune(hits, cutoff); len(kept) == 0 {
					delete(l.hits, key)
				} else {
					l.hits[key] = kept
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// prune drops hits at or before cutoff, reusing the backing array.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
