package analytics

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errUnavailable = errors.New("backend unavailable")

// fakeStore is an in-memory EventStore with switchable failures.
type fakeStore struct {
	mu        sync.Mutex
	events    []VisitEvent
	rollup    []DayRow
	appendErr error
	rollupErr error
	scanErr   error

	rollupCalls int
	scanCalls   int
}

func (f *fakeStore) Append(_ context.Context, v *VisitEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events = append(f.events, *v)
	return nil
}

func (f *fakeStore) DailyRollup(context.Context, time.Time, time.Time) ([]DayRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollupCalls++
	if f.rollupErr != nil {
		return nil, f.rollupErr
	}
	return f.rollup, nil
}

func (f *fakeStore) ScanEvents(_ context.Context, from, to time.Time) ([]VisitEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls++
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	start, end := dayBounds(from, to)
	var out []VisitEvent
	for _, e := range f.events {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) stored() []VisitEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]VisitEvent(nil), f.events...)
}

// recordingLogger captures Warnf and Debugf calls.
type recordingLogger struct {
	mu    sync.Mutex
	warns int
	debug int
	errs  int
}

func (l *recordingLogger) Debugf(string, ...interface{}) {
	l.mu.Lock()
	l.debug++
	l.mu.Unlock()
}

func (l *recordingLogger) Warnf(string, ...interface{}) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *recordingLogger) Errorf(string, ...interface{}) {
	l.mu.Lock()
	l.errs++
	l.mu.Unlock()
}
