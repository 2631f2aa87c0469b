package analytics

import (
	"context"
	"time"
)

// Logger is the subset of echo.Logger used outside request handlers.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Strategy is one way of obtaining day rows for a window.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, from, to time.Time) ([]DayRow, error)
}

// Aggregator builds gap-filled visit series from an EventStore.
type Aggregator struct {
	strategies []Strategy
	logger     Logger
	now        func() time.Time
}

// NewAggregator returns an Aggregator that tries the store's daily rollup,
// then a raw event scan, then falls back to an empty result.
func NewAggregator(store EventStore, logger Logger) *Aggregator {
	return NewAggregatorWithStrategies(logger,
		Strategy{Name: "rollup", Fetch: store.DailyRollup},
		Strategy{Name: "scan", Fetch: scanStrategy(store)},
	)
}

// NewAggregatorWithStrategies evaluates strategies in order, stopping at the
// first that succeeds. An empty strategy is always appended last.
func NewAggregatorWithStrategies(logger Logger, strategies ...Strategy) *Aggregator {
	list := make([]Strategy, 0, len(strategies)+1)
	list = append(list, strategies...)
	list = append(list, Strategy{Name: "empty", Fetch: emptyStrategy})
	return &Aggregator{
		strategies: list,
		logger:     logger,
		now:        time.Now,
	}
}

// Series returns the visit series for the last days days, including today (UTC).
// It never fails: unavailable backends yield zero-filled points.
func (a *Aggregator) Series(ctx context.Context, days int) VisitSeries {
	days = ClampDays(days)
	from, to := Window(a.now(), days)

	rows := a.fetch(ctx, from, to)
	byDay := make(map[string]DayRow, len(rows))
	for _, r := range rows {
		byDay[r.YMD] = r
	}

	series := VisitSeries{
		Range:  Range{From: YMD(from), To: YMD(to), Days: days},
		Points: make([]Point, 0, days),
	}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := YMD(d)
		r := byDay[key]
		series.Points = append(series.Points, Point{Date: key, Visits: r.Visits, Unique: r.Unique})
		series.Totals.Visits += r.Visits
		series.Totals.Unique += r.Unique
	}
	return series
}

func (a *Aggregator) fetch(ctx context.Context, from, to time.Time) []DayRow {
	for i, s := range a.strategies {
		rows, err := s.Fetch(ctx, from, to)
		if err == nil {
			if i > 0 && a.logger != nil {
				a.logger.Debugf("visit series served by %s strategy", s.Name)
			}
			return rows
		}
		if a.logger != nil {
			a.logger.Warnf("visit series: %s strategy failed: %v", s.Name, err)
		}
	}
	return nil
}

// scanStrategy groups raw events by UTC day: visits count events, unique
// counts distinct session ids.
func scanStrategy(store EventStore) func(ctx context.Context, from, to time.Time) ([]DayRow, error) {
	return func(ctx context.Context, from, to time.Time) ([]DayRow, error) {
		events, err := store.ScanEvents(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return GroupByDay(events), nil
	}
}

// GroupByDay buckets events into one DayRow per UTC date, in first-seen order.
func GroupByDay(events []VisitEvent) []DayRow {
	var (
		order    []string
		visits   = make(map[string]int)
		sessions = make(map[string]map[string]struct{})
	)
	for _, e := range events {
		key := YMD(e.Timestamp)
		if _, ok := visits[key]; !ok {
			order = append(order, key)
			sessions[key] = make(map[string]struct{})
		}
		visits[key]++
		sessions[key][e.SessionID] = struct{}{}
	}

	rows := make([]DayRow, 0, len(order))
	for _, key := range order {
		rows = append(rows, DayRow{YMD: key, Visits: visits[key], Unique: len(sessions[key])})
	}
	return rows
}

func emptyStrategy(context.Context, time.Time, time.Time) ([]DayRow, error) {
	return nil, nil
}
