package analytics

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// EventStore is the append-only record store behind ingestion and the series
// aggregator.
type EventStore interface {
	// Append persists one visit event.
	Append(ctx context.Context, v *VisitEvent) error
	// DailyRollup returns one row per day in [from, to] that has visits.
	DailyRollup(ctx context.Context, from, to time.Time) ([]DayRow, error)
	// ScanEvents returns the raw events whose timestamp falls on a day in [from, to].
	ScanEvents(ctx context.Context, from, to time.Time) ([]VisitEvent, error)
	Close() error
}

// Column names accepted for the distinct session count. Older rollup
// schemas expose "unique_sessions", newer ones "unique".
var uniqueColumns = []string{"unique", "unique_sessions"}

// normalizeDayRow maps a column-name keyed rollup record onto a DayRow.
func normalizeDayRow(rec map[string]any) (DayRow, error) {
	var row DayRow
	switch v := rec["ymd"].(type) {
	case string:
		row.YMD = v
	case []byte:
		row.YMD = string(v)
	case time.Time:
		row.YMD = YMD(v)
	default:
		return row, fmt.Errorf("rollup row: unsupported ymd %T", rec["ymd"])
	}
	if len(row.YMD) > len(ymdLayout) {
		row.YMD = row.YMD[:len(ymdLayout)]
	}

	visits, err := toInt(rec["visits"])
	if err != nil {
		return row, fmt.Errorf("rollup row %s: visits: %w", row.YMD, err)
	}
	row.Visits = visits

	for _, col := range uniqueColumns {
		v, ok := rec[col]
		if !ok || v == nil {
			continue
		}
		n, err := toInt(v)
		if err != nil {
			return row, fmt.Errorf("rollup row %s: %s: %w", row.YMD, col, err)
		}
		row.Unique = n
		break
	}
	return row, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case []byte:
		return strconv.Atoi(string(n))
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported count type %T", v)
	}
}
