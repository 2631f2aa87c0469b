package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseConfig holds the connection settings for ClickHouseStore.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseStore is an EventStore backed by a ClickHouse MergeTree table.
type ClickHouseStore struct {
	conn clickhouse.Conn
}

// NewClickHouseStore connects to ClickHouse and ensures the events table exists.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("clickhouse: address is required")
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "visitmetrics", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	s := &ClickHouseStore{conn: conn}
	if err := s.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure clickhouse schema: %w", err)
	}
	return s, nil
}

func (s *ClickHouseStore) ensureSchema(ctx context.Context) error {
	return s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS visit_events (
			ts DateTime64(3, 'UTC'),
			path String,
			referrer_domain Nullable(String),
			ip_hash Nullable(String),
			ua_hash Nullable(String),
			session_id String
		)
		ENGINE = MergeTree
		PARTITION BY toYYYYMM(ts)
		ORDER BY (toDate(ts), session_id)
	`)
}

// Close closes the ClickHouse connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

// Append inserts one visit as a single-row batch.
func (s *ClickHouseStore) Append(ctx context.Context, v *VisitEvent) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO visit_events (ts, path, referrer_domain, ip_hash, ua_hash, session_id)
	`)
	if err != nil {
		return fmt.Errorf("prepare visit batch: %w", err)
	}
	if err := batch.Append(
		v.Timestamp.UTC(),
		v.Path,
		v.ReferrerDomain,
		v.IPHash,
		v.UAHash,
		v.SessionID,
	); err != nil {
		batch.Abort()
		return fmt.Errorf("append visit: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send visit batch: %w", err)
	}
	return nil
}

// DailyRollup groups events by UTC day inside ClickHouse.
func (s *ClickHouseStore) DailyRollup(ctx context.Context, from, to time.Time) ([]DayRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT toString(toDate(ts)) AS ymd, count() AS visits, uniqExact(session_id) AS "unique"
		FROM visit_events
		WHERE toDate(ts) >= toDate(?) AND toDate(ts) <= toDate(?)
		GROUP BY ymd
		ORDER BY ymd
	`, YMD(from), YMD(to))
	if err != nil {
		return nil, fmt.Errorf("query daily rollup: %w", err)
	}
	defer rows.Close()

	cols := rows.Columns()
	var result []DayRow
	for rows.Next() {
		var (
			ymd            string
			visits, unique uint64
		)
		if err := rows.Scan(&ymd, &visits, &unique); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
		vals := []any{ymd, visits, unique}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		row, err := normalizeDayRow(rec)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollup rows: %w", err)
	}
	return result, nil
}

// ScanEvents returns the raw events recorded on a day in [from, to].
func (s *ClickHouseStore) ScanEvents(ctx context.Context, from, to time.Time) ([]VisitEvent, error) {
	start, end := dayBounds(from, to)
	rows, err := s.conn.Query(ctx, `
		SELECT ts, path, referrer_domain, ip_hash, ua_hash, session_id
		FROM visit_events
		WHERE ts >= ? AND ts < ?
		ORDER BY ts
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("scan visit events: %w", err)
	}
	defer rows.Close()

	var result []VisitEvent
	for rows.Next() {
		var v VisitEvent
		if err := rows.Scan(&v.Timestamp, &v.Path, &v.ReferrerDomain, &v.IPHash, &v.UAHash, &v.SessionID); err != nil {
			return nil, fmt.Errorf("scan visit row: %w", err)
		}
		v.Timestamp = v.Timestamp.UTC()
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visit rows: %w", err)
	}
	return result, nil
}
