package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default EventStore, backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the analytics database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create analytics dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ensureSchema creates the visits table and the daily rollup view.
func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS visits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			ymd TEXT NOT NULL,
			path TEXT NOT NULL,
			referrer_domain TEXT,
			ip_hash TEXT,
			ua_hash TEXT,
			session_id TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_visits_ts ON visits(ts);
		CREATE INDEX IF NOT EXISTS idx_visits_ymd ON visits(ymd);

		CREATE VIEW IF NOT EXISTS visit_daily AS
			SELECT ymd, COUNT(*) AS visits, COUNT(DISTINCT session_id) AS unique_sessions
			FROM visits
			GROUP BY ymd;

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// currentSchemaVersion is the latest schema version. Increment when adding migrations.
const currentSchemaVersion = 1

func (s *SQLiteStore) migrate() error {
	verStr, err := s.GetSetting("schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	version := 0
	if verStr != "" {
		version, err = strconv.Atoi(verStr)
		if err != nil {
			return fmt.Errorf("parse schema version %q: %w", verStr, err)
		}
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	return s.SetSetting("schema_version", strconv.Itoa(currentSchemaVersion))
}

// GetSetting retrieves a setting value by key. Returns empty string if not found.
func (s *SQLiteStore) GetSetting(key string) (string, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return val, err
}

// SetSetting stores a setting value by key (upsert).
func (s *SQLiteStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Append stores a new visit.
func (s *SQLiteStore) Append(ctx context.Context, v *VisitEvent) error {
	ts := v.Timestamp.UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visits (ts, ymd, path, referrer_domain, ip_hash, ua_hash, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts.UnixMilli(), YMD(ts), v.Path,
		nullString(v.ReferrerDomain), nullString(v.IPHash), nullString(v.UAHash),
		v.SessionID,
	)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// DailyRollup reads the visit_daily view for the given date window.
func (s *SQLiteStore) DailyRollup(ctx context.Context, from, to time.Time) ([]DayRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT * FROM visit_daily WHERE ymd >= ? AND ymd <= ? ORDER BY ymd`,
		YMD(from), YMD(to))
	if err != nil {
		return nil, fmt.Errorf("query daily rollup: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("rollup columns: %w", err)
	}

	var result []DayRow
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
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

// ScanEvents returns every visit recorded on a day in [from, to].
func (s *SQLiteStore) ScanEvents(ctx context.Context, from, to time.Time) ([]VisitEvent, error) {
	start, end := dayBounds(from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, path, referrer_domain, ip_hash, ua_hash, session_id
		FROM visits
		WHERE ts >= ? AND ts < ?
		ORDER BY ts`, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("scan visits: %w", err)
	}
	defer rows.Close()

	var result []VisitEvent
	for rows.Next() {
		var (
			ms          int64
			v           VisitEvent
			ref, ip, ua sql.NullString
		)
		if err := rows.Scan(&ms, &v.Path, &ref, &ip, &ua, &v.SessionID); err != nil {
			return nil, fmt.Errorf("scan visit row: %w", err)
		}
		v.Timestamp = time.UnixMilli(ms).UTC()
		v.ReferrerDomain = stringPtr(ref)
		v.IPHash = stringPtr(ip)
		v.UAHash = stringPtr(ua)
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visit rows: %w", err)
	}
	return result, nil
}

// dayBounds converts an inclusive date window into a half-open time range.
func dayBounds(from, to time.Time) (time.Time, time.Time) {
	from, to = from.UTC(), to.UTC()
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return start, end
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
