// Package store logs readings to a SQL database for the statistics pages.
// Postgres is used for postgres:// DSNs, anything else is a sqlite file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gr-butler/dht/dht"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	logger "github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS dht_readings (
  ts_unix       BIGINT           NOT NULL,
  status        TEXT             NOT NULL,
  attempts      INTEGER          NOT NULL,
  temperature_c DOUBLE PRECISION,
  humidity_pct  DOUBLE PRECISION
)`

const index = `CREATE INDEX IF NOT EXISTS idx_dht_readings_ts ON dht_readings(ts_unix)`

var ErrNoReadings = errors.New("store: no readings")

type Store struct {
	db     *sql.DB
	driver string
}

type Summary struct {
	Count          int     `json:"count"`
	MinTemperature float64 `json:"temperature_min_C"`
	MaxTemperature float64 `json:"temperature_max_C"`
	AvgTemperature float64 `json:"temperature_avg_C"`
	MinHumidity    float64 `json:"humidity_min_RH"`
	MaxHumidity    float64 `json:"humidity_max_RH"`
	AvgHumidity    float64 `json:"humidity_avg_RH"`
}

type Row struct {
	Time        time.Time
	Status      string
	Attempts    int
	Temperature sql.NullFloat64
	Humidity    sql.NullFloat64
}

func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite3"
}

// Open connects and creates the table if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver := driverFor(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if driver == "sqlite3" {
		// one writer, and :memory: databases are per connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Infof("Logging readings to [%v]", driver)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, q := range []string{schema, index} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("store migrate: %w", err)
		}
	}
	return nil
}

// bind rewrites ? placeholders for postgres.
func (s *Store) bind(q string) string {
	if s.driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WriteReading records every read, failed ones included, so the attempt
// statistics survive restarts.
func (s *Store) WriteReading(ctx context.Context, r dht.Reading) error {
	var temp, hum sql.NullFloat64
	if r.Valid && r.Status == dht.Success {
		temp = sql.NullFloat64{Float64: r.Temperature.Float64(), Valid: true}
		hum = sql.NullFloat64{Float64: r.Humidity.Float64(), Valid: true}
	}
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		s.bind(`INSERT INTO dht_readings (ts_unix, status, attempts, temperature_c, humidity_pct) VALUES (?, ?, ?, ?, ?)`),
		ts.Unix(), r.Status.String(), r.Attempts, temp, hum)
	if err != nil {
		return fmt.Errorf("store write: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context) (Row, error) {
	var (
		row Row
		ts  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT ts_unix, status, attempts, temperature_c, humidity_pct FROM dht_readings ORDER BY ts_unix DESC LIMIT 1`,
	).Scan(&ts, &row.Status, &row.Attempts, &row.Temperature, &row.Humidity)
	if errors.Is(err, sql.ErrNoRows) {
		return row, ErrNoReadings
	}
	if err != nil {
		return row, fmt.Errorf("store latest: %w", err)
	}
	row.Time = time.Unix(ts, 0)
	return row, nil
}

// Summary aggregates the successful readings since the given time.
func (s *Store) Summary(ctx context.Context, since time.Time) (Summary, error) {
	var sum Summary
	var minT, maxT, avgT, minH, maxH, avgH sql.NullFloat64
	err := s.db.QueryRowContext(ctx, s.bind(`
SELECT COUNT(*), MIN(temperature_c), MAX(temperature_c), AVG(temperature_c),
       MIN(humidity_pct), MAX(humidity_pct), AVG(humidity_pct)
FROM dht_readings WHERE status = ? AND ts_unix >= ?`),
		dht.Success.String(), since.Unix(),
	).Scan(&sum.Count, &minT, &maxT, &avgT, &minH, &maxH, &avgH)
	if err != nil {
		return sum, fmt.Errorf("store summary: %w", err)
	}
	if sum.Count == 0 {
		return sum, ErrNoReadings
	}
	sum.MinTemperature, sum.MaxTemperature, sum.AvgTemperature = minT.Float64, maxT.Float64, avgT.Float64
	sum.MinHumidity, sum.MaxHumidity, sum.AvgHumidity = minH.Float64, maxH.Float64, avgH.Float64
	return sum, nil
}

// AttemptCounts returns how many reads ended in each status since the given time.
func (s *Store) AttemptCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		s.bind(`SELECT status, COUNT(*) FROM dht_readings WHERE ts_unix >= ? GROUP BY status`), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("store counts: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("store counts: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
