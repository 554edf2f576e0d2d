package storage

import (
	"database/sql"
	"fmt"

	"github.com/nixlim/latency-top/internal/state"
)

// sqlExecer is satisfied by *sql.DB and *sql.Tx.
type sqlExecer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func writeSample(tx sqlExecer, s state.Sample) error {
	ts := s.Timestamp.UnixMilli()

	_, err := tx.Exec(
		"INSERT INTO samples (monitor, latency_ms, ts_ms) VALUES (?, ?, ?)",
		s.Monitor, s.LatencyMs, ts,
	)
	if err != nil {
		return fmt.Errorf("inserting sample: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO monitors (monitor, first_sample_ms, last_sample_ms, last_latency_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(monitor) DO UPDATE SET
			first_sample_ms = MIN(monitors.first_sample_ms, excluded.first_sample_ms),
			last_latency_ms = CASE WHEN excluded.last_sample_ms >= monitors.last_sample_ms
				THEN excluded.last_latency_ms ELSE monitors.last_latency_ms END,
			last_sample_ms = MAX(monitors.last_sample_ms, excluded.last_sample_ms)
	`, s.Monitor, ts, ts, s.LatencyMs)
	if err != nil {
		return fmt.Errorf("upserting monitor: %w", err)
	}
	return nil
}

func writeSummary(tx sqlExecer, monitor string, d state.DaySummary) error {
	_, err := tx.Exec(`
		INSERT INTO daily_latency (monitor, day_start_at, date, p50_ms, p95_ms, sample_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(monitor, day_start_at) DO UPDATE SET
			date = excluded.date,
			p50_ms = excluded.p50_ms,
			p95_ms = excluded.p95_ms,
			sample_count = excluded.sample_count
	`, monitor, d.DayStartAt, d.Date, d.P50Ms, d.P95Ms, d.SampleCount)
	if err != nil {
		return fmt.Errorf("upserting daily summary for %s on %s: %w", monitor, d.Date, err)
	}
	return nil
}
