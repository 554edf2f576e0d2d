package storage

import (
	"database/sql"
	"fmt"

	"github.com/nixlim/latency-top/internal/latency"
)

// querySummaries returns the persisted day points of monitor starting at
// or after sinceUnix, oldest first.
func (s *SQLiteStore) querySummaries(monitor string, sinceUnix int64) ([]latency.DayPoint, error) {
	rows, err := s.db.Query(`
		SELECT day_start_at, p50_ms, p95_ms
		FROM daily_latency
		WHERE monitor = ? AND day_start_at >= ?
		ORDER BY day_start_at
	`, monitor, sinceUnix)
	if err != nil {
		return nil, fmt.Errorf("querying daily_latency: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []latency.DayPoint
	for rows.Next() {
		var day int64
		var p50, p95 sql.NullFloat64
		if err := rows.Scan(&day, &p50, &p95); err != nil {
			return nil, fmt.Errorf("scanning daily_latency row: %w", err)
		}
		points = append(points, latency.DayPoint{
			DayStartAt: day,
			P50:        nullValue(p50),
			P95:        nullValue(p95),
		})
	}
	return points, rows.Err()
}

func nullValue(n sql.NullFloat64) latency.Value {
	if !n.Valid {
		return latency.None()
	}
	return latency.Some(n.Float64)
}
