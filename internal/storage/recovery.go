package storage

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/latency-top/internal/state"
)

// recoverSamples loads the raw samples of the retention window back into
// memory so live aggregation survives a restart.
func (s *SQLiteStore) recoverSamples() error {
	cutoff := s.WindowStart(s.retentionDays).UnixMilli()

	rows, err := s.db.Query(
		"SELECT monitor, latency_ms, ts_ms FROM samples WHERE ts_ms >= ? ORDER BY ts_ms",
		cutoff,
	)
	if err != nil {
		return fmt.Errorf("querying retained samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		samples   []state.Sample
		failCount int
	)
	for rows.Next() {
		var monitor string
		var latencyMs float64
		var tsMs int64
		if err := rows.Scan(&monitor, &latencyMs, &tsMs); err != nil {
			failCount++
			s.log.Error("failed to scan sample row", zap.Error(err))
			continue
		}
		samples = append(samples, state.Sample{
			Monitor:   monitor,
			LatencyMs: latencyMs,
			Timestamp: time.UnixMilli(tsMs),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating sample rows: %w", err)
	}

	s.Restore(samples)

	if len(samples) > 0 || failCount > 0 {
		s.log.Info("recovered samples from database",
			zap.Int("samples", len(samples)),
			zap.Int("failed", failCount),
		)
	}
	return nil
}
