package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/latency-top/internal/state"
)

const (
	maintenanceInterval = 1 * time.Hour
	vacuumInterval      = 7 * 24 * time.Hour
)

func (s *SQLiteStore) startMaintenance(ctx context.Context) {
	go s.maintenanceLoop(ctx)
}

func (s *SQLiteStore) maintenanceLoop(ctx context.Context) {
	defer close(s.maintenanceDone)

	lastVacuum := time.Now()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runMaintenanceCycle(); err != nil {
				s.log.Error("maintenance cycle failed", zap.Error(err))
			}

			if time.Since(lastVacuum) >= vacuumInterval {
				if _, err := s.db.Exec("VACUUM"); err != nil {
					s.log.Error("VACUUM failed", zap.Error(err))
				} else {
					lastVacuum = time.Now()
				}
			}
		}
	}
}

// runMaintenanceCycle folds whole days that fell out of the raw retention
// window into daily_latency, then prunes raw samples and expired summaries.
func (s *SQLiteStore) runMaintenanceCycle() error {
	cutoff := s.WindowStart(s.retentionDays)
	summaryCutoff := s.WindowStart(s.summaryRetentionDays)

	expired, err := s.loadSamplesBefore(cutoff.UnixMilli())
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for monitor, samples := range expired {
		for _, d := range state.AggregateDays(samples, s.Location()) {
			if err := writeSummary(tx, monitor, d); err != nil {
				return err
			}
		}
	}

	if _, err := tx.Exec("DELETE FROM samples WHERE ts_ms < ?", cutoff.UnixMilli()); err != nil {
		return fmt.Errorf("pruning old samples: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM daily_latency WHERE day_start_at < ?", summaryCutoff.Unix()); err != nil {
		return fmt.Errorf("pruning old summaries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing maintenance: %w", err)
	}

	if n := s.Prune(cutoff); n > 0 {
		s.log.Debug("pruned in-memory samples", zap.Int("samples", n))
	}
	return nil
}

func (s *SQLiteStore) loadSamplesBefore(beforeMs int64) (map[string][]state.Sample, error) {
	rows, err := s.db.Query("SELECT monitor, latency_ms, ts_ms FROM samples WHERE ts_ms < ?", beforeMs)
	if err != nil {
		return nil, fmt.Errorf("querying expired samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]state.Sample)
	for rows.Next() {
		var sample state.Sample
		var tsMs int64
		if err := rows.Scan(&sample.Monitor, &sample.LatencyMs, &tsMs); err != nil {
			return nil, fmt.Errorf("scanning expired sample: %w", err)
		}
		sample.Timestamp = time.UnixMilli(tsMs)
		out[sample.Monitor] = append(out[sample.Monitor], sample)
	}
	return out, rows.Err()
}

// summariseLive persists the day summaries of every sample still held in
// memory. Run on shutdown after the writer has drained.
func (s *SQLiteStore) summariseLive() error {
	since := s.WindowStart(s.retentionDays)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range s.MemoryStore.ListMonitors() {
		days := state.AggregateDays(s.SamplesSince(m.ID, since), s.Location())
		for _, d := range days {
			if err := writeSummary(tx, m.ID, d); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}
