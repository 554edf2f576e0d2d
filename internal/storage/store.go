package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/latency-top/internal/latency"
	"github.com/nixlim/latency-top/internal/state"
)

const (
	writeChannelSize = 1000
	batchSize        = 50
	flushInterval    = 100 * time.Millisecond
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store is closed")

type writeOp struct {
	opType string
	sample *state.Sample
}

// SQLiteStore keeps the retention window of raw samples in memory and on
// disk, and older days as P50/P95 summaries on disk only.
type SQLiteStore struct {
	*state.MemoryStore
	db              *sql.DB
	log             *zap.Logger
	writeChan       chan writeOp
	droppedWrites   atomic.Int64
	doneChan        chan struct{}
	closed          atomic.Bool
	cancelMaint     context.CancelFunc
	maintenanceDone chan struct{}

	retentionDays        int
	summaryRetentionDays int
}

type options struct {
	log      *zap.Logger
	loc      *time.Location
	now      func() time.Time
	chanSize int
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithLocation sets the location that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func withChannelSize(n int) Option {
	return func(o *options) { o.chanSize = n }
}

func NewSQLiteStore(dbPath string, retentionDays, summaryRetentionDays int, opts ...Option) (*SQLiteStore, error) {
	o := options{log: zap.NewNop(), chanSize: writeChannelSize}
	for _, opt := range opts {
		opt(&o)
	}
	if retentionDays < 1 {
		retentionDays = 1
	}
	if summaryRetentionDays < retentionDays {
		summaryRetentionDays = retentionDays
	}

	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	store := &SQLiteStore{
		MemoryStore: state.NewMemoryStore(
			state.WithLogger(o.log),
			state.WithLocation(o.loc),
			state.WithClock(o.now),
		),
		db:                   db,
		log:                  o.log,
		writeChan:            make(chan writeOp, o.chanSize),
		doneChan:             make(chan struct{}),
		cancelMaint:          cancel,
		maintenanceDone:      make(chan struct{}),
		retentionDays:        retentionDays,
		summaryRetentionDays: summaryRetentionDays,
	}

	if err := store.recoverSamples(); err != nil {
		cancel()
		_ = db.Close()
		return nil, fmt.Errorf("recovering samples: %w", err)
	}

	go store.writerLoop()
	store.startMaintenance(ctx)

	return store, nil
}

// AddSample stores sample in memory and queues it for persistence.
func (s *SQLiteStore) AddSample(sample state.Sample) {
	if !state.ValidLatency(sample.LatencyMs) {
		return
	}
	if sample.Monitor == "" {
		s.log.Warn("sample received without monitor id", zap.String("bucket", state.UnknownMonitorID))
		sample.Monitor = state.UnknownMonitorID
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.Now()
	}
	s.MemoryStore.AddSample(sample)

	s.sendWrite(writeOp{opType: "sample", sample: &sample})
}

func (s *SQLiteStore) sendWrite(op writeOp) {
	if s.closed.Load() {
		return
	}
	defer func() { _ = recover() }()
	select {
	case s.writeChan <- op:
	default:
		s.droppedWrites.Add(1)
		s.log.Warn("SQLite write channel full, dropped write", zap.String("type", op.opType))
	}
}

func (s *SQLiteStore) DroppedWrites() int64 {
	return s.droppedWrites.Load()
}

// ListMonitors merges monitors with in-memory samples and monitors that
// only have persisted history.
func (s *SQLiteStore) ListMonitors() []state.MonitorInfo {
	live := s.MemoryStore.ListMonitors()
	if s.closed.Load() {
		return live
	}

	seen := make(map[string]bool, len(live))
	for _, m := range live {
		seen[m.ID] = true
	}

	rows, err := s.db.Query("SELECT monitor, first_sample_ms, last_sample_ms, last_latency_ms FROM monitors")
	if err != nil {
		s.log.Error("querying monitors", zap.Error(err))
		return live
	}
	defer func() { _ = rows.Close() }()

	result := live
	for rows.Next() {
		var id string
		var first, last int64
		var lastLatency sql.NullFloat64
		if err := rows.Scan(&id, &first, &last, &lastLatency); err != nil {
			s.log.Error("scanning monitor row", zap.Error(err))
			continue
		}
		if seen[id] {
			continue
		}
		result = append(result, state.MonitorInfo{
			ID:            id,
			FirstSampleAt: time.UnixMilli(first),
			LastSampleAt:  time.UnixMilli(last),
			LastLatencyMs: lastLatency.Float64,
		})
	}
	if err := rows.Err(); err != nil {
		s.log.Error("iterating monitor rows", zap.Error(err))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// QueryDayPoints combines live aggregation of in-memory samples with
// persisted summaries for days that are no longer held in memory.
func (s *SQLiteStore) QueryDayPoints(monitor string, days int) []latency.DayPoint {
	live := s.MemoryStore.QueryDayPoints(monitor, days)
	if s.closed.Load() {
		return live
	}

	summaries, err := s.querySummaries(monitor, s.WindowStart(days).Unix())
	if err != nil {
		s.log.Error("querying daily summaries", zap.String("monitor", monitor), zap.Error(err))
		return live
	}
	return mergeDayPoints(summaries, live)
}

// mergeDayPoints overlays live points on persisted ones by day and returns
// the result oldest first.
func mergeDayPoints(persisted, live []latency.DayPoint) []latency.DayPoint {
	byDay := make(map[int64]latency.DayPoint, len(persisted)+len(live))
	for _, p := range persisted {
		byDay[p.DayStartAt] = p
	}
	for _, p := range live {
		byDay[p.DayStartAt] = p
	}

	out := make([]latency.DayPoint, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayStartAt < out[j].DayStartAt })
	return out
}

func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	s.cancelMaint()
	select {
	case <-s.maintenanceDone:
	case <-time.After(30 * time.Second):
		s.log.Warn("maintenance goroutine did not stop within 30s")
	}

	close(s.writeChan)

	select {
	case <-s.doneChan:
	case <-time.After(10 * time.Second):
		s.log.Error("failed to drain writes within 10s, data may be lost")
	}

	if err := s.summariseLive(); err != nil {
		s.log.Error("failed to run final aggregation", zap.Error(err))
	}

	return s.db.Close()
}

func (s *SQLiteStore) writerLoop() {
	defer close(s.doneChan)

	batch := make([]writeOp, 0, batchSize)
	flushTimer := time.NewTimer(flushInterval)
	defer flushTimer.Stop()

	for {
		select {
		case op, ok := <-s.writeChan:
			if !ok {
				if len(batch) > 0 {
					s.flushBatch(batch)
				}
				return
			}

			batch = append(batch, op)

			if len(batch) >= batchSize {
				s.flushBatch(batch)
				batch = batch[:0]
				flushTimer.Reset(flushInterval)
			}

		case <-flushTimer.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
			flushTimer.Reset(flushInterval)
		}
	}
}

func (s *SQLiteStore) flushBatch(batch []writeOp) {
	tx, err := s.db.Begin()
	if err != nil {
		s.log.Error("failed to begin transaction", zap.Error(err))
		return
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range batch {
		if err := s.executeOp(tx, op); err != nil {
			s.log.Error("failed to execute write op", zap.String("type", op.opType), zap.Error(err))
		}
	}

	if err := tx.Commit(); err != nil {
		s.log.Error("failed to commit transaction", zap.Error(err))
	}
}

func (s *SQLiteStore) executeOp(tx *sql.Tx, op writeOp) error {
	switch op.opType {
	case "sample":
		return writeSample(tx, *op.sample)
	default:
		return fmt.Errorf("unknown op type: %s", op.opType)
	}
}
