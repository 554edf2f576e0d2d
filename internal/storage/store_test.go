package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nixlim/latency-top/internal/latency"
	"github.com/nixlim/latency-top/internal/state"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, dbPath string, retentionDays int) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(dbPath, retentionDays, 90,
		WithLocation(time.UTC),
		WithClock(func() time.Time { return testNow }),
	)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func day(offset, hour int) time.Time {
	return time.Date(2026, 3, 10+offset, hour, 0, 0, 0, time.UTC)
}

func TestSQLiteStore_AddSample_PersistsToSQLite(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "test.db"), 7)
	defer func() { _ = store.Close() }()

	store.AddSample(state.Sample{Monitor: "api", LatencyMs: 42.5, Timestamp: day(0, 9)})
	store.AddSample(state.Sample{Monitor: "api", LatencyMs: 12, Timestamp: day(0, 10)})

	time.Sleep(150 * time.Millisecond)

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM samples WHERE monitor = ?", "api").Scan(&count); err != nil {
		t.Fatalf("failed to query samples: %v", err)
	}
	if count != 2 {
		t.Errorf("samples not persisted: want 2 rows, got %d", count)
	}

	var lastLatency float64
	var lastMs int64
	err := store.db.QueryRow("SELECT last_latency_ms, last_sample_ms FROM monitors WHERE monitor = ?", "api").Scan(&lastLatency, &lastMs)
	if err != nil {
		t.Fatalf("failed to read monitor row: %v", err)
	}
	if lastLatency != 12 || lastMs != day(0, 10).UnixMilli() {
		t.Errorf("monitor row: got last_latency=%f last_ms=%d", lastLatency, lastMs)
	}
}

func TestSQLiteStore_OutOfOrderKeepsLatestMonitorState(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "test.db"), 7)
	defer func() { _ = store.Close() }()

	store.AddSample(state.Sample{Monitor: "api", LatencyMs: 5, Timestamp: day(0, 10)})
	store.AddSample(state.Sample{Monitor: "api", LatencyMs: 9, Timestamp: day(0, 8)})

	time.Sleep(150 * time.Millisecond)

	var first, last int64
	var lastLatency float64
	err := store.db.QueryRow("SELECT first_sample_ms, last_sample_ms, last_latency_ms FROM monitors WHERE monitor = ?", "api").
		Scan(&first, &last, &lastLatency)
	if err != nil {
		t.Fatalf("failed to read monitor row: %v", err)
	}
	if first != day(0, 8).UnixMilli() || last != day(0, 10).UnixMilli() || lastLatency != 5 {
		t.Errorf("late sample should only move first_sample_ms: first=%d last=%d latency=%f", first, last, lastLatency)
	}
}

func TestSQLiteStore_InvalidSampleNotPersisted(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "test.db"), 7)
	defer func() { _ = store.Close() }()

	store.AddSample(state.Sample{Monitor: "api", LatencyMs: -1, Timestamp: day(0, 9)})

	time.Sleep(150 * time.Millisecond)

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&count); err != nil {
		t.Fatalf("failed to query samples: %v", err)
	}
	if count != 0 {
		t.Errorf("invalid sample should be dropped, got %d rows", count)
	}
}

func TestSQLiteStore_OnSampleListener(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "test.db"), 7)
	defer func() { _ = store.Close() }()

	var got []state.Sample
	store.OnSample(func(s state.Sample) { got = append(got, s) })
	store.AddSample(state.Sample{LatencyMs: 3})

	if len(got) != 1 {
		t.Fatalf("listener: want 1 call, got %d", len(got))
	}
	if got[0].Monitor != state.UnknownMonitorID || !got[0].Timestamp.Equal(testNow) {
		t.Errorf("listener should see the normalised sample, got %+v", got[0])
	}
}

func TestSQLiteStore_Close_FlushesWrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := newTestStore(t, dbPath, 7)

	for i := 1; i <= 20; i++ {
		store.AddSample(state.Sample{Monitor: "api", LatencyMs: float64(i), Timestamp: day(0, 1)})
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer func() { _ = db.Close() }()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&count); err != nil {
		t.Fatalf("counting samples: %v", err)
	}
	if count != 20 {
		t.Errorf("Close should drain pending writes: want 20, got %d", count)
	}

	var p50, p95 float64
	var n int
	err = db.QueryRow("SELECT p50_ms, p95_ms, sample_count FROM daily_latency WHERE monitor = ? AND day_start_at = ?",
		"api", day(0, 0).Unix()).Scan(&p50, &p95, &n)
	if err != nil {
		t.Fatalf("Close should summarise live days: %v", err)
	}
	if p50 != 10 || p95 != 19 || n != 20 {
		t.Errorf("summary: got p50=%f p95=%f n=%d", p50, p95, n)
	}
}

func TestSQLiteStore_Close_Twice(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "test.db"), 7)

	if err := store.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := store.Close(); err != ErrClosed {
		t.Errorf("second Close: want ErrClosed, got %v", err)
	}

	store.AddSample(state.Sample{Monitor: "api", LatencyMs: 1, Timestamp: day(0, 1)})
	if store.DroppedWrites() != 0 {
		t.Errorf("writes after close are ignored, not dropped: got %d", store.DroppedWrites())
	}
}

func TestSQLiteStore_RecoveryLoadsSamples(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store := newTestStore(t, dbPath, 2)
	store.AddSample(state.Sample{Monitor: "api", LatencyMs: 10, Timestamp: day(0, 1)})
	store.AddSample(state.Sample{Monitor: "api", LatencyMs: 20, Timestamp: day(-1, 1)})
	store.AddSample(state.Sample{Monitor: "api", LatencyMs: 30, Timestamp: day(-5, 1)})
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := newTestStore(t, dbPath, 2)
	defer func() { _ = reopened.Close() }()

	samples := reopened.SamplesSince("api", time.Time{})
	if len(samples) != 2 {
		t.Fatalf("only samples inside retention should be recovered: want 2, got %d", len(samples))
	}
	if samples[0].LatencyMs != 20 || samples[1].LatencyMs != 10 {
		t.Errorf("recovered samples out of order: %+v", samples)
	}

	points := reopened.QueryDayPoints("api", 2)
	if len(points) != 2 {
		t.Errorf("want 2 day points after recovery, got %d", len(points))
	}
}

func TestSQLiteStore_RecoveryEmptyDB(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "test.db"), 7)
	defer func() { _ = store.Close() }()

	if n := len(store.ListMonitors()); n != 0 {
		t.Errorf("fresh database should have no monitors, got %d", n)
	}
}

func TestSQLiteStore_ListMonitorsIncludesPersisted(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "test.db"), 7)
	defer func() { _ = store.Close() }()

	_, err := store.db.Exec("INSERT INTO monitors (monitor, first_sample_ms, last_sample_ms, last_latency_ms) VALUES (?, ?, ?, ?)",
		"legacy", day(-30, 0).UnixMilli(), day(-20, 0).UnixMilli(), 77.0)
	if err != nil {
		t.Fatalf("seeding monitor: %v", err)
	}
	store.AddSample(state.Sample{Monitor: "api", LatencyMs: 1, Timestamp: day(0, 1)})

	monitors := store.ListMonitors()
	if len(monitors) != 2 {
		t.Fatalf("want 2 monitors, got %+v", monitors)
	}
	if monitors[0].ID != "api" || monitors[1].ID != "legacy" {
		t.Errorf("monitors should be sorted by ID, got %s, %s", monitors[0].ID, monitors[1].ID)
	}
	if monitors[1].LastLatencyMs != 77 || monitors[1].SampleCount != 0 {
		t.Errorf("persisted-only monitor: got %+v", monitors[1])
	}
}

func TestSQLiteStore_QueryDayPoints_MergesSummaries(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "test.db"), 2)
	defer func() { _ = store.Close() }()

	insert := func(d time.Time, p50, p95 any) {
		t.Helper()
		_, err := store.db.Exec(
			"INSERT INTO daily_latency (monitor, day_start_at, date, p50_ms, p95_ms, sample_count) VALUES (?, ?, ?, ?, ?, 1)",
			"api", d.Unix(), d.Format("2006-01-02"), p50, p95)
		if err != nil {
			t.Fatalf("seeding summary: %v", err)
		}
	}
	insert(day(-4, 0), 15.0, 40.0)
	insert(day(-3, 0), 16.0, nil)
	insert(day(0, 0), 999.0, 999.0)
	insert(day(-30, 0), 1.0, 1.0)

	store.AddSample(state.Sample{Monitor: "api", LatencyMs: 8, Timestamp: day(0, 2)})

	points := store.QueryDayPoints("api", 7)
	if len(points) != 3 {
		t.Fatalf("want 3 points in a 7-day window, got %d: %+v", len(points), points)
	}
	if points[0].DayStartAt != day(-4, 0).Unix() {
		t.Errorf("points should be oldest first, got %+v", points)
	}
	if points[1].P95.Valid() {
		t.Errorf("NULL p95 should read as absent, got %v", points[1].P95)
	}
	if v, ok := points[2].P95.Get(); !ok || v != 8 {
		t.Errorf("live samples should override the stored summary of the same day, got %v", points[2].P95)
	}
}

func TestMergeDayPoints(t *testing.T) {
	persisted := []latency.DayPoint{
		{DayStartAt: 100, P95: latency.Some(1)},
		{DayStartAt: 300, P95: latency.Some(3)},
	}
	live := []latency.DayPoint{
		{DayStartAt: 200, P95: latency.Some(2)},
		{DayStartAt: 300, P95: latency.Some(30)},
	}

	got := mergeDayPoints(persisted, live)
	if len(got) != 3 {
		t.Fatalf("want 3 points, got %d", len(got))
	}
	want := []float64{1, 2, 30}
	for i, p := range got {
		if v, _ := p.P95.Get(); v != want[i] {
			t.Errorf("point %d: want %f, got %v", i, want[i], p.P95)
		}
	}
}
