package state

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/latency-top/internal/latency"
)

// DefaultMaxSamplesPerMonitor bounds the in-memory history of one monitor.
const DefaultMaxSamplesPerMonitor = 200_000

// Store is the interface for latency sample storage.
// All methods must be thread-safe.
type Store interface {
	// AddSample records a latency sample. If the monitor is empty the
	// sample is stored under the "unknown" bucket and a warning is logged.
	AddSample(s Sample)

	// ListMonitors returns a snapshot of all monitors sorted by ID.
	ListMonitors() []MonitorInfo

	// QueryDayPoints returns the daily P50/P95 points of a monitor for the
	// last days calendar days (today included), oldest first.
	QueryDayPoints(monitor string, days int) []latency.DayPoint

	// OnSample registers a listener called after every AddSample.
	OnSample(fn SampleListener)

	// DroppedWrites returns the number of writes lost to back-pressure.
	DroppedWrites() int64

	Close() error
}

// SampleListener is a callback invoked after a new sample is stored.
// Listeners are called outside the store lock.
type SampleListener func(s Sample)

type monitorData struct {
	info    MonitorInfo
	samples []Sample
}

// MemoryStore is a thread-safe in-memory implementation of Store.
// It indexes samples by monitor ID using a sync.RWMutex.
type MemoryStore struct {
	mu         sync.RWMutex
	monitors   map[string]*monitorData
	listeners  []SampleListener
	maxSamples int
	loc        *time.Location
	now        func() time.Time
	log        *zap.Logger
}

type MemoryOption func(*MemoryStore)

// WithLogger sets the logger used for ingest warnings.
func WithLogger(l *zap.Logger) MemoryOption {
	return func(ms *MemoryStore) {
		if l != nil {
			ms.log = l
		}
	}
}

// WithLocation sets the location that defines calendar days.
func WithLocation(loc *time.Location) MemoryOption {
	return func(ms *MemoryStore) {
		if loc != nil {
			ms.loc = loc
		}
	}
}

// WithMaxSamples bounds the number of samples kept per monitor.
func WithMaxSamples(n int) MemoryOption {
	return func(ms *MemoryStore) {
		if n > 0 {
			ms.maxSamples = n
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStore creates a new empty MemoryStore ready for use.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	ms := &MemoryStore{
		monitors:   make(map[string]*monitorData),
		maxSamples: DefaultMaxSamplesPerMonitor,
		loc:        time.Local,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

// Location returns the location that defines calendar days.
func (ms *MemoryStore) Location() *time.Location { return ms.loc }

// Now returns the store clock's current time.
func (ms *MemoryStore) Now() time.Time { return ms.now() }

// OnSample registers a listener that is called after every AddSample.
func (ms *MemoryStore) OnSample(fn SampleListener) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.listeners = append(ms.listeners, fn)
}

func (ms *MemoryStore) resolveMonitorID(monitor string) string {
	if monitor == "" {
		ms.log.Warn("sample received without monitor id", zap.String("bucket", UnknownMonitorID))
		return UnknownMonitorID
	}
	return monitor
}

// AddSample stores s. A zero timestamp is replaced with the current time.
// Samples with an invalid latency are dropped.
func (ms *MemoryStore) AddSample(s Sample) {
	if !ValidLatency(s.LatencyMs) {
		ms.log.Debug("dropping invalid latency sample",
			zap.String("monitor", s.Monitor), zap.Float64("latency_ms", s.LatencyMs))
		return
	}
	s.Monitor = ms.resolveMonitorID(s.Monitor)
	if s.Timestamp.IsZero() {
		s.Timestamp = ms.now()
	}

	ms.mu.Lock()
	ms.insertLocked(s)
	listeners := make([]SampleListener, len(ms.listeners))
	copy(listeners, ms.listeners)
	ms.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// Restore loads samples without notifying listeners. Used on startup
// recovery.
func (ms *MemoryStore) Restore(samples []Sample) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, s := range samples {
		if !ValidLatency(s.LatencyMs) || s.Timestamp.IsZero() {
			continue
		}
		if s.Monitor == "" {
			s.Monitor = UnknownMonitorID
		}
		ms.insertLocked(s)
	}
}

// insertLocked keeps samples ordered by timestamp. Caller must hold ms.mu.
func (ms *MemoryStore) insertLocked(s Sample) {
	md, ok := ms.monitors[s.Monitor]
	if !ok {
		md = &monitorData{info: MonitorInfo{ID: s.Monitor}}
		ms.monitors[s.Monitor] = md
	}

	n := len(md.samples)
	if n == 0 || !s.Timestamp.Before(md.samples[n-1].Timestamp) {
		md.samples = append(md.samples, s)
	} else {
		i := sort.Search(n, func(i int) bool { return md.samples[i].Timestamp.After(s.Timestamp) })
		md.samples = append(md.samples, Sample{})
		copy(md.samples[i+1:], md.samples[i:])
		md.samples[i] = s
	}

	// Reslicing drops the oldest samples without copying; the next append
	// that outgrows the backing array moves only the retained window.
	if len(md.samples) > ms.maxSamples {
		drop := len(md.samples) - ms.maxSamples
		clear(md.samples[:drop])
		md.samples = md.samples[drop:]
	}

	md.info.SampleCount = len(md.samples)
	md.info.FirstSampleAt = md.samples[0].Timestamp
	last := md.samples[len(md.samples)-1]
	md.info.LastSampleAt = last.Timestamp
	md.info.LastLatencyMs = last.LatencyMs
}

// ListMonitors returns a snapshot of all monitors sorted by ID.
func (ms *MemoryStore) ListMonitors() []MonitorInfo {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]MonitorInfo, 0, len(ms.monitors))
	for _, md := range ms.monitors {
		result = append(result, md.info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// SamplesSince returns a copy of the monitor's samples at or after since.
func (ms *MemoryStore) SamplesSince(monitor string, since time.Time) []Sample {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	md, ok := ms.monitors[monitor]
	if !ok {
		return nil
	}
	i := sort.Search(len(md.samples), func(i int) bool { return !md.samples[i].Timestamp.Before(since) })
	out := make([]Sample, len(md.samples)-i)
	copy(out, md.samples[i:])
	return out
}

// Prune drops samples older than before and forgets monitors left without
// samples. It returns the number of samples removed.
func (ms *MemoryStore) Prune(before time.Time) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	removed := 0
	for id, md := range ms.monitors {
		i := sort.Search(len(md.samples), func(i int) bool { return !md.samples[i].Timestamp.Before(before) })
		if i == 0 {
			continue
		}
		removed += i
		if i == len(md.samples) {
			delete(ms.monitors, id)
			continue
		}
		md.samples = append(md.samples[:0:0], md.samples[i:]...)
		md.info.SampleCount = len(md.samples)
		md.info.FirstSampleAt = md.samples[0].Timestamp
	}
	return removed
}

// WindowStart returns local midnight of the first day in a window of
// days calendar days ending today.
func (ms *MemoryStore) WindowStart(days int) time.Time {
	if days < 1 {
		days = 1
	}
	return StartOfDay(ms.now(), ms.loc).AddDate(0, 0, -(days - 1))
}

// QueryDayPoints aggregates the in-memory samples of monitor per day.
func (ms *MemoryStore) QueryDayPoints(monitor string, days int) []latency.DayPoint {
	samples := ms.SamplesSince(monitor, ms.WindowStart(days))
	return Points(AggregateDays(samples, ms.loc))
}

// DroppedWrites always returns 0; the memory store never drops writes.
func (ms *MemoryStore) DroppedWrites() int64 { return 0 }

// Close is a no-op for the memory store.
func (ms *MemoryStore) Close() error { return nil }
