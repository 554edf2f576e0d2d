package receiver

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nixlim/latency-top/internal/state"
)

// Logger records every accepted sample for debugging ingest.
// Implementations must be safe for concurrent use.
type Logger interface {
	LogSample(metric string, s state.Sample)
}

// NopLogger discards all log output. This is the default when debug logging
// is not enabled.
type NopLogger struct{}

// LogSample is a no-op.
func (NopLogger) LogSample(string, state.Sample) {}

// logEntry is the JSON structure written by FileLogger.
type logEntry struct {
	Timestamp string  `json:"ts"`
	Monitor   string  `json:"monitor"`
	Metric    string  `json:"metric"`
	LatencyMs float64 `json:"latency_ms"`
}

// FileLogger writes one JSON object per line to an io.Writer.
type FileLogger struct {
	w  io.Writer
	mu sync.Mutex
}

func NewFileLogger(w io.Writer) *FileLogger {
	return &FileLogger{w: w}
}

// LogSample writes a JSON line for an accepted sample.
func (l *FileLogger) LogSample(metric string, s state.Sample) {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	data, err := json.Marshal(logEntry{
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Monitor:   s.Monitor,
		Metric:    metric,
		LatencyMs: s.LatencyMs,
	})
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s\n", data)
}
