// Package chartapi serves render-ready latency charts over HTTP and pushes
// updates to websocket subscribers.
package chartapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nixlim/latency-top/internal/config"
	"github.com/nixlim/latency-top/internal/latency"
	"github.com/nixlim/latency-top/internal/receiver"
	"github.com/nixlim/latency-top/internal/state"
)

const maxDays = 365

// MonitorJSON is one entry of the monitor listing.
type MonitorJSON struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	SampleCount   int       `json:"sample_count"`
	LastSampleAt  time.Time `json:"last_sample_at"`
	LastLatencyMs float64   `json:"last_latency_ms"`
}

// ChartJSON is the latency chart of one monitor.
type ChartJSON struct {
	Monitor string `json:"monitor"`
	Days    int    `json:"days"`
	latency.Chart
}

type errorJSON struct {
	Error string `json:"error"`
}

// Server exposes the chart of every monitor.
type Server struct {
	cfg         config.APIConfig
	store       state.Store
	policy      latency.Policy
	defaultDays int
	throttle    time.Duration
	log         *zap.Logger
	hub         *hub
	upgrader    websocket.Upgrader

	listener net.Listener
	server   *http.Server
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Server reading from store. Charts default to the display
// history window and websocket pushes are throttled to the refresh rate.
func New(cfg config.APIConfig, display config.DisplayConfig, policy latency.Policy, store state.Store, opts ...Option) *Server {
	s := &Server{
		cfg:         cfg,
		store:       store,
		policy:      policy,
		defaultDays: display.HistoryDays,
		throttle:    time.Duration(display.RefreshRateMS) * time.Millisecond,
		log:         zap.NewNop(),
		hub:         newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHostOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultDays < 1 {
		s.defaultDays = 30
	}

	store.OnSample(func(sample state.Sample) {
		s.hub.notify(sample.Monitor)
	})
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/monitors", s.handleMonitors)
	mux.HandleFunc("GET /api/monitors/{id}/latency", s.handleLatency)
	mux.HandleFunc("GET /ws/monitors/{id}/latency", s.handleWebsocket)
	return mux
}

// Start binds the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	lis, err := receiver.Listen(s.cfg.Bind, s.cfg.Port)
	if err != nil {
		return fmt.Errorf("chart api: %w", err)
	}
	s.listener = lis
	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.log.Error("chart api stopped", zap.Error(err))
		}
	}()

	s.log.Info("chart api listening", zap.String("addr", lis.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stop() {
	s.hub.closeAll()
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}

// Chart builds the chart of monitor over the last days.
func (s *Server) Chart(monitor string, days int) ChartJSON {
	return ChartJSON{
		Monitor: monitor,
		Days:    days,
		Chart:   latency.BuildChart(s.store.QueryDayPoints(monitor, days), s.policy),
	}
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	monitors := s.store.ListMonitors()
	now := time.Now()

	out := make([]MonitorJSON, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, MonitorJSON{
			ID:            m.ID,
			Status:        string(m.StatusAt(now)),
			SampleCount:   m.SampleCount,
			LastSampleAt:  m.LastSampleAt,
			LastLatencyMs: m.LastLatencyMs,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLatency(w http.ResponseWriter, r *http.Request) {
	monitor, days, ok := s.chartParams(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Chart(monitor, days))
}

// chartParams validates the monitor path value and days query parameter,
// writing the error response itself when they are invalid.
func (s *Server) chartParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	monitor := r.PathValue("id")
	if !s.knownMonitor(monitor) {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: fmt.Sprintf("unknown monitor %q", monitor)})
		return "", 0, false
	}

	days := s.defaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDays {
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: fmt.Sprintf("days must be an integer between 1 and %d", maxDays)})
			return "", 0, false
		}
		days = n
	}
	return monitor, days, true
}

func (s *Server) knownMonitor(id string) bool {
	for _, m := range s.store.ListMonitors() {
		if m.ID == id {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sameHostOrigin accepts requests without an Origin header and browser
// requests from the host serving the API.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
