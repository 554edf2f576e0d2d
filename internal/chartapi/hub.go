package chartapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be less than pongWait
	maxMessageSize = 512
)

// subscriber is one websocket connection following one monitor. dirty
// holds at most one pending update so bursts of samples coalesce.
type subscriber struct {
	monitor string
	dirty   chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

type hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscriber]struct{})}
}

func (h *hub) subscribe(monitor string) *subscriber {
	sub := &subscriber{
		monitor: monitor,
		dirty:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	if h.subs[monitor] == nil {
		h.subs[monitor] = make(map[*subscriber]struct{})
	}
	h.subs[monitor][sub] = struct{}{}
	return sub
}

func (h *hub) unsubscribe(sub *subscriber) {
	sub.close()

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sub.monitor], sub)
	if len(h.subs[sub.monitor]) == 0 {
		delete(h.subs, sub.monitor)
	}
}

// notify marks every subscriber of monitor dirty without blocking.
func (h *hub) notify(monitor string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[monitor] {
		select {
		case sub.dirty <- struct{}{}:
		default:
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, subs := range h.subs {
		for sub := range subs {
			sub.close()
		}
	}
}

func (h *hub) count(monitor string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[monitor])
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	monitor, days, ok := s.chartParams(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := s.hub.subscribe(monitor)
	defer s.hub.unsubscribe(sub)

	go s.readPump(conn, sub)
	s.writePump(conn, sub, days)
}

// readPump discards client messages and ends the subscription when the
// connection goes away.
func (s *Server) readPump(conn *websocket.Conn, sub *subscriber) {
	defer sub.close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error", zap.String("monitor", sub.monitor), zap.Error(err))
			}
			return
		}
	}
}

// writePump sends the chart on connect and again after new samples, at
// most once per throttle interval.
func (s *Server) writePump(conn *websocket.Conn, sub *subscriber, days int) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	push := func() bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(s.Chart(sub.monitor, days)); err != nil {
			s.log.Debug("websocket write failed", zap.String("monitor", sub.monitor), zap.Error(err))
			return false
		}
		return true
	}

	if !push() {
		return
	}
	last := time.Now()

	var delayed <-chan time.Time
	for {
		select {
		case <-sub.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case <-sub.dirty:
			if wait := s.throttle - time.Since(last); wait > 0 {
				if delayed == nil {
					delayed = time.After(wait)
				}
				continue
			}
			if !push() {
				return
			}
			last = time.Now()

		case <-delayed:
			delayed = nil
			if !push() {
				return
			}
			last = time.Now()

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
