package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"sovereign/core/events"
	"sovereign/core/types"
	"sovereign/observability"
)

type typedEvent interface {
	Event() *types.Event
}

type subscriber struct {
	sovereignID string
	ch          chan *types.Event
}

// Hub fans committed events out to websocket subscribers and metrics. It
// never blocks the engine: a subscriber whose buffer is full misses events.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	buffer  int
	metrics *observability.SovereignMetrics
	logger  *slog.Logger
}

// NewHub builds a hub with the given per-subscriber buffer.
func NewHub(buffer int, metrics *observability.SovereignMetrics, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[*subscriber]struct{}), buffer: buffer, metrics: metrics, logger: logger}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	var committed *types.Event
	switch e := evt.(type) {
	case events.Envelope:
		committed = e.Event
	case typedEvent:
		committed = e.Event()
	}
	if committed == nil {
		return
	}
	h.metrics.RecordEvent(committed.Type)
	if committed.Type == events.TypeSovereignTrade {
		if amount, ok := new(big.Int).SetString(committed.Attributes["baseAmount"], 10); ok {
			h.metrics.RecordVolume(committed.Attributes["sovereign"], committed.Attributes["side"], amount)
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.sovereignID != "" && committed.Attributes["sovereign"] != sub.sovereignID {
			continue
		}
		select {
		case sub.ch <- committed:
		default:
			h.logger.Warn("event stream subscriber lagging", "sovereign", sub.sovereignID, "type", committed.Type)
		}
	}
}

// Subscribe registers a subscriber. An empty sovereignID receives every event.
func (h *Hub) Subscribe(sovereignID string) (<-chan *types.Event, func()) {
	sub := &subscriber{sovereignID: sovereignID, ch: make(chan *types.Event, h.buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberOpened()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			h.metrics.SubscriberClosed()
		})
	}
}

// Subscribers reports the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type streamMessage struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sovereignID := strings.TrimSpace(r.URL.Query().Get("sovereign"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedOrigins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := s.hub.Subscribe(sovereignID)
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan *types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			data, err := json.Marshal(streamMessage{Type: evt.Type, Attributes: evt.Attributes})
			if err != nil {
				return err
			}
			writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout())
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (s *Server) writeTimeout() time.Duration {
	if s.cfg.StreamWriteTimeout > 0 {
		return s.cfg.StreamWriteTimeout
	}
	return 10 * time.Second
}
