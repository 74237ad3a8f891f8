// Package broadcast is the realtime distribution layer: it fans domain events
// out to every connected observer session, scoped by room subscription, with
// full-snapshot delivery on connect and coalesced delivery for
// high-frequency price signals.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"factionsim/internal/event"
	"factionsim/internal/model"
	"factionsim/internal/protocol"
)

// StateSource provides the world view the hub serves to observers.
type StateSource interface {
	Snapshot() model.WorldSnapshot
	Tick() uint64
}

// Config holds hub tuning.
type Config struct {
	WriteTimeout time.Duration // per-frame write deadline
	PriceWindow  time.Duration // coalescing window for price ticks
	QueueInitial int           // per-session outbound queue initial capacity
	QueueMax     int           // per-session outbound queue ceiling
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		PriceWindow:  250 * time.Millisecond,
		QueueInitial: 64,
		QueueMax:     4096,
	}
}

// Stats is a point-in-time view of hub counters.
type Stats struct {
	Sessions        int   `json:"sessions"`
	EventsPublished int64 `json:"events_published"`
	FramesSent      int64 `json:"frames_sent"`
	SessionsDropped int64 `json:"sessions_dropped"`
}

// Hub manages observer sessions and event fan-out.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	source   StateSource
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session

	// pubMu serializes publishes so every session observes events in the
	// order the authoritative loop produced them.
	pubMu sync.Mutex
	seq   atomic.Uint64

	prices *Coalescer[string, float64]

	published atomic.Int64
	sent      atomic.Int64
	dropped   atomic.Int64
}

// New creates a hub serving snapshots and events from the given source.
func New(cfg Config, source StateSource, clock Clock, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		cfg:    cfg,
		logger: logger,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Observers are read-only; no cross-origin state to protect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[uuid.UUID]*session),
	}
	h.prices = NewCoalescer[string, float64](cfg.PriceWindow, clock, nil, h.flushPrices)
	return h
}

// ServeHTTP upgrades the request and runs the session until disconnect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := newSession(conn, h.cfg.QueueInitial, h.cfg.QueueMax, h.logger)
	s.join(protocol.RoomWorld) // default broadcast scope

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.logger.Info("observer connected", "session", s.id.String())

	go s.writeLoop(h.cfg.WriteTimeout)

	// Initial full snapshot: everything a fresh observer needs, zero
	// additional requests.
	h.sendSnapshot(s)

	h.readLoop(s)
	h.remove(s, "disconnect")
}

// Publish fans one event out to every session subscribed to the room.
func (h *Hub) Publish(room string, ev event.Event) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	seq := h.seq.Add(1)
	data, err := event.Encode(seq, time.Now(), ev)
	if err != nil {
		h.logger.Error("encode event", "type", ev.Name(), "error", err)
		return
	}
	h.published.Add(1)

	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.inRoom(room) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if s.out.Push(data) {
			h.sent.Add(1)
			continue
		}
		// Slow consumer: dropping the session beats blocking the loop.
		go h.remove(s, "outbound queue overflow")
	}
}

// OfferPrice records one price tick for coalesced delivery. Keys are
// "factionID/resource"; the last value per key in a window wins.
func (h *Hub) OfferPrice(key string, price float64) {
	h.prices.Offer(key, price)
}

// SessionCount returns the number of connected observers.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Stats returns current hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Sessions:        h.SessionCount(),
		EventsPublished: h.published.Load(),
		FramesSent:      h.sent.Load(),
		SessionsDropped: h.dropped.Load(),
	}
}

// Close drops every session and flushes the price window.
func (h *Hub) Close() {
	h.prices.Close()

	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[uuid.UUID]*session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// readLoop consumes client messages until the socket drops.
func (h *Hub) readLoop(s *session) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			s.logger.Warn("rejected client message", "error", err)
			h.sendError(s, err)
			continue
		}

		switch msg.Type {
		case protocol.TypeSyncRequest:
			h.sendSnapshot(s)
		case protocol.TypeRoomJoin:
			s.join(msg.Room)
			s.logger.Debug("joined room", "room", msg.Room)
		case protocol.TypeRoomLeave:
			s.leave(msg.Room)
			s.logger.Debug("left room", "room", msg.Room)
		}
	}
}

// sendSnapshot enqueues a full sync.state frame for one session.
func (h *Hub) sendSnapshot(s *session) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	seq := h.seq.Add(1)
	data, err := event.Encode(seq, time.Now(), event.SyncState{Snapshot: h.source.Snapshot()})
	if err != nil {
		h.logger.Error("encode snapshot", "error", err)
		return
	}
	if s.out.Push(data) {
		h.sent.Add(1)
	} else {
		go h.remove(s, "outbound queue overflow")
	}
}

func (h *Hub) sendError(s *session, cause error) {
	frame, err := json.Marshal(map[string]string{
		"type":  "error",
		"error": cause.Error(),
	})
	if err != nil {
		return
	}
	s.out.Push(frame)
}

func (h *Hub) flushPrices(batch map[string]float64) {
	h.Publish(protocol.RoomMarket, event.MarketPriceBatch{
		Tick:   h.source.Tick(),
		Prices: batch,
	})
}

func (h *Hub) remove(s *session, reason string) {
	h.mu.Lock()
	_, present := h.sessions[s.id]
	delete(h.sessions, s.id)
	h.mu.Unlock()

	s.close()
	if present {
		h.dropped.Add(1)
		h.logger.Info("observer removed", "session", s.id.String(), "reason", reason)
	}
}
