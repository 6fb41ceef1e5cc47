// Package notify bridges the engine and the browser UI over a
// websocket. The engine is headless; the actual video elements live in
// the browser, which streams player state reports up and receives
// playback commands and state notifications back.
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"segment-annotator/internal/engine"
	"segment-annotator/internal/platform/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

// Event is one outbound message to the UI.
type Event struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// inbound is the envelope of messages from the UI.
type inbound struct {
	Type   string          `json:"type"`
	Report *StreamReport   `json:"report,omitempty"`
	Raw    json.RawMessage `json:"payload,omitempty"`
}

// Hub fans engine events out to every connected UI client and routes
// player reports back to the registered handler.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	clients  map[*client]struct{}
	onReport func(StreamReport)
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub builds an empty hub. Metrics may be nil.
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

// OnReport registers the handler for inbound player state reports.
func (h *Hub) OnReport(fn func(StreamReport)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReport = fn
}

// ClientCount returns the number of connected UI clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every connected client. A client whose
// send buffer is full is dropped; a stalled UI must not stall the
// engine.
func (h *Hub) Broadcast(eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload, Timestamp: time.Now().UnixMilli()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.log.Warn("dropping slow notify client")
			go h.remove(c)
		}
	}
}

// ServeWS upgrades the request and runs the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{conn: conn, send: make(chan Event, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info("notify client connected", slog.Int("clients", count))
	if h.metrics != nil {
		h.metrics.SetNotifyClients(count)
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	if !present {
		return
	}
	close(c.send)
	c.conn.Close()
	h.log.Info("notify client disconnected", slog.Int("clients", count))
	if h.metrics != nil {
		h.metrics.SetNotifyClients(count)
	}
}

// readPump consumes inbound messages until the connection drops.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("notify client read failed", slog.String("error", err.Error()))
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Warn("malformed client message", slog.String("error", err.Error()))
			continue
		}
		if msg.Type == "stream_report" && msg.Report != nil {
			h.mu.RLock()
			fn := h.onReport
			h.mu.RUnlock()
			if fn != nil {
				fn(*msg.Report)
			}
		}
	}
}

// writePump drains the client's send channel onto the wire and keeps the
// connection alive with pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Engine notification fan-out. Hub implements engine.Notifier.

type selectionPayload struct {
	Sample  *engine.Sample  `json:"sample,omitempty"`
	Segment *engine.Segment `json:"segment,omitempty"`
}

type regionPayload struct {
	Region     engine.Region `json:"region"`
	Extent     engine.Extent `json:"extent"`
	StartLabel string        `json:"start_label"`
	EndLabel   string        `json:"end_label"`
}

// SelectionChanged publishes the active sample and segment.
func (h *Hub) SelectionChanged(sample *engine.Sample, segment *engine.Segment) {
	h.Broadcast("selection_changed", selectionPayload{Sample: sample, Segment: segment})
}

// RegionChanged publishes the current region with its rendered extent
// and marker labels.
func (h *Hub) RegionChanged(region engine.Region, extent engine.Extent, startLabel, endLabel string) {
	h.Broadcast("region_changed", regionPayload{
		Region:     region,
		Extent:     extent,
		StartLabel: startLabel,
		EndLabel:   endLabel,
	})
}

// PlaybackStateChanged publishes the group-wide playing flag.
func (h *Hub) PlaybackStateChanged(playing bool) {
	h.Broadcast("playback_state", map[string]bool{"playing": playing})
}
