package ws

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bridge-service/internal/models"
	"bridge-service/internal/observability"
)

// Hub fans channel and message lifecycle events out to viewers of an event.
// Delivery is best-effort push; viewers reconcile with a pull refresh on
// reconnect.
type Hub struct {
	eventRooms map[int]map[*websocket.Conn]bool
	connInfo   map[int]map[*websocket.Conn]ConnInfo
	// gorilla allows only one concurrent writer per connection, so every
	// write goes through the connection's own lock.
	writeLocks map[*websocket.Conn]*sync.Mutex
	mu         sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		eventRooms: make(map[int]map[*websocket.Conn]bool),
		connInfo:   make(map[int]map[*websocket.Conn]ConnInfo),
		writeLocks: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// AddClient registers a websocket connection to an event room.
func (h *Hub) AddClient(eventID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.eventRooms[eventID]; !ok {
		h.eventRooms[eventID] = make(map[*websocket.Conn]bool)
	}
	h.eventRooms[eventID][conn] = true
	if _, ok := h.connInfo[eventID]; !ok {
		h.connInfo[eventID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[eventID][conn] = info
	if _, ok := h.writeLocks[conn]; !ok {
		h.writeLocks[conn] = &sync.Mutex{}
	}
}

// RemoveClient removes a websocket connection from an event room.
func (h *Hub) RemoveClient(eventID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.eventRooms[eventID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.eventRooms, eventID)
		}
	}
	if infos, ok := h.connInfo[eventID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo, eventID)
		}
	}
	for _, conns := range h.eventRooms {
		if conns[conn] {
			return
		}
	}
	delete(h.writeLocks, conn)
}

// BroadcastMessageReceived pushes a new message to event viewers.
func (h *Hub) BroadcastMessageReceived(eventID int, msg models.ChatMessage) {
	h.broadcast(eventID, models.StreamEvent{Type: models.StreamMessageReceived, Message: &msg})
}

// BroadcastChannelCreated pushes a channel creation.
func (h *Hub) BroadcastChannelCreated(eventID int, ch models.Channel) {
	h.broadcast(eventID, models.StreamEvent{Type: models.StreamChannelCreated, Channel: &ch})
}

// BroadcastChannelArchived pushes a channel archival.
func (h *Hub) BroadcastChannelArchived(eventID int, ch models.Channel) {
	h.broadcast(eventID, models.StreamEvent{Type: models.StreamChannelArchived, Channel: &ch})
}

// BroadcastChannelRestored pushes a channel restore.
func (h *Hub) BroadcastChannelRestored(eventID int, ch models.Channel) {
	h.broadcast(eventID, models.StreamEvent{Type: models.StreamChannelRestored, Channel: &ch})
}

// BroadcastChannelDeleted pushes a permanent channel deletion.
func (h *Hub) BroadcastChannelDeleted(eventID int, ch models.Channel) {
	h.broadcast(eventID, models.StreamEvent{Type: models.StreamChannelDeleted, Channel: &ch})
}

// BroadcastExternalConnected pushes a new external mapping.
func (h *Hub) BroadcastExternalConnected(eventID int, mapping models.ChannelMapping) {
	h.broadcast(eventID, models.StreamEvent{Type: models.StreamExternalConnected, Mapping: &mapping})
}

// BroadcastExternalDisconnected pushes a mapping disconnect.
func (h *Hub) BroadcastExternalDisconnected(eventID int, mapping models.ChannelMapping) {
	h.broadcast(eventID, models.StreamEvent{Type: models.StreamExternalDisconnected, Mapping: &mapping})
}

func (h *Hub) broadcast(eventID int, event models.StreamEvent) {
	type target struct {
		conn *websocket.Conn
		mu   *sync.Mutex
	}
	h.mu.RLock()
	targets := make([]target, 0, len(h.eventRooms[eventID]))
	for conn := range h.eventRooms[eventID] {
		targets = append(targets, target{conn: conn, mu: h.writeLocks[conn]})
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, t := range targets {
		t.mu.Lock()
		err := t.conn.WriteMessage(websocket.TextMessage, payload)
		t.mu.Unlock()
		if err != nil {
			log.Printf("websocket write error: %v", err)
			t.conn.Close()
			h.publishWSError(eventID, t.conn, err)
			h.RemoveClient(eventID, t.conn)
		}
	}
	observability.IncWSEvent(string(event.Type))
}

func (h *Hub) publishWSError(eventID int, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(eventID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"room":        "event-" + strconv.Itoa(eventID),
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"viewer": info.Viewer,
			"ip":     info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.events", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}

func (h *Hub) getConnInfo(eventID int, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.connInfo[eventID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
