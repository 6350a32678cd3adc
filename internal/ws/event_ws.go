package ws

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"bridge-service/internal/middleware"
	"bridge-service/internal/observability"
	"bridge-service/internal/repositories"
)

// EventWebSocketHandler upgrades viewer connections onto an event room.
type EventWebSocketHandler struct {
	hub       *Hub
	eventRepo repositories.EventRepository
	verifier  middleware.TokenVerifier
}

// NewEventWebSocketHandler constructs an EventWebSocketHandler.
func NewEventWebSocketHandler(hub *Hub, eventRepo repositories.EventRepository, verifier middleware.TokenVerifier) *EventWebSocketHandler {
	return &EventWebSocketHandler{hub: hub, eventRepo: eventRepo, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the viewer on the event room.
func (h *EventWebSocketHandler) Handle(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	ctx, span := otel.Tracer("bridge-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	viewer, err := middleware.IdentityFromBearer(token, h.verifier)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if _, err := h.eventRepo.GetEvent(c.Request.Context(), eventID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		Viewer:      viewer.Name,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(eventID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.events", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"room":    "event-" + strconv.Itoa(eventID),
				"event":   "ws_connect",
				"conn_id": info.ConnID,
			},
			"identity": map[string]interface{}{
				"viewer": info.Viewer,
				"ip":     info.IP,
			},
		},
	}, observability.BuildHeaders(requestID, traceID))

	// Drain the connection until it closes; viewers only receive.
	go func() {
		defer func() {
			h.hub.RemoveClient(eventID, conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
				}
				return
			}
		}
	}()
}
