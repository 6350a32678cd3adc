package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bridge-service/internal/models"
	"bridge-service/internal/repositories"
	"bridge-service/internal/services"
	"bridge-service/internal/telemetry"
)

// ChannelHandler manages channel lifecycle endpoints.
type ChannelHandler struct {
	channelSvc *services.ChannelService
	bridgeSvc  *services.BridgeService
	audit      *telemetry.AuditEmitter
}

// NewChannelHandler constructs a ChannelHandler.
func NewChannelHandler(channelSvc *services.ChannelService, bridgeSvc *services.BridgeService, audit *telemetry.AuditEmitter) *ChannelHandler {
	return &ChannelHandler{channelSvc: channelSvc, bridgeSvc: bridgeSvc, audit: audit}
}

// ListChannels handles GET /events/:event_id/channels.
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	channels, err := h.channelSvc.ListActiveChannels(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channels"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// ListVisibleChannels handles GET /events/:event_id/channels/visible.
// Position ids the viewer holds arrive as repeated position_id query params.
func (h *ChannelHandler) ListVisibleChannels(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	positionIDs := make([]int, 0)
	for _, raw := range c.QueryArray("position_id") {
		id, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid position id"})
			return
		}
		positionIDs = append(positionIDs, id)
	}

	channels, err := h.channelSvc.ListVisibleChannels(c.Request.Context(), eventID, positionIDs, callerIdentity(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channels"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// CreateChannel handles POST /events/:event_id/channels.
func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	var req struct {
		Name        string  `json:"name" binding:"required"`
		Description *string `json:"description"`
		ChannelType string  `json:"channel_type"`
		PositionID  *int    `json:"position_id"`
		IconName    *string `json:"icon_name"`
		Color       *string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, err := h.channelSvc.CreateChannel(c.Request.Context(), services.CreateChannelRequest{
		EventID:     eventID,
		Name:        req.Name,
		Description: req.Description,
		ChannelType: models.ChannelType(req.ChannelType),
		PositionID:  req.PositionID,
		IconName:    req.IconName,
		Color:       req.Color,
	}, callerIdentity(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Channel created")
	c.JSON(http.StatusCreated, ch)
}

// CreateDefaultChannels handles POST /events/:event_id/channels/defaults.
func (h *ChannelHandler) CreateDefaultChannels(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	created, err := h.channelSvc.CreateDefaultChannels(c.Request.Context(), eventID, callerIdentity(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Default channels bootstrapped")
	c.JSON(http.StatusCreated, gin.H{"channels": created})
}

// CreatePositionChannels handles POST /events/:event_id/channels/positions.
func (h *ChannelHandler) CreatePositionChannels(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	created, err := h.channelSvc.CreatePositionChannels(c.Request.Context(), eventID, callerIdentity(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Position channels bootstrapped")
	c.JSON(http.StatusCreated, gin.H{"channels": created})
}

// UpdateChannel handles PATCH /channels/:channel_id with patch semantics.
func (h *ChannelHandler) UpdateChannel(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IconName    *string `json:"icon_name"`
		Color       *string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, err := h.channelSvc.UpdateChannel(c.Request.Context(), channelID, repositories.ChannelUpdate{
		Name:        req.Name,
		Description: req.Description,
		IconName:    req.IconName,
		Color:       req.Color,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Channel updated")
	c.JSON(http.StatusOK, ch)
}

// ReorderChannels handles PUT /events/:event_id/channels/order.
func (h *ChannelHandler) ReorderChannels(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	var req struct {
		ChannelIDs []int `json:"channel_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.channelSvc.ReorderChannels(c.Request.Context(), eventID, req.ChannelIDs); err != nil {
		writeServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Channels reordered")
	c.Status(http.StatusNoContent)
}

// ArchiveChannel handles POST /channels/:channel_id/archive. A business
// refusal (default thread, announcements, external) is 409, not an error.
func (h *ChannelHandler) ArchiveChannel(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	archived, err := h.channelSvc.ArchiveChannel(c.Request.Context(), channelID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !archived {
		h.emitAudit(c, "WARN", "Channel archive refused")
		c.JSON(http.StatusConflict, gin.H{"archived": false, "error": "channel cannot be archived"})
		return
	}

	h.emitAudit(c, "INFO", "Channel archived")
	c.JSON(http.StatusOK, gin.H{"archived": true})
}

// RestoreChannel handles POST /channels/:channel_id/restore.
func (h *ChannelHandler) RestoreChannel(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	restored, err := h.channelSvc.RestoreChannel(c.Request.Context(), channelID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !restored {
		c.JSON(http.StatusConflict, gin.H{"restored": false, "error": "channel is not archived"})
		return
	}

	h.emitAudit(c, "INFO", "Channel restored")
	c.JSON(http.StatusOK, gin.H{"restored": true})
}

// DeleteChannel handles DELETE /channels/:channel_id (purge-marker delete).
func (h *ChannelHandler) DeleteChannel(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	deleted, err := h.channelSvc.PermanentlyDeleteChannel(c.Request.Context(), channelID, callerIdentity(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !deleted {
		h.emitAudit(c, "WARN", "Channel delete refused")
		c.JSON(http.StatusConflict, gin.H{"deleted": false, "error": "channel cannot be deleted"})
		return
	}

	h.emitAudit(c, "INFO", "Channel permanently deleted")
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// PostMessage handles POST /channels/:channel_id/messages. The local save
// always wins; failed external deliveries come back as non-blocking notices.
func (h *ChannelHandler) PostMessage(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := callerIdentity(c)
	msg, err := h.channelSvc.PostMessage(c.Request.Context(), channelID, req.Message, identity)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	ch, err := h.channelSvc.GetChannel(c.Request.Context(), channelID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	outcomes, err := h.bridgeSvc.BroadcastToExternalChannels(c.Request.Context(), ch.EventID, identity.Name, req.Message)
	if err != nil {
		// The message is saved either way; a listing failure only means
		// fan-out could not start.
		outcomes = nil
	}

	notices := make([]string, 0)
	for _, outcome := range outcomes {
		if !outcome.Succeeded {
			notices = append(notices, "message may not have reached "+string(outcome.Platform)+" group "+outcome.GroupName)
		}
	}

	h.emitAudit(c, "INFO", "Message posted")
	c.JSON(http.StatusCreated, gin.H{"message": msg, "delivery_notices": notices})
}

// ArchiveMessages handles POST /channels/:channel_id/messages/archive.
// Without older_than_days it archives everything on the channel.
func (h *ChannelHandler) ArchiveMessages(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	var (
		count int64
		err   error
	)
	if raw := c.Query("older_than_days"); raw != "" {
		days, convErr := strconv.Atoi(raw)
		if convErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid older_than_days"})
			return
		}
		count, err = h.channelSvc.ArchiveMessagesOlderThan(c.Request.Context(), channelID, days)
	} else {
		count, err = h.channelSvc.ArchiveAllMessages(c.Request.Context(), channelID)
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Messages archived")
	c.JSON(http.StatusOK, gin.H{"archived": count})
}

func (h *ChannelHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), callerIdentity(c).Name)
}

func parseChannelID(c *gin.Context) (int, bool) {
	channelID, err := strconv.Atoi(c.Param("channel_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return 0, false
	}
	return channelID, true
}
