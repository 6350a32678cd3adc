package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bridge-service/internal/models"
	"bridge-service/internal/services"
	"bridge-service/internal/telemetry"
)

// BridgeHandler manages external platform mapping endpoints.
type BridgeHandler struct {
	bridgeSvc *services.BridgeService
	audit     *telemetry.AuditEmitter
}

// NewBridgeHandler constructs a BridgeHandler.
func NewBridgeHandler(bridgeSvc *services.BridgeService, audit *telemetry.AuditEmitter) *BridgeHandler {
	return &BridgeHandler{bridgeSvc: bridgeSvc, audit: audit}
}

// CreateExternal handles POST /events/:event_id/external.
func (h *BridgeHandler) CreateExternal(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	var req struct {
		Platform  string `json:"platform" binding:"required"`
		GroupName string `json:"group_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := models.Platform(req.Platform)
	if !p.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported platform"})
		return
	}

	mapping, err := h.bridgeSvc.CreateExternalChannel(c.Request.Context(), eventID, p, req.GroupName, callerIdentity(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "External channel connected")
	c.JSON(http.StatusCreated, mapping)
}

// ListMappings handles GET /events/:event_id/external.
func (h *BridgeHandler) ListMappings(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	mappings, err := h.bridgeSvc.ListChannelMappings(c.Request.Context(), eventID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings})
}

// Deactivate handles DELETE /external/:mapping_id. With ?archive_group=true
// the platform-side group is archived best effort as well.
func (h *BridgeHandler) Deactivate(c *gin.Context) {
	mappingID, err := strconv.Atoi(c.Param("mapping_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mapping id"})
		return
	}

	archiveGroup := c.Query("archive_group") == "true"

	mapping, err := h.bridgeSvc.DeactivateChannel(c.Request.Context(), mappingID, archiveGroup, callerIdentity(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "External channel disconnected")
	c.JSON(http.StatusOK, mapping)
}

// CleanupEmulators handles POST /events/:event_id/external/cleanup-emulators.
func (h *BridgeHandler) CleanupEmulators(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	count, err := h.bridgeSvc.CleanupEmulatorConnections(c.Request.Context(), eventID, callerIdentity(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Emulator connections cleaned up")
	c.JSON(http.StatusOK, gin.H{"deactivated": count})
}

func (h *BridgeHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), callerIdentity(c).Name)
}
