package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bridge-service/internal/models"
	"bridge-service/internal/services"
)

const webhookProcessTimeout = 30 * time.Second

// WebhookHandler receives inbound platform webhooks, normalizes the
// platform-specific payloads and hands them to the bridge. Platforms retry
// slow callbacks aggressively, so the handler acknowledges first and
// processes on a detached goroutine.
type WebhookHandler struct {
	bridgeSvc *services.BridgeService
	log       *zap.SugaredLogger
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(bridgeSvc *services.BridgeService, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{bridgeSvc: bridgeSvc, log: log}
}

// Health handles GET /webhooks/health.
func (h *WebhookHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Receive handles POST /webhooks/:platform/:mapping_id.
func (h *WebhookHandler) Receive(c *gin.Context) {
	p := models.Platform(c.Param("platform"))
	if !p.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown platform"})
		return
	}
	mappingID, err := strconv.Atoi(c.Param("mapping_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mapping id"})
		return
	}

	var payload services.InboundMessage
	switch p {
	case models.PlatformGroupMe:
		payload, err = parseGroupMePayload(c)
	case models.PlatformTeams:
		payload, err = parseTeamsPayload(c)
	case models.PlatformSlack:
		var challenge string
		payload, challenge, err = parseSlackPayload(c)
		if err == nil && challenge != "" {
			c.JSON(http.StatusOK, gin.H{"challenge": challenge})
			return
		}
	case models.PlatformSignal:
		payload, err = parseSignalPayload(c)
	}
	if err != nil {
		h.log.Warnw("webhook payload rejected", "platform", p, "mapping_id", mappingID, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	// Ack before processing; the platform only needs to know delivery
	// landed.
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})

	secret := c.Query("secret")
	h.processDetached(p, func(ctx context.Context) error {
		_, err := h.bridgeSvc.ProcessInboundWebhook(ctx, mappingID, secret, payload)
		return err
	})
}

// processDetached runs fn off the request goroutine. The gin recovery
// middleware does not cover goroutines spawned from handlers, and a panic
// here would take the whole process down.
func (h *WebhookHandler) processDetached(p models.Platform, fn func(ctx context.Context) error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.log.Errorw("webhook processing panicked", "platform", p, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			h.log.Errorw("webhook processing failed", "platform", p, "error", err)
		}
	}()
}

// TeamsActivity handles POST /webhooks/teams, the Bot Framework messaging
// endpoint. All Teams traffic for the bot lands here: conversationUpdate
// activities that add the bot register the conversation as a mapping, and
// message activities are routed to the mapping by conversation id.
func (h *WebhookHandler) TeamsActivity(c *gin.Context) {
	var act botActivity
	if err := c.ShouldBindJSON(&act); err != nil {
		h.log.Warnw("teams activity rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed activity"})
		return
	}

	switch act.Type {
	case "conversationUpdate":
		if !act.addsBot() {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		install := services.Installation{
			ConversationID:   act.Conversation.ID,
			ConversationName: act.Conversation.Name,
			ConversationRef:  act.conversationRef(),
			BotID:            act.Recipient.ID,
			TenantID:         act.tenantID(),
			InstalledByName:  act.From.Name,
			IsEmulator:       act.isEmulator(),
		}
		if _, err := h.bridgeSvc.RegisterInstallation(c.Request.Context(), models.PlatformTeams, install); err != nil {
			h.log.Errorw("teams installation failed", "conversation_id", act.Conversation.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "installation failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	case "message":
		payload := act.inboundMessage()
		conversationID := act.Conversation.ID
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
		h.processDetached(models.PlatformTeams, func(ctx context.Context) error {
			_, err := h.bridgeSvc.ProcessInboundByGroup(ctx, models.PlatformTeams, conversationID, payload)
			return err
		})
	default:
		c.JSON(http.StatusOK, gin.H{})
	}
}

// botActivity is the subset of a Bot Framework activity the bridge reads.
type botActivity struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Text       string `json:"text"`
	ChannelID  string `json:"channelId"`
	ServiceURL string `json:"serviceUrl"`
	From       struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"from"`
	Recipient struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"recipient"`
	Conversation struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		TenantID string `json:"tenantId"`
	} `json:"conversation"`
	MembersAdded []struct {
		ID string `json:"id"`
	} `json:"membersAdded"`
}

func (a botActivity) addsBot() bool {
	for _, m := range a.MembersAdded {
		if m.ID == a.Recipient.ID {
			return true
		}
	}
	return false
}

// isEmulator flags Bot Framework Emulator installs so the cleanup endpoint
// can sweep them later.
func (a botActivity) isEmulator() bool {
	return a.ChannelID == "emulator" ||
		strings.Contains(a.ServiceURL, "localhost") ||
		strings.Contains(a.ServiceURL, "127.0.0.1")
}

func (a botActivity) tenantID() *string {
	if a.Conversation.TenantID == "" {
		return nil
	}
	t := a.Conversation.TenantID
	return &t
}

// conversationRef keeps the slice of the activity needed to address a
// proactive send back to the conversation.
func (a botActivity) conversationRef() json.RawMessage {
	ref, _ := json.Marshal(map[string]interface{}{
		"conversation": map[string]string{"id": a.Conversation.ID},
		"serviceUrl":   a.ServiceURL,
		"channelId":    a.ChannelID,
		"bot":          map[string]string{"id": a.Recipient.ID, "name": a.Recipient.Name},
	})
	return ref
}

func (a botActivity) inboundMessage() services.InboundMessage {
	senderType := "user"
	if a.From.Role == "bot" || a.From.ID == a.Recipient.ID {
		senderType = "bot"
	}
	return services.InboundMessage{
		ExternalGroupID:   a.Conversation.ID,
		ExternalMessageID: a.ID,
		SenderName:        a.From.Name,
		SenderType:        senderType,
		Text:              a.Text,
	}
}

func parseGroupMePayload(c *gin.Context) (services.InboundMessage, error) {
	var body struct {
		GroupID    string `json:"group_id"`
		ID         string `json:"id"`
		Name       string `json:"name"`
		SenderType string `json:"sender_type"`
		Text       string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		return services.InboundMessage{}, err
	}
	return services.InboundMessage{
		ExternalGroupID:   body.GroupID,
		ExternalMessageID: body.ID,
		SenderName:        body.Name,
		SenderType:        body.SenderType,
		Text:              body.Text,
	}, nil
}

func parseTeamsPayload(c *gin.Context) (services.InboundMessage, error) {
	var body struct {
		ID   string `json:"id"`
		Text string `json:"text"`
		From struct {
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"from"`
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		return services.InboundMessage{}, err
	}
	senderType := "user"
	if body.From.Role == "bot" {
		senderType = "bot"
	}
	return services.InboundMessage{
		ExternalGroupID:   body.Conversation.ID,
		ExternalMessageID: body.ID,
		SenderName:        body.From.Name,
		SenderType:        senderType,
		Text:              body.Text,
	}, nil
}

// parseSlackPayload also surfaces the url_verification challenge Slack sends
// when a request URL is first registered.
func parseSlackPayload(c *gin.Context) (services.InboundMessage, string, error) {
	var body struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Event     struct {
			Channel  string `json:"channel"`
			TS       string `json:"ts"`
			Text     string `json:"text"`
			Username string `json:"username"`
			User     string `json:"user"`
			BotID    string `json:"bot_id"`
		} `json:"event"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		return services.InboundMessage{}, "", err
	}
	if body.Type == "url_verification" {
		return services.InboundMessage{}, body.Challenge, nil
	}
	senderType := "user"
	if body.Event.BotID != "" {
		senderType = "bot"
	}
	sender := body.Event.Username
	if sender == "" {
		sender = body.Event.User
	}
	return services.InboundMessage{
		ExternalGroupID:   body.Event.Channel,
		ExternalMessageID: body.Event.TS,
		SenderName:        sender,
		SenderType:        senderType,
		Text:              body.Event.Text,
	}, "", nil
}

func parseSignalPayload(c *gin.Context) (services.InboundMessage, error) {
	var body struct {
		Envelope struct {
			Source      string `json:"source"`
			SourceName  string `json:"sourceName"`
			Timestamp   int64  `json:"timestamp"`
			DataMessage struct {
				Message   string `json:"message"`
				GroupInfo struct {
					GroupID string `json:"groupId"`
				} `json:"groupInfo"`
			} `json:"dataMessage"`
		} `json:"envelope"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		return services.InboundMessage{}, err
	}
	sender := body.Envelope.SourceName
	if sender == "" {
		sender = body.Envelope.Source
	}
	return services.InboundMessage{
		ExternalGroupID:   body.Envelope.DataMessage.GroupInfo.GroupID,
		ExternalMessageID: strconv.FormatInt(body.Envelope.Timestamp, 10),
		SenderName:        sender,
		SenderType:        "user",
		Text:              body.Envelope.DataMessage.Message,
	}, nil
}
