package models

import "time"

// ChatMessage belongs to exactly one channel. Messages ingested over a bridge
// carry the external message id and platform used as the dedup key.
type ChatMessage struct {
	ID                int       `db:"id" json:"id"`
	ChannelID         int       `db:"channel_id" json:"channel_id"`
	Message           string    `db:"message" json:"message"`
	SenderDisplayName string    `db:"sender_display_name" json:"sender_display_name"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	ExternalMessageID *string   `db:"external_message_id" json:"external_message_id,omitempty"`
	ExternalPlatform  *Platform `db:"external_platform" json:"external_platform,omitempty"`
	CreatedBy         string    `db:"created_by" json:"created_by"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// StreamEventType names a realtime lifecycle event pushed to viewers.
type StreamEventType string

const (
	StreamMessageReceived      StreamEventType = "message.received"
	StreamChannelCreated       StreamEventType = "channel.created"
	StreamChannelArchived      StreamEventType = "channel.archived"
	StreamChannelRestored      StreamEventType = "channel.restored"
	StreamChannelDeleted       StreamEventType = "channel.deleted"
	StreamExternalConnected    StreamEventType = "external.connected"
	StreamExternalDisconnected StreamEventType = "external.disconnected"
)

// StreamEvent is the envelope pushed over event websocket connections.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Message *ChatMessage    `json:"message,omitempty"`
	Channel *Channel        `json:"channel,omitempty"`
	Mapping *ChannelMapping `json:"mapping,omitempty"`
}
