package models

import (
	"encoding/json"
	"time"
)

// Platform identifies an external messaging platform.
type Platform string

const (
	PlatformGroupMe Platform = "groupme"
	PlatformSignal  Platform = "signal"
	PlatformTeams   Platform = "teams"
	PlatformSlack   Platform = "slack"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformGroupMe, PlatformSignal, PlatformTeams, PlatformSlack:
		return true
	}
	return false
}

// ChannelMapping links a channel to a group/conversation on an external
// platform. A mapping may be registered before it is linked to an event
// (EventID nil). ConversationRef is an opaque connection descriptor owned by
// the platform adapter; the core only stores and returns it.
type ChannelMapping struct {
	ID                int             `db:"id" json:"id"`
	EventID           *int            `db:"event_id" json:"event_id,omitempty"`
	ChannelID         *int            `db:"channel_id" json:"channel_id,omitempty"`
	Platform          Platform        `db:"platform" json:"platform"`
	ExternalGroupID   string          `db:"external_group_id" json:"external_group_id"`
	ExternalGroupName string          `db:"external_group_name" json:"external_group_name"`
	BotID             string          `db:"bot_id" json:"bot_id"`
	WebhookSecret     string          `db:"webhook_secret" json:"-"`
	ShareURL          *string         `db:"share_url" json:"share_url,omitempty"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	ConversationRef   json.RawMessage `db:"conversation_ref" json:"conversation_ref,omitempty"`
	TenantID          *string         `db:"tenant_id" json:"tenant_id,omitempty"`
	LastActivityAt    *time.Time      `db:"last_activity_at" json:"last_activity_at,omitempty"`
	InstalledByName   *string         `db:"installed_by_name" json:"installed_by_name,omitempty"`
	IsEmulator        bool            `db:"is_emulator" json:"is_emulator"`
	CreatedBy         string          `db:"created_by" json:"created_by"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	LastModifiedBy    *string         `db:"last_modified_by" json:"last_modified_by,omitempty"`
	LastModifiedAt    *time.Time      `db:"last_modified_at" json:"last_modified_at,omitempty"`
}
