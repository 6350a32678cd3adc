package models

import "time"

// ChannelType classifies a channel within an event.
type ChannelType string

const (
	ChannelTypeInternal      ChannelType = "internal"
	ChannelTypeAnnouncements ChannelType = "announcements"
	ChannelTypeExternal      ChannelType = "external"
	ChannelTypePosition      ChannelType = "position"
	ChannelTypeCustom        ChannelType = "custom"
)

// Lifecycle is the tagged soft-delete state of a channel.
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleArchived Lifecycle = "archived"
	LifecyclePurged   Lifecycle = "purged"
)

// Channel is a named communication stream scoped to one event.
type Channel struct {
	ID                   int         `db:"id" json:"id"`
	EventID              int         `db:"event_id" json:"event_id"`
	Name                 string      `db:"name" json:"name"`
	Description          *string     `db:"description" json:"description,omitempty"`
	ChannelType          ChannelType `db:"channel_type" json:"channel_type"`
	DisplayOrder         int         `db:"display_order" json:"display_order"`
	Lifecycle            Lifecycle   `db:"lifecycle" json:"lifecycle"`
	IsDefaultEventThread bool        `db:"is_default_event_thread" json:"is_default_event_thread"`
	PositionID           *int        `db:"position_id" json:"position_id,omitempty"`
	ExternalMappingID    *int        `db:"external_mapping_id" json:"external_mapping_id,omitempty"`
	IconName             *string     `db:"icon_name" json:"icon_name,omitempty"`
	Color                *string     `db:"color" json:"color,omitempty"`
	CreatedBy            string      `db:"created_by" json:"created_by"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
}

// IsActive reports whether the channel is in the active lifecycle state.
func (c Channel) IsActive() bool {
	return c.Lifecycle == LifecycleActive
}

// ChannelSummary is a channel annotated with message aggregates for listings.
type ChannelSummary struct {
	Channel
	MessageCount      int        `db:"message_count" json:"message_count"`
	LastMessageSender *string    `db:"last_message_sender" json:"last_message_sender,omitempty"`
	LastMessageAt     *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
}

// Position is an organizational role that channel visibility can be tied to.
type Position struct {
	ID        int     `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	IconName  *string `db:"icon_name" json:"icon_name,omitempty"`
	Color     *string `db:"color" json:"color,omitempty"`
	SortOrder int     `db:"sort_order" json:"sort_order"`
	IsActive  bool    `db:"is_active" json:"is_active"`
}

// Event is the operational event channels belong to. Only the anchor fields
// live here; the incident domain itself is another service's concern.
type Event struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
