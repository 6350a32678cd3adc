package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bridge-service/internal/models"
	"bridge-service/internal/repositories"
)

var (
	// ErrUnauthorized reports a missing caller identity where one is
	// required.
	ErrUnauthorized = errors.New("caller identity required")

	// ErrValidation reports a rejected request payload.
	ErrValidation = errors.New("validation failed")
)

// Identity is the authenticated caller, passed explicitly. Never read from
// ambient state.
type Identity struct {
	Name string
}

// Broadcaster pushes lifecycle events to viewers of an event. Best-effort;
// implementations must not block on slow consumers.
type Broadcaster interface {
	BroadcastMessageReceived(eventID int, msg models.ChatMessage)
	BroadcastChannelCreated(eventID int, ch models.Channel)
	BroadcastChannelArchived(eventID int, ch models.Channel)
	BroadcastChannelRestored(eventID int, ch models.Channel)
	BroadcastChannelDeleted(eventID int, ch models.Channel)
	BroadcastExternalConnected(eventID int, mapping models.ChannelMapping)
	BroadcastExternalDisconnected(eventID int, mapping models.ChannelMapping)
}

// Default channels created for every fresh event. Position channels sort
// after them.
const (
	defaultThreadName   = "Event Chat"
	announcementsName   = "Announcements"
	positionOrderOffset = 2
	purgedNamePrefix    = "[DELETED] "
)

// CreateChannelRequest carries the fields for an explicit channel creation.
type CreateChannelRequest struct {
	EventID     int
	Name        string
	Description *string
	ChannelType models.ChannelType
	PositionID  *int
	IconName    *string
	Color       *string
}

// ChannelService owns channel lifecycle and visibility rules.
type ChannelService struct {
	channels    repositories.ChannelRepository
	messages    repositories.MessageRepository
	positions   repositories.PositionRepository
	broadcaster Broadcaster
	log         *zap.SugaredLogger
}

// NewChannelService constructs a ChannelService.
func NewChannelService(
	channels repositories.ChannelRepository,
	messages repositories.MessageRepository,
	positions repositories.PositionRepository,
	broadcaster Broadcaster,
	log *zap.SugaredLogger,
) *ChannelService {
	return &ChannelService{
		channels:    channels,
		messages:    messages,
		positions:   positions,
		broadcaster: broadcaster,
		log:         log,
	}
}

// ListActiveChannels returns active channels ordered by display order with
// message aggregates.
func (s *ChannelService) ListActiveChannels(ctx context.Context, eventID int) ([]models.ChannelSummary, error) {
	return s.channels.ListActive(ctx, eventID)
}

// ListVisibleChannels filters the active list for a viewer: a position
// channel is visible to holders of the position and to its original creator;
// everything else is visible to any viewer with event access.
func (s *ChannelService) ListVisibleChannels(ctx context.Context, eventID int, viewerPositionIDs []int, viewer Identity) ([]models.ChannelSummary, error) {
	all, err := s.channels.ListActive(ctx, eventID)
	if err != nil {
		return nil, err
	}

	held := make(map[int]struct{}, len(viewerPositionIDs))
	for _, id := range viewerPositionIDs {
		held[id] = struct{}{}
	}

	visible := make([]models.ChannelSummary, 0, len(all))
	for _, ch := range all {
		if ch.ChannelType == models.ChannelTypePosition && ch.PositionID != nil {
			if _, holds := held[*ch.PositionID]; !holds && ch.CreatedBy != viewer.Name {
				continue
			}
		}
		visible = append(visible, ch)
	}
	return visible, nil
}

// CreateChannel creates an explicit channel at the end of the display order.
func (s *ChannelService) CreateChannel(ctx context.Context, req CreateChannelRequest, identity Identity) (models.Channel, error) {
	if identity.Name == "" {
		return models.Channel{}, ErrUnauthorized
	}
	if req.Name == "" {
		return models.Channel{}, fmt.Errorf("%w: channel name is required", ErrValidation)
	}
	channelType := req.ChannelType
	if channelType == "" {
		channelType = models.ChannelTypeCustom
	}
	if channelType == models.ChannelTypePosition && req.PositionID == nil {
		return models.Channel{}, fmt.Errorf("%w: position channel requires a position id", ErrValidation)
	}

	max, err := s.channels.MaxDisplayOrder(ctx, req.EventID)
	if err != nil {
		return models.Channel{}, err
	}

	ch, err := s.channels.Insert(ctx, models.Channel{
		EventID:      req.EventID,
		Name:         req.Name,
		Description:  req.Description,
		ChannelType:  channelType,
		DisplayOrder: max + 1,
		PositionID:   req.PositionID,
		IconName:     req.IconName,
		Color:        req.Color,
		CreatedBy:    identity.Name,
	})
	if err != nil {
		return models.Channel{}, err
	}

	s.broadcaster.BroadcastChannelCreated(req.EventID, ch)
	return ch, nil
}

// CreateDefaultChannels bootstraps the two fixed channels for a fresh event.
// Idempotent: existing defaults are left alone.
func (s *ChannelService) CreateDefaultChannels(ctx context.Context, eventID int, identity Identity) ([]models.Channel, error) {
	if identity.Name == "" {
		return nil, ErrUnauthorized
	}

	created := make([]models.Channel, 0, 2)

	hasInternal, err := s.channels.ExistsByType(ctx, eventID, models.ChannelTypeInternal)
	if err != nil {
		return nil, err
	}
	if !hasInternal {
		ch, err := s.channels.Insert(ctx, models.Channel{
			EventID:              eventID,
			Name:                 defaultThreadName,
			ChannelType:          models.ChannelTypeInternal,
			DisplayOrder:         0,
			IsDefaultEventThread: true,
			CreatedBy:            identity.Name,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, ch)
		s.broadcaster.BroadcastChannelCreated(eventID, ch)
	}

	hasAnnouncements, err := s.channels.ExistsByType(ctx, eventID, models.ChannelTypeAnnouncements)
	if err != nil {
		return nil, err
	}
	if !hasAnnouncements {
		ch, err := s.channels.Insert(ctx, models.Channel{
			EventID:      eventID,
			Name:         announcementsName,
			ChannelType:  models.ChannelTypeAnnouncements,
			DisplayOrder: 1,
			CreatedBy:    identity.Name,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, ch)
		s.broadcaster.BroadcastChannelCreated(eventID, ch)
	}

	return created, nil
}

// CreatePositionChannels creates one position channel per active
// organizational position, inheriting the position's presentation hints.
// Positions that already have a channel on the event are skipped.
func (s *ChannelService) CreatePositionChannels(ctx context.Context, eventID int, identity Identity) ([]models.Channel, error) {
	if identity.Name == "" {
		return nil, ErrUnauthorized
	}

	positions, err := s.positions.ListActivePositions(ctx)
	if err != nil {
		return nil, err
	}

	created := make([]models.Channel, 0, len(positions))
	for _, pos := range positions {
		exists, err := s.channels.ExistsPositionChannel(ctx, eventID, pos.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		positionID := pos.ID
		ch, err := s.channels.Insert(ctx, models.Channel{
			EventID:      eventID,
			Name:         pos.Name,
			ChannelType:  models.ChannelTypePosition,
			DisplayOrder: positionOrderOffset + pos.SortOrder,
			PositionID:   &positionID,
			IconName:     pos.IconName,
			Color:        pos.Color,
			CreatedBy:    identity.Name,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, ch)
		s.broadcaster.BroadcastChannelCreated(eventID, ch)
	}

	return created, nil
}

// UpdateChannel applies patch semantics to an active channel.
func (s *ChannelService) UpdateChannel(ctx context.Context, channelID int, update repositories.ChannelUpdate) (models.Channel, error) {
	if err := s.channels.UpdateFields(ctx, channelID, update); err != nil {
		return models.Channel{}, err
	}
	return s.channels.GetChannel(ctx, channelID)
}

// ReorderChannels reassigns display orders to match the given order.
func (s *ChannelService) ReorderChannels(ctx context.Context, eventID int, orderedIDs []int) error {
	return s.channels.Reorder(ctx, eventID, orderedIDs)
}

// GetChannel fetches a channel in any lifecycle state.
func (s *ChannelService) GetChannel(ctx context.Context, channelID int) (models.Channel, error) {
	return s.channels.GetChannel(ctx, channelID)
}

// ArchiveChannel soft-deletes a channel. Refused (false, nil) for the
// default event thread, announcements, external channels, and channels not
// currently active. Refusal is an expected business outcome, not an error.
func (s *ChannelService) ArchiveChannel(ctx context.Context, channelID int) (bool, error) {
	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	if !ch.IsActive() || ch.IsDefaultEventThread ||
		ch.ChannelType == models.ChannelTypeAnnouncements ||
		ch.ChannelType == models.ChannelTypeExternal {
		return false, nil
	}

	if err := s.channels.SetLifecycle(ctx, channelID, models.LifecycleArchived); err != nil {
		return false, err
	}
	ch.Lifecycle = models.LifecycleArchived
	s.broadcaster.BroadcastChannelArchived(ch.EventID, ch)
	return true, nil
}

// RestoreChannel brings an archived channel back at the end of the display
// order. Refused for channels that are not archived.
func (s *ChannelService) RestoreChannel(ctx context.Context, channelID int) (bool, error) {
	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	if ch.Lifecycle != models.LifecycleArchived {
		return false, nil
	}

	max, err := s.channels.MaxDisplayOrder(ctx, ch.EventID)
	if err != nil {
		return false, err
	}
	if err := s.channels.SetLifecycle(ctx, channelID, models.LifecycleActive); err != nil {
		return false, err
	}
	if err := s.channels.SetDisplayOrder(ctx, channelID, max+1); err != nil {
		return false, err
	}

	ch.Lifecycle = models.LifecycleActive
	ch.DisplayOrder = max + 1
	s.broadcaster.BroadcastChannelRestored(ch.EventID, ch)
	return true, nil
}

// PermanentlyDeleteChannel marks an archived channel purged. The row stays
// for referential integrity; the name gains a deletion marker and the
// description an audit line. Refused for active channels, the default
// thread, announcements, and external channels.
func (s *ChannelService) PermanentlyDeleteChannel(ctx context.Context, channelID int, identity Identity) (bool, error) {
	if identity.Name == "" {
		return false, ErrUnauthorized
	}

	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	if ch.Lifecycle != models.LifecycleArchived || ch.IsDefaultEventThread ||
		ch.ChannelType == models.ChannelTypeAnnouncements ||
		ch.ChannelType == models.ChannelTypeExternal {
		return false, nil
	}

	name := purgedNamePrefix + ch.Name
	auditLine := fmt.Sprintf("Deleted by %s at %s", identity.Name, time.Now().UTC().Format(time.RFC3339))
	description := auditLine
	if ch.Description != nil && *ch.Description != "" {
		description = *ch.Description + "\n" + auditLine
	}

	if err := s.channels.MarkPurged(ctx, channelID, name, description); err != nil {
		return false, err
	}

	ch.Lifecycle = models.LifecyclePurged
	ch.Name = name
	s.broadcaster.BroadcastChannelDeleted(ch.EventID, ch)
	s.log.Infow("channel purged", "channel_id", channelID, "deleted_by", identity.Name)
	return true, nil
}

// PostMessage stores a locally composed message and pushes it to viewers.
// External fan-out is the bridge's concern and never blocks the local save.
func (s *ChannelService) PostMessage(ctx context.Context, channelID int, text string, identity Identity) (models.ChatMessage, error) {
	if identity.Name == "" {
		return models.ChatMessage{}, ErrUnauthorized
	}
	if text == "" {
		return models.ChatMessage{}, fmt.Errorf("%w: message text is required", ErrValidation)
	}

	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if !ch.IsActive() {
		return models.ChatMessage{}, repositories.ErrChannelNotFound
	}

	msg, err := s.messages.CreateMessage(ctx, models.ChatMessage{
		ChannelID:         channelID,
		Message:           text,
		SenderDisplayName: identity.Name,
		CreatedBy:         identity.Name,
	})
	if err != nil {
		return models.ChatMessage{}, err
	}

	s.broadcaster.BroadcastMessageReceived(ch.EventID, msg)
	return msg, nil
}

// ArchiveAllMessages bulk soft-deletes a channel's messages and returns the
// count archived.
func (s *ChannelService) ArchiveAllMessages(ctx context.Context, channelID int) (int64, error) {
	if _, err := s.channels.GetChannel(ctx, channelID); err != nil {
		return 0, err
	}
	return s.messages.ArchiveAll(ctx, channelID)
}

// ArchiveMessagesOlderThan bulk soft-deletes messages older than the day
// threshold.
func (s *ChannelService) ArchiveMessagesOlderThan(ctx context.Context, channelID int, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: day threshold must be positive", ErrValidation)
	}
	if _, err := s.channels.GetChannel(ctx, channelID); err != nil {
		return 0, err
	}
	return s.messages.ArchiveOlderThan(ctx, channelID, days)
}

// ArchiveMessage soft-deletes a single message.
func (s *ChannelService) ArchiveMessage(ctx context.Context, messageID int) error {
	return s.messages.ArchiveMessage(ctx, messageID)
}
