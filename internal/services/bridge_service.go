package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bridge-service/internal/models"
	"bridge-service/internal/observability"
	"bridge-service/internal/platform"
	"bridge-service/internal/repositories"
	"bridge-service/internal/retry"
)

// InboundMessage is a normalized webhook payload; platform-specific parsing
// happens at the edge.
type InboundMessage struct {
	ExternalGroupID   string
	ExternalMessageID string
	SenderName        string
	SenderType        string
	Text              string
}

// Installation is the conversation identity captured when the bridge bot is
// added to a platform conversation, for platforms where the app is installed
// rather than the group created by us.
type Installation struct {
	ConversationID   string
	ConversationName string
	ConversationRef  json.RawMessage
	BotID            string
	TenantID         *string
	InstalledByName  string
	IsEmulator       bool
}

// SendOutcome reports one mapping's result during fan-out, so callers can
// render "may not have reached platform X" notices.
type SendOutcome struct {
	MappingID int             `json:"mapping_id"`
	Platform  models.Platform `json:"platform"`
	GroupName string          `json:"group_name"`
	Succeeded bool            `json:"succeeded"`
	Attempts  int             `json:"attempts"`
	Err       error           `json:"-"`
}

// BridgeService links channels to external platform groups, ingests inbound
// webhooks, and fans outbound messages to every linked platform.
type BridgeService struct {
	mappings    repositories.MappingRepository
	channels    repositories.ChannelRepository
	messages    repositories.MessageRepository
	events      repositories.EventRepository
	adapters    platform.Registry
	broadcaster Broadcaster
	retryOpts   retry.Options
	callbackURL string
	log         *zap.SugaredLogger
}

// NewBridgeService constructs a BridgeService. callbackURL is the external
// base URL webhooks are registered under.
func NewBridgeService(
	mappings repositories.MappingRepository,
	channels repositories.ChannelRepository,
	messages repositories.MessageRepository,
	events repositories.EventRepository,
	adapters platform.Registry,
	broadcaster Broadcaster,
	callbackURL string,
	log *zap.SugaredLogger,
) *BridgeService {
	return &BridgeService{
		mappings:    mappings,
		channels:    channels,
		messages:    messages,
		events:      events,
		adapters:    adapters,
		broadcaster: broadcaster,
		retryOpts:   retry.DefaultOptions(),
		callbackURL: strings.TrimSuffix(callbackURL, "/"),
		log:         log,
	}
}

// CreateExternalChannel creates a platform group, registers a connector on
// it, and persists the mapping plus its backing channel. A group that
// already has a mapping (including a deactivated one) is reactivated rather
// than duplicated.
func (s *BridgeService) CreateExternalChannel(ctx context.Context, eventID int, p models.Platform, customName string, identity Identity) (models.ChannelMapping, error) {
	if identity.Name == "" {
		return models.ChannelMapping{}, ErrUnauthorized
	}
	adapter, ok := s.adapters.Resolve(p)
	if !ok {
		return models.ChannelMapping{}, fmt.Errorf("%w: unsupported platform %q", ErrValidation, p)
	}

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return models.ChannelMapping{}, err
	}

	name := customName
	if name == "" {
		name = event.Name + " - Incident Chat"
	}

	groupResult := retry.Execute(ctx, func(ctx context.Context) (platform.Group, error) {
		return adapter.CreateGroup(ctx, name)
	}, s.retryOpts, nil)
	observability.ObserveRetryAttempts("create_group", groupResult.Attempts)
	if !groupResult.Succeeded {
		if errors.Is(groupResult.Err, platform.ErrNotSupported) {
			return models.ChannelMapping{}, fmt.Errorf("%w: %s groups cannot be created from here, install the app in the conversation instead", ErrValidation, p)
		}
		return models.ChannelMapping{}, fmt.Errorf("create platform group: %w", groupResult.Err)
	}
	group := groupResult.Value

	// The platform may hand back a group we already know about. Only one
	// active mapping may exist per group identity.
	existing, err := s.mappings.FindByGroup(ctx, p, group.ID)
	if err == nil {
		return s.reactivate(ctx, existing, eventID, group.Name, identity)
	}
	if !errors.Is(err, repositories.ErrMappingNotFound) {
		return models.ChannelMapping{}, err
	}

	max, err := s.channels.MaxDisplayOrder(ctx, eventID)
	if err != nil {
		return models.ChannelMapping{}, err
	}
	ch, err := s.channels.Insert(ctx, models.Channel{
		EventID:      eventID,
		Name:         name,
		ChannelType:  models.ChannelTypeExternal,
		DisplayOrder: max + 1,
		CreatedBy:    identity.Name,
	})
	if err != nil {
		return models.ChannelMapping{}, err
	}

	channelID := ch.ID
	var shareURL *string
	if group.ShareURL != "" {
		shareURL = &group.ShareURL
	}
	mapping, err := s.mappings.Insert(ctx, models.ChannelMapping{
		EventID:           &eventID,
		ChannelID:         &channelID,
		Platform:          p,
		ExternalGroupID:   group.ID,
		ExternalGroupName: group.Name,
		WebhookSecret:     uuid.NewString(),
		ShareURL:          shareURL,
		CreatedBy:         identity.Name,
	})
	if err != nil {
		return models.ChannelMapping{}, err
	}

	// Connector registration needs the mapping id in the callback URL, so
	// it happens after the insert. The per-mapping secret rides along so
	// inbound deliveries can be told apart from forged posts.
	callback := fmt.Sprintf("%s/webhooks/%s/%d?secret=%s", s.callbackURL, p, mapping.ID, mapping.WebhookSecret)
	connectorResult := retry.Execute(ctx, func(ctx context.Context) (platform.Connector, error) {
		return adapter.RegisterConnector(ctx, group.ID, callback)
	}, s.retryOpts, nil)
	observability.ObserveRetryAttempts("register_connector", connectorResult.Attempts)
	if !connectorResult.Succeeded {
		// An active mapping with no bot behind it would silently eat
		// fan-out, so flip it off before surfacing the failure.
		if derr := s.mappings.Deactivate(ctx, mapping.ID, identity.Name); derr != nil {
			s.log.Warnw("deactivating botless mapping failed", "mapping_id", mapping.ID, "error", derr)
		}
		if errors.Is(connectorResult.Err, platform.ErrNotSupported) {
			return models.ChannelMapping{}, fmt.Errorf("%w: %s does not support connector registration", ErrValidation, p)
		}
		return models.ChannelMapping{}, fmt.Errorf("register platform connector: %w", connectorResult.Err)
	}
	connector := connectorResult.Value

	if err := s.mappings.SetConnector(ctx, mapping.ID, connector.BotID, connector.ConversationRef, connector.TenantID); err != nil {
		return models.ChannelMapping{}, err
	}
	if err := s.channels.SetExternalMapping(ctx, channelID, mapping.ID); err != nil {
		return models.ChannelMapping{}, err
	}

	mapping, err = s.mappings.GetMapping(ctx, mapping.ID)
	if err != nil {
		return models.ChannelMapping{}, err
	}

	s.broadcaster.BroadcastExternalConnected(eventID, mapping)
	s.log.Infow("external channel connected",
		"mapping_id", mapping.ID, "platform", p, "group_id", group.ID, "created_by", identity.Name)
	return mapping, nil
}

func (s *BridgeService) reactivate(ctx context.Context, existing models.ChannelMapping, eventID int, groupName string, identity Identity) (models.ChannelMapping, error) {
	channelID := 0
	if existing.ChannelID != nil {
		channelID = *existing.ChannelID
	}

	if !existing.IsActive {
		if err := s.mappings.Reactivate(ctx, existing.ID, eventID, channelID, groupName, identity.Name); err != nil {
			return models.ChannelMapping{}, err
		}
		if channelID != 0 {
			ch, err := s.channels.GetChannel(ctx, channelID)
			if err == nil && ch.Lifecycle == models.LifecycleArchived {
				max, err := s.channels.MaxDisplayOrder(ctx, eventID)
				if err != nil {
					return models.ChannelMapping{}, err
				}
				if err := s.channels.SetLifecycle(ctx, channelID, models.LifecycleActive); err != nil {
					return models.ChannelMapping{}, err
				}
				if err := s.channels.SetDisplayOrder(ctx, channelID, max+1); err != nil {
					return models.ChannelMapping{}, err
				}
			}
		}
	}

	mapping, err := s.mappings.GetMapping(ctx, existing.ID)
	if err != nil {
		return models.ChannelMapping{}, err
	}
	s.broadcaster.BroadcastExternalConnected(eventID, mapping)
	s.log.Infow("external channel reactivated", "mapping_id", mapping.ID, "platform", mapping.Platform)
	return mapping, nil
}

// RegisterInstallation upserts the mapping for a conversation the bot was
// just added to. Installs arrive from the platform before any event links
// the conversation, so a fresh mapping starts unlinked; a known conversation
// gets its connector details refreshed instead.
func (s *BridgeService) RegisterInstallation(ctx context.Context, p models.Platform, install Installation) (models.ChannelMapping, error) {
	if install.ConversationID == "" {
		return models.ChannelMapping{}, fmt.Errorf("%w: installation has no conversation id", ErrValidation)
	}

	existing, err := s.mappings.FindByGroup(ctx, p, install.ConversationID)
	if err == nil {
		if serr := s.mappings.SetConnector(ctx, existing.ID, install.BotID, install.ConversationRef, install.TenantID); serr != nil {
			return models.ChannelMapping{}, serr
		}
		if terr := s.mappings.TouchActivity(ctx, existing.ID); terr != nil {
			s.log.Warnw("activity stamp failed", "mapping_id", existing.ID, "error", terr)
		}
		s.log.Infow("installation refreshed",
			"mapping_id", existing.ID, "platform", p, "conversation_id", install.ConversationID)
		return s.mappings.GetMapping(ctx, existing.ID)
	}
	if !errors.Is(err, repositories.ErrMappingNotFound) {
		return models.ChannelMapping{}, err
	}

	var installedBy *string
	createdBy := string(p) + "-install"
	if install.InstalledByName != "" {
		name := install.InstalledByName
		installedBy = &name
		createdBy = name
	}
	mapping, err := s.mappings.Insert(ctx, models.ChannelMapping{
		Platform:          p,
		ExternalGroupID:   install.ConversationID,
		ExternalGroupName: install.ConversationName,
		BotID:             install.BotID,
		WebhookSecret:     uuid.NewString(),
		ConversationRef:   install.ConversationRef,
		TenantID:          install.TenantID,
		InstalledByName:   installedBy,
		IsEmulator:        install.IsEmulator,
		CreatedBy:         createdBy,
	})
	if err != nil {
		return models.ChannelMapping{}, err
	}
	s.log.Infow("installation registered",
		"mapping_id", mapping.ID, "platform", p, "conversation_id", install.ConversationID,
		"is_emulator", install.IsEmulator)
	return mapping, nil
}

// ProcessInboundByGroup ingests a webhook addressed by conversation identity
// rather than mapping id, for platforms whose deliveries all land on one
// fixed messaging endpoint.
func (s *BridgeService) ProcessInboundByGroup(ctx context.Context, p models.Platform, externalGroupID string, payload InboundMessage) (*models.ChatMessage, error) {
	mapping, err := s.mappings.FindByGroup(ctx, p, externalGroupID)
	if err != nil {
		if errors.Is(err, repositories.ErrMappingNotFound) {
			s.drop(models.ChannelMapping{Platform: p}, observability.WebhookDropInactive, "group_id", externalGroupID)
			return nil, nil
		}
		return nil, err
	}
	return s.ProcessInboundWebhook(ctx, mapping.ID, mapping.WebhookSecret, payload)
}

// ListChannelMappings returns the event's active mappings.
func (s *BridgeService) ListChannelMappings(ctx context.Context, eventID int) ([]models.ChannelMapping, error) {
	return s.mappings.ListActiveForEvent(ctx, eventID)
}

// DeactivateChannel disconnects a mapping and archives its backing channel.
// When archiveExternalGroup is set, the platform-side bot and group are torn
// down best-effort; platform failures are logged, never surfaced, and never
// roll back the local disconnect.
func (s *BridgeService) DeactivateChannel(ctx context.Context, mappingID int, archiveExternalGroup bool, identity Identity) (models.ChannelMapping, error) {
	if identity.Name == "" {
		return models.ChannelMapping{}, ErrUnauthorized
	}

	mapping, err := s.mappings.GetMapping(ctx, mappingID)
	if err != nil {
		return models.ChannelMapping{}, err
	}

	if mapping.IsActive {
		if err := s.mappings.Deactivate(ctx, mappingID, identity.Name); err != nil {
			return models.ChannelMapping{}, err
		}
		mapping.IsActive = false
	}

	if mapping.ChannelID != nil {
		if err := s.channels.SetLifecycle(ctx, *mapping.ChannelID, models.LifecycleArchived); err != nil &&
			!errors.Is(err, repositories.ErrChannelNotFound) {
			return models.ChannelMapping{}, err
		}
	}

	if archiveExternalGroup {
		if adapter, ok := s.adapters.Resolve(mapping.Platform); ok {
			s.teardownPlatformSide(ctx, adapter, mapping)
		}
	}

	if mapping.EventID != nil {
		s.broadcaster.BroadcastExternalDisconnected(*mapping.EventID, mapping)
	}
	s.log.Infow("external channel disconnected",
		"mapping_id", mappingID, "platform", mapping.Platform, "disconnected_by", identity.Name)
	return mapping, nil
}

func (s *BridgeService) teardownPlatformSide(ctx context.Context, adapter platform.Adapter, mapping models.ChannelMapping) {
	if mapping.BotID != "" {
		result := retry.Execute(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, adapter.DestroyConnector(ctx, mapping.BotID)
		}, s.retryOpts, nil)
		if !result.Succeeded {
			s.log.Warnw("platform bot teardown failed",
				"mapping_id", mapping.ID, "platform", mapping.Platform, "error", result.Err)
		}
	}

	result := retry.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, adapter.ArchiveGroup(ctx, mapping.ExternalGroupID)
	}, s.retryOpts, nil)
	if !result.Succeeded {
		s.log.Warnw("platform group teardown failed",
			"mapping_id", mapping.ID, "platform", mapping.Platform, "error", result.Err)
	}
}

// ProcessInboundWebhook runs the defensive ingestion ladder. Dropped
// payloads return (nil, nil): the platform must see success, or it retries
// conditions that will never heal. secret is the per-mapping token from the
// registered callback URL; mappings installed platform-side before a secret
// existed carry an empty one and rely on group matching alone.
func (s *BridgeService) ProcessInboundWebhook(ctx context.Context, mappingID int, secret string, payload InboundMessage) (*models.ChatMessage, error) {
	mapping, err := s.mappings.GetMapping(ctx, mappingID)
	if err != nil {
		if errors.Is(err, repositories.ErrMappingNotFound) {
			s.drop(mapping, observability.WebhookDropInactive, "mapping_id", mappingID)
			return nil, nil
		}
		return nil, err
	}
	if !mapping.IsActive {
		s.drop(mapping, observability.WebhookDropInactive, "mapping_id", mappingID)
		return nil, nil
	}

	if mapping.WebhookSecret != "" && secret != mapping.WebhookSecret {
		s.drop(mapping, observability.WebhookDropBadSecret, "mapping_id", mappingID)
		return nil, nil
	}

	// Our own bot's posts come back through the webhook; echoing them
	// would loop messages between the platforms.
	if payload.SenderType == "bot" {
		s.drop(mapping, observability.WebhookDropBotEcho, "sender", payload.SenderName)
		return nil, nil
	}

	if payload.ExternalGroupID != mapping.ExternalGroupID {
		s.drop(mapping, observability.WebhookDropGroupMatch, "payload_group", payload.ExternalGroupID)
		return nil, nil
	}

	if mapping.ChannelID == nil {
		s.drop(mapping, observability.WebhookDropInactive, "reason", "mapping not linked to a channel")
		return nil, nil
	}

	if payload.ExternalMessageID != "" {
		exists, err := s.messages.ExternalMessageExists(ctx, *mapping.ChannelID, mapping.Platform, payload.ExternalMessageID)
		if err != nil {
			return nil, err
		}
		if exists {
			s.drop(mapping, observability.WebhookDropDuplicate, "external_message_id", payload.ExternalMessageID)
			return nil, nil
		}
	}

	platformTag := mapping.Platform
	var externalID *string
	if payload.ExternalMessageID != "" {
		id := payload.ExternalMessageID
		externalID = &id
	}
	msg, err := s.messages.CreateMessage(ctx, models.ChatMessage{
		ChannelID:         *mapping.ChannelID,
		Message:           payload.Text,
		SenderDisplayName: payload.SenderName,
		ExternalMessageID: externalID,
		ExternalPlatform:  &platformTag,
		CreatedBy:         payload.SenderName,
	})
	if err != nil {
		// Concurrent duplicate delivery lost the insert race to the
		// unique index. Same outcome as the read check.
		if errors.Is(err, repositories.ErrDuplicateMessage) {
			s.drop(mapping, observability.WebhookDropDuplicate, "external_message_id", payload.ExternalMessageID)
			return nil, nil
		}
		return nil, err
	}

	if err := s.mappings.TouchActivity(ctx, mappingID); err != nil {
		s.log.Warnw("activity stamp failed", "mapping_id", mappingID, "error", err)
	}

	if mapping.EventID != nil {
		s.broadcaster.BroadcastMessageReceived(*mapping.EventID, msg)
	}
	observability.IncWebhook(string(mapping.Platform), observability.WebhookIngested)
	return &msg, nil
}

func (s *BridgeService) drop(mapping models.ChannelMapping, outcome string, kv ...interface{}) {
	platformTag := "unknown"
	if mapping.Platform != "" {
		platformTag = string(mapping.Platform)
	}
	observability.IncWebhook(platformTag, outcome)
	s.log.Infow("webhook dropped", append([]interface{}{"outcome", outcome}, kv...)...)
}

// BroadcastToExternalChannels sends a locally composed message to every
// active mapping for the event. Sends run concurrently, one unit of work per
// mapping; a failure on one mapping never prevents attempts on the rest.
func (s *BridgeService) BroadcastToExternalChannels(ctx context.Context, eventID int, senderDisplayName, text string) ([]SendOutcome, error) {
	mappings, err := s.mappings.ListActiveForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, nil
	}

	formatted := fmt.Sprintf("[%s] %s", senderDisplayName, text)
	outcomes := make([]SendOutcome, len(mappings))

	var wg sync.WaitGroup
	for i, mapping := range mappings {
		wg.Add(1)
		go func(i int, mapping models.ChannelMapping) {
			defer wg.Done()
			outcomes[i] = s.sendToMapping(ctx, mapping, formatted)
		}(i, mapping)
	}
	wg.Wait()

	return outcomes, nil
}

func (s *BridgeService) sendToMapping(ctx context.Context, mapping models.ChannelMapping, text string) SendOutcome {
	outcome := SendOutcome{
		MappingID: mapping.ID,
		Platform:  mapping.Platform,
		GroupName: mapping.ExternalGroupName,
	}

	adapter, ok := s.adapters.Resolve(mapping.Platform)
	if !ok {
		outcome.Err = fmt.Errorf("no adapter for platform %q", mapping.Platform)
		s.log.Errorw("fan-out skipped mapping", "mapping_id", mapping.ID, "error", outcome.Err)
		observability.IncFanoutSend(string(mapping.Platform), observability.FanoutFailed)
		return outcome
	}

	result := retry.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, adapter.PostMessage(ctx, mapping, text)
	}, s.retryOpts, nil)
	observability.ObserveRetryAttempts("post_message", result.Attempts)

	outcome.Succeeded = result.Succeeded
	outcome.Attempts = result.Attempts
	outcome.Err = result.Err

	if result.Succeeded {
		observability.IncFanoutSend(string(mapping.Platform), observability.FanoutSent)
	} else {
		observability.IncFanoutSend(string(mapping.Platform), observability.FanoutFailed)
		s.log.Warnw("fan-out send failed",
			"mapping_id", mapping.ID, "platform", mapping.Platform,
			"attempts", result.Attempts, "error", result.Err)
	}
	return outcome
}

// CleanupEmulatorConnections disconnects mappings flagged as emulator/dev
// installs and returns how many were flipped.
func (s *BridgeService) CleanupEmulatorConnections(ctx context.Context, eventID int, identity Identity) (int64, error) {
	if identity.Name == "" {
		return 0, ErrUnauthorized
	}
	count, err := s.mappings.DeactivateEmulators(ctx, eventID, identity.Name)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Infow("emulator connections cleaned up", "event_id", eventID, "count", count)
	}
	return count, nil
}
