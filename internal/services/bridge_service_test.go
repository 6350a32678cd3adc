package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bridge-service/internal/mocks"
	"bridge-service/internal/models"
	"bridge-service/internal/platform"
	"bridge-service/internal/repositories"
)

type bridgeFixture struct {
	mappings    *mocks.MappingRepositoryMock
	channels    *mocks.ChannelRepositoryMock
	messages    *mocks.MessageRepositoryMock
	events      *mocks.EventRepositoryMock
	adapter     *mocks.AdapterMock
	broadcaster *mocks.BroadcasterMock
	svc         *BridgeService
}

func newBridgeFixture() *bridgeFixture {
	f := &bridgeFixture{
		mappings:    new(mocks.MappingRepositoryMock),
		channels:    new(mocks.ChannelRepositoryMock),
		messages:    new(mocks.MessageRepositoryMock),
		events:      new(mocks.EventRepositoryMock),
		adapter:     new(mocks.AdapterMock),
		broadcaster: new(mocks.BroadcasterMock),
	}
	registry := platform.Registry{models.PlatformGroupMe: f.adapter}
	f.svc = NewBridgeService(
		f.mappings, f.channels, f.messages, f.events,
		registry, f.broadcaster, "http://bridge.local", zap.NewNop().Sugar(),
	)
	return f
}

func TestCreateExternalChannelUnauthorized(t *testing.T) {
	f := newBridgeFixture()

	_, err := f.svc.CreateExternalChannel(context.Background(), 1, models.PlatformGroupMe, "", Identity{})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateExternalChannelUnknownPlatform(t *testing.T) {
	f := newBridgeFixture()

	_, err := f.svc.CreateExternalChannel(context.Background(), 1, models.PlatformSlack, "", Identity{Name: "alice"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateExternalChannelPlatformCannotCreateGroups(t *testing.T) {
	f := newBridgeFixture()

	f.events.On("GetEvent", mock.Anything, 1).Return(models.Event{ID: 1, Name: "Marathon"}, nil).Once()
	f.adapter.On("CreateGroup", mock.Anything, "Marathon - Incident Chat").
		Return(platform.Group{}, platform.ErrNotSupported).Once()

	_, err := f.svc.CreateExternalChannel(context.Background(), 1, models.PlatformGroupMe, "", Identity{Name: "alice"})
	require.ErrorIs(t, err, ErrValidation)
	f.mappings.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestCreateExternalChannelDeactivatesMappingWhenConnectorFails(t *testing.T) {
	f := newBridgeFixture()

	f.events.On("GetEvent", mock.Anything, 1).Return(models.Event{ID: 1, Name: "Marathon"}, nil).Once()
	f.adapter.On("CreateGroup", mock.Anything, "Marathon - Incident Chat").
		Return(platform.Group{ID: "g-77", Name: "Marathon - Incident Chat"}, nil).Once()
	f.mappings.On("FindByGroup", mock.Anything, models.PlatformGroupMe, "g-77").
		Return(models.ChannelMapping{}, repositories.ErrMappingNotFound).Once()
	f.channels.On("MaxDisplayOrder", mock.Anything, 1).Return(3, nil).Once()
	f.channels.On("Insert", mock.Anything, mock.Anything).Return(models.Channel{ID: 12, EventID: 1}, nil).Once()
	f.mappings.On("Insert", mock.Anything, mock.Anything).
		Return(models.ChannelMapping{ID: 9, Platform: models.PlatformGroupMe, ExternalGroupID: "g-77", WebhookSecret: "s-abc"}, nil).Once()
	f.adapter.On("RegisterConnector", mock.Anything, "g-77", "http://bridge.local/webhooks/groupme/9?secret=s-abc").
		Return(platform.Connector{}, assert.AnError).Once()
	f.mappings.On("Deactivate", mock.Anything, 9, "alice").Return(nil).Once()

	_, err := f.svc.CreateExternalChannel(context.Background(), 1, models.PlatformGroupMe, "", Identity{Name: "alice"})
	require.Error(t, err)

	f.mappings.AssertExpectations(t)
	f.mappings.AssertNotCalled(t, "SetConnector", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.broadcaster.AssertNotCalled(t, "BroadcastExternalConnected", mock.Anything, mock.Anything)
}

func TestCreateExternalChannelHappyPath(t *testing.T) {
	f := newBridgeFixture()

	f.events.On("GetEvent", mock.Anything, 1).Return(models.Event{ID: 1, Name: "Marathon"}, nil).Once()
	f.adapter.On("CreateGroup", mock.Anything, "Marathon - Incident Chat").
		Return(platform.Group{ID: "g-77", Name: "Marathon - Incident Chat", ShareURL: "https://share/g-77"}, nil).Once()
	f.mappings.On("FindByGroup", mock.Anything, models.PlatformGroupMe, "g-77").
		Return(models.ChannelMapping{}, repositories.ErrMappingNotFound).Once()
	f.channels.On("MaxDisplayOrder", mock.Anything, 1).Return(3, nil).Once()
	f.channels.On("Insert", mock.Anything, mock.MatchedBy(func(ch models.Channel) bool {
		return ch.ChannelType == models.ChannelTypeExternal && ch.DisplayOrder == 4
	})).Return(models.Channel{ID: 12, EventID: 1}, nil).Once()
	f.mappings.On("Insert", mock.Anything, mock.MatchedBy(func(m models.ChannelMapping) bool {
		return m.ExternalGroupID == "g-77" && m.ChannelID != nil && *m.ChannelID == 12 && m.WebhookSecret != ""
	})).Return(models.ChannelMapping{ID: 9, Platform: models.PlatformGroupMe, ExternalGroupID: "g-77", WebhookSecret: "s-abc"}, nil).Once()
	f.adapter.On("RegisterConnector", mock.Anything, "g-77", "http://bridge.local/webhooks/groupme/9?secret=s-abc").
		Return(platform.Connector{BotID: "bot-1"}, nil).Once()
	f.mappings.On("SetConnector", mock.Anything, 9, "bot-1", mock.Anything, (*string)(nil)).Return(nil).Once()
	f.channels.On("SetExternalMapping", mock.Anything, 12, 9).Return(nil).Once()

	final := models.ChannelMapping{ID: 9, Platform: models.PlatformGroupMe, ExternalGroupID: "g-77", BotID: "bot-1", IsActive: true}
	f.mappings.On("GetMapping", mock.Anything, 9).Return(final, nil).Once()
	f.broadcaster.On("BroadcastExternalConnected", 1, final).Once()

	mapping, err := f.svc.CreateExternalChannel(context.Background(), 1, models.PlatformGroupMe, "", Identity{Name: "alice"})
	require.NoError(t, err)
	require.Equal(t, 9, mapping.ID)
	require.Equal(t, "bot-1", mapping.BotID)

	f.mappings.AssertExpectations(t)
	f.channels.AssertExpectations(t)
	f.adapter.AssertExpectations(t)
	f.broadcaster.AssertExpectations(t)
}

func TestCreateExternalChannelReactivatesExisting(t *testing.T) {
	f := newBridgeFixture()

	channelID := 12
	existing := models.ChannelMapping{
		ID: 9, ChannelID: &channelID, Platform: models.PlatformGroupMe,
		ExternalGroupID: "g-77", IsActive: false,
	}

	f.events.On("GetEvent", mock.Anything, 1).Return(models.Event{ID: 1, Name: "Marathon"}, nil).Once()
	f.adapter.On("CreateGroup", mock.Anything, "Ops").
		Return(platform.Group{ID: "g-77", Name: "Ops"}, nil).Once()
	f.mappings.On("FindByGroup", mock.Anything, models.PlatformGroupMe, "g-77").Return(existing, nil).Once()
	f.mappings.On("Reactivate", mock.Anything, 9, 1, 12, "Ops", "alice").Return(nil).Once()
	f.channels.On("GetChannel", mock.Anything, 12).
		Return(models.Channel{ID: 12, EventID: 1, Lifecycle: models.LifecycleArchived}, nil).Once()
	f.channels.On("MaxDisplayOrder", mock.Anything, 1).Return(5, nil).Once()
	f.channels.On("SetLifecycle", mock.Anything, 12, models.LifecycleActive).Return(nil).Once()
	f.channels.On("SetDisplayOrder", mock.Anything, 12, 6).Return(nil).Once()

	reactivated := existing
	reactivated.IsActive = true
	f.mappings.On("GetMapping", mock.Anything, 9).Return(reactivated, nil).Once()
	f.broadcaster.On("BroadcastExternalConnected", 1, reactivated).Once()

	mapping, err := f.svc.CreateExternalChannel(context.Background(), 1, models.PlatformGroupMe, "Ops", Identity{Name: "alice"})
	require.NoError(t, err)
	require.True(t, mapping.IsActive)

	f.mappings.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	f.channels.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	f.mappings.AssertExpectations(t)
}

func activeMapping() models.ChannelMapping {
	eventID, channelID := 1, 12
	return models.ChannelMapping{
		ID: 9, EventID: &eventID, ChannelID: &channelID,
		Platform: models.PlatformGroupMe, ExternalGroupID: "g-77", IsActive: true,
	}
}

func TestProcessInboundWebhookDropLadder(t *testing.T) {
	payload := InboundMessage{
		ExternalGroupID:   "g-77",
		ExternalMessageID: "m-1",
		SenderName:        "bob",
		SenderType:        "user",
		Text:              "hello",
	}

	t.Run("missing mapping", func(t *testing.T) {
		f := newBridgeFixture()
		f.mappings.On("GetMapping", mock.Anything, 9).
			Return(models.ChannelMapping{}, repositories.ErrMappingNotFound).Once()

		msg, err := f.svc.ProcessInboundWebhook(context.Background(), 9, "",payload)
		require.NoError(t, err)
		require.Nil(t, msg)
	})

	t.Run("inactive mapping", func(t *testing.T) {
		f := newBridgeFixture()
		inactive := activeMapping()
		inactive.IsActive = false
		f.mappings.On("GetMapping", mock.Anything, 9).Return(inactive, nil).Once()

		msg, err := f.svc.ProcessInboundWebhook(context.Background(), 9, "",payload)
		require.NoError(t, err)
		require.Nil(t, msg)
	})

	t.Run("bot echo", func(t *testing.T) {
		f := newBridgeFixture()
		f.mappings.On("GetMapping", mock.Anything, 9).Return(activeMapping(), nil).Once()

		echo := payload
		echo.SenderType = "bot"
		msg, err := f.svc.ProcessInboundWebhook(context.Background(), 9, "",echo)
		require.NoError(t, err)
		require.Nil(t, msg)
		f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	})

	t.Run("group mismatch", func(t *testing.T) {
		f := newBridgeFixture()
		f.mappings.On("GetMapping", mock.Anything, 9).Return(activeMapping(), nil).Once()

		stray := payload
		stray.ExternalGroupID = "g-unrelated"
		msg, err := f.svc.ProcessInboundWebhook(context.Background(), 9, "",stray)
		require.NoError(t, err)
		require.Nil(t, msg)
	})

	t.Run("unlinked mapping", func(t *testing.T) {
		f := newBridgeFixture()
		unlinked := activeMapping()
		unlinked.ChannelID = nil
		f.mappings.On("GetMapping", mock.Anything, 9).Return(unlinked, nil).Once()

		msg, err := f.svc.ProcessInboundWebhook(context.Background(), 9, "",payload)
		require.NoError(t, err)
		require.Nil(t, msg)
	})
}

func TestProcessInboundWebhookDuplicateReadCheck(t *testing.T) {
	f := newBridgeFixture()
	f.mappings.On("GetMapping", mock.Anything, 9).Return(activeMapping(), nil).Once()
	f.messages.On("ExternalMessageExists", mock.Anything, 12, models.PlatformGroupMe, "m-1").Return(true, nil).Once()

	msg, err := f.svc.ProcessInboundWebhook(context.Background(), 9, "",InboundMessage{
		ExternalGroupID: "g-77", ExternalMessageID: "m-1", SenderName: "bob", SenderType: "user", Text: "hi",
	})
	require.NoError(t, err)
	require.Nil(t, msg)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestProcessInboundWebhookDuplicateInsertRace(t *testing.T) {
	f := newBridgeFixture()
	f.mappings.On("GetMapping", mock.Anything, 9).Return(activeMapping(), nil).Once()
	f.messages.On("ExternalMessageExists", mock.Anything, 12, models.PlatformGroupMe, "m-1").Return(false, nil).Once()
	f.messages.On("CreateMessage", mock.Anything, mock.Anything).
		Return(models.ChatMessage{}, repositories.ErrDuplicateMessage).Once()

	msg, err := f.svc.ProcessInboundWebhook(context.Background(), 9, "",InboundMessage{
		ExternalGroupID: "g-77", ExternalMessageID: "m-1", SenderName: "bob", SenderType: "user", Text: "hi",
	})
	require.NoError(t, err)
	require.Nil(t, msg)
	f.broadcaster.AssertNotCalled(t, "BroadcastMessageReceived", mock.Anything, mock.Anything)
}

func TestProcessInboundWebhookIngests(t *testing.T) {
	f := newBridgeFixture()
	f.mappings.On("GetMapping", mock.Anything, 9).Return(activeMapping(), nil).Once()
	f.messages.On("ExternalMessageExists", mock.Anything, 12, models.PlatformGroupMe, "m-1").Return(false, nil).Once()
	f.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(msg models.ChatMessage) bool {
		return msg.ChannelID == 12 && msg.SenderDisplayName == "bob" &&
			msg.ExternalMessageID != nil && *msg.ExternalMessageID == "m-1" &&
			msg.ExternalPlatform != nil && *msg.ExternalPlatform == models.PlatformGroupMe
	})).Return(models.ChatMessage{ID: 501, ChannelID: 12}, nil).Once()
	f.mappings.On("TouchActivity", mock.Anything, 9).Return(nil).Once()
	f.broadcaster.On("BroadcastMessageReceived", 1, mock.Anything).Once()

	msg, err := f.svc.ProcessInboundWebhook(context.Background(), 9, "",InboundMessage{
		ExternalGroupID: "g-77", ExternalMessageID: "m-1", SenderName: "bob", SenderType: "user", Text: "hi",
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, 501, msg.ID)

	f.messages.AssertExpectations(t)
	f.mappings.AssertExpectations(t)
	f.broadcaster.AssertExpectations(t)
}

func TestProcessInboundWebhookSecretCheck(t *testing.T) {
	payload := InboundMessage{
		ExternalGroupID: "g-77", ExternalMessageID: "m-1", SenderName: "bob", SenderType: "user", Text: "hi",
	}
	guarded := activeMapping()
	guarded.WebhookSecret = "s-abc"

	t.Run("wrong secret dropped", func(t *testing.T) {
		f := newBridgeFixture()
		f.mappings.On("GetMapping", mock.Anything, 9).Return(guarded, nil).Once()

		msg, err := f.svc.ProcessInboundWebhook(context.Background(), 9, "forged", payload)
		require.NoError(t, err)
		require.Nil(t, msg)
		f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	})

	t.Run("matching secret ingests", func(t *testing.T) {
		f := newBridgeFixture()
		f.mappings.On("GetMapping", mock.Anything, 9).Return(guarded, nil).Once()
		f.messages.On("ExternalMessageExists", mock.Anything, 12, models.PlatformGroupMe, "m-1").Return(false, nil).Once()
		f.messages.On("CreateMessage", mock.Anything, mock.Anything).Return(models.ChatMessage{ID: 501, ChannelID: 12}, nil).Once()
		f.mappings.On("TouchActivity", mock.Anything, 9).Return(nil).Once()
		f.broadcaster.On("BroadcastMessageReceived", 1, mock.Anything).Once()

		msg, err := f.svc.ProcessInboundWebhook(context.Background(), 9, "s-abc", payload)
		require.NoError(t, err)
		require.NotNil(t, msg)
	})
}

func TestRegisterInstallationCreatesUnlinkedMapping(t *testing.T) {
	f := newBridgeFixture()

	tenant := "tenant-1"
	f.mappings.On("FindByGroup", mock.Anything, models.PlatformTeams, "conv-1").
		Return(models.ChannelMapping{}, repositories.ErrMappingNotFound).Once()
	f.mappings.On("Insert", mock.Anything, mock.MatchedBy(func(m models.ChannelMapping) bool {
		return m.Platform == models.PlatformTeams &&
			m.EventID == nil && m.ChannelID == nil &&
			m.ExternalGroupID == "conv-1" &&
			m.BotID == "bot-1" &&
			m.WebhookSecret != "" &&
			len(m.ConversationRef) > 0 &&
			m.TenantID != nil && *m.TenantID == "tenant-1" &&
			m.InstalledByName != nil && *m.InstalledByName == "Bob" &&
			m.IsEmulator
	})).Return(models.ChannelMapping{ID: 31, Platform: models.PlatformTeams, ExternalGroupID: "conv-1"}, nil).Once()

	mapping, err := f.svc.RegisterInstallation(context.Background(), models.PlatformTeams, Installation{
		ConversationID:  "conv-1",
		ConversationRef: []byte(`{"serviceUrl":"http://localhost:5000"}`),
		BotID:           "bot-1",
		TenantID:        &tenant,
		InstalledByName: "Bob",
		IsEmulator:      true,
	})
	require.NoError(t, err)
	require.Equal(t, 31, mapping.ID)
	f.mappings.AssertExpectations(t)
}

func TestRegisterInstallationRefreshesKnownConversation(t *testing.T) {
	f := newBridgeFixture()

	existing := models.ChannelMapping{ID: 31, Platform: models.PlatformTeams, ExternalGroupID: "conv-1", IsActive: true}
	ref := []byte(`{"serviceUrl":"https://smba.trafficmanager.net/amer/"}`)
	f.mappings.On("FindByGroup", mock.Anything, models.PlatformTeams, "conv-1").Return(existing, nil).Once()
	f.mappings.On("SetConnector", mock.Anything, 31, "bot-1", ref, (*string)(nil)).Return(nil).Once()
	f.mappings.On("TouchActivity", mock.Anything, 31).Return(nil).Once()
	f.mappings.On("GetMapping", mock.Anything, 31).Return(existing, nil).Once()

	mapping, err := f.svc.RegisterInstallation(context.Background(), models.PlatformTeams, Installation{
		ConversationID: "conv-1", ConversationRef: ref, BotID: "bot-1",
	})
	require.NoError(t, err)
	require.Equal(t, 31, mapping.ID)
	f.mappings.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestProcessInboundByGroup(t *testing.T) {
	t.Run("unknown conversation dropped", func(t *testing.T) {
		f := newBridgeFixture()
		f.mappings.On("FindByGroup", mock.Anything, models.PlatformTeams, "conv-x").
			Return(models.ChannelMapping{}, repositories.ErrMappingNotFound).Once()

		msg, err := f.svc.ProcessInboundByGroup(context.Background(), models.PlatformTeams, "conv-x", InboundMessage{
			ExternalGroupID: "conv-x", Text: "hi",
		})
		require.NoError(t, err)
		require.Nil(t, msg)
	})

	t.Run("routes to mapping with its own secret", func(t *testing.T) {
		f := newBridgeFixture()
		mapping := activeMapping()
		mapping.WebhookSecret = "s-abc"
		f.mappings.On("FindByGroup", mock.Anything, models.PlatformGroupMe, "g-77").Return(mapping, nil).Once()
		f.mappings.On("GetMapping", mock.Anything, 9).Return(mapping, nil).Once()
		f.messages.On("ExternalMessageExists", mock.Anything, 12, models.PlatformGroupMe, "m-1").Return(false, nil).Once()
		f.messages.On("CreateMessage", mock.Anything, mock.Anything).Return(models.ChatMessage{ID: 502, ChannelID: 12}, nil).Once()
		f.mappings.On("TouchActivity", mock.Anything, 9).Return(nil).Once()
		f.broadcaster.On("BroadcastMessageReceived", 1, mock.Anything).Once()

		msg, err := f.svc.ProcessInboundByGroup(context.Background(), models.PlatformGroupMe, "g-77", InboundMessage{
			ExternalGroupID: "g-77", ExternalMessageID: "m-1", SenderName: "bob", SenderType: "user", Text: "hi",
		})
		require.NoError(t, err)
		require.NotNil(t, msg)
		require.Equal(t, 502, msg.ID)
	})
}

func TestBroadcastToExternalChannelsIsolatesFailures(t *testing.T) {
	f := newBridgeFixture()

	eventID := 1
	good := models.ChannelMapping{ID: 1, EventID: &eventID, Platform: models.PlatformGroupMe, ExternalGroupID: "g-1", ExternalGroupName: "ok", IsActive: true}
	bad := models.ChannelMapping{ID: 2, EventID: &eventID, Platform: models.PlatformGroupMe, ExternalGroupID: "g-2", ExternalGroupName: "broken", IsActive: true}

	f.mappings.On("ListActiveForEvent", mock.Anything, 1).Return([]models.ChannelMapping{good, bad}, nil).Once()
	f.adapter.On("PostMessage", mock.Anything, good, "[alice] hi").Return(nil).Once()
	f.adapter.On("PostMessage", mock.Anything, bad, "[alice] hi").Return(assert.AnError).Once()

	outcomes, err := f.svc.BroadcastToExternalChannels(context.Background(), 1, "alice", "hi")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	byID := map[int]SendOutcome{}
	for _, outcome := range outcomes {
		byID[outcome.MappingID] = outcome
	}
	require.True(t, byID[1].Succeeded)
	require.False(t, byID[2].Succeeded)
	require.Error(t, byID[2].Err)

	f.adapter.AssertExpectations(t)
}

func TestBroadcastToExternalChannelsNoMappings(t *testing.T) {
	f := newBridgeFixture()
	f.mappings.On("ListActiveForEvent", mock.Anything, 1).Return([]models.ChannelMapping(nil), nil).Once()

	outcomes, err := f.svc.BroadcastToExternalChannels(context.Background(), 1, "alice", "hi")
	require.NoError(t, err)
	require.Empty(t, outcomes)
}

func TestDeactivateChannelIdempotent(t *testing.T) {
	f := newBridgeFixture()

	inactive := activeMapping()
	inactive.IsActive = false
	f.mappings.On("GetMapping", mock.Anything, 9).Return(inactive, nil).Once()
	f.channels.On("SetLifecycle", mock.Anything, 12, models.LifecycleArchived).Return(nil).Once()
	f.broadcaster.On("BroadcastExternalDisconnected", 1, mock.Anything).Once()

	mapping, err := f.svc.DeactivateChannel(context.Background(), 9, false, Identity{Name: "alice"})
	require.NoError(t, err)
	require.False(t, mapping.IsActive)

	f.mappings.AssertNotCalled(t, "Deactivate", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeactivateChannelTearsDownPlatformSide(t *testing.T) {
	f := newBridgeFixture()

	mapping := activeMapping()
	mapping.BotID = "bot-1"
	f.mappings.On("GetMapping", mock.Anything, 9).Return(mapping, nil).Once()
	f.mappings.On("Deactivate", mock.Anything, 9, "alice").Return(nil).Once()
	f.channels.On("SetLifecycle", mock.Anything, 12, models.LifecycleArchived).Return(nil).Once()
	f.adapter.On("DestroyConnector", mock.Anything, "bot-1").Return(nil).Once()
	f.adapter.On("ArchiveGroup", mock.Anything, "g-77").Return(nil).Once()
	f.broadcaster.On("BroadcastExternalDisconnected", 1, mock.Anything).Once()

	out, err := f.svc.DeactivateChannel(context.Background(), 9, true, Identity{Name: "alice"})
	require.NoError(t, err)
	require.False(t, out.IsActive)

	f.adapter.AssertExpectations(t)
	f.mappings.AssertExpectations(t)
}

func TestCleanupEmulatorConnections(t *testing.T) {
	f := newBridgeFixture()
	f.mappings.On("DeactivateEmulators", mock.Anything, 1, "alice").Return(int64(2), nil).Once()

	count, err := f.svc.CleanupEmulatorConnections(context.Background(), 1, Identity{Name: "alice"})
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	_, err = f.svc.CleanupEmulatorConnections(context.Background(), 1, Identity{})
	require.ErrorIs(t, err, ErrUnauthorized)
}
