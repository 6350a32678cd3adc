package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"bridge-service/internal/models"
	"bridge-service/internal/platform"
	"bridge-service/internal/repositories"
)

type ChannelRepositoryMock struct {
	mock.Mock
}

func (m *ChannelRepositoryMock) GetChannel(ctx context.Context, channelID int) (models.Channel, error) {
	args := m.Called(ctx, channelID)
	var ch models.Channel
	if val := args.Get(0); val != nil {
		ch = val.(models.Channel)
	}
	return ch, args.Error(1)
}

func (m *ChannelRepositoryMock) ListActive(ctx context.Context, eventID int) ([]models.ChannelSummary, error) {
	args := m.Called(ctx, eventID)
	var list []models.ChannelSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChannelSummary)
	}
	return list, args.Error(1)
}

func (m *ChannelRepositoryMock) Insert(ctx context.Context, ch models.Channel) (models.Channel, error) {
	args := m.Called(ctx, ch)
	var out models.Channel
	if val := args.Get(0); val != nil {
		out = val.(models.Channel)
	}
	return out, args.Error(1)
}

func (m *ChannelRepositoryMock) MaxDisplayOrder(ctx context.Context, eventID int) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *ChannelRepositoryMock) UpdateFields(ctx context.Context, channelID int, update repositories.ChannelUpdate) error {
	args := m.Called(ctx, channelID, update)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) SetLifecycle(ctx context.Context, channelID int, lc models.Lifecycle) error {
	args := m.Called(ctx, channelID, lc)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) SetDisplayOrder(ctx context.Context, channelID int, order int) error {
	args := m.Called(ctx, channelID, order)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) Reorder(ctx context.Context, eventID int, orderedIDs []int) error {
	args := m.Called(ctx, eventID, orderedIDs)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) MarkPurged(ctx context.Context, channelID int, name string, description string) error {
	args := m.Called(ctx, channelID, name, description)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) SetExternalMapping(ctx context.Context, channelID int, mappingID int) error {
	args := m.Called(ctx, channelID, mappingID)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) ExistsByType(ctx context.Context, eventID int, channelType models.ChannelType) (bool, error) {
	args := m.Called(ctx, eventID, channelType)
	return args.Bool(0), args.Error(1)
}

func (m *ChannelRepositoryMock) ExistsPositionChannel(ctx context.Context, eventID int, positionID int) (bool, error) {
	args := m.Called(ctx, eventID, positionID)
	return args.Bool(0), args.Error(1)
}

type MappingRepositoryMock struct {
	mock.Mock
}

func (m *MappingRepositoryMock) GetMapping(ctx context.Context, mappingID int) (models.ChannelMapping, error) {
	args := m.Called(ctx, mappingID)
	var mapping models.ChannelMapping
	if val := args.Get(0); val != nil {
		mapping = val.(models.ChannelMapping)
	}
	return mapping, args.Error(1)
}

func (m *MappingRepositoryMock) ListActiveForEvent(ctx context.Context, eventID int) ([]models.ChannelMapping, error) {
	args := m.Called(ctx, eventID)
	var list []models.ChannelMapping
	if val := args.Get(0); val != nil {
		list = val.([]models.ChannelMapping)
	}
	return list, args.Error(1)
}

func (m *MappingRepositoryMock) FindByGroup(ctx context.Context, p models.Platform, externalGroupID string) (models.ChannelMapping, error) {
	args := m.Called(ctx, p, externalGroupID)
	var mapping models.ChannelMapping
	if val := args.Get(0); val != nil {
		mapping = val.(models.ChannelMapping)
	}
	return mapping, args.Error(1)
}

func (m *MappingRepositoryMock) Insert(ctx context.Context, mapping models.ChannelMapping) (models.ChannelMapping, error) {
	args := m.Called(ctx, mapping)
	var out models.ChannelMapping
	if val := args.Get(0); val != nil {
		out = val.(models.ChannelMapping)
	}
	return out, args.Error(1)
}

func (m *MappingRepositoryMock) Reactivate(ctx context.Context, mappingID int, eventID int, channelID int, groupName string, modifiedBy string) error {
	args := m.Called(ctx, mappingID, eventID, channelID, groupName, modifiedBy)
	return args.Error(0)
}

func (m *MappingRepositoryMock) Deactivate(ctx context.Context, mappingID int, modifiedBy string) error {
	args := m.Called(ctx, mappingID, modifiedBy)
	return args.Error(0)
}

func (m *MappingRepositoryMock) SetConnector(ctx context.Context, mappingID int, botID string, conversationRef []byte, tenantID *string) error {
	args := m.Called(ctx, mappingID, botID, conversationRef, tenantID)
	return args.Error(0)
}

func (m *MappingRepositoryMock) TouchActivity(ctx context.Context, mappingID int) error {
	args := m.Called(ctx, mappingID)
	return args.Error(0)
}

func (m *MappingRepositoryMock) DeactivateEmulators(ctx context.Context, eventID int, modifiedBy string) (int64, error) {
	args := m.Called(ctx, eventID, modifiedBy)
	return args.Get(0).(int64), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	args := m.Called(ctx, msg)
	var out models.ChatMessage
	if val := args.Get(0); val != nil {
		out = val.(models.ChatMessage)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListChannelMessages(ctx context.Context, channelID int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, channelID)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ExternalMessageExists(ctx context.Context, channelID int, p models.Platform, externalMessageID string) (bool, error) {
	args := m.Called(ctx, channelID, p, externalMessageID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) ArchiveMessage(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ArchiveAll(ctx context.Context, channelID int) (int64, error) {
	args := m.Called(ctx, channelID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) ArchiveOlderThan(ctx context.Context, channelID int, days int) (int64, error) {
	args := m.Called(ctx, channelID, days)
	return args.Get(0).(int64), args.Error(1)
}

type EventRepositoryMock struct {
	mock.Mock
}

func (m *EventRepositoryMock) GetEvent(ctx context.Context, eventID int) (models.Event, error) {
	args := m.Called(ctx, eventID)
	var event models.Event
	if val := args.Get(0); val != nil {
		event = val.(models.Event)
	}
	return event, args.Error(1)
}

type PositionRepositoryMock struct {
	mock.Mock
}

func (m *PositionRepositoryMock) ListActivePositions(ctx context.Context) ([]models.Position, error) {
	args := m.Called(ctx)
	var positions []models.Position
	if val := args.Get(0); val != nil {
		positions = val.([]models.Position)
	}
	return positions, args.Error(1)
}

type AdapterMock struct {
	mock.Mock
}

func (m *AdapterMock) CreateGroup(ctx context.Context, name string) (platform.Group, error) {
	args := m.Called(ctx, name)
	var group platform.Group
	if val := args.Get(0); val != nil {
		group = val.(platform.Group)
	}
	return group, args.Error(1)
}

func (m *AdapterMock) RegisterConnector(ctx context.Context, groupID string, callbackURL string) (platform.Connector, error) {
	args := m.Called(ctx, groupID, callbackURL)
	var connector platform.Connector
	if val := args.Get(0); val != nil {
		connector = val.(platform.Connector)
	}
	return connector, args.Error(1)
}

func (m *AdapterMock) PostMessage(ctx context.Context, mapping models.ChannelMapping, text string) error {
	args := m.Called(ctx, mapping, text)
	return args.Error(0)
}

func (m *AdapterMock) DestroyConnector(ctx context.Context, botID string) error {
	args := m.Called(ctx, botID)
	return args.Error(0)
}

func (m *AdapterMock) ArchiveGroup(ctx context.Context, groupID string) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) BroadcastMessageReceived(eventID int, msg models.ChatMessage) {
	m.Called(eventID, msg)
}

func (m *BroadcasterMock) BroadcastChannelCreated(eventID int, ch models.Channel) {
	m.Called(eventID, ch)
}

func (m *BroadcasterMock) BroadcastChannelArchived(eventID int, ch models.Channel) {
	m.Called(eventID, ch)
}

func (m *BroadcasterMock) BroadcastChannelRestored(eventID int, ch models.Channel) {
	m.Called(eventID, ch)
}

func (m *BroadcasterMock) BroadcastChannelDeleted(eventID int, ch models.Channel) {
	m.Called(eventID, ch)
}

func (m *BroadcasterMock) BroadcastExternalConnected(eventID int, mapping models.ChannelMapping) {
	m.Called(eventID, mapping)
}

func (m *BroadcasterMock) BroadcastExternalDisconnected(eventID int, mapping models.ChannelMapping) {
	m.Called(eventID, mapping)
}

var _ repositories.ChannelRepository = (*ChannelRepositoryMock)(nil)
var _ repositories.MappingRepository = (*MappingRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.EventRepository = (*EventRepositoryMock)(nil)
var _ repositories.PositionRepository = (*PositionRepositoryMock)(nil)
var _ platform.Adapter = (*AdapterMock)(nil)
