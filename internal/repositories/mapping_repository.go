package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"bridge-service/internal/models"
)

var ErrMappingNotFound = errors.New("channel mapping not found")

const mappingColumns = `id, event_id, channel_id, platform, external_group_id, external_group_name,
    bot_id, webhook_secret, share_url, is_active, conversation_ref, tenant_id, last_activity_at,
    installed_by_name, is_emulator, created_by, created_at, last_modified_by, last_modified_at`

// MappingRepository abstracts external channel mapping persistence.
type MappingRepository interface {
	GetMapping(ctx context.Context, mappingID int) (models.ChannelMapping, error)
	ListActiveForEvent(ctx context.Context, eventID int) ([]models.ChannelMapping, error)
	FindByGroup(ctx context.Context, platform models.Platform, externalGroupID string) (models.ChannelMapping, error)
	Insert(ctx context.Context, m models.ChannelMapping) (models.ChannelMapping, error)
	Reactivate(ctx context.Context, mappingID int, eventID int, channelID int, groupName string, modifiedBy string) error
	Deactivate(ctx context.Context, mappingID int, modifiedBy string) error
	SetConnector(ctx context.Context, mappingID int, botID string, conversationRef []byte, tenantID *string) error
	TouchActivity(ctx context.Context, mappingID int) error
	DeactivateEmulators(ctx context.Context, eventID int, modifiedBy string) (int64, error)
}

// MappingRepo is a sqlx implementation of MappingRepository.
type MappingRepo struct {
	db *sqlx.DB
}

// NewMappingRepo constructs a MappingRepo.
func NewMappingRepo(db *sqlx.DB) *MappingRepo {
	return &MappingRepo{db: db}
}

// GetMapping fetches a single mapping regardless of active state.
func (r *MappingRepo) GetMapping(ctx context.Context, mappingID int) (models.ChannelMapping, error) {
	var m models.ChannelMapping
	err := r.db.GetContext(ctx, &m, `SELECT `+mappingColumns+` FROM channel_mappings WHERE id=$1`, mappingID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChannelMapping{}, ErrMappingNotFound
	}
	return m, err
}

// ListActiveForEvent returns active mappings for an event.
func (r *MappingRepo) ListActiveForEvent(ctx context.Context, eventID int) ([]models.ChannelMapping, error) {
	var mappings []models.ChannelMapping
	err := r.db.SelectContext(ctx, &mappings,
		`SELECT `+mappingColumns+` FROM channel_mappings WHERE event_id=$1 AND is_active ORDER BY created_at ASC`,
		eventID)
	return mappings, err
}

// FindByGroup locates the most recent mapping for a platform group,
// active or not. Used to reactivate instead of creating duplicates.
func (r *MappingRepo) FindByGroup(ctx context.Context, platform models.Platform, externalGroupID string) (models.ChannelMapping, error) {
	var m models.ChannelMapping
	err := r.db.GetContext(ctx, &m,
		`SELECT `+mappingColumns+` FROM channel_mappings
         WHERE platform=$1 AND external_group_id=$2
         ORDER BY created_at DESC LIMIT 1`,
		platform, externalGroupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChannelMapping{}, ErrMappingNotFound
	}
	return m, err
}

// Insert stores a new mapping.
func (r *MappingRepo) Insert(ctx context.Context, m models.ChannelMapping) (models.ChannelMapping, error) {
	var out models.ChannelMapping
	err := r.db.QueryRowxContext(ctx, `INSERT INTO channel_mappings
        (event_id, channel_id, platform, external_group_id, external_group_name, bot_id, webhook_secret,
         share_url, is_active, conversation_ref, tenant_id, installed_by_name, is_emulator, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, $11, $12, $13)
        RETURNING `+mappingColumns,
		m.EventID, m.ChannelID, m.Platform, m.ExternalGroupID, m.ExternalGroupName, m.BotID, m.WebhookSecret,
		m.ShareURL, m.ConversationRef, m.TenantID, m.InstalledByName, m.IsEmulator, m.CreatedBy).
		StructScan(&out)
	return out, err
}

// Reactivate flips an inactive mapping back on and re-points it at the event
// and channel requesting the reconnect.
func (r *MappingRepo) Reactivate(ctx context.Context, mappingID int, eventID int, channelID int, groupName string, modifiedBy string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE channel_mappings SET
        is_active=TRUE, event_id=$2, channel_id=$3, external_group_name=$4,
        last_modified_by=$5, last_modified_at=NOW()
        WHERE id=$1`,
		mappingID, eventID, channelID, groupName, modifiedBy)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMappingNotFound
	}
	return nil
}

// Deactivate soft-disconnects a mapping.
func (r *MappingRepo) Deactivate(ctx context.Context, mappingID int, modifiedBy string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE channel_mappings SET is_active=FALSE, last_modified_by=$2, last_modified_at=NOW() WHERE id=$1`,
		mappingID, modifiedBy)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMappingNotFound
	}
	return nil
}

// SetConnector records the platform-side bot registration made after the
// mapping row existed (the webhook callback URL embeds the mapping id).
func (r *MappingRepo) SetConnector(ctx context.Context, mappingID int, botID string, conversationRef []byte, tenantID *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE channel_mappings SET bot_id=$2, conversation_ref=$3, tenant_id=$4 WHERE id=$1`,
		mappingID, botID, conversationRef, tenantID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMappingNotFound
	}
	return nil
}

// TouchActivity stamps the mapping's last inbound activity time.
func (r *MappingRepo) TouchActivity(ctx context.Context, mappingID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE channel_mappings SET last_activity_at=NOW() WHERE id=$1`, mappingID)
	return err
}

// DeactivateEmulators disconnects emulator/dev mappings for an event and
// returns how many were flipped. Emulator installs that never got linked to
// an event are swept too.
func (r *MappingRepo) DeactivateEmulators(ctx context.Context, eventID int, modifiedBy string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE channel_mappings SET
        is_active=FALSE, last_modified_by=$2, last_modified_at=NOW()
        WHERE (event_id=$1 OR event_id IS NULL) AND is_emulator AND is_active`,
		eventID, modifiedBy)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
