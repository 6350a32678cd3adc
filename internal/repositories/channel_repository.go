package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"bridge-service/internal/models"
)

var ErrChannelNotFound = errors.New("channel not found")

const channelColumns = `id, event_id, name, description, channel_type, display_order, lifecycle,
    is_default_event_thread, position_id, external_mapping_id, icon_name, color, created_by, created_at`

// ChannelUpdate carries patch fields; nil means leave unchanged.
type ChannelUpdate struct {
	Name        *string
	Description *string
	IconName    *string
	Color       *string
}

// ChannelRepository abstracts channel persistence.
type ChannelRepository interface {
	GetChannel(ctx context.Context, channelID int) (models.Channel, error)
	ListActive(ctx context.Context, eventID int) ([]models.ChannelSummary, error)
	Insert(ctx context.Context, ch models.Channel) (models.Channel, error)
	MaxDisplayOrder(ctx context.Context, eventID int) (int, error)
	UpdateFields(ctx context.Context, channelID int, update ChannelUpdate) error
	SetLifecycle(ctx context.Context, channelID int, lc models.Lifecycle) error
	SetDisplayOrder(ctx context.Context, channelID int, order int) error
	Reorder(ctx context.Context, eventID int, orderedIDs []int) error
	MarkPurged(ctx context.Context, channelID int, name string, description string) error
	SetExternalMapping(ctx context.Context, channelID int, mappingID int) error
	ExistsByType(ctx context.Context, eventID int, channelType models.ChannelType) (bool, error)
	ExistsPositionChannel(ctx context.Context, eventID int, positionID int) (bool, error)
}

// ChannelRepo is a sqlx implementation of ChannelRepository.
type ChannelRepo struct {
	db *sqlx.DB
}

// NewChannelRepo constructs a ChannelRepo.
func NewChannelRepo(db *sqlx.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

// GetChannel fetches a single channel regardless of lifecycle.
func (r *ChannelRepo) GetChannel(ctx context.Context, channelID int) (models.Channel, error) {
	var ch models.Channel
	err := r.db.GetContext(ctx, &ch, `SELECT `+channelColumns+` FROM channels WHERE id=$1`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Channel{}, ErrChannelNotFound
	}
	return ch, err
}

// ListActive returns active channels for an event ordered by display order,
// each annotated with its message count and last-message summary. One
// aggregate lateral join, never a per-message scan.
func (r *ChannelRepo) ListActive(ctx context.Context, eventID int) ([]models.ChannelSummary, error) {
	query := `SELECT c.id, c.event_id, c.name, c.description, c.channel_type, c.display_order, c.lifecycle,
            c.is_default_event_thread, c.position_id, c.external_mapping_id, c.icon_name, c.color,
            c.created_by, c.created_at,
            COALESCE(agg.message_count, 0) AS message_count,
            last_msg.sender_display_name AS last_message_sender,
            last_msg.created_at AS last_message_at
        FROM channels c
        LEFT JOIN LATERAL (
            SELECT COUNT(*) AS message_count FROM chat_messages m
            WHERE m.channel_id = c.id AND m.is_active
        ) agg ON TRUE
        LEFT JOIN LATERAL (
            SELECT m.sender_display_name, m.created_at FROM chat_messages m
            WHERE m.channel_id = c.id AND m.is_active
            ORDER BY m.created_at DESC LIMIT 1
        ) last_msg ON TRUE
        WHERE c.event_id=$1 AND c.lifecycle='active'
        ORDER BY c.display_order ASC`
	var channels []models.ChannelSummary
	err := r.db.SelectContext(ctx, &channels, query, eventID)
	return channels, err
}

// Insert stores a new channel.
func (r *ChannelRepo) Insert(ctx context.Context, ch models.Channel) (models.Channel, error) {
	var out models.Channel
	err := r.db.QueryRowxContext(ctx, `INSERT INTO channels
        (event_id, name, description, channel_type, display_order, lifecycle, is_default_event_thread,
         position_id, external_mapping_id, icon_name, color, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING `+channelColumns,
		ch.EventID, ch.Name, ch.Description, ch.ChannelType, ch.DisplayOrder, models.LifecycleActive,
		ch.IsDefaultEventThread, ch.PositionID, ch.ExternalMappingID, ch.IconName, ch.Color, ch.CreatedBy).
		StructScan(&out)
	return out, err
}

// MaxDisplayOrder returns the highest display order among active channels,
// or -1 when the event has none.
func (r *ChannelRepo) MaxDisplayOrder(ctx context.Context, eventID int) (int, error) {
	var max int
	err := r.db.GetContext(ctx, &max,
		`SELECT COALESCE(MAX(display_order), -1) FROM channels WHERE event_id=$1 AND lifecycle='active'`, eventID)
	return max, err
}

// UpdateFields applies patch semantics to an active channel.
func (r *ChannelRepo) UpdateFields(ctx context.Context, channelID int, update ChannelUpdate) error {
	res, err := r.db.ExecContext(ctx, `UPDATE channels SET
        name = COALESCE($2, name),
        description = COALESCE($3, description),
        icon_name = COALESCE($4, icon_name),
        color = COALESCE($5, color)
        WHERE id=$1 AND lifecycle='active'`,
		channelID, update.Name, update.Description, update.IconName, update.Color)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// SetLifecycle flips the channel lifecycle state.
func (r *ChannelRepo) SetLifecycle(ctx context.Context, channelID int, lc models.Lifecycle) error {
	res, err := r.db.ExecContext(ctx, `UPDATE channels SET lifecycle=$2 WHERE id=$1`, channelID, lc)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// SetDisplayOrder updates a single channel's display order.
func (r *ChannelRepo) SetDisplayOrder(ctx context.Context, channelID int, order int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE channels SET display_order=$2 WHERE id=$1`, channelID, order)
	return err
}

// Reorder reassigns display orders to match the given id order, 0-indexed,
// atomically.
func (r *ChannelRepo) Reorder(ctx context.Context, eventID int, orderedIDs []int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for i, id := range orderedIDs {
		if _, err = tx.ExecContext(ctx,
			`UPDATE channels SET display_order=$3 WHERE id=$1 AND event_id=$2`, id, eventID, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MarkPurged tags a channel purged and rewrites its name and description.
// The row stays queryable so historical messages keep their parent.
func (r *ChannelRepo) MarkPurged(ctx context.Context, channelID int, name string, description string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE channels SET lifecycle='purged', name=$2, description=$3 WHERE id=$1`,
		channelID, name, description)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// SetExternalMapping links a channel to its external mapping row.
func (r *ChannelRepo) SetExternalMapping(ctx context.Context, channelID int, mappingID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE channels SET external_mapping_id=$2 WHERE id=$1`, channelID, mappingID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// ExistsByType reports whether the event already has a channel of the given
// type in any lifecycle state.
func (r *ChannelRepo) ExistsByType(ctx context.Context, eventID int, channelType models.ChannelType) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM channels WHERE event_id=$1 AND channel_type=$2)`, eventID, channelType)
	return exists, err
}

// ExistsPositionChannel reports whether the event already has a channel tied
// to the position.
func (r *ChannelRepo) ExistsPositionChannel(ctx context.Context, eventID int, positionID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM channels WHERE event_id=$1 AND position_id=$2)`, eventID, positionID)
	return exists, err
}
