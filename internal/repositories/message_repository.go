package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bridge-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")

	// ErrDuplicateMessage reports that a message with the same external id
	// already exists on the channel. Raised by the unique index, which is
	// what actually closes the concurrent-delivery race.
	ErrDuplicateMessage = errors.New("duplicate external message")
)

const messageColumns = `id, channel_id, message, sender_display_name, is_active,
    external_message_id, external_platform, created_by, created_at`

// MessageRepository abstracts chat message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	ListChannelMessages(ctx context.Context, channelID int) ([]models.ChatMessage, error)
	ExternalMessageExists(ctx context.Context, channelID int, platform models.Platform, externalMessageID string) (bool, error)
	ArchiveMessage(ctx context.Context, messageID int) error
	ArchiveAll(ctx context.Context, channelID int) (int64, error)
	ArchiveOlderThan(ctx context.Context, channelID int, days int) (int64, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message. Returns ErrDuplicateMessage when the
// external-id unique index rejects the insert.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	var out models.ChatMessage
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_messages
        (channel_id, message, sender_display_name, external_message_id, external_platform, created_by)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING `+messageColumns,
		msg.ChannelID, msg.Message, msg.SenderDisplayName, msg.ExternalMessageID, msg.ExternalPlatform, msg.CreatedBy).
		StructScan(&out)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.ChatMessage{}, ErrDuplicateMessage
		}
		return models.ChatMessage{}, err
	}
	return out, nil
}

// ListChannelMessages returns active messages in chronological order.
func (r *MessageRepo) ListChannelMessages(ctx context.Context, channelID int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM chat_messages WHERE channel_id=$1 AND is_active ORDER BY created_at ASC`,
		channelID)
	return msgs, err
}

// ExternalMessageExists checks the dedup key ahead of insert. The unique
// index remains the authoritative guard.
func (r *MessageRepo) ExternalMessageExists(ctx context.Context, channelID int, platform models.Platform, externalMessageID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_messages WHERE channel_id=$1 AND external_platform=$2 AND external_message_id=$3)`,
		channelID, platform, externalMessageID)
	return exists, err
}

// ArchiveMessage soft-deletes one message.
func (r *MessageRepo) ArchiveMessage(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET is_active=FALSE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ArchiveAll soft-deletes every active message on a channel.
func (r *MessageRepo) ArchiveAll(ctx context.Context, channelID int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_messages SET is_active=FALSE WHERE channel_id=$1 AND is_active`, channelID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ArchiveOlderThan soft-deletes active messages older than the day threshold.
func (r *MessageRepo) ArchiveOlderThan(ctx context.Context, channelID int, days int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_messages SET is_active=FALSE
         WHERE channel_id=$1 AND is_active AND created_at < NOW() - ($2 * INTERVAL '1 day')`,
		channelID, days)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
