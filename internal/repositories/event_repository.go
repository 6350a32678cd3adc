package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"bridge-service/internal/models"
)

var ErrEventNotFound = errors.New("event not found")

// EventRepository exposes the event anchor rows the bridge needs.
type EventRepository interface {
	GetEvent(ctx context.Context, eventID int) (models.Event, error)
}

// PositionRepository lists the organizational positions that position
// channels are generated from.
type PositionRepository interface {
	ListActivePositions(ctx context.Context) ([]models.Position, error)
}

// EventRepo is a sqlx implementation of EventRepository.
type EventRepo struct {
	db *sqlx.DB
}

// NewEventRepo constructs an EventRepo.
func NewEventRepo(db *sqlx.DB) *EventRepo {
	return &EventRepo{db: db}
}

// GetEvent fetches a single event.
func (r *EventRepo) GetEvent(ctx context.Context, eventID int) (models.Event, error) {
	var event models.Event
	err := r.db.GetContext(ctx, &event, `SELECT id, name, created_at FROM events WHERE id=$1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, ErrEventNotFound
	}
	return event, err
}

// PositionRepo is a sqlx implementation of PositionRepository.
type PositionRepo struct {
	db *sqlx.DB
}

// NewPositionRepo constructs a PositionRepo.
func NewPositionRepo(db *sqlx.DB) *PositionRepo {
	return &PositionRepo{db: db}
}

// ListActivePositions returns active positions in sort order.
func (r *PositionRepo) ListActivePositions(ctx context.Context) ([]models.Position, error) {
	var positions []models.Position
	err := r.db.SelectContext(ctx, &positions,
		`SELECT id, name, icon_name, color, sort_order, is_active FROM positions WHERE is_active ORDER BY sort_order ASC`)
	return positions, err
}
