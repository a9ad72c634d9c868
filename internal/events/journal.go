package events

import (
	"context"
	"fmt"

	"github.com/localnerve/benchtop/internal/models"
	"gorm.io/gorm"
)

// Journal persists every published event to entity_events
type Journal struct {
	db *gorm.DB
}

// NewJournal creates a journal writing through db
func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// Record stores ev with the number of handlers that failed on it
func (j *Journal) Record(ctx context.Context, ev Event, failures int) error {
	row := models.EntityEvent{
		ID:              ev.ID.String(),
		Type:            string(ev.Type),
		Kind:            string(ev.Kind),
		EntityID:        ev.EntityID,
		HandlerFailures: failures,
		CreatedAt:       ev.OccurredAt,
	}

	var err error
	if len(ev.Changed) > 0 {
		if row.ChangedFields, err = models.NewJSON(ev.Changed); err != nil {
			return fmt.Errorf("encode changed fields: %w", err)
		}
	}
	if ev.Before != nil {
		if row.BeforeSnapshot, err = models.NewJSON(ev.Before); err != nil {
			return fmt.Errorf("encode before snapshot: %w", err)
		}
	}
	if ev.Type == Created || ev.Type == Updated {
		if row.AfterSnapshot, err = models.NewJSON(ev.After); err != nil {
			return fmt.Errorf("encode after snapshot: %w", err)
		}
	}

	return j.db.WithContext(ctx).Create(&row).Error
}

// List returns the recorded events of one entity, oldest first
func (j *Journal) List(ctx context.Context, kind models.Kind, id uint) ([]models.EntityEvent, error) {
	var rows []models.EntityEvent
	err := j.db.WithContext(ctx).
		Where("kind = ? AND entity_id = ?", string(kind), id).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
