package models

import "time"

// EntityEvent is the persisted journal of every lifecycle event
type EntityEvent struct {
	ID              string `gorm:"primaryKey;size:36"`
	Type            string `gorm:"size:32;not null;index"`
	Kind            string `gorm:"size:64;not null;index:idx_entity_events_entity"`
	EntityID        uint   `gorm:"not null;index:idx_entity_events_entity"`
	ChangedFields   JSON
	BeforeSnapshot  JSON
	AfterSnapshot   JSON
	HandlerFailures int `gorm:"not null;default:0"`
	CreatedAt       time.Time
}

func (EntityEvent) TableName() string { return "entity_events" }
