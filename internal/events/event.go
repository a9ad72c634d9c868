// Package events publishes entity lifecycle events after their mutation
// commits. Handlers are registered explicitly on a Bus by kind and type.
package events

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/benchtop/internal/models"
)

// Type is the lifecycle step an event reports
type Type string

const (
	Created      Type = "created"
	Updated      Type = "updated"
	Deleting     Type = "deleting"
	Deleted      Type = "deleted"
	ForceDeleted Type = "force_deleted"
)

// Event describes one committed mutation. Before is a detached snapshot
// taken ahead of the mutation, After is the live entity.
type Event struct {
	ID         uuid.UUID
	Type       Type
	Kind       models.Kind
	EntityID   uint
	Before     models.Entity
	After      models.Entity
	Changed    []string
	OccurredAt time.Time
}

func newEvent(typ Type, before, after models.Entity) Event {
	ev := Event{
		ID:         uuid.New(),
		Type:       typ,
		Before:     before,
		After:      after,
		OccurredAt: time.Now().UTC(),
	}
	if e := ev.Entity(); e != nil {
		ev.Kind = e.EntityKind()
		ev.EntityID = e.EntityID()
	}
	return ev
}

// Entity returns After, or Before when After is absent
func (e Event) Entity() models.Entity {
	if e.After != nil && !reflect.ValueOf(e.After).IsNil() {
		return e.After
	}
	return e.Before
}

// Changes reports whether any of the columns changed
func (e Event) Changes(columns ...string) bool {
	for _, column := range columns {
		if slices.Contains(e.Changed, column) {
			return true
		}
	}
	return false
}

// snapshot deep copies entity through its JSON form so later writes to the
// live entity cannot reach the copy
func snapshot(entity models.Entity) (models.Entity, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", entity.EntityKind(), err)
	}
	cp := reflect.New(reflect.TypeOf(entity).Elem()).Interface()
	if err := json.Unmarshal(raw, cp); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", entity.EntityKind(), err)
	}
	return cp.(models.Entity), nil
}
