package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/localnerve/benchtop/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Store is the mutation path for entities whose lifecycle is observed.
// Every write commits first and publishes afterwards.
type Store struct {
	db  *gorm.DB
	bus *Bus
}

// NewStore creates a store writing through db and publishing on bus
func NewStore(db *gorm.DB, bus *Bus) *Store {
	return &Store{db: db, bus: bus}
}

// DB returns the underlying connection for reads
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Bus returns the bus events are published on
func (s *Store) Bus() *Bus {
	return s.bus
}

// Create inserts entity and publishes created
func (s *Store) Create(ctx context.Context, entity models.Entity) error {
	if err := s.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create %s: %w", entity.EntityKind(), err)
	}
	_ = s.bus.Publish(ctx, newEvent(Created, nil, entity))
	return nil
}

// Update writes columns (keyed by field or column name) into entity and
// publishes updated with the set of columns whose value actually changed.
// Nothing is published when no value changed.
func (s *Store) Update(ctx context.Context, entity models.Entity, columns map[string]any) error {
	before, err := snapshot(entity)
	if err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(entity).Updates(columns).Error; err != nil {
			return err
		}
		return tx.First(entity, entity.EntityID()).Error
	})
	if err != nil {
		return fmt.Errorf("update %s %d: %w", entity.EntityKind(), entity.EntityID(), err)
	}

	changed, err := changedColumns(db, before, entity)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	ev := newEvent(Updated, before, entity)
	ev.Changed = changed
	_ = s.bus.Publish(ctx, ev)
	return nil
}

// Delete removes entity, softly when the model supports it. A failing
// deleting handler vetoes the delete.
func (s *Store) Delete(ctx context.Context, entity models.Entity) error {
	return s.remove(ctx, entity, false)
}

// ForceDelete removes entity permanently, bypassing soft delete
func (s *Store) ForceDelete(ctx context.Context, entity models.Entity) error {
	return s.remove(ctx, entity, true)
}

func (s *Store) remove(ctx context.Context, entity models.Entity, force bool) error {
	before, err := snapshot(entity)
	if err != nil {
		return err
	}

	if err := s.bus.Publish(ctx, newEvent(Deleting, before, entity)); err != nil {
		return fmt.Errorf("delete %s %d vetoed: %w", entity.EntityKind(), entity.EntityID(), err)
	}

	db := s.db.WithContext(ctx)
	typ := Deleted
	if force {
		db = db.Unscoped()
		typ = ForceDeleted
	}
	if err := db.Delete(entity).Error; err != nil {
		return fmt.Errorf("delete %s %d: %w", entity.EntityKind(), entity.EntityID(), err)
	}

	_ = s.bus.Publish(ctx, newEvent(typ, before, entity))
	return nil
}

// changedColumns lists the column names whose values differ between the
// two copies of the same model
func changedColumns(db *gorm.DB, before, after models.Entity) ([]string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(after); err != nil {
		return nil, fmt.Errorf("parse %s schema: %w", after.EntityKind(), err)
	}

	ctx := context.Background()
	bv := reflect.Indirect(reflect.ValueOf(before))
	av := reflect.Indirect(reflect.ValueOf(after))

	var changed []string
	for _, field := range stmt.Schema.Fields {
		if field.DBName == "" || field.AutoUpdateTime > 0 {
			continue
		}
		oldValue, _ := field.ValueOf(ctx, bv)
		newValue, _ := field.ValueOf(ctx, av)
		if !sameValue(oldValue, newValue) {
			changed = append(changed, field.DBName)
		}
	}
	return changed, nil
}

func sameValue(a, b any) bool {
	switch av := a.(type) {
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		return ok && av.Equal(bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case *time.Time:
		bv, ok := b.(*time.Time)
		if !ok || av == nil || bv == nil {
			return ok && av == nil && bv == nil
		}
		return av.Equal(*bv)
	case gorm.DeletedAt:
		bv, ok := b.(gorm.DeletedAt)
		return ok && av.Valid == bv.Valid && (!av.Valid || av.Time.Equal(bv.Time))
	case models.JSON:
		bv, ok := b.(models.JSON)
		return ok && sameJSON(av.JSON, bv.JSON)
	}
	return reflect.DeepEqual(a, b)
}

func sameJSON(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
