package app

import (
	"context"
	"fmt"

	"github.com/localnerve/benchtop/internal/events"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/sirupsen/logrus"
)

// registerAllocationHandlers keeps stock reservations in step with BOM
// items. Deleting handlers run before the row goes away and veto the delete
// when stock could not be returned.
func registerAllocationHandlers(bus *events.Bus, allocation *services.AllocationService, logger logrus.FieldLogger) {
	bus.Subscribe(models.KindBomItem, events.Created, "allocation.created", func(ctx context.Context, ev events.Event) error {
		item, ok := ev.Entity().(*models.ProjectBomItem)
		if !ok || item.ComponentID == nil {
			return nil
		}
		return allocateItem(ctx, allocation, logger, item)
	})

	bus.Subscribe(models.KindBomItem, events.Updated, "allocation.updated", func(ctx context.Context, ev events.Event) error {
		if !ev.Changes("component_id", "quantity") {
			return nil
		}
		item, ok := ev.Entity().(*models.ProjectBomItem)
		if !ok {
			return nil
		}
		if _, err := allocation.DeallocateBomItem(ctx, item.ID); err != nil {
			return err
		}
		if item.ComponentID == nil {
			return nil
		}
		return allocateItem(ctx, allocation, logger, item)
	})

	bus.Subscribe(models.KindBomItem, events.Deleting, "allocation.deleting", func(ctx context.Context, ev events.Event) error {
		_, err := allocation.DeallocateBomItem(ctx, ev.EntityID)
		return err
	})

	bus.Subscribe(models.KindBom, events.Deleting, "allocation.bom_deleting", func(ctx context.Context, ev events.Event) error {
		summary, err := allocation.DeallocateBom(ctx, ev.EntityID)
		if err != nil {
			return err
		}
		if summary.Errors > 0 {
			return fmt.Errorf("bom %d: %d lines still reserved", ev.EntityID, summary.Errors)
		}
		return nil
	})
}

func allocateItem(ctx context.Context, allocation *services.AllocationService, logger logrus.FieldLogger, item *models.ProjectBomItem) error {
	boards, err := allocation.BoardsCountFor(ctx, item.BomID)
	if err != nil {
		return err
	}
	result, err := allocation.AllocateBomItem(ctx, item.ID, boards)
	if err != nil {
		return err
	}
	if !result.Success {
		logger.WithFields(logrus.Fields{
			"itemId":    item.ID,
			"reference": item.Reference,
			"reason":    result.Reason,
		}).Warn(result.Message)
	}
	return nil
}
