// allocation.go
//
// Workshop BOM allocation and document sync service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of benchtop.
// benchtop is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// benchtop is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with benchtop.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/locking"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Outcome of allocating one BOM line
const (
	ReasonAllocated         = "allocated"
	ReasonAlreadyAllocated  = "already_allocated"
	ReasonNoComponent       = "no_component"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonError             = "error"
)

// ItemResult is the outcome of allocating one BOM item
type ItemResult struct {
	ItemID    uint   `json:"item_id"`
	Reference string `json:"reference"`
	Success   bool   `json:"success"`
	Quantity  int    `json:"quantity,omitempty"`
	Reason    string `json:"reason"`
	Message   string `json:"message,omitempty"`
	Component string `json:"component,omitempty"`
	Available int    `json:"available,omitempty"`
}

// InsufficientLine describes a line skipped for lack of stock
type InsufficientLine struct {
	Reference string `json:"reference"`
	Component string `json:"component"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// ItemFailure is a line that failed for an unexpected reason
type ItemFailure struct {
	ItemID    uint   `json:"item_id"`
	Reference string `json:"reference"`
	Error     string `json:"error"`
}

// AllocationSummary reduces the outcome of a whole BOM allocation
type AllocationSummary struct {
	BomID             uint               `json:"bom_id"`
	BoardsCount       int                `json:"boards_count"`
	Allocated         int                `json:"allocated"`
	AlreadyAllocated  int                `json:"already_allocated"`
	InsufficientStock int                `json:"insufficient_stock"`
	NoComponent       int                `json:"no_component"`
	Errors            int                `json:"errors"`
	TotalItems        int                `json:"total_items"`
	Status            string             `json:"status"`
	Insufficient      []InsufficientLine `json:"insufficient,omitempty"`
	Failures          []ItemFailure      `json:"failures,omitempty"`
}

// AllocationService reserves component stock for BOM items
type AllocationService struct {
	DB     *gorm.DB
	Locker locking.Locker
	Logger logrus.FieldLogger

	// DefaultBoards is used when a project has no usable board count
	DefaultBoards int
	// LockTTL bounds how long a batch may hold its BOM lock
	LockTTL time.Duration
}

// NewAllocationService creates the service with in-process defaults
func NewAllocationService(db *gorm.DB, locker locking.Locker, logger logrus.FieldLogger) *AllocationService {
	return &AllocationService{
		DB:            db,
		Locker:        locker,
		Logger:        logger,
		DefaultBoards: 1,
		LockTTL:       5 * time.Minute,
	}
}

// BomLockKey names the lock held while a BOM is allocated in batch
func BomLockKey(bomID uint) string {
	return fmt.Sprintf("bom:%d", bomID)
}

// BoardsCountFor returns the board count of the project owning bomID
func (s *AllocationService) BoardsCountFor(ctx context.Context, bomID uint) (int, error) {
	var bom models.ProjectBom
	err := s.DB.WithContext(ctx).Preload("Project").First(&bom, bomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("bom %d: %w", bomID, ErrNotFound)
		}
		return 0, err
	}
	if bom.Project != nil && bom.Project.BoardsCount >= 1 {
		return bom.Project.BoardsCount, nil
	}
	return max(s.DefaultBoards, 1), nil
}

// AllocateBom reserves stock for every line of a BOM. Lines are independent,
// a line that cannot be reserved is reported and the batch goes on.
func (s *AllocationService) AllocateBom(ctx context.Context, bomID uint, boardsCount int) (*AllocationSummary, error) {
	if boardsCount < 1 {
		return nil, ErrInvalidBoardsCount
	}

	var bom models.ProjectBom
	if err := s.DB.WithContext(ctx).Preload("Project").First(&bom, bomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bom %d: %w", bomID, ErrNotFound)
		}
		return nil, err
	}

	summary := &AllocationSummary{BomID: bomID, BoardsCount: boardsCount}
	err := locking.WithLock(ctx, s.Locker, BomLockKey(bomID), s.LockTTL, func(ctx context.Context) error {
		var items []models.ProjectBomItem
		if err := s.DB.WithContext(ctx).Where("bom_id = ?", bomID).Order("id").Find(&items).Error; err != nil {
			return err
		}
		summary.TotalItems = len(items)

		for i := range items {
			result := s.allocateItem(ctx, &items[i], bom.ProjectID, boardsCount)
			summary.add(result)
		}

		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return RefreshBomStatus(tx, bomID)
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.DB.WithContext(ctx).Model(&models.ProjectBom{}).Where("id = ?", bomID).Pluck("status", &summary.Status).Error; err != nil {
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"bomId":             bomID,
		"boards":            boardsCount,
		"allocated":         summary.Allocated,
		"alreadyAllocated":  summary.AlreadyAllocated,
		"insufficientStock": summary.InsufficientStock,
		"noComponent":       summary.NoComponent,
		"errors":            summary.Errors,
	}).Info("BOM allocation finished")

	return summary, nil
}

func (summary *AllocationSummary) add(result ItemResult) {
	switch result.Reason {
	case ReasonAllocated:
		summary.Allocated++
	case ReasonAlreadyAllocated:
		summary.AlreadyAllocated++
	case ReasonNoComponent:
		summary.NoComponent++
	case ReasonInsufficientStock:
		summary.InsufficientStock++
		summary.Insufficient = append(summary.Insufficient, InsufficientLine{
			Reference: result.Reference,
			Component: result.Component,
			Required:  result.Quantity,
			Available: result.Available,
		})
	default:
		summary.Errors++
		summary.Failures = append(summary.Failures, ItemFailure{
			ItemID:    result.ItemID,
			Reference: result.Reference,
			Error:     result.Message,
		})
	}
}

// AllocateBomItem reserves stock for a single line
func (s *AllocationService) AllocateBomItem(ctx context.Context, itemID uint, boardsCount int) (*ItemResult, error) {
	if boardsCount < 1 {
		return nil, ErrInvalidBoardsCount
	}

	var item models.ProjectBomItem
	if err := s.DB.WithContext(ctx).Preload("Bom").First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bom item %d: %w", itemID, ErrNotFound)
		}
		return nil, err
	}
	if item.Bom == nil {
		return nil, fmt.Errorf("bom %d: %w", item.BomID, ErrNotFound)
	}

	result := s.allocateItem(ctx, &item, item.Bom.ProjectID, boardsCount)
	return &result, nil
}

// allocateItem runs the reservation of one line in its own transaction:
// conditional stock decrement, conditional claim of the line, allocation
// upsert, BOM status refresh. Any failing step rolls back the whole line.
func (s *AllocationService) allocateItem(ctx context.Context, item *models.ProjectBomItem, projectID uint, boardsCount int) ItemResult {
	result := ItemResult{ItemID: item.ID, Reference: item.Reference}

	if item.ComponentID == nil {
		result.Reason = ReasonNoComponent
		result.Message = ErrNoComponent.Error()
		return result
	}
	if item.Allocated {
		result.Reason = ReasonAlreadyAllocated
		result.Message = ErrAlreadyAllocated.Error()
		return result
	}

	qty := item.Quantity * boardsCount
	result.Quantity = qty
	if qty < 1 {
		result.Reason = ReasonError
		result.Message = ErrInvalidQuantity.Error()
		return result
	}

	var component models.Component
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&component, *item.ComponentID).Error; err != nil {
			return fmt.Errorf("component %d: %w", *item.ComponentID, err)
		}

		res := tx.Model(&models.Component{}).
			Where("id = ? AND stock_quantity >= ?", component.ID, qty).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var available int
			if err := tx.Model(&models.Component{}).Where("id = ?", component.ID).Pluck("stock_quantity", &available).Error; err != nil {
				return err
			}
			return &StockError{Component: component.SKU, Required: qty, Available: available}
		}

		now := time.Now().UTC()
		claim := tx.Model(&models.ProjectBomItem{}).
			Where("id = ? AND allocated = ?", item.ID, false).
			UpdateColumns(map[string]any{
				"allocated":          true,
				"allocated_quantity": qty,
				"actual_unit_cost":   component.UnitPrice,
				"costs_updated_at":   now,
				"updated_at":         now,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return ErrAlreadyAllocated
		}

		if err := recordAllocation(tx, item.ID, projectID, &component, qty, now); err != nil {
			return err
		}
		return RefreshBomStatus(tx, item.BomID)
	})

	var stockErr *StockError
	switch {
	case err == nil:
		item.Allocated = true
		item.AllocatedQuantity = qty
		item.ActualUnitCost = component.UnitPrice
		result.Success = true
		result.Reason = ReasonAllocated
		result.Component = component.SKU
	case errors.As(err, &stockErr):
		result.Reason = ReasonInsufficientStock
		result.Component = stockErr.Component
		result.Available = stockErr.Available
		result.Message = fmt.Sprintf("%s: %s requires %d, %d available", err, stockErr.Component, stockErr.Required, stockErr.Available)
	case errors.Is(err, ErrAlreadyAllocated):
		result.Reason = ReasonAlreadyAllocated
		result.Message = err.Error()
	default:
		result.Reason = ReasonError
		result.Message = err.Error()
		config.LogError(s.Logger, "services", "allocateItem", "allocate", logrus.Fields{
			"itemId":    item.ID,
			"reference": item.Reference,
		}, err)
	}
	return result
}

// recordAllocation writes a fresh reservation for a line that was just
// claimed. Rows left by earlier, partly used reservations stay untouched so
// consumed units keep the price they were reserved at.
func recordAllocation(tx *gorm.DB, itemID, projectID uint, component *models.Component, qty int, now time.Time) error {
	allocation := models.ProjectComponentAllocation{
		BomItemID:         itemID,
		ProjectID:         projectID,
		ComponentID:       component.ID,
		QuantityAllocated: qty,
		UnitCost:          component.UnitPrice,
		TotalCost:         component.UnitPrice.Mul(decimal.NewFromInt(int64(qty))),
		Status:            models.AllocationStatusPending,
		AllocatedAt:       now,
	}
	return tx.Create(&allocation).Error
}

// CurrentAllocation loads the latest reservation of an item. Older rows are
// the history of reservations released after partial use.
func CurrentAllocation(tx *gorm.DB, itemID uint) (*models.ProjectComponentAllocation, error) {
	var allocation models.ProjectComponentAllocation
	if err := tx.Where("bom_item_id = ?", itemID).Order("id DESC").First(&allocation).Error; err != nil {
		return nil, err
	}
	return &allocation, nil
}

// DeallocationSummary reduces the outcome of releasing a whole BOM
type DeallocationSummary struct {
	BomID      uint          `json:"bom_id"`
	TotalItems int           `json:"total_items"`
	Released   int           `json:"released"`
	Units      int           `json:"units"`
	Errors     int           `json:"errors"`
	Failures   []ItemFailure `json:"failures,omitempty"`
}

// DeallocateBom returns the reserved stock of every line of a BOM. A line
// that fails is reported and the batch goes on.
func (s *AllocationService) DeallocateBom(ctx context.Context, bomID uint) (*DeallocationSummary, error) {
	var items []models.ProjectBomItem
	err := s.DB.WithContext(ctx).Model(&models.ProjectBomItem{}).
		Select("id", "reference").
		Where("bom_id = ?", bomID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	summary := &DeallocationSummary{BomID: bomID, TotalItems: len(items)}
	for _, item := range items {
		n, err := s.DeallocateBomItem(ctx, item.ID)
		if err != nil {
			summary.Errors++
			summary.Failures = append(summary.Failures, ItemFailure{
				ItemID:    item.ID,
				Reference: item.Reference,
				Error:     err.Error(),
			})
			config.LogError(s.Logger, "services", "DeallocateBom", "deallocate", logrus.Fields{
				"bomId":  bomID,
				"itemId": item.ID,
			}, err)
			continue
		}
		if n > 0 {
			summary.Released++
			summary.Units += n
		}
	}
	return summary, nil
}

// DeallocateBomItem returns the unused part of a line's reservation to
// stock and clears the line. Calling it again is a no-op. A reservation with
// recorded usage is kept as a completed record of what was consumed.
func (s *AllocationService) DeallocateBomItem(ctx context.Context, itemID uint) (int, error) {
	released := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.ProjectBomItem
		if err := tx.First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("bom item %d: %w", itemID, ErrNotFound)
			}
			return err
		}

		if !item.Allocated {
			return nil
		}

		allocation, err := CurrentAllocation(tx, itemID)
		switch {
		case err == nil:
			n, err := releaseAllocation(tx, allocation)
			if err != nil {
				return err
			}
			released = n
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		err = tx.Model(&models.ProjectBomItem{}).
			Where("id = ? AND allocated = ?", itemID, true).
			UpdateColumns(map[string]any{
				"allocated":          false,
				"allocated_quantity": 0,
				"updated_at":         time.Now().UTC(),
			}).Error
		if err != nil {
			return err
		}
		return RefreshBomStatus(tx, item.BomID)
	})
	if err != nil {
		return 0, err
	}

	if released > 0 {
		s.Logger.WithFields(logrus.Fields{"itemId": itemID, "released": released}).Info("Returned reserved stock")
	}
	return released, nil
}

// releaseAllocation moves the remaining quantity back to stock. The
// allocation row is changed conditionally on the remaining quantity read, so
// two concurrent releases return the stock once.
func releaseAllocation(tx *gorm.DB, allocation *models.ProjectComponentAllocation) (int, error) {
	remaining := allocation.QuantityRemaining

	var res *gorm.DB
	if allocation.QuantityUsed > 0 {
		now := time.Now().UTC()
		res = tx.Model(&models.ProjectComponentAllocation{}).
			Where("id = ? AND quantity_remaining = ?", allocation.ID, remaining).
			UpdateColumns(map[string]any{
				"quantity_allocated": allocation.QuantityUsed,
				"quantity_remaining": 0,
				"total_cost":         allocation.UnitCost.Mul(decimal.NewFromInt(int64(allocation.QuantityUsed))),
				"status":             models.AllocationStatusCompleted,
				"completed_at":       now,
				"updated_at":         now,
			})
	} else {
		res = tx.Where("id = ? AND quantity_remaining = ?", allocation.ID, remaining).
			Delete(&models.ProjectComponentAllocation{})
	}
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 || remaining <= 0 {
		return 0, nil
	}

	err := tx.Model(&models.Component{}).
		Where("id = ?", allocation.ComponentID).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", remaining)).Error
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// RecordUsage consumes quantity from a reservation, completing it once
// nothing remains
func (s *AllocationService) RecordUsage(ctx context.Context, allocationID uint, quantity int) (*models.ProjectComponentAllocation, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var allocation models.ProjectComponentAllocation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&allocation, allocationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("allocation %d: %w", allocationID, ErrNotFound)
			}
			return err
		}
		if quantity > allocation.QuantityRemaining {
			return fmt.Errorf("%w: %d requested, %d remaining", ErrExceedsReservation, quantity, allocation.QuantityRemaining)
		}

		allocation.QuantityUsed += quantity
		if allocation.QuantityUsed >= allocation.QuantityAllocated {
			now := time.Now().UTC()
			allocation.Status = models.AllocationStatusCompleted
			allocation.CompletedAt = &now
		}
		return tx.Save(&allocation).Error
	})
	if err != nil {
		return nil, err
	}
	return &allocation, nil
}

// RefreshBomStatus recomputes the derived status of a BOM from its items.
// It must run inside the transaction that changed the items. Production
// states set by hand are left alone.
func RefreshBomStatus(tx *gorm.DB, bomID uint) error {
	var bom models.ProjectBom
	if err := tx.Select("id", "status").First(&bom, bomID).Error; err != nil {
		return fmt.Errorf("bom %d: %w", bomID, err)
	}
	if !models.IsDerivedStatus(bom.Status) {
		return nil
	}

	var total, allocated int64
	if err := tx.Model(&models.ProjectBomItem{}).Where("bom_id = ?", bomID).Count(&total).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.ProjectBomItem{}).Where("bom_id = ? AND allocated = ?", bomID, true).Count(&allocated).Error; err != nil {
		return err
	}

	status := models.DeriveBomStatus(allocated, total)
	if status == bom.Status {
		return nil
	}
	return tx.Model(&models.ProjectBom{}).
		Where("id = ? AND status IN ?", bomID, derivedStatuses).
		UpdateColumn("status", status).Error
}

var derivedStatuses = []string{
	models.BomStatusPending,
	models.BomStatusPartiallyAllocated,
	models.BomStatusAllocated,
}
