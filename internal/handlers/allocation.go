package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/localnerve/benchtop/internal/utils"
)

// AllocationHandler handles single line allocation routes
type AllocationHandler struct {
	Allocation *services.AllocationService
}

// UsageRequest is the body of the usage route
type UsageRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// AllocateItem handles POST /api/bom-items/:id/allocate
// @Summary Allocate a BOM line
// @Tags Allocation
// @Accept json
// @Produce json
// @Param id path int true "BOM item ID"
// @Param body body AllocateRequest false "Board count, defaults to the project's"
// @Success 200 {object} services.ItemResult
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /bom-items/{id}/allocate [post]
func (h *AllocationHandler) AllocateItem(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req AllocateRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	boards := 0
	if req.BoardsCount != nil {
		boards = *req.BoardsCount
	} else {
		var item models.ProjectBomItem
		if err := h.Allocation.DB.WithContext(ctx).Select("id", "bom_id").First(&item, id).Error; err != nil {
			return serviceError(c, err, "allocateItem")
		}
		if boards, err = h.Allocation.BoardsCountFor(ctx, item.BomID); err != nil {
			return serviceError(c, err, "allocateItem")
		}
	}

	result, err := h.Allocation.AllocateBomItem(ctx, id, boards)
	if err != nil {
		return serviceError(c, err, "allocateItem")
	}
	status := fiber.StatusOK
	if result.Reason == services.ReasonInsufficientStock {
		status = fiber.StatusConflict
	}
	return utils.SuccessResponse(c, result, status)
}

// DeallocateItem handles DELETE /api/bom-items/:id/allocation
// @Summary Deallocate a BOM line
// @Tags Allocation
// @Produce json
// @Param id path int true "BOM item ID"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /bom-items/{id}/allocation [delete]
func (h *AllocationHandler) DeallocateItem(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	released, err := h.Allocation.DeallocateBomItem(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err, "deallocateItem")
	}
	return utils.MutationSuccessResponse(c, "Deallocated", fiber.Map{"item_id": id, "released": released})
}

// RecordUsage handles POST /api/allocations/:id/usage
// @Summary Record usage of reserved stock
// @Tags Allocation
// @Accept json
// @Produce json
// @Param id path int true "Allocation ID"
// @Param body body UsageRequest true "Consumed quantity"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /allocations/{id}/usage [post]
func (h *AllocationHandler) RecordUsage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req UsageRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	allocation, err := h.Allocation.RecordUsage(c.UserContext(), id, req.Quantity)
	if err != nil {
		return serviceError(c, err, "recordUsage")
	}
	return utils.MutationSuccessResponse(c, "Usage recorded", fiber.Map{
		"allocation_id":      allocation.ID,
		"quantity_allocated": allocation.QuantityAllocated,
		"quantity_used":      allocation.QuantityUsed,
		"quantity_remaining": allocation.QuantityRemaining,
		"status":             allocation.Status,
	})
}
