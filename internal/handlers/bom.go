// bom.go
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

package handlers

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/localnerve/benchtop/internal/types"
	"github.com/localnerve/benchtop/internal/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Largest accepted BOM import upload
const maxImportSize = 10 << 20

// BomHandler handles BOM routes
type BomHandler struct {
	DB         *gorm.DB
	Allocation *services.AllocationService
	Costs      *services.CostService
	Imports    *services.ImportService
}

// AllocateRequest is the body of allocation routes
type AllocateRequest struct {
	BoardsCount *int `json:"boards_count" validate:"omitempty,min=1"`
}

// CostsRequest is the body of the cost update route
type CostsRequest struct {
	Force bool `json:"force"`
}

// BomItemView is one BOM line in API responses
type BomItemView struct {
	ID                uint            `json:"id"`
	Reference         string          `json:"reference"`
	Value             string          `json:"value,omitempty"`
	Footprint         string          `json:"footprint,omitempty"`
	ComponentID       *uint           `json:"component_id"`
	ComponentSKU      string          `json:"component_sku,omitempty"`
	Quantity          int             `json:"quantity"`
	Allocated         bool            `json:"allocated"`
	AllocatedQuantity int             `json:"allocated_quantity"`
	EstimatedUnitCost decimal.Decimal `json:"estimated_unit_cost"`
	ActualUnitCost    decimal.Decimal `json:"actual_unit_cost"`
	CostsUpdatedAt    *time.Time      `json:"costs_updated_at"`
}

// BomView is a BOM with its lines and allocation counts
type BomView struct {
	ID                 uint            `json:"id"`
	ProjectID          uint            `json:"project_id"`
	Name               string          `json:"name"`
	Status             string          `json:"status"`
	TotalEstimatedCost decimal.Decimal `json:"total_estimated_cost"`
	TotalActualCost    decimal.Decimal `json:"total_actual_cost"`
	TotalItems         int             `json:"total_items"`
	AllocatedItems     int             `json:"allocated_items"`
	NextcloudPath      *string         `json:"nextcloud_path"`
	Items              []BomItemView   `json:"items"`
}

func newBomView(bom *models.ProjectBom) BomView {
	view := BomView{
		ID:                 bom.ID,
		ProjectID:          bom.ProjectID,
		Name:               bom.Name,
		Status:             bom.Status,
		TotalEstimatedCost: bom.TotalEstimatedCost,
		TotalActualCost:    bom.TotalActualCost,
		TotalItems:         len(bom.Items),
		NextcloudPath:      bom.NextcloudPath,
		Items:              make([]BomItemView, 0, len(bom.Items)),
	}
	for _, item := range bom.Items {
		iv := BomItemView{
			ID:                item.ID,
			Reference:         item.Reference,
			Value:             item.Value,
			Footprint:         item.Footprint,
			ComponentID:       item.ComponentID,
			Quantity:          item.Quantity,
			Allocated:         item.Allocated,
			AllocatedQuantity: item.AllocatedQuantity,
			EstimatedUnitCost: item.EstimatedUnitCost,
			ActualUnitCost:    item.ActualUnitCost,
			CostsUpdatedAt:    item.CostsUpdatedAt,
		}
		if item.Component != nil {
			iv.ComponentSKU = item.Component.SKU
		}
		if item.Allocated {
			view.AllocatedItems++
		}
		view.Items = append(view.Items, iv)
	}
	return view
}

// GetBom handles GET /api/boms/:id
// @Summary Get a BOM
// @Description Get a BOM with its items and allocation counts
// @Tags BOM
// @Produce json
// @Param id path int true "BOM ID"
// @Success 200 {object} BomView
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /boms/{id} [get]
func (h *BomHandler) GetBom(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var bom models.ProjectBom
	err = h.DB.WithContext(c.UserContext()).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.Component").
		First(&bom, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFoundResponse(c, fmt.Sprintf("BOM %d not found", id))
		}
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "getBom")
	}

	return utils.SuccessResponse(c, newBomView(&bom), fiber.StatusOK)
}

// Allocate handles POST /api/boms/:id/allocate
// @Summary Allocate a BOM
// @Description Reserve component stock for every line of a BOM
// @Tags BOM
// @Accept json
// @Produce json
// @Param id path int true "BOM ID"
// @Param body body AllocateRequest false "Board count, defaults to the project's"
// @Success 200 {object} services.AllocationSummary
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /boms/{id}/allocate [post]
func (h *BomHandler) Allocate(c *fiber.Ctx) error {
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
	} else if boards, err = h.Allocation.BoardsCountFor(ctx, id); err != nil {
		return serviceError(c, err, "allocateBom")
	}

	summary, err := h.Allocation.AllocateBom(ctx, id, boards)
	if err != nil {
		return serviceError(c, err, "allocateBom")
	}
	return utils.SuccessResponse(c, summary, fiber.StatusOK)
}

// Deallocate handles POST /api/boms/:id/deallocate
// @Summary Deallocate a BOM
// @Description Return the reserved stock of every line of a BOM
// @Tags BOM
// @Produce json
// @Param id path int true "BOM ID"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /boms/{id}/deallocate [post]
func (h *BomHandler) Deallocate(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	summary, err := h.Allocation.DeallocateBom(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err, "deallocateBom")
	}
	return utils.MutationSuccessResponse(c, "Deallocated", summary)
}

// UpdateCosts handles POST /api/boms/:id/costs
// @Summary Update BOM costs
// @Description Refresh line costs and totals of a BOM
// @Tags BOM
// @Accept json
// @Produce json
// @Param id path int true "BOM ID"
// @Param body body CostsRequest false "Recompute current lines too"
// @Success 200 {object} services.CostReportRow
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /boms/{id}/costs [post]
func (h *BomHandler) UpdateCosts(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req CostsRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	report, err := h.Costs.UpdateCosts(c.UserContext(), services.CostUpdateOptions{BomID: &id, Force: req.Force})
	if err != nil {
		return serviceError(c, err, "updateCosts")
	}
	return utils.SuccessResponse(c, report.Rows[0], fiber.StatusOK)
}

// Import handles POST /api/boms/:id/import
// @Summary Import BOM lines
// @Description Add lines from an uploaded .xlsx or .csv file and attach it to the BOM
// @Tags BOM
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "BOM ID"
// @Param file formData file true "BOM spreadsheet"
// @Success 200 {object} services.ImportResult
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /boms/{id}/import [post]
func (h *BomHandler) Import(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return &types.CustomError{Code: fiber.StatusBadRequest, Message: "Multipart field \"file\" is required", Type: "importBom"}
	}
	if header.Size > maxImportSize {
		return &types.CustomError{Code: fiber.StatusRequestEntityTooLarge, Message: "File exceeds 10MB", Type: "importBom"}
	}
	file, err := header.Open()
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusBadRequest, "importBom")
	}
	defer file.Close()

	result, err := h.Imports.Import(c.UserContext(), id, filepath.Base(header.Filename), file)
	if err != nil {
		return serviceError(c, err, "importBom")
	}
	return utils.SuccessResponse(c, result, fiber.StatusOK)
}
