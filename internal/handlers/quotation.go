package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/events"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/localnerve/benchtop/internal/types"
	"github.com/localnerve/benchtop/internal/utils"
	"gorm.io/gorm"
)

// QuotationHandler handles quotation routes
type QuotationHandler struct {
	Store      *events.Store
	Quotations *services.QuotationSyncService
}

// StatusRequest is the body of the quotation status route
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft sent accepted rejected expired"`
}

// SyncQuotationsRequest selects the quotations to sync, all missing ones when empty
type SyncQuotationsRequest struct {
	QuotationID types.FlexList[types.FlexID] `json:"quotation_id"`
}

// QuotationView is a quotation in API responses
type QuotationView struct {
	ID                  uint    `json:"id"`
	Number              string  `json:"number"`
	Status              string  `json:"status"`
	FilePath            *string `json:"file_path"`
	NextcloudPath       *string `json:"nextcloud_path"`
	UploadedToNextcloud bool    `json:"uploaded_to_nextcloud"`
}

// UpdateStatus handles PATCH /api/quotations/:id/status
// @Summary Change a quotation status
// @Description Change the status; the remote copy moves to the folder of the new status
// @Tags Quotation
// @Accept json
// @Produce json
// @Param id path int true "Quotation ID"
// @Param body body StatusRequest true "New status"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /quotations/{id}/status [patch]
func (h *QuotationHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	db := h.Store.DB().WithContext(ctx)

	var quotation models.Quotation
	if err := db.First(&quotation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFoundResponse(c, fmt.Sprintf("Quotation %d not found", id))
		}
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "updateQuotationStatus")
	}

	if err := h.Store.Update(ctx, &quotation, map[string]any{"status": req.Status}); err != nil {
		return serviceError(c, err, "updateQuotationStatus")
	}

	// Reload for the pointers written by the synchronizer
	if err := db.First(&quotation, id).Error; err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "updateQuotationStatus")
	}

	return utils.MutationSuccessResponse(c, "Status updated", QuotationView{
		ID:                  quotation.ID,
		Number:              quotation.Number,
		Status:              quotation.Status,
		FilePath:            quotation.FilePath,
		NextcloudPath:       quotation.NextcloudPath,
		UploadedToNextcloud: quotation.UploadedToNextcloud,
	})
}

// Sync handles POST /api/quotations/sync
// @Summary Upload quotations missing on Nextcloud
// @Tags Quotation
// @Accept json
// @Produce json
// @Param body body SyncQuotationsRequest false "Quotation ids, a single id or an array"
// @Success 200 {object} services.SyncSummary
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /quotations/sync [post]
func (h *QuotationHandler) Sync(c *fiber.Ctx) error {
	var req SyncQuotationsRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	ids := req.QuotationID.Unique()
	if len(ids) == 0 {
		summary, err := h.Quotations.SyncMissing(ctx, nil)
		if err != nil {
			return serviceError(c, err, "syncQuotations")
		}
		return utils.SuccessResponse(c, summary, fiber.StatusOK)
	}

	merged := &services.SyncSummary{Details: make([]services.SyncDetail, 0, len(ids))}
	for _, id := range ids {
		quotationID := id.Uint()
		summary, err := h.Quotations.SyncMissing(ctx, &quotationID)
		if err != nil {
			return serviceError(c, err, "syncQuotations")
		}
		merged.Synced += summary.Synced
		merged.Skipped += summary.Skipped
		merged.Failed += summary.Failed
		merged.Details = append(merged.Details, summary.Details...)
	}
	return utils.SuccessResponse(c, merged, fiber.StatusOK)
}
