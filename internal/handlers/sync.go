package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/docsync"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/types"
	"github.com/localnerve/benchtop/internal/utils"
)

// SyncHandler handles manual document resyncs
type SyncHandler struct {
	Sync *docsync.Synchronizer
}

// Resync handles POST /api/sync/:kind/:id
// @Summary Resync a document
// @Description Reconcile the remote copy of one entity with its current state
// @Tags Sync
// @Produce json
// @Param kind path string true "Entity kind" Enums(customer, project, quotation, invoice_issued, invoice_received, project_document, project_bom, customer_contract, board_assembly_log)
// @Param id path int true "Entity ID"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /sync/{kind}/{id} [post]
func (h *SyncHandler) Resync(c *fiber.Ctx) error {
	kind, ok := models.ParseKind(c.Params("kind"))
	if !ok {
		return &types.CustomError{
			Code:    fiber.StatusBadRequest,
			Message: fmt.Sprintf("Unknown kind '%s'", c.Params("kind")),
			Type:    "params",
		}
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.Sync.Resync(c.UserContext(), kind, id); err != nil {
		return serviceError(c, err, "resync")
	}
	return utils.MutationSuccessResponse(c, "Resynced", fiber.Map{"kind": kind, "id": id})
}
