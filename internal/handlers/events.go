package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/events"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/types"
	"github.com/localnerve/benchtop/internal/utils"
	"gorm.io/datatypes"
)

// EventHandler exposes the event journal
type EventHandler struct {
	Journal *events.Journal
}

// EventView is one journal row
type EventView struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Kind            string         `json:"kind"`
	EntityID        uint           `json:"entity_id"`
	ChangedFields   datatypes.JSON `json:"changed_fields,omitempty" swaggertype:"array,string"`
	HandlerFailures int            `json:"handler_failures"`
	CreatedAt       time.Time      `json:"created_at"`
}

// List handles GET /api/events/:kind/:id
// @Summary List the events of an entity
// @Tags Events
// @Produce json
// @Param kind path string true "Entity kind"
// @Param id path int true "Entity ID"
// @Success 200 {array} EventView
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /events/{kind}/{id} [get]
func (h *EventHandler) List(c *fiber.Ctx) error {
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

	rows, err := h.Journal.List(c.UserContext(), kind, id)
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "listEvents")
	}

	out := make([]EventView, 0, len(rows))
	for _, row := range rows {
		out = append(out, EventView{
			ID:              row.ID,
			Type:            row.Type,
			Kind:            row.Kind,
			EntityID:        row.EntityID,
			ChangedFields:   row.ChangedFields.JSON,
			HandlerFailures: row.HandlerFailures,
			CreatedAt:       row.CreatedAt,
		})
	}
	return utils.SuccessResponse(c, out, fiber.StatusOK)
}
