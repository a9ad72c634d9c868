// common.go
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
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/docsync"
	"github.com/localnerve/benchtop/internal/locking"
	"github.com/localnerve/benchtop/internal/nextcloud"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/localnerve/benchtop/internal/types"
	"github.com/localnerve/benchtop/internal/utils"
	"gorm.io/gorm"
)

var validate = validator.New()

// parseID reads a positive numeric route parameter
func parseID(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, &types.CustomError{
			Code:    fiber.StatusBadRequest,
			Message: fmt.Sprintf("Invalid %s '%s'", name, raw),
			Type:    "params",
		}
	}
	return uint(id), nil
}

// bindBody parses an optional JSON body into req and validates it. An empty
// body leaves req at its zero value.
func bindBody(c *fiber.Ctx, req any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return &types.CustomError{
				Code:    fiber.StatusBadRequest,
				Message: fmt.Sprintf("Invalid request body: %v", err),
				Type:    "body",
			}
		}
	}
	if err := validate.Struct(req); err != nil {
		return &types.CustomError{
			Code:    fiber.StatusBadRequest,
			Message: validationMessage(err),
			Type:    "validation",
		}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// serviceError renders a service error with the status its kind maps to
func serviceError(c *fiber.Ctx, err error, errorType string) error {
	var custom *types.CustomError
	switch {
	case errors.As(err, &custom):
		return utils.ErrorResponse(c, custom.Message, custom.Code, custom.Type)
	case errors.Is(err, services.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return utils.NotFoundResponse(c, err.Error())
	case errors.Is(err, services.ErrInvalidBoardsCount),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrExceedsReservation),
		errors.Is(err, services.ErrUnsupportedFormat),
		errors.Is(err, services.ErrMissingColumns),
		errors.Is(err, services.ErrEmptyFile),
		errors.Is(err, docsync.ErrUnknownKind):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusBadRequest, errorType)
	case errors.Is(err, nextcloud.ErrDisabled):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusServiceUnavailable, "nextcloud")
	case errors.Is(err, locking.ErrNotObtained):
		return utils.ErrorResponse(c, "Another operation on this resource is running, retry later", fiber.StatusConflict, "locked")
	}
	return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, errorType)
}

// ErrorHandler renders errors returned by handlers and middleware
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	errorType := "unknown"

	var custom *types.CustomError
	var fe *fiber.Error
	switch {
	case errors.As(err, &custom):
		code = custom.Code
		message = custom.Message
		errorType = custom.Type
	case errors.As(err, &fe):
		code = fe.Code
		message = fe.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    code,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}

// NotFound is the catch-all route handler
func NotFound(c *fiber.Ctx) error {
	return utils.NotFoundResponse(c, "[404] Resource Not Found")
}
