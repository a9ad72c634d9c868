package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/localnerve/benchtop/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthHandler reports service health
type HealthHandler struct {
	Config *config.Config
	DB     *gorm.DB
	Deps   services.HealthDeps
	Logger logrus.FieldLogger
}

// Check handles GET /api/health
// @Summary Service health
// @Description Probe the database, Nextcloud, Redis and the authorizer
// @Tags Health
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /health [get]
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	result := services.HealthCheck(c.UserContext(), h.Config, h.DB, h.Deps, h.Logger)
	status := fiber.StatusOK
	if result.Status == services.HealthUnhealthy {
		status = fiber.StatusServiceUnavailable
	}
	return utils.SuccessResponse(c, result, status)
}
