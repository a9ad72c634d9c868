package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/localnerve/benchtop/internal/types"
	"github.com/sirupsen/logrus"
)

// SessionValidator checks a session cookie against roles
type SessionValidator func(cookie string, roles []string) (map[string]interface{}, error)

// AuthAdmin requires an authorizer session with the admin role. It lets
// every request through when auth is not configured.
func AuthAdmin(cfg *config.Config, logger logrus.FieldLogger) fiber.Handler {
	if !cfg.AuthEnabled() {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	return func(c *fiber.Ctx) error {
		if !services.IsAuthorizerInitialized() {
			if err := services.InitAuthorizer(cfg, logger, c.Protocol(), c.Hostname()); err != nil {
				return &types.CustomError{
					Code:    fiber.StatusServiceUnavailable,
					Message: fmt.Sprintf("Authorizer unavailable: %v", err),
					Type:    "authorization.admin",
				}
			}
		}
		return authorize(c, services.ValidateSession, []string{"admin"}, "authorization.admin")
	}
}

// RequireRoles requires a session validated by validateSession for roles
func RequireRoles(validateSession SessionValidator, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authorize(c, validateSession, roles, "authorization")
	}
}

// authorize performs the authorization check
func authorize(c *fiber.Ctx, validateSession SessionValidator, roles []string, errorType string) error {
	session := c.Cookies("cookie_session")
	if session == "" {
		return &types.CustomError{
			Code:    fiber.StatusForbidden,
			Message: "Authorizer cookie \"cookie_session\" not found",
			Type:    errorType,
		}
	}

	data, err := validateSession(session, roles)
	if err != nil {
		return &types.CustomError{
			Code:    fiber.StatusForbidden,
			Message: fmt.Sprintf("Invalid session: %v", err),
			Type:    errorType,
		}
	}

	if user, ok := data["user"]; ok {
		c.Locals("user", user)
	}

	return c.Next()
}
