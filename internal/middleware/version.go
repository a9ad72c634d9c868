package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/types"
)

// APIVersion is the version served under /api
const APIVersion = "1.0.0"

// VersionMiddleware parses the X-Api-Version header, stores it in context
// and rejects major versions this server does not serve
func VersionMiddleware() fiber.Handler {
	major := strings.SplitN(APIVersion, ".", 2)[0]
	return func(c *fiber.Ctx) error {
		version := c.Get("X-Api-Version", APIVersion)

		switch version {
		case "1", "1.0":
			version = "1.0.0"
		}

		if strings.SplitN(version, ".", 2)[0] != major {
			return &types.CustomError{
				Code:    fiber.StatusBadRequest,
				Message: "Unsupported API version " + version,
				Type:    "version",
			}
		}

		c.Locals("apiVersion", version)
		c.Set("X-Api-Version", APIVersion)

		return c.Next()
	}
}
