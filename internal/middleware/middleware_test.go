package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/types"
	"github.com/sirupsen/logrus"
)

func errorStatus(c *fiber.Ctx, err error) error {
	var custom *types.CustomError
	if errors.As(err, &custom) {
		return c.SendStatus(custom.Code)
	}
	return c.SendStatus(fiber.StatusInternalServerError)
}

func TestVersionMiddleware(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: errorStatus})
	app.Use(VersionMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("apiVersion").(string))
	})

	tests := []struct {
		header string
		status int
	}{
		{header: "", status: fiber.StatusOK},
		{header: "1.0", status: fiber.StatusOK},
		{header: "1.2.0", status: fiber.StatusOK},
		{header: "2.0.0", status: fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			req.Header.Set("X-Api-Version", tt.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != tt.status {
			t.Errorf("Version %q: expected %d, got %d", tt.header, tt.status, resp.StatusCode)
		}
		if tt.status == fiber.StatusOK && resp.Header.Get("X-Api-Version") != APIVersion {
			t.Errorf("Expected X-Api-Version response header")
		}
	}
}

func TestAuthAdminDisabled(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: errorStatus})
	app.Post("/", AuthAdmin(&config.Config{}, logrus.New()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Errorf("Expected pass-through without auth, got %d", resp.StatusCode)
	}
}

func TestRequireRoles(t *testing.T) {
	validator := func(cookie string, roles []string) (map[string]interface{}, error) {
		if cookie == "good" && roles[0] == "admin" {
			return map[string]interface{}{"user": "alice"}, nil
		}
		return nil, errors.New("session is not valid")
	}

	app := fiber.New(fiber.Config{ErrorHandler: errorStatus})
	app.Post("/", RequireRoles(validator, "admin"), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user").(string))
	})

	tests := []struct {
		cookie string
		status int
	}{
		{cookie: "", status: fiber.StatusForbidden},
		{cookie: "bad", status: fiber.StatusForbidden},
		{cookie: "good", status: fiber.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("POST", "/", nil)
		if tt.cookie != "" {
			req.Header.Set("Cookie", "cookie_session="+tt.cookie)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != tt.status {
			t.Errorf("Cookie %q: expected %d, got %d", tt.cookie, tt.status, resp.StatusCode)
		}
	}
}
