package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sips-gamification/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func status(t *testing.T, app *fiber.App, req *http.Request) int {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("s3cret", logger.Nop()))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong", "Bearer nope", fiber.StatusUnauthorized},
		{"bearer", "Bearer s3cret", fiber.StatusOK},
		{"raw token", "s3cret", fiber.StatusOK},
		{"prefix only", "Bearer ", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, status(t, app, req))
		})
	}
}

func TestUserContextMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware(logger.Nop()))

	var gotID string
	var gotRoles []string
	capture := func(c *fiber.Ctx) error {
		gotID = UserID(c)
		gotRoles, _ = c.Locals(LocalUserRoles).([]string)
		return c.SendStatus(fiber.StatusNoContent)
	}
	app.Get("/s/thing", capture)
	app.Get("/public", capture)

	req := httptest.NewRequest(http.MethodGet, "/s/thing", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, req))

	req = httptest.NewRequest(http.MethodGet, "/s/thing", nil)
	req.Header.Set("X-User-ID", " u-42 ")
	req.Header.Set("X-User-Roles", "member, ,admin")
	assert.Equal(t, fiber.StatusNoContent, status(t, app, req))
	assert.Equal(t, "u-42", gotID)
	assert.Equal(t, []string{"member", "admin"}, gotRoles)

	req = httptest.NewRequest(http.MethodGet, "/public", nil)
	assert.Equal(t, fiber.StatusNoContent, status(t, app, req))
	assert.Empty(t, gotID)
	assert.Empty(t, gotRoles)
}

func TestRequireRole(t *testing.T) {
	log := logger.Nop()
	app := fiber.New()
	app.Use(UserContextMiddleware(log))
	app.Get("/s/admin/panel", RequireRole("admin", log), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	call := func(roles string) int {
		req := httptest.NewRequest(http.MethodGet, "/s/admin/panel", strings.NewReader(""))
		req.Header.Set("X-User-ID", "u1")
		if roles != "" {
			req.Header.Set("X-User-Roles", roles)
		}
		return status(t, app, req)
	}

	assert.Equal(t, fiber.StatusForbidden, call(""))
	assert.Equal(t, fiber.StatusForbidden, call("moderator"))
	assert.Equal(t, fiber.StatusOK, call("moderator,ADMIN"))
}
