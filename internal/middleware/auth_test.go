package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthApp(adminKey string) *fiber.App {
	app := fiber.New()
	app.Get("/admin", AdminOnly(adminKey), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAdminOnly(t *testing.T) {
	tests := []struct {
		name       string
		adminKey   string
		requestKey string
		wantStatus int
	}{
		{"valid key", "secret", "secret", http.StatusOK},
		{"missing key", "secret", "", http.StatusUnauthorized},
		{"wrong key", "secret", "nope", http.StatusForbidden},
		{"admin key unset rejects everything", "", "anything", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newAuthApp(tt.adminKey)

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.requestKey != "" {
				req.Header.Set("X-API-Key", tt.requestKey)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}
