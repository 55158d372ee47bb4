package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newRoleApp(principal *Principal) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if principal != nil {
			c.Locals(principalKey, *principal)
		}
		return c.Next()
	})
	app.Use(RequireRole("admin", "Teacher"))
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name      string
		principal *Principal
		status    int
	}{
		{name: "no principal", status: fiber.StatusUnauthorized},
		{name: "admin", principal: &Principal{Subject: "a", Roles: []string{"admin"}}, status: fiber.StatusOK},
		{name: "teacher among roles", principal: &Principal{Subject: "b", Roles: []string{"student", "teacher"}}, status: fiber.StatusOK},
		{name: "student", principal: &Principal{Subject: "c", Roles: []string{"student"}}, status: fiber.StatusForbidden},
		{name: "no roles", principal: &Principal{Subject: "d"}, status: fiber.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := newRoleApp(tc.principal).Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
