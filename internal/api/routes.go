package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sswl/panpub/internal/middleware"
)

// SetupRoutes configures the ops API
func SetupRoutes(app *fiber.App, handlers *Handlers, adminKey string) {
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	api := app.Group("/api/v1")

	api.Get("/health", handlers.HealthCheck)
	api.Get("/posts", handlers.ListPosts)

	admin := api.Group("/admin", middleware.AdminOnly(adminKey))
	{
		admin.Post("/publish", handlers.Publish)
		admin.Post("/push", handlers.PushAll)
		admin.Get("/audit", handlers.Audit)
		admin.Delete("/posts/:id", handlers.DeletePost)
	}

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}
