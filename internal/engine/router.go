package engine

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/options/:resource/:attribute", h.Options)

	api := app.Group("/api")
	api.Get("/:resource", h.List)
	api.Get("/:resource/fields", h.Fields)
	api.Get("/:resource/:id", h.GetByID)
	api.Post("/:resource", h.Create)
	api.Put("/:resource/:id", h.Update)
}
