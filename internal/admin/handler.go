package admin

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"select-plus/internal/engine"
	"select-plus/internal/metadata"
	"select-plus/internal/resource"
	"select-plus/internal/selectplus"
	"select-plus/internal/store"
)

type Handler struct {
	store     *store.Store
	registry  *metadata.Registry
	catalog   *Catalog
	resources *resource.Registry
}

func NewHandler(s *store.Store, reg *metadata.Registry, catalog *Catalog, resources *resource.Registry) *Handler {
	return &Handler{store: s, registry: reg, catalog: catalog, resources: resources}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler) {
	admin := app.Group("/api/_admin")

	admin.Get("/entities", h.ListEntities)
	admin.Get("/entities/:name", h.GetEntity)
	admin.Post("/entities", h.CreateEntity)
	admin.Put("/entities/:name", h.UpdateEntity)
	admin.Delete("/entities/:name", h.DeleteEntity)

	admin.Get("/relations", h.ListRelations)
	admin.Get("/relations/:entity/:name", h.GetRelation)
	admin.Post("/relations", h.CreateRelation)
	admin.Put("/relations/:entity/:name", h.UpdateRelation)
	admin.Delete("/relations/:entity/:name", h.DeleteRelation)

	admin.Get("/resources", h.ListResources)
}

// --- Entity Endpoints ---

func (h *Handler) ListEntities(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT name, table_name, definition, created_at, updated_at FROM _entities ORDER BY name")
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *Handler) GetEntity(c *fiber.Ctx) error {
	name := c.Params("name")
	entity := h.registry.GetEntity(name)
	if entity == nil {
		return engine.NotFoundError("Entity", name)
	}
	return c.JSON(fiber.Map{"data": entity})
}

func (h *Handler) CreateEntity(c *fiber.Ctx) error {
	var entity metadata.Entity
	if err := c.BodyParser(&entity); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if h.registry.GetEntity(entity.Name) != nil {
		return engine.ConflictError("Entity already exists: " + entity.Name)
	}
	if err := h.catalog.PutEntity(c.Context(), &entity); err != nil {
		return catalogError(err)
	}
	return c.Status(201).JSON(fiber.Map{"data": entity})
}

func (h *Handler) UpdateEntity(c *fiber.Ctx) error {
	name := c.Params("name")
	if h.registry.GetEntity(name) == nil {
		return engine.NotFoundError("Entity", name)
	}

	var entity metadata.Entity
	if err := c.BodyParser(&entity); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	entity.Name = name

	if err := h.catalog.PutEntity(c.Context(), &entity); err != nil {
		return catalogError(err)
	}
	return c.JSON(fiber.Map{"data": entity})
}

func (h *Handler) DeleteEntity(c *fiber.Ctx) error {
	name := c.Params("name")
	deleted, err := h.catalog.DeleteEntity(c.Context(), name)
	if err != nil {
		return err
	}
	if !deleted {
		return engine.NotFoundError("Entity", name)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"name": name, "deleted": true}})
}

// --- Relation Endpoints ---

func (h *Handler) ListRelations(c *fiber.Ctx) error {
	relations := h.registry.AllRelations()
	if relations == nil {
		relations = []*metadata.Relation{}
	}
	return c.JSON(fiber.Map{"data": relations})
}

func (h *Handler) GetRelation(c *fiber.Ctx) error {
	rel := h.registry.FindRelation(c.Params("entity"), c.Params("name"))
	if rel == nil {
		return engine.NotFoundError("Relation", c.Params("entity")+"."+c.Params("name"))
	}
	return c.JSON(fiber.Map{"data": rel})
}

func (h *Handler) CreateRelation(c *fiber.Ctx) error {
	var rel metadata.Relation
	if err := c.BodyParser(&rel); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if h.registry.FindRelation(rel.Source, rel.Name) != nil {
		return engine.ConflictError("Relation already exists: " + relationKey(&rel))
	}
	if err := h.catalog.PutRelation(c.Context(), &rel); err != nil {
		return catalogError(err)
	}
	return c.Status(201).JSON(fiber.Map{"data": rel})
}

func (h *Handler) UpdateRelation(c *fiber.Ctx) error {
	entity, name := c.Params("entity"), c.Params("name")
	if h.registry.FindRelation(entity, name) == nil {
		return engine.NotFoundError("Relation", entity+"."+name)
	}

	var rel metadata.Relation
	if err := c.BodyParser(&rel); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	rel.Source, rel.Name = entity, name

	if err := h.catalog.PutRelation(c.Context(), &rel); err != nil {
		return catalogError(err)
	}
	return c.JSON(fiber.Map{"data": rel})
}

func (h *Handler) DeleteRelation(c *fiber.Ctx) error {
	key := c.Params("entity") + "." + c.Params("name")
	deleted, err := h.catalog.DeleteRelation(c.Context(), key)
	if err != nil {
		return err
	}
	if !deleted {
		return engine.NotFoundError("Relation", key)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"name": key, "deleted": true}})
}

// --- Resources ---

// ListResources reports the registered resources and the SelectPlus
// attributes each exposes.
func (h *Handler) ListResources(c *fiber.Ctx) error {
	all := h.resources.All()
	data := make([]fiber.Map, 0, len(all))
	req := selectplus.NewRequest(c.UserContext(), nil)
	for _, res := range all {
		fields := []fiber.Map{}
		for _, f := range res.Fields(req) {
			fields = append(fields, fiber.Map{"attribute": f.Attribute(), "field_id": f.FieldID(), "name": f.Name()})
		}
		data = append(data, fiber.Map{
			"name":   res.Name(),
			"entity": res.Entity(),
			"fields": fields,
		})
	}
	return c.JSON(fiber.Map{"data": data})
}

// catalogError reports validation failures as 422 and passes storage errors through.
func catalogError(err error) error {
	var validation *validationError
	if errors.As(err, &validation) {
		return engine.ValidationError([]engine.ErrorDetail{{Message: validation.Error()}})
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return engine.ConflictError(err.Error())
	}
	return err
}
