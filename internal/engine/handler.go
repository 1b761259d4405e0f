package engine

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"select-plus/internal/instrument"
	"select-plus/internal/metadata"
	"select-plus/internal/resource"
	"select-plus/internal/selectplus"
	"select-plus/internal/store"
)

type Handler struct {
	store     *store.Store
	registry  *metadata.Registry
	resources *resource.Registry
	resolver  *selectplus.Resolver
	writer    *Writer
}

func NewHandler(s *store.Store, reg *metadata.Registry, resources *resource.Registry, settings selectplus.Settings) *Handler {
	repo := NewSQLRepository(s, reg)
	resolver := selectplus.NewResolver(reg, repo, settings)
	return &Handler{
		store:     s,
		registry:  reg,
		resources: resources,
		resolver:  resolver,
		writer:    NewWriter(s, reg, resolver, repo),
	}
}

// Options handles GET /options/:resource/:attribute. Query parameters other
// than resourceId, fieldId and search are the current values of sibling
// form fields.
func (h *Handler) Options(c *fiber.Ctx) error {
	res, entity, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	attribute := c.Params("attribute")
	ctx, span := instrument.GetInstrumenter(c.UserContext()).StartSpan(c.UserContext(), "selectplus", "options", "options.resolve")
	defer span.End()
	span.SetEntity(entity.Name, "")
	span.SetMetadata("attribute", attribute)

	req := selectplus.NewRequest(ctx, c.Queries())
	set := fieldSet(res, req)
	field, ok := set.Lookup(attribute, req.FieldID)
	if !ok {
		span.SetStatus("error")
		return UnknownFieldError(res.Name(), attribute, req.FieldID)
	}
	if deps := field.DependsOnAttributes(); len(deps) > 0 {
		span.SetMetadata("depends_on", deps)
	}

	options, err := h.resolver.ResolveOptions(req, field, entity)
	if err != nil {
		span.SetStatus("error")
		if appErr := FieldError(attribute, err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("options %s.%s: %w", res.Name(), attribute, err)
	}
	if options == nil {
		options = []selectplus.SelectionOption{}
	}
	span.SetMetadata("count", len(options))
	span.SetStatus("ok")
	return c.JSON(options)
}

// fieldSet builds res's fields for req once and carries them on req's
// context.
func fieldSet(res resource.Resource, req *selectplus.Request) *selectplus.FieldSet {
	if set, ok := selectplus.FieldSetFrom(req.Context()); ok {
		return set
	}
	return req.AttachFields(res.Fields(req))
}

// Fields handles GET /api/:resource/fields and returns a descriptor for each
// field. With ?resourceId= the descriptors carry the record's current values.
func (h *Handler) Fields(c *fiber.Ctx) error {
	res, entity, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	req := selectplus.NewRequest(c.UserContext(), c.Queries())
	owner, err := h.loadOwner(c, res, entity, req.ResourceID)
	if err != nil {
		return err
	}

	fields := fieldSet(res, req).Fields()
	descriptors := make([]*selectplus.Descriptor, 0, len(fields))
	for _, f := range fields {
		d, err := h.resolver.Describe(req, f, owner)
		if err != nil {
			if appErr := FieldError(f.Attribute(), err); appErr != nil {
				return appErr
			}
			return fmt.Errorf("describe %s.%s: %w", res.Name(), f.Attribute(), err)
		}
		descriptors = append(descriptors, d)
	}
	return c.JSON(fiber.Map{"data": descriptors})
}

// List handles GET /api/:resource. Each row carries the index rollup of
// every field under "_display".
func (h *Handler) List(c *fiber.Ctx) error {
	res, entity, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	plan, err := ParseQueryParams(c, entity)
	if err != nil {
		return err
	}

	qr := BuildSelectSQL(h.store.Dialect, plan)
	rows, err := store.QueryRows(c.UserContext(), h.store.DB, qr.SQL, qr.Params...)
	if err != nil {
		return fmt.Errorf("list %s: %w", entity.Name, err)
	}
	cr := BuildCountSQL(h.store.Dialect, plan)
	countRow, err := store.QueryRow(c.UserContext(), h.store.DB, cr.SQL, cr.Params...)
	if err != nil {
		return fmt.Errorf("count %s: %w", entity.Name, err)
	}

	if rows == nil {
		rows = []map[string]any{}
	}
	store.Normalize(h.store.Dialect, rows, columnsOf(entity))

	req := selectplus.NewRequest(c.UserContext(), nil)
	fields := fieldSet(res, req).Fields()
	for _, row := range rows {
		owner := &selectplus.Owner{Entity: entity, Key: row[entity.PrimaryKey.Field], Attributes: selectplus.Row(row)}
		index := make(map[string]string, len(fields))
		for _, f := range fields {
			display, err := h.resolver.ResolveDisplay(req, f, owner)
			if err != nil {
				if appErr := FieldError(f.Attribute(), err); appErr != nil {
					return appErr
				}
				return fmt.Errorf("display %s.%s: %w", res.Name(), f.Attribute(), err)
			}
			index[f.Attribute()] = display.Index
		}
		row["_display"] = index
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     plan.Page,
			"per_page": plan.PerPage,
			"total":    countRow["count"],
		},
	})
}

// GetByID handles GET /api/:resource/:id and returns the record with the
// current value and detail rollup of every field.
func (h *Handler) GetByID(c *fiber.Ctx) error {
	res, entity, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	req := selectplus.NewRequest(c.UserContext(), nil)
	owner, err := h.loadOwner(c, res, entity, c.Params("id"))
	if err != nil {
		return err
	}

	display := fiber.Map{}
	for _, f := range fieldSet(res, req).Fields() {
		d, err := h.resolver.ResolveDisplay(req, f, owner)
		if err != nil {
			if appErr := FieldError(f.Attribute(), err); appErr != nil {
				return appErr
			}
			return fmt.Errorf("display %s.%s: %w", res.Name(), f.Attribute(), err)
		}
		value := d.Value
		if value == nil {
			value = []selectplus.SelectionOption{}
		}
		display[f.Attribute()] = fiber.Map{
			"value":  value,
			"index":  d.Index,
			"detail": d.Detail,
		}
	}

	return c.JSON(fiber.Map{"data": owner.Attributes, "display": display})
}

// Create handles POST /api/:resource
func (h *Handler) Create(c *fiber.Ctx) error {
	return h.save(c, "")
}

// Update handles PUT /api/:resource/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	return h.save(c, c.Params("id"))
}

func (h *Handler) save(c *fiber.Ctx, id string) error {
	res, _, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	record, err := h.writer.Save(c.UserContext(), Submission{Resource: res, ID: id, Body: body})
	if err != nil {
		return handleWriteError(err)
	}

	status := fiber.StatusOK
	if id == "" {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": record})
}

func (h *Handler) resolveResource(c *fiber.Ctx) (resource.Resource, *metadata.Entity, error) {
	name := c.Params("resource")
	res, ok := h.resources.Get(name)
	if !ok {
		return nil, nil, UnknownResourceError(name)
	}
	entity := h.registry.GetEntity(res.Entity())
	if entity == nil {
		return nil, nil, UnknownResourceError(name)
	}
	return res, entity, nil
}

// loadOwner returns the record with the given id as an owner, or an unsaved
// owner when id is empty.
func (h *Handler) loadOwner(c *fiber.Ctx, res resource.Resource, entity *metadata.Entity, id string) (*selectplus.Owner, error) {
	owner := &selectplus.Owner{Entity: entity, Attributes: selectplus.Row{}}
	if id == "" {
		return owner, nil
	}
	row, err := fetchRecord(c.UserContext(), h.store.DB, h.store.Dialect, entity, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(res.Name(), id)
		}
		return nil, fmt.Errorf("get %s/%s: %w", res.Name(), id, err)
	}
	owner.Key = row[entity.PrimaryKey.Field]
	owner.Attributes = selectplus.Row(row)
	return owner, nil
}

func handleWriteError(err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return ConflictError("A record with this value already exists")
	}
	return err
}

// ErrorHandler renders AppErrors as their JSON shape and everything else as
// an internal error.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		return c.Status(code).JSON(ErrorResponse{Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message}})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(ErrorResponse{
		Error: &AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
