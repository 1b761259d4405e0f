package instrument

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"select-plus/internal/store"
)

const eventSelect = "SELECT id, trace_id, span_id, parent_span_id, event_type, source, component, action, entity, record_id, duration_ms, status, metadata, created_at FROM _events"

// eventFilters are the _events columns List filters on by equality.
var eventFilters = []string{"trace_id", "source", "component", "action", "entity", "event_type", "status"}

// EventHandler serves the recorded spans and business events.
type EventHandler struct {
	db      *sql.DB
	dialect store.Dialect
}

func NewEventHandler(db *sql.DB, dialect store.Dialect) *EventHandler {
	return &EventHandler{db: db, dialect: dialect}
}

// List handles GET /api/_events. Besides the column filters it takes from/to
// bounds on created_at and min_duration_ms, which finds slow option
// resolutions with ?component=options&min_duration_ms=50.
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pb := h.dialect.NewParamBuilder()

	var where []string
	for _, col := range eventFilters {
		if v := c.Query(col); v != "" {
			where = append(where, fmt.Sprintf("%s = %s", col, pb.Add(v)))
		}
	}
	if v := c.Query("from"); v != "" {
		where = append(where, "created_at >= "+pb.Add(v))
	}
	if v := c.Query("to"); v != "" {
		where = append(where, "created_at <= "+pb.Add(v))
	}
	if v, err := strconv.ParseFloat(c.Query("min_duration_ms"), 64); err == nil {
		where = append(where, "duration_ms >= "+pb.Add(v))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	order := "DESC"
	if c.Query("sort") == "created_at" {
		order = "ASC"
	}
	page, perPage := pageParams(c)

	countRow, err := store.QueryRow(ctx, h.db, "SELECT COUNT(*) AS count FROM _events"+clause, pb.Params()...)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	query := fmt.Sprintf("%s%s ORDER BY created_at %s LIMIT %s OFFSET %s",
		eventSelect, clause, order, pb.Add(perPage), pb.Add((page-1)*perPage))
	rows, err := store.QueryRows(ctx, h.db, query, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	store.Normalize(h.dialect, rows, store.Columns{Structured: []string{"metadata"}})

	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    toInt(countRow["count"]),
		},
	})
}

// pageParams reads page and per_page; per_page is capped at 100.
func pageParams(c *fiber.Ctx) (int, int) {
	page := max(c.QueryInt("page", 1), 1)
	perPage := c.QueryInt("per_page", 50)
	if perPage < 1 {
		perPage = 50
	}
	return page, min(perPage, 100)
}

// GetTrace handles GET /api/_events/trace/:traceId and returns the spans of
// one request as a tree under the first root span.
func (h *EventHandler) GetTrace(c *fiber.Ctx) error {
	ctx := c.UserContext()
	traceID := c.Params("traceId")

	pb := h.dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, h.db,
		fmt.Sprintf("%s WHERE trace_id = %s ORDER BY created_at ASC", eventSelect, pb.Add(traceID)),
		pb.Params()...,
	)
	if err != nil {
		return fmt.Errorf("get trace: %w", err)
	}
	if len(rows) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Trace not found: " + traceID}})
	}
	store.Normalize(h.dialect, rows, store.Columns{Structured: []string{"metadata"}})

	root := linkSpans(rows)
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"trace_id":          traceID,
			"root_span":         root,
			"spans":             rows,
			"total_duration_ms": root["duration_ms"],
		},
	})
}

// linkSpans sets "children" on every span and returns the root: the first
// span without a parent, or the first span at all.
func linkSpans(rows []map[string]any) map[string]any {
	children := make(map[string][]map[string]any, len(rows))
	var root map[string]any
	for _, row := range rows {
		parent := fmt.Sprint(row["parent_span_id"])
		if row["parent_span_id"] == nil || parent == "" {
			if root == nil {
				root = row
			}
			continue
		}
		children[parent] = append(children[parent], row)
	}
	for _, row := range rows {
		kids := children[fmt.Sprint(row["span_id"])]
		if kids == nil {
			kids = []map[string]any{}
		}
		row["children"] = kids
	}
	if root == nil {
		root = rows[0]
	}
	return root
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
