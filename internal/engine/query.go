package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"select-plus/internal/metadata"
	"select-plus/internal/selectplus"
	"select-plus/internal/store"
)

type QueryPlan struct {
	Entity  *metadata.Entity
	Filters []WhereClause
	Sorts   []OrderClause
	Page    int
	PerPage int
}

type WhereClause struct {
	Field    string
	Operator string
	Value    any
}

type OrderClause struct {
	Field string
	Dir   string // ASC or DESC
}

type QueryResult struct {
	SQL    string
	Params []any
}

// ParseQueryParams parses Fiber query parameters into a QueryPlan.
func ParseQueryParams(c *fiber.Ctx, entity *metadata.Entity) (*QueryPlan, error) {
	plan := &QueryPlan{
		Entity:  entity,
		Page:    1,
		PerPage: 25,
	}

	// Parse filters: filter[field]=val or filter[field.op]=val
	queries := c.Queries()
	for key, val := range queries {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		inner := key[7 : len(key)-1]
		field, op := parseFilterKey(inner)

		if !entity.HasField(field) {
			return nil, &AppError{
				Code:    "UNKNOWN_FIELD",
				Status:  400,
				Message: fmt.Sprintf("Unknown filter field: %s", field),
			}
		}

		coerced, err := coerceValue(entity.GetField(field), val, op)
		if err != nil {
			return nil, &AppError{
				Code:    "INVALID_PAYLOAD",
				Status:  400,
				Message: fmt.Sprintf("Invalid filter value for %s: %v", field, err),
			}
		}

		plan.Filters = append(plan.Filters, WhereClause{
			Field:    field,
			Operator: op,
			Value:    coerced,
		})
	}

	// Parse sort: sort=-name,id
	if sortParam := c.Query("sort"); sortParam != "" {
		for _, part := range strings.Split(sortParam, ",") {
			part = strings.TrimSpace(part)
			dir := "ASC"
			field := part
			if strings.HasPrefix(part, "-") {
				dir = "DESC"
				field = part[1:]
			}
			if !entity.HasField(field) {
				return nil, &AppError{
					Code:    "UNKNOWN_FIELD",
					Status:  400,
					Message: fmt.Sprintf("Unknown sort field: %s", field),
				}
			}
			plan.Sorts = append(plan.Sorts, OrderClause{Field: field, Dir: dir})
		}
	}

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			plan.Page = v
		}
	}
	if pp := c.Query("per_page"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			plan.PerPage = min(v, 100)
		}
	}

	return plan, nil
}

// BuildSelectSQL builds a parameterized SELECT statement from the query plan.
func BuildSelectSQL(dialect store.Dialect, plan *QueryPlan) QueryResult {
	pb := dialect.NewParamBuilder()
	where := planWhere(dialect, plan, pb)

	sql := fmt.Sprintf("SELECT %s FROM %s", selectColumns(plan.Entity), store.QuoteIdent(plan.Entity.Table))
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	sorts := plan.Sorts
	if len(sorts) == 0 {
		sorts = []OrderClause{{Field: plan.Entity.PrimaryKey.Field, Dir: "ASC"}}
	}
	orderParts := make([]string, len(sorts))
	for i, s := range sorts {
		orderParts[i] = fmt.Sprintf("%s %s", store.QuoteIdent(s.Field), s.Dir)
	}
	sql += " ORDER BY " + strings.Join(orderParts, ", ")

	limit := pb.Add(plan.PerPage)
	offset := pb.Add((plan.Page - 1) * plan.PerPage)
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)

	return QueryResult{SQL: sql, Params: pb.Params()}
}

// BuildCountSQL builds a COUNT query with the same filters as the select.
func BuildCountSQL(dialect store.Dialect, plan *QueryPlan) QueryResult {
	pb := dialect.NewParamBuilder()
	where := planWhere(dialect, plan, pb)

	sql := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", store.QuoteIdent(plan.Entity.Table))
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return QueryResult{SQL: sql, Params: pb.Params()}
}

func planWhere(dialect store.Dialect, plan *QueryPlan, pb store.ParamBuilder) []string {
	var where []string
	if plan.Entity.SoftDelete {
		where = append(where, "deleted_at IS NULL")
	}
	for _, f := range plan.Filters {
		where = append(where, buildWhereClause(dialect, f, pb))
	}
	return where
}

func buildWhereClause(dialect store.Dialect, f WhereClause, pb store.ParamBuilder) string {
	col := store.QuoteIdent(f.Field)
	switch f.Operator {
	case "neq":
		return fmt.Sprintf("%s != %s", col, pb.Add(f.Value))
	case "gt":
		return fmt.Sprintf("%s > %s", col, pb.Add(f.Value))
	case "gte":
		return fmt.Sprintf("%s >= %s", col, pb.Add(f.Value))
	case "lt":
		return fmt.Sprintf("%s < %s", col, pb.Add(f.Value))
	case "lte":
		return fmt.Sprintf("%s <= %s", col, pb.Add(f.Value))
	case "in":
		values, _ := f.Value.([]any)
		return store.InExpr(col, pb, values)
	case "not_in":
		values, _ := f.Value.([]any)
		return store.NotInExpr(col, pb, values)
	case "like":
		return dialect.LikeExpr(col, pb, fmt.Sprint(f.Value), false)
	default:
		return fmt.Sprintf("%s = %s", col, pb.Add(f.Value))
	}
}

// parseFilterKey splits "total.gte" into ("total", "gte") or "status" into ("status", "eq").
func parseFilterKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, "eq"
}

// coerceValue converts string query param values to appropriate Go types based on field metadata.
func coerceValue(field *metadata.Field, val string, op string) (any, error) {
	if op == "in" || op == "not_in" {
		parts := strings.Split(val, ",")
		coerced := make([]any, len(parts))
		for i, p := range parts {
			v, err := coerceSingleValue(field, strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			coerced[i] = v
		}
		return coerced, nil
	}
	return coerceSingleValue(field, val)
}

func coerceSingleValue(field *metadata.Field, val string) (any, error) {
	switch field.Type {
	case "int", "bigint":
		return strconv.ParseInt(val, 10, 64)
	case "decimal", "float":
		return strconv.ParseFloat(val, 64)
	case "boolean":
		return strconv.ParseBool(val)
	default:
		return val, nil
	}
}

func selectColumns(entity *metadata.Entity) string {
	cols := make([]string, 0, len(entity.Fields)+1)
	for _, name := range entity.FieldNames() {
		cols = append(cols, store.QuoteIdent(name))
	}
	if entity.SoftDelete && entity.GetField("deleted_at") == nil {
		cols = append(cols, "deleted_at")
	}
	return strings.Join(cols, ", ")
}

// CompileQuery renders an option query as dialect SQL. Columns are checked
// against the entity so filter callbacks cannot reference unknown columns.
func CompileQuery(reg *metadata.Registry, dialect store.Dialect, q *selectplus.Query) (QueryResult, error) {
	entity := reg.GetEntity(q.Entity)
	if entity == nil {
		return QueryResult{}, fmt.Errorf("compile query: unknown entity %s", q.Entity)
	}

	pb := dialect.NewParamBuilder()
	where, err := compileConditions(reg, dialect, entity, q.Conditions, pb)
	if err != nil {
		return QueryResult{}, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", selectColumns(entity), store.QuoteIdent(entity.Table))
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	if len(q.Orders) > 0 {
		parts := make([]string, len(q.Orders))
		for i, o := range q.Orders {
			if !hasColumn(entity, o.Column) {
				return QueryResult{}, fmt.Errorf("compile query: unknown sort column %s.%s", entity.Name, o.Column)
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts[i] = store.QuoteIdent(o.Column) + " " + dir
		}
		sql += " ORDER BY " + strings.Join(parts, ", ")
	}
	if q.Limit > 0 {
		sql += " LIMIT " + pb.Add(q.Limit)
	}
	return QueryResult{SQL: sql, Params: pb.Params()}, nil
}

func compileConditions(reg *metadata.Registry, dialect store.Dialect, entity *metadata.Entity, conds []selectplus.Condition, pb store.ParamBuilder) ([]string, error) {
	var where []string
	if entity.SoftDelete {
		where = append(where, "deleted_at IS NULL")
	}
	for _, cond := range conds {
		clause, err := compileCondition(reg, dialect, entity, cond, pb)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
	}
	return where, nil
}

func compileCondition(reg *metadata.Registry, dialect store.Dialect, entity *metadata.Entity, cond selectplus.Condition, pb store.ParamBuilder) (string, error) {
	if cond.Op == selectplus.OpHas {
		return compileHas(reg, dialect, entity, cond, pb)
	}
	if !hasColumn(entity, cond.Column) {
		return "", fmt.Errorf("compile query: unknown column %s.%s", entity.Name, cond.Column)
	}
	col := store.QuoteIdent(cond.Column)

	switch cond.Op {
	case selectplus.OpEq:
		if cond.Value == nil {
			return col + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", col, pb.Add(cond.Value)), nil
	case selectplus.OpNeq:
		if cond.Value == nil {
			return col + " IS NOT NULL", nil
		}
		return fmt.Sprintf("%s != %s", col, pb.Add(cond.Value)), nil
	case selectplus.OpIn:
		return store.InExpr(col, pb, cond.Values), nil
	case selectplus.OpNotIn:
		return store.NotInExpr(col, pb, cond.Values), nil
	case selectplus.OpLike:
		return dialect.LikeExpr(col, pb, fmt.Sprint(cond.Value), false), nil
	case selectplus.OpNotLike:
		return dialect.LikeExpr(col, pb, fmt.Sprint(cond.Value), true), nil
	case selectplus.OpContains:
		return store.ContainsExpr(dialect, col, pb, fmt.Sprint(cond.Value)), nil
	}
	return "", fmt.Errorf("compile query: unsupported operator %s", cond.Op)
}

// compileHas renders a relation constraint as an uncorrelated IN subquery.
func compileHas(reg *metadata.Registry, dialect store.Dialect, entity *metadata.Entity, cond selectplus.Condition, pb store.ParamBuilder) (string, error) {
	rel := reg.FindRelation(entity.Name, cond.Relation)
	if rel == nil {
		return "", fmt.Errorf("compile query: unknown relation %s.%s", entity.Name, cond.Relation)
	}
	target := reg.GetEntity(rel.Target)
	if target == nil {
		return "", fmt.Errorf("compile query: unknown entity %s", rel.Target)
	}

	var sub []selectplus.Condition
	if cond.Sub != nil {
		sub = cond.Sub.Conditions
	}
	where, err := compileConditions(reg, dialect, target, sub, pb)
	if err != nil {
		return "", err
	}
	targetKey := rel.TargetKeyFor(target)
	inner := fmt.Sprintf("SELECT %s FROM %s", store.QuoteIdent(targetKey), store.QuoteIdent(target.Table))
	if len(where) > 0 {
		inner += " WHERE " + strings.Join(where, " AND ")
	}

	switch {
	case rel.Type.IsSingle():
		clause := fmt.Sprintf("%s IN (%s)", store.QuoteIdent(rel.SourceKey), inner)
		if rel.Type == metadata.MorphTo && rel.MorphType != "" {
			clause = fmt.Sprintf("%s = %s AND %s", store.QuoteIdent(rel.MorphType), pb.Add(rel.MorphValue()), clause)
		}
		return "(" + clause + ")", nil
	case rel.Type.IsMany():
		join := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			store.QuoteIdent(rel.SourceJoinKey), store.QuoteIdent(rel.JoinTable), store.QuoteIdent(rel.TargetJoinKey), inner)
		if rel.Type == metadata.MorphToMany && rel.MorphType != "" {
			join += fmt.Sprintf(" AND %s = %s", store.QuoteIdent(rel.MorphType), pb.Add(rel.MorphValue()))
		}
		return fmt.Sprintf("%s IN (%s)", store.QuoteIdent(entity.PrimaryKey.Field), join), nil
	default:
		// has_one / has_many: the foreign key lives on the target.
		inner = fmt.Sprintf("SELECT %s FROM %s", store.QuoteIdent(rel.TargetKey), store.QuoteIdent(target.Table))
		if len(where) > 0 {
			inner += " WHERE " + strings.Join(where, " AND ")
		}
		return fmt.Sprintf("%s IN (%s)", store.QuoteIdent(rel.SourceKey), inner), nil
	}
}

func hasColumn(entity *metadata.Entity, column string) bool {
	return column == entity.PrimaryKey.Field || entity.HasField(column)
}
