package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"select-plus/internal/metadata"
	"select-plus/internal/store"
)

// BuildInsertSQL builds an INSERT for the owner row that returns the primary
// key. Auto-managed timestamp fields are set by the database.
func BuildInsertSQL(dialect store.Dialect, entity *metadata.Entity, fields map[string]any) (string, []any) {
	pb := dialect.NewParamBuilder()
	var cols, vals []string
	for _, name := range sortedKeys(fields) {
		cols = append(cols, store.QuoteIdent(name))
		vals = append(vals, pb.Add(fields[name]))
	}
	for _, f := range entity.Fields {
		if f.IsAuto() {
			cols = append(cols, store.QuoteIdent(f.Name))
			vals = append(vals, dialect.NowExpr())
		}
	}

	pk := store.QuoteIdent(entity.PrimaryKey.Field)
	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", store.QuoteIdent(entity.Table), pk), nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		store.QuoteIdent(entity.Table), strings.Join(cols, ", "), strings.Join(vals, ", "), pk), pb.Params()
}

// BuildUpdateSQL builds an UPDATE of the given fields, or returns "" when
// there is nothing to write.
func BuildUpdateSQL(dialect store.Dialect, entity *metadata.Entity, id any, fields map[string]any) (string, []any) {
	pb := dialect.NewParamBuilder()
	var sets []string
	for _, name := range sortedKeys(fields) {
		sets = append(sets, fmt.Sprintf("%s = %s", store.QuoteIdent(name), pb.Add(fields[name])))
	}
	if len(sets) == 0 {
		return "", nil
	}
	for _, f := range entity.Fields {
		if f.Auto == metadata.AutoUpdate {
			sets = append(sets, fmt.Sprintf("%s = %s", store.QuoteIdent(f.Name), dialect.NowExpr()))
		}
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		store.QuoteIdent(entity.Table), strings.Join(sets, ", "),
		store.QuoteIdent(entity.PrimaryKey.Field), pb.Add(id))
	if entity.SoftDelete {
		sql += " AND deleted_at IS NULL"
	}
	return sql, pb.Params()
}

// columnValues picks the writable columns present in attributes and encodes
// JSON columns.
func columnValues(entity *metadata.Entity, attributes map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	for _, f := range entity.WritableFields() {
		v, ok := attributes[f.Name]
		if !ok {
			continue
		}
		if f.IsStructured() && v != nil {
			if s, isString := v.(string); isString && json.Valid([]byte(s)) {
				out[f.Name] = s
				continue
			}
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", f.Name, err)
			}
			v = string(b)
		}
		out[f.Name] = v
	}
	return out, nil
}

func fetchRecord(ctx context.Context, q store.Querier, dialect store.Dialect, entity *metadata.Entity, id any) (map[string]any, error) {
	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		selectColumns(entity), store.QuoteIdent(entity.Table), store.QuoteIdent(entity.PrimaryKey.Field), pb.Add(id))
	if entity.SoftDelete {
		sql += " AND deleted_at IS NULL"
	}

	row, err := store.QueryRow(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, err
	}
	store.Normalize(dialect, []map[string]any{row}, columnsOf(entity))
	return row, nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedNames(m map[string]bool) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
