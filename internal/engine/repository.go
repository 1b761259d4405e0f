package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"select-plus/internal/metadata"
	"select-plus/internal/selectplus"
	"select-plus/internal/store"
)

// SQLRepository is the selectplus.Repository over the SQL store. It runs on
// the database handle by default and on a transaction after WithQuerier.
type SQLRepository struct {
	q        store.Querier
	dialect  store.Dialect
	registry *metadata.Registry
}

var _ selectplus.Repository = &SQLRepository{}

func NewSQLRepository(s *store.Store, reg *metadata.Registry) *SQLRepository {
	return &SQLRepository{q: s.DB, dialect: s.Dialect, registry: reg}
}

// WithQuerier returns a copy of the repository bound to q, typically a
// *sql.Tx owned by the write orchestrator.
func (r *SQLRepository) WithQuerier(q store.Querier) *SQLRepository {
	c := *r
	c.q = q
	return &c
}

func (r *SQLRepository) Find(ctx context.Context, q *selectplus.Query) ([]selectplus.Row, error) {
	qr, err := CompileQuery(r.registry, r.dialect, q)
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRows(ctx, r.q, qr.SQL, qr.Params...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Entity, err)
	}
	return r.toRows(r.registry.GetEntity(q.Entity), rows), nil
}

// Related loads the target rows attached to owner through rel's join table,
// ordered by the relation's pivot order column when it has one.
func (r *SQLRepository) Related(ctx context.Context, owner *selectplus.Owner, rel *metadata.Relation) ([]selectplus.Row, error) {
	if !rel.Type.IsMany() {
		return nil, fmt.Errorf("related %s: relation has no join table", rel.Name)
	}
	target := r.registry.GetEntity(rel.Target)
	if target == nil {
		return nil, fmt.Errorf("related %s: unknown entity %s", rel.Name, rel.Target)
	}

	pb := r.dialect.NewParamBuilder()
	cols := make([]string, len(target.Fields))
	for i, name := range target.FieldNames() {
		cols[i] = "t." + store.QuoteIdent(name)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s t JOIN %s j ON j.%s = t.%s WHERE j.%s = %s",
		strings.Join(cols, ", "),
		store.QuoteIdent(target.Table), store.QuoteIdent(rel.JoinTable),
		store.QuoteIdent(rel.TargetJoinKey), store.QuoteIdent(rel.TargetKeyFor(target)),
		store.QuoteIdent(rel.SourceJoinKey), pb.Add(owner.Key))
	if rel.Type == metadata.MorphToMany && rel.MorphType != "" {
		sql += fmt.Sprintf(" AND j.%s = %s", store.QuoteIdent(rel.MorphType), pb.Add(rel.MorphValue()))
	}
	if target.SoftDelete {
		sql += " AND t.deleted_at IS NULL"
	}
	if rel.OrderBy != "" {
		sql += fmt.Sprintf(" ORDER BY j.%s, t.%s", store.QuoteIdent(rel.OrderBy), store.QuoteIdent(target.PrimaryKey.Field))
	}

	rows, err := store.QueryRows(ctx, r.q, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("related %s: %w", rel.Name, err)
	}
	return r.toRows(target, rows), nil
}

// Sync makes the owner's join rows equal to rows. Join rows that stay keep
// their created_at; their extra columns and updated_at are refreshed.
func (r *SQLRepository) Sync(ctx context.Context, owner *selectplus.Owner, rel *metadata.Relation, rows []selectplus.PivotRow) error {
	if !rel.Type.IsMany() {
		return fmt.Errorf("sync %s: relation has no join table", rel.Name)
	}

	scope := func(pb store.ParamBuilder) string {
		clause := fmt.Sprintf("%s = %s", store.QuoteIdent(rel.SourceJoinKey), pb.Add(owner.Key))
		if rel.Type == metadata.MorphToMany && rel.MorphType != "" {
			clause += fmt.Sprintf(" AND %s = %s", store.QuoteIdent(rel.MorphType), pb.Add(rel.MorphValue()))
		}
		return clause
	}

	pb := r.dialect.NewParamBuilder()
	currentSQL := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		store.QuoteIdent(rel.TargetJoinKey), store.QuoteIdent(rel.JoinTable), scope(pb))
	current, err := store.QueryRows(ctx, r.q, currentSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("fetch current join rows: %w", err)
	}

	keys := make([]any, len(rows))
	for i, row := range rows {
		keys[i] = row.Key
	}
	pb = r.dialect.NewParamBuilder()
	delSQL := fmt.Sprintf("DELETE FROM %s WHERE %s AND %s",
		store.QuoteIdent(rel.JoinTable), scope(pb), store.NotInExpr(store.QuoteIdent(rel.TargetJoinKey), pb, keys))
	if _, err := store.Exec(ctx, r.q, delSQL, pb.Params()...); err != nil {
		return fmt.Errorf("delete join rows: %w", err)
	}

	for _, row := range rows {
		attached := false
		for _, c := range current {
			if selectplus.SameKey(c[rel.TargetJoinKey], row.Key) {
				attached = true
				break
			}
		}
		if attached {
			err = r.updateJoinRow(ctx, rel, scope, row)
		} else {
			err = r.insertJoinRow(ctx, rel, owner.Key, row)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLRepository) insertJoinRow(ctx context.Context, rel *metadata.Relation, ownerKey any, row selectplus.PivotRow) error {
	pb := r.dialect.NewParamBuilder()
	cols := []string{store.QuoteIdent(rel.SourceJoinKey), store.QuoteIdent(rel.TargetJoinKey)}
	vals := []string{pb.Add(ownerKey), pb.Add(row.Key)}
	if rel.Type == metadata.MorphToMany && rel.MorphType != "" {
		cols = append(cols, store.QuoteIdent(rel.MorphType))
		vals = append(vals, pb.Add(rel.MorphValue()))
	}
	for _, name := range sortedKeys(row.Extra) {
		cols = append(cols, store.QuoteIdent(name))
		vals = append(vals, pb.Add(row.Extra[name]))
	}
	if rel.PivotTimestamps {
		cols = append(cols, `"created_at"`, `"updated_at"`)
		vals = append(vals, r.dialect.NowExpr(), r.dialect.NowExpr())
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		store.QuoteIdent(rel.JoinTable), strings.Join(cols, ", "), strings.Join(vals, ", "))
	if _, err := store.Exec(ctx, r.q, sql, pb.Params()...); err != nil {
		return fmt.Errorf("insert join row in %s: %w", rel.JoinTable, err)
	}
	return nil
}

func (r *SQLRepository) updateJoinRow(ctx context.Context, rel *metadata.Relation, scope func(store.ParamBuilder) string, row selectplus.PivotRow) error {
	pb := r.dialect.NewParamBuilder()
	var sets []string
	for _, name := range sortedKeys(row.Extra) {
		sets = append(sets, fmt.Sprintf("%s = %s", store.QuoteIdent(name), pb.Add(row.Extra[name])))
	}
	if rel.PivotTimestamps {
		sets = append(sets, `"updated_at" = `+r.dialect.NowExpr())
	}
	if len(sets) == 0 {
		return nil
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s AND %s = %s",
		store.QuoteIdent(rel.JoinTable), strings.Join(sets, ", "), scope(pb),
		store.QuoteIdent(rel.TargetJoinKey), pb.Add(row.Key))
	if _, err := store.Exec(ctx, r.q, sql, pb.Params()...); err != nil {
		return fmt.Errorf("update join row in %s: %w", rel.JoinTable, err)
	}
	return nil
}

// toRows normalizes scanned rows of entity and hands them to selectplus.
func (r *SQLRepository) toRows(entity *metadata.Entity, rows []map[string]any) []selectplus.Row {
	if entity != nil {
		store.Normalize(r.dialect, rows, columnsOf(entity))
	}
	out := make([]selectplus.Row, len(rows))
	for i, row := range rows {
		out[i] = selectplus.Row(row)
	}
	return out
}

// columnsOf lists the columns of entity that need decoding after a scan.
func columnsOf(entity *metadata.Entity) store.Columns {
	return store.Columns{Booleans: entity.BooleanFields(), Structured: entity.StructuredFields()}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
