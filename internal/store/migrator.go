package store

import (
	"context"
	"fmt"
	"strings"

	"select-plus/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// QuoteIdent quotes a table or column name. Pivot columns such as "order"
// collide with SQL keywords, so generated statements quote every identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Migrate creates the entity's table, or adds the columns it is missing.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}

	return m.alterTable(ctx, entity)
}

// MigrateJoinTable creates the join table for a belongs_to_many or
// morph_to_many relation, including its pivot columns. Missing pivot
// columns are added to an existing table.
func (m *Migrator) MigrateJoinTable(ctx context.Context, rel *metadata.Relation, sourceEntity, targetEntity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, rel.JoinTable)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}

	pivot := pivotFields(rel)

	if exists {
		existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, rel.JoinTable)
		if err != nil {
			return fmt.Errorf("get columns for %s: %w", rel.JoinTable, err)
		}
		for _, f := range pivot {
			if _, ok := existing[f.Name]; ok {
				continue
			}
			sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				QuoteIdent(rel.JoinTable), QuoteIdent(f.Name), m.store.Dialect.ColumnType(f.Type, f.Precision))
			if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
				return fmt.Errorf("add pivot column %s.%s: %w", rel.JoinTable, f.Name, err)
			}
		}
		return m.createIndexes(ctx, rel.JoinTable, joinIndexes(rel))
	}

	sourceField := sourceEntity.GetField(rel.SourceKey)
	targetField := targetEntity.GetField(rel.TargetKeyFor(targetEntity))
	if sourceField == nil || targetField == nil {
		return fmt.Errorf("cannot resolve key types for join table %s", rel.JoinTable)
	}

	cols := []string{
		fmt.Sprintf("%s %s NOT NULL", QuoteIdent(rel.SourceJoinKey), m.store.Dialect.ColumnType(sourceField.Type, 0)),
		fmt.Sprintf("%s %s NOT NULL", QuoteIdent(rel.TargetJoinKey), m.store.Dialect.ColumnType(targetField.Type, 0)),
	}
	key := []string{QuoteIdent(rel.SourceJoinKey), QuoteIdent(rel.TargetJoinKey)}
	if rel.Type == metadata.MorphToMany && rel.MorphType != "" {
		cols = append(cols, fmt.Sprintf("%s TEXT NOT NULL", QuoteIdent(rel.MorphType)))
		key = append(key, QuoteIdent(rel.MorphType))
	}
	for _, f := range pivot {
		cols = append(cols, fmt.Sprintf("%s %s", QuoteIdent(f.Name), m.store.Dialect.ColumnType(f.Type, f.Precision)))
	}
	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(key, ", ")))

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", QuoteIdent(rel.JoinTable), strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create join table %s: %w", rel.JoinTable, err)
	}
	return m.createIndexes(ctx, rel.JoinTable, joinIndexes(rel))
}

// pivotFields lists the extra join-table columns: declared pivot columns,
// the order column and timestamps.
func pivotFields(rel *metadata.Relation) []metadata.Field {
	fields := append([]metadata.Field(nil), rel.PivotColumns...)
	has := func(name string) bool {
		for _, f := range fields {
			if f.Name == name {
				return true
			}
		}
		return false
	}
	if rel.OrderBy != "" && !has(rel.OrderBy) {
		fields = append(fields, metadata.Field{Name: rel.OrderBy, Type: "int"})
	}
	if rel.PivotTimestamps {
		for _, name := range []string{"created_at", "updated_at"} {
			if !has(name) {
				fields = append(fields, metadata.Field{Name: name, Type: "timestamp"})
			}
		}
	}
	return fields
}

// tableFields is the entity's fields plus the deleted_at column soft-deleted
// entities need.
func tableFields(entity *metadata.Entity) []metadata.Field {
	fields := entity.Fields
	if entity.SoftDelete && entity.GetField("deleted_at") == nil {
		fields = append(append([]metadata.Field(nil), fields...), metadata.Field{Name: "deleted_at", Type: "timestamp", Nullable: true})
	}
	return fields
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	var cols []string
	for _, f := range tableFields(entity) {
		cols = append(cols, m.columnDef(entity, f))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", QuoteIdent(entity.Table), strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}
	return m.createIndexes(ctx, entity.Table, entityIndexes(entity))
}

// alterTable adds missing columns. Added columns are always nullable since
// existing rows have no value for them.
func (m *Migrator) alterTable(ctx context.Context, entity *metadata.Entity) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	for _, f := range tableFields(entity) {
		if _, ok := existing[f.Name]; ok {
			continue
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			QuoteIdent(entity.Table), QuoteIdent(f.Name), m.store.Dialect.ColumnType(f.Type, f.Precision))
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	return m.createIndexes(ctx, entity.Table, entityIndexes(entity))
}

func (m *Migrator) columnDef(entity *metadata.Entity, f metadata.Field) string {
	if f.Name == entity.PrimaryKey.Field {
		return QuoteIdent(f.Name) + " " + m.store.Dialect.PrimaryKeyColumn(entity.PrimaryKey.Type, entity.PrimaryKey.Generated)
	}

	col := QuoteIdent(f.Name) + " " + m.store.Dialect.ColumnType(f.Type, f.Precision)
	if f.Required && !f.Nullable {
		col += " NOT NULL"
	}
	if f.Default != nil {
		col += " DEFAULT " + m.literal(f.Default)
	}
	return col
}

// literal renders a column default from its JSON-decoded value.
func (m *Migrator) literal(v any) string {
	switch v := v.(type) {
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		if !m.store.Dialect.NeedsBoolFix() {
			return fmt.Sprintf("%t", v)
		}
		if v {
			return "1"
		}
		return "0"
	}
	return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
}

type index struct {
	name    string
	columns []string
	unique  bool
	where   string
}

func entityIndexes(entity *metadata.Entity) []index {
	var out []index
	for _, f := range entity.Fields {
		if f.Unique {
			out = append(out, index{name: fmt.Sprintf("idx_%s_%s", entity.Table, f.Name), columns: []string{f.Name}, unique: true})
		}
	}
	if entity.SoftDelete {
		out = append(out, index{
			name:    fmt.Sprintf("idx_%s_deleted_at", entity.Table),
			columns: []string{"deleted_at"},
			where:   "deleted_at IS NULL",
		})
	}
	return out
}

// joinIndexes covers lookups from the target side of a pivot, which the
// composite primary key does not.
func joinIndexes(rel *metadata.Relation) []index {
	return []index{{
		name:    fmt.Sprintf("idx_%s_%s", rel.JoinTable, rel.TargetJoinKey),
		columns: []string{rel.TargetJoinKey},
	}}
}

func (m *Migrator) createIndexes(ctx context.Context, table string, indexes []index) error {
	for _, idx := range indexes {
		cols := make([]string, len(idx.columns))
		for i, c := range idx.columns {
			cols[i] = QuoteIdent(c)
		}
		kind := "INDEX"
		if idx.unique {
			kind = "UNIQUE INDEX"
		}
		sql := fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
			kind, QuoteIdent(idx.name), QuoteIdent(table), strings.Join(cols, ", "))
		if idx.where != "" {
			sql += " WHERE " + idx.where
		}
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
