package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"select-plus/internal/metadata"
	"select-plus/internal/store"
)

// Catalog persists entity and relation definitions into the system tables,
// migrates the backing tables and refreshes the registry.
type Catalog struct {
	store    *store.Store
	registry *metadata.Registry
	migrator *store.Migrator
}

func NewCatalog(s *store.Store, reg *metadata.Registry) *Catalog {
	return &Catalog{store: s, registry: reg, migrator: store.NewMigrator(s)}
}

// PutEntity inserts or replaces an entity definition and migrates its table.
func (c *Catalog) PutEntity(ctx context.Context, entity *metadata.Entity) error {
	if err := validateEntity(entity); err != nil {
		return err
	}
	defJSON, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	pb := c.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf(
		"INSERT INTO _entities (name, table_name, definition) VALUES (%s, %s, %s) "+
			"ON CONFLICT (name) DO UPDATE SET table_name = excluded.table_name, definition = excluded.definition, updated_at = %s",
		pb.Add(entity.Name), pb.Add(entity.Table), pb.Add(string(defJSON)), c.store.Dialect.NowExpr())
	if _, err := store.Exec(ctx, c.store.DB, sql, pb.Params()...); err != nil {
		return fmt.Errorf("save entity %s: %w", entity.Name, store.MapError(c.store.Dialect, err))
	}

	if err := c.migrator.Migrate(ctx, entity); err != nil {
		return fmt.Errorf("migrate entity %s: %w", entity.Name, err)
	}
	return c.Reload(ctx)
}

// PutRelation inserts or replaces a relation definition. Join-table
// relations get their join table created or extended with pivot columns.
func (c *Catalog) PutRelation(ctx context.Context, rel *metadata.Relation) error {
	if err := validateRelation(rel, c.registry); err != nil {
		return err
	}
	defJSON, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("marshal relation: %w", err)
	}

	pb := c.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf(
		"INSERT INTO _relations (name, source, target, definition) VALUES (%s, %s, %s, %s) "+
			"ON CONFLICT (name) DO UPDATE SET source = excluded.source, target = excluded.target, definition = excluded.definition, updated_at = %s",
		pb.Add(relationKey(rel)), pb.Add(rel.Source), pb.Add(rel.Target), pb.Add(string(defJSON)), c.store.Dialect.NowExpr())
	if _, err := store.Exec(ctx, c.store.DB, sql, pb.Params()...); err != nil {
		return fmt.Errorf("save relation %s: %w", rel.Name, store.MapError(c.store.Dialect, err))
	}

	if rel.IsManyToMany() {
		source := c.registry.GetEntity(rel.Source)
		target := c.registry.GetEntity(rel.Target)
		if err := c.migrator.MigrateJoinTable(ctx, rel, source, target); err != nil {
			return fmt.Errorf("create join table: %w", err)
		}
	}
	return c.Reload(ctx)
}

// DeleteEntity removes the definition. The table itself is left in place.
func (c *Catalog) DeleteEntity(ctx context.Context, name string) (bool, error) {
	return c.delete(ctx, "_entities", name)
}

func (c *Catalog) DeleteRelation(ctx context.Context, name string) (bool, error) {
	return c.delete(ctx, "_relations", name)
}

func (c *Catalog) delete(ctx context.Context, table, name string) (bool, error) {
	pb := c.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, c.store.DB,
		fmt.Sprintf("DELETE FROM %s WHERE name = %s", table, pb.Add(name)), pb.Params()...)
	if err != nil {
		return false, fmt.Errorf("delete %s from %s: %w", name, table, err)
	}
	if n == 0 {
		return false, nil
	}
	return true, c.Reload(ctx)
}

func (c *Catalog) Reload(ctx context.Context) error {
	if err := metadata.Reload(ctx, c.store.DB, c.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return nil
}

// relationKey is the _relations primary key. Relation names are attribute
// names and only unique per source entity.
func relationKey(rel *metadata.Relation) string {
	return rel.Source + "." + rel.Name
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

func validateEntity(e *metadata.Entity) error {
	if e.Name == "" {
		return invalid("entity name is required")
	}
	if e.Table == "" {
		return invalid("table name is required")
	}
	if len(e.Fields) == 0 {
		return invalid("entity must have at least one field")
	}
	if e.PrimaryKey.Field == "" {
		return invalid("primary key field is required")
	}
	if !e.HasField(e.PrimaryKey.Field) {
		return invalid("primary key field %s not found in fields", e.PrimaryKey.Field)
	}
	return nil
}

func validateRelation(r *metadata.Relation, reg *metadata.Registry) error {
	if r.Name == "" {
		return invalid("relation name is required")
	}
	if r.Source == "" || r.Target == "" {
		return invalid("source and target are required")
	}
	if !r.Type.Valid() {
		return invalid("invalid relation type: %s", r.Type)
	}
	source := reg.GetEntity(r.Source)
	if source == nil {
		return invalid("source entity not found: %s", r.Source)
	}
	if reg.GetEntity(r.Target) == nil && r.Type != metadata.MorphTo {
		return invalid("target entity not found: %s", r.Target)
	}
	if r.SourceKey == "" {
		return invalid("source_key is required")
	}
	switch {
	case r.Type.IsMany():
		if r.JoinTable == "" || r.SourceJoinKey == "" || r.TargetJoinKey == "" {
			return invalid("join_table, source_join_key and target_join_key are required for %s relations", r.Type)
		}
	case r.Type.IsSingle():
		if !source.HasField(r.SourceKey) {
			return invalid("source_key %s not found on %s", r.SourceKey, r.Source)
		}
	}
	if r.Type.IsMorph() && r.MorphType == "" {
		return invalid("morph_type is required for %s relations", r.Type)
	}
	return nil
}
