package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
)

// Querier is the read side of *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LoadAll reads the stored catalog (entities, relations and rules) and swaps
// it into the registry. Rows with a definition that does not decode are
// skipped with a warning so one bad row cannot take the engine down.
func LoadAll(ctx context.Context, db Querier, reg *Registry) error {
	entities, err := loadDefinitions(ctx, db, "_entities", func(e *Entity) error { return nil })
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	relations, err := loadDefinitions(ctx, db, "_relations", func(r *Relation) error {
		if !r.Type.Valid() {
			return fmt.Errorf("unknown type %q", r.Type)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load relations: %w", err)
	}
	rules, err := loadRules(ctx, db)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	reg.Load(entities, relations)
	reg.LoadRules(rules)

	log.Printf("Loaded %d entities, %d relations, %d rules into registry",
		len(entities), len(relations), len(rules))
	return nil
}

// Reload is LoadAll under the name the admin catalog calls after a change.
func Reload(ctx context.Context, db Querier, reg *Registry) error {
	return LoadAll(ctx, db, reg)
}

// loadDefinitions decodes the definition column of every row in a catalog
// table, keyed by name.
func loadDefinitions[T any](ctx context.Context, db Querier, table string, check func(*T) error) ([]*T, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, definition FROM "+table+" ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var name string
		var def []byte
		if err := rows.Scan(&name, &def); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		v := new(T)
		if err := json.Unmarshal(def, v); err != nil {
			log.Printf("WARN: skipping %s %s (invalid JSON): %v", table, name, err)
			continue
		}
		if err := check(v); err != nil {
			log.Printf("WARN: skipping %s %s: %v", table, name, err)
			continue
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func loadRules(ctx context.Context, db Querier) ([]*Rule, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, entity, hook, type, definition, priority, active FROM _rules ORDER BY entity, priority")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		var r Rule
		var def []byte
		if err := rows.Scan(&r.ID, &r.Entity, &r.Hook, &r.Type, &def, &r.Priority, &r.Active); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		if err := json.Unmarshal(def, &r.Definition); err != nil {
			log.Printf("WARN: skipping rule %s (invalid JSON): %v", r.ID, err)
			continue
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}
