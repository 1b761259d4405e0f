package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"select-plus/internal/config"
	"select-plus/internal/metadata"
)

func TestParamBuilders(t *testing.T) {
	pg := NewDialect("postgres").NewParamBuilder()
	if got := pg.Add("a") + "," + pg.Add("b"); got != "$1,$2" {
		t.Fatalf("unexpected postgres placeholders: %s", got)
	}
	lite := NewDialect("sqlite").NewParamBuilder()
	lite.Add(1)
	if got := lite.Add(2); got != "?2" || lite.Count() != 2 {
		t.Fatalf("unexpected sqlite placeholder %s (count %d)", got, lite.Count())
	}
}

func TestInExpressions(t *testing.T) {
	pb := NewDialect("postgres").NewParamBuilder()
	if got := InExpr(`"id"`, pb, nil); got != "1 = 0" {
		t.Fatalf("empty IN should match nothing, got %s", got)
	}
	if got := NotInExpr(`"id"`, pb, nil); got != "1 = 1" {
		t.Fatalf("empty NOT IN should match everything, got %s", got)
	}
	if got := InExpr(`"id"`, pb, []any{1, 2}); got != `"id" IN ($1, $2)` {
		t.Fatalf("unexpected IN: %s", got)
	}
}

func TestContainsExpr(t *testing.T) {
	d := NewDialect("sqlite")
	pb := d.NewParamBuilder()
	expr := ContainsExpr(d, `"name"`, pb, `50%_off\`)
	if expr != `"name" LIKE ?1 ESCAPE '\'` {
		t.Fatalf("unexpected expression: %s", expr)
	}
	if got := pb.Params()[0]; got != `%50\%\_off\\%` {
		t.Fatalf("unexpected pattern: %v", got)
	}

	pg := NewDialect("postgres")
	if got := ContainsExpr(pg, `"name"`, pg.NewParamBuilder(), "tex"); got != `"name"::text ILIKE $1` {
		t.Fatalf("unexpected postgres expression: %s", got)
	}
}

func TestSystemTablesSQL(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite"} {
		ddl := NewDialect(driver).SystemTablesSQL()
		if strings.Contains(ddl, "{") {
			t.Fatalf("%s: unreplaced token in system tables DDL", driver)
		}
		for _, table := range []string{"_entities", "_relations", "_rules", "_events"} {
			if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS "+table) {
				t.Fatalf("%s: missing %s", driver, table)
			}
		}
	}
	if !strings.Contains(NewDialect("postgres").SystemTablesSQL(), "UUID PRIMARY KEY DEFAULT gen_random_uuid()") {
		t.Fatal("postgres keys should default to generated uuids")
	}
}

func TestNormalize(t *testing.T) {
	rows := []map[string]any{
		{"active": int64(1), "visited": `[3,1]`, "note": "not json"},
		{"active": int64(0), "visited": nil, "note": `{"a":1}`},
	}
	Normalize(NewDialect("sqlite"), rows, Columns{Booleans: []string{"active"}, Structured: []string{"visited"}})

	if rows[0]["active"] != true || rows[1]["active"] != false {
		t.Fatalf("booleans not fixed: %v", rows)
	}
	visited, ok := rows[0]["visited"].([]any)
	if !ok || len(visited) != 2 || visited[0] != float64(3) {
		t.Fatalf("json column not decoded: %#v", rows[0]["visited"])
	}
	if rows[1]["visited"] != nil || rows[1]["note"] != `{"a":1}` {
		t.Fatalf("only structured columns should be decoded: %v", rows[1])
	}

	pgRows := []map[string]any{{"active": int64(1)}}
	Normalize(NewDialect("postgres"), pgRows, Columns{Booleans: []string{"active"}})
	if pgRows[0]["active"] != int64(1) {
		t.Fatal("postgres booleans need no fix")
	}
}

func TestMigrator(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "migrate"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	states := &metadata.Entity{
		Name: "states", Table: "states",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "code", Type: "string", Unique: true},
		},
	}
	people := &metadata.Entity{
		Name: "people", Table: "people", SoftDelete: true,
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "string", Required: true, Default: "Nobody's"},
		},
	}
	m := NewMigrator(s)
	for _, e := range []*metadata.Entity{states, people} {
		if err := m.Migrate(ctx, e); err != nil {
			t.Fatalf("migrate %s: %v", e.Name, err)
		}
	}

	people.Fields = append(people.Fields, metadata.Field{Name: "cities_visited", Type: "json"})
	if err := m.Migrate(ctx, people); err != nil {
		t.Fatalf("alter people: %v", err)
	}
	cols, err := s.Dialect.GetColumns(ctx, s.DB, "people")
	if err != nil {
		t.Fatalf("get columns: %v", err)
	}
	for _, name := range []string{"name", "deleted_at", "cities_visited"} {
		if _, ok := cols[name]; !ok {
			t.Fatalf("people is missing %s: %v", name, cols)
		}
	}

	rel := &metadata.Relation{
		Name: "statesVisited", Type: metadata.BelongsToMany, Source: "people", Target: "states",
		SourceKey: "id", JoinTable: "state_user_visited", SourceJoinKey: "person_id", TargetJoinKey: "state_id",
		OrderBy: "order", PivotTimestamps: true,
	}
	if err := m.MigrateJoinTable(ctx, rel, people, states); err != nil {
		t.Fatalf("migrate join table: %v", err)
	}
	cols, err = s.Dialect.GetColumns(ctx, s.DB, "state_user_visited")
	if err != nil {
		t.Fatalf("get pivot columns: %v", err)
	}
	for _, name := range []string{"person_id", "state_id", "order", "created_at", "updated_at"} {
		if _, ok := cols[name]; !ok {
			t.Fatalf("pivot is missing %s: %v", name, cols)
		}
	}

	var indexes int
	err = s.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name IN ('idx_states_code', 'idx_people_deleted_at', 'idx_state_user_visited_state_id')",
	).Scan(&indexes)
	if err != nil {
		t.Fatalf("inspect indexes: %v", err)
	}
	if indexes != 3 {
		t.Fatalf("expected 3 indexes, found %d", indexes)
	}

	if _, err := Exec(ctx, s.DB, `INSERT INTO states (code) VALUES (?1)`, "TX"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = Exec(ctx, s.DB, `INSERT INTO states (code) VALUES (?1)`, "TX")
	if mapped := MapError(s.Dialect, err); !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected a unique violation, got %v", mapped)
	}

	row, err := QueryRow(ctx, s.DB, `INSERT INTO people DEFAULT VALUES RETURNING name`)
	if err != nil {
		t.Fatalf("insert default person: %v", err)
	}
	if row["name"] != "Nobody's" {
		t.Fatalf("expected the column default, got %v", row["name"])
	}
	if _, err := QueryRow(ctx, s.DB, `SELECT id FROM people WHERE id = ?1`, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
