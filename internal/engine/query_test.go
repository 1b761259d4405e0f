package engine

import (
	"reflect"
	"testing"

	"select-plus/internal/metadata"
	"select-plus/internal/selectplus"
	"select-plus/internal/store"
)

func queryRegistry() *metadata.Registry {
	key := metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true}
	reg := metadata.NewRegistry()
	reg.Load([]*metadata.Entity{
		{Name: "states", Table: "states", PrimaryKey: key, Fields: []metadata.Field{
			{Name: "id", Type: "bigint"}, {Name: "name", Type: "string"}, {Name: "code", Type: "string"},
		}},
		{Name: "cities", Table: "cities", PrimaryKey: key, Fields: []metadata.Field{
			{Name: "id", Type: "bigint"}, {Name: "name", Type: "string"}, {Name: "state_id", Type: "bigint"},
		}},
		{Name: "people", Table: "people", PrimaryKey: key, Fields: []metadata.Field{
			{Name: "id", Type: "bigint"}, {Name: "name", Type: "string"}, {Name: "favorite_state_id", Type: "bigint"},
		}},
	}, []*metadata.Relation{
		{Name: "state", Type: metadata.BelongsTo, Source: "cities", Target: "states", SourceKey: "state_id"},
		{Name: "cities", Type: metadata.HasMany, Source: "states", Target: "cities", SourceKey: "id", TargetKey: "state_id"},
		{Name: "statesVisited", Type: metadata.BelongsToMany, Source: "people", Target: "states", SourceKey: "id",
			JoinTable: "state_user_visited", SourceJoinKey: "person_id", TargetJoinKey: "state_id", OrderBy: "order"},
	})
	return reg
}

func TestCompileQuery(t *testing.T) {
	sqlite := store.NewDialect("sqlite")
	postgres := store.NewDialect("postgres")

	tests := []struct {
		name    string
		dialect store.Dialect
		query   *selectplus.Query
		sql     string
		params  []any
	}{
		{
			name:    "contains, not in, order and limit",
			dialect: sqlite,
			query: selectplus.NewQuery("states").
				WhereContains("name", "50%_off").
				WhereNotIn("id", 1, 2).
				OrderBy("name", false).
				Take(5),
			sql:    `SELECT "id", "name", "code" FROM "states" WHERE "name" LIKE ?1 ESCAPE '\' AND "id" NOT IN (?2, ?3) ORDER BY "name" ASC LIMIT ?4`,
			params: []any{`%50\%\_off%`, 1, 2, 5},
		},
		{
			name:    "not like on postgres",
			dialect: postgres,
			query:   selectplus.NewQuery("states").WhereNotLike("name", "C%"),
			sql:     `SELECT "id", "name", "code" FROM "states" WHERE "name"::text NOT ILIKE $1`,
			params:  []any{"C%"},
		},
		{
			name:    "null comparisons",
			dialect: sqlite,
			query: selectplus.NewQuery("cities").
				Where("state_id", selectplus.OpEq, nil).
				Where("name", selectplus.OpNeq, nil),
			sql: `SELECT "id", "name", "state_id" FROM "cities" WHERE "state_id" IS NULL AND "name" IS NOT NULL`,
		},
		{
			name:    "empty in list",
			dialect: postgres,
			query:   selectplus.NewQuery("states").WhereIn("code"),
			sql:     `SELECT "id", "name", "code" FROM "states" WHERE FALSE`,
		},
		{
			name:    "belongs to constraint",
			dialect: postgres,
			query: selectplus.NewQuery("cities").WhereHas("state", func(sub *selectplus.Query) {
				sub.WhereIn("code", "CA", "WA")
			}),
			sql:    `SELECT "id", "name", "state_id" FROM "cities" WHERE ("state_id" IN (SELECT "id" FROM "states" WHERE "code" IN ($1, $2)))`,
			params: []any{"CA", "WA"},
		},
		{
			name:    "has many constraint",
			dialect: sqlite,
			query: selectplus.NewQuery("states").WhereHas("cities", func(sub *selectplus.Query) {
				sub.Where("name", selectplus.OpEq, "Portland")
			}),
			sql:    `SELECT "id", "name", "code" FROM "states" WHERE "id" IN (SELECT "state_id" FROM "cities" WHERE "name" = ?1)`,
			params: []any{"Portland"},
		},
		{
			name:    "join table constraint",
			dialect: sqlite,
			query: selectplus.NewQuery("people").WhereHas("statesVisited", func(sub *selectplus.Query) {
				sub.Where("name", selectplus.OpEq, "Texas")
			}),
			sql: `SELECT "id", "name", "favorite_state_id" FROM "people" WHERE "id" IN ` +
				`(SELECT "person_id" FROM "state_user_visited" WHERE "state_id" IN (SELECT "id" FROM "states" WHERE "name" = ?1))`,
			params: []any{"Texas"},
		},
	}

	reg := queryRegistry()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			qr, err := CompileQuery(reg, tc.dialect, tc.query)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if qr.SQL != tc.sql {
				t.Fatalf("unexpected SQL\n got: %s\nwant: %s", qr.SQL, tc.sql)
			}
			if len(tc.params) == 0 && len(qr.Params) == 0 {
				return
			}
			if !reflect.DeepEqual(qr.Params, tc.params) {
				t.Fatalf("unexpected params: got %v, want %v", qr.Params, tc.params)
			}
		})
	}
}

func TestCompileQueryRejectsUnknownNames(t *testing.T) {
	reg := queryRegistry()
	dialect := store.NewDialect("sqlite")

	queries := map[string]*selectplus.Query{
		"entity":   selectplus.NewQuery("widgets"),
		"column":   selectplus.NewQuery("states").WhereContains("population", "1"),
		"sort":     selectplus.NewQuery("states").OrderBy("population", true),
		"relation": selectplus.NewQuery("states").WhereHas("capital", nil),
		"nested": selectplus.NewQuery("cities").WhereHas("state", func(sub *selectplus.Query) {
			sub.WhereIn("region", "west")
		}),
	}
	for name, q := range queries {
		if _, err := CompileQuery(reg, dialect, q); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}
