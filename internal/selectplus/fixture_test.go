package selectplus_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"select-plus/internal/metadata"
	"select-plus/internal/repository/memory"
	"select-plus/internal/selectplus"
)

func intKey(name string) metadata.PrimaryKey {
	return metadata.PrimaryKey{Field: name, Type: "int", Generated: true}
}

func fixtureSchema() ([]*metadata.Entity, []*metadata.Relation) {
	states := &metadata.Entity{
		Name: "states", Table: "states", PrimaryKey: intKey("id"),
		Fields: []metadata.Field{
			{Name: "id", Type: "int"},
			{Name: "name", Type: "string"},
			{Name: "code", Type: "string"},
		},
	}
	cities := &metadata.Entity{
		Name: "cities", Table: "cities", PrimaryKey: intKey("id"),
		Fields: []metadata.Field{
			{Name: "id", Type: "int"},
			{Name: "name", Type: "string"},
			{Name: "state_id", Type: "int"},
		},
	}
	people := &metadata.Entity{
		Name: "people", Table: "people", PrimaryKey: intKey("id"),
		Fields: []metadata.Field{
			{Name: "id", Type: "int"},
			{Name: "name", Type: "string"},
			{Name: "state_born_in", Type: "string", Nullable: true},
			{Name: "home_state", Type: "string", Nullable: true},
			{Name: "state_parents_born_in", Type: "json", Nullable: true},
			{Name: "favorite_state_id", Type: "int", Nullable: true},
			{Name: "only_certain_states", Type: "string", Nullable: true},
			{Name: "region", Type: "string", Nullable: true},
			{Name: "cities_visited", Type: "json", Nullable: true},
			{Name: "favorite_coffee", Type: "json", Nullable: true},
		},
	}
	tags := &metadata.Entity{
		Name: "tags", Table: "tags", PrimaryKey: intKey("id"),
		Fields: []metadata.Field{
			{Name: "id", Type: "int"},
			{Name: "name", Type: "string"},
		},
	}
	notes := &metadata.Entity{
		Name: "notes", Table: "notes", PrimaryKey: intKey("id"),
		Fields: []metadata.Field{
			{Name: "id", Type: "int"},
			{Name: "body", Type: "text"},
			{Name: "subject_id", Type: "int", Nullable: true},
			{Name: "subject_type", Type: "string", Nullable: true},
		},
	}

	relations := []*metadata.Relation{
		{Name: "favoriteState", Type: metadata.BelongsTo, Source: "people", Target: "states", SourceKey: "favorite_state_id"},
		{Name: "statesVisited", Type: metadata.BelongsToMany, Source: "people", Target: "states", SourceKey: "id",
			JoinTable: "state_user_visited", SourceJoinKey: "person_id", TargetJoinKey: "state_id", OrderBy: "order"},
		{Name: "statesLivedIn", Type: metadata.BelongsToMany, Source: "people", Target: "states", SourceKey: "id",
			JoinTable: "state_user_lived_in", SourceJoinKey: "person_id", TargetJoinKey: "state_id", PivotTimestamps: true},
		{Name: "tags", Type: metadata.MorphToMany, Source: "people", Target: "tags", SourceKey: "id",
			JoinTable: "taggables", SourceJoinKey: "taggable_id", TargetJoinKey: "tag_id", MorphType: "taggable_type"},
		{Name: "state", Type: metadata.BelongsTo, Source: "cities", Target: "states", SourceKey: "state_id"},
		{Name: "cities", Type: metadata.HasMany, Source: "states", Target: "cities", SourceKey: "id", TargetKey: "state_id"},
		{Name: "subject", Type: metadata.MorphTo, Source: "notes", Target: "states", SourceKey: "subject_id", MorphType: "subject_type"},
	}
	return []*metadata.Entity{states, cities, people, tags, notes}, relations
}

type fixture struct {
	registry *metadata.Registry
	repo     *memory.Memory
	resolver *selectplus.Resolver
	people   *metadata.Entity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := metadata.NewRegistry()
	entities, relations := fixtureSchema()
	reg.Load(entities, relations)

	repo := memory.New(reg)
	// ids follow insertion order: Louisiana=1 ... New York=7
	for _, s := range []struct{ name, code string }{
		{"Louisiana", "LA"},
		{"Texas", "TX"},
		{"California", "CA"},
		{"Florida", "FL"},
		{"Washington", "WA"},
		{"Oregon", "OR"},
		{"New York", "NY"},
	} {
		_, err := repo.Insert("states", selectplus.Row{"name": s.name, "code": s.code})
		gt.NoError(t, err).Required()
	}
	for _, c := range []struct {
		name  string
		state int64
	}{
		{"New Orleans", 1},
		{"Houston", 2},
		{"Los Angeles", 3},
		{"Miami", 4},
		{"Seattle", 5},
		{"Portland", 6},
		{"New York City", 7},
	} {
		_, err := repo.Insert("cities", selectplus.Row{"name": c.name, "state_id": c.state})
		gt.NoError(t, err).Required()
	}
	for _, name := range []string{"rust", "go"} {
		_, err := repo.Insert("tags", selectplus.Row{"name": name})
		gt.NoError(t, err).Required()
	}

	return &fixture{
		registry: reg,
		repo:     repo,
		resolver: selectplus.NewResolver(reg, repo, selectplus.Settings{DefaultLabel: "name"}),
		people:   reg.GetEntity("people"),
	}
}

func (fx *fixture) request(params map[string]string) *selectplus.Request {
	return selectplus.NewRequest(context.Background(), params)
}

func (fx *fixture) newPerson() *selectplus.Owner {
	return &selectplus.Owner{Entity: fx.people, Attributes: selectplus.Row{"name": "Ralph"}}
}

func labels(options []selectplus.SelectionOption) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Label
	}
	return out
}

// countingRepo records how many queries reach the wrapped repository.
type countingRepo struct {
	selectplus.Repository
	finds int
}

func (c *countingRepo) Find(ctx context.Context, q *selectplus.Query) ([]selectplus.Row, error) {
	c.finds++
	return c.Repository.Find(ctx, q)
}
