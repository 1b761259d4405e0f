// Package demo installs the people/states/cities showcase: its schema, seed
// rows and the people resource exercising every SelectPlus feature.
package demo

import (
	"context"
	"fmt"

	"select-plus/internal/admin"
	"select-plus/internal/metadata"
)

func intKey(name string) metadata.PrimaryKey {
	return metadata.PrimaryKey{Field: name, Type: "bigint", Generated: true}
}

func timestamps() []metadata.Field {
	return []metadata.Field{
		{Name: "created_at", Type: "timestamp", Auto: "create"},
		{Name: "updated_at", Type: "timestamp", Auto: "update"},
	}
}

// Entities returns the demo entity definitions.
func Entities() []*metadata.Entity {
	states := &metadata.Entity{
		Name: "states", Table: "states", PrimaryKey: intKey("id"),
		Fields: append([]metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "string", Required: true},
			{Name: "code", Type: "string", Required: true},
		}, timestamps()...),
	}
	cities := &metadata.Entity{
		Name: "cities", Table: "cities", PrimaryKey: intKey("id"),
		Fields: append([]metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "string", Required: true},
			{Name: "state_id", Type: "bigint", Nullable: true},
		}, timestamps()...),
	}
	people := &metadata.Entity{
		Name: "people", Table: "people", PrimaryKey: intKey("id"),
		Fields: append([]metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "string", Required: true},
			{Name: "state_born_in", Type: "string", Nullable: true},
			{Name: "state_parents_born_in", Type: "json", Nullable: true},
			{Name: "favorite_state_id", Type: "bigint", Nullable: true},
			{Name: "only_certain_states", Type: "string", Nullable: true, Enum: []string{"Yes", "No"}},
			{Name: "region", Type: "string", Nullable: true, Enum: []string{"west", "east", "central"}},
			{Name: "cities_visited", Type: "json", Nullable: true},
			{Name: "favorite_coffee", Type: "json", Nullable: true},
		}, timestamps()...),
	}
	return []*metadata.Entity{states, cities, people}
}

// Relations returns the demo relation definitions. Targets must already be
// registered when these are saved.
func Relations() []*metadata.Relation {
	return []*metadata.Relation{
		{Name: "cities", Type: metadata.HasMany, Source: "states", Target: "cities", SourceKey: "id", TargetKey: "state_id"},
		{Name: "state", Type: metadata.BelongsTo, Source: "cities", Target: "states", SourceKey: "state_id"},
		{Name: "favoriteState", Type: metadata.BelongsTo, Source: "people", Target: "states", SourceKey: "favorite_state_id"},
		{
			Name: "statesVisited", Type: metadata.BelongsToMany, Source: "people", Target: "states", SourceKey: "id",
			JoinTable: "state_user_visited", SourceJoinKey: "person_id", TargetJoinKey: "state_id",
			OrderBy: "order", PivotTimestamps: true,
		},
		{
			Name: "statesLivedIn", Type: metadata.BelongsToMany, Source: "people", Target: "states", SourceKey: "id",
			JoinTable: "state_user_lived_in", SourceJoinKey: "person_id", TargetJoinKey: "state_id",
			PivotTimestamps: true,
		},
	}
}

// Install saves the demo definitions through the catalog, which migrates
// the tables and join tables.
func Install(ctx context.Context, catalog *admin.Catalog) error {
	for _, e := range Entities() {
		if err := catalog.PutEntity(ctx, e); err != nil {
			return fmt.Errorf("install entity %s: %w", e.Name, err)
		}
	}
	for _, rel := range Relations() {
		if err := catalog.PutRelation(ctx, rel); err != nil {
			return fmt.Errorf("install relation %s.%s: %w", rel.Source, rel.Name, err)
		}
	}
	return nil
}
