package selectplus

import (
	"context"

	"select-plus/internal/metadata"
)

// Owner is the record a field belongs to. Key is nil until the record has
// been inserted.
type Owner struct {
	Entity     *metadata.Entity
	Key        any
	Attributes Row
}

// PivotRow is one join row of a many-to-many sync. Extra holds pivot column
// values such as the order position.
type PivotRow struct {
	Key   any
	Extra map[string]any
}

// Repository is the query layer SelectPlus runs on.
type Repository interface {
	// Find executes q and returns the matching rows in query order.
	Find(ctx context.Context, q *Query) ([]Row, error)

	// Related returns the target rows linked to owner through a join-table
	// relation, ordered by the relation's pivot order column when it has one.
	Related(ctx context.Context, owner *Owner, rel *metadata.Relation) ([]Row, error)

	// Sync makes the owner's join rows exactly match rows.
	Sync(ctx context.Context, owner *Owner, rel *metadata.Relation, rows []PivotRow) error
}
