package metadata

// RelationKind is the relation shape as declared on the source entity.
type RelationKind string

const (
	BelongsTo     RelationKind = "belongs_to"
	MorphTo       RelationKind = "morph_to"
	BelongsToMany RelationKind = "belongs_to_many"
	MorphToMany   RelationKind = "morph_to_many"
	HasOne        RelationKind = "has_one"
	HasMany       RelationKind = "has_many"
)

// Valid reports whether k is one of the declared kinds.
func (k RelationKind) Valid() bool {
	switch k {
	case BelongsTo, MorphTo, BelongsToMany, MorphToMany, HasOne, HasMany:
		return true
	}
	return false
}

// IsSingle is true for kinds whose foreign key lives on the source row.
func (k RelationKind) IsSingle() bool {
	return k == BelongsTo || k == MorphTo
}

// IsMany is true for kinds persisted through a join table.
func (k RelationKind) IsMany() bool {
	return k == BelongsToMany || k == MorphToMany
}

// IsMorph is true for the polymorphic variants.
func (k RelationKind) IsMorph() bool {
	return k == MorphTo || k == MorphToMany
}

type Relation struct {
	Name   string       `json:"name"` // attribute name on the source entity
	Type   RelationKind `json:"type"`
	Source string       `json:"source"`
	Target string       `json:"target"`

	// SourceKey is the foreign key column on the source table for belongs_to
	// and morph_to, and the source primary key for join-table relations.
	SourceKey string `json:"source_key"`
	TargetKey string `json:"target_key,omitempty"` // defaults to the target primary key

	JoinTable     string `json:"join_table,omitempty"`
	SourceJoinKey string `json:"source_join_key,omitempty"`
	TargetJoinKey string `json:"target_join_key,omitempty"`

	// MorphType is the type discriminator column: on the source table for
	// morph_to, on the join table for morph_to_many.
	MorphType  string `json:"morph_type,omitempty"`
	MorphClass string `json:"morph_class,omitempty"`

	PivotColumns    []Field `json:"pivot_columns,omitempty"`
	PivotTimestamps bool    `json:"pivot_timestamps,omitempty"`
	OrderBy         string  `json:"order_by,omitempty"` // pivot column used to order related rows
}

func (r *Relation) IsManyToMany() bool {
	return r.Type.IsMany()
}

// MorphValue returns the discriminator written alongside keys for polymorphic relations.
func (r *Relation) MorphValue() string {
	if r.Type == MorphTo {
		return r.Target
	}
	if r.MorphClass != "" {
		return r.MorphClass
	}
	return r.Source
}

// TargetKeyFor returns the referenced column on the target entity.
func (r *Relation) TargetKeyFor(target *Entity) string {
	if r.TargetKey != "" {
		return r.TargetKey
	}
	return target.PrimaryKey.Field
}
