package selectplus

import (
	"fmt"

	"github.com/m-mizutani/goerr/v2"

	"select-plus/internal/metadata"
)

// Settings are the resolver-wide defaults.
type Settings struct {
	// DefaultLabel is the label column used when a field sets none.
	DefaultLabel string
	// OptionLimit caps entity-backed option queries that set no limit.
	OptionLimit int
}

// Resolver resolves options, display values and fills for fields of the
// entities in a registry.
type Resolver struct {
	registry *metadata.Registry
	repo     Repository
	settings Settings
}

func NewResolver(registry *metadata.Registry, repo Repository, settings Settings) *Resolver {
	if settings.DefaultLabel == "" {
		settings.DefaultLabel = "name"
	}
	return &Resolver{registry: registry, repo: repo, settings: settings}
}

// WithRepository returns a resolver that queries through repo, typically a
// repository bound to a transaction.
func (r *Resolver) WithRepository(repo Repository) *Resolver {
	c := *r
	c.repo = repo
	return &c
}

func (r *Resolver) Registry() *metadata.Registry {
	return r.registry
}

// binding is a validated field together with what its attribute refers to.
type binding struct {
	field    *Field
	owner    *metadata.Entity
	relation *metadata.Relation // nil for plain attributes
	target   *metadata.Entity   // rows the options come from; nil for lists and providers
	column   *metadata.Field    // the owner column of a plain attribute
}

// Validate runs every configuration check for field on the owner entity
// without querying anything.
func (r *Resolver) Validate(field *Field, owner *metadata.Entity) error {
	_, err := r.bind(field, owner)
	return err
}

func (r *Resolver) bind(f *Field, owner *metadata.Entity) (*binding, error) {
	if f.err != nil {
		return nil, f.err
	}
	if owner == nil {
		return nil, goerr.New("field has no owner entity", goerr.V(FieldKey, f.name))
	}
	vals := []goerr.Option{goerr.V(FieldKey, f.name), goerr.V(AttributeKey, f.attribute), goerr.V(EntityKey, owner.Name)}

	if f.source.kind == sourceInvalid {
		return nil, goerr.Wrap(ErrInvalidOptionsSource, "unrecognized options source",
			append(vals, goerr.V(SourceKey, f.source.describe()))...)
	}

	b := &binding{field: f, owner: owner}

	if rel := r.registry.FindRelation(owner.Name, f.attribute); rel != nil {
		vals = append(vals, goerr.V(RelationKey, rel.Name), goerr.V(KindKey, string(rel.Type)))
		if !rel.Type.IsSingle() && !rel.Type.IsMany() {
			return nil, goerr.Wrap(ErrUnsupportedRelationKind, "relation kind cannot back a select", vals...)
		}
		switch {
		case f.source.IsList(), f.source.IsProvider():
			return nil, goerr.Wrap(ErrConflictingOptionSource, "relation attribute cannot take a static or dynamic source",
				append(vals, goerr.V(SourceKey, f.source.describe()))...)
		case f.source.IsEntity() && f.source.entity != rel.Target:
			return nil, goerr.Wrap(ErrConflictingOptionSource, "options entity differs from relation target",
				append(vals, goerr.V(SourceKey, f.source.entity))...)
		}
		target := r.registry.GetEntity(rel.Target)
		if target == nil {
			return nil, goerr.Wrap(ErrInvalidOptionsSource, "relation target is not a registered entity", vals...)
		}
		// Related rows come back sorted by order_by, so the reorder column
		// must be that pivot column.
		if f.IsReorderable() && rel.Type.IsMany() && rel.OrderBy != f.reorderColumn {
			return nil, goerr.Wrap(ErrIncompatibleAttributeCast, "reorder column is not the relation's order_by column",
				append(vals, goerr.V(ColumnKey, f.reorderColumn), goerr.V(ActualKey, rel.OrderBy))...)
		}
		b.relation = rel
		b.target = target
		return b, r.checkSearch(b, vals)
	}

	switch {
	case f.source.IsZero():
		return nil, goerr.Wrap(ErrMissingOptionsSource, "attribute is not a relation and has no options", vals...)
	case f.source.IsEntity():
		target := r.registry.GetEntity(f.source.entity)
		if target == nil {
			return nil, goerr.Wrap(ErrInvalidOptionsSource, "options entity is not registered",
				append(vals, goerr.V(SourceKey, f.source.entity))...)
		}
		b.target = target
	}

	b.column = owner.GetField(f.attribute)
	if err := r.checkCast(b, vals); err != nil {
		return nil, err
	}
	return b, r.checkSearch(b, vals)
}

// checkCast verifies a plain attribute's column can hold what the default
// fill writes into it.
func (r *Resolver) checkCast(b *binding, vals []goerr.Option) error {
	f := b.field
	if f.fill != nil {
		return nil
	}
	if b.column == nil {
		return goerr.Wrap(ErrIncompatibleAttributeCast, "attribute has no column", vals...)
	}
	if b.column.IsStructured() {
		return nil
	}
	vals = append(vals, goerr.V(ColumnKey, b.column.Name), goerr.V(ActualKey, b.column.Type))
	switch {
	case f.source.IsEntity():
		// Labels are stored comma-joined.
		if !isTextType(b.column.Type) {
			return goerr.Wrap(ErrIncompatibleAttributeCast, "entity options need a text or json column", vals...)
		}
	case f.source.IsPlainList() && f.maxSelections == 1:
	default:
		return goerr.Wrap(ErrIncompatibleAttributeCast, "multiple selections need a json column",
			append(vals, goerr.V(MaxKey, f.maxSelections))...)
	}
	return nil
}

func (r *Resolver) checkSearch(b *binding, vals []goerr.Option) error {
	if !b.field.search.Enabled() || b.field.search.IsFunc() {
		return nil
	}
	if b.target == nil {
		// Lists and providers are never queried, so there is no column to search.
		return nil
	}
	if _, err := b.field.search.columnFor(b.field.label, r.settings.DefaultLabel); err != nil {
		return goerr.Wrap(err, "label search needs a label column", vals...)
	}
	return nil
}

func isTextType(t string) bool {
	switch t {
	case "string", "text", "":
		return true
	}
	return false
}

// maxFor is the effective selection cap; single-valued relations hold one.
func (b *binding) maxFor() int {
	if b.relation != nil && b.relation.Type.IsSingle() {
		return 1
	}
	return b.field.maxSelections
}

func (b *binding) single() bool {
	return b.maxFor() == 1
}

// keyName is the column holding option keys.
func (b *binding) keyName() string {
	if b.target != nil {
		if b.relation != nil {
			return b.relation.TargetKeyFor(b.target)
		}
		return b.target.PrimaryKey.Field
	}
	return "value"
}

func (r *Resolver) labelFor(f *Field) Label {
	if f.label.IsZero() {
		return LabelColumn(r.settings.DefaultLabel)
	}
	return f.label
}

// ResolveOptions returns the selectable options of field for the request.
func (r *Resolver) ResolveOptions(req *Request, field *Field, owner *metadata.Entity) ([]SelectionOption, error) {
	f := r.ApplyDependents(field, req)
	b, err := r.bind(f, owner)
	if err != nil {
		return nil, err
	}
	rows, err := r.resolve(req, b)
	if err != nil {
		return nil, err
	}
	return r.mapToOptions(b, rows)
}

// resolve produces the candidate rows. List and provider values come back
// as rows with "value" and "label" columns.
func (r *Resolver) resolve(req *Request, b *binding) ([]Row, error) {
	f := b.field
	switch {
	case b.target != nil:
		q := NewQuery(b.target.Name).OrderBy(b.keyName(), false)
		q, err := r.ApplyFilters(q, f, req)
		if err != nil {
			return nil, err
		}
		if q.Limit == 0 && r.settings.OptionLimit > 0 {
			q.Take(r.settings.OptionLimit)
		}
		rows, err := r.repo.Find(req.Context(), q)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to query options", goerr.V(FieldKey, f.name), goerr.V(EntityKey, b.target.Name))
		}
		return rows, nil
	case f.source.IsList():
		rows := make([]Row, len(f.source.items))
		for i, item := range f.source.items {
			rows[i] = Row{"value": item.Value, "label": item.Label}
		}
		return rows, nil
	case f.source.IsProvider():
		out, err := f.source.provider(req)
		if err != nil {
			return nil, goerr.Wrap(err, "options provider failed", goerr.V(FieldKey, f.name))
		}
		return providedRows(out, f)
	}
	return nil, goerr.Wrap(ErrMissingOptionsSource, "nothing to resolve", goerr.V(FieldKey, f.name))
}

func providedRows(out any, f *Field) ([]Row, error) {
	invalid := func(v any) error {
		return goerr.Wrap(ErrInvalidOptionsResult, "provider must return scalars or value/label pairs",
			goerr.V(FieldKey, f.name), goerr.V(ActualKey, fmt.Sprintf("%T", v)))
	}

	switch v := out.(type) {
	case nil:
		return nil, nil
	case []SelectionOption:
		rows := make([]Row, len(v))
		for i, o := range v {
			rows[i] = Row{"value": o.value(), "label": o.Label}
		}
		return rows, nil
	case []ListItem:
		rows := make([]Row, len(v))
		for i, item := range v {
			rows[i] = Row{"value": item.Value, "label": item.Label}
		}
		return rows, nil
	case []map[string]any:
		items := make([]any, len(v))
		for i, m := range v {
			items[i] = m
		}
		out = items
	case []Row:
		items := make([]any, len(v))
		for i, m := range v {
			items[i] = map[string]any(m)
		}
		out = items
	}

	items, ok := out.([]any)
	if !ok {
		src := sourceOf(out)
		if !src.IsList() {
			return nil, invalid(out)
		}
		rows := make([]Row, len(src.items))
		for i, item := range src.items {
			rows[i] = Row{"value": item.Value, "label": item.Label}
		}
		return rows, nil
	}
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		if row, ok := item.(Row); ok {
			item = map[string]any(row)
		}
		switch el := item.(type) {
		case map[string]any:
			key, found := lookupKey(el, "")
			label, labeled := el["label"]
			if !found || !labeled {
				return nil, invalid(item)
			}
			rows = append(rows, Row{"value": key, "label": stringify(label)})
		default:
			if !isScalar(el) {
				return nil, invalid(item)
			}
			rows = append(rows, Row{"value": el, "label": stringify(el)})
		}
	}
	return rows, nil
}
