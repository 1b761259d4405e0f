package selectplus

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"select-plus/internal/metadata"
)

// Display is the current value of a field on a record, with the summaries
// shown on index and detail views.
type Display struct {
	Value  []SelectionOption
	Index  string
	Detail string
}

// ResolveDisplay loads the field's current selections on owner and rolls
// them up. Without an explicit rollup, multi-select fields show
// "<count> <name>" and single-valued fields show the label or "None".
func (r *Resolver) ResolveDisplay(req *Request, field *Field, owner *Owner) (*Display, error) {
	f := r.ApplyDependents(field, req)
	b, err := r.bind(f, owner.Entity)
	if err != nil {
		return nil, err
	}

	rows, err := r.currentRows(req.Context(), b, owner)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load current selections",
			goerr.V(FieldKey, f.name), goerr.V(AttributeKey, f.attribute))
	}

	value, err := r.mapToOptions(b, rows)
	if err != nil {
		return nil, err
	}
	if f.IsReorderable() && b.relation != nil && b.relation.Type.IsMany() {
		for i := range value {
			value[i].Order = i + 1
		}
	}

	return &Display{
		Value:  value,
		Index:  rollup(b, f.indexLabel, rows, value),
		Detail: rollup(b, f.detailLabel, rows, value),
	}, nil
}

func rollup(b *binding, explicit Rollup, rows []Row, value []SelectionOption) string {
	if !explicit.IsZero() {
		return explicit.apply(rows)
	}
	if b.single() {
		if len(value) == 0 {
			return "None"
		}
		return value[0].Label
	}
	return fmt.Sprintf("%d %s", len(value), b.field.name)
}

func (r *Resolver) currentRows(ctx context.Context, b *binding, owner *Owner) ([]Row, error) {
	if b.relation != nil {
		return r.relatedRows(ctx, b, owner)
	}

	stored := storedValues(owner.Attributes[b.field.attribute], b)
	if len(stored) == 0 {
		return nil, nil
	}

	f := b.field
	switch {
	case b.target != nil && b.column != nil && b.column.IsStructured():
		return r.rowsByColumn(ctx, b.target.Name, b.keyName(), stored)
	case b.target != nil:
		column, ok := r.labelFor(f).Column()
		if !ok {
			column = r.settings.DefaultLabel
		}
		return r.rowsByColumn(ctx, b.target.Name, column, stored)
	}

	rows := make([]Row, len(stored))
	for i, v := range stored {
		rows[i] = Row{"value": v, "label": listLabel(f.source, v)}
	}
	return rows, nil
}

func (r *Resolver) relatedRows(ctx context.Context, b *binding, owner *Owner) ([]Row, error) {
	rel := b.relation
	if rel.Type.IsMany() {
		if owner.Key == nil {
			return nil, nil
		}
		return r.repo.Related(ctx, owner, rel)
	}

	fk := owner.Attributes[rel.SourceKey]
	if fk == nil {
		return nil, nil
	}
	if rel.Type == metadata.MorphTo && rel.MorphType != "" &&
		stringify(owner.Attributes[rel.MorphType]) != rel.MorphValue() {
		return nil, nil
	}
	q := NewQuery(b.target.Name).Where(b.keyName(), OpEq, fk).Take(1)
	return r.repo.Find(ctx, q)
}

// rowsByColumn fetches the rows whose column matches one of values, in the
// order of values.
func (r *Resolver) rowsByColumn(ctx context.Context, entity, column string, values []any) ([]Row, error) {
	found, err := r.repo.Find(ctx, NewQuery(entity).WhereIn(column, values...))
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(values))
	for _, v := range values {
		for _, row := range found {
			if SameKey(row[column], v) {
				rows = append(rows, row)
				break
			}
		}
	}
	return rows, nil
}

// storedValues reads back what fillColumn wrote: a JSON array, a
// comma-joined label string or a single raw value.
func storedValues(raw any, b *binding) []any {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") {
			var arr []any
			if err := json.Unmarshal([]byte(s), &arr); err == nil {
				for i := range arr {
					arr[i] = normalizeKey(arr[i])
				}
				return arr
			}
		}
		if b.target != nil && (b.column == nil || !b.column.IsStructured()) {
			parts := strings.Split(s, ",")
			out := make([]any, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out
		}
		return []any{v}
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalizeKey(rv.Index(i).Interface())
		}
		return out
	}
	return []any{normalizeKey(raw)}
}

func listLabel(src OptionSource, v any) string {
	for _, item := range src.items {
		if SameKey(item.Value, v) {
			return item.Label
		}
	}
	return stringify(v)
}
