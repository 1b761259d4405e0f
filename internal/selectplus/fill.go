package selectplus

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"select-plus/internal/metadata"
)

// Fill turns the submitted value of field into a persistence step. In order
// of precedence: the field's FillUsing override; a deferred pivot sync for
// join-table relations; associate or disassociate for single-valued
// relations; a column write for plain attributes.
func (r *Resolver) Fill(req *Request, field *Field, owner *Owner, raw any) (*PersistenceStep, error) {
	f := r.ApplyDependents(field, req)

	if f.fill != nil {
		selections, err := ParseSelections(raw, "")
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse selections", goerr.V(FieldKey, f.name))
		}
		return f.fill(req, owner, f.attribute, selections)
	}

	b, err := r.bind(f, owner.Entity)
	if err != nil {
		return nil, err
	}

	selections, err := ParseSelections(raw, b.keyName())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse selections", goerr.V(FieldKey, f.name))
	}
	if limit := b.maxFor(); limit > 0 && len(selections) > limit {
		return nil, goerr.Wrap(ErrTooManySelections, "more selections than allowed",
			goerr.V(FieldKey, f.name), goerr.V(CountKey, len(selections)), goerr.V(MaxKey, limit))
	}

	if b.relation == nil {
		return r.fillColumn(b, selections), nil
	}

	switch b.relation.Type {
	case metadata.BelongsToMany, metadata.MorphToMany:
		return r.fillMany(b, selections), nil
	case metadata.BelongsTo, metadata.MorphTo:
		return r.fillSingle(b, selections), nil
	}
	return nil, goerr.Wrap(ErrUnsupportedRelationKind, "relation kind cannot be filled",
		goerr.V(FieldKey, f.name), goerr.V(KindKey, string(b.relation.Type)))
}

// fillMany syncs the pivot to exactly the submitted keys once the owner has
// been saved. Reorderable fields also store each key's 1-based position.
func (r *Resolver) fillMany(b *binding, selections []Selection) *PersistenceStep {
	rel := b.relation
	column := b.field.reorderColumn

	keys := uniqueKeys(selections)
	rows := make([]PivotRow, len(keys))
	for i, key := range keys {
		rows[i] = PivotRow{Key: key}
		if column != "" {
			rows[i].Extra = map[string]any{column: i + 1}
		}
	}

	return Deferred(b.field.attribute, func(ctx context.Context, repo Repository, owner *Owner) error {
		if _, err := r.targetRows(ctx, repo, b, keys); err != nil {
			return err
		}
		if err := repo.Sync(ctx, owner, rel, rows); err != nil {
			return goerr.Wrap(err, "failed to sync relation", goerr.V(RelationKey, rel.Name))
		}
		return nil
	})
}

// fillSingle sets or clears the foreign key on the owner row.
func (r *Resolver) fillSingle(b *binding, selections []Selection) *PersistenceStep {
	rel := b.relation
	var key any
	if len(selections) == 1 {
		key = selections[0].Key
	}

	return Immediate(b.field.attribute, func(ctx context.Context, repo Repository, owner *Owner) error {
		if key != nil {
			if _, err := r.targetRows(ctx, repo, b, []any{key}); err != nil {
				return err
			}
		}
		if owner.Attributes == nil {
			owner.Attributes = Row{}
		}
		owner.Attributes[rel.SourceKey] = key
		if rel.Type == metadata.MorphTo && rel.MorphType != "" {
			if key == nil {
				owner.Attributes[rel.MorphType] = nil
			} else {
				owner.Attributes[rel.MorphType] = rel.MorphValue()
			}
		}
		return nil
	})
}

// fillColumn writes the selections into the attribute's own column.
func (r *Resolver) fillColumn(b *binding, selections []Selection) *PersistenceStep {
	f := b.field
	return Immediate(f.attribute, func(ctx context.Context, repo Repository, owner *Owner) error {
		value, err := r.columnValue(ctx, repo, b, selections)
		if err != nil {
			return err
		}
		if owner.Attributes == nil {
			owner.Attributes = Row{}
		}
		owner.Attributes[f.attribute] = value
		return nil
	})
}

func (r *Resolver) columnValue(ctx context.Context, repo Repository, b *binding, selections []Selection) (any, error) {
	if len(selections) == 0 {
		return nil, nil
	}
	f := b.field
	keys := uniqueKeys(selections)

	if b.target != nil {
		rows, err := r.targetRows(ctx, repo, b, keys)
		if err != nil {
			return nil, err
		}
		if b.column != nil && b.column.IsStructured() {
			return keys, nil
		}
		label := r.labelFor(f)
		labels := make([]string, len(rows))
		for i, row := range rows {
			labels[i] = label.apply(row)
			// the column is read back by splitting on commas
			if strings.Contains(labels[i], ",") {
				return nil, goerr.Wrap(ErrInvalidSelection, "label cannot be stored in a comma-joined column",
					goerr.V(FieldKey, f.name), goerr.V(ActualKey, labels[i]))
			}
		}
		return strings.Join(labels, ","), nil
	}

	if f.source.IsList() {
		for _, key := range keys {
			if !listHas(f.source, key) {
				return nil, goerr.Wrap(ErrInvalidSelection, "value is not one of the options",
					goerr.V(FieldKey, f.name), goerr.V(ActualKey, key))
			}
		}
	}
	if f.source.IsPlainList() && f.maxSelections == 1 {
		return keys[0], nil
	}
	return keys, nil
}

// targetRows loads the target rows of keys, in key order, and fails when a
// key matches no row.
func (r *Resolver) targetRows(ctx context.Context, repo Repository, b *binding, keys []any) ([]Row, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := r.WithRepository(repo).rowsByColumn(ctx, b.target.Name, b.keyName(), keys)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load selected rows", goerr.V(EntityKey, b.target.Name))
	}
	if len(rows) != len(keys) {
		return nil, goerr.Wrap(ErrInvalidSelection, "selected key does not exist",
			goerr.V(FieldKey, b.field.name), goerr.V(EntityKey, b.target.Name), goerr.V(CountKey, len(keys)-len(rows)))
	}
	return rows, nil
}

func uniqueKeys(selections []Selection) []any {
	keys := make([]any, 0, len(selections))
next:
	for _, s := range selections {
		for _, k := range keys {
			if SameKey(k, s.Key) {
				continue next
			}
		}
		keys = append(keys, s.Key)
	}
	return keys
}

func listHas(src OptionSource, v any) bool {
	for _, item := range src.items {
		if SameKey(item.Value, v) {
			return true
		}
	}
	return false
}
