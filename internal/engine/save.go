package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"select-plus/internal/instrument"
	"select-plus/internal/metadata"
	"select-plus/internal/resource"
	"select-plus/internal/selectplus"
	"select-plus/internal/store"
)

// Writer persists form submissions. Plain columns are copied onto the owner,
// SelectPlus fields are filled into persistence steps, and the steps and the
// owner row are written in one transaction: steps that need no key first,
// then the owner row, then the steps that need the owner's key.
type Writer struct {
	store    *store.Store
	registry *metadata.Registry
	resolver *selectplus.Resolver
	repo     *SQLRepository
}

func NewWriter(s *store.Store, reg *metadata.Registry, resolver *selectplus.Resolver, repo *SQLRepository) *Writer {
	return &Writer{store: s, registry: reg, resolver: resolver, repo: repo}
}

// Submission is one create (ID empty) or update of a resource record.
type Submission struct {
	Resource resource.Resource
	ID       string
	Body     map[string]any
}

func (w *Writer) Save(ctx context.Context, sub Submission) (map[string]any, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "writer", "record.save")
	defer span.End()

	entity := w.registry.GetEntity(sub.Resource.Entity())
	if entity == nil {
		span.SetStatus("error")
		return nil, UnknownResourceError(sub.Resource.Name())
	}
	isCreate := sub.ID == ""
	span.SetEntity(entity.Name, sub.ID)

	owner := &selectplus.Owner{Entity: entity, Attributes: selectplus.Row{}}
	old := map[string]any{}
	if !isCreate {
		current, err := fetchRecord(ctx, w.store.DB, w.store.Dialect, entity, sub.ID)
		if err != nil {
			span.SetStatus("error")
			if errors.Is(err, store.ErrNotFound) {
				return nil, NotFoundError(sub.Resource.Name(), sub.ID)
			}
			return nil, fmt.Errorf("fetch %s/%s: %w", entity.Name, sub.ID, err)
		}
		old = current
		owner.Key = current[entity.PrimaryKey.Field]
		owner.Attributes = selectplus.Row(copyMap(current))
	}

	req := selectplus.NewRequest(ctx, map[string]string{selectplus.ParamResourceID: sub.ID}).
		WithForm(selectplus.FormSnapshot(sub.Body))
	fields := fieldSet(sub.Resource, req).Fields()

	steps, details, err := w.fill(req, entity, owner, fields, sub.Body, isCreate, old)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}
	if len(details) > 0 {
		span.SetStatus("error")
		return nil, ValidationError(details)
	}

	if err := w.persist(ctx, entity, owner, steps, isCreate); err != nil {
		span.SetStatus("error")
		return nil, err
	}

	record, err := fetchRecord(ctx, w.store.DB, w.store.Dialect, entity, owner.Key)
	if err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("reload %s: %w", entity.Name, err)
	}

	action := "record.updated"
	if isCreate {
		action = "record.created"
	}
	recordID := fmt.Sprint(owner.Key)
	span.SetEntity(entity.Name, recordID)
	span.SetStatus("ok")
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, action, entity.Name, recordID, map[string]any{"resource": sub.Resource.Name()})
	return record, nil
}

// fill validates the submission and turns every submitted SelectPlus field
// into a persistence step. Validation problems come back as details; field
// configuration problems come back as errors.
func (w *Writer) fill(req *selectplus.Request, entity *metadata.Entity, owner *selectplus.Owner, fields []*selectplus.Field, body map[string]any, isCreate bool, old map[string]any) ([]*selectplus.PersistenceStep, []ErrorDetail, error) {
	selectPlus := make(map[string]*selectplus.Field, len(fields))
	for _, f := range fields {
		if _, seen := selectPlus[f.Attribute()]; !seen {
			selectPlus[f.Attribute()] = f
		}
	}

	writable := make(map[string]metadata.Field)
	for _, f := range entity.WritableFields() {
		writable[f.Name] = f
	}

	unknown := make(map[string]bool)
	outsideEnum := make(map[string]bool)
	for key, value := range body {
		if selectPlus[key] != nil {
			continue
		}
		col, ok := writable[key]
		if !ok {
			unknown[key] = true
			continue
		}
		if !col.Allows(value) {
			outsideEnum[key] = true
		}
		owner.Attributes[key] = value
	}

	var details []ErrorDetail
	for _, key := range sortedNames(unknown) {
		details = append(details, ErrorDetail{
			Field:   key,
			Rule:    "unknown",
			Message: fmt.Sprintf("Unknown field or relation: %s", key),
		})
	}
	for _, key := range sortedNames(outsideEnum) {
		details = append(details, ErrorDetail{
			Field:   key,
			Rule:    "enum",
			Message: fmt.Sprintf("%s must be one of %s", key, strings.Join(writable[key].Enum, ", ")),
		})
	}
	for _, f := range fields {
		if !f.IsRequired() {
			continue
		}
		raw, submitted := body[f.Attribute()]
		if !submitted && !isCreate {
			continue
		}
		if selections, err := selectplus.ParseSelections(raw, ""); err == nil && len(selections) > 0 {
			continue
		}
		details = append(details, ErrorDetail{
			Field:   f.Attribute(),
			Rule:    "required",
			Message: fmt.Sprintf("%s is required", f.Name()),
		})
	}
	if len(details) > 0 {
		return nil, details, nil
	}

	selected := make(map[string][]any)
	for attr := range selectPlus {
		raw, ok := body[attr]
		if !ok {
			continue
		}
		selections, err := selectplus.ParseSelections(raw, "")
		if err != nil {
			continue
		}
		keys := make([]any, 0, len(selections))
		for _, s := range selections {
			keys = append(keys, s.Key)
		}
		selected[attr] = keys
	}

	in := RuleInput{Record: owner.Attributes, Old: old, Selections: selected, IsCreate: isCreate}
	if ruleErrs := EvaluateRules(req.Context(), w.registry, entity.Name, "before_write", in); len(ruleErrs) > 0 {
		return nil, ruleErrs, nil
	}

	var steps []*selectplus.PersistenceStep
	for _, f := range fields {
		raw, submitted := body[f.Attribute()]
		if !submitted || selectPlus[f.Attribute()] != f {
			continue
		}
		step, err := w.resolver.Fill(req, f, owner, raw)
		if err != nil {
			if appErr := FieldError(f.Attribute(), err); appErr != nil {
				return nil, nil, appErr
			}
			return nil, nil, fmt.Errorf("fill %s: %w", f.Attribute(), err)
		}
		if step != nil {
			steps = append(steps, step)
		}
	}
	return steps, nil, nil
}

func (w *Writer) persist(ctx context.Context, entity *metadata.Entity, owner *selectplus.Owner, steps []*selectplus.PersistenceStep, isCreate bool) error {
	tx, err := w.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	repo := w.repo.WithQuerier(tx)
	run := func(afterOwnerSaved bool) error {
		for _, step := range steps {
			if step.RunAfterOwnerSaved() != afterOwnerSaved {
				continue
			}
			if err := step.Run(ctx, repo, owner); err != nil {
				if appErr := FieldError(step.Field, err); appErr != nil {
					return appErr
				}
				return fmt.Errorf("fill %s: %w", step.Field, err)
			}
		}
		return nil
	}

	if err := run(false); err != nil {
		return err
	}

	values, err := columnValues(entity, owner.Attributes)
	if err != nil {
		return err
	}
	pkField := entity.PrimaryKey.Field
	if isCreate {
		if entity.PrimaryKey.Type == "uuid" && w.store.Dialect.UUIDDefault() == "" && values[pkField] == nil {
			values[pkField] = uuid.NewString()
		}
		sql, params := BuildInsertSQL(w.store.Dialect, entity, values)
		row, err := store.QueryRow(ctx, tx, sql, params...)
		if err != nil {
			return fmt.Errorf("insert %s: %w", entity.Table, store.MapError(w.store.Dialect, err))
		}
		owner.Key = row[pkField]
		owner.Attributes[pkField] = owner.Key
	} else {
		delete(values, pkField)
		if sql, params := BuildUpdateSQL(w.store.Dialect, entity, owner.Key, values); sql != "" {
			if _, err := store.Exec(ctx, tx, sql, params...); err != nil {
				return fmt.Errorf("update %s: %w", entity.Table, store.MapError(w.store.Dialect, err))
			}
		}
	}

	if err := run(true); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
