package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"select-plus/internal/metadata"
	"select-plus/internal/selectplus"
)

var (
	ErrUnknownEntity   = goerr.New("unknown entity")
	ErrUnknownRelation = goerr.New("unknown relation")
)

// Memory is an in-process selectplus.Repository over rows held in maps.
// Relations are resolved through the metadata registry, so the same entity
// and relation definitions drive both this and the SQL repository.
type Memory struct {
	mu       sync.RWMutex
	registry *metadata.Registry
	tables   map[string][]selectplus.Row // by entity name, in insertion order
	pivots   map[string][]selectplus.Row // by join table
	nextID   map[string]int64
}

var _ selectplus.Repository = &Memory{}

func New(registry *metadata.Registry) *Memory {
	return &Memory{
		registry: registry,
		tables:   make(map[string][]selectplus.Row),
		pivots:   make(map[string][]selectplus.Row),
		nextID:   make(map[string]int64),
	}
}

// Insert stores a row of entity. Integer generated keys are assigned when
// the row has none.
func (m *Memory) Insert(entity string, row selectplus.Row) (selectplus.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.registry.GetEntity(entity)
	if e == nil {
		return nil, goerr.Wrap(ErrUnknownEntity, "cannot insert", goerr.V(selectplus.EntityKey, entity))
	}

	created := copyRow(row)
	pk := e.PrimaryKey.Field
	if created[pk] == nil && e.AutoIncrement() {
		m.nextID[entity]++
		created[pk] = m.nextID[entity]
	} else if n, ok := number(created[pk]); ok && int64(n) > m.nextID[entity] {
		m.nextID[entity] = int64(n)
	}

	m.tables[entity] = append(m.tables[entity], created)
	return copyRow(created), nil
}

// Update merges attributes into the row with the given key.
func (m *Memory) Update(entity string, key any, attributes selectplus.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.registry.GetEntity(entity)
	if e == nil {
		return goerr.Wrap(ErrUnknownEntity, "cannot update", goerr.V(selectplus.EntityKey, entity))
	}
	for _, row := range m.tables[entity] {
		if selectplus.SameKey(row[e.PrimaryKey.Field], key) {
			for k, v := range attributes {
				row[k] = v
			}
			return nil
		}
	}
	return goerr.New("row not found", goerr.V(selectplus.EntityKey, entity), goerr.V("key", key))
}

// Pivot returns a copy of the join rows of a join table.
func (m *Memory) Pivot(joinTable string) []selectplus.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRows(m.pivots[joinTable])
}

func (m *Memory) Find(ctx context.Context, q *selectplus.Query) ([]selectplus.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched, err := m.filter(q.Entity, q.Conditions)
	if err != nil {
		return nil, err
	}

	if len(q.Orders) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.Orders {
				c := compare(matched[i][o.Column], matched[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return copyRows(matched), nil
}

func (m *Memory) filter(entity string, conds []selectplus.Condition) ([]selectplus.Row, error) {
	if m.registry.GetEntity(entity) == nil {
		return nil, goerr.Wrap(ErrUnknownEntity, "cannot query", goerr.V(selectplus.EntityKey, entity))
	}

	var matched []selectplus.Row
	for _, row := range m.tables[entity] {
		ok, err := m.matchAll(entity, row, conds)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func (m *Memory) matchAll(entity string, row selectplus.Row, conds []selectplus.Condition) (bool, error) {
	for _, cond := range conds {
		ok, err := m.match(entity, row, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (m *Memory) match(entity string, row selectplus.Row, cond selectplus.Condition) (bool, error) {
	v := row[cond.Column]
	switch cond.Op {
	case selectplus.OpEq:
		return selectplus.SameKey(v, cond.Value), nil
	case selectplus.OpNeq:
		return !selectplus.SameKey(v, cond.Value), nil
	case selectplus.OpIn:
		return containsKey(cond.Values, v), nil
	case selectplus.OpNotIn:
		return !containsKey(cond.Values, v), nil
	case selectplus.OpLike:
		return like(text(v), text(cond.Value)), nil
	case selectplus.OpNotLike:
		return !like(text(v), text(cond.Value)), nil
	case selectplus.OpContains:
		return containsFold(text(v), text(cond.Value)), nil
	case selectplus.OpHas:
		return m.has(entity, row, cond)
	}
	return false, goerr.New("unsupported operator", goerr.V("operator", string(cond.Op)))
}

// has reports whether row has a related row, through cond.Relation, that
// satisfies cond.Sub.
func (m *Memory) has(entity string, row selectplus.Row, cond selectplus.Condition) (bool, error) {
	rel := m.registry.FindRelation(entity, cond.Relation)
	if rel == nil {
		return false, goerr.Wrap(ErrUnknownRelation, "cannot filter by relation",
			goerr.V(selectplus.EntityKey, entity), goerr.V(selectplus.RelationKey, cond.Relation))
	}
	target := m.registry.GetEntity(rel.Target)
	source := m.registry.GetEntity(entity)
	if target == nil {
		return false, goerr.Wrap(ErrUnknownEntity, "relation target", goerr.V(selectplus.EntityKey, rel.Target))
	}

	var subConds []selectplus.Condition
	if cond.Sub != nil {
		subConds = cond.Sub.Conditions
	}
	related, err := m.filter(rel.Target, subConds)
	if err != nil {
		return false, err
	}
	targetKey := rel.TargetKeyFor(target)

	switch {
	case rel.Type.IsSingle():
		if rel.Type == metadata.MorphTo && rel.MorphType != "" && text(row[rel.MorphType]) != rel.MorphValue() {
			return false, nil
		}
		for _, t := range related {
			if selectplus.SameKey(t[targetKey], row[rel.SourceKey]) {
				return true, nil
			}
		}
	case rel.Type.IsMany():
		for _, p := range m.pivotsOf(rel, row[source.PrimaryKey.Field]) {
			for _, t := range related {
				if selectplus.SameKey(t[targetKey], p[rel.TargetJoinKey]) {
					return true, nil
				}
			}
		}
	default:
		// has_one / has_many: the foreign key lives on the target.
		for _, t := range related {
			if selectplus.SameKey(t[rel.TargetKey], row[rel.SourceKey]) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *Memory) pivotsOf(rel *metadata.Relation, ownerKey any) []selectplus.Row {
	var rows []selectplus.Row
	for _, p := range m.pivots[rel.JoinTable] {
		if ownedBy(rel, p, ownerKey) {
			rows = append(rows, p)
		}
	}
	return rows
}

func ownedBy(rel *metadata.Relation, p selectplus.Row, ownerKey any) bool {
	if !selectplus.SameKey(p[rel.SourceJoinKey], ownerKey) {
		return false
	}
	if rel.Type == metadata.MorphToMany && rel.MorphType != "" {
		return text(p[rel.MorphType]) == rel.MorphValue()
	}
	return true
}

func (m *Memory) Related(ctx context.Context, owner *selectplus.Owner, rel *metadata.Relation) ([]selectplus.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target := m.registry.GetEntity(rel.Target)
	if target == nil {
		return nil, goerr.Wrap(ErrUnknownEntity, "relation target", goerr.V(selectplus.EntityKey, rel.Target))
	}
	if !rel.Type.IsMany() {
		return nil, goerr.Wrap(selectplus.ErrUnsupportedRelationKind, "related rows need a join table",
			goerr.V(selectplus.RelationKey, rel.Name))
	}

	pivots := append([]selectplus.Row(nil), m.pivotsOf(rel, owner.Key)...)
	if rel.OrderBy != "" {
		sort.SliceStable(pivots, func(i, j int) bool {
			return compare(pivots[i][rel.OrderBy], pivots[j][rel.OrderBy]) < 0
		})
	}

	targetKey := rel.TargetKeyFor(target)
	rows := make([]selectplus.Row, 0, len(pivots))
	for _, p := range pivots {
		for _, t := range m.tables[rel.Target] {
			if selectplus.SameKey(t[targetKey], p[rel.TargetJoinKey]) {
				rows = append(rows, copyRow(t))
				break
			}
		}
	}
	return rows, nil
}

func (m *Memory) Sync(ctx context.Context, owner *selectplus.Owner, rel *metadata.Relation, rows []selectplus.PivotRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !rel.Type.IsMany() {
		return goerr.Wrap(selectplus.ErrUnsupportedRelationKind, "sync needs a join table",
			goerr.V(selectplus.RelationKey, rel.Name))
	}

	now := time.Now().UTC()
	existing := m.pivotsOf(rel, owner.Key)

	var kept []selectplus.Row
	for _, p := range m.pivots[rel.JoinTable] {
		if !ownedBy(rel, p, owner.Key) {
			kept = append(kept, p)
		}
	}

	for _, r := range rows {
		p := selectplus.Row{
			rel.SourceJoinKey: owner.Key,
			rel.TargetJoinKey: r.Key,
		}
		if rel.Type == metadata.MorphToMany && rel.MorphType != "" {
			p[rel.MorphType] = rel.MorphValue()
		}
		for k, v := range r.Extra {
			p[k] = v
		}
		if rel.PivotTimestamps {
			p["created_at"] = now
			for _, old := range existing {
				if selectplus.SameKey(old[rel.TargetJoinKey], r.Key) && old["created_at"] != nil {
					p["created_at"] = old["created_at"]
				}
			}
			p["updated_at"] = now
		}
		kept = append(kept, p)
	}

	m.pivots[rel.JoinTable] = kept
	return nil
}

func containsKey(values []any, v any) bool {
	for _, candidate := range values {
		if selectplus.SameKey(candidate, v) {
			return true
		}
	}
	return false
}

func copyRow(row selectplus.Row) selectplus.Row {
	c := make(selectplus.Row, len(row))
	for k, v := range row {
		c[k] = v
	}
	return c
}

func copyRows(rows []selectplus.Row) []selectplus.Row {
	out := make([]selectplus.Row, len(rows))
	for i, r := range rows {
		out[i] = copyRow(r)
	}
	return out
}
