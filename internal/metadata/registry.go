package metadata

import (
	"sort"
	"sync"
)

type Registry struct {
	mu                sync.RWMutex
	entities          map[string]*Entity
	relationsBySource map[string][]*Relation // keyed by source entity name
	relationsByName   map[string]*Relation   // keyed by relation name
	rulesByEntity     map[string][]*Rule
}

func NewRegistry() *Registry {
	return &Registry{
		entities:          make(map[string]*Entity),
		relationsBySource: make(map[string][]*Relation),
		relationsByName:   make(map[string]*Relation),
		rulesByEntity:     make(map[string][]*Rule),
	}
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// AllEntities returns all registered entities sorted by name.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
	return entities
}

// GetRelation returns a relation by name, or nil.
func (r *Registry) GetRelation(name string) *Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsByName[name]
}

// GetRelationsForSource returns all relations where source matches the given entity.
func (r *Registry) GetRelationsForSource(entityName string) []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsBySource[entityName]
}

// FindRelation returns the relation declared on entityName under the given
// attribute name, or nil when the attribute is a plain column.
func (r *Registry) FindRelation(entityName, attribute string) *Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rel := range r.relationsBySource[entityName] {
		if rel.Name == attribute {
			return rel
		}
	}
	return nil
}

// AllRelations returns all registered relations sorted by name.
func (r *Registry) AllRelations() []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	relations := make([]*Relation, 0, len(r.relationsByName))
	for _, rel := range r.relationsByName {
		relations = append(relations, rel)
	}
	sort.Slice(relations, func(i, j int) bool { return relations[i].Name < relations[j].Name })
	return relations
}

// GetRulesForEntity returns active rules for an entity and hook, sorted by priority.
func (r *Registry) GetRulesForEntity(entityName, hook string) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Rule
	for _, rule := range r.rulesByEntity[entityName] {
		if rule.Active && rule.Hook == hook {
			result = append(result, rule)
		}
	}
	return result
}

// Load replaces all entities and relations in the registry.
// Called during startup and after admin mutations.
func (r *Registry) Load(entities []*Entity, relations []*Relation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*Entity, len(entities))
	for _, e := range entities {
		r.entities[e.Name] = e
	}

	r.relationsBySource = make(map[string][]*Relation)
	r.relationsByName = make(map[string]*Relation, len(relations))
	for _, rel := range relations {
		r.relationsByName[rel.Name] = rel
		r.relationsBySource[rel.Source] = append(r.relationsBySource[rel.Source], rel)
	}
}

// LoadRules replaces all rules in the registry, sorted by priority.
func (r *Registry) LoadRules(rules []*Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rulesByEntity = make(map[string][]*Rule)
	for _, rule := range rules {
		r.rulesByEntity[rule.Entity] = append(r.rulesByEntity[rule.Entity], rule)
	}
	for _, entityRules := range r.rulesByEntity {
		sort.SliceStable(entityRules, func(i, j int) bool {
			return entityRules[i].Priority < entityRules[j].Priority
		})
	}
}
