// Package resource binds entities to the fields an admin form shows for them.
package resource

import (
	"sort"
	"sync"

	"select-plus/internal/selectplus"
)

// Resource is an entity exposed to the admin panel. Fields is called once
// per request, so field definitions may depend on request state.
type Resource interface {
	Name() string
	Entity() string
	Fields(req *selectplus.Request) []*selectplus.Field
}

// Definition is a Resource assembled from a name, an entity and a field
// builder.
type Definition struct {
	name   string
	entity string
	fields func(req *selectplus.Request) []*selectplus.Field
}

func New(name, entity string, fields func(req *selectplus.Request) []*selectplus.Field) *Definition {
	return &Definition{name: name, entity: entity, fields: fields}
}

func (d *Definition) Name() string   { return d.name }
func (d *Definition) Entity() string { return d.entity }

func (d *Definition) Fields(req *selectplus.Request) []*selectplus.Field {
	if d.fields == nil {
		return nil
	}
	return d.fields(req)
}

type Registry struct {
	mu        sync.RWMutex
	resources map[string]Resource
}

func NewRegistry(resources ...Resource) *Registry {
	r := &Registry{resources: make(map[string]Resource)}
	for _, res := range resources {
		r.Register(res)
	}
	return r
}

// Register adds res, replacing any resource with the same name.
func (r *Registry) Register(res Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[res.Name()] = res
}

func (r *Registry) Get(name string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[name]
	return res, ok
}

// All returns the registered resources sorted by name.
func (r *Registry) All() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
