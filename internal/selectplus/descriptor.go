package selectplus

// DependsOn lists the sibling attributes whose changes re-trigger option
// resolution on the client.
type DependsOn struct {
	Attributes []string `json:"attributes"`
}

// Descriptor is the serialized form of a field sent to the client.
type Descriptor struct {
	Component                 string            `json:"component"`
	Name                      string            `json:"name"`
	Attribute                 string            `json:"attribute"`
	FieldID                   string            `json:"field_id"`
	RelationshipName          string            `json:"relationship_name"`
	Value                     []SelectionOption `json:"value"`
	ValueForIndexDisplay      string            `json:"value_for_index_display"`
	ValueForDetailDisplay     string            `json:"value_for_detail_display"`
	AjaxSearchable            bool              `json:"ajax_searchable"`
	AjaxSearchableEmptySearch bool              `json:"ajax_searchable_empty_search"`
	MaxSelections             *int              `json:"max_selections"`
	Reorderable               bool              `json:"reorderable"`
	DependsOn                 *DependsOn        `json:"depends_on,omitempty"`
	Help                      string            `json:"help,omitempty"`
	Placeholder               string            `json:"placeholder,omitempty"`
	Required                  bool              `json:"required"`
}

// Describe serializes field for a form on owner. The current value and
// rollups are only loaded for saved records.
func (r *Resolver) Describe(req *Request, field *Field, owner *Owner) (*Descriptor, error) {
	f := r.ApplyDependents(field, req)
	b, err := r.bind(f, owner.Entity)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Component:                 Component,
		Name:                      f.name,
		Attribute:                 f.attribute,
		FieldID:                   f.id,
		RelationshipName:          f.attribute,
		Value:                     []SelectionOption{},
		AjaxSearchable:            f.search.Enabled(),
		AjaxSearchableEmptySearch: f.emptySearch,
		Reorderable:               f.IsReorderable(),
		Help:                      f.help,
		Placeholder:               f.placeholder,
		Required:                  f.required,
	}
	if limit := b.maxFor(); limit > 0 {
		d.MaxSelections = &limit
	}
	if len(f.dependsOn) > 0 {
		d.DependsOn = &DependsOn{Attributes: append([]string(nil), f.dependsOn...)}
	}

	if owner.Key == nil {
		return d, nil
	}
	display, err := r.ResolveDisplay(req, f, owner)
	if err != nil {
		return nil, err
	}
	if display.Value != nil {
		d.Value = display.Value
	}
	d.ValueForIndexDisplay = display.Index
	d.ValueForDetailDisplay = display.Detail
	return d, nil
}
