package selectplus

import "context"

// FieldSet is the request-scoped lookup table of the fields a resource built
// for the current request.
type FieldSet struct {
	fields []*Field
}

func NewFieldSet(fields ...*Field) *FieldSet {
	return &FieldSet{fields: fields}
}

func (s *FieldSet) Fields() []*Field {
	return s.fields
}

// Lookup finds a field by attribute. When fieldID is set it must match too,
// which tells apart fields sharing an attribute in different panels.
func (s *FieldSet) Lookup(attribute, fieldID string) (*Field, bool) {
	for _, f := range s.fields {
		if f.attribute != attribute {
			continue
		}
		if fieldID != "" && f.id != fieldID {
			continue
		}
		return f, true
	}
	return nil, false
}

type fieldSetKey struct{}

func WithFieldSet(ctx context.Context, set *FieldSet) context.Context {
	return context.WithValue(ctx, fieldSetKey{}, set)
}

func FieldSetFrom(ctx context.Context) (*FieldSet, bool) {
	set, ok := ctx.Value(fieldSetKey{}).(*FieldSet)
	return set, ok && set != nil
}

// AttachFields carries the fields built for this request on its context, so
// providers and dependent callbacks can look up their siblings.
func (r *Request) AttachFields(fields []*Field) *FieldSet {
	set := NewFieldSet(fields...)
	r.ctx = WithFieldSet(r.Context(), set)
	return set
}
