package selectplus

import (
	"fmt"
	"reflect"
)

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceEntity
	sourceList
	sourceProvider
	sourceInvalid
)

func (k sourceKind) String() string {
	switch k {
	case sourceNone:
		return "none"
	case sourceEntity:
		return "entity"
	case sourceList:
		return "list"
	case sourceProvider:
		return "provider"
	}
	return "invalid"
}

// ProviderFunc computes options at request time. It must return a slice of
// scalars, of {value, label} maps, or of SelectionOption.
type ProviderFunc func(req *Request) (any, error)

// ListItem is one entry of an associative static list.
type ListItem struct {
	Value any
	Label string
}

// OptionSource is where a field's selectable values come from.
type OptionSource struct {
	kind        sourceKind
	entity      string
	items       []ListItem
	associative bool
	provider    ProviderFunc
	raw         any
}

// Entity sources options from the rows of an entity.
func Entity(name string) OptionSource {
	return OptionSource{kind: sourceEntity, entity: name}
}

// List is a plain static list; each value is its own label.
func List(values ...any) OptionSource {
	items := make([]ListItem, len(values))
	for i, v := range values {
		items[i] = ListItem{Value: v, Label: stringify(v)}
	}
	return OptionSource{kind: sourceList, items: items}
}

// Pairs is an associative static list with distinct values and labels.
func Pairs(items ...ListItem) OptionSource {
	return OptionSource{kind: sourceList, items: items, associative: true}
}

// Provider sources options from fn on every request.
func Provider(fn ProviderFunc) OptionSource {
	if fn == nil {
		return OptionSource{}
	}
	return OptionSource{kind: sourceProvider, provider: fn}
}

// sourceOf interprets the loose shapes accepted by Field.Options.
func sourceOf(v any) OptionSource {
	switch src := v.(type) {
	case nil:
		return OptionSource{}
	case OptionSource:
		return src
	case string:
		if src == "" {
			return OptionSource{kind: sourceInvalid, raw: v}
		}
		return Entity(src)
	case []string:
		values := make([]any, len(src))
		for i, s := range src {
			values[i] = s
		}
		return List(values...)
	case []ListItem:
		return Pairs(src...)
	case []SelectionOption:
		items := make([]ListItem, len(src))
		for i, o := range src {
			items[i] = ListItem{Value: o.value(), Label: o.Label}
		}
		return Pairs(items...)
	case ProviderFunc:
		return Provider(src)
	case func(*Request) (any, error):
		return Provider(src)
	}

	// Slices of scalars: []any, []int, []int64, ...
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		values := make([]any, rv.Len())
		for i := range values {
			elem := rv.Index(i).Interface()
			if !isScalar(elem) {
				return OptionSource{kind: sourceInvalid, raw: v}
			}
			values[i] = elem
		}
		return List(values...)
	}
	return OptionSource{kind: sourceInvalid, raw: v}
}

func (s OptionSource) IsZero() bool {
	return s.kind == sourceNone
}

// EntityName returns the entity of an entity source.
func (s OptionSource) EntityName() string {
	return s.entity
}

func (s OptionSource) IsEntity() bool   { return s.kind == sourceEntity }
func (s OptionSource) IsList() bool     { return s.kind == sourceList }
func (s OptionSource) IsProvider() bool { return s.kind == sourceProvider }

// IsPlainList reports a non-associative static list.
func (s OptionSource) IsPlainList() bool {
	return s.kind == sourceList && !s.associative
}

func (s OptionSource) describe() string {
	if s.kind == sourceInvalid {
		return fmt.Sprintf("%T", s.raw)
	}
	return s.kind.String()
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
