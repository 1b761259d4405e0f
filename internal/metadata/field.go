package metadata

import "fmt"

// Auto-managed timestamp columns.
const (
	AutoCreate = "create"
	AutoUpdate = "update"
)

// Field is one column of an entity. Dependent fields read plain columns such
// as a region through the form snapshot; SelectPlus fields store labels in
// text columns and keys in json columns.
type Field struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Default   any      `json:"default,omitempty"`
	Nullable  bool     `json:"nullable,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Precision int      `json:"precision,omitempty"`
	Auto      string   `json:"auto,omitempty"`
}

func (f Field) IsAuto() bool {
	return f.Auto == AutoCreate || f.Auto == AutoUpdate
}

// IsStructured reports whether the column holds JSON, so selections can be
// stored as arrays.
func (f Field) IsStructured() bool {
	return f.Type == "json"
}

// Allows reports whether v is acceptable for an enum column. Fields without
// an enum and nil values always pass.
func (f Field) Allows(v any) bool {
	if len(f.Enum) == 0 || v == nil {
		return true
	}
	s := fmt.Sprint(v)
	for _, allowed := range f.Enum {
		if s == allowed {
			return true
		}
	}
	return false
}
