package metadata

type Entity struct {
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	SoftDelete bool       `json:"soft_delete"`
	Fields     []Field    `json:"fields"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // int, bigint, uuid, string
	Generated bool   `json:"generated"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// AutoIncrement reports whether the database assigns integer keys on insert.
func (e *Entity) AutoIncrement() bool {
	if !e.PrimaryKey.Generated {
		return false
	}
	return e.PrimaryKey.Type == "int" || e.PrimaryKey.Type == "bigint" || e.PrimaryKey.Type == ""
}

// WritableFields returns fields that can be set by the client.
// Excludes generated PKs and auto-timestamp fields.
func (e *Entity) WritableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field && e.PrimaryKey.Generated {
			continue
		}
		if f.IsAuto() {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// BooleanFields lists the boolean columns.
func (e *Entity) BooleanFields() []string {
	return e.fieldsWhere(func(f Field) bool { return f.Type == "boolean" })
}

// StructuredFields lists the JSON columns, which hold stored selections.
func (e *Entity) StructuredFields() []string {
	return e.fieldsWhere(Field.IsStructured)
}

func (e *Entity) fieldsWhere(keep func(Field) bool) []string {
	var names []string
	for _, f := range e.Fields {
		if keep(f) {
			names = append(names, f.Name)
		}
	}
	return names
}
