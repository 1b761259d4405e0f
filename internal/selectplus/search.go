package selectplus

type searchKind int

const (
	searchDisabled searchKind = iota
	searchByLabel
	searchByColumn
	searchByFunc
)

// SearchFunc narrows the query for a search term. Returning nil keeps the
// query it was given, which lets the function mutate it in place.
type SearchFunc func(q *Query, term string, req *Request) *Query

// SearchStrategy is how ajax search narrows the option query. The zero value
// disables search.
type SearchStrategy struct {
	kind   searchKind
	column string
	fn     SearchFunc
}

// SearchByLabel searches the static label column.
func SearchByLabel() SearchStrategy {
	return SearchStrategy{kind: searchByLabel}
}

// SearchColumn searches the given column with a case-insensitive contains.
func SearchColumn(column string) SearchStrategy {
	if column == "" {
		return SearchByLabel()
	}
	return SearchStrategy{kind: searchByColumn, column: column}
}

// SearchUsing hands the search term to fn.
func SearchUsing(fn SearchFunc) SearchStrategy {
	if fn == nil {
		return SearchStrategy{}
	}
	return SearchStrategy{kind: searchByFunc, fn: fn}
}

func (s SearchStrategy) Enabled() bool {
	return s.kind != searchDisabled
}

func (s SearchStrategy) IsFunc() bool {
	return s.kind == searchByFunc
}

// columnFor resolves the column a contains predicate applies to.
func (s SearchStrategy) columnFor(label Label, defaultLabel string) (string, error) {
	switch s.kind {
	case searchByColumn:
		return s.column, nil
	case searchByLabel:
		if label.IsFunc() {
			return "", ErrAmbiguousSearchColumn
		}
		if col, ok := label.Column(); ok {
			return col, nil
		}
		return defaultLabel, nil
	}
	return "", nil
}
