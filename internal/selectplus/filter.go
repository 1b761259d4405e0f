package selectplus

import "github.com/m-mizutani/goerr/v2"

// ApplyFilters narrows q for field: the static filter first, then ajax search
// when the request carries a search term.
func (r *Resolver) ApplyFilters(q *Query, f *Field, req *Request) (*Query, error) {
	if f.filter != nil {
		if replaced := f.filter(q, req); replaced != nil {
			q = replaced
		}
	}

	if !f.search.Enabled() || req.Search == "" {
		return q, nil
	}

	if f.search.IsFunc() {
		if replaced := f.search.fn(q, req.Search, req); replaced != nil {
			q = replaced
		}
		return q, nil
	}

	column, err := f.search.columnFor(f.label, r.settings.DefaultLabel)
	if err != nil {
		return nil, goerr.Wrap(err, "label search needs a label column",
			goerr.V(FieldKey, f.name), goerr.V(AttributeKey, f.attribute))
	}
	return q.WhereContains(column, req.Search), nil
}
