package selectplus

// ApplyDependents returns the field as re-derived from the request's sibling
// values. The callback runs at most once per field and request, on a clone,
// and only when one of the declared attributes is present. A callback that
// resolves another field does not trigger that field's own callback.
func (r *Resolver) ApplyDependents(f *Field, req *Request) *Field {
	if f.dependent == nil || len(f.dependsOn) == 0 || req == nil {
		return f
	}
	if f.derived || req.evaluating {
		return f
	}
	if applied, ok := req.applied[f]; ok {
		return applied
	}
	if !req.triggers(f.dependsOn) {
		return f
	}

	clone := f.Clone()
	clone.derived = true
	req.evaluating = true
	defer func() { req.evaluating = false }()
	f.dependent(clone, req, req.Form)

	if req.applied == nil {
		req.applied = make(map[*Field]*Field)
	}
	req.applied[f] = clone
	return clone
}
