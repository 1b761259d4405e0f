package selectplus

import (
	"context"
	"strings"
)

// Reserved option-endpoint parameters. Every other parameter is a sibling
// form value.
const (
	ParamResourceID = "resourceId"
	ParamFieldID    = "fieldId"
	ParamSearch     = "search"
)

// FormSnapshot maps sibling attribute names to their submitted values.
type FormSnapshot map[string]any

func (f FormSnapshot) Has(attribute string) bool {
	_, ok := f[attribute]
	return ok
}

// String returns the value as text, or "" when absent.
func (f FormSnapshot) String(attribute string) string {
	return strings.TrimSpace(stringify(f[attribute]))
}

// Keys returns the selected keys of a sibling field. Sibling SelectPlus
// values arrive as encoded selection arrays; plain values are a single key.
func (f FormSnapshot) Keys(attribute string) []any {
	v, ok := f[attribute]
	if !ok || v == nil {
		return nil
	}
	if s, isString := v.(string); isString {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if !strings.HasPrefix(s, "[") {
			return []any{normalizeKey(s)}
		}
	}
	selections, err := ParseSelections(v, "")
	if err != nil {
		return nil
	}
	keys := make([]any, len(selections))
	for i, s := range selections {
		keys[i] = s.Key
	}
	return keys
}

// Request carries the request-scoped inputs of one option resolution or
// submission.
type Request struct {
	ctx        context.Context
	ResourceID string
	FieldID    string
	Search     string
	Params     map[string]string
	Form       FormSnapshot

	evaluating bool
	applied    map[*Field]*Field
}

// NewRequest builds a request from endpoint parameters. Parameters other
// than resourceId, fieldId and search make up the form snapshot.
func NewRequest(ctx context.Context, params map[string]string) *Request {
	if params == nil {
		params = map[string]string{}
	}
	form := make(FormSnapshot, len(params))
	for k, v := range params {
		switch k {
		case ParamResourceID, ParamFieldID, ParamSearch:
			continue
		}
		form[k] = v
	}
	return &Request{
		ctx:        ctx,
		ResourceID: params[ParamResourceID],
		FieldID:    params[ParamFieldID],
		Search:     strings.TrimSpace(params[ParamSearch]),
		Params:     params,
		Form:       form,
		applied:    make(map[*Field]*Field),
	}
}

// WithForm replaces the form snapshot, used on submission where sibling
// values come from the payload rather than the query string.
func (r *Request) WithForm(form FormSnapshot) *Request {
	if form == nil {
		form = FormSnapshot{}
	}
	r.Form = form
	return r
}

func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Has reports whether the raw request carried the parameter.
func (r *Request) Has(name string) bool {
	_, ok := r.Params[name]
	return ok
}

func (r *Request) triggers(attributes []string) bool {
	for _, a := range attributes {
		if r.Form.Has(a) {
			return true
		}
	}
	return false
}
