package selectplus

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// SelectionOption is the wire shape of one option, both in option responses
// and in submitted selections.
type SelectionOption struct {
	Key   any    `json:"key"`
	Value any    `json:"value,omitempty"`
	Label string `json:"label"`
	Order int    `json:"order,omitempty"`
}

func (o SelectionOption) value() any {
	if o.Value != nil {
		return o.Value
	}
	return o.Key
}

// Selection is one submitted tuple. Its position in the submitted sequence
// is the order a reorderable relation persists.
type Selection struct {
	Key   any
	Label string
}

// ParseSelections decodes a submitted value: a JSON-encoded array string or
// an already decoded array. The key of each element is read from "key",
// then "value", then keyName.
func ParseSelections(raw any, keyName string) ([]Selection, error) {
	var items []any
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		dec := json.NewDecoder(strings.NewReader(v))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return nil, goerr.Wrap(ErrInvalidSelection, "selection payload is not JSON", goerr.V(ActualKey, v))
		}
		if decoded == nil {
			return nil, nil
		}
		arr, ok := decoded.([]any)
		if !ok {
			return nil, goerr.Wrap(ErrInvalidSelection, "selection payload is not an array", goerr.V(ActualKey, v))
		}
		items = arr
	case []any:
		items = v
	case []map[string]any:
		items = make([]any, len(v))
		for i, m := range v {
			items[i] = m
		}
	case []SelectionOption:
		out := make([]Selection, len(v))
		for i, o := range v {
			out[i] = Selection{Key: normalizeKey(o.Key), Label: o.Label}
		}
		return out, nil
	case []Selection:
		return v, nil
	default:
		return nil, goerr.Wrap(ErrInvalidSelection, "unsupported selection payload", goerr.V(ActualKey, fmt.Sprintf("%T", raw)))
	}

	out := make([]Selection, 0, len(items))
	for i, item := range items {
		switch el := item.(type) {
		case map[string]any:
			key, ok := lookupKey(el, keyName)
			if !ok {
				return nil, goerr.Wrap(ErrInvalidSelection, "selection has no key", goerr.V(IndexKey, i))
			}
			out = append(out, Selection{Key: normalizeKey(key), Label: stringify(el["label"])})
		default:
			if el == nil || !isScalar(normalizeKey(el)) {
				return nil, goerr.Wrap(ErrInvalidSelection, "selection is neither an object nor a scalar", goerr.V(IndexKey, i))
			}
			out = append(out, Selection{Key: normalizeKey(el), Label: stringify(normalizeKey(el))})
		}
	}
	return out, nil
}

func lookupKey(m map[string]any, keyName string) (any, bool) {
	for _, name := range []string{"key", "value", keyName} {
		if name == "" {
			continue
		}
		if v, ok := m[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// normalizeKey folds JSON numbers into int64 when they are whole, so keys
// compare equal to integer primary keys.
func normalizeKey(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case float32:
		return normalizeKey(float64(n))
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint32:
		return int64(n)
	}
	return v
}

// SameKey compares two keys loosely: numeric keys compare by value and a
// numeric string equals its number.
func SameKey(a, b any) bool {
	a, b = normalizeKey(a), normalizeKey(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isScalar(a) && isScalar(b) && a == b {
		return true
	}
	if sa, ok := a.(string); ok {
		if i, err := strconv.ParseInt(sa, 10, 64); err == nil {
			a = i
		}
	}
	if sb, ok := b.(string); ok {
		if i, err := strconv.ParseInt(sb, 10, 64); err == nil {
			b = i
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
