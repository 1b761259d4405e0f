package selectplus

import (
	"fmt"
	"reflect"

	"github.com/m-mizutani/goerr/v2"

	"select-plus/internal/metadata"
)

// MapToOptions maps rows resolved for field into options, through the
// field's mapper override when it has one.
func (r *Resolver) MapToOptions(field *Field, owner *metadata.Entity, rows []Row) ([]SelectionOption, error) {
	b, err := r.bind(field, owner)
	if err != nil {
		return nil, err
	}
	return r.mapToOptions(b, rows)
}

func (r *Resolver) mapToOptions(b *binding, rows []Row) ([]SelectionOption, error) {
	f := b.field
	if f.mapper != nil {
		out, err := f.mapper(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "selection mapping failed", goerr.V(FieldKey, f.name))
		}
		return mappedOptions(out, f, b.keyName())
	}

	label := r.labelFor(f)
	options := make([]SelectionOption, len(rows))
	for i, row := range rows {
		if b.target != nil {
			options[i] = SelectionOption{Key: row[b.keyName()], Label: label.apply(row)}
			continue
		}
		text := stringify(row["label"])
		if f.label.IsFunc() {
			text = f.label.apply(row)
		}
		options[i] = SelectionOption{Key: row["value"], Value: row["value"], Label: text}
	}
	return options, nil
}

// mappedOptions checks the output of a mapper override: a slice whose
// elements all carry a label.
func mappedOptions(out any, f *Field, keyName string) ([]SelectionOption, error) {
	invalid := func(msg string, vals ...goerr.Option) error {
		return goerr.Wrap(ErrInvalidMappingResult, msg,
			append([]goerr.Option{goerr.V(FieldKey, f.name)}, vals...)...)
	}

	if options, ok := out.([]SelectionOption); ok {
		return options, nil
	}

	rv := reflect.ValueOf(out)
	if out == nil || rv.Kind() != reflect.Slice {
		return nil, invalid("mapping must return a slice", goerr.V(ActualKey, fmt.Sprintf("%T", out)))
	}

	options := make([]SelectionOption, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		var m map[string]any
		switch el := rv.Index(i).Interface().(type) {
		case SelectionOption:
			options = append(options, el)
			continue
		case Row:
			m = el
		case map[string]any:
			m = el
		default:
			return nil, invalid("mapped element is not an option", goerr.V(IndexKey, i), goerr.V(ActualKey, fmt.Sprintf("%T", el)))
		}

		label, ok := m["label"]
		if !ok {
			return nil, invalid("mapped element has no label", goerr.V(IndexKey, i))
		}
		key, _ := lookupKey(m, keyName)
		options = append(options, SelectionOption{Key: key, Value: m["value"], Label: stringify(label)})
	}
	return options, nil
}
