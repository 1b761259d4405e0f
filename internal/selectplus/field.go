package selectplus

import (
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
)

// Component is the client component name of every SelectPlus field.
const Component = "select-plus"

// DependentFunc re-derives a field from its sibling values. It receives a
// request-local copy of the field and may change its filter and display text.
type DependentFunc func(f *Field, req *Request, form FormSnapshot)

// FillFunc takes over persistence of the field. A nil step means the function
// already applied its changes to the owner's attributes.
type FillFunc func(req *Request, owner *Owner, attribute string, selections []Selection) (*PersistenceStep, error)

// MapperFunc replaces the default row to option mapping. It must return a
// slice whose elements all carry a label.
type MapperFunc func(rows []Row) (any, error)

// Field is the configuration of one SelectPlus form field. Resources build
// fresh fields for every request; the dependent engine only mutates clones.
type Field struct {
	name      string
	attribute string
	id        string

	source OptionSource
	label  Label
	filter FilterFunc

	search      SearchStrategy
	emptySearch bool

	maxSelections int
	reorderColumn string

	dependsOn []string
	dependent DependentFunc

	fill   FillFunc
	mapper MapperFunc

	indexLabel  Rollup
	detailLabel Rollup

	help        string
	placeholder string
	required    bool

	derived bool // already re-derived from sibling values
	err     error
}

// New creates a field. An empty attribute is derived from the name:
// "States Visited" becomes "states_visited".
func New(name, attribute string) *Field {
	if attribute == "" {
		attribute = attributeFromName(name)
	}
	return &Field{name: name, attribute: attribute, id: attribute}
}

func attributeFromName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ID sets the identifier that disambiguates fields sharing an attribute.
func (f *Field) ID(id string) *Field {
	if id != "" {
		f.id = id
	}
	return f
}

// Options sets the option source. It accepts an OptionSource, an entity name,
// a slice of scalars, []ListItem, []SelectionOption or a provider function.
// Any other value is reported as ErrInvalidOptionsSource on resolution.
func (f *Field) Options(source any) *Field {
	f.source = sourceOf(source)
	return f
}

func (f *Field) Label(label Label) *Field {
	f.label = label
	f.checkSearch()
	return f
}

// OptionsQuery sets the static filter applied before search.
func (f *Field) OptionsQuery(fn FilterFunc) *Field {
	f.filter = fn
	return f
}

// AjaxSearchable enables server-side search. With emptySearch the client also
// asks for options before anything is typed.
func (f *Field) AjaxSearchable(strategy SearchStrategy, emptySearch bool) *Field {
	f.search = strategy
	f.emptySearch = emptySearch
	f.checkSearch()
	return f
}

// MaxSelections caps the number of selections. Zero or less means no cap.
func (f *Field) MaxSelections(n int) *Field {
	if n < 0 {
		n = 0
	}
	f.maxSelections = n
	return f
}

// Reorderable persists the submission order into column on the pivot.
func (f *Field) Reorderable(column string) *Field {
	f.reorderColumn = column
	return f
}

func (f *Field) DependsOn(attributes []string, fn DependentFunc) *Field {
	f.dependsOn = append([]string(nil), attributes...)
	f.dependent = fn
	return f
}

func (f *Field) FillUsing(fn FillFunc) *Field {
	f.fill = fn
	return f
}

func (f *Field) WithMapToSelectionValues(fn MapperFunc) *Field {
	f.mapper = fn
	return f
}

func (f *Field) UsingIndexLabel(r Rollup) *Field {
	f.indexLabel = r
	return f
}

func (f *Field) UsingDetailLabel(r Rollup) *Field {
	f.detailLabel = r
	return f
}

func (f *Field) Help(text string) *Field {
	f.help = text
	return f
}

func (f *Field) Placeholder(text string) *Field {
	f.placeholder = text
	return f
}

func (f *Field) Required() *Field {
	f.required = true
	return f
}

// checkSearch rejects label search over a computed label as soon as both are
// configured.
func (f *Field) checkSearch() {
	f.err = nil
	if f.search.kind == searchByLabel && f.label.IsFunc() {
		f.err = goerr.Wrap(ErrAmbiguousSearchColumn, "label search needs a label column",
			goerr.V(FieldKey, f.name), goerr.V(AttributeKey, f.attribute))
	}
}

func (f *Field) Name() string            { return f.name }
func (f *Field) Attribute() string       { return f.attribute }
func (f *Field) FieldID() string         { return f.id }
func (f *Field) Source() OptionSource    { return f.source }
func (f *Field) ReorderColumn() string   { return f.reorderColumn }
func (f *Field) IsReorderable() bool     { return f.reorderColumn != "" }
func (f *Field) HelpText() string        { return f.help }
func (f *Field) PlaceholderText() string { return f.placeholder }
func (f *Field) IsRequired() bool        { return f.required }
func (f *Field) HasFill() bool           { return f.fill != nil }

func (f *Field) SearchStrategy() SearchStrategy {
	return f.search
}

// Max returns the configured selection cap, 0 when uncapped.
func (f *Field) Max() int { return f.maxSelections }

func (f *Field) DependsOnAttributes() []string {
	return append([]string(nil), f.dependsOn...)
}

// Err returns the construction error, if any.
func (f *Field) Err() error { return f.err }

// Clone returns a copy safe to mutate for one request.
func (f *Field) Clone() *Field {
	c := *f
	c.dependsOn = append([]string(nil), f.dependsOn...)
	if f.source.items != nil {
		c.source.items = append([]ListItem(nil), f.source.items...)
	}
	return &c
}
