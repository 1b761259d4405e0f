package selectplus

import "github.com/m-mizutani/goerr/v2"

// Configuration errors. Each reflects a field the resource author must fix;
// none of them is retried.
var (
	ErrMissingOptionsSource      = goerr.New("options source is missing")
	ErrConflictingOptionSource   = goerr.New("options source conflicts with relation")
	ErrInvalidOptionsSource      = goerr.New("options source is invalid")
	ErrInvalidOptionsResult      = goerr.New("options provider returned an invalid result")
	ErrInvalidMappingResult      = goerr.New("selection mapping returned an invalid result")
	ErrAmbiguousSearchColumn     = goerr.New("search column cannot be inferred from label function")
	ErrUnsupportedRelationKind   = goerr.New("relation kind is not supported")
	ErrIncompatibleAttributeCast = goerr.New("attribute cast cannot hold the selections")
)

// Submission errors.
var (
	ErrTooManySelections = goerr.New("too many selections")
	ErrInvalidSelection  = goerr.New("invalid selection payload")
)

// Context keys for error values
const (
	FieldKey     = "field"
	AttributeKey = "attribute"
	EntityKey    = "entity"
	RelationKey  = "relation"
	KindKey      = "kind"
	SourceKey    = "source"
	ColumnKey    = "column"
	CountKey     = "count"
	MaxKey       = "max"
	IndexKey     = "index"
	ActualKey    = "actual"
)
