package engine

import (
	"errors"
	"fmt"
	"log"

	"github.com/m-mizutani/goerr/v2"

	"select-plus/internal/selectplus"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
	}
}

func UnknownResourceError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_RESOURCE",
		Status:  404,
		Message: fmt.Sprintf("Unknown resource: %s", name),
	}
}

func UnknownFieldError(resource, attribute, fieldID string) *AppError {
	msg := fmt.Sprintf("Resource %s has no SelectPlus field %s", resource, attribute)
	if fieldID != "" && fieldID != attribute {
		msg += fmt.Sprintf(" with id %s", fieldID)
	}
	return &AppError{Code: "UNKNOWN_FIELD", Status: 404, Message: msg}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

var configurationErrors = []error{
	selectplus.ErrMissingOptionsSource,
	selectplus.ErrConflictingOptionSource,
	selectplus.ErrInvalidOptionsSource,
	selectplus.ErrInvalidOptionsResult,
	selectplus.ErrInvalidMappingResult,
	selectplus.ErrAmbiguousSearchColumn,
	selectplus.ErrUnsupportedRelationKind,
	selectplus.ErrIncompatibleAttributeCast,
}

// FieldError maps a SelectPlus error raised for attribute to its HTTP
// shape. It returns nil for errors outside the SelectPlus taxonomy.
func FieldError(attribute string, err error) *AppError {
	values := map[string]any{}
	var ge *goerr.Error
	if errors.As(err, &ge) {
		values = ge.Values()
	}

	switch {
	case errors.Is(err, selectplus.ErrTooManySelections), errors.Is(err, selectplus.ErrInvalidSelection):
		rule := "selection"
		if errors.Is(err, selectplus.ErrTooManySelections) {
			rule = "max_selections"
		}
		return ValidationError([]ErrorDetail{{Field: attribute, Rule: rule, Message: err.Error()}})
	}

	for _, target := range configurationErrors {
		if errors.Is(err, target) {
			log.Printf("ERROR: misconfigured field %q: %v (values=%v)", attribute, err, values)
			return &AppError{
				Code:    "FIELD_MISCONFIGURED",
				Status:  500,
				Message: err.Error(),
			}
		}
	}
	return nil
}
