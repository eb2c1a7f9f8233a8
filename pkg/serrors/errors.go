package serrors

import (
	"fmt"
	"sort"
	"strings"
)

// BaseError is a structured error carrying a stable machine-readable code.
// LocaleKey is kept for callers that translate messages before display.
type BaseError struct {
	Code         string
	Message      string
	LocaleKey    string
	TemplateData map[string]string
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BaseError) WithTemplateData(data map[string]string) *BaseError {
	e.TemplateData = data
	return e
}

// ValidationErrors collects per-field errors keyed by field name.
type ValidationErrors map[string]error

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %v", field, v[field]))
	}
	return strings.Join(parts, "; ")
}

func NewFieldRequiredError(field, localeKey string) *BaseError {
	return NewError(
		"FIELD_REQUIRED",
		fmt.Sprintf("field %q is required", field),
		localeKey,
	).WithTemplateData(map[string]string{"field": field})
}
