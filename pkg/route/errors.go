package route

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedTemplate is returned for syntax errors in a route template.
	ErrMalformedTemplate = errors.New("malformed template")

	// ErrDuplicateParameter is returned when a parameter name appears twice in one template.
	ErrDuplicateParameter = errors.New("duplicate parameter name")

	// ErrUnknownConstraint is returned when a constraint name is not in the registry.
	ErrUnknownConstraint = errors.New("unknown constraint")

	// ErrInvalidConstraint is returned when a constraint's arguments cannot be parsed.
	ErrInvalidConstraint = errors.New("invalid constraint arguments")

	// ErrInvalidDefault is returned when a default value fails the parameter's own constraints.
	ErrInvalidDefault = errors.New("default value rejected by constraints")

	// ErrDuplicateConstraint is returned when a constraint name is registered twice.
	ErrDuplicateConstraint = errors.New("constraint already registered")

	// ErrRegistryFrozen is returned when registering into a frozen registry.
	ErrRegistryFrozen = errors.New("constraint registry is frozen")
)

// TemplateError describes why a route template could not be compiled.
// Errors of this type are fatal to the registration of that one route.
type TemplateError struct {
	Template  string // Raw template text
	Parameter string // Offending parameter name, if any
	Detail    string // Human readable detail
	Err       error  // One of the Err* sentinels in this package
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "route: invalid template %q", e.Template)
	if e.Parameter != "" {
		fmt.Fprintf(&b, ": parameter %q", e.Parameter)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Unwrap returns the sentinel so callers can use errors.Is.
func (e *TemplateError) Unwrap() error {
	return e.Err
}

func templateErr(template, param string, err error, format string, args ...any) *TemplateError {
	return &TemplateError{
		Template:  template,
		Parameter: param,
		Detail:    fmt.Sprintf(format, args...),
		Err:       err,
	}
}
