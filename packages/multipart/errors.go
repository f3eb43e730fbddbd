package multipart

import (
	"errors"
	"fmt"
	"strings"
)

var errUnknownValue = errors.New("unknown field value type")

// ValidationError reports a field collection that cannot be encoded. It is
// only returned at construction time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("multipart: ")
	if e.Field != "" {
		fmt.Fprintf(&b, "invalid field %q: ", e.Field)
	}
	b.WriteString(e.Reason)
	return b.String()
}

// ProductionError reports a failure while writing the body. It is only
// delivered through the signal returned by Start. Field is empty when the
// failure happened outside any field, for example on the closing boundary.
type ProductionError struct {
	Field string
	Err   error
}

func (e *ProductionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("multipart: production failed: %v", e.Err)
	}
	return fmt.Sprintf("multipart: producing field %q: %v", e.Field, e.Err)
}

func (e *ProductionError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
