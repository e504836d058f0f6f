package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is matched by ValidationErrors.
var ErrValidation = errors.New("validation failed")

// FieldError is a single invalid field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors accumulates field errors.
type ValidationErrors struct {
	Errors []FieldError
}

// AddMessage records a field error.
func (v *ValidationErrors) AddMessage(field, message string) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message})
}

// Err returns nil when nothing was recorded.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	parts := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

// Is lets errors.Is match ErrValidation.
func (v *ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}
