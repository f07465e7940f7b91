package issues

import (
	"errors"
	"fmt"
	"strings"

	"github.com/civicconnect/civic/internal/models"
)

// Sentinel errors. The typed errors below match them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("issue not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("admin role required")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// add records a failing field.
func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// err returns e if any field failed, otherwise nil.
func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NotFoundError reports an issue id absent from the store.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("issue %d not found", e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError reports an operation the issue's status does not allow.
type InvalidTransitionError struct {
	ID   int
	From models.IssueStatus
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	switch {
	case e.Op == "resolve" && e.From == models.IssueStatusPending:
		return fmt.Sprintf("cannot resolve issue %d: it must be assigned first", e.ID)
	case e.From.Terminal():
		return fmt.Sprintf("cannot %s issue %d: it is already %s", e.Op, e.ID, e.From)
	}
	return fmt.Sprintf("cannot %s issue %d from status %s", e.Op, e.ID, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }
