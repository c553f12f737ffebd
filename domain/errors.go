package domain

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound indicates the mutation target does not exist in the
// backing store. Move operations treat it as a benign no-op; direct edits
// and deletes surface it.
var ErrTaskNotFound = errors.New("task not found")

// ValidationError rejects a request before anything is sent to storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
