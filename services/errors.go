package services

import (
	"errors"
	"fmt"

	"refcheck/storage"
)

var (
	// ErrWorkNotFound wird zurückgegeben, wenn ein Werk nicht existiert.
	ErrWorkNotFound = storage.ErrNotFound
	// ErrVerificationInProgress meldet einen bereits laufenden Verifikationslauf für dasselbe Werk.
	ErrVerificationInProgress = errors.New("verification already in progress")
)

// ValidationError ist ein Eingabefehler, der nie wiederholt werden sollte.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation meldet, ob err (oder ein eingepackter Fehler) ein ValidationError ist.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
