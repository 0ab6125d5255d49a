package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoRecord is returned by a Gateway when no record matches.
	ErrNoRecord = errors.New("no matching record")
	// ErrConflict is returned by a Gateway when a write violates a uniqueness constraint.
	ErrConflict = errors.New("record conflicts with an existing one")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return fmt.Sprintf("%s: %s", err.Fields[0].Field, err.Fields[0].Error)
		}
		return ""
	}
	return err.Err.Error()
}

// PersistenceError reports a failed read or write against the Gateway.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

func (err *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", err.Op, err.Err)
}

func (err *PersistenceError) Unwrap() error { return err.Err }

// IsPersistence reports whether err (or its cause) is a *PersistenceError.
func IsPersistence(err error) bool {
	_, ok := errors.Cause(err).(*PersistenceError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
