// Package errors wraps github.com/pkg/errors and the standard library so callers import a
// single errors package. It also provides Errors, a list of errors collected from
// independent operations.
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// Errorf is fmt.Errorf; %w wrapping is preserved.
	Errorf = fmt.Errorf
	// New is Errorf, so a constant message may still carry format verbs.
	New = Errorf
	// Is is errors.Is from the standard library.
	Is = stderrors.Is
	// As is errors.As from the standard library.
	As = stderrors.As
)

// WrapfOrNil prefixes err with a formatted message, returning nil when err is nil.
func WrapfOrNil(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.WithMessagef(err, format, args...)
}

// Wrapf is WrapfOrNil, except that a nil err yields a new error with the message alone.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return Errorf(format, args...)
	}
	return WrapfOrNil(err, format, args...)
}
