package errors

import (
	"strings"
)

// Errors is a non-empty list of errors. A nil Errors means no error occurred, so callers
// can compare against nil directly.
type Errors interface {
	error
	// Slice returns a copy of the (non-empty) underlying errors.
	Slice() []error
	// Len is always > 0.
	Len() int
}

type errorList []error

func (l errorList) Slice() []error {
	return append([]error(nil), l...)
}

func (l errorList) Len() int {
	return len(l)
}

func (l errorList) Error() string {
	parts := make([]string, 0, len(l))
	for _, err := range l {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "\n")
}

// Is reports whether any error in the list matches target.
func (l errorList) Is(target error) bool {
	for _, err := range l {
		if Is(err, target) {
			return true
		}
	}
	return false
}

// As finds the first error in the list that matches target.
func (l errorList) As(target interface{}) bool {
	for _, err := range l {
		if As(err, target) {
			return true
		}
	}
	return false
}

// Append appends a (possibly nil) error to a (possibly nil) Errors.
// Nested lists are flattened.
func Append(errs Errors, err error) Errors {
	if err == nil {
		return errs
	}
	var list errorList
	if errs != nil {
		list = errorList(errs.Slice())
	}
	if nested, ok := err.(Errors); ok {
		return append(list, nested.Slice()...)
	}
	return append(list, err)
}

// Combine combines errors e & f into a single error, returning nil if both are nil.
func Combine(e, f error) error {
	switch {
	case e == nil:
		return f
	case f == nil:
		return e
	}
	return Append(Append(nil, e), f)
}

// Defer is a helper for deferring error-returning functions such as Close
func Defer(err *error, f func() error) {
	*err = Combine(*err, f())
}
