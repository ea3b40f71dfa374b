// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package hierarchy

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is against any error returned by this
// module.
var (
	// Row or column sets disagree between inputs. Always fatal.
	ErrShapeMismatch = errors.New("ShapeMismatch")
	// A tag references an identifier absent from S. Always fatal.
	ErrUnknownSeries = errors.New("UnknownSeries")
	// A method needs insample data that was not supplied.
	ErrMissingResiduals = errors.New("MissingResiduals")
	// A weight or aggregation matrix could not be inverted. Recovered with a
	// pseudo-inverse and reported as a diagnostic.
	ErrSingularMatrix = errors.New("SingularMatrix")
	// An iterative solve exhausted its budget. Recovered with a fallback
	// value and reported as a diagnostic.
	ErrDidNotConverge = errors.New("DidNotConverge")
	// TopDown/MiddleOut found no single top node.
	ErrMultipleRoots = errors.New("MultipleRoots")
)

// Error carries the kind plus everything needed to act on it: the method that
// failed (if any) and the offending identifiers or dimensions.
type Error struct {
	Kind   error
	Method string
	IDs    []string
	Detail string
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, method string, ids []string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   kind,
		Method: method,
		IDs:    ids,
		Detail: fmt.Sprintf(format, args...),
	}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Method != "" {
		fmt.Fprintf(&b, " in %s", e.Method)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.IDs) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.IDs, ", "))
	}
	return b.String()
}

// Unwrap exposes the kind so errors.Is works.
func (e *Error) Unwrap() error {
	return e.Kind
}

// WithMethod tags err with the method name. An *Error without a method gets
// one, and any context wrapped around it is kept. Other errors are wrapped.
func WithMethod(err error, method string) error {
	if err == nil {
		return nil
	}
	var herr *Error
	if !errors.As(err, &herr) {
		return fmt.Errorf("%s: %w", method, err)
	}
	if herr.Method != "" {
		return err
	}
	cp := *herr
	cp.Method = method
	if herr == err {
		return &cp
	}
	return &methodError{method: method, err: err, tagged: &cp}
}

// methodError is a wrapped *Error tagged with a method. errors.As finds the
// tagged copy first.
type methodError struct {
	method string
	err    error
	tagged *Error
}

func (e *methodError) Error() string {
	return e.method + ": " + e.err.Error()
}

func (e *methodError) Unwrap() []error {
	return []error{e.tagged, e.err}
}

// IsFatal reports whether err should abort a reconciliation. SingularMatrix
// and DidNotConverge are recovered locally and are never fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrSingularMatrix) && !errors.Is(err, ErrDidNotConverge)
}
