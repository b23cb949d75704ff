// Package multierror aggregates the independent failures collected while
// tearing down a destination's transport resources, so a single log line
// (or returned error) can report all of them instead of just the last one
// observed. Closing many RCON connections at once tends to produce the
// same underlying network error (a reset peer, a half-closed socket)
// repeated across several destinations, so the formatting here collapses
// repeats into one counted line instead of repeating the same message once
// per connection.
package multierror

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Error wraps a multierror.Error with teardown-oriented, repeat-collapsing
// formatting.
type Error struct {
	err *multierror.Error
}

func (e *Error) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	e.err.ErrorFormat = listErrorFunc
	return e.err.Error()
}

// WrappedErrors satisfies errwrap.Wrapper.
func (e *Error) WrappedErrors() []error {
	if e == nil || e.err == nil {
		return nil
	}
	return e.err.WrappedErrors()
}

func (e *Error) Unwrap() error {
	if e == nil || e.err == nil {
		return nil
	}
	return e.err.Unwrap()
}

// ErrorOrNil returns nil when no errors were ever appended.
func (e *Error) ErrorOrNil() error {
	if e == nil || e.err == nil || len(e.err.Errors) == 0 {
		return nil
	}
	return e
}

// Len reports how many individual failures are aggregated, before
// collapsing repeats for display.
func (e *Error) Len() int {
	if e == nil || e.err == nil {
		return 0
	}
	return len(e.err.Errors)
}

// Append records err (and any extras) onto an accumulating *Error,
// converting err into one if it isn't already.
func Append(err error, errs ...error) *Error {
	switch err := err.(type) {
	case *Error:
		if err == nil {
			err = new(Error)
		}
		for _, e := range errs {
			err.err = multierror.Append(err.err, e)
		}
		return err
	default:
		newErrs := make([]error, 0, len(errs)+1)
		if err != nil {
			newErrs = append(newErrs, err)
		}
		newErrs = append(newErrs, errs...)
		return Append(&Error{}, newErrs...)
	}
}

// listErrorFunc collapses repeated identical failures (common when closing
// several destinations hits the same transient network error) into one
// counted line rather than repeating the message once per occurrence.
func listErrorFunc(errs []error) string {
	if len(errs) == 1 {
		return "teardown error: " + errs[0].Error()
	}

	counts := make(map[string]int, len(errs))
	order := make([]string, 0, len(errs))
	for _, err := range errs {
		msg := err.Error()
		if counts[msg] == 0 {
			order = append(order, msg)
		}
		counts[msg]++
	}

	messages := make([]string, 0, len(order))
	for _, msg := range order {
		if n := counts[msg]; n > 1 {
			messages = append(messages, fmt.Sprintf("teardown error (x%d): %s", n, msg))
		} else {
			messages = append(messages, "teardown error: "+msg)
		}
	}
	return fmt.Sprintf("%d teardown errors:\n%s", len(errs), strings.Join(messages, "\n"))
}
