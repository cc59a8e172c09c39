package errors

import (
	stderrors "errors"

	"github.com/vango-dev/resync/pkg/archive"
	"github.com/vango-dev/resync/pkg/deps"
	"github.com/vango-dev/resync/pkg/effect"
	"github.com/vango-dev/resync/pkg/host"
)

// Coder is implemented by errors that carry their own code.
type Coder interface {
	Code() string
}

// sentinels maps package errors to codes, checked in order with errors.Is.
var sentinels = []struct {
	err  error
	code string
}{
	{deps.ErrDependencyArity, "R101"},
	{effect.ErrUnstableConstant, "R102"},
	{effect.ErrReentrant, "R001"},
	{effect.ErrDisposed, "R002"},
	{effect.ErrNotActive, "R003"},
	{effect.ErrAlreadyActive, "R004"},
	{host.ErrPassBudgetExceeded, "R005"},
	{host.ErrHookOrder, "R006"},
	{host.ErrUnmounted, "R007"},
	{host.ErrFlushInProgress, "R008"},
	{host.ErrClosed, "R009"},
	{archive.ErrNotFound, "R303"},
}

// Classify returns the code for err: the code of an *Error or Coder in its
// chain, else the code of the first matching package sentinel, else "R000".
// A nil error has no code.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok && e.Code != "" {
		return e.Code
	}
	var c Coder
	if stderrors.As(err, &c) {
		return c.Code()
	}
	for _, s := range sentinels {
		if stderrors.Is(err, s.err) {
			return s.code
		}
	}
	return "R000"
}

// Resolve converts any error into an *Error carrying its classified code.
func Resolve(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return New(Classify(err)).Wrap(err)
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}
