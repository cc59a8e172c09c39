package host

import "errors"

// ErrPassBudgetExceeded is returned by Flush when instances are still dirty
// after the configured number of passes. It almost always means an effect
// updates state that one of its own inputs depends on, for example an
// object input rebuilt on every pass.
var ErrPassBudgetExceeded = errors.New("host: pass budget exceeded")

// ErrHookOrder is returned when a component calls a different number or kind
// of hooks than on its first pass.
var ErrHookOrder = errors.New("host: hook order changed between passes")

// ErrUnmounted is returned when an unmounted instance is used.
var ErrUnmounted = errors.New("host: instance unmounted")

// ErrFlushInProgress is returned when Flush or Dispatch is called while a
// flush is running, including from inside an effect setup.
var ErrFlushInProgress = errors.New("host: flush already in progress")

// ErrClosed is returned when a closed host is used.
var ErrClosed = errors.New("host: closed")
