package effect

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vango-dev/resync/pkg/deps"
)

// Cleanup tears down a synchronization session.
type Cleanup func()

// Setup starts a synchronization session and optionally returns its teardown.
type Setup func() Cleanup

// State is the lifecycle state of an Effect.
type State uint8

const (
	// StateIdle means Activate has not been called.
	StateIdle State = iota
	// StateActive means a synchronization session is running.
	StateActive
	// StateDisposed means the final teardown has run.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Session is the span between one setup call and its teardown.
type Session struct {
	ID      uuid.UUID
	Seq     int
	Effect  string
	Started time.Time
}

func (s *Session) String() string {
	return fmt.Sprintf("%s#%d", s.Effect, s.Seq)
}

// Effect synchronizes one external system with a host's passes.
//
// An Effect runs setup on Activate. On every later pass the host calls
// Reevaluate with the inputs read on that pass; when any input is not
// identical to the baseline the stored teardown runs, then setup runs again.
// Dispose runs the last teardown exactly once.
//
// Effects are driven by a single cooperative loop. Calls from setup or
// teardown back into the same effect, or from a second goroutine while one
// is in progress, fail with ErrReentrant.
type Effect struct {
	id   uint64
	name string

	setup    Setup
	teardown Cleanup

	// baseline is the input list of the active session.
	baseline deps.List

	session  *Session
	sessions int

	observer Observer
	strict   bool
	now      func() time.Time

	state    atomic.Uint32
	busy     atomic.Bool
	disposed atomic.Bool
}

// Option configures an Effect.
type Option func(*Effect)

// WithName sets the name used in sessions, errors and observers.
func WithName(name string) Option {
	return func(e *Effect) {
		e.name = name
	}
}

// WithObserver attaches an observer. Use Observers to attach several.
func WithObserver(o Observer) Option {
	return func(e *Effect) {
		e.observer = o
	}
}

// WithStrictConstants makes a changed stable input an error instead of an
// ordinary change.
func WithStrictConstants(strict bool) Option {
	return func(e *Effect) {
		e.strict = strict
	}
}

// WithClock overrides the clock used for session start times.
func WithClock(now func() time.Time) Option {
	return func(e *Effect) {
		e.now = now
	}
}

// New creates an idle effect. Nothing runs until Activate.
func New(setup Setup, opts ...Option) *Effect {
	e := &Effect{
		id:    nextID(),
		setup: setup,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.name == "" {
		e.name = fmt.Sprintf("effect-%d", e.id)
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	return e
}

// ID returns the unique identifier of the effect.
func (e *Effect) ID() uint64 {
	return e.id
}

// Name returns the effect name.
func (e *Effect) Name() string {
	return e.name
}

// State returns the lifecycle state.
func (e *Effect) State() State {
	return State(e.state.Load())
}

// Session returns the active session, or nil.
func (e *Effect) Session() *Session {
	return e.session
}

// Sessions returns how many sessions have been started.
func (e *Effect) Sessions() int {
	return e.sessions
}

// Inputs returns the baseline input list of the active session.
func (e *Effect) Inputs() deps.List {
	return e.baseline
}

// Activate runs setup for the first time with the inputs of the first pass.
func (e *Effect) Activate(inputs deps.List) error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer e.release()

	switch e.State() {
	case StateDisposed:
		return ErrDisposed
	case StateActive:
		return ErrAlreadyActive
	}

	e.baseline = inputs
	e.start(inputs)
	e.finishIfDisposed()
	return nil
}

// Reevaluate applies the synchronization rule to the inputs of a new pass.
// It reports whether a teardown/setup cycle ran. On error nothing runs and
// the baseline is kept.
func (e *Effect) Reevaluate(inputs deps.List) (bool, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return false, ErrReentrant
	}
	defer e.release()

	switch e.State() {
	case StateDisposed:
		return false, ErrDisposed
	case StateIdle:
		return false, ErrNotActive
	}

	if e.strict {
		if pos := deps.UnstableConstants(e.baseline, inputs); len(pos) > 0 {
			return false, &UnstableConstantError{Effect: e.name, Positions: pos}
		}
	}

	changed, err := e.baseline.Resynchronize(inputs)
	if err != nil {
		return false, fmt.Errorf("effect %q: %w", e.name, err)
	}
	if !changed {
		e.observer.Skipped(e.session, inputs)
		return false, nil
	}

	e.stop(EndResynchronized)
	if e.disposed.Load() {
		// Disposed by the teardown that just ran: no new session.
		e.state.Store(uint32(StateDisposed))
		return true, nil
	}
	e.baseline = inputs
	e.start(inputs)
	e.finishIfDisposed()
	return true, nil
}

// Dispose runs the stored teardown once. Later calls do nothing. Disposing
// from inside setup or teardown is deferred until that call returns.
func (e *Effect) Dispose() {
	if e.disposed.Swap(true) {
		return
	}
	if !e.busy.CompareAndSwap(false, true) {
		// The running Activate or Reevaluate sees disposed and finishes.
		return
	}
	defer e.busy.Store(false)
	e.finishIfDisposed()
}

// release clears busy, then finishes a Dispose that found busy set after
// the running call had already checked for it.
func (e *Effect) release() {
	e.busy.Store(false)
	if !e.disposed.Load() || e.State() == StateDisposed {
		return
	}
	if e.busy.CompareAndSwap(false, true) {
		e.finishIfDisposed()
		e.busy.Store(false)
	}
}

func (e *Effect) finishIfDisposed() {
	if !e.disposed.Load() {
		return
	}
	if e.State() == StateActive {
		e.stop(EndDisposed)
	}
	e.state.Store(uint32(StateDisposed))
}

// start runs setup for a new session. If setup panics the panic propagates
// and the effect is left without an active session.
func (e *Effect) start(inputs deps.List) {
	e.sessions++
	s := &Session{
		ID:      uuid.New(),
		Seq:     e.sessions,
		Effect:  e.name,
		Started: e.now(),
	}
	e.session = nil
	e.teardown = nil
	e.state.Store(uint32(StateIdle))

	e.observer.SessionStarted(s, inputs)
	ok := false
	defer func() {
		if !ok {
			e.observer.SessionEnded(s, EndAborted)
		}
	}()

	td := e.setup()
	ok = true

	e.session = s
	e.teardown = td
	e.state.Store(uint32(StateActive))
}

// stop runs the stored teardown. The session is cleared before teardown runs
// so a panicking teardown never runs twice.
func (e *Effect) stop(reason EndReason) {
	s, td := e.session, e.teardown
	e.session = nil
	e.teardown = nil
	e.state.Store(uint32(StateIdle))

	if td != nil {
		td()
	}
	if s != nil {
		e.observer.SessionEnded(s, reason)
	}
}
