// Package resync provides the public API for the effect re-synchronization
// engine.
//
// This is the recommended import for most callers:
//
//	import "github.com/vango-dev/resync"
//
// Usage:
//
//	h := resync.NewHost()
//	defer h.Close()
//	h.Mount("counter", func(p *resync.Pass) {
//	    value, _ := resync.UseState(p, "")
//	    resync.UseEffect(p, func() resync.Cleanup {
//	        log.Println("value changed to", value)
//	        return nil
//	    }, resync.On(resync.Track(value)))
//	})
//	err := h.Flush(ctx)
package resync

import (
	"context"

	"github.com/vango-dev/resync/pkg/deps"
	"github.com/vango-dev/resync/pkg/effect"
	"github.com/vango-dev/resync/pkg/host"
	"github.com/vango-dev/resync/pkg/scenario"
)

// =============================================================================
// Dependency values and lists (re-export from pkg/deps)
// =============================================================================

// Value is one tracked input compared by identity.
type Value = deps.Value

// List is the dependency declaration of one effect for one pass.
type List = deps.List

// ArityError reports a dependency list that changed length or shape.
type ArityError = deps.ArityError

// Track returns a reactive primitive compared by value.
func Track[T deps.Primitive](v T) deps.Tracked[T] {
	return deps.Track(v)
}

// Const returns a stable input.
func Const[T comparable](v T) deps.Constant[T] {
	return deps.Const(v)
}

// RefOf returns a composite input compared by pointer identity.
func RefOf[T any](p *T) deps.Ref[T] {
	return deps.RefOf(p)
}

// Every declares no dependency list: re-synchronize on every pass.
var Every = deps.Every

// Once declares an empty dependency list: set up once, torn down on dispose.
var Once = deps.Once

// On declares the values read by setup.
var On = deps.On

// ShouldResynchronize reports whether two successive input lists differ at
// some position.
var ShouldResynchronize = deps.ShouldResynchronize

// ErrDependencyArity matches every *ArityError.
var ErrDependencyArity = deps.ErrDependencyArity

// =============================================================================
// Effects (re-export from pkg/effect)
// =============================================================================

// Effect drives the setup/teardown protocol of one effect.
type Effect = effect.Effect

// Setup starts a synchronization session.
type Setup = effect.Setup

// Cleanup tears down a synchronization session.
type Cleanup = effect.Cleanup

// Session is one setup-to-teardown span.
type Session = effect.Session

// Observer is notified of session lifecycle events.
type Observer = effect.Observer

// Event is one recorded lifecycle event.
type Event = effect.Event

// EffectOption configures an Effect.
type EffectOption = effect.Option

// NewEffect creates an idle effect.
var NewEffect = effect.New

// WithName names an effect in the call log.
var WithName = effect.WithName

// WithObserver attaches an observer to an effect.
var WithObserver = effect.WithObserver

// NewRecorder creates an observer that records the call log.
var NewRecorder = effect.NewRecorder

// Observers combines observers into one.
var Observers = effect.Observers

// Effect errors.
var (
	ErrReentrant     = effect.ErrReentrant
	ErrDisposed      = effect.ErrDisposed
	ErrAlreadyActive = effect.ErrAlreadyActive
	ErrNotActive     = effect.ErrNotActive
)

// =============================================================================
// Host loop (re-export from pkg/host)
// =============================================================================

// Host owns component instances and runs re-evaluation passes.
type Host = host.Host

// Instance is one mounted component.
type Instance = host.Instance

// Pass is the render context handed to a component.
type Pass = host.Pass

// Component renders one instance.
type Component = host.Component

// HostOption configures a Host.
type HostOption = host.Option

// NewHost creates an empty Host.
var NewHost = host.New

// WithPassBudget sets how many passes one Flush may run.
var WithPassBudget = host.WithPassBudget

// WithHostObserver attaches an observer to every effect created by a host.
var WithHostObserver = host.WithObserver

// UseState returns the snapshot value of a state slot and its setter.
func UseState[T comparable](p *Pass, initial T) (T, host.Setter[T]) {
	return host.UseState(p, initial)
}

// UseRef returns a mutable box whose changes never schedule a pass.
func UseRef[T any](p *Pass, initial T) *host.Ref[T] {
	return host.UseRef(p, initial)
}

// UseEffect declares an effect that runs after the pass.
func UseEffect(p *Pass, setup Setup, inputs List) {
	host.UseEffect(p, setup, inputs)
}

// UseMemo recomputes a value when its inputs re-synchronize.
func UseMemo[T any](p *Pass, compute func() T, inputs List) T {
	return host.UseMemo(p, compute, inputs)
}

// Host errors.
var (
	ErrPassBudgetExceeded = host.ErrPassBudgetExceeded
	ErrHookOrder          = host.ErrHookOrder
	ErrUnmounted          = host.ErrUnmounted
)

// =============================================================================
// Scenarios (re-export from pkg/scenario)
// =============================================================================

// Scenario is one replayable sequence of passes.
type Scenario = scenario.Scenario

// Report is the outcome of a scenario run.
type Report = scenario.Report

// LoadScenario reads and validates a scenario file.
var LoadScenario = scenario.Load

// ParseScenario decodes and validates a scenario document.
var ParseScenario = scenario.Parse

// Builtin loads an embedded scenario by name.
var Builtin = scenario.Builtin

// RunScenario replays s and checks its expectations.
func RunScenario(ctx context.Context, s *Scenario, opts ...scenario.RunOption) (*Report, error) {
	return scenario.Run(ctx, s, opts...)
}
