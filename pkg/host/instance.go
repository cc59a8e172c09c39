package host

import (
	"context"
	"fmt"

	"github.com/vango-dev/resync/pkg/effect"
)

// hookKind identifies the hook stored in a slot for order validation.
type hookKind uint8

const (
	hookState hookKind = iota + 1
	hookRef
	hookEffect
	hookMemo
)

func (k hookKind) String() string {
	switch k {
	case hookState:
		return "State"
	case hookRef:
		return "Ref"
	case hookEffect:
		return "Effect"
	case hookMemo:
		return "Memo"
	default:
		return "Unknown"
	}
}

type slot struct {
	kind  hookKind
	value any
}

// updater is a state cell with queued updates.
type updater interface {
	// apply runs the queued updates and reports whether the value changed.
	apply() bool
}

// Instance is one mounted component with its hook slots.
type Instance struct {
	host *Host
	key  string

	// slots and renders are only touched by the flushing goroutine.
	slots   []*slot
	renders int

	// Guarded by host.mu.
	component Component
	unmounted bool
	queued    []updater
	// stale is set when applied updates were not rendered and committed
	// because the pass failed.
	stale bool
}

func newInstance(h *Host, key string, c Component) *Instance {
	return &Instance{
		host:      h,
		key:       key,
		component: c,
	}
}

// Key returns the mount key.
func (in *Instance) Key() string {
	return in.key
}

// Renders returns how many passes rendered this instance.
func (in *Instance) Renders() int {
	return in.renders
}

// Mounted reports whether the instance is still mounted.
func (in *Instance) Mounted() bool {
	in.host.mu.Lock()
	defer in.host.mu.Unlock()
	return !in.unmounted
}

// Effects returns the instance's effects in declaration order.
func (in *Instance) Effects() []*effect.Effect {
	var out []*effect.Effect
	for _, s := range in.slots {
		if es, ok := s.value.(*effectSlot); ok {
			out = append(out, es.eff)
		}
	}
	return out
}

// Dispatch runs an event handler and flushes. Updates queued by fn are
// batched into a single pass.
func (in *Instance) Dispatch(ctx context.Context, fn func()) error {
	if !in.Mounted() {
		return ErrUnmounted
	}
	fn()
	return in.host.Flush(ctx)
}

// Unmount disposes the instance's effects in reverse declaration order and
// removes it from the host. Queued updates are dropped.
func (in *Instance) Unmount() {
	h := in.host
	h.mu.Lock()
	if in.unmounted {
		h.mu.Unlock()
		return
	}
	in.unmounted = true
	in.queued = nil
	h.mu.Unlock()

	h.remove(in)

	for i := len(in.slots) - 1; i >= 0; i-- {
		if es, ok := in.slots[i].value.(*effectSlot); ok {
			es.eff.Dispose()
		}
	}
	h.logger.Debug("instance unmounted", "key", in.key, "renders", in.renders)
}

// needsRender must be called with host.mu held.
func (in *Instance) needsRender() bool {
	return !in.unmounted && (in.renders == 0 || in.stale || len(in.queued) > 0)
}

// applyUpdates applies queued updates and reports whether the instance must
// render. The first pass always renders, as does a stale instance.
func (in *Instance) applyUpdates() bool {
	h := in.host
	h.mu.Lock()
	if in.unmounted {
		h.mu.Unlock()
		return false
	}
	queued := in.queued
	in.queued = nil
	changed := in.renders == 0 || in.stale
	in.stale = false
	h.mu.Unlock()

	for _, u := range queued {
		if u.apply() {
			changed = true
		}
	}
	return changed
}

// render runs the component and returns its effect commits in declaration
// order. The host runs them once every dirty instance has rendered.
func (in *Instance) render() ([]func() error, error) {
	h := in.host
	h.mu.Lock()
	c := in.component
	unmounted := in.unmounted
	h.mu.Unlock()
	if unmounted {
		return nil, nil
	}

	p := &Pass{inst: in, number: in.renders + 1}
	c(p)
	if p.err == nil && in.renders > 0 && p.idx != len(in.slots) {
		p.err = fmt.Errorf("%w: instance %q called %d hooks, first pass called %d",
			ErrHookOrder, in.key, p.idx, len(in.slots))
	}
	in.renders++
	if p.err != nil {
		return nil, p.err
	}
	return p.effects, nil
}

// commit runs the effect commits of the last render. It stops quietly when
// an earlier commit unmounted the instance.
func (in *Instance) commit(effects []func() error) error {
	for _, commit := range effects {
		if !in.Mounted() {
			return nil
		}
		if err := commit(); err != nil {
			return fmt.Errorf("instance %q: %w", in.key, err)
		}
	}
	return nil
}
