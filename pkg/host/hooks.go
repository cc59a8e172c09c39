package host

import (
	"fmt"

	"github.com/vango-dev/resync/pkg/deps"
	"github.com/vango-dev/resync/pkg/effect"
)

// Pass is the render context of one instance for one pass.
type Pass struct {
	inst    *Instance
	number  int
	idx     int
	effects []func() error
	err     error
}

// Number returns the 1-based pass number of the instance.
func (p *Pass) Number() int {
	return p.number
}

// Key returns the key of the instance being rendered.
func (p *Pass) Key() string {
	return p.inst.key
}

func (p *Pass) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

// use returns the slot for the next hook, creating it on the first pass.
// It returns nil after recording ErrHookOrder.
func (p *Pass) use(kind hookKind) (s *slot, first bool) {
	idx := p.idx
	p.idx++
	in := p.inst

	if idx < len(in.slots) {
		s = in.slots[idx]
		if s.kind != kind {
			p.fail(fmt.Errorf("%w: instance %q hook %d was %s, now %s",
				ErrHookOrder, in.key, idx, s.kind, kind))
			return nil, false
		}
		return s, false
	}
	if in.renders > 0 {
		p.fail(fmt.Errorf("%w: instance %q added %s hook at index %d",
			ErrHookOrder, in.key, kind, idx))
		return nil, false
	}
	s = &slot{kind: kind}
	in.slots = append(in.slots, s)
	return s, true
}

// =============================================================================
// State
// =============================================================================

type stateCell[T comparable] struct {
	inst   *Instance
	value  T
	queue  []func(T) T
	queued bool
}

func (c *stateCell[T]) push(fn func(T) T) {
	in := c.inst
	h := in.host
	h.mu.Lock()
	defer h.mu.Unlock()
	if in.unmounted {
		return
	}
	c.queue = append(c.queue, fn)
	if !c.queued {
		c.queued = true
		in.queued = append(in.queued, c)
	}
}

func (c *stateCell[T]) apply() bool {
	h := c.inst.host
	h.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.queued = false
	h.mu.Unlock()

	next := c.value
	for _, fn := range queue {
		next = fn(next)
	}
	changed := !sameValue(c.value, next)
	c.value = next
	return changed
}

// sameValue treats NaN as identical to itself so that setting NaN twice does
// not schedule a pass.
func sameValue[T comparable](a, b T) bool {
	return a == b || (a != a && b != b)
}

// Setter queues updates to one state value. Setters are stable: the same
// Setter is returned on every pass.
type Setter[T comparable] struct {
	cell *stateCell[T]
}

// Set queues a replacement value. The current pass keeps its snapshot.
func (s Setter[T]) Set(v T) {
	s.Update(func(T) T { return v })
}

// Update queues fn to compute the next value from the pending one. Several
// updates queued before a flush are applied in order.
func (s Setter[T]) Update(fn func(T) T) {
	if s.cell == nil {
		return
	}
	s.cell.push(fn)
}

// Dep returns the setter as a stable dependency.
func (s Setter[T]) Dep() deps.Value {
	return deps.Const(s.cell)
}

// UseState returns the state snapshot for this pass and its setter.
func UseState[T comparable](p *Pass, initial T) (T, Setter[T]) {
	s, first := p.use(hookState)
	if s == nil {
		return initial, Setter[T]{}
	}
	if first {
		s.value = &stateCell[T]{inst: p.inst, value: initial}
	}
	cell, ok := s.value.(*stateCell[T])
	if !ok {
		p.fail(fmt.Errorf("%w: instance %q state hook %d changed type", ErrHookOrder, p.inst.key, p.idx-1))
		return initial, Setter[T]{}
	}
	return cell.value, Setter[T]{cell: cell}
}

// =============================================================================
// Ref
// =============================================================================

// Ref is a mutable box kept across passes. Writing Current never schedules
// a pass.
type Ref[T any] struct {
	Current T
}

// Dep returns the ref box as a stable dependency.
func (r *Ref[T]) Dep() deps.Value {
	return deps.Const(r)
}

// UseRef returns the same box on every pass.
func UseRef[T any](p *Pass, initial T) *Ref[T] {
	s, first := p.use(hookRef)
	if s == nil {
		return &Ref[T]{Current: initial}
	}
	if first {
		s.value = &Ref[T]{Current: initial}
	}
	r, ok := s.value.(*Ref[T])
	if !ok {
		p.fail(fmt.Errorf("%w: instance %q ref hook %d changed type", ErrHookOrder, p.inst.key, p.idx-1))
		return &Ref[T]{Current: initial}
	}
	return r
}

// =============================================================================
// Effect
// =============================================================================

type effectSlot struct {
	eff   *effect.Effect
	setup effect.Setup
}

// UseEffect declares an effect. Its setup runs after the pass when inputs
// changed; the latest setup closure is the one that runs.
func UseEffect(p *Pass, setup effect.Setup, inputs deps.List) {
	UseNamedEffect(p, "", setup, inputs)
}

// UseNamedEffect is UseEffect with an explicit effect name. The default name
// is "<key>/effect-<hook index>".
func UseNamedEffect(p *Pass, name string, setup effect.Setup, inputs deps.List) {
	s, first := p.use(hookEffect)
	if s == nil {
		return
	}
	if first {
		if name == "" {
			name = fmt.Sprintf("%s/effect-%d", p.inst.key, p.idx-1)
		}
		h := p.inst.host
		es := &effectSlot{}
		es.eff = effect.New(func() effect.Cleanup {
			if es.setup == nil {
				return nil
			}
			return es.setup()
		},
			effect.WithName(name),
			effect.WithObserver(h.observer),
			effect.WithStrictConstants(h.strict),
		)
		s.value = es
	}
	es := s.value.(*effectSlot)
	es.setup = setup

	if first {
		p.effects = append(p.effects, func() error {
			return es.eff.Activate(inputs)
		})
		return
	}
	p.effects = append(p.effects, func() error {
		_, err := es.eff.Reevaluate(inputs)
		return err
	})
}

// =============================================================================
// Memo
// =============================================================================

type memoCell[T any] struct {
	value  T
	inputs deps.List
}

// UseMemo returns compute's result, recomputing it only when inputs
// re-synchronize under the same rule effects use.
func UseMemo[T any](p *Pass, compute func() T, inputs deps.List) T {
	s, first := p.use(hookMemo)
	if s == nil {
		var zero T
		return zero
	}
	if first {
		cell := &memoCell[T]{value: compute(), inputs: inputs}
		s.value = cell
		return cell.value
	}
	cell, ok := s.value.(*memoCell[T])
	if !ok {
		p.fail(fmt.Errorf("%w: instance %q memo hook %d changed type", ErrHookOrder, p.inst.key, p.idx-1))
		var zero T
		return zero
	}
	changed, err := cell.inputs.Resynchronize(inputs)
	if err != nil {
		p.fail(fmt.Errorf("instance %q memo hook %d: %w", p.inst.key, p.idx-1, err))
		return cell.value
	}
	if changed {
		cell.value = compute()
	}
	cell.inputs = inputs
	return cell.value
}
