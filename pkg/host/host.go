package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/resync/pkg/effect"
)

// DefaultPassBudget is the number of passes one Flush may run.
const DefaultPassBudget = 50

// Component renders one instance. It is called once per pass and must call
// its hooks in the same order every time.
type Component func(p *Pass)

// Host owns component instances and runs re-evaluation passes.
type Host struct {
	logger   *slog.Logger
	budget   int
	observer effect.Observer
	strict   bool

	mu        sync.Mutex
	instances map[string]*Instance
	order     []*Instance
	closed    bool

	flushing atomic.Bool

	// totalPasses counts every instance render since New.
	totalPasses atomic.Int64
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger. Default: slog.Default() with component=host.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithPassBudget sets how many passes one Flush may run. Values below one
// select DefaultPassBudget.
func WithPassBudget(n int) Option {
	return func(h *Host) {
		h.budget = n
	}
}

// WithObserver attaches an observer to every effect created by the host.
func WithObserver(o effect.Observer) Option {
	return func(h *Host) {
		h.observer = o
	}
}

// WithStrictConstants enables strict stable-input checking on every effect.
func WithStrictConstants(strict bool) Option {
	return func(h *Host) {
		h.strict = strict
	}
}

// New creates an empty Host.
func New(opts ...Option) *Host {
	h := &Host{
		budget:    DefaultPassBudget,
		instances: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.budget < 1 {
		h.budget = DefaultPassBudget
	}
	if h.logger == nil {
		h.logger = slog.Default().With("component", "host")
	}
	return h
}

// Logger returns the host logger.
func (h *Host) Logger() *slog.Logger {
	return h.logger
}

// Mount returns the instance for key, creating it when it does not exist.
// A new instance is dirty and renders on the next Flush. Mounting an existing
// key keeps its state and replaces the component used on later passes.
func (h *Host) Mount(key string, c Component) *Instance {
	h.mu.Lock()
	defer h.mu.Unlock()

	if in, ok := h.instances[key]; ok {
		in.component = c
		return in
	}
	in := newInstance(h, key, c)
	if h.closed {
		in.unmounted = true
		return in
	}
	h.instances[key] = in
	h.order = append(h.order, in)
	return in
}

// Remount unmounts the instance for key, if any, and mounts a fresh one with
// empty state. This is how a changed key resets a component.
func (h *Host) Remount(key string, c Component) *Instance {
	if old := h.Instance(key); old != nil {
		old.Unmount()
	}
	return h.Mount(key, c)
}

// Instance returns the mounted instance for key, or nil.
func (h *Host) Instance(key string) *Instance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instances[key]
}

// Keys returns the mounted keys in mount order.
func (h *Host) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, len(h.order))
	for i, in := range h.order {
		keys[i] = in.key
	}
	return keys
}

// Passes returns the number of instance renders since New.
func (h *Host) Passes() int64 {
	return h.totalPasses.Load()
}

// Pending reports whether any instance needs a pass.
func (h *Host) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, in := range h.order {
		if in.needsRender() {
			return true
		}
	}
	return false
}

// Flush runs passes until no instance is dirty. Each pass renders every dirty
// instance in mount order and then re-evaluates its effects. Flush stops with
// ErrPassBudgetExceeded after the pass budget, and with the context error
// when ctx is done between passes.
func (h *Host) Flush(ctx context.Context) error {
	if !h.flushing.CompareAndSwap(false, true) {
		return ErrFlushInProgress
	}
	defer h.flushing.Store(false)

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}

	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		dirty := h.collectDirty()
		if len(dirty) == 0 {
			return nil
		}
		if pass > h.budget {
			keys := make([]string, len(dirty))
			for i, in := range dirty {
				keys[i] = in.key
			}
			h.logger.Warn("pass budget exceeded",
				"budget", h.budget,
				"dirty", keys,
			)
			h.markStale(dirty)
			return fmt.Errorf("%w: %d passes, still dirty: %v", ErrPassBudgetExceeded, h.budget, keys)
		}

		commits := make([][]func() error, len(dirty))
		for i, in := range dirty {
			effects, err := in.render()
			if err != nil {
				h.markStale(dirty[i+1:])
				return err
			}
			commits[i] = effects
			h.totalPasses.Add(1)
		}
		for i, in := range dirty {
			if err := in.commit(commits[i]); err != nil {
				h.markStale(dirty[i+1:])
				return err
			}
		}
		h.logger.Debug("pass complete", "pass", pass, "rendered", len(dirty))
	}
}

// collectDirty applies queued state updates and returns the instances that
// must render, in mount order.
func (h *Host) collectDirty() []*Instance {
	h.mu.Lock()
	candidates := make([]*Instance, 0, len(h.order))
	for _, in := range h.order {
		if in.needsRender() {
			candidates = append(candidates, in)
		}
	}
	h.mu.Unlock()

	var dirty []*Instance
	for _, in := range candidates {
		if in.applyUpdates() {
			dirty = append(dirty, in)
		}
	}
	return dirty
}

// markStale keeps instances dirty whose applied updates a failed pass never
// rendered or committed.
func (h *Host) markStale(ins []*Instance) {
	h.mu.Lock()
	for _, in := range ins {
		in.stale = true
	}
	h.mu.Unlock()
}

// Close unmounts every instance in reverse mount order. Later mounts are
// born unmounted.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	order := append([]*Instance(nil), h.order...)
	h.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		order[i].Unmount()
	}
}

func (h *Host) remove(in *Instance) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.instances[in.key] == in {
		delete(h.instances, in.key)
	}
	for i, o := range h.order {
		if o == in {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}
