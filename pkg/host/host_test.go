package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/resync/pkg/deps"
	"github.com/vango-dev/resync/pkg/effect"
)

func newTestHost(opts ...Option) *Host {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(append([]Option{WithLogger(logger)}, opts...)...)
}

// countInputChanges counts how many times value changed, with the effect
// keyed on the value only.
type countInputChanges struct {
	value    string
	setValue Setter[string]
	count    int
	inputs   func(value string) deps.List
}

func (c *countInputChanges) render(p *Pass) {
	value, setValue := UseState(p, "")
	count, setCount := UseState(p, -1)
	UseEffect(p, func() effect.Cleanup {
		setCount.Set(count + 1)
		return nil
	}, c.inputs(value))
	c.value, c.setValue, c.count = value, setValue, count
}

func TestCountInputChangesWithValueDependency(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	c := &countInputChanges{inputs: func(v string) deps.List { return deps.On(deps.Track(v)) }}
	in := h.Mount("counter", c.render)

	if err := h.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if c.count != 0 {
		t.Errorf("count after mount = %d, want 0", c.count)
	}
	if in.Renders() != 2 {
		t.Errorf("renders after mount = %d, want 2", in.Renders())
	}

	for i, text := range []string{"h", "he", "hel"} {
		if err := in.Dispatch(ctx, func() { c.setValue.Set(text) }); err != nil {
			t.Fatal(err)
		}
		if c.count != i+1 {
			t.Errorf("count after %q = %d, want %d", text, c.count, i+1)
		}
	}
}

func TestCountInputChangesWithoutDependenciesLoops(t *testing.T) {
	h := newTestHost(WithPassBudget(10))
	defer h.Close()

	c := &countInputChanges{inputs: func(string) deps.List { return deps.Every() }}
	h.Mount("counter", c.render)

	err := h.Flush(context.Background())
	if !errors.Is(err, ErrPassBudgetExceeded) {
		t.Fatalf("err = %v, want ErrPassBudgetExceeded", err)
	}
	// Pass n renders count n-2.
	if c.count != 8 {
		t.Errorf("count = %d, want 8 after 10 passes", c.count)
	}
}

type secretState struct {
	value        string
	countSecrets int
}

func secretComponent(dep func(s *secretState) deps.Value, out **secretState) Component {
	return func(p *Pass) {
		secret, setSecret := UseState(p, &secretState{value: "secret"})
		UseEffect(p, func() effect.Cleanup {
			if secret.value == "secret" {
				setSecret.Update(func(s *secretState) *secretState {
					next := *s
					next.countSecrets++
					return &next
				})
			}
			return nil
		}, deps.On(dep(secret)))
		*out = secret
	}
}

func TestSecretObjectDependencyLoops(t *testing.T) {
	h := newTestHost(WithPassBudget(25))
	defer h.Close()

	var secret *secretState
	h.Mount("secrets", secretComponent(func(s *secretState) deps.Value {
		return deps.RefOf(s)
	}, &secret))

	err := h.Flush(context.Background())
	if !errors.Is(err, ErrPassBudgetExceeded) {
		t.Fatalf("err = %v, want ErrPassBudgetExceeded", err)
	}
	if secret.countSecrets < 20 {
		t.Errorf("countSecrets = %d, expected the loop to keep counting", secret.countSecrets)
	}
}

func TestSecretValueDependencySettles(t *testing.T) {
	h := newTestHost()
	defer h.Close()

	var secret *secretState
	in := h.Mount("secrets", secretComponent(func(s *secretState) deps.Value {
		return deps.Track(s.value)
	}, &secret))

	if err := h.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if secret.countSecrets != 1 {
		t.Errorf("countSecrets = %d, want 1", secret.countSecrets)
	}
	if in.Renders() != 2 {
		t.Errorf("renders = %d, want 2", in.Renders())
	}
}

func TestStateIsSnapshotWithinEvent(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var n int
	var setN Setter[int]
	in := h.Mount("score", func(p *Pass) {
		n, setN = UseState(p, 0)
	})
	_ = h.Flush(ctx)

	err := in.Dispatch(ctx, func() {
		setN.Set(n + 1)
		setN.Set(n + 1)
		setN.Set(n + 1)
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("n after three Set(n+1) = %d, want 1", n)
	}

	_ = in.Dispatch(ctx, func() {
		for i := 0; i < 3; i++ {
			setN.Update(func(v int) int { return v + 1 })
		}
	})
	if n != 4 {
		t.Errorf("n after three updater calls = %d, want 4", n)
	}
	if in.Renders() != 3 {
		t.Errorf("renders = %d, want one per dispatch plus mount (3)", in.Renders())
	}
}

func TestBatchedUpdatesAcrossInstancesRenderOnce(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var setOn, setParent Setter[bool]
	toggle := h.Mount("toggle", func(p *Pass) {
		_, setOn = UseState(p, false)
	})
	parent := h.Mount("parent", func(p *Pass) {
		_, setParent = UseState(p, false)
	})
	_ = h.Flush(ctx)

	_ = toggle.Dispatch(ctx, func() {
		setOn.Set(true)
		setParent.Set(true)
	})
	if toggle.Renders() != 2 || parent.Renders() != 2 {
		t.Errorf("renders toggle=%d parent=%d, want 2 each", toggle.Renders(), parent.Renders())
	}
}

func TestSameValueUpdateDoesNotRender(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var set Setter[string]
	in := h.Mount("same", func(p *Pass) {
		_, set = UseState(p, "a")
	})
	_ = h.Flush(ctx)

	_ = in.Dispatch(ctx, func() { set.Set("a") })
	if in.Renders() != 1 {
		t.Errorf("renders = %d, want 1", in.Renders())
	}

	_ = in.Dispatch(ctx, func() {
		set.Set("b")
		set.Set("a")
	})
	if in.Renders() != 1 {
		t.Errorf("renders after b then a = %d, want 1", in.Renders())
	}
}

func TestRefDoesNotRender(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var ref *Ref[int]
	in := h.Mount("ref", func(p *Pass) {
		ref = UseRef(p, 0)
	})
	_ = h.Flush(ctx)
	first := ref

	_ = in.Dispatch(ctx, func() { ref.Current++ })
	if in.Renders() != 1 {
		t.Errorf("renders = %d, want 1", in.Renders())
	}
	if ref.Current != 1 || ref != first {
		t.Error("ref box should keep identity and value")
	}
}

func TestStableSetterAndRefAsDependencies(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(WithStrictConstants(true))
	defer h.Close()

	setups := 0
	var set Setter[int]
	in := h.Mount("stable", func(p *Pass) {
		_, s := UseState(p, 0)
		set = s
		ref := UseRef(p, "log")
		UseEffect(p, func() effect.Cleanup {
			setups++
			return nil
		}, deps.On(s.Dep(), ref.Dep()))
	})
	if err := h.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if err := in.Dispatch(ctx, func() { set.Set(i) }); err != nil {
			t.Fatal(err)
		}
	}
	if setups != 1 {
		t.Errorf("setups = %d, want 1", setups)
	}
}

func TestRemountResetsStateAndEffects(t *testing.T) {
	ctx := context.Background()
	rec := effect.NewRecorder()
	h := newTestHost(WithObserver(rec))
	defer h.Close()

	var n int
	var setN Setter[int]
	form := func(p *Pass) {
		n, setN = UseState(p, 0)
		UseNamedEffect(p, "form", func() effect.Cleanup {
			return func() {}
		}, deps.Once())
	}

	in := h.Mount("form-1", form)
	_ = h.Flush(ctx)
	_ = in.Dispatch(ctx, func() { setN.Set(5) })

	h.Remount("form-1", form)
	if err := h.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("state after remount = %d, want 0", n)
	}
	if in.Mounted() {
		t.Error("old instance still mounted")
	}

	want := []string{"setup form#1", "teardown form#1", "setup form#1"}
	if diff := cmp.Diff(want, rec.Log()); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestMountExistingKeyKeepsState(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var got int
	var set Setter[int]
	first := h.Mount("k", func(p *Pass) {
		got, set = UseState(p, 1)
	})
	_ = h.Flush(ctx)
	_ = first.Dispatch(ctx, func() { set.Set(7) })

	second := h.Mount("k", func(p *Pass) {
		got, set = UseState(p, 1)
	})
	if first != second {
		t.Fatal("mounting an existing key should return the same instance")
	}
	_ = second.Dispatch(ctx, func() { set.Update(func(v int) int { return v * 2 }) })
	if got != 14 {
		t.Errorf("state = %d, want 14", got)
	}
}

func TestCloseDisposesInReverseOrder(t *testing.T) {
	var log []string
	h := newTestHost()

	mk := func(name string) Component {
		return func(p *Pass) {
			UseNamedEffect(p, name+"-a", func() effect.Cleanup {
				return func() { log = append(log, name+"-a") }
			}, deps.Once())
			UseNamedEffect(p, name+"-b", func() effect.Cleanup {
				return func() { log = append(log, name+"-b") }
			}, deps.Once())
		}
	}
	h.Mount("first", mk("first"))
	h.Mount("second", mk("second"))
	_ = h.Flush(context.Background())

	h.Close()
	want := []string{"second-b", "second-a", "first-b", "first-a"}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Errorf("teardown order mismatch (-want +got):\n%s", diff)
	}
	if len(h.Keys()) != 0 {
		t.Errorf("keys after close = %v", h.Keys())
	}
	if err := h.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush after Close = %v, want ErrClosed", err)
	}
}

func TestHookOrderChange(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var flag bool
	var setFlag Setter[bool]
	in := h.Mount("conditional", func(p *Pass) {
		flag, setFlag = UseState(p, false)
		if flag {
			UseRef(p, 0)
		}
	})
	_ = h.Flush(ctx)

	err := in.Dispatch(ctx, func() { setFlag.Set(true) })
	if !errors.Is(err, ErrHookOrder) {
		t.Errorf("err = %v, want ErrHookOrder", err)
	}
}

func TestHookKindChange(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var flag bool
	var setFlag Setter[bool]
	in := h.Mount("kind", func(p *Pass) {
		flag, setFlag = UseState(p, false)
		if flag {
			UseRef(p, 0)
		} else {
			UseMemo(p, func() int { return 1 }, deps.Once())
		}
	})
	_ = h.Flush(ctx)

	err := in.Dispatch(ctx, func() { setFlag.Set(true) })
	if !errors.Is(err, ErrHookOrder) {
		t.Errorf("err = %v, want ErrHookOrder", err)
	}
}

func TestArityErrorStopsFlush(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var n int
	var setN Setter[int]
	in := h.Mount("arity", func(p *Pass) {
		n, setN = UseState(p, 1)
		values := make([]deps.Value, n)
		for i := range values {
			values[i] = deps.Track(i)
		}
		UseEffect(p, func() effect.Cleanup { return nil }, deps.On(values...))
	})
	_ = h.Flush(ctx)

	err := in.Dispatch(ctx, func() { setN.Set(2) })
	if !errors.Is(err, deps.ErrDependencyArity) {
		t.Errorf("err = %v, want arity error", err)
	}
}

func TestFailedPassKeepsOtherUpdates(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var setN Setter[int]
	h.Mount("a", func(p *Pass) {
		var n int
		n, setN = UseState(p, 1)
		values := make([]deps.Value, n)
		for i := range values {
			values[i] = deps.Track(i)
		}
		UseEffect(p, func() effect.Cleanup { return nil }, deps.On(values...))
	})
	var seen, committed string
	var setB Setter[string]
	h.Mount("b", func(p *Pass) {
		var v string
		v, setB = UseState(p, "old")
		seen = v
		UseEffect(p, func() effect.Cleanup {
			committed = v
			return nil
		}, deps.On(deps.Track(v)))
	})
	if err := h.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	setN.Set(2)
	setB.Set("new")
	if err := h.Flush(ctx); !errors.Is(err, deps.ErrDependencyArity) {
		t.Fatalf("err = %v, want arity error", err)
	}
	if !h.Pending() {
		t.Fatal("update to b was dropped by the failed pass")
	}

	if err := h.Flush(ctx); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if seen != "new" || committed != "new" {
		t.Errorf("seen = %q, committed = %q, want new", seen, committed)
	}
	if h.Pending() {
		t.Error("host still pending after a clean flush")
	}
}

func TestEffectsCommitAfterWholePass(t *testing.T) {
	h := newTestHost()
	defer h.Close()

	var log []string
	for _, key := range []string{"a", "b"} {
		key := key
		h.Mount(key, func(p *Pass) {
			log = append(log, "render "+key)
			UseEffect(p, func() effect.Cleanup {
				log = append(log, "effect "+key)
				return nil
			}, deps.Once())
		})
	}
	if err := h.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"render a", "render b", "effect a", "effect b"}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Errorf("call log mismatch (-want +got):\n%s", diff)
	}
}

func TestUseMemo(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	computes := 0
	var query, other string
	var setQuery, setOther Setter[string]
	var filtered []string
	items := []string{"apple", "banana", "avocado"}

	in := h.Mount("list", func(p *Pass) {
		query, setQuery = UseState(p, "a")
		other, setOther = UseState(p, "")
		filtered = UseMemo(p, func() []string {
			computes++
			var out []string
			for _, it := range items {
				if len(query) > 0 && it[0] == query[0] {
					out = append(out, it)
				}
			}
			return out
		}, deps.On(deps.Track(query)))
	})
	_ = h.Flush(ctx)

	_ = in.Dispatch(ctx, func() { setOther.Set("x") })
	if computes != 1 {
		t.Errorf("computes after unrelated update = %d, want 1", computes)
	}
	_ = in.Dispatch(ctx, func() { setQuery.Set("b") })
	if computes != 2 {
		t.Errorf("computes after query change = %d, want 2", computes)
	}
	if diff := cmp.Diff([]string{"banana"}, filtered); diff != "" {
		t.Errorf("filtered mismatch (-want +got):\n%s", diff)
	}
	_ = other
}

func TestFlushHonoursContext(t *testing.T) {
	h := newTestHost()
	defer h.Close()
	h.Mount("x", func(p *Pass) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Flush(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if !h.Pending() {
		t.Error("instance should still be pending")
	}
}

func TestFlushFromEffectIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var inner error
	h.Mount("reentrant", func(p *Pass) {
		UseEffect(p, func() effect.Cleanup {
			inner = h.Flush(ctx)
			return nil
		}, deps.Once())
	})
	if err := h.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(inner, ErrFlushInProgress) {
		t.Errorf("inner err = %v, want ErrFlushInProgress", inner)
	}
}

func TestDispatchAfterUnmount(t *testing.T) {
	h := newTestHost()
	in := h.Mount("gone", func(p *Pass) {})
	in.Unmount()

	if err := in.Dispatch(context.Background(), func() {}); !errors.Is(err, ErrUnmounted) {
		t.Errorf("err = %v, want ErrUnmounted", err)
	}
}

func TestLatestSetupClosureRuns(t *testing.T) {
	ctx := context.Background()
	h := newTestHost()
	defer h.Close()

	var seen []string
	var setRoom Setter[string]
	in := h.Mount("chat", func(p *Pass) {
		room, set := UseState(p, "general")
		setRoom = set
		UseEffect(p, func() effect.Cleanup {
			seen = append(seen, "connect "+room)
			return func() { seen = append(seen, "disconnect "+room) }
		}, deps.On(deps.Track(room)))
	})
	_ = h.Flush(ctx)
	_ = in.Dispatch(ctx, func() { setRoom.Set("travel") })
	in.Unmount()

	want := []string{"connect general", "disconnect general", "connect travel", "disconnect travel"}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
