package effect

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/resync/pkg/deps"
)

// callLog records setup and teardown calls in order.
type callLog []string

func (l *callLog) setup(name string) Setup {
	n := 0
	return func() Cleanup {
		n++
		session := fmt.Sprintf("%s%d", name, n)
		*l = append(*l, "setup "+session)
		return func() {
			*l = append(*l, "teardown "+session)
		}
	}
}

func TestActivateRunsSetupOnce(t *testing.T) {
	var log callLog
	e := New(log.setup("A"))

	if e.State() != StateIdle {
		t.Fatalf("state = %v, want idle", e.State())
	}
	if err := e.Activate(deps.On(deps.Track(1))); err != nil {
		t.Fatal(err)
	}
	if e.State() != StateActive {
		t.Errorf("state = %v, want active", e.State())
	}
	if diff := cmp.Diff([]string{"setup A1"}, []string(log)); diff != "" {
		t.Errorf("call log mismatch (-want +got):\n%s", diff)
	}
	if err := e.Activate(deps.On(deps.Track(1))); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second Activate err = %v, want ErrAlreadyActive", err)
	}
}

func TestReevaluateUnchangedKeepsSession(t *testing.T) {
	var log callLog
	e := New(log.setup("A"))
	_ = e.Activate(deps.On(deps.Track("dog-1")))
	first := e.Session()

	changed, err := e.Reevaluate(deps.On(deps.Track("dog-1")))
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("unchanged inputs should not re-synchronize")
	}
	if e.Session() != first {
		t.Error("session replaced on unchanged pass")
	}
	if len(log) != 1 {
		t.Errorf("call log = %v, want only the first setup", log)
	}
}

func TestTeardownBeforeNextSetup(t *testing.T) {
	var log callLog
	e := New(log.setup("S"))
	_ = e.Activate(deps.On(deps.Track("dog-1")))

	changed, err := e.Reevaluate(deps.On(deps.Track("dog-2")))
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("changed input should re-synchronize")
	}
	e.Dispose()

	want := []string{"setup S1", "teardown S1", "setup S2", "teardown S2"}
	if diff := cmp.Diff(want, []string(log)); diff != "" {
		t.Errorf("call log mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyListRunsOncePerLifetime(t *testing.T) {
	var log callLog
	e := New(log.setup("M"))
	_ = e.Activate(deps.Once())

	for i := 0; i < 10; i++ {
		changed, err := e.Reevaluate(deps.Once())
		if err != nil {
			t.Fatal(err)
		}
		if changed {
			t.Fatalf("pass %d: empty list re-synchronized", i)
		}
	}
	e.Dispose()

	want := []string{"setup M1", "teardown M1"}
	if diff := cmp.Diff(want, []string(log)); diff != "" {
		t.Errorf("call log mismatch (-want +got):\n%s", diff)
	}
}

func TestOmittedListRunsEveryPass(t *testing.T) {
	const passes = 6

	var log callLog
	e := New(log.setup("E"))
	_ = e.Activate(deps.Every())
	for i := 1; i < passes; i++ {
		if _, err := e.Reevaluate(deps.Every()); err != nil {
			t.Fatal(err)
		}
	}
	e.Dispose()

	setups, teardowns := 0, 0
	for _, entry := range log {
		switch entry[:5] {
		case "setup":
			setups++
		case "teard":
			teardowns++
		}
	}
	// passes-1 cycles between the first setup and the final teardown.
	if setups != passes || teardowns != passes {
		t.Errorf("setups=%d teardowns=%d, want %d each", setups, teardowns, passes)
	}
	if e.Sessions() != passes {
		t.Errorf("Sessions() = %d, want %d", e.Sessions(), passes)
	}
}

func TestFreshObjectResynchronizesEveryPass(t *testing.T) {
	type secret struct {
		value        string
		countSecrets int
	}

	var log callLog
	e := New(log.setup("secret"))
	_ = e.Activate(deps.On(deps.RefOf(&secret{value: "secret"})))

	for i := 0; i < 4; i++ {
		changed, err := e.Reevaluate(deps.On(deps.RefOf(&secret{value: "secret"})))
		if err != nil {
			t.Fatal(err)
		}
		if !changed {
			t.Fatalf("pass %d: fresh object should always re-synchronize", i)
		}
	}
	if e.Sessions() != 5 {
		t.Errorf("Sessions() = %d, want 5", e.Sessions())
	}
}

func TestArityErrorKeepsSession(t *testing.T) {
	var log callLog
	e := New(log.setup("A"), WithName("arity"))
	_ = e.Activate(deps.On(deps.Track(1)))
	before := e.Session()

	_, err := e.Reevaluate(deps.On(deps.Track(1), deps.Track(2)))
	if !errors.Is(err, deps.ErrDependencyArity) {
		t.Fatalf("err = %v, want arity error", err)
	}
	var ae *deps.ArityError
	if !errors.As(err, &ae) {
		t.Fatalf("errors.As(*ArityError) failed for %v", err)
	}
	if e.Session() != before || len(log) != 1 {
		t.Error("arity error must not run teardown or setup")
	}

	_, err = e.Reevaluate(deps.Every())
	if !errors.Is(err, deps.ErrDependencyArity) {
		t.Errorf("shape change err = %v, want arity error", err)
	}
}

func TestDisposeRunsTeardownExactlyOnce(t *testing.T) {
	teardowns := 0
	e := New(func() Cleanup {
		return func() { teardowns++ }
	})
	_ = e.Activate(deps.Once())

	e.Dispose()
	e.Dispose()

	if teardowns != 1 {
		t.Errorf("teardowns = %d, want 1", teardowns)
	}
	if e.State() != StateDisposed {
		t.Errorf("state = %v, want disposed", e.State())
	}
	if _, err := e.Reevaluate(deps.Once()); !errors.Is(err, ErrDisposed) {
		t.Errorf("Reevaluate after dispose err = %v, want ErrDisposed", err)
	}
	if err := e.Activate(deps.Once()); !errors.Is(err, ErrDisposed) {
		t.Errorf("Activate after dispose err = %v, want ErrDisposed", err)
	}
}

func TestDisposeBeforeActivate(t *testing.T) {
	ran := false
	e := New(func() Cleanup {
		ran = true
		return nil
	})
	e.Dispose()

	if err := e.Activate(deps.Once()); !errors.Is(err, ErrDisposed) {
		t.Errorf("err = %v, want ErrDisposed", err)
	}
	if ran {
		t.Error("setup ran after dispose")
	}
}

func TestReevaluateBeforeActivate(t *testing.T) {
	e := New(func() Cleanup { return nil })
	if _, err := e.Reevaluate(deps.Once()); !errors.Is(err, ErrNotActive) {
		t.Errorf("err = %v, want ErrNotActive", err)
	}
}

func TestNilTeardownIsNoop(t *testing.T) {
	setups := 0
	e := New(func() Cleanup {
		setups++
		return nil
	})
	_ = e.Activate(deps.Every())
	_, _ = e.Reevaluate(deps.Every())
	e.Dispose()

	if setups != 2 {
		t.Errorf("setups = %d, want 2", setups)
	}
}

func TestReentrantCallFails(t *testing.T) {
	var e *Effect
	var inner error
	e = New(func() Cleanup {
		_, inner = e.Reevaluate(deps.Every())
		return nil
	})
	_ = e.Activate(deps.Every())

	if !errors.Is(inner, ErrReentrant) {
		t.Errorf("re-entrant Reevaluate err = %v, want ErrReentrant", inner)
	}
}

func TestDisposeFromSetupIsDeferred(t *testing.T) {
	var log callLog
	var e *Effect
	setup := log.setup("D")
	e = New(func() Cleanup {
		td := setup()
		e.Dispose()
		return td
	})
	_ = e.Activate(deps.Once())

	want := []string{"setup D1", "teardown D1"}
	if diff := cmp.Diff(want, []string(log)); diff != "" {
		t.Errorf("call log mismatch (-want +got):\n%s", diff)
	}
	if e.State() != StateDisposed {
		t.Errorf("state = %v, want disposed", e.State())
	}
}

func TestDisposeFromTeardownSkipsNextSetup(t *testing.T) {
	var log callLog
	var e *Effect
	n := 0
	e = New(func() Cleanup {
		n++
		session := fmt.Sprintf("A%d", n)
		log = append(log, "setup "+session)
		return func() {
			log = append(log, "teardown "+session)
			e.Dispose()
		}
	})
	if err := e.Activate(deps.On(deps.Track(1))); err != nil {
		t.Fatal(err)
	}
	ran, err := e.Reevaluate(deps.On(deps.Track(2)))
	if err != nil || !ran {
		t.Fatalf("Reevaluate = %v, %v; want true, nil", ran, err)
	}

	want := []string{"setup A1", "teardown A1"}
	if diff := cmp.Diff(want, []string(log)); diff != "" {
		t.Errorf("call log mismatch (-want +got):\n%s", diff)
	}
	if e.State() != StateDisposed {
		t.Errorf("state = %v, want disposed", e.State())
	}
	if e.Sessions() != 1 {
		t.Errorf("sessions = %d, want 1", e.Sessions())
	}
}

func TestDisposeWhileBusyFinishesOnRelease(t *testing.T) {
	var log callLog
	e := New(log.setup("R"))
	if err := e.Activate(deps.Once()); err != nil {
		t.Fatal(err)
	}

	// A call still holding busy after its own disposal check.
	e.busy.Store(true)
	e.Dispose()
	if e.State() != StateActive {
		t.Fatalf("state = %v before release, want active", e.State())
	}
	e.release()

	want := []string{"setup R1", "teardown R1"}
	if diff := cmp.Diff(want, []string(log)); diff != "" {
		t.Errorf("call log mismatch (-want +got):\n%s", diff)
	}
	if e.State() != StateDisposed {
		t.Errorf("state = %v, want disposed", e.State())
	}
}

func TestConcurrentDisposeAlwaysTearsDown(t *testing.T) {
	for i := 0; i < 200; i++ {
		var setups, teardowns atomic.Int32
		e := New(func() Cleanup {
			setups.Add(1)
			return func() { teardowns.Add(1) }
		})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = e.Activate(deps.Every())
		}()
		go func() {
			defer wg.Done()
			e.Dispose()
		}()
		wg.Wait()

		if e.State() != StateDisposed {
			t.Fatalf("run %d: state = %v, want disposed", i, e.State())
		}
		if setups.Load() != teardowns.Load() {
			t.Fatalf("run %d: %d setups, %d teardowns", i, setups.Load(), teardowns.Load())
		}
	}
}

func TestSetupPanicPropagates(t *testing.T) {
	rec := NewRecorder()
	e := New(func() Cleanup {
		panic("boom")
	}, WithName("panicky"), WithObserver(rec))

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Errorf("recovered %v, want boom", r)
			}
		}()
		_ = e.Activate(deps.Once())
	}()

	if e.Session() != nil {
		t.Error("panicked setup left an active session")
	}
	if e.State() != StateIdle {
		t.Errorf("state = %v, want idle", e.State())
	}
	events := rec.Events()
	if len(events) != 2 || events[1].Reason != EndAborted.String() {
		t.Errorf("events = %v, want setup then aborted teardown", events)
	}
}

func TestStrictConstants(t *testing.T) {
	e := New(func() Cleanup { return nil }, WithName("chat"), WithStrictConstants(true))
	_ = e.Activate(deps.On(deps.Const("https://localhost:1234"), deps.Track("general")))

	changed, err := e.Reevaluate(deps.On(deps.Const("https://localhost:1234"), deps.Track("travel")))
	if err != nil || !changed {
		t.Fatalf("reactive change: changed=%v err=%v", changed, err)
	}

	_, err = e.Reevaluate(deps.On(deps.Const("https://localhost:9999"), deps.Track("travel")))
	var uce *UnstableConstantError
	if !errors.As(err, &uce) {
		t.Fatalf("err = %v, want *UnstableConstantError", err)
	}
	if uce.Effect != "chat" || len(uce.Positions) != 1 || uce.Positions[0] != 0 {
		t.Errorf("unexpected error detail: %+v", uce)
	}
	if !errors.Is(err, ErrUnstableConstant) {
		t.Error("errors.Is(err, ErrUnstableConstant) = false")
	}
}

func TestLenientConstantsCompareLikeValues(t *testing.T) {
	e := New(func() Cleanup { return nil })
	_ = e.Activate(deps.On(deps.Const(1)))

	changed, err := e.Reevaluate(deps.On(deps.Const(2)))
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("a changed constant re-synchronizes when strict mode is off")
	}
}

func TestRecorderLog(t *testing.T) {
	rec := NewRecorder()
	e := New(func() Cleanup { return func() {} }, WithName("room"), WithObserver(rec))

	_ = e.Activate(deps.On(deps.Track("general")))
	_, _ = e.Reevaluate(deps.On(deps.Track("general")))
	_, _ = e.Reevaluate(deps.On(deps.Track("travel")))
	e.Dispose()

	want := []string{"setup room#1", "teardown room#1", "setup room#2", "teardown room#2"}
	if diff := cmp.Diff(want, rec.Log()); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
	if got := rec.Count("room", EventSkip); got != 1 {
		t.Errorf("skips = %d, want 1", got)
	}
	events := rec.Events()
	if events[0].Session != events[2].Session {
		t.Error("setup and teardown of one session should share an ID")
	}
	if events[0].Session == events[3].Session {
		t.Error("sessions should have distinct IDs")
	}
}

func TestObserversFanOut(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	e := New(func() Cleanup { return nil }, WithObserver(Observers(a, nil, b)))
	_ = e.Activate(deps.Once())
	e.Dispose()

	if len(a.Events()) != 2 || len(b.Events()) != 2 {
		t.Errorf("events a=%d b=%d, want 2 each", len(a.Events()), len(b.Events()))
	}
}

func TestDefaultName(t *testing.T) {
	e := New(func() Cleanup { return nil })
	if e.Name() != fmt.Sprintf("effect-%d", e.ID()) {
		t.Errorf("Name() = %q", e.Name())
	}
}
