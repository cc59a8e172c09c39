// Package effect implements the orchestration protocol that keeps one
// synchronization session per effect.
//
// A host creates an Effect with a setup function, activates it with the
// inputs read on the first pass, and re-evaluates it on every later pass:
//
//	e := effect.New(func() effect.Cleanup {
//	    conn := connect(serverURL, roomID)
//	    return conn.Close
//	}, effect.WithName("chat"))
//
//	_ = e.Activate(deps.On(deps.Const(serverURL), deps.Track(roomID)))
//	...
//	changed, err := e.Reevaluate(deps.On(deps.Const(serverURL), deps.Track(nextRoom)))
//	...
//	e.Dispose()
//
// Teardown of session N always returns before setup of session N+1 starts.
// Errors from the dependency rule leave the running session untouched;
// panics from setup or teardown propagate to the caller.
package effect
