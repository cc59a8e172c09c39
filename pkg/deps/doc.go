// Package deps defines tracked effect inputs and the rule that decides when an
// effect must re-synchronize.
//
// Every value an effect reads during setup is declared explicitly, once per
// evaluation pass, as a Value. Values carry their own identity capability, so
// comparison never needs reflection:
//
//	deps.On(
//	    deps.Const(serverURL),   // stable: never expected to change
//	    deps.Track(roomID),      // reactive primitive: compared by value
//	    deps.RefOf(options),     // reactive composite: compared by pointer
//	)
//
// # Shapes
//
// A List has one of three shapes:
//
//	deps.Every()   // no list: re-synchronize on every pass
//	deps.Once()    // empty list: set up once, tear down on dispose
//	deps.On(v...)  // re-synchronize when any position changes
//
// # Identity
//
// Composite inputs are compared by pointer identity only. A struct rebuilt with
// identical fields on every pass is a different input on every pass:
//
//	deps.RefOf(&Secret{Value: v})   // always changed
//	deps.Track(secret.Value)        // changed only when Value changes
package deps
