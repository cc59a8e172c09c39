// Package host drives effects the way a rendering runtime does.
//
// A Host owns keyed component instances. Each pass renders every dirty
// instance first, then re-evaluates their effects in mount and declaration
// order. State
// setters queue updates; the value a component sees is a snapshot that only
// changes on the next pass, and all updates queued before a flush are applied
// together.
//
//	h := host.New(host.WithPassBudget(20))
//	h.Mount("counter", func(p *host.Pass) {
//	    value, _ := host.UseState(p, "")
//	    count, setCount := host.UseState(p, 0)
//	    host.UseEffect(p, func() effect.Cleanup {
//	        setCount.Set(count + 1)
//	        return nil
//	    }, deps.On(deps.Track(value)))
//	})
//	err := h.Flush(ctx)
//
// Hooks must be called in the same order on every pass. A flush that keeps
// producing passes past the budget stops with ErrPassBudgetExceeded. Updates
// a failed flush applied but never committed stay pending for the next one.
package host
