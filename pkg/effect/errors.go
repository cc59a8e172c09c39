package effect

import (
	"errors"
	"fmt"
)

// ErrDisposed is returned when an effect is used after Dispose.
var ErrDisposed = errors.New("effect: disposed")

// ErrAlreadyActive is returned when Activate is called on an effect that
// already has a synchronization session.
var ErrAlreadyActive = errors.New("effect: already active")

// ErrNotActive is returned when Reevaluate is called before Activate.
var ErrNotActive = errors.New("effect: not active")

// ErrReentrant is returned when setup or teardown calls back into the same
// effect, or when two goroutines drive one effect at once. Sessions of one
// effect never overlap.
var ErrReentrant = errors.New("effect: re-entrant or concurrent call")

// ErrUnstableConstant matches every *UnstableConstantError under errors.Is.
var ErrUnstableConstant = errors.New("effect: stable input changed between passes")

// UnstableConstantError reports inputs declared stable whose value changed.
// It is only produced when strict constants are enabled.
type UnstableConstantError struct {
	Effect    string
	Positions []int
}

func (e *UnstableConstantError) Error() string {
	return fmt.Sprintf("effect %q: stable inputs at positions %v changed between passes", e.Effect, e.Positions)
}

// Is makes errors.Is(err, ErrUnstableConstant) succeed.
func (e *UnstableConstantError) Is(target error) bool {
	return target == ErrUnstableConstant
}
