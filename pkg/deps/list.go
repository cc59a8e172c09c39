package deps

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDependencyArity matches every *ArityError under errors.Is.
var ErrDependencyArity = errors.New("deps: dependency list changed arity between passes")

// ArityError reports that the dependency list of one effect changed length
// or shape between two passes. It is a programming error and is never retried.
type ArityError struct {
	PrevLen   int
	NextLen   int
	PrevShape Shape
	NextShape Shape
}

func (e *ArityError) Error() string {
	if e.PrevShape != e.NextShape {
		return fmt.Sprintf("deps: dependency list changed from %s to %s between passes", e.PrevShape, e.NextShape)
	}
	return fmt.Sprintf("deps: dependency list changed length from %d to %d between passes", e.PrevLen, e.NextLen)
}

// Is makes errors.Is(err, ErrDependencyArity) succeed.
func (e *ArityError) Is(target error) bool {
	return target == ErrDependencyArity
}

// ShouldResynchronize reports whether an effect whose inputs were prev on the
// previous pass must tear down and set up again given next. It returns true
// iff some position holds non-identical values. The lists must have equal
// length; otherwise an *ArityError is returned.
func ShouldResynchronize(prev, next []Value) (bool, error) {
	if len(prev) != len(next) {
		return false, &ArityError{
			PrevLen:   len(prev),
			NextLen:   len(next),
			PrevShape: ShapeOn,
			NextShape: ShapeOn,
		}
	}
	for i := range prev {
		if !same(prev[i], next[i]) {
			return true, nil
		}
	}
	return false, nil
}

// Changed returns the positions at which prev and next differ.
// Lists of different lengths yield an *ArityError.
func Changed(prev, next []Value) ([]int, error) {
	if len(prev) != len(next) {
		return nil, &ArityError{PrevLen: len(prev), NextLen: len(next), PrevShape: ShapeOn, NextShape: ShapeOn}
	}
	var out []int
	for i := range prev {
		if !same(prev[i], next[i]) {
			out = append(out, i)
		}
	}
	return out, nil
}

func same(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Same(b)
}

// Shape is the form of a dependency declaration.
type Shape uint8

const (
	// ShapeEvery means no list was given: re-synchronize on every pass.
	ShapeEvery Shape = iota
	// ShapeOnce is the empty list: never re-synchronize.
	ShapeOnce
	// ShapeOn is a non-empty list compared position by position.
	ShapeOn
)

func (s Shape) String() string {
	switch s {
	case ShapeEvery:
		return "every-pass"
	case ShapeOnce:
		return "empty list"
	case ShapeOn:
		return "list"
	default:
		return "unknown"
	}
}

// List is the dependency declaration of one effect for one pass.
// The zero List is Every.
type List struct {
	shape  Shape
	values []Value
}

// Every declares no dependency list: the effect re-synchronizes on every pass.
func Every() List {
	return List{shape: ShapeEvery}
}

// Once declares an empty dependency list: the effect is set up on activation
// and torn down on disposal only.
func Once() List {
	return List{shape: ShapeOnce}
}

// On declares the values read by setup. On with no values is Once.
func On(values ...Value) List {
	if len(values) == 0 {
		return Once()
	}
	return List{shape: ShapeOn, values: append([]Value(nil), values...)}
}

// Shape returns the declaration form.
func (l List) Shape() Shape {
	return l.shape
}

// Values returns a copy of the declared values.
func (l List) Values() []Value {
	return append([]Value(nil), l.values...)
}

// Len returns the number of declared values.
func (l List) Len() int {
	return len(l.values)
}

// Resynchronize applies the rule to successive declarations of one effect.
// A change of shape is an *ArityError.
func (l List) Resynchronize(next List) (bool, error) {
	if l.shape != next.shape {
		return false, &ArityError{
			PrevLen:   len(l.values),
			NextLen:   len(next.values),
			PrevShape: l.shape,
			NextShape: next.shape,
		}
	}
	switch l.shape {
	case ShapeEvery:
		return true, nil
	case ShapeOnce:
		return false, nil
	default:
		return ShouldResynchronize(l.values, next.values)
	}
}

// Lint returns the positions of values classified as stable. Listing them is
// harmless; they never cause a re-synchronization unless they are misclassified.
func Lint(l List) []int {
	var out []int
	for i, v := range l.values {
		if v != nil && v.Stable() {
			out = append(out, i)
		}
	}
	return out
}

func (l List) String() string {
	switch l.shape {
	case ShapeEvery:
		return "<every>"
	case ShapeOnce:
		return "[]"
	}
	parts := make([]string, len(l.values))
	for i, v := range l.values {
		if v == nil {
			parts[i] = "nil"
			continue
		}
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// UnstableConstants returns the positions where a value classified as stable
// on the previous pass is not identical on the next one. Lists of different
// shape or length report nothing; Resynchronize reports those.
func UnstableConstants(prev, next List) []int {
	if prev.shape != ShapeOn || prev.shape != next.shape || len(prev.values) != len(next.values) {
		return nil
	}
	var out []int
	for i, v := range prev.values {
		if v != nil && v.Stable() && !same(v, next.values[i]) {
			out = append(out, i)
		}
	}
	return out
}
