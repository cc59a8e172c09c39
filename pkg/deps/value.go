package deps

import (
	"fmt"
	"math"
)

// Value is a tracked effect input.
//
// Same reports whether other is identical to the receiver under strict
// identity: value equality for primitives, pointer identity for composites.
// Values of different concrete types are never identical.
type Value interface {
	Same(other Value) bool

	// Stable reports whether the value is classified as never changing
	// between passes.
	Stable() bool

	String() string
}

// Primitive is the set of types compared by value.
type Primitive interface {
	~bool | ~string |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64 |
		~complex64 | ~complex128
}

// Tracked is a reactive primitive input.
type Tracked[T Primitive] struct {
	V T
}

// Track wraps a primitive read during setup.
func Track[T Primitive](v T) Tracked[T] {
	return Tracked[T]{V: v}
}

// Same implements Value.
func (t Tracked[T]) Same(other Value) bool {
	o, ok := other.(Tracked[T])
	if !ok {
		return false
	}
	return samePrimitive(t.V, o.V)
}

// Stable implements Value.
func (t Tracked[T]) Stable() bool { return false }

func (t Tracked[T]) String() string {
	return fmt.Sprintf("%v", t.V)
}

// Ref is a reactive composite input compared by pointer identity.
// A nil Ref is identical only to another nil Ref of the same type.
type Ref[T any] struct {
	P *T
}

// RefOf wraps a pointer read during setup.
func RefOf[T any](p *T) Ref[T] {
	return Ref[T]{P: p}
}

// Same implements Value.
func (r Ref[T]) Same(other Value) bool {
	o, ok := other.(Ref[T])
	if !ok {
		return false
	}
	return r.P == o.P
}

// Stable implements Value.
func (r Ref[T]) Stable() bool { return false }

func (r Ref[T]) String() string {
	if r.P == nil {
		return "ref(nil)"
	}
	return fmt.Sprintf("ref(%p)", r.P)
}

// Constant is a stable input: a package-level constant, a state setter or a
// ref box. It still occupies a position in the list so that lists keep their
// arity when a caller lists it anyway.
type Constant[T comparable] struct {
	V T
}

// Const wraps a value that is not expected to change between passes.
func Const[T comparable](v T) Constant[T] {
	return Constant[T]{V: v}
}

// Same implements Value.
func (c Constant[T]) Same(other Value) bool {
	o, ok := other.(Constant[T])
	if !ok {
		return false
	}
	if c.V == o.V {
		return true
	}
	// NaN constants are still the same constant.
	return isNaN(c.V) && isNaN(o.V)
}

// Stable implements Value.
func (c Constant[T]) Stable() bool { return true }

func (c Constant[T]) String() string {
	return fmt.Sprintf("const(%v)", c.V)
}

// samePrimitive compares with same-value semantics: NaN is identical to NaN,
// and for float32 and float64 positive zero is not identical to negative zero.
// Named float types compare their zeros as equal.
func samePrimitive[T Primitive](a, b T) bool {
	switch x := any(a).(type) {
	case float64:
		return sameFloat(x, any(b).(float64))
	case float32:
		return sameFloat(float64(x), float64(any(b).(float32)))
	}
	if a == b {
		return true
	}
	return isNaN(a) && isNaN(b)
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if a == 0 && b == 0 {
		return math.Signbit(a) == math.Signbit(b)
	}
	return a == b
}

// isNaN reports whether v is unequal to itself, which holds only for NaN
// (including NaN components of complex values and named float types).
func isNaN[T comparable](v T) bool {
	return v != v
}
