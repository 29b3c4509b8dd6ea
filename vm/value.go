package vm

import (
	"math"
)

// Value is the universal runtime datum: a type tag plus the payload for
// that tag. Code and data share this representation.
//
// Values are always handled by reference. A nil *Value is never a datum;
// it is the failure signal threaded through generated code and native
// functions. Apart from a symbol's binding cell, no payload field changes
// after construction.
type Value struct {
	typ Type

	bits uint64    // Integer (two's complement) or Double (IEEE-754 bits)
	str  string    // ByteString contents
	sym  *Symbol   // Symbol
	car  *Value    // Cons
	cdr  *Value    // Cons
	fn   *Function // Function
}

// Type is the tag of a Value.
type Type int32

const (
	TypeInteger Type = iota + 1
	TypeDouble
	TypeSymbol
	TypeByteString
	TypeCons
	TypeFunction
)

func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeDouble:
		return "double"
	case TypeSymbol:
		return "symbol"
	case TypeByteString:
		return "bytestring"
	case TypeCons:
		return "cons"
	case TypeFunction:
		return "function"
	default:
		return "<bad>"
	}
}

// Nil is the empty list: the only Cons whose car and cdr are both null, and
// the only false-like value. It is immutable and shared by every VM.
var Nil = &Value{typ: TypeCons}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Integer returns a fresh Integer value.
func Integer(n int64) *Value {
	return &Value{typ: TypeInteger, bits: uint64(n)}
}

// Double returns a fresh Double value.
func Double(f float64) *Value {
	return &Value{typ: TypeDouble, bits: math.Float64bits(f)}
}

// ByteString returns a fresh ByteString value holding s.
func ByteString(s string) *Value {
	return &Value{typ: TypeByteString, str: s}
}

// Cons returns a fresh pair. Both halves must be valid values; a null half
// would make the pair indistinguishable from Nil.
func Cons(car, cdr *Value) *Value {
	if car == nil || cdr == nil {
		panic("vm: cons of null reference")
	}
	return &Value{typ: TypeCons, car: car, cdr: cdr}
}

// List right-folds elems onto Nil.
func List(elems ...*Value) *Value {
	return ListStar(Nil, elems...)
}

// ListStar right-folds elems onto tail, producing an improper list when tail
// is not a list.
func ListStar(tail *Value, elems ...*Value) *Value {
	ret := tail
	for i := len(elems) - 1; i >= 0; i-- {
		ret = Cons(elems[i], ret)
	}
	return ret
}

// NewFunction wraps fn as a Function value.
func NewFunction(fn *Function) *Value {
	return &Value{typ: TypeFunction, fn: fn}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Type returns the tag of v.
func (v *Value) Type() Type { return v.typ }

// Int returns the payload of an Integer.
func (v *Value) Int() int64 { return int64(v.bits) }

// Float returns the payload of a Double.
func (v *Value) Float() float64 { return math.Float64frombits(v.bits) }

// Bytes returns the contents of a ByteString.
func (v *Value) Bytes() string { return v.str }

// Symbol returns the payload of a Symbol value.
func (v *Value) Symbol() *Symbol { return v.sym }

// Function returns the payload of a Function value.
func (v *Value) Function() *Function { return v.fn }

// Car returns the first half of a pair, or nil for Nil and non-pairs.
func (v *Value) Car() *Value {
	if v.typ != TypeCons {
		return nil
	}
	return v.car
}

// Cdr returns the second half of a pair, or nil for Nil and non-pairs.
func (v *Value) Cdr() *Value {
	if v.typ != TypeCons {
		return nil
	}
	return v.cdr
}

// IsNil reports whether v is the empty list.
func (v *Value) IsNil() bool {
	return v.typ == TypeCons && v.car == nil && v.cdr == nil
}

// IsPair reports whether v is a non-empty Cons.
func (v *Value) IsPair() bool {
	return v.typ == TypeCons && !v.IsNil()
}

// Truthy reports the truth value of v: false for Nil, true for everything
// else, including 0, 0.0 and "".
func (v *Value) Truthy() bool {
	return !v.IsNil()
}

// Slice collects the elements of a proper list. ok is false when v is not a
// list or ends in a non-nil atom.
func (v *Value) Slice() (elems []*Value, ok bool) {
	for cur := v; ; cur = cur.cdr {
		if cur.typ != TypeCons {
			return elems, false
		}
		if cur.IsNil() {
			return elems, true
		}
		elems = append(elems, cur.car)
	}
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Equal compares a and b strictly by tag: values of different tags are never
// equal. Symbols compare by identifier, ByteStrings by contents, Functions by
// identity and pairs recursively.
func Equal(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeInteger:
		return a.Int() == b.Int()
	case TypeDouble:
		return a.Float() == b.Float()
	case TypeByteString:
		return a.str == b.str
	case TypeSymbol:
		return a.sym.id == b.sym.id
	case TypeFunction:
		return a.fn == b.fn
	case TypeCons:
		for {
			if a.IsNil() || b.IsNil() {
				return a.IsNil() && b.IsNil()
			}
			if !Equal(a.car, b.car) {
				return false
			}
			a, b = a.cdr, b.cdr
			if a.typ != TypeCons || b.typ != TypeCons {
				return Equal(a, b)
			}
		}
	}
	return false
}
