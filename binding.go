package hoare

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/hoare/ir"
)

// Binding represents a symbolic value bound to a program variable.
// This can be an Expr, an aggregate of bindings, a reference or unit.
type Binding interface {
	binding()
	String() string
}

func (*BinaryExpr) binding()     {}
func (*ConstantExpr) binding()   {}
func (*IteExpr) binding()        {}
func (*NotExpr) binding()        {}
func (*QuantifierExpr) binding() {}
func (*SymbolExpr) binding()     {}
func (Tuple) binding()           {}
func (Array) binding()           {}
func (Reference) binding()       {}
func (Unit) binding()            {}

// Tuple represents a fixed group of heterogeneous bindings.
type Tuple []Binding

// String returns the string representation of the tuple.
func (t Tuple) String() string { return "(" + joinBindings(t) + ")" }

// Array represents a fixed-length vector of bindings of the same type.
type Array []Binding

// String returns the string representation of the array.
func (a Array) String() string { return "[" + joinBindings(a) + "]" }

// Reference points to another variable in the same state by name.
type Reference struct {
	Name    string
	Mutable bool
}

// String returns the string representation of the reference.
func (r Reference) String() string {
	if r.Mutable {
		return "&mut " + r.Name
	}
	return "&" + r.Name
}

// Unit is the value of the unit type.
type Unit struct{}

// String returns "()".
func (Unit) String() string { return "()" }

func joinBindings(a []Binding) string {
	s := make([]string, len(a))
	for i, b := range a {
		s[i] = b.String()
	}
	return strings.Join(s, ", ")
}

// Select returns the element of elems at index. A symbolic index produces an
// if-then-else chain over every element. The caller is responsible for
// proving the index is in bounds.
func Select(elems []Binding, index Expr) (Binding, error) {
	if len(elems) == 0 {
		return nil, fmt.Errorf("index into empty aggregate: %w", ErrTypeMismatch)
	}

	if index, ok := index.(*ConstantExpr); ok {
		if i := int64(index.Int32()); i >= 0 && i < int64(len(elems)) {
			return elems[i], nil
		}
		// Out of range. The bounds obligation fails so any element will do.
		return elems[len(elems)-1], nil
	}

	result := elems[len(elems)-1]
	for i := len(elems) - 2; i >= 0; i-- {
		b, err := IteBinding(NewBinaryExpr(EQ, index, NewConstantExpr32(int32(i))), elems[i], result)
		if err != nil {
			return nil, err
		}
		result = b
	}
	return result, nil
}

// Store returns a copy of elems with the element at index replaced by value.
// A symbolic index guards every element by an equality test on the index.
func Store(elems []Binding, index Expr, value Binding) ([]Binding, error) {
	other := make([]Binding, len(elems))
	copy(other, elems)

	if index, ok := index.(*ConstantExpr); ok {
		if i := int64(index.Int32()); i >= 0 && i < int64(len(elems)) {
			other[i] = value
		}
		return other, nil
	}

	for i := range other {
		b, err := IteBinding(NewBinaryExpr(EQ, index, NewConstantExpr32(int32(i))), value, other[i])
		if err != nil {
			return nil, err
		}
		other[i] = b
	}
	return other, nil
}

// IteBinding returns a binding equal to a if cond holds and b otherwise.
// Aggregates are merged element-wise. A nil binding is uninitialized and
// takes the other side's value.
func IteBinding(cond Expr, a, b Binding) (Binding, error) {
	if a == nil {
		return b, nil
	} else if b == nil {
		return a, nil
	}

	switch a := a.(type) {
	case Expr:
		b, ok := b.(Expr)
		if !ok || ExprWidth(a) != ExprWidth(b) {
			return nil, fmt.Errorf("merge %s with %s: %w", a, b, ErrTypeMismatch)
		}
		return NewIteExpr(cond, a, b), nil

	case Tuple:
		b, ok := b.(Tuple)
		if !ok || len(a) != len(b) {
			return nil, fmt.Errorf("merge %s with %s: %w", a, b, ErrTypeMismatch)
		}
		elems, err := iteElems(cond, a, b)
		return Tuple(elems), err

	case Array:
		b, ok := b.(Array)
		if !ok || len(a) != len(b) {
			return nil, fmt.Errorf("merge %s with %s: %w", a, b, ErrTypeMismatch)
		}
		elems, err := iteElems(cond, a, b)
		return Array(elems), err

	case Reference:
		if b, ok := b.(Reference); !ok || a.Name != b.Name {
			return nil, fmt.Errorf("merge references %s and %s: %w", a, b, ErrTypeMismatch)
		}
		return a, nil

	case Unit:
		return a, nil

	default:
		panic("unreachable")
	}
}

func iteElems(cond Expr, a, b []Binding) ([]Binding, error) {
	elems := make([]Binding, len(a))
	for i := range a {
		elem, err := IteBinding(cond, a[i], b[i])
		if err != nil {
			return nil, err
		}
		elems[i] = elem
	}
	return elems, nil
}

// EqualBinding returns a boolean expression that holds iff a and b are
// structurally equal.
func EqualBinding(a, b Binding) (Expr, error) {
	switch a := a.(type) {
	case Expr:
		b, ok := b.(Expr)
		if !ok || ExprWidth(a) != ExprWidth(b) {
			return nil, fmt.Errorf("compare %s with %s: %w", a, b, ErrTypeMismatch)
		}
		return NewBinaryExpr(EQ, a, b), nil

	case Tuple:
		b, ok := b.(Tuple)
		if !ok || len(a) != len(b) {
			return nil, fmt.Errorf("compare %s with %s: %w", a, b, ErrTypeMismatch)
		}
		return equalElems(a, b)

	case Array:
		b, ok := b.(Array)
		if !ok || len(a) != len(b) {
			return nil, fmt.Errorf("compare %s with %s: %w", a, b, ErrTypeMismatch)
		}
		return equalElems(a, b)

	case Reference:
		b, ok := b.(Reference)
		if !ok {
			return nil, fmt.Errorf("compare %s with %s: %w", a, b, ErrTypeMismatch)
		}
		return NewBoolConstantExpr(a.Name == b.Name), nil

	case Unit:
		if _, ok := b.(Unit); !ok {
			return nil, fmt.Errorf("compare %s with %s: %w", a, b, ErrTypeMismatch)
		}
		return NewBoolConstantExpr(true), nil

	default:
		return nil, fmt.Errorf("compare uninitialized value: %w", ErrUninitialized)
	}
}

func equalElems(a, b []Binding) (Expr, error) {
	exprs := make([]Expr, len(a))
	for i := range a {
		expr, err := EqualBinding(a[i], b[i])
		if err != nil {
			return nil, err
		}
		exprs[i] = expr
	}
	return NewAndExpr(exprs...), nil
}

// bindingType returns the type of a binding. The element type of a
// reference is resolved by the caller and reported here as unknown.
func bindingType(b Binding) ir.Type {
	switch b := b.(type) {
	case Expr:
		if IsBoolExpr(b) {
			return ir.BoolType{}
		}
		return ir.I32Type{}
	case Tuple:
		elems := make([]ir.Type, len(b))
		for i := range b {
			elems[i] = bindingType(b[i])
		}
		return ir.TupleType{Elems: elems}
	case Array:
		if len(b) == 0 {
			return ir.ArrayType{Elem: ir.UnknownType{}, Len: 0}
		}
		return ir.ArrayType{Elem: bindingType(b[0]), Len: len(b)}
	case Reference:
		return ir.ReferenceType{Elem: ir.UnknownType{}, Mutable: b.Mutable}
	case Unit:
		return ir.UnitType{}
	default:
		return ir.UnknownType{}
	}
}

// newBinding returns an unconstrained binding of type t. Scalar leaves are
// created by fresh, which is passed a path-like name for each element.
// References cannot be created unconstrained and return nil.
func newBinding(t ir.Type, name string, fresh func(name string, width uint) *SymbolExpr) (Binding, error) {
	switch t := t.(type) {
	case ir.BoolType:
		return fresh(name, WidthBool), nil
	case ir.I32Type:
		return fresh(name, Width32), nil
	case ir.UnitType:
		return Unit{}, nil
	case ir.TupleType:
		elems := make(Tuple, len(t.Elems))
		for i, et := range t.Elems {
			elem, err := newBinding(et, fmt.Sprintf("%s.%d", name, i), fresh)
			if err != nil {
				return nil, err
			}
			elems[i] = elem
		}
		return elems, nil
	case ir.ArrayType:
		if t.Len < 0 {
			return nil, fmt.Errorf("array length %d: %w", t.Len, ErrTypeMismatch)
		}
		elems := make(Array, t.Len)
		for i := range elems {
			elem, err := newBinding(t.Elem, fmt.Sprintf("%s[%d]", name, i), fresh)
			if err != nil {
				return nil, err
			}
			elems[i] = elem
		}
		return elems, nil
	case ir.ReferenceType:
		return nil, nil
	default:
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownType)
	}
}

// sameType returns true if a and b describe the same type. Unknown matches anything.
func sameType(a, b ir.Type) bool {
	switch a := a.(type) {
	case nil, ir.UnknownType:
		return true
	case ir.TupleType:
		if _, ok := b.(ir.UnknownType); ok {
			return true
		}
		b, ok := b.(ir.TupleType)
		if !ok || len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !sameType(a.Elems[i], b.Elems[i]) {
				return false
			}
		}
		return true
	case ir.ArrayType:
		if _, ok := b.(ir.UnknownType); ok {
			return true
		}
		b, ok := b.(ir.ArrayType)
		return ok && a.Len == b.Len && sameType(a.Elem, b.Elem)
	case ir.ReferenceType:
		if _, ok := b.(ir.UnknownType); ok {
			return true
		}
		b, ok := b.(ir.ReferenceType)
		return ok && sameType(a.Elem, b.Elem)
	default:
		if _, ok := b.(ir.UnknownType); ok || b == nil {
			return true
		}
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
}
