// Package ir defines the program tree accepted by the verifier.
//
// Every category is a closed set of variants implemented as an interface with
// an unexported marker method. The tree is immutable once constructed.
package ir

import (
	"fmt"
	"strings"
)

// ReturnName is the name bound to the function's return value in its postcondition.
const ReturnName = "return_value"

// OldSuffix marks a reference to the entry value of an input, e.g. "x'old".
const OldSuffix = "'old"

// Type represents the static type of a binding.
type Type interface {
	typ()
	String() string
}

func (UnitType) typ()      {}
func (BoolType) typ()      {}
func (I32Type) typ()       {}
func (TupleType) typ()     {}
func (ArrayType) typ()     {}
func (ReferenceType) typ() {}
func (UnknownType) typ()   {}

type UnitType struct{}

func (UnitType) String() string { return "()" }

type BoolType struct{}

func (BoolType) String() string { return "bool" }

type I32Type struct{}

func (I32Type) String() string { return "i32" }

// TupleType is an ordered group of element types.
type TupleType struct {
	Elems []Type
}

func (t TupleType) String() string {
	a := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		a[i] = e.String()
	}
	return "(" + strings.Join(a, ", ") + ")"
}

// ArrayType is a fixed-length array.
type ArrayType struct {
	Elem Type
	Len  int
}

func (t ArrayType) String() string { return fmt.Sprintf("[%s; %d]", t.Elem, t.Len) }

// ReferenceType is a shared or mutable reference. References never nest.
type ReferenceType struct {
	Elem    Type
	Mutable bool
}

func (t ReferenceType) String() string {
	if t.Mutable {
		return "&mut " + t.Elem.String()
	}
	return "&" + t.Elem.String()
}

// UnknownType marks a type that has not been inferred.
type UnknownType struct{}

func (UnknownType) String() string { return "_" }

// IsUnknown returns true if t is nil or contains an UnknownType anywhere.
func IsUnknown(t Type) bool {
	switch t := t.(type) {
	case nil, UnknownType:
		return true
	case TupleType:
		for _, e := range t.Elems {
			if IsUnknown(e) {
				return true
			}
		}
		return false
	case ArrayType:
		return IsUnknown(t.Elem)
	case ReferenceType:
		return IsUnknown(t.Elem)
	default:
		return false
	}
}

// Expr is an integer-valued expression.
type Expr interface {
	expr()
	String() string
}

func (Number) expr()    {}
func (ValueExpr) expr() {}
func (Op) expr()        {}

// Number is an integer literal.
type Number struct {
	Value int64
}

func (e Number) String() string { return fmt.Sprint(e.Value) }

// ValueExpr wraps a value that must evaluate to an integer.
type ValueExpr struct {
	Value Value
}

func (e ValueExpr) String() string { return e.Value.String() }

// Opcode is an arithmetic operator.
type Opcode int

const (
	Mul Opcode = iota + 1
	Div
	Add
	Sub
	Rem
)

var opcodes = [...]string{
	Mul: "*",
	Div: "/",
	Add: "+",
	Sub: "-",
	Rem: "%",
}

// String returns the operator symbol.
func (op Opcode) String() string {
	if op > 0 && int(op) < len(opcodes) {
		return opcodes[op]
	}
	return fmt.Sprintf("Opcode<%d>", op)
}

// Op applies an arithmetic operator to two expressions.
type Op struct {
	LHS    Expr
	Opcode Opcode
	RHS    Expr
}

func (e Op) String() string { return fmt.Sprintf("(%s %s %s)", e.LHS, e.Opcode, e.RHS) }

// Bool is a predicate.
type Bool interface {
	boolean()
	String() string
}

func (And) boolean()        {}
func (Or) boolean()         {}
func (Not) boolean()        {}
func (BoolValue) boolean()  {}
func (True) boolean()       {}
func (False) boolean()      {}
func (Compare) boolean()    {}
func (ValueEqual) boolean() {}
func (ForAll) boolean()     {}
func (Exists) boolean()     {}

type And struct{ LHS, RHS Bool }

func (b And) String() string { return fmt.Sprintf("(%s && %s)", b.LHS, b.RHS) }

type Or struct{ LHS, RHS Bool }

func (b Or) String() string { return fmt.Sprintf("(%s || %s)", b.LHS, b.RHS) }

type Not struct{ Bool Bool }

func (b Not) String() string { return fmt.Sprintf("!%s", b.Bool) }

// BoolValue wraps a value that must evaluate to a boolean.
type BoolValue struct{ Value Value }

func (b BoolValue) String() string { return b.Value.String() }

type True struct{}

func (True) String() string { return "true" }

type False struct{}

func (False) String() string { return "false" }

// CompareOp is an integer comparison operator.
type CompareOp int

const (
	Equal CompareOp = iota + 1
	GreaterThan
	LowerThan
	GreaterEqual
	LowerEqual
)

var compareOps = [...]string{
	Equal:        "==",
	GreaterThan:  ">",
	LowerThan:    "<",
	GreaterEqual: ">=",
	LowerEqual:   "<=",
}

func (op CompareOp) String() string {
	if op > 0 && int(op) < len(compareOps) {
		return compareOps[op]
	}
	return fmt.Sprintf("CompareOp<%d>", op)
}

// Compare compares two integer expressions.
type Compare struct {
	Op       CompareOp
	LHS, RHS Expr
}

func (b Compare) String() string { return fmt.Sprintf("%s %s %s", b.LHS, b.Op, b.RHS) }

// ValueEqual is structural equality of two values of the same type.
type ValueEqual struct{ LHS, RHS Value }

func (b ValueEqual) String() string { return fmt.Sprintf("%s == %s", b.LHS, b.RHS) }

// ForAll holds if Body holds for every i32 value of Var.
type ForAll struct {
	Var  Variable
	Body Bool
}

func (b ForAll) String() string { return fmt.Sprintf("forall %s: %s", b.Var, b.Body) }

// Exists holds if Body holds for some i32 value of Var.
type Exists struct {
	Var  Variable
	Body Bool
}

func (b Exists) String() string { return fmt.Sprintf("exists %s: %s", b.Var, b.Body) }

// Value is the universal payload of assignments, arguments and return values.
type Value interface {
	value()
	String() string
}

func (ExprVal) value()      {}
func (BoolVal) value()      {}
func (VarValue) value()     {}
func (TupleValue) value()   {}
func (ArrayValue) value()   {}
func (FunctionCall) value() {}
func (Dereference) value()  {}
func (Reference) value()    {}
func (UnitValue) value()    {}
func (UnknownValue) value() {}
func (Ternary) value()      {}

type ExprVal struct{ Expr Expr }

func (v ExprVal) String() string { return v.Expr.String() }

type BoolVal struct{ Bool Bool }

func (v BoolVal) String() string { return v.Bool.String() }

type VarValue struct{ Var Variable }

func (v VarValue) String() string { return v.Var.String() }

type TupleValue struct{ Elems []Value }

func (v TupleValue) String() string { return "(" + joinValues(v.Elems) + ")" }

type ArrayValue struct{ Elems []Value }

func (v ArrayValue) String() string { return "[" + joinValues(v.Elems) + "]" }

// FunctionCall calls another function of the program by name.
type FunctionCall struct {
	Name string
	Args []Value
}

func (v FunctionCall) String() string { return fmt.Sprintf("%s(%s)", v.Name, joinValues(v.Args)) }

type Dereference struct{ Value Value }

func (v Dereference) String() string { return "*" + v.Value.String() }

// Reference takes a shared or mutable reference to a named variable.
type Reference struct {
	Value   Value
	Mutable bool
}

func (v Reference) String() string {
	if v.Mutable {
		return "&mut " + v.Value.String()
	}
	return "&" + v.Value.String()
}

type UnitValue struct{}

func (UnitValue) String() string { return "()" }

type UnknownValue struct{}

func (UnknownValue) String() string { return "?" }

// Ternary selects Then if Cond holds, otherwise Else.
type Ternary struct {
	Cond       Bool
	Then, Else Value
}

func (v Ternary) String() string { return fmt.Sprintf("(%s ? %s : %s)", v.Cond, v.Then, v.Else) }

func joinValues(a []Value) string {
	s := make([]string, len(a))
	for i, v := range a {
		s[i] = v.String()
	}
	return strings.Join(s, ", ")
}

// Variable names a storage location.
type Variable interface {
	variable()
	String() string
}

func (Named) variable()     {}
func (Empty) variable()     {}
func (ArrayElem) variable() {}
func (TupleElem) variable() {}

type Named struct{ Name string }

func (v Named) String() string { return v.Name }

// Empty is the discard target "_".
type Empty struct{}

func (Empty) String() string { return "_" }

type ArrayElem struct {
	Name  string
	Index Value
}

func (v ArrayElem) String() string { return fmt.Sprintf("%s[%s]", v.Name, v.Index) }

type TupleElem struct {
	Name  string
	Index Value
}

func (v TupleElem) String() string { return fmt.Sprintf("%s.%s", v.Name, v.Index) }

// VariableName returns the root identifier of v, or "" for Empty.
func VariableName(v Variable) string {
	switch v := v.(type) {
	case Named:
		return v.Name
	case ArrayElem:
		return v.Name
	case TupleElem:
		return v.Name
	default:
		return ""
	}
}

// Command is one statement of a function body.
type Command interface {
	command()
	String() string
}

// Binding introduces new names into scope.
type Binding interface {
	Command
	binding()
}

// Assignment updates existing names.
type Assignment interface {
	Command
	assignment()
}

// ProveControl is a verification directive.
type ProveControl interface {
	Command
	proveControl()
}

// Block is structured control flow.
type Block interface {
	Command
	block()
}

func (Declaration) command()   {}
func (Let) command()           {}
func (TupleBinding) command()  {}
func (Assign) command()        {}
func (TupleAssign) command()   {}
func (Assert) command()        {}
func (Assume) command()        {}
func (LoopInvariant) command() {}
func (If) command()            {}
func (ForRange) command()      {}
func (While) command()         {}
func (Noop) command()          {}

func (Declaration) binding()  {}
func (Let) binding()          {}
func (TupleBinding) binding() {}

func (Assign) assignment()      {}
func (TupleAssign) assignment() {}

func (Assert) proveControl()        {}
func (Assume) proveControl()        {}
func (LoopInvariant) proveControl() {}

func (If) block()       {}
func (ForRange) block() {}
func (While) block()    {}

// Declaration introduces an uninitialized binding.
type Declaration struct {
	Var     Variable
	Type    Type
	Mutable bool
}

func (c Declaration) String() string {
	return fmt.Sprintf("let %s%s: %s;", mutPrefix(c.Mutable), c.Var, c.Type)
}

// Let introduces an initialized binding.
type Let struct {
	Var     Variable
	Type    Type
	Mutable bool
	Value   Value
}

func (c Let) String() string {
	return fmt.Sprintf("let %s%s: %s = %s;", mutPrefix(c.Mutable), c.Var, c.Type, c.Value)
}

// TupleBinding is a destructuring declaration. Commands holds Binding commands.
type TupleBinding struct {
	Commands []Command
}

func (c TupleBinding) String() string { return fmt.Sprintf("let (%d bindings);", len(c.Commands)) }

// Assign updates a single target.
type Assign struct {
	Target Variable
	Value  Value
}

func (c Assign) String() string { return fmt.Sprintf("%s = %s;", c.Target, c.Value) }

// TupleAssign is a destructuring assignment. Values are evaluated before any target is updated.
type TupleAssign struct {
	Assignments []Assignment
}

func (c TupleAssign) String() string { return fmt.Sprintf("(%d assignments);", len(c.Assignments)) }

type Assert struct{ Bool Bool }

func (c Assert) String() string { return fmt.Sprintf("assert!(%s);", c.Bool) }

type Assume struct{ Bool Bool }

func (c Assume) String() string { return fmt.Sprintf("assume!(%s);", c.Bool) }

// LoopInvariant attaches to the loop that immediately follows it.
type LoopInvariant struct{ Bool Bool }

func (c LoopInvariant) String() string { return fmt.Sprintf("invariant!(%s);", c.Bool) }

// If is a chained if / else if / else.
type If struct {
	Conds  []Bool
	Blocks [][]Command
	Else   []Command
}

func (c If) String() string { return fmt.Sprintf("if %s { ... }", joinBools(c.Conds)) }

// ForRange iterates First <= Iter < Last.
type ForRange struct {
	Iter        Variable
	First, Last Value
	Body        []Command
}

func (c ForRange) String() string {
	return fmt.Sprintf("for %s in %s..%s { ... }", c.Iter, c.First, c.Last)
}

type While struct {
	Cond Bool
	Body []Command
}

func (c While) String() string { return fmt.Sprintf("while %s { ... }", c.Cond) }

type Noop struct{}

func (Noop) String() string { return ";" }

func mutPrefix(mutable bool) string {
	if mutable {
		return "mut "
	}
	return ""
}

func joinBools(a []Bool) string {
	s := make([]string, len(a))
	for i, b := range a {
		s[i] = b.String()
	}
	return strings.Join(s, " / ")
}

// Function is a contract-annotated function.
type Function struct {
	Name          string
	Content       []Command
	Input         []Binding
	Output        Type
	Precondition  Bool
	Postcondition Bool
	ReturnValue   Value
}

// Program is an ordered list of functions.
type Program struct {
	Functions []*Function
}

// Function returns the function with the given name, or nil.
func (p *Program) Function(name string) *Function {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}
