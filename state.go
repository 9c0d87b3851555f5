package hoare

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/benbjohnson/hoare/ir"
	"github.com/benbjohnson/immutable"
	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
)

// Var represents a program variable bound in a state.
type Var struct {
	Name    string
	Type    ir.Type
	Mutable bool
	Value   Binding // nil if declared but never assigned
}

// State represents the symbolic environment along one execution path.
type State struct {
	// Executor this is executed within.
	executor *Executor

	// Variables by name. Values are *Var.
	vars *immutable.SortedMap

	// Path condition, as a list of conjuncts.
	constraints []Expr
}

// NewState returns an empty state with no constraints.
func NewState(executor *Executor) *State {
	return &State{
		executor: executor,
		vars:     immutable.NewSortedMap(&stringComparer{}),
	}
}

// Constraints returns the conjuncts of the path condition.
func (s *State) Constraints() []Expr {
	return s.constraints
}

// PathCondition returns the path condition as a single expression.
func (s *State) PathCondition() Expr {
	return NewAndExpr(s.constraints...)
}

// Clone returns a copy of the state. The variable map is persistent so only
// the constraint list is copied.
func (s *State) Clone() *State {
	constraints := make([]Expr, len(s.constraints))
	copy(constraints, s.constraints)

	return &State{
		executor:    s.executor,
		vars:        s.vars,
		constraints: constraints,
	}
}

// Fork returns a copy of the state with the additional constraint.
func (s *State) Fork(constraint Expr) *State {
	child := s.Clone()
	if constraint != nil {
		child.AddConstraint(constraint)
	}
	return child
}

// AddConstraint adds a boolean constraint to the path condition.
// Conjunctions are split and constant true is dropped.
func (s *State) AddConstraint(expr Expr) {
	s.constraints = AddConstraint(s.constraints, expr)
}

// AddConstraint adds expr to constraints and returns the new constraint list.
// If expr is a binary AND expression then its LHS & RHS are split into
// independent constraints.
func AddConstraint(a []Expr, expr Expr) []Expr {
	assert(IsBoolExpr(expr), "constraint must be boolean: %s", expr)

	if IsConstantTrue(expr) {
		return a
	}
	if expr, ok := expr.(*BinaryExpr); ok && expr.Op == AND {
		a = AddConstraint(a, expr.LHS)
		a = AddConstraint(a, expr.RHS)
		return a
	}
	return append(a, expr)
}

// Infeasible returns true if the path condition is trivially false.
func (s *State) Infeasible() bool {
	for _, expr := range s.constraints {
		if IsConstantFalse(expr) {
			return true
		}
	}
	return false
}

// Lookup returns the variable bound to name.
func (s *State) Lookup(name string) (*Var, bool) {
	v, ok := s.vars.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*Var), true
}

// Declare binds a new variable. Panic if the name is already bound.
func (s *State) Declare(v *Var) {
	_, ok := s.vars.Get(v.Name)
	assert(!ok, "variable already declared: %s", v.Name)
	s.vars = s.vars.Set(v.Name, v)
}

// Resolve returns the name of the storage slot for name. A name of the form
// "*r" where r is bound to a reference resolves to the reference's target.
func (s *State) Resolve(name string) (string, error) {
	if _, ok := s.Lookup(name); ok {
		return name, nil
	}
	if strings.HasPrefix(name, "*") {
		v, ok := s.Lookup(strings.TrimPrefix(name, "*"))
		if !ok {
			return "", structuralf(ErrUndefinedVariable, "%s", name)
		}
		ref, ok := v.Value.(Reference)
		if !ok {
			return "", structuralf(ErrTypeMismatch, "dereference of non-reference %s", v.Name)
		}
		return ref.Name, nil
	}
	return "", structuralf(ErrUndefinedVariable, "%s", name)
}

// Set replaces the value of an existing variable, keeping its declaration.
func (s *State) Set(name string, value Binding) error {
	name, err := s.Resolve(name)
	if err != nil {
		return err
	}
	v, _ := s.Lookup(name)
	other := *v
	other.Value = value
	if _, ok := value.(Reference); !ok && value != nil && ir.IsUnknown(other.Type) {
		other.Type = bindingType(value)
	}
	s.vars = s.vars.Set(name, &other)
	return nil
}

// Scope binds v, hiding any variable of the same name.
func (s *State) Scope(v *Var) {
	s.vars = s.vars.Set(v.Name, v)
}

// Undeclare removes a variable from the state.
func (s *State) Undeclare(name string) {
	s.vars = s.vars.Delete(name)
}

// Names returns the names of all bound variables, in sorted order.
func (s *State) Names() []string {
	var a []string
	itr := s.vars.Iterator()
	for {
		k, _ := itr.Next()
		if k == nil {
			return a
		}
		a = append(a, k.(string))
	}
}

// Havoc replaces the values of the named variables with fresh unconstrained
// terms of the same type. References keep their target. A mutable reference
// havocs the variable it points to instead.
func (s *State) Havoc(names []string) error {
	for _, name := range names {
		name, err := s.Resolve(name)
		if err != nil {
			return err
		}
		v, _ := s.Lookup(name)
		if ref, ok := v.Value.(Reference); ok {
			if !ref.Mutable {
				continue
			}
			name = ref.Name
			v = mustLookup(s, name)
		}

		typ := v.Type
		if ir.IsUnknown(typ) && v.Value != nil {
			typ = bindingType(v.Value)
		}
		value, err := newBinding(typ, name, s.executor.fresh)
		if err != nil {
			return structuralf(err, "havoc %s", name)
		}
		if err := s.Set(name, value); err != nil {
			return err
		}
	}
	s.executor.Logger.Debug("havoc", zap.Strings("names", names))
	return nil
}

// Branch is one arm of a conditional being merged back into its parent.
type Branch struct {
	Guard Expr   // holds iff this arm was taken
	State *State // final state of the arm
	Base  int    // number of constraints in State right after the fork
}

// Merge returns the join of branches forked from s. Variables bound in s are
// assigned a guarded choice of each branch's value. Names declared inside a
// branch are dropped. Guards must be mutually exclusive and exhaustive.
func (s *State) Merge(branches []Branch) (*State, error) {
	assert(len(branches) > 0, "merge: no branches")

	other := s.Clone()
	for _, name := range s.Names() {
		last := branches[len(branches)-1].State
		v, _ := last.Lookup(name)
		value := v.Value
		for i := len(branches) - 2; i >= 0; i-- {
			bv, _ := branches[i].State.Lookup(name)
			b, err := IteBinding(branches[i].Guard, bv.Value, value)
			if err != nil {
				return nil, structuralf(err, "merge %s", name)
			}
			value = b
		}
		if err := other.Set(name, value); err != nil {
			return nil, err
		}
	}

	// Join constraints added inside each branch.
	var extra bool
	disjuncts := make([]Expr, len(branches))
	for i, b := range branches {
		added := b.State.constraints[b.Base:]
		if len(added) > 0 {
			extra = true
		}
		disjuncts[i] = NewBinaryExpr(AND, b.Guard, NewAndExpr(added...))
	}
	if extra {
		other.AddConstraint(NewOrExpr(disjuncts...))
	}

	s.executor.Logger.Debug("merge", zap.Int("branches", len(branches)))
	return other, nil
}

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Dump returns the contents of the state as a string.
func (s *State) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "STATE")
	fmt.Fprintln(&buf, "=====")
	fmt.Fprintln(&buf, "== VARIABLES")
	itr := s.vars.Iterator()
	for k, v := itr.Next(); k != nil; k, v = itr.Next() {
		dumpConfig.Fdump(&buf, v)
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== CONSTRAINTS")
	for i, expr := range s.constraints {
		fmt.Fprintf(&buf, "%d. %s\n", i, expr.String())
	}
	return buf.String()
}

// stringComparer compares two strings. Implements immutable.Comparer.
type stringComparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b. Panic if a or b is not a string.
func (c *stringComparer) Compare(a, b interface{}) int {
	if i, j := a.(string), b.(string); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
