package hoare

import (
	"bytes"
	"fmt"
	"math"

	"github.com/benbjohnson/hoare/ir"
	"go.uber.org/zap"
)

// ObligationKind describes the origin of a proof obligation.
type ObligationKind string

const (
	ObligationAssert             = ObligationKind("assert")
	ObligationPostcondition      = ObligationKind("postcondition")
	ObligationDivision           = ObligationKind("division-by-zero")
	ObligationBounds             = ObligationKind("index-bounds")
	ObligationInvariantEntry     = ObligationKind("invariant-entry")
	ObligationInvariantPreserved = ObligationKind("invariant-preservation")
	ObligationCallPrecondition   = ObligationKind("call-precondition")
)

// Obligation is a goal that must hold whenever the path condition holds.
type Obligation struct {
	ID          int
	Kind        ObligationKind
	Desc        string // source text of the goal
	Constraints []Expr // path condition
	Goal        Expr

	// Bindings reported in a counterexample. Inputs come first.
	Vars []NamedBinding
}

// NamedBinding associates a variable name with its symbolic value.
type NamedBinding struct {
	Name  string
	Value Binding
}

// String returns a one-line summary of the obligation.
func (o *Obligation) String() string {
	return fmt.Sprintf("#%d %s: %s", o.ID, o.Kind, o.Desc)
}

// Dump returns the full obligation as a string.
func (o *Obligation) Dump() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "OBLIGATION %s\n", o)
	fmt.Fprintln(&buf, "== CONSTRAINTS")
	for i, expr := range o.Constraints {
		fmt.Fprintf(&buf, "%d. %s\n", i, expr.String())
	}
	fmt.Fprintln(&buf, "== GOAL")
	fmt.Fprintln(&buf, o.Goal.String())
	fmt.Fprintln(&buf, "== VARIABLES")
	dumpConfig.Fdump(&buf, o.Vars)
	return buf.String()
}

// Executor generates proof obligations for a single function by symbolic
// execution of its body.
type Executor struct {
	prog *ir.Program
	fn   *ir.Function

	obligations []*Obligation
	inputs      []NamedBinding // entry values of inputs
	symbols     map[string]int // fresh symbol counters by name

	// Side conditions collected inside quantifier bodies, innermost last.
	sides []*sideConditions

	Logger *zap.Logger
}

// NewExecutor returns a new instance of Executor for fn within prog.
func NewExecutor(prog *ir.Program, fn *ir.Function) *Executor {
	return &Executor{
		prog:    prog,
		fn:      fn,
		symbols: make(map[string]int),
		Logger:  zap.NewNop(),
	}
}

// Execute runs the function body and returns its proof obligations in
// generation order. Returns a *StructuralError if the function is malformed.
func (e *Executor) Execute() ([]*Obligation, error) {
	obligations, err := e.execute()
	if err != nil {
		return nil, withFunction(err, e.fn.Name)
	}
	return obligations, nil
}

func (e *Executor) execute() ([]*Obligation, error) {
	e.obligations, e.inputs = nil, nil
	e.symbols = make(map[string]int)

	state := NewState(e)
	for _, b := range flattenBindings(e.fn.Input) {
		if err := e.declareInput(state, b); err != nil {
			return nil, err
		}
	}

	pre, err := e.assumeBool(state, e.fn.Precondition)
	if err != nil {
		return nil, err
	}
	state.AddConstraint(pre)

	if state, err = e.executeCommands(state, e.fn.Content); err != nil {
		return nil, err
	}

	var ret ir.Value = ir.UnitValue{}
	if e.fn.ReturnValue != nil {
		ret = e.fn.ReturnValue
	}
	result, err := e.evalValue(state, ret)
	if err != nil {
		return nil, err
	}

	post := state.Clone()
	post.Scope(&Var{Name: ir.ReturnName, Type: e.fn.Output, Value: result})
	if err := e.assert(post, ObligationPostcondition, e.fn.Postcondition); err != nil {
		return nil, err
	}

	e.Logger.Debug("executed",
		zap.String("function", e.fn.Name),
		zap.Int("obligations", len(e.obligations)),
	)
	return e.obligations, nil
}

// flattenBindings expands destructuring bindings into a flat list.
func flattenBindings(a []ir.Binding) []ir.Binding {
	var other []ir.Binding
	for _, b := range a {
		if t, ok := b.(ir.TupleBinding); ok {
			for _, cmd := range t.Commands {
				if cb, ok := cmd.(ir.Binding); ok {
					other = append(other, flattenBindings([]ir.Binding{cb})...)
				}
			}
			continue
		}
		other = append(other, b)
	}
	return other
}

// declareInput binds an input to fresh symbols along with its entry value.
// A reference input "x" points to a separate slot "*x" holding the pointee.
func (e *Executor) declareInput(state *State, b ir.Binding) error {
	var v ir.Variable
	var typ ir.Type
	var mutable bool
	switch b := b.(type) {
	case ir.Declaration:
		v, typ, mutable = b.Var, b.Type, b.Mutable
	case ir.Let:
		v, typ, mutable = b.Var, b.Type, b.Mutable
	}

	name := ir.VariableName(v)
	if _, ok := v.(ir.Named); !ok {
		return structuralf(ErrTypeMismatch, "input %s must be a named variable", v)
	} else if ir.IsUnknown(typ) {
		return structuralf(ErrUnknownType, "input %s", name)
	}

	if ref, ok := typ.(ir.ReferenceType); ok {
		target := "*" + name
		value, err := newBinding(ref.Elem, target, e.fresh)
		if err != nil {
			return err
		} else if value == nil {
			return structuralf(ErrTypeMismatch, "input %s: nested reference", name)
		}
		state.Declare(&Var{Name: target, Type: ref.Elem, Mutable: ref.Mutable, Value: value})
		state.Declare(&Var{Name: name, Type: typ, Mutable: mutable, Value: Reference{Name: target, Mutable: ref.Mutable}})
		state.Declare(&Var{Name: name + ir.OldSuffix, Type: ref.Elem, Value: value})
		e.inputs = append(e.inputs, NamedBinding{Name: target, Value: value})
		return nil
	}

	value, err := newBinding(typ, name, e.fresh)
	if err != nil {
		return err
	}
	state.Declare(&Var{Name: name, Type: typ, Mutable: mutable, Value: value})
	state.Declare(&Var{Name: name + ir.OldSuffix, Type: typ, Value: value})
	e.inputs = append(e.inputs, NamedBinding{Name: name, Value: value})
	return nil
}

// fresh returns a new unconstrained symbol. The first symbol for a name uses
// the name as-is so counterexamples read naturally.
func (e *Executor) fresh(name string, width uint) *SymbolExpr {
	n := e.symbols[name]
	e.symbols[name] = n + 1
	if n == 0 {
		return NewSymbolExpr(name, width)
	}
	return NewSymbolExpr(fmt.Sprintf("%s!%d", name, n), width)
}

// sideConditions accumulates the well-definedness conditions of a quantifier
// body. Each condition is relative to the constraints added since the body
// was entered.
type sideConditions struct {
	base  int
	exprs []Expr
}

// add records goal under the constraints in state beyond the base.
func (sc *sideConditions) add(state *State, goal Expr) {
	local := state.constraints[sc.base:]
	for _, expr := range AddConstraint(nil, goal) {
		if !containsExpr(local, expr) {
			sc.exprs = append(sc.exprs, NewImpliesExpr(NewAndExpr(local...), goal))
			return
		}
	}
}

func containsExpr(a []Expr, expr Expr) bool {
	for _, other := range a {
		if CompareExpr(other, expr) == 0 {
			return true
		}
	}
	return false
}

// addObligation records goal as an obligation under the current path
// condition and then assumes it for the rest of the path. Inside a
// quantifier body the goal is folded into the body instead.
func (e *Executor) addObligation(state *State, kind ObligationKind, desc string, goal Expr, names []string) {
	defer state.AddConstraint(goal)

	if IsConstantTrue(goal) {
		return
	} else if n := len(e.sides); n > 0 {
		e.sides[n-1].add(state, goal)
		return
	}

	constraints := make([]Expr, len(state.constraints))
	copy(constraints, state.constraints)

	ob := &Obligation{
		ID:          len(e.obligations) + 1,
		Kind:        kind,
		Desc:        desc,
		Constraints: constraints,
		Goal:        goal,
		Vars:        e.reportedVars(state, names),
	}
	e.obligations = append(e.obligations, ob)

	e.Logger.Debug("obligation",
		zap.String("function", e.fn.Name),
		zap.Int("id", ob.ID),
		zap.String("kind", string(kind)),
		zap.Stringer("goal", goal),
	)
}

// reportedVars returns the inputs followed by the current value of every
// other named variable.
func (e *Executor) reportedVars(state *State, names []string) []NamedBinding {
	a := make([]NamedBinding, len(e.inputs))
	copy(a, e.inputs)

	seen := make(map[string]struct{})
	for _, in := range e.inputs {
		seen[in.Name] = struct{}{}
	}
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		v, ok := state.Lookup(name)
		if !ok || v.Value == nil {
			continue
		}
		if ref, ok := v.Value.(Reference); ok {
			if _, ok := seen[ref.Name]; ok {
				continue
			}
			target, ok := state.Lookup(ref.Name)
			if !ok || target.Value == nil {
				continue
			}
			seen[ref.Name] = struct{}{}
			a = append(a, NamedBinding{Name: ref.Name, Value: target.Value})
			continue
		}
		a = append(a, NamedBinding{Name: name, Value: v.Value})
	}
	return a
}

// assert encodes p, records it as an obligation and assumes it afterwards.
func (e *Executor) assert(state *State, kind ObligationKind, p ir.Bool) error {
	if p == nil {
		p = ir.True{}
	}
	goal, err := e.evalBool(state, p)
	if err != nil {
		return err
	}
	e.addObligation(state, kind, p.String(), goal, ir.Names(p))
	return nil
}

// assumeBool encodes p so it can be assumed instead of proved. Division and
// index obligations of its subterms are still recorded.
func (e *Executor) assumeBool(state *State, p ir.Bool) (Expr, error) {
	if p == nil {
		return NewBoolConstantExpr(true), nil
	}
	return e.evalBool(state, p)
}

func (e *Executor) executeCommands(state *State, cmds []ir.Command) (*State, error) {
	var inv *ir.LoopInvariant
	for _, cmd := range cmds {
		if cmd, ok := cmd.(ir.LoopInvariant); ok {
			if inv != nil {
				return nil, structuralf(ErrDanglingInvariant, "%s", inv)
			}
			inv = &cmd
			continue
		}

		var err error
		switch cmd := cmd.(type) {
		case ir.While:
			if inv == nil {
				return nil, structuralf(ErrMissingInvariant, "%s", cmd)
			}
			state, err = e.executeWhile(state, cmd, inv.Bool)
		case ir.ForRange:
			var p ir.Bool = ir.True{}
			if inv != nil {
				p = inv.Bool
			}
			state, err = e.executeForRange(state, cmd, p)
		default:
			if inv != nil {
				return nil, structuralf(ErrDanglingInvariant, "%s", inv)
			}
			state, err = e.executeCommand(state, cmd)
		}
		if err != nil {
			return nil, err
		}
		inv = nil
	}
	if inv != nil {
		return nil, structuralf(ErrDanglingInvariant, "%s", inv)
	}
	return state, nil
}

func (e *Executor) executeCommand(state *State, cmd ir.Command) (*State, error) {
	switch cmd := cmd.(type) {
	case ir.Declaration:
		return state, e.executeDeclaration(state, cmd)
	case ir.Let:
		return state, e.executeLet(state, cmd)
	case ir.TupleBinding:
		return e.executeCommands(state, cmd.Commands)
	case ir.Assign:
		return state, e.executeAssign(state, cmd)
	case ir.TupleAssign:
		return state, e.executeTupleAssign(state, cmd)
	case ir.Assert:
		return state, e.assert(state, ObligationAssert, cmd.Bool)
	case ir.Assume:
		return state, e.assume(state, cmd.Bool)
	case ir.If:
		return e.executeIf(state, cmd)
	case ir.Noop:
		return state, nil
	default:
		return nil, fmt.Errorf("unexpected command type: %T", cmd)
	}
}

func (e *Executor) executeDeclaration(state *State, cmd ir.Declaration) error {
	name, err := bindingName(state, cmd.Var)
	if err != nil || name == "" {
		return err
	}

	var value Binding
	if !ir.IsUnknown(cmd.Type) {
		if value, err = newBinding(cmd.Type, name, e.fresh); err != nil {
			return err
		}
	}
	state.Declare(&Var{Name: name, Type: cmd.Type, Mutable: cmd.Mutable, Value: value})
	return nil
}

func (e *Executor) executeLet(state *State, cmd ir.Let) error {
	value, err := e.evalValue(state, cmd.Value)
	if err != nil {
		return err
	}

	name, err := bindingName(state, cmd.Var)
	if err != nil || name == "" {
		return err
	}

	typ, err := e.checkType(state, name, cmd.Type, value)
	if err != nil {
		return err
	}
	state.Declare(&Var{Name: name, Type: typ, Mutable: cmd.Mutable, Value: value})
	return nil
}

// bindingName returns the name introduced by a binding, or "" for "_".
func bindingName(state *State, v ir.Variable) (string, error) {
	switch v := v.(type) {
	case ir.Named:
		if _, ok := state.Lookup(v.Name); ok {
			return "", structuralf(ErrShadowed, "%s", v.Name)
		}
		return v.Name, nil
	case ir.Empty:
		return "", nil
	default:
		return "", structuralf(ErrTypeMismatch, "cannot bind %s", v)
	}
}

// checkType verifies value against the declared type and returns the type of
// the binding, inferring it if the declared type is unknown.
func (e *Executor) checkType(state *State, name string, declared ir.Type, value Binding) (ir.Type, error) {
	actual := bindingType(value)
	if ref, ok := value.(Reference); ok {
		if target, ok := state.Lookup(ref.Name); ok {
			actual = ir.ReferenceType{Elem: target.Type, Mutable: ref.Mutable}
		}
	}

	if !sameType(declared, actual) {
		return nil, structuralf(ErrTypeMismatch, "%s: declared %s, got %s", name, declared, actual)
	} else if ir.IsUnknown(declared) {
		return actual, nil
	}
	return declared, nil
}

func (e *Executor) executeAssign(state *State, cmd ir.Assign) error {
	value, err := e.evalValue(state, cmd.Value)
	if err != nil {
		return err
	}
	return e.assign(state, cmd.Target, value)
}

// executeTupleAssign evaluates every right-hand side before updating any target.
func (e *Executor) executeTupleAssign(state *State, cmd ir.TupleAssign) error {
	assigns := flattenAssignments(cmd.Assignments)
	values := make([]Binding, len(assigns))
	for i, a := range assigns {
		value, err := e.evalValue(state, a.Value)
		if err != nil {
			return err
		}
		values[i] = value
	}
	for i, a := range assigns {
		if err := e.assign(state, a.Target, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func flattenAssignments(a []ir.Assignment) []ir.Assign {
	var other []ir.Assign
	for _, cmd := range a {
		switch cmd := cmd.(type) {
		case ir.Assign:
			other = append(other, cmd)
		case ir.TupleAssign:
			other = append(other, flattenAssignments(cmd.Assignments)...)
		}
	}
	return other
}

// assign stores value into the location named by target.
func (e *Executor) assign(state *State, target ir.Variable, value Binding) error {
	switch target := target.(type) {
	case ir.Empty:
		return nil

	case ir.Named:
		name, err := state.Resolve(target.Name)
		if err != nil {
			return err
		}
		v, _ := state.Lookup(name)
		if _, ok := value.(Reference); !ok && !sameType(v.Type, bindingType(value)) {
			return structuralf(ErrTypeMismatch, "%s: declared %s, got %s", target.Name, v.Type, bindingType(value))
		}
		return state.Set(name, value)

	case ir.ArrayElem, ir.TupleElem:
		name, elems, index, err := e.evalElem(state, target)
		if err != nil {
			return err
		}
		other, err := Store(elems, index, value)
		if err != nil {
			return err
		}
		v, _ := state.Lookup(name)
		if _, ok := v.Value.(Tuple); ok {
			return state.Set(name, Tuple(other))
		}
		return state.Set(name, Array(other))

	default:
		return fmt.Errorf("unexpected assignment target: %T", target)
	}
}

// executeIf forks one state per branch, runs each branch to completion, then
// merges them. A branch's guard holds iff its condition holds and no earlier
// condition does.
func (e *Executor) executeIf(state *State, cmd ir.If) (*State, error) {
	if len(cmd.Conds) != len(cmd.Blocks) {
		return nil, structuralf(ErrIfArity, "%d conditions, %d blocks", len(cmd.Conds), len(cmd.Blocks))
	}

	var branches []Branch
	var earlier []Expr
	for i, c := range cmd.Conds {
		var cond Expr
		if err := e.guarded(state, NewAndExpr(earlier...), func(s *State) (err error) {
			cond, err = e.evalBool(s, c)
			return err
		}); err != nil {
			return nil, err
		}
		guard := NewAndExpr(append(earlier, cond)...)

		e.Logger.Debug("fork", zap.String("function", e.fn.Name), zap.Stringer("guard", guard))
		child := state.Fork(guard)
		base := len(child.constraints)
		child, err := e.executeCommands(child, cmd.Blocks[i])
		if err != nil {
			return nil, err
		}
		branches = append(branches, Branch{Guard: guard, State: child, Base: base})
		earlier = append(earlier, NewNotExpr(cond))
	}

	guard := NewAndExpr(earlier...)
	child := state.Fork(guard)
	base := len(child.constraints)
	child, err := e.executeCommands(child, cmd.Else)
	if err != nil {
		return nil, err
	}
	branches = append(branches, Branch{Guard: guard, State: child, Base: base})

	return state.Merge(branches)
}

// executeWhile applies the invariant rule. The invariant is checked on entry
// and preserved by one iteration from an arbitrary state satisfying it and
// the condition. Execution continues from an arbitrary state satisfying the
// invariant and the negated condition.
func (e *Executor) executeWhile(state *State, cmd ir.While, inv ir.Bool) (*State, error) {
	if err := e.assert(state, ObligationInvariantEntry, inv); err != nil {
		return nil, err
	}
	writes := ir.WriteSet(cmd.Body)

	// Preservation.
	body := state.Clone()
	if err := body.Havoc(writes); err != nil {
		return nil, err
	}
	if err := e.assume(body, inv); err != nil {
		return nil, err
	}
	cond, err := e.evalBool(body, cmd.Cond)
	if err != nil {
		return nil, err
	}
	body.AddConstraint(cond)
	if body, err = e.executeCommands(body, cmd.Body); err != nil {
		return nil, err
	}
	if err := e.assert(body, ObligationInvariantPreserved, inv); err != nil {
		return nil, err
	}

	// Exit.
	exit := state.Clone()
	if err := exit.Havoc(writes); err != nil {
		return nil, err
	}
	if err := e.assume(exit, inv); err != nil {
		return nil, err
	}
	if cond, err = e.evalBool(exit, cmd.Cond); err != nil {
		return nil, err
	}
	exit.AddConstraint(NewNotExpr(cond))
	return exit, nil
}

// executeForRange applies the invariant rule with the iterator bookkeeping
// "first <= it && (first <= last ==> it <= last)" conjoined to inv. The
// bounds are evaluated once before the loop.
func (e *Executor) executeForRange(state *State, cmd ir.ForRange, inv ir.Bool) (*State, error) {
	first, err := e.evalInt(state, cmd.First)
	if err != nil {
		return nil, err
	}
	last, err := e.evalInt(state, cmd.Last)
	if err != nil {
		return nil, err
	}

	name, err := bindingName(state, cmd.Iter)
	if err != nil {
		return nil, err
	} else if name == "" {
		name = fmt.Sprintf("_it%d", len(e.symbols))
	}

	bookkeeping := func(s *State) Expr {
		v, _ := s.Lookup(name)
		it := v.Value.(Expr)
		return NewBinaryExpr(AND,
			NewBinaryExpr(SLE, first, it),
			NewImpliesExpr(NewBinaryExpr(SLE, first, last), NewBinaryExpr(SLE, it, last)),
		)
	}
	desc := fmt.Sprintf("%s <= %s <= %s", cmd.First, name, cmd.Last)
	if _, ok := inv.(ir.True); !ok {
		desc += " && " + inv.String()
	}
	names := append(ir.Names(inv), name)

	entry := state.Clone()
	entry.Declare(&Var{Name: name, Type: ir.I32Type{}, Value: first})
	goal, err := e.evalBool(entry, inv)
	if err != nil {
		return nil, err
	}
	e.addObligation(entry, ObligationInvariantEntry, desc, NewBinaryExpr(AND, bookkeeping(entry), goal), names)

	writes := append(ir.WriteSet(cmd.Body), name)

	// Preservation.
	body := entry.Clone()
	if err := body.Havoc(writes); err != nil {
		return nil, err
	}
	body.AddConstraint(bookkeeping(body))
	if err := e.assume(body, inv); err != nil {
		return nil, err
	}
	it, _ := body.Lookup(name)
	body.AddConstraint(NewBinaryExpr(SLT, it.Value.(Expr), last))
	if body, err = e.executeCommands(body, cmd.Body); err != nil {
		return nil, err
	}
	it, _ = body.Lookup(name)
	if err := body.Set(name, NewBinaryExpr(ADD, it.Value.(Expr), NewConstantExpr32(1))); err != nil {
		return nil, err
	}
	if goal, err = e.evalBool(body, inv); err != nil {
		return nil, err
	}
	e.addObligation(body, ObligationInvariantPreserved, desc, NewBinaryExpr(AND, bookkeeping(body), goal), names)

	// Exit.
	exit := entry.Clone()
	if err := exit.Havoc(writes); err != nil {
		return nil, err
	}
	exit.AddConstraint(bookkeeping(exit))
	if err := e.assume(exit, inv); err != nil {
		return nil, err
	}
	it, _ = exit.Lookup(name)
	exit.AddConstraint(NewNotExpr(NewBinaryExpr(SLT, it.Value.(Expr), last)))
	exit.Undeclare(name)
	return exit, nil
}

// assume encodes p against state and adds it to the path condition.
func (e *Executor) assume(state *State, p ir.Bool) error {
	expr, err := e.assumeBool(state, p)
	if err != nil {
		return err
	}
	state.AddConstraint(expr)
	return nil
}

// guarded runs fn against a fork of state that assumes guard. Facts learned
// inside the fork are kept in state as implications of guard.
func (e *Executor) guarded(state *State, guard Expr, fn func(*State) error) error {
	child := state.Fork(guard)
	base := len(child.constraints)
	if err := fn(child); err != nil {
		return err
	}
	if added := child.constraints[base:]; len(added) > 0 {
		state.AddConstraint(NewImpliesExpr(guard, NewAndExpr(added...)))
	}
	return nil
}

// evalValue encodes v as a binding in the given state.
func (e *Executor) evalValue(state *State, v ir.Value) (Binding, error) {
	switch v := v.(type) {
	case ir.ExprVal:
		return e.evalExpr(state, v.Expr)
	case ir.BoolVal:
		return e.evalBool(state, v.Bool)
	case ir.VarValue:
		return e.evalVariable(state, v.Var)
	case ir.TupleValue:
		elems := make(Tuple, len(v.Elems))
		for i := range v.Elems {
			elem, err := e.evalValue(state, v.Elems[i])
			if err != nil {
				return nil, err
			}
			elems[i] = elem
		}
		return elems, nil
	case ir.ArrayValue:
		elems := make(Array, len(v.Elems))
		for i := range v.Elems {
			elem, err := e.evalValue(state, v.Elems[i])
			if err != nil {
				return nil, err
			} else if i > 0 && !sameType(bindingType(elems[0]), bindingType(elem)) {
				return nil, structuralf(ErrTypeMismatch, "array element %s", v.Elems[i])
			}
			elems[i] = elem
		}
		return elems, nil
	case ir.FunctionCall:
		return e.evalCall(state, v)
	case ir.Dereference:
		b, err := e.evalValue(state, v.Value)
		if err != nil {
			return nil, err
		}
		ref, ok := b.(Reference)
		if !ok {
			return nil, structuralf(ErrTypeMismatch, "dereference of non-reference %s", v.Value)
		}
		return e.load(state, ref.Name)
	case ir.Reference:
		return e.evalReference(state, v)
	case ir.UnitValue:
		return Unit{}, nil
	case ir.Ternary:
		cond, err := e.evalBool(state, v.Cond)
		if err != nil {
			return nil, err
		}
		var then, els Binding
		if err := e.guarded(state, cond, func(s *State) (err error) {
			then, err = e.evalValue(s, v.Then)
			return err
		}); err != nil {
			return nil, err
		}
		if err := e.guarded(state, NewNotExpr(cond), func(s *State) (err error) {
			els, err = e.evalValue(s, v.Else)
			return err
		}); err != nil {
			return nil, err
		}
		return IteBinding(cond, then, els)
	case ir.UnknownValue, nil:
		return nil, structuralf(ErrUnknownType, "value %v", v)
	default:
		return nil, fmt.Errorf("unexpected value type: %T", v)
	}
}

func (e *Executor) evalReference(state *State, v ir.Reference) (Binding, error) {
	var name string
	switch inner := v.Value.(type) {
	case ir.VarValue:
		n, ok := inner.Var.(ir.Named)
		if !ok {
			return nil, structuralf(ErrTypeMismatch, "reference to %s", inner.Var)
		}
		name = n.Name
	case ir.Dereference:
		vv, ok := inner.Value.(ir.VarValue)
		if !ok {
			return nil, structuralf(ErrTypeMismatch, "reference to %s", inner)
		}
		name = "*" + ir.VariableName(vv.Var)
	default:
		return nil, structuralf(ErrTypeMismatch, "reference to %s", v.Value)
	}

	target, err := state.Resolve(name)
	if err != nil {
		return nil, err
	}
	if tv, _ := state.Lookup(target); v.Mutable && !tv.Mutable {
		return nil, structuralf(ErrImmutableAssign, "mutable reference to %s", name)
	}
	return Reference{Name: target, Mutable: v.Mutable}, nil
}

// load returns the value of an initialized variable.
func (e *Executor) load(state *State, name string) (Binding, error) {
	name, err := state.Resolve(name)
	if err != nil {
		return nil, err
	}
	v, _ := state.Lookup(name)
	if v.Value == nil {
		return nil, structuralf(ErrUninitialized, "%s", name)
	}
	return v.Value, nil
}

// deref follows a reference to its target's value.
func (e *Executor) deref(state *State, b Binding) (Binding, error) {
	if ref, ok := b.(Reference); ok {
		return e.load(state, ref.Name)
	}
	return b, nil
}

func (e *Executor) evalVariable(state *State, v ir.Variable) (Binding, error) {
	switch v := v.(type) {
	case ir.Named:
		return e.load(state, v.Name)
	case ir.ArrayElem, ir.TupleElem:
		_, elems, index, err := e.evalElem(state, v)
		if err != nil {
			return nil, err
		}
		return Select(elems, index)
	case ir.Empty:
		return nil, structuralf(ErrUndefinedVariable, "read of _")
	default:
		return nil, fmt.Errorf("unexpected variable type: %T", v)
	}
}

// evalElem resolves an element access to its aggregate and index. A bounds
// obligation is recorded for the index.
func (e *Executor) evalElem(state *State, v ir.Variable) (name string, elems []Binding, index Expr, err error) {
	var indexValue ir.Value
	var tuple bool
	switch v := v.(type) {
	case ir.ArrayElem:
		name, indexValue = v.Name, v.Index
	case ir.TupleElem:
		name, indexValue, tuple = v.Name, v.Index, true
	}

	if name, err = state.Resolve(name); err != nil {
		return "", nil, nil, err
	}
	agg, err := e.load(state, name)
	if err != nil {
		return "", nil, nil, err
	}
	if agg, err = e.deref(state, agg); err != nil {
		return "", nil, nil, err
	} else if ref, ok := mustLookup(state, name).Value.(Reference); ok {
		name = ref.Name
	}

	switch agg := agg.(type) {
	case Array:
		if tuple {
			return "", nil, nil, structuralf(ErrTypeMismatch, "tuple access on array %s", name)
		}
		elems = agg
	case Tuple:
		if !tuple {
			return "", nil, nil, structuralf(ErrTypeMismatch, "array access on tuple %s", name)
		}
		elems = agg
	default:
		return "", nil, nil, structuralf(ErrTypeMismatch, "index into non-aggregate %s", name)
	}

	if index, err = e.evalInt(state, indexValue); err != nil {
		return "", nil, nil, err
	} else if tuple && !IsConstantExpr(index) {
		return "", nil, nil, structuralf(ErrTypeMismatch, "tuple index must be constant: %s", v)
	}

	goal := NewBinaryExpr(AND,
		NewBinaryExpr(SLE, NewConstantExpr32(0), index),
		NewBinaryExpr(SLT, index, NewConstantExpr32(int32(len(elems)))),
	)
	desc := fmt.Sprintf("0 <= %s < %d", indexValue, len(elems))
	e.addObligation(state, ObligationBounds, desc, goal, ir.ValueNames(ir.VarValue{Var: v}))
	return name, elems, index, nil
}

func mustLookup(state *State, name string) *Var {
	v, ok := state.Lookup(name)
	assert(ok, "variable not found: %s", name)
	return v
}

// evalInt encodes v as a 32-bit integer term.
func (e *Executor) evalInt(state *State, v ir.Value) (Expr, error) {
	if v, ok := v.(ir.ExprVal); ok {
		return e.evalExpr(state, v.Expr)
	}
	b, err := e.evalValue(state, v)
	if err != nil {
		return nil, err
	}
	return e.asExpr(state, b, Width32, v)
}

// asExpr returns b as a term of the given width, following references.
func (e *Executor) asExpr(state *State, b Binding, width uint, src fmt.Stringer) (Expr, error) {
	b, err := e.deref(state, b)
	if err != nil {
		return nil, err
	}
	expr, ok := b.(Expr)
	if !ok || ExprWidth(expr) != width {
		want := "i32"
		if width == WidthBool {
			want = "bool"
		}
		return nil, structuralf(ErrTypeMismatch, "%s: expected %s", src, want)
	}
	return expr, nil
}

// evalExpr encodes an integer expression. Division and remainder record an
// obligation that the divisor is non-zero.
func (e *Executor) evalExpr(state *State, expr ir.Expr) (Expr, error) {
	switch expr := expr.(type) {
	case ir.Number:
		if expr.Value < math.MinInt32 || expr.Value > math.MaxInt32 {
			return nil, structuralf(ErrTypeMismatch, "integer literal %d out of range", expr.Value)
		}
		return NewConstantExpr32(int32(expr.Value)), nil

	case ir.ValueExpr:
		b, err := e.evalValue(state, expr.Value)
		if err != nil {
			return nil, err
		}
		return e.asExpr(state, b, Width32, expr)

	case ir.Op:
		lhs, err := e.evalExpr(state, expr.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := e.evalExpr(state, expr.RHS)
		if err != nil {
			return nil, err
		}

		switch expr.Opcode {
		case ir.Add:
			return NewBinaryExpr(ADD, lhs, rhs), nil
		case ir.Sub:
			return NewBinaryExpr(SUB, lhs, rhs), nil
		case ir.Mul:
			return NewBinaryExpr(MUL, lhs, rhs), nil
		case ir.Div, ir.Rem:
			goal := NewNotExpr(NewBinaryExpr(EQ, rhs, NewConstantExpr32(0)))
			desc := fmt.Sprintf("%s != 0", expr.RHS)
			e.addObligation(state, ObligationDivision, desc, goal, ir.ValueNames(ir.ExprVal{Expr: expr.RHS}))
			if expr.Opcode == ir.Div {
				return NewBinaryExpr(SDIV, lhs, rhs), nil
			}
			return NewBinaryExpr(SREM, lhs, rhs), nil
		default:
			return nil, fmt.Errorf("unexpected opcode: %s", expr.Opcode)
		}

	default:
		return nil, fmt.Errorf("unexpected expression type: %T", expr)
	}
}

// evalBool encodes a predicate as a boolean term. The right side of a
// conjunction is evaluated assuming the left side holds, so a guard such as
// "y != 0 && x / y > 1" discharges its own division obligation.
func (e *Executor) evalBool(state *State, b ir.Bool) (Expr, error) {
	switch b := b.(type) {
	case ir.True:
		return NewBoolConstantExpr(true), nil
	case ir.False:
		return NewBoolConstantExpr(false), nil

	case ir.And:
		lhs, err := e.evalBool(state, b.LHS)
		if err != nil {
			return nil, err
		}
		var rhs Expr
		if err := e.guarded(state, lhs, func(s *State) (err error) {
			rhs, err = e.evalBool(s, b.RHS)
			return err
		}); err != nil {
			return nil, err
		}
		return NewBinaryExpr(AND, lhs, rhs), nil

	case ir.Or:
		lhs, err := e.evalBool(state, b.LHS)
		if err != nil {
			return nil, err
		}
		var rhs Expr
		if err := e.guarded(state, NewNotExpr(lhs), func(s *State) (err error) {
			rhs, err = e.evalBool(s, b.RHS)
			return err
		}); err != nil {
			return nil, err
		}
		return NewBinaryExpr(OR, lhs, rhs), nil

	case ir.Not:
		expr, err := e.evalBool(state, b.Bool)
		if err != nil {
			return nil, err
		}
		return NewNotExpr(expr), nil

	case ir.BoolValue:
		v, err := e.evalValue(state, b.Value)
		if err != nil {
			return nil, err
		}
		return e.asExpr(state, v, WidthBool, b)

	case ir.Compare:
		lhs, err := e.evalExpr(state, b.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := e.evalExpr(state, b.RHS)
		if err != nil {
			return nil, err
		}
		switch b.Op {
		case ir.Equal:
			return NewBinaryExpr(EQ, lhs, rhs), nil
		case ir.GreaterThan:
			return NewBinaryExpr(SGT, lhs, rhs), nil
		case ir.LowerThan:
			return NewBinaryExpr(SLT, lhs, rhs), nil
		case ir.GreaterEqual:
			return NewBinaryExpr(SGE, lhs, rhs), nil
		case ir.LowerEqual:
			return NewBinaryExpr(SLE, lhs, rhs), nil
		default:
			return nil, fmt.Errorf("unexpected compare op: %s", b.Op)
		}

	case ir.ValueEqual:
		lhs, err := e.evalValue(state, b.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := e.evalValue(state, b.RHS)
		if err != nil {
			return nil, err
		}
		if lhs, err = e.deref(state, lhs); err != nil {
			return nil, err
		} else if rhs, err = e.deref(state, rhs); err != nil {
			return nil, err
		}
		expr, err := EqualBinding(lhs, rhs)
		if err != nil {
			return nil, structuralf(err, "%s", b)
		}
		return expr, nil

	case ir.ForAll:
		return e.evalQuantifier(state, false, b.Var, b.Body)
	case ir.Exists:
		return e.evalQuantifier(state, true, b.Var, b.Body)

	default:
		return nil, fmt.Errorf("unexpected predicate type: %T", b)
	}
}

// evalQuantifier binds v to a fresh i32 symbol for the body. Obligations
// inside the body cannot be stated outside of it since the symbol is bound,
// so they are conjoined with the body.
func (e *Executor) evalQuantifier(state *State, exists bool, v ir.Variable, body ir.Bool) (Expr, error) {
	name := ir.VariableName(v)
	if name == "" {
		return nil, structuralf(ErrTypeMismatch, "quantified variable %s", v)
	}
	sym := e.fresh(name, Width32)

	inner := state.Clone()
	inner.Scope(&Var{Name: name, Type: ir.I32Type{}, Value: sym})

	sc := &sideConditions{base: len(inner.constraints)}
	e.sides = append(e.sides, sc)
	defer func() { e.sides = e.sides[:len(e.sides)-1] }()

	expr, err := e.evalBool(inner, body)
	if err != nil {
		return nil, err
	}
	return NewQuantifierExpr(exists, sym, NewAndExpr(append(sc.exprs, expr)...)), nil
}

// evalCall encodes a call modularly. The callee's precondition becomes an
// obligation, its result is a fresh term satisfying its postcondition and
// the targets of mutable reference arguments are havocked.
func (e *Executor) evalCall(state *State, call ir.FunctionCall) (Binding, error) {
	callee := e.prog.Function(call.Name)
	if callee == nil {
		return nil, structuralf(ErrUnknownFunction, "%s", call.Name)
	}
	params := flattenBindings(callee.Input)
	if len(params) != len(call.Args) {
		return nil, structuralf(ErrTypeMismatch, "%s: expected %d arguments, got %d", call.Name, len(params), len(call.Args))
	}

	args := make([]Binding, len(call.Args))
	for i := range call.Args {
		arg, err := e.evalValue(state, call.Args[i])
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}

	// Bind parameters in a scope of their own that shares the path condition.
	cs := state.Clone()
	cs.vars = NewState(e).vars

	type mutArg struct{ param, target string }
	var muts []mutArg
	for i, p := range params {
		name, typ := paramOf(p)
		if ref, ok := typ.(ir.ReferenceType); ok {
			r, ok := args[i].(Reference)
			if !ok {
				return nil, structuralf(ErrTypeMismatch, "%s: argument %d must be a reference", call.Name, i)
			} else if ref.Mutable && !r.Mutable {
				return nil, structuralf(ErrTypeMismatch, "%s: argument %d must be a mutable reference", call.Name, i)
			}
			pointee, err := e.load(state, r.Name)
			if err != nil {
				return nil, err
			}
			cs.Declare(&Var{Name: "*" + name, Type: ref.Elem, Mutable: ref.Mutable, Value: pointee})
			cs.Declare(&Var{Name: name, Type: typ, Value: Reference{Name: "*" + name, Mutable: ref.Mutable}})
			cs.Declare(&Var{Name: name + ir.OldSuffix, Type: ref.Elem, Value: pointee})
			if ref.Mutable {
				muts = append(muts, mutArg{param: "*" + name, target: r.Name})
			}
			continue
		}

		if !sameType(typ, bindingType(args[i])) {
			return nil, structuralf(ErrTypeMismatch, "%s: argument %d: expected %s, got %s", call.Name, i, typ, bindingType(args[i]))
		}
		cs.Declare(&Var{Name: name, Type: typ, Value: args[i]})
		cs.Declare(&Var{Name: name + ir.OldSuffix, Type: typ, Value: args[i]})
	}

	// Precondition must hold at the call site.
	pre := callee.Precondition
	if pre == nil {
		pre = ir.True{}
	}
	goal, err := e.assumeBool(cs, pre)
	if err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("%s: %s", call.Name, pre)
	e.addObligation(cs, ObligationCallPrecondition, desc, goal, nil)
	state.AddConstraint(goal)

	// Callee may modify anything reachable through a mutable reference.
	for _, m := range muts {
		target := mustLookup(state, m.target)
		typ := target.Type
		if ir.IsUnknown(typ) {
			typ = bindingType(target.Value)
		}
		value, err := newBinding(typ, m.target, e.fresh)
		if err != nil {
			return nil, err
		}
		if err := state.Set(m.target, value); err != nil {
			return nil, err
		} else if err := cs.Set(m.param, value); err != nil {
			return nil, err
		}
	}

	result, err := newBinding(callee.Output, call.Name+"()", e.fresh)
	if err != nil {
		return nil, err
	} else if result == nil {
		return nil, structuralf(ErrTypeMismatch, "%s: reference return type", call.Name)
	}
	cs.Scope(&Var{Name: ir.ReturnName, Type: callee.Output, Value: result})

	post, err := e.assumeBool(cs, callee.Postcondition)
	if err != nil {
		return nil, err
	}
	state.AddConstraint(post)
	return result, nil
}

// paramOf returns the name and type of a parameter binding.
func paramOf(b ir.Binding) (string, ir.Type) {
	switch b := b.(type) {
	case ir.Declaration:
		return ir.VariableName(b.Var), b.Type
	case ir.Let:
		return ir.VariableName(b.Var), b.Type
	default:
		return "", ir.UnknownType{}
	}
}
