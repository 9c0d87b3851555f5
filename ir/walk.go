package ir

import (
	"sort"
)

// WriteSet returns the sorted names of variables declared outside cmds that
// cmds may modify. This includes targets of assignments and variables passed
// by mutable reference. Names bound inside cmds are excluded.
func WriteSet(cmds []Command) []string {
	w := &writeSet{written: make(map[string]struct{}), declared: make(map[string]struct{})}
	w.commands(cmds)

	a := make([]string, 0, len(w.written))
	for name := range w.written {
		if _, ok := w.declared[name]; !ok {
			a = append(a, name)
		}
	}
	sort.Strings(a)
	return a
}

type writeSet struct {
	written  map[string]struct{}
	declared map[string]struct{}
}

func (w *writeSet) commands(cmds []Command) {
	for _, cmd := range cmds {
		w.command(cmd)
	}
}

func (w *writeSet) command(cmd Command) {
	switch cmd := cmd.(type) {
	case Declaration:
		w.declare(cmd.Var)
	case Let:
		w.declare(cmd.Var)
		w.value(cmd.Value)
	case TupleBinding:
		w.commands(cmd.Commands)
	case Assign:
		if name := VariableName(cmd.Target); name != "" {
			w.written[name] = struct{}{}
		}
		w.variable(cmd.Target)
		w.value(cmd.Value)
	case TupleAssign:
		for _, a := range cmd.Assignments {
			w.command(a)
		}
	case Assert:
		w.boolean(cmd.Bool)
	case Assume:
		w.boolean(cmd.Bool)
	case LoopInvariant:
		w.boolean(cmd.Bool)
	case If:
		for _, c := range cmd.Conds {
			w.boolean(c)
		}
		for _, blk := range cmd.Blocks {
			w.commands(blk)
		}
		w.commands(cmd.Else)
	case While:
		w.boolean(cmd.Cond)
		w.commands(cmd.Body)
	case ForRange:
		w.declare(cmd.Iter)
		w.value(cmd.First)
		w.value(cmd.Last)
		w.commands(cmd.Body)
	}
}

func (w *writeSet) declare(v Variable) {
	if name := VariableName(v); name != "" {
		w.declared[name] = struct{}{}
	}
}

func (w *writeSet) variable(v Variable) {
	switch v := v.(type) {
	case ArrayElem:
		w.value(v.Index)
	case TupleElem:
		w.value(v.Index)
	}
}

func (w *writeSet) value(v Value) {
	switch v := v.(type) {
	case ExprVal:
		w.expr(v.Expr)
	case BoolVal:
		w.boolean(v.Bool)
	case VarValue:
		w.variable(v.Var)
	case TupleValue:
		for _, e := range v.Elems {
			w.value(e)
		}
	case ArrayValue:
		for _, e := range v.Elems {
			w.value(e)
		}
	case FunctionCall:
		for _, arg := range v.Args {
			w.value(arg)
		}
	case Dereference:
		w.value(v.Value)
	case Reference:
		if vv, ok := v.Value.(VarValue); ok && v.Mutable {
			if name := VariableName(vv.Var); name != "" {
				w.written[name] = struct{}{}
			}
		}
		w.value(v.Value)
	case Ternary:
		w.boolean(v.Cond)
		w.value(v.Then)
		w.value(v.Else)
	}
}

func (w *writeSet) expr(e Expr) {
	switch e := e.(type) {
	case ValueExpr:
		w.value(e.Value)
	case Op:
		w.expr(e.LHS)
		w.expr(e.RHS)
	}
}

func (w *writeSet) boolean(b Bool) {
	switch b := b.(type) {
	case And:
		w.boolean(b.LHS)
		w.boolean(b.RHS)
	case Or:
		w.boolean(b.LHS)
		w.boolean(b.RHS)
	case Not:
		w.boolean(b.Bool)
	case BoolValue:
		w.value(b.Value)
	case Compare:
		w.expr(b.LHS)
		w.expr(b.RHS)
	case ValueEqual:
		w.value(b.LHS)
		w.value(b.RHS)
	case ForAll:
		w.boolean(b.Body)
	case Exists:
		w.boolean(b.Body)
	}
}

// Names returns the sorted names of free variables referenced by b.
// Variables bound by quantifiers inside b are excluded.
func Names(b Bool) []string {
	n := &names{m: make(map[string]struct{})}
	n.boolean(b, nil)
	return n.sorted()
}

// ValueNames returns the sorted names of variables referenced by v.
func ValueNames(v Value) []string {
	n := &names{m: make(map[string]struct{})}
	n.value(v, nil)
	return n.sorted()
}

// Calls returns the function calls in b in order of appearance.
func Calls(b Bool) []FunctionCall {
	n := &names{m: make(map[string]struct{})}
	n.boolean(b, nil)
	return n.calls
}

// ValueCalls returns the function calls in v in order of appearance.
func ValueCalls(v Value) []FunctionCall {
	n := &names{m: make(map[string]struct{})}
	n.value(v, nil)
	return n.calls
}

type names struct {
	m     map[string]struct{}
	calls []FunctionCall
}

func (n *names) sorted() []string {
	a := make([]string, 0, len(n.m))
	for name := range n.m {
		a = append(a, name)
	}
	sort.Strings(a)
	return a
}

func (n *names) add(name string, bound []string) {
	for _, b := range bound {
		if b == name {
			return
		}
	}
	if name != "" {
		n.m[name] = struct{}{}
	}
}

func (n *names) variable(v Variable, bound []string) {
	n.add(VariableName(v), bound)
	switch v := v.(type) {
	case ArrayElem:
		n.value(v.Index, bound)
	case TupleElem:
		n.value(v.Index, bound)
	}
}

func (n *names) value(v Value, bound []string) {
	switch v := v.(type) {
	case ExprVal:
		n.expr(v.Expr, bound)
	case BoolVal:
		n.boolean(v.Bool, bound)
	case VarValue:
		n.variable(v.Var, bound)
	case TupleValue:
		for _, e := range v.Elems {
			n.value(e, bound)
		}
	case ArrayValue:
		for _, e := range v.Elems {
			n.value(e, bound)
		}
	case FunctionCall:
		n.calls = append(n.calls, v)
		for _, arg := range v.Args {
			n.value(arg, bound)
		}
	case Dereference:
		n.value(v.Value, bound)
	case Reference:
		n.value(v.Value, bound)
	case Ternary:
		n.boolean(v.Cond, bound)
		n.value(v.Then, bound)
		n.value(v.Else, bound)
	}
}

func (n *names) expr(e Expr, bound []string) {
	switch e := e.(type) {
	case ValueExpr:
		n.value(e.Value, bound)
	case Op:
		n.expr(e.LHS, bound)
		n.expr(e.RHS, bound)
	}
}

func (n *names) boolean(b Bool, bound []string) {
	switch b := b.(type) {
	case And:
		n.boolean(b.LHS, bound)
		n.boolean(b.RHS, bound)
	case Or:
		n.boolean(b.LHS, bound)
		n.boolean(b.RHS, bound)
	case Not:
		n.boolean(b.Bool, bound)
	case BoolValue:
		n.value(b.Value, bound)
	case Compare:
		n.expr(b.LHS, bound)
		n.expr(b.RHS, bound)
	case ValueEqual:
		n.value(b.LHS, bound)
		n.value(b.RHS, bound)
	case ForAll:
		n.boolean(b.Body, append(bound[:len(bound):len(bound)], VariableName(b.Var)))
	case Exists:
		n.boolean(b.Body, append(bound[:len(bound):len(bound)], VariableName(b.Var)))
	}
}
