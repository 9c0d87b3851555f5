package hoare

import (
	"strings"

	"github.com/benbjohnson/hoare/ir"
)

// Validate checks every function of prog for structural errors. The returned
// slice is parallel to prog.Functions with a nil entry for valid functions.
func Validate(prog *ir.Program) []error {
	errs := make([]error, len(prog.Functions))
	for i, fn := range prog.Functions {
		errs[i] = ValidateFunction(prog, fn)
	}
	return errs
}

// ValidateFunction checks fn for errors that can be found without a solver:
// misplaced invariants, binding discipline, undefined names, unknown callees
// and recursion. Returns a *StructuralError.
func ValidateFunction(prog *ir.Program, fn *ir.Function) error {
	if err := validateFunction(prog, fn); err != nil {
		return withFunction(err, fn.Name)
	}
	return nil
}

func validateFunction(prog *ir.Program, fn *ir.Function) error {
	n := 0
	for _, other := range prog.Functions {
		if other.Name == fn.Name {
			n++
		}
	}
	if n > 1 {
		return structuralf(ErrDuplicateFunction, "%s", fn.Name)
	} else if isRecursive(prog, fn.Name) {
		return structuralf(ErrRecursiveCall, "%s", fn.Name)
	}

	v := &validator{prog: prog}
	v.push()

	for _, b := range flattenBindings(fn.Input) {
		name, typ := paramOf(b)
		if name == "" {
			return structuralf(ErrTypeMismatch, "input %s must be a named variable", b)
		}
		var mutable bool
		switch b := b.(type) {
		case ir.Declaration:
			mutable = b.Mutable
		case ir.Let:
			mutable = b.Mutable
		}
		info := &varInfo{mutable: mutable, init: true, typ: typ}
		if ref, ok := typ.(ir.ReferenceType); ok {
			info.mutRef = ref.Mutable
		}
		if err := v.declare(name, info); err != nil {
			return err
		}
		v.scopes[0][name+ir.OldSuffix] = &varInfo{init: true, typ: typ}
	}

	if fn.Precondition != nil {
		if err := v.checkBool(fn.Precondition); err != nil {
			return structuralf(err, "precondition")
		}
	}

	if err := v.commands(fn.Content); err != nil {
		return err
	}

	if fn.ReturnValue != nil {
		if err := v.checkValue(fn.ReturnValue); err != nil {
			return structuralf(err, "return value")
		}
	}

	if fn.Postcondition != nil {
		v.scopes[0][ir.ReturnName] = &varInfo{init: true, typ: fn.Output}
		if err := v.checkBool(fn.Postcondition); err != nil {
			return structuralf(err, "postcondition")
		}
	}
	return nil
}

// varInfo tracks the binding discipline of a variable in scope.
type varInfo struct {
	typ     ir.Type
	mutable bool
	mutRef  bool // holds a mutable reference
	init    bool // may have been assigned
	depth   int  // loop depth at declaration
}

type validator struct {
	prog   *ir.Program
	scopes []map[string]*varInfo
	loop   int
}

func (v *validator) push() { v.scopes = append(v.scopes, make(map[string]*varInfo)) }
func (v *validator) pop()  { v.scopes = v.scopes[:len(v.scopes)-1] }

func (v *validator) lookup(name string) *varInfo {
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if info := v.scopes[i][name]; info != nil {
			return info
		}
	}
	return nil
}

func (v *validator) declare(name string, info *varInfo) error {
	if name == ir.ReturnName || strings.HasSuffix(name, ir.OldSuffix) || strings.HasPrefix(name, "*") {
		return structuralf(ErrReservedName, "%s", name)
	} else if v.lookup(name) != nil {
		return structuralf(ErrShadowed, "%s", name)
	}
	info.depth = v.loop
	v.scopes[len(v.scopes)-1][name] = info
	return nil
}

// snapshot returns the initialization flag of every variable in scope.
func (v *validator) snapshot() map[*varInfo]bool {
	m := make(map[*varInfo]bool)
	for _, scope := range v.scopes {
		for _, info := range scope {
			m[info] = info.init
		}
	}
	return m
}

func (v *validator) restore(m map[*varInfo]bool) {
	for info, init := range m {
		info.init = init
	}
}

func (v *validator) commands(cmds []ir.Command) error {
	var inv *ir.LoopInvariant
	for _, cmd := range cmds {
		switch cmd := cmd.(type) {
		case ir.LoopInvariant:
			if inv != nil {
				return structuralf(ErrDanglingInvariant, "%s", inv)
			}
			if err := v.checkBool(cmd.Bool); err != nil {
				return structuralf(err, "%s", cmd)
			}
			inv = &cmd
			continue
		case ir.While:
			if inv == nil {
				return structuralf(ErrMissingInvariant, "%s", cmd)
			}
		case ir.ForRange:
		default:
			if inv != nil {
				return structuralf(ErrDanglingInvariant, "%s", inv)
			}
		}
		inv = nil

		if err := v.command(cmd); err != nil {
			return err
		}
	}
	if inv != nil {
		return structuralf(ErrDanglingInvariant, "%s", inv)
	}
	return nil
}

func (v *validator) command(cmd ir.Command) error {
	switch cmd := cmd.(type) {
	case ir.Declaration:
		return v.bind(cmd.Var, &varInfo{typ: cmd.Type, mutable: cmd.Mutable, mutRef: isMutRefType(cmd.Type)})

	case ir.Let:
		if err := v.checkValue(cmd.Value); err != nil {
			return structuralf(err, "%s", cmd)
		}
		info := &varInfo{typ: cmd.Type, mutable: cmd.Mutable, init: true, mutRef: isMutRefType(cmd.Type)}
		if ref, ok := cmd.Value.(ir.Reference); ok && ref.Mutable {
			info.mutRef = true
		}
		return v.bind(cmd.Var, info)

	case ir.TupleBinding:
		for _, sub := range cmd.Commands {
			if _, ok := sub.(ir.Binding); !ok {
				return structuralf(ErrTypeMismatch, "destructuring binding contains %s", sub)
			}
			if err := v.command(sub); err != nil {
				return err
			}
		}
		return nil

	case ir.Assign:
		if err := v.checkValue(cmd.Value); err != nil {
			return structuralf(err, "%s", cmd)
		}
		return v.assign(cmd.Target)

	case ir.TupleAssign:
		for _, a := range cmd.Assignments {
			if err := v.command(a); err != nil {
				return err
			}
		}
		return nil

	case ir.Assert:
		if err := v.checkBool(cmd.Bool); err != nil {
			return structuralf(err, "%s", cmd)
		}
		return nil

	case ir.Assume:
		if err := v.checkBool(cmd.Bool); err != nil {
			return structuralf(err, "%s", cmd)
		}
		return nil

	case ir.If:
		return v.ifBlock(cmd)

	case ir.While:
		if err := v.checkBool(cmd.Cond); err != nil {
			return structuralf(err, "%s", cmd)
		}
		return v.loopBody(nil, cmd.Body)

	case ir.ForRange:
		if err := v.checkValue(cmd.First); err != nil {
			return structuralf(err, "%s", cmd)
		} else if err := v.checkValue(cmd.Last); err != nil {
			return structuralf(err, "%s", cmd)
		}
		switch cmd.Iter.(type) {
		case ir.Named, ir.Empty:
		default:
			return structuralf(ErrTypeMismatch, "loop iterator %s", cmd.Iter)
		}
		return v.loopBody(cmd.Iter, cmd.Body)

	case ir.Noop:
		return nil

	default:
		return structuralf(ErrTypeMismatch, "unexpected command %T", cmd)
	}
}

func isMutRefType(t ir.Type) bool {
	ref, ok := t.(ir.ReferenceType)
	return ok && ref.Mutable
}

// bind declares the variable introduced by a binding.
func (v *validator) bind(target ir.Variable, info *varInfo) error {
	switch target := target.(type) {
	case ir.Named:
		return v.declare(target.Name, info)
	case ir.Empty:
		return nil
	default:
		return structuralf(ErrTypeMismatch, "cannot bind %s", target)
	}
}

// assign checks that target may be written at this point.
func (v *validator) assign(target ir.Variable) error {
	var name string
	var elem bool
	switch target := target.(type) {
	case ir.Empty:
		return nil
	case ir.Named:
		name = target.Name
	case ir.ArrayElem:
		if err := v.checkValue(target.Index); err != nil {
			return err
		}
		name, elem = target.Name, true
	case ir.TupleElem:
		if err := v.checkValue(target.Index); err != nil {
			return err
		}
		name, elem = target.Name, true
	}

	// Writes through a reference need a mutable reference.
	if strings.HasPrefix(name, "*") {
		base := v.lookup(strings.TrimPrefix(name, "*"))
		if base == nil {
			return structuralf(ErrUndefinedVariable, "%s", name)
		} else if !base.mutRef {
			return structuralf(ErrImmutableAssign, "%s", name)
		}
		return nil
	}

	info := v.lookup(name)
	if info == nil {
		return structuralf(ErrUndefinedVariable, "%s", name)
	} else if info.mutable || (elem && info.mutRef) {
		info.init = true
		return nil
	}

	// An immutable variable may be assigned once, outside any loop entered
	// after its declaration.
	if elem || info.init || v.loop > info.depth {
		return structuralf(ErrImmutableAssign, "%s", name)
	}
	info.init = true
	return nil
}

func (v *validator) ifBlock(cmd ir.If) error {
	if len(cmd.Conds) != len(cmd.Blocks) {
		return structuralf(ErrIfArity, "%d conditions, %d blocks", len(cmd.Conds), len(cmd.Blocks))
	}
	for _, c := range cmd.Conds {
		if err := v.checkBool(c); err != nil {
			return structuralf(err, "%s", cmd)
		}
	}

	entry := v.snapshot()
	joined := make(map[*varInfo]bool, len(entry))
	bodies := make([][]ir.Command, 0, len(cmd.Blocks)+1)
	bodies = append(append(bodies, cmd.Blocks...), cmd.Else)
	for _, body := range bodies {
		v.restore(entry)
		v.push()
		err := v.commands(body)
		v.pop()
		if err != nil {
			return err
		}
		for info := range entry {
			joined[info] = joined[info] || info.init
		}
	}
	v.restore(joined)
	return nil
}

func (v *validator) loopBody(iter ir.Variable, body []ir.Command) error {
	v.loop++
	v.push()
	defer func() {
		v.pop()
		v.loop--
	}()

	if iter != nil {
		if err := v.bind(iter, &varInfo{typ: ir.I32Type{}, init: true}); err != nil {
			return err
		}
	}
	return v.commands(body)
}

func (v *validator) checkBool(b ir.Bool) error {
	if err := v.checkNames(ir.Names(b)); err != nil {
		return err
	}
	return v.checkCalls(ir.Calls(b))
}

func (v *validator) checkValue(val ir.Value) error {
	if _, ok := val.(ir.UnknownValue); ok {
		return structuralf(ErrUnknownType, "value %s", val)
	}
	if err := v.checkNames(ir.ValueNames(val)); err != nil {
		return err
	}
	return v.checkCalls(ir.ValueCalls(val))
}

func (v *validator) checkNames(names []string) error {
	for _, name := range names {
		if v.lookup(name) != nil {
			continue
		} else if strings.HasPrefix(name, "*") && v.lookup(strings.TrimPrefix(name, "*")) != nil {
			continue
		}
		return structuralf(ErrUndefinedVariable, "%s", name)
	}
	return nil
}

func (v *validator) checkCalls(calls []ir.FunctionCall) error {
	for _, call := range calls {
		callee := v.prog.Function(call.Name)
		if callee == nil {
			return structuralf(ErrUnknownFunction, "%s", call.Name)
		} else if n := len(flattenBindings(callee.Input)); n != len(call.Args) {
			return structuralf(ErrTypeMismatch, "%s: expected %d arguments, got %d", call.Name, n, len(call.Args))
		}
	}
	return nil
}

// isRecursive returns true if name can reach itself in the call graph.
func isRecursive(prog *ir.Program, name string) bool {
	seen := make(map[string]bool)
	var visit func(string) bool
	visit = func(caller string) bool {
		fn := prog.Function(caller)
		if fn == nil {
			return false
		}
		for _, callee := range functionCallees(fn) {
			if callee == name {
				return true
			} else if !seen[callee] {
				seen[callee] = true
				if visit(callee) {
					return true
				}
			}
		}
		return false
	}
	return visit(name)
}

// functionCallees returns the names of functions called by fn, including
// calls in its contract.
func functionCallees(fn *ir.Function) []string {
	var a []string
	add := func(calls []ir.FunctionCall) {
		for _, call := range calls {
			a = append(a, call.Name)
		}
	}

	for _, b := range []ir.Bool{fn.Precondition, fn.Postcondition} {
		if b != nil {
			add(ir.Calls(b))
		}
	}
	if fn.ReturnValue != nil {
		add(ir.ValueCalls(fn.ReturnValue))
	}

	var walk func(cmds []ir.Command)
	walk = func(cmds []ir.Command) {
		for _, cmd := range cmds {
			switch cmd := cmd.(type) {
			case ir.Let:
				add(ir.ValueCalls(cmd.Value))
			case ir.TupleBinding:
				walk(cmd.Commands)
			case ir.Assign:
				add(ir.ValueCalls(cmd.Value))
			case ir.TupleAssign:
				for _, a := range cmd.Assignments {
					walk([]ir.Command{a})
				}
			case ir.Assert:
				add(ir.Calls(cmd.Bool))
			case ir.Assume:
				add(ir.Calls(cmd.Bool))
			case ir.LoopInvariant:
				add(ir.Calls(cmd.Bool))
			case ir.If:
				for _, c := range cmd.Conds {
					add(ir.Calls(c))
				}
				for _, blk := range cmd.Blocks {
					walk(blk)
				}
				walk(cmd.Else)
			case ir.While:
				add(ir.Calls(cmd.Cond))
				walk(cmd.Body)
			case ir.ForRange:
				add(ir.ValueCalls(cmd.First))
				add(ir.ValueCalls(cmd.Last))
				walk(cmd.Body)
			}
		}
	}
	walk(fn.Content)
	return a
}
