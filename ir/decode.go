package ir

import (
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Decode reads a program document from r.
//
// The document is YAML or JSON. Variants use external tagging: a unit variant
// is a bare string ("I32", "Noop") and any other variant is a single-key
// mapping from the variant name to its payload ({"Named": "x"},
// {"Op": [lhs, "Add", rhs]}). Predicates, values and expressions may instead
// be written as contract text, see ParseBool.
func Decode(r io.Reader) (*Program, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err == io.EOF {
		return &Program{}, nil
	} else if err != nil {
		return nil, err
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	return decodeProgram(root)
}

// DecodeError reports a malformed document node.
type DecodeError struct {
	Line int
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func errorf(n *yaml.Node, format string, args ...interface{}) error {
	return &DecodeError{Line: n.Line, Msg: fmt.Sprintf(format, args...)}
}

func decodeProgram(n *yaml.Node) (*Program, error) {
	fields, err := mapping(n)
	if err != nil {
		return nil, err
	}
	prog := &Program{}
	content, ok := fields["content"]
	if !ok {
		return prog, nil
	}
	items, err := sequence(content)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		fn, err := decodeFunction(item)
		if err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, fn)
	}
	return prog, nil
}

func decodeFunction(n *yaml.Node) (*Function, error) {
	fields, err := mapping(n)
	if err != nil {
		return nil, err
	}

	fn := &Function{
		Output:        UnitType{},
		Precondition:  True{},
		Postcondition: True{},
		ReturnValue:   UnitValue{},
	}
	if v, ok := fields["name"]; !ok {
		return nil, errorf(n, "function name required")
	} else if fn.Name, err = scalar(v); err != nil {
		return nil, err
	}
	if v, ok := fields["content"]; ok {
		if fn.Content, err = decodeCommands(v); err != nil {
			return nil, err
		}
	}
	if v, ok := fields["input"]; ok {
		items, err := sequence(v)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			b, err := decodeBinding(item)
			if err != nil {
				return nil, err
			}
			fn.Input = append(fn.Input, b)
		}
	}
	if v, ok := fields["output"]; ok {
		if fn.Output, err = decodeType(v); err != nil {
			return nil, err
		}
	}
	if v, ok := fields["precondition"]; ok {
		if fn.Precondition, err = decodeBool(v); err != nil {
			return nil, err
		}
	}
	if v, ok := fields["postcondition"]; ok {
		if fn.Postcondition, err = decodeBool(v); err != nil {
			return nil, err
		}
	}
	if v, ok := fields["return_value"]; ok {
		if fn.ReturnValue, err = decodeValue(v); err != nil {
			return nil, err
		}
	}
	return fn, nil
}

func decodeType(n *yaml.Node) (Type, error) {
	tag, payload, err := tagged(n)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Unit":
		return UnitType{}, nil
	case "Bool":
		return BoolType{}, nil
	case "I32":
		return I32Type{}, nil
	case "Unknown":
		return UnknownType{}, nil
	case "Tuple":
		items, err := sequence(payload)
		if err != nil {
			return nil, err
		}
		t := TupleType{}
		for _, item := range items {
			elem, err := decodeType(item)
			if err != nil {
				return nil, err
			}
			t.Elems = append(t.Elems, elem)
		}
		return t, nil
	case "Array":
		items, err := tuple(payload, 2)
		if err != nil {
			return nil, err
		}
		elem, err := decodeType(items[0])
		if err != nil {
			return nil, err
		}
		n, err := integer(items[1])
		if err != nil {
			return nil, err
		}
		return ArrayType{Elem: elem, Len: int(n)}, nil
	case "Reference", "ReferenceMutable":
		elem, err := decodeType(payload)
		if err != nil {
			return nil, err
		}
		return ReferenceType{Elem: elem, Mutable: tag == "ReferenceMutable"}, nil
	default:
		return nil, errorf(n, "unknown type %q", tag)
	}
}

func decodeExpr(n *yaml.Node) (Expr, error) {
	if n == nil {
		return nil, &DecodeError{Msg: "missing value"}
	}
	if n.Kind == yaml.ScalarNode {
		v, err := ParseValue(n.Value)
		if err != nil {
			return nil, errorf(n, "%s", err)
		}
		if e, ok := v.(ExprVal); ok {
			return e.Expr, nil
		}
		return ValueExpr{Value: v}, nil
	}

	tag, payload, err := tagged(n)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Number":
		v, err := integer(payload)
		if err != nil {
			return nil, err
		}
		return Number{Value: v}, nil
	case "Value":
		v, err := decodeValue(payload)
		if err != nil {
			return nil, err
		}
		return ValueExpr{Value: v}, nil
	case "Op":
		items, err := tuple(payload, 3)
		if err != nil {
			return nil, err
		}
		lhs, err := decodeExpr(items[0])
		if err != nil {
			return nil, err
		}
		opcode, err := decodeOpcode(items[1])
		if err != nil {
			return nil, err
		}
		rhs, err := decodeExpr(items[2])
		if err != nil {
			return nil, err
		}
		return Op{LHS: lhs, Opcode: opcode, RHS: rhs}, nil
	default:
		return nil, errorf(n, "unknown expression %q", tag)
	}
}

func decodeOpcode(n *yaml.Node) (Opcode, error) {
	s, err := scalar(n)
	if err != nil {
		return 0, err
	}
	switch s {
	case "Mul":
		return Mul, nil
	case "Div":
		return Div, nil
	case "Add":
		return Add, nil
	case "Sub":
		return Sub, nil
	case "Rem":
		return Rem, nil
	default:
		return 0, errorf(n, "unknown opcode %q", s)
	}
}

var compareTags = map[string]CompareOp{
	"Equal":        Equal,
	"GreaterThan":  GreaterThan,
	"LowerThan":    LowerThan,
	"GreaterEqual": GreaterEqual,
	"LowerEqual":   LowerEqual,
}

func decodeBool(n *yaml.Node) (Bool, error) {
	if n == nil {
		return nil, &DecodeError{Msg: "missing value"}
	}
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "True":
			return True{}, nil
		case "False":
			return False{}, nil
		}
		b, err := ParseBool(n.Value)
		if err != nil {
			return nil, errorf(n, "%s", err)
		}
		return b, nil
	}

	tag, payload, err := tagged(n)
	if err != nil {
		return nil, err
	}
	if op, ok := compareTags[tag]; ok {
		items, err := tuple(payload, 2)
		if err != nil {
			return nil, err
		}
		lhs, err := decodeExpr(items[0])
		if err != nil {
			return nil, err
		}
		rhs, err := decodeExpr(items[1])
		if err != nil {
			return nil, err
		}
		return Compare{Op: op, LHS: lhs, RHS: rhs}, nil
	}

	switch tag {
	case "And", "Or":
		items, err := tuple(payload, 2)
		if err != nil {
			return nil, err
		}
		lhs, err := decodeBool(items[0])
		if err != nil {
			return nil, err
		}
		rhs, err := decodeBool(items[1])
		if err != nil {
			return nil, err
		}
		if tag == "And" {
			return And{LHS: lhs, RHS: rhs}, nil
		}
		return Or{LHS: lhs, RHS: rhs}, nil
	case "Not":
		b, err := decodeBool(payload)
		if err != nil {
			return nil, err
		}
		return Not{Bool: b}, nil
	case "Value":
		v, err := decodeValue(payload)
		if err != nil {
			return nil, err
		}
		return BoolValue{Value: v}, nil
	case "ValueEqual":
		items, err := tuple(payload, 2)
		if err != nil {
			return nil, err
		}
		lhs, err := decodeValue(items[0])
		if err != nil {
			return nil, err
		}
		rhs, err := decodeValue(items[1])
		if err != nil {
			return nil, err
		}
		return ValueEqual{LHS: lhs, RHS: rhs}, nil
	case "ForAll", "Exists":
		items, err := tuple(payload, 2)
		if err != nil {
			return nil, err
		}
		v, err := decodeVariable(items[0])
		if err != nil {
			return nil, err
		}
		body, err := decodeBool(items[1])
		if err != nil {
			return nil, err
		}
		if tag == "ForAll" {
			return ForAll{Var: v, Body: body}, nil
		}
		return Exists{Var: v, Body: body}, nil
	default:
		return nil, errorf(n, "unknown predicate %q", tag)
	}
}

func decodeValue(n *yaml.Node) (Value, error) {
	if n == nil {
		return nil, &DecodeError{Msg: "missing value"}
	}
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "Unit":
			return UnitValue{}, nil
		case "Unknown":
			return UnknownValue{}, nil
		}
		v, err := ParseValue(n.Value)
		if err != nil {
			return nil, errorf(n, "%s", err)
		}
		return v, nil
	}

	tag, payload, err := tagged(n)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Expr":
		e, err := decodeExpr(payload)
		if err != nil {
			return nil, err
		}
		return ExprVal{Expr: e}, nil
	case "Bool":
		b, err := decodeBool(payload)
		if err != nil {
			return nil, err
		}
		return BoolVal{Bool: b}, nil
	case "Variable":
		v, err := decodeVariable(payload)
		if err != nil {
			return nil, err
		}
		return VarValue{Var: v}, nil
	case "Tuple", "Array":
		items, err := sequence(payload)
		if err != nil {
			return nil, err
		}
		elems := make([]Value, 0, len(items))
		for _, item := range items {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		if tag == "Tuple" {
			return TupleValue{Elems: elems}, nil
		}
		return ArrayValue{Elems: elems}, nil
	case "FunctionCall":
		items, err := tuple(payload, 2)
		if err != nil {
			return nil, err
		}
		name, err := scalar(items[0])
		if err != nil {
			return nil, err
		}
		args, err := sequence(items[1])
		if err != nil {
			return nil, err
		}
		call := FunctionCall{Name: name}
		for _, arg := range args {
			v, err := decodeValue(arg)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, v)
		}
		return call, nil
	case "Dereference":
		v, err := decodeValue(payload)
		if err != nil {
			return nil, err
		}
		return Dereference{Value: v}, nil
	case "Reference", "ReferenceMutable":
		v, err := decodeValue(payload)
		if err != nil {
			return nil, err
		}
		return Reference{Value: v, Mutable: tag == "ReferenceMutable"}, nil
	case "Ternary":
		items, err := tuple(payload, 3)
		if err != nil {
			return nil, err
		}
		cond, err := decodeBool(items[0])
		if err != nil {
			return nil, err
		}
		then, err := decodeValue(items[1])
		if err != nil {
			return nil, err
		}
		els, err := decodeValue(items[2])
		if err != nil {
			return nil, err
		}
		return Ternary{Cond: cond, Then: then, Else: els}, nil
	default:
		return nil, errorf(n, "unknown value %q", tag)
	}
}

func decodeVariable(n *yaml.Node) (Variable, error) {
	if n == nil {
		return nil, &DecodeError{Msg: "missing value"}
	}
	if n.Kind == yaml.ScalarNode {
		if n.Value == "Empty" || n.Value == "_" {
			return Empty{}, nil
		}
		return Named{Name: n.Value}, nil
	}

	tag, payload, err := tagged(n)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Named":
		name, err := scalar(payload)
		if err != nil {
			return nil, err
		}
		return Named{Name: name}, nil
	case "ArrayElem", "TupleElem":
		items, err := tuple(payload, 2)
		if err != nil {
			return nil, err
		}
		name, err := scalar(items[0])
		if err != nil {
			return nil, err
		}
		index, err := decodeValue(items[1])
		if err != nil {
			return nil, err
		}
		if tag == "ArrayElem" {
			return ArrayElem{Name: name, Index: index}, nil
		}
		return TupleElem{Name: name, Index: index}, nil
	default:
		return nil, errorf(n, "unknown variable %q", tag)
	}
}

func decodeCommands(n *yaml.Node) ([]Command, error) {
	items, err := sequence(n)
	if err != nil {
		return nil, err
	}
	cmds := make([]Command, 0, len(items))
	for _, item := range items {
		cmd, err := decodeCommand(item)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

func decodeCommand(n *yaml.Node) (Command, error) {
	tag, payload, err := tagged(n)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Binding":
		return decodeBinding(payload)
	case "Assignment":
		return decodeAssignment(payload)
	case "ProveControl":
		return decodeProveControl(payload)
	case "Block":
		return decodeBlock(payload)
	case "Noop":
		return Noop{}, nil
	default:
		return nil, errorf(n, "unknown command %q", tag)
	}
}

func decodeBinding(n *yaml.Node) (Binding, error) {
	tag, payload, err := tagged(n)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Declaration":
		items, err := tuple(payload, 3)
		if err != nil {
			return nil, err
		}
		v, err := decodeVariable(items[0])
		if err != nil {
			return nil, err
		}
		t, err := decodeType(items[1])
		if err != nil {
			return nil, err
		}
		mutable, err := boolean(items[2])
		if err != nil {
			return nil, err
		}
		return Declaration{Var: v, Type: t, Mutable: mutable}, nil
	case "Assignment":
		items, err := tuple(payload, 4)
		if err != nil {
			return nil, err
		}
		v, err := decodeVariable(items[0])
		if err != nil {
			return nil, err
		}
		t, err := decodeType(items[1])
		if err != nil {
			return nil, err
		}
		value, err := decodeValue(items[2])
		if err != nil {
			return nil, err
		}
		mutable, err := boolean(items[3])
		if err != nil {
			return nil, err
		}
		return Let{Var: v, Type: t, Mutable: mutable, Value: value}, nil
	case "Tuple":
		cmds, err := decodeCommands(payload)
		if err != nil {
			return nil, err
		}
		return TupleBinding{Commands: cmds}, nil
	default:
		return nil, errorf(n, "unknown binding %q", tag)
	}
}

func decodeAssignment(n *yaml.Node) (Assignment, error) {
	tag, payload, err := tagged(n)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Single":
		items, err := tuple(payload, 2)
		if err != nil {
			return nil, err
		}
		v, err := decodeVariable(items[0])
		if err != nil {
			return nil, err
		}
		value, err := decodeValue(items[1])
		if err != nil {
			return nil, err
		}
		return Assign{Target: v, Value: value}, nil
	case "Tuple":
		items, err := sequence(payload)
		if err != nil {
			return nil, err
		}
		a := TupleAssign{}
		for _, item := range items {
			sub, err := decodeAssignment(item)
			if err != nil {
				return nil, err
			}
			a.Assignments = append(a.Assignments, sub)
		}
		return a, nil
	default:
		return nil, errorf(n, "unknown assignment %q", tag)
	}
}

func decodeProveControl(n *yaml.Node) (ProveControl, error) {
	tag, payload, err := tagged(n)
	if err != nil {
		return nil, err
	}
	b, err := decodeBool(payload)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Assert":
		return Assert{Bool: b}, nil
	case "Assume":
		return Assume{Bool: b}, nil
	case "LoopInvariant":
		return LoopInvariant{Bool: b}, nil
	default:
		return nil, errorf(n, "unknown prove control %q", tag)
	}
}

func decodeBlock(n *yaml.Node) (Block, error) {
	tag, payload, err := tagged(n)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "If":
		items, err := tuple(payload, 3)
		if err != nil {
			return nil, err
		}
		conds, err := sequence(items[0])
		if err != nil {
			return nil, err
		}
		blocks, err := sequence(items[1])
		if err != nil {
			return nil, err
		}
		blk := If{}
		for _, c := range conds {
			b, err := decodeBool(c)
			if err != nil {
				return nil, err
			}
			blk.Conds = append(blk.Conds, b)
		}
		for _, body := range blocks {
			cmds, err := decodeCommands(body)
			if err != nil {
				return nil, err
			}
			blk.Blocks = append(blk.Blocks, cmds)
		}
		if blk.Else, err = decodeCommands(items[2]); err != nil {
			return nil, err
		}
		return blk, nil
	case "ForRange":
		items, err := tuple(payload, 4)
		if err != nil {
			return nil, err
		}
		iter, err := decodeVariable(items[0])
		if err != nil {
			return nil, err
		}
		first, err := decodeValue(items[1])
		if err != nil {
			return nil, err
		}
		last, err := decodeValue(items[2])
		if err != nil {
			return nil, err
		}
		body, err := decodeCommands(items[3])
		if err != nil {
			return nil, err
		}
		return ForRange{Iter: iter, First: first, Last: last, Body: body}, nil
	case "While":
		items, err := tuple(payload, 2)
		if err != nil {
			return nil, err
		}
		cond, err := decodeBool(items[0])
		if err != nil {
			return nil, err
		}
		body, err := decodeCommands(items[1])
		if err != nil {
			return nil, err
		}
		return While{Cond: cond, Body: body}, nil
	default:
		return nil, errorf(n, "unknown block %q", tag)
	}
}

// tagged splits an externally tagged variant into its name and payload.
// Unit variants have a nil payload.
func tagged(n *yaml.Node) (string, *yaml.Node, error) {
	switch {
	case n == nil:
		return "", nil, &DecodeError{Msg: "missing value"}
	case n.Kind == yaml.ScalarNode:
		return n.Value, nil, nil
	case n.Kind == yaml.MappingNode && len(n.Content) == 2:
		return n.Content[0].Value, n.Content[1], nil
	default:
		return "", nil, errorf(n, "expected tagged variant")
	}
}

func mapping(n *yaml.Node) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorf(n, "expected mapping")
	}
	m := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		m[n.Content[i].Value] = n.Content[i+1]
	}
	return m, nil
}

func sequence(n *yaml.Node) ([]*yaml.Node, error) {
	if n == nil {
		return nil, &DecodeError{Msg: "missing sequence"}
	} else if n.Kind != yaml.SequenceNode {
		return nil, errorf(n, "expected sequence")
	}
	return n.Content, nil
}

func tuple(n *yaml.Node, size int) ([]*yaml.Node, error) {
	items, err := sequence(n)
	if err != nil {
		return nil, err
	} else if len(items) != size {
		return nil, errorf(n, "expected %d elements, got %d", size, len(items))
	}
	return items, nil
}

func scalar(n *yaml.Node) (string, error) {
	if n == nil {
		return "", &DecodeError{Msg: "missing scalar"}
	} else if n.Kind != yaml.ScalarNode {
		return "", errorf(n, "expected scalar")
	}
	return n.Value, nil
}

func integer(n *yaml.Node) (int64, error) {
	s, err := scalar(n)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errorf(n, "invalid integer %q", s)
	}
	return v, nil
}

func boolean(n *yaml.Node) (bool, error) {
	s, err := scalar(n)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, errorf(n, "invalid boolean %q", s)
	}
	return v, nil
}
