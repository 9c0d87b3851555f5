package ir

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseBool parses contract text such as "x >= 0 && y > 0" into a predicate.
//
// The grammar covers the boolean connectives (!, &&, ||, ==>), comparisons,
// integer arithmetic, array indexing (a[i]), tuple fields (t.0), calls,
// tuple and array literals and the quantifiers "forall y: ..." and
// "exists y: ...". A quantifier body extends as far right as possible.
func ParseBool(s string) (Bool, error) {
	p, err := newParser(s)
	if err != nil {
		return nil, err
	}
	t, err := p.parseImplies()
	if err != nil {
		return nil, err
	} else if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return t.toBool()
}

// ParseValue parses contract text into a value, e.g. "(quo, rem)" or "x + 1".
func ParseValue(s string) (Value, error) {
	p, err := newParser(s)
	if err != nil {
		return nil, err
	}
	t, err := p.parseImplies()
	if err != nil {
		return nil, err
	} else if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return t.toValue(), nil
}

// ParseError is returned for malformed contract text.
type ParseError struct {
	Text   string
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: offset %d: %s", e.Text, e.Offset, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// puncts is ordered longest first.
var puncts = []string{"==>", "&&", "||", "&", "==", "!=", ">=", "<=", "->", ">", "<", "!", "+", "-", "*", "/", "%", "(", ")", "[", "]", ",", ".", ":"}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		ch := rune(s[i])
		switch {
		case unicode.IsSpace(ch):
			i++
		case ch == '_' || unicode.IsLetter(ch):
			j := i + 1
			for j < len(s) && (s[j] == '_' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			if strings.HasPrefix(s[j:], OldSuffix) {
				j += len(OldSuffix)
			}
			toks = append(toks, token{kind: tokIdent, text: s[i:j], pos: i})
			i = j
		case unicode.IsDigit(ch):
			j := i + 1
			for j < len(s) && unicode.IsDigit(rune(s[j])) {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: s[i:j], pos: i})
			i = j
		default:
			var matched string
			for _, p := range puncts {
				if strings.HasPrefix(s[i:], p) {
					matched = p
					break
				}
			}
			if matched == "" {
				return nil, &ParseError{Text: s, Offset: i, Msg: fmt.Sprintf("unexpected character %q", ch)}
			}
			toks = append(toks, token{kind: tokPunct, text: matched, pos: i})
			i += len(matched)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(s)}), nil
}

type parser struct {
	text string
	toks []token
	i    int
}

func newParser(s string) (*parser, error) {
	toks, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	return &parser{text: s, toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	tok := p.toks[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) accept(punct string) bool {
	if tok := p.peek(); tok.kind == tokPunct && tok.text == punct {
		p.i++
		return true
	}
	return false
}

func (p *parser) expect(punct string) error {
	if !p.accept(punct) {
		return p.errorf("expected %q", punct)
	}
	return nil
}

func (p *parser) expectEOF() error {
	if p.peek().kind != tokEOF {
		return p.errorf("unexpected %q", p.peek().text)
	}
	return nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Text: p.text, Offset: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

// term is a parsed fragment that has not yet been committed to a category.
// Exactly one field is set.
type term struct {
	b Bool
	e Expr
	v Value
}

func (t term) toValue() Value {
	switch {
	case t.v != nil:
		return t.v
	case t.e != nil:
		if ve, ok := t.e.(ValueExpr); ok {
			return ve.Value
		}
		return ExprVal{Expr: t.e}
	default:
		return BoolVal{Bool: t.b}
	}
}

func (t term) toExpr() (Expr, error) {
	switch {
	case t.e != nil:
		return t.e, nil
	case t.v != nil:
		return ValueExpr{Value: t.v}, nil
	default:
		return nil, fmt.Errorf("predicate %s used as integer", t.b)
	}
}

func (t term) toBool() (Bool, error) {
	switch {
	case t.b != nil:
		return t.b, nil
	case t.v != nil:
		return BoolValue{Value: t.v}, nil
	default:
		if ve, ok := t.e.(ValueExpr); ok {
			return BoolValue{Value: ve.Value}, nil
		}
		return nil, fmt.Errorf("integer %s used as predicate", t.e)
	}
}

func (p *parser) parseImplies() (term, error) {
	lhs, err := p.parseOr()
	if err != nil {
		return term{}, err
	}
	if !p.accept("==>") && !p.accept("->") {
		return lhs, nil
	}
	rhs, err := p.parseImplies()
	if err != nil {
		return term{}, err
	}
	a, err := lhs.toBool()
	if err != nil {
		return term{}, err
	}
	b, err := rhs.toBool()
	if err != nil {
		return term{}, err
	}
	return term{b: Or{LHS: Not{Bool: a}, RHS: b}}, nil
}

func (p *parser) parseOr() (term, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return term{}, err
	}
	for p.accept("||") {
		rhs, err := p.parseAnd()
		if err != nil {
			return term{}, err
		}
		a, err := lhs.toBool()
		if err != nil {
			return term{}, err
		}
		b, err := rhs.toBool()
		if err != nil {
			return term{}, err
		}
		lhs = term{b: Or{LHS: a, RHS: b}}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (term, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return term{}, err
	}
	for p.accept("&&") {
		rhs, err := p.parseUnary()
		if err != nil {
			return term{}, err
		}
		a, err := lhs.toBool()
		if err != nil {
			return term{}, err
		}
		b, err := rhs.toBool()
		if err != nil {
			return term{}, err
		}
		lhs = term{b: And{LHS: a, RHS: b}}
	}
	return lhs, nil
}

func (p *parser) parseUnary() (term, error) {
	if p.accept("!") {
		t, err := p.parseUnary()
		if err != nil {
			return term{}, err
		}
		b, err := t.toBool()
		if err != nil {
			return term{}, err
		}
		return term{b: Not{Bool: b}}, nil
	}

	if tok := p.peek(); tok.kind == tokIdent && (tok.text == "forall" || tok.text == "exists") {
		p.next()
		v := p.next()
		if v.kind != tokIdent {
			return term{}, p.errorf("expected quantified variable")
		}
		p.accept(":")
		body, err := p.parseImplies()
		if err != nil {
			return term{}, err
		}
		b, err := body.toBool()
		if err != nil {
			return term{}, err
		}
		if tok.text == "forall" {
			return term{b: ForAll{Var: Named{Name: v.text}, Body: b}}, nil
		}
		return term{b: Exists{Var: Named{Name: v.text}, Body: b}}, nil
	}
	return p.parseCompare()
}

var compareTokens = map[string]CompareOp{
	"==": Equal,
	">":  GreaterThan,
	"<":  LowerThan,
	">=": GreaterEqual,
	"<=": LowerEqual,
}

func (p *parser) parseCompare() (term, error) {
	lhs, err := p.parseSum()
	if err != nil {
		return term{}, err
	}

	tok := p.peek()
	if tok.kind != tokPunct {
		return lhs, nil
	}
	op, ok := compareTokens[tok.text]
	if !ok && tok.text != "!=" {
		return lhs, nil
	}
	p.next()

	rhs, err := p.parseSum()
	if err != nil {
		return term{}, err
	}

	var b Bool
	if tok.text == "==" || tok.text == "!=" {
		b, err = equality(lhs, rhs)
		if err != nil {
			return term{}, err
		}
		if tok.text == "!=" {
			b = Not{Bool: b}
		}
		return term{b: b}, nil
	}

	x, err := lhs.toExpr()
	if err != nil {
		return term{}, err
	}
	y, err := rhs.toExpr()
	if err != nil {
		return term{}, err
	}
	return term{b: Compare{Op: op, LHS: x, RHS: y}}, nil
}

// equality uses integer comparison when either side is arithmetic and
// structural equality otherwise.
func equality(lhs, rhs term) (Bool, error) {
	if isArith(lhs) || isArith(rhs) {
		x, err := lhs.toExpr()
		if err != nil {
			return nil, err
		}
		y, err := rhs.toExpr()
		if err != nil {
			return nil, err
		}
		return Compare{Op: Equal, LHS: x, RHS: y}, nil
	}
	return ValueEqual{LHS: lhs.toValue(), RHS: rhs.toValue()}, nil
}

func isArith(t term) bool {
	switch t.e.(type) {
	case Number, Op:
		return true
	}
	return false
}

func (p *parser) parseSum() (term, error) {
	lhs, err := p.parseProduct()
	if err != nil {
		return term{}, err
	}
	for {
		var opcode Opcode
		switch {
		case p.accept("+"):
			opcode = Add
		case p.accept("-"):
			opcode = Sub
		default:
			return lhs, nil
		}
		rhs, err := p.parseProduct()
		if err != nil {
			return term{}, err
		}
		if lhs, err = arith(lhs, opcode, rhs); err != nil {
			return term{}, err
		}
	}
}

func (p *parser) parseProduct() (term, error) {
	lhs, err := p.parseFactor()
	if err != nil {
		return term{}, err
	}
	for {
		var opcode Opcode
		switch {
		case p.accept("*"):
			opcode = Mul
		case p.accept("/"):
			opcode = Div
		case p.accept("%"):
			opcode = Rem
		default:
			return lhs, nil
		}
		rhs, err := p.parseFactor()
		if err != nil {
			return term{}, err
		}
		if lhs, err = arith(lhs, opcode, rhs); err != nil {
			return term{}, err
		}
	}
}

func arith(lhs term, opcode Opcode, rhs term) (term, error) {
	x, err := lhs.toExpr()
	if err != nil {
		return term{}, err
	}
	y, err := rhs.toExpr()
	if err != nil {
		return term{}, err
	}
	return term{e: Op{LHS: x, Opcode: opcode, RHS: y}}, nil
}

func (p *parser) parseFactor() (term, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		n, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return term{}, &ParseError{Text: p.text, Offset: tok.pos, Msg: err.Error()}
		}
		return term{e: Number{Value: n}}, nil

	case tokIdent:
		switch tok.text {
		case "true":
			return term{b: True{}}, nil
		case "false":
			return term{b: False{}}, nil
		}
		return p.parsePostfix(tok.text)

	case tokPunct:
		switch tok.text {
		case "-":
			t, err := p.parseFactor()
			if err != nil {
				return term{}, err
			}
			if n, ok := t.e.(Number); ok {
				return term{e: Number{Value: -n.Value}}, nil
			}
			return arith(term{e: Number{}}, Sub, t)
		case "*":
			t, err := p.parseFactor()
			if err != nil {
				return term{}, err
			}
			return term{v: Dereference{Value: t.toValue()}}, nil
		case "&":
			mutable := false
			if tok := p.peek(); tok.kind == tokIdent && tok.text == "mut" {
				p.next()
				mutable = true
			}
			t, err := p.parseFactor()
			if err != nil {
				return term{}, err
			}
			return term{v: Reference{Value: t.toValue(), Mutable: mutable}}, nil
		case "(":
			if p.accept(")") {
				return term{v: UnitValue{}}, nil
			}
			elems, err := p.parseList(")")
			if err != nil {
				return term{}, err
			} else if len(elems) == 1 && !elems[0].trailing {
				return elems[0].t, nil
			}
			return term{v: TupleValue{Elems: listValues(elems)}}, nil
		case "[":
			if p.accept("]") {
				return term{v: ArrayValue{}}, nil
			}
			elems, err := p.parseList("]")
			if err != nil {
				return term{}, err
			}
			return term{v: ArrayValue{Elems: listValues(elems)}}, nil
		}
	}
	if tok.kind == tokEOF {
		return term{}, &ParseError{Text: p.text, Offset: tok.pos, Msg: "unexpected end of input"}
	}
	return term{}, &ParseError{Text: p.text, Offset: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
}

type listElem struct {
	t        term
	trailing bool // followed by a comma
}

func (p *parser) parseList(closing string) ([]listElem, error) {
	var elems []listElem
	for {
		t, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		comma := p.accept(",")
		elems = append(elems, listElem{t: t, trailing: comma})
		if p.accept(closing) {
			return elems, nil
		} else if !comma {
			return nil, p.errorf("expected %q or %q", ",", closing)
		}
	}
}

func listValues(elems []listElem) []Value {
	a := make([]Value, len(elems))
	for i, e := range elems {
		a[i] = e.t.toValue()
	}
	return a
}

func (p *parser) parsePostfix(name string) (term, error) {
	// Function call.
	if p.accept("(") {
		var args []Value
		if !p.accept(")") {
			elems, err := p.parseList(")")
			if err != nil {
				return term{}, err
			}
			args = listValues(elems)
		}
		return term{v: FunctionCall{Name: name, Args: args}}, nil
	}

	// Array index.
	if p.accept("[") {
		index, err := p.parseSum()
		if err != nil {
			return term{}, err
		} else if err := p.expect("]"); err != nil {
			return term{}, err
		}
		return term{v: VarValue{Var: ArrayElem{Name: name, Index: index.toValue()}}}, nil
	}

	// Tuple field.
	if p.accept(".") {
		tok := p.next()
		if tok.kind != tokNumber {
			return term{}, p.errorf("expected tuple field index")
		}
		n, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return term{}, &ParseError{Text: p.text, Offset: tok.pos, Msg: err.Error()}
		}
		return term{v: VarValue{Var: TupleElem{Name: name, Index: ExprVal{Expr: Number{Value: n}}}}}, nil
	}

	if name == "_" {
		return term{v: VarValue{Var: Empty{}}}, nil
	}
	return term{v: VarValue{Var: Named{Name: name}}}, nil
}
