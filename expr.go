package hoare

import (
	"fmt"
	"sort"
)

// Expr represents a symbolic term. Booleans are terms of width 1 and
// integers are 32-bit two's complement bit-vectors.
type Expr interface {
	Binding
	expr()
}

func (*BinaryExpr) expr()     {}
func (*ConstantExpr) expr()   {}
func (*IteExpr) expr()        {}
func (*NotExpr) expr()        {}
func (*QuantifierExpr) expr() {}
func (*SymbolExpr) expr()     {}

// ExprWidth returns the bit width of the expression.
func ExprWidth(expr Expr) uint {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr.Width
	case *SymbolExpr:
		return expr.Width
	case *NotExpr:
		return WidthBool
	case *QuantifierExpr:
		return WidthBool
	case *IteExpr:
		return ExprWidth(expr.Then)
	case *BinaryExpr:
		if expr.Op.IsCompare() || expr.Op.IsLogical() {
			return WidthBool
		}
		return ExprWidth(expr.LHS)
	default:
		panic("unreachable")
	}
}

// IsBoolExpr returns true if expr is a boolean term.
func IsBoolExpr(expr Expr) bool { return ExprWidth(expr) == WidthBool }

// BinaryOp represents a binary expression operation.
type BinaryOp int

// BinaryExpr operations.
const (
	arithmetic_op_begin = BinaryOp(iota)
	ADD
	SUB
	MUL
	SDIV
	SREM
	arithmetic_op_end

	logical_op_begin
	AND
	OR
	XOR
	logical_op_end

	compare_op_begin
	EQ
	NE
	SLT
	SLE
	SGT
	SGE
	compare_op_end
)

var binaryOps = [...]string{
	ADD:  "bvadd",
	SUB:  "bvsub",
	MUL:  "bvmul",
	SDIV: "bvsdiv",
	SREM: "bvsrem",
	AND:  "and",
	OR:   "or",
	XOR:  "xor",
	EQ:   "=",
	NE:   "distinct",
	SLT:  "bvslt",
	SLE:  "bvsle",
	SGT:  "bvsgt",
	SGE:  "bvsge",
}

// String returns the SMT-LIB name of the operation.
func (op BinaryOp) String() string {
	if op >= 0 && op < BinaryOp(len(binaryOps)) && binaryOps[op] != "" {
		return binaryOps[op]
	}
	return fmt.Sprintf("BinaryOp<%d>", op)
}

// IsArithmetic returns true if op is an arithmetic operator.
func (op BinaryOp) IsArithmetic() bool {
	return op > arithmetic_op_begin && op < arithmetic_op_end
}

// IsLogical returns true if op is a boolean connective.
func (op BinaryOp) IsLogical() bool {
	return op > logical_op_begin && op < logical_op_end
}

// IsCompare returns true if op is a comparison operator.
func (op BinaryOp) IsCompare() bool {
	return op > compare_op_begin && op < compare_op_end
}

// BinaryExpr represents an operation on two expressions.
type BinaryExpr struct {
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

// NewBinaryExpr returns a new expression for op applied to lhs & rhs.
// Constant operands are folded where the result is fully determined.
func NewBinaryExpr(op BinaryOp, lhs, rhs Expr) Expr {
	assert(ExprWidth(lhs) == ExprWidth(rhs), "binary expr width mismatch: op=%s %d != %d", op, ExprWidth(lhs), ExprWidth(rhs))

	switch op {
	case ADD:
		return newAddExpr(lhs, rhs)
	case SUB:
		return newSubExpr(lhs, rhs)
	case MUL:
		return newMulExpr(lhs, rhs)
	case SDIV, SREM:
		return newDivExpr(op, lhs, rhs)
	case AND:
		return newAndExpr(lhs, rhs)
	case OR:
		return newOrExpr(lhs, rhs)
	case XOR:
		return NewNotExpr(newEqExpr(lhs, rhs))
	case EQ:
		return newEqExpr(lhs, rhs)
	case NE:
		return NewNotExpr(newEqExpr(lhs, rhs))
	case SLT:
		return newSltExpr(lhs, rhs)
	case SGT:
		return newSltExpr(rhs, lhs) // reverse
	case SLE:
		return newSleExpr(lhs, rhs)
	case SGE:
		return newSleExpr(rhs, lhs) // reverse
	default:
		panic("unreachable")
	}
}

// NewImpliesExpr returns an expression for "lhs implies rhs".
func NewImpliesExpr(lhs, rhs Expr) Expr {
	return NewBinaryExpr(OR, NewNotExpr(lhs), rhs)
}

// NewAndExpr returns the conjunction of all exprs. Returns true if empty.
func NewAndExpr(exprs ...Expr) Expr {
	var result Expr = NewBoolConstantExpr(true)
	for _, expr := range exprs {
		result = NewBinaryExpr(AND, result, expr)
	}
	return result
}

// NewOrExpr returns the disjunction of all exprs. Returns false if empty.
func NewOrExpr(exprs ...Expr) Expr {
	var result Expr = NewBoolConstantExpr(false)
	for _, expr := range exprs {
		result = NewBinaryExpr(OR, result, expr)
	}
	return result
}

// String returns the string representation of the expression.
func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Op, e.LHS, e.RHS)
}

func newAddExpr(lhs, rhs Expr) Expr {
	// Move constant expression to left hand side.
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if lhs.Value == 0 {
			return rhs
		} else if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Add(rhs)
		}

		// X + (Y+z) == (X+Y) + z
		if rhs, ok := rhs.(*BinaryExpr); ok && rhs.Op == ADD && IsConstantExpr(rhs.LHS) {
			return NewBinaryExpr(ADD, lhs.Add(rhs.LHS.(*ConstantExpr)), rhs.RHS)
		}
	}
	return &BinaryExpr{Op: ADD, LHS: lhs, RHS: rhs}
}

func newSubExpr(lhs, rhs Expr) Expr {
	// Subtracting a value from itself is zero.
	if CompareExpr(lhs, rhs) == 0 {
		return NewConstantExpr(0, ExprWidth(lhs))
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Sub(rhs)
		}
	}

	// x - C == -C + x
	if rhs, ok := rhs.(*ConstantExpr); ok {
		return NewBinaryExpr(ADD, NewConstantExpr(0, rhs.Width).Sub(rhs), lhs)
	}
	return &BinaryExpr{Op: SUB, LHS: lhs, RHS: rhs}
}

func newMulExpr(lhs, rhs Expr) Expr {
	if IsConstantExpr(rhs) && !IsConstantExpr(lhs) {
		lhs, rhs = rhs, lhs
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Mul(rhs)
		} else if lhs.Value == 1 {
			return rhs
		} else if lhs.Value == 0 {
			return lhs
		}
	}
	return &BinaryExpr{Op: MUL, LHS: lhs, RHS: rhs}
}

// newDivExpr folds only for a non-zero constant divisor. Division by zero is
// left symbolic; callers emit a separate non-zero obligation.
func newDivExpr(op BinaryOp, lhs, rhs Expr) Expr {
	if rhs, ok := rhs.(*ConstantExpr); ok && rhs.Value != 0 {
		if lhs, ok := lhs.(*ConstantExpr); ok {
			if op == SDIV {
				return lhs.SDiv(rhs)
			}
			return lhs.SRem(rhs)
		}
		if rhs.Value == 1 {
			if op == SDIV {
				return lhs
			}
			return NewConstantExpr(0, rhs.Width)
		}
	}
	return &BinaryExpr{Op: op, LHS: lhs, RHS: rhs}
}

func newAndExpr(lhs, rhs Expr) Expr {
	if IsConstantExpr(rhs) && !IsConstantExpr(lhs) {
		lhs, rhs = rhs, lhs
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if lhs.IsFalse() {
			return lhs
		}
		return rhs
	}
	if CompareExpr(lhs, rhs) == 0 {
		return lhs
	}
	return &BinaryExpr{Op: AND, LHS: lhs, RHS: rhs}
}

func newOrExpr(lhs, rhs Expr) Expr {
	if IsConstantExpr(rhs) && !IsConstantExpr(lhs) {
		lhs, rhs = rhs, lhs
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if lhs.IsTrue() {
			return lhs
		}
		return rhs
	}
	if CompareExpr(lhs, rhs) == 0 {
		return lhs
	}
	return &BinaryExpr{Op: OR, LHS: lhs, RHS: rhs}
}

func newEqExpr(lhs, rhs Expr) Expr {
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Eq(rhs)
		}
		if lhs.Width == WidthBool {
			if lhs.IsTrue() {
				return rhs // T == X => X
			}
			return NewNotExpr(rhs) // F == X => !X
		}

		// C == D + x => C - D == x
		if rhs, ok := rhs.(*BinaryExpr); ok && rhs.Op == ADD && IsConstantExpr(rhs.LHS) {
			return newEqExpr(lhs.Sub(rhs.LHS.(*ConstantExpr)), rhs.RHS)
		}
	}

	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(true)
	}
	return &BinaryExpr{Op: EQ, LHS: lhs, RHS: rhs}
}

func newSltExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Slt(rhs)
		}
	}
	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(false)
	}
	return &BinaryExpr{Op: SLT, LHS: lhs, RHS: rhs}
}

func newSleExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Sle(rhs)
		}
	}
	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(true)
	}
	return &BinaryExpr{Op: SLE, LHS: lhs, RHS: rhs}
}

// NotExpr represents a logical negation.
type NotExpr struct {
	Expr Expr
}

// NewNotExpr returns the negation of a boolean expression.
func NewNotExpr(expr Expr) Expr {
	assert(IsBoolExpr(expr), "not: expected boolean, got width %d", ExprWidth(expr))

	switch expr := expr.(type) {
	case *ConstantExpr:
		return NewBoolConstantExpr(expr.IsFalse())
	case *NotExpr:
		return expr.Expr
	}
	return &NotExpr{Expr: expr}
}

// String returns the string representation of the expression.
func (e *NotExpr) String() string {
	return fmt.Sprintf("(not %s)", e.Expr)
}

// IteExpr represents an if-then-else choice between two terms of equal width.
type IteExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

// NewIteExpr returns an expression that evaluates to then if cond holds and els otherwise.
func NewIteExpr(cond, then, els Expr) Expr {
	assert(IsBoolExpr(cond), "ite: non-boolean condition")
	assert(ExprWidth(then) == ExprWidth(els), "ite: width mismatch: %d != %d", ExprWidth(then), ExprWidth(els))

	if cond, ok := cond.(*ConstantExpr); ok {
		if cond.IsTrue() {
			return then
		}
		return els
	}
	if CompareExpr(then, els) == 0 {
		return then
	}
	if cond, ok := cond.(*NotExpr); ok {
		return &IteExpr{Cond: cond.Expr, Then: els, Else: then}
	}
	return &IteExpr{Cond: cond, Then: then, Else: els}
}

// String returns the string representation of the expression.
func (e *IteExpr) String() string {
	return fmt.Sprintf("(ite %s %s %s)", e.Cond, e.Then, e.Else)
}

// SymbolExpr represents a free variable.
type SymbolExpr struct {
	Name  string
	Width uint
}

// NewSymbolExpr returns a new instance of SymbolExpr.
func NewSymbolExpr(name string, width uint) *SymbolExpr {
	return &SymbolExpr{Name: name, Width: width}
}

// String returns the string representation of the expression.
func (e *SymbolExpr) String() string {
	return e.Name
}

// QuantifierExpr represents a universally or existentially quantified predicate.
type QuantifierExpr struct {
	Exists bool
	Var    *SymbolExpr
	Body   Expr
}

// NewQuantifierExpr returns a quantified predicate over v.
func NewQuantifierExpr(exists bool, v *SymbolExpr, body Expr) Expr {
	assert(IsBoolExpr(body), "quantifier: non-boolean body")
	if IsConstantExpr(body) {
		return body
	}
	return &QuantifierExpr{Exists: exists, Var: v, Body: body}
}

// String returns the string representation of the expression.
func (e *QuantifierExpr) String() string {
	q := "forall"
	if e.Exists {
		q = "exists"
	}
	return fmt.Sprintf("(%s ((%s (_ BitVec %d))) %s)", q, e.Var.Name, e.Var.Width, e.Body)
}

// ConstantExpr represents a concrete value of the given width.
type ConstantExpr struct {
	Value uint64
	Width uint
}

// NewConstantExpr returns a new instance of ConstantExpr.
func NewConstantExpr(value uint64, width uint) *ConstantExpr {
	return &ConstantExpr{
		Value: value & bitmask(width),
		Width: width,
	}
}

// NewConstantExpr32 returns a 32-bit constant expression.
func NewConstantExpr32(value int32) *ConstantExpr {
	return NewConstantExpr(uint64(uint32(value)), Width32)
}

// NewBoolConstantExpr is an ease of use function for creating constant boolean expressions.
func NewBoolConstantExpr(value bool) *ConstantExpr {
	if value {
		return &ConstantExpr{Value: 1, Width: WidthBool}
	}
	return &ConstantExpr{Value: 0, Width: WidthBool}
}

// String returns the string representation of the expression.
func (e *ConstantExpr) String() string {
	if e.Width == WidthBool {
		return fmt.Sprint(e.IsTrue())
	}
	return fmt.Sprint(e.Int32())
}

// Int32 returns the value as a signed 32-bit integer.
func (e *ConstantExpr) Int32() int32 { return int32(uint32(e.Value)) }

// IsTrue returns true if this is a boolean true expression.
func (e *ConstantExpr) IsTrue() bool {
	return e.Width == WidthBool && e.Value != 0
}

// IsFalse returns true if this is a boolean false expression.
func (e *ConstantExpr) IsFalse() bool {
	return e.Width == WidthBool && e.Value == 0
}

// Add returns the wrapping sum of e and other.
func (e *ConstantExpr) Add(other *ConstantExpr) *ConstantExpr {
	assert(e.Width == other.Width, "add: width mismatch: %d != %d", e.Width, other.Width)
	return NewConstantExpr(e.Value+other.Value, e.Width)
}

// Sub returns the wrapping difference of e and other.
func (e *ConstantExpr) Sub(other *ConstantExpr) *ConstantExpr {
	assert(e.Width == other.Width, "sub: width mismatch: %d != %d", e.Width, other.Width)
	return NewConstantExpr(e.Value-other.Value, e.Width)
}

// Mul returns the wrapping product of e and other.
func (e *ConstantExpr) Mul(other *ConstantExpr) *ConstantExpr {
	assert(e.Width == other.Width, "mul: width mismatch: %d != %d", e.Width, other.Width)
	return NewConstantExpr(e.Value*other.Value, e.Width)
}

// SDiv returns the truncated quotient of signed division. Panic if other is zero.
func (e *ConstantExpr) SDiv(other *ConstantExpr) *ConstantExpr {
	assert(e.Width == Width32 && other.Width == Width32, "sdiv: non-standard width: %d", e.Width)
	assert(other.Value != 0, "sdiv: division by zero")
	if e.Int32() == -1<<31 && other.Int32() == -1 {
		return e // wraps
	}
	return NewConstantExpr32(e.Int32() / other.Int32())
}

// SRem returns the remainder of signed division, with the sign of the dividend.
// Panic if other is zero.
func (e *ConstantExpr) SRem(other *ConstantExpr) *ConstantExpr {
	assert(e.Width == Width32 && other.Width == Width32, "srem: non-standard width: %d", e.Width)
	assert(other.Value != 0, "srem: division by zero")
	if other.Int32() == -1 {
		return NewConstantExpr32(0)
	}
	return NewConstantExpr32(e.Int32() % other.Int32())
}

// Eq returns a boolean constant that is true if e equals other.
func (e *ConstantExpr) Eq(other *ConstantExpr) *ConstantExpr {
	assert(e.Width == other.Width, "eq: width mismatch: %d != %d", e.Width, other.Width)
	return NewBoolConstantExpr(e.Value == other.Value)
}

// Slt returns a boolean constant that is true if e is less than other (signed).
func (e *ConstantExpr) Slt(other *ConstantExpr) *ConstantExpr {
	assert(e.Width == other.Width, "slt: width mismatch: %d != %d", e.Width, other.Width)
	return NewBoolConstantExpr(e.signed() < other.signed())
}

// Sle returns a boolean constant that is true if e is less than or equal to other (signed).
func (e *ConstantExpr) Sle(other *ConstantExpr) *ConstantExpr {
	assert(e.Width == other.Width, "sle: width mismatch: %d != %d", e.Width, other.Width)
	return NewBoolConstantExpr(e.signed() <= other.signed())
}

// signed returns the value sign-extended to 64 bits.
func (e *ConstantExpr) signed() int64 {
	shift := 64 - e.Width
	return int64(e.Value<<shift) >> shift
}

func bitmask(width uint) uint64 {
	if width >= 64 {
		return 0xFFFFFFFFFFFFFFFF
	}
	return (1 << width) - 1
}

// IsConstantExpr returns true if expr is a *ConstantExpr.
func IsConstantExpr(expr Expr) bool {
	_, ok := expr.(*ConstantExpr)
	return ok
}

// IsConstantTrue returns true if expr is a constant boolean true.
func IsConstantTrue(expr Expr) bool {
	e, ok := expr.(*ConstantExpr)
	return ok && e.IsTrue()
}

// IsConstantFalse returns true if expr is a constant boolean false.
func IsConstantFalse(expr Expr) bool {
	e, ok := expr.(*ConstantExpr)
	return ok && e.IsFalse()
}

// CompareExpr returns an integer comparing two expressions.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func CompareExpr(a, b Expr) int {
	if a == nil && b != nil {
		return -1
	} else if a != nil && b == nil {
		return 1
	} else if a == nil && b == nil {
		return 0
	}

	if ak, bk := exprKind(a), exprKind(b); ak < bk {
		return -1
	} else if ak > bk {
		return 1
	}

	switch a := a.(type) {
	case *ConstantExpr:
		return compareConstantExpr(a, b.(*ConstantExpr))
	case *SymbolExpr:
		return compareSymbolExpr(a, b.(*SymbolExpr))
	case *NotExpr:
		return CompareExpr(a.Expr, b.(*NotExpr).Expr)
	case *IteExpr:
		return compareIteExpr(a, b.(*IteExpr))
	case *QuantifierExpr:
		return compareQuantifierExpr(a, b.(*QuantifierExpr))
	case *BinaryExpr:
		return compareBinaryExpr(a, b.(*BinaryExpr))
	default:
		panic("unreachable")
	}
}

func compareConstantExpr(a, b *ConstantExpr) int {
	if a.Width < b.Width {
		return -1
	} else if a.Width > b.Width {
		return 1
	}

	if a.Value < b.Value {
		return -1
	} else if a.Value > b.Value {
		return 1
	}
	return 0
}

func compareSymbolExpr(a, b *SymbolExpr) int {
	if a.Width < b.Width {
		return -1
	} else if a.Width > b.Width {
		return 1
	}

	if a.Name < b.Name {
		return -1
	} else if a.Name > b.Name {
		return 1
	}
	return 0
}

func compareIteExpr(a, b *IteExpr) int {
	if cmp := CompareExpr(a.Cond, b.Cond); cmp != 0 {
		return cmp
	}
	if cmp := CompareExpr(a.Then, b.Then); cmp != 0 {
		return cmp
	}
	return CompareExpr(a.Else, b.Else)
}

func compareQuantifierExpr(a, b *QuantifierExpr) int {
	if !a.Exists && b.Exists {
		return -1
	} else if a.Exists && !b.Exists {
		return 1
	}
	if cmp := compareSymbolExpr(a.Var, b.Var); cmp != 0 {
		return cmp
	}
	return CompareExpr(a.Body, b.Body)
}

func compareBinaryExpr(a, b *BinaryExpr) int {
	if a.Op < b.Op {
		return -1
	} else if a.Op > b.Op {
		return 1
	}
	if cmp := CompareExpr(a.LHS, b.LHS); cmp != 0 {
		return cmp
	}
	return CompareExpr(a.RHS, b.RHS)
}

// exprKind returns a numeric value for the type of expression.
// Only used internally for equality checks and sorting.
func exprKind(expr Expr) int {
	switch expr.(type) {
	case *ConstantExpr:
		return 1
	case *SymbolExpr:
		return 2
	case *NotExpr:
		return 3
	case *IteExpr:
		return 4
	case *QuantifierExpr:
		return 5
	case *BinaryExpr:
		return 6
	default:
		panic("unreachable")
	}
}

// ExprVisitor represents a visitor that can be passed to WalkExpr().
type ExprVisitor interface {
	// Visit is executed for every node. Returning nil stops descent into children.
	Visit(expr Expr) ExprVisitor
}

// WalkExpr traverses expr depth-first.
func WalkExpr(v ExprVisitor, expr Expr) {
	if v = v.Visit(expr); v == nil {
		return
	}

	switch expr := expr.(type) {
	case *BinaryExpr:
		WalkExpr(v, expr.LHS)
		WalkExpr(v, expr.RHS)
	case *NotExpr:
		WalkExpr(v, expr.Expr)
	case *IteExpr:
		WalkExpr(v, expr.Cond)
		WalkExpr(v, expr.Then)
		WalkExpr(v, expr.Else)
	case *QuantifierExpr:
		WalkExpr(v, expr.Var)
		WalkExpr(v, expr.Body)
	case *ConstantExpr, *SymbolExpr:
		// nop
	default:
		panic("unreachable")
	}
}

// FindSymbols returns all free symbols in the expression trees, sorted by width and name.
// Symbols bound by a quantifier are excluded.
func FindSymbols(exprs ...Expr) []*SymbolExpr {
	v := &symbolExprVisitor{m: make(map[string]*SymbolExpr), bound: make(map[string]struct{})}
	for _, expr := range exprs {
		WalkExpr(v, expr)
	}

	a := make([]*SymbolExpr, 0, len(v.m))
	for name, sym := range v.m {
		if _, ok := v.bound[name]; !ok {
			a = append(a, sym)
		}
	}
	sort.Slice(a, func(i, j int) bool { return compareSymbolExpr(a[i], a[j]) == -1 })
	return a
}

type symbolExprVisitor struct {
	m     map[string]*SymbolExpr
	bound map[string]struct{}
}

func (v *symbolExprVisitor) Visit(expr Expr) ExprVisitor {
	switch expr := expr.(type) {
	case *SymbolExpr:
		v.m[expr.Name] = expr
	case *QuantifierExpr:
		v.bound[expr.Var.Name] = struct{}{}
	}
	return v
}

// ExprEvaluator evaluates expressions using known symbol values.
type ExprEvaluator struct {
	m map[string]*ConstantExpr
}

// NewExprEvaluator returns a new instance of ExprEvaluator with the given symbol/value mapping.
func NewExprEvaluator(symbols []*SymbolExpr, values []*ConstantExpr) *ExprEvaluator {
	assert(len(symbols) == len(values), "symbol/value count mismatch: %d != %d", len(symbols), len(values))

	m := make(map[string]*ConstantExpr, len(symbols))
	for i, sym := range symbols {
		_, ok := m[sym.Name]
		assert(!ok, "duplicate symbol: %s", sym.Name)
		m[sym.Name] = values[i]
	}
	return &ExprEvaluator{m: m}
}

// Evaluate evaluates expr to a constant expression.
// Returns an error if an unbound symbol or a quantifier is encountered.
func (ee *ExprEvaluator) Evaluate(expr Expr) (*ConstantExpr, error) {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr, nil
	case *SymbolExpr:
		value, ok := ee.m[expr.Name]
		if !ok {
			return nil, fmt.Errorf("symbol not bound: %s", expr.Name)
		}
		return value, nil
	case *NotExpr:
		v, err := ee.Evaluate(expr.Expr)
		if err != nil {
			return nil, err
		}
		return NewNotExpr(v).(*ConstantExpr), nil
	case *IteExpr:
		cond, err := ee.Evaluate(expr.Cond)
		if err != nil {
			return nil, err
		} else if cond.IsTrue() {
			return ee.Evaluate(expr.Then)
		}
		return ee.Evaluate(expr.Else)
	case *BinaryExpr:
		lhs, err := ee.Evaluate(expr.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := ee.Evaluate(expr.RHS)
		if err != nil {
			return nil, err
		}
		if (expr.Op == SDIV || expr.Op == SREM) && rhs.Value == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return NewBinaryExpr(expr.Op, lhs, rhs).(*ConstantExpr), nil
	default:
		return nil, fmt.Errorf("cannot evaluate expression type: %T", expr)
	}
}
