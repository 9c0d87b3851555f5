//go:build cgo

package z3

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/benbjohnson/hoare"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
#include <stdint.h>
*/
import "C"

// Ensure solver implements interface.
var _ hoare.Solver = (*Solver)(nil)

// Solver represents a solver that uses an embedded Z3 solver.
// A solver is not safe for concurrent use.
type Solver struct {
	ctx   *Context
	stats Stats
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{
		ctx: NewContext(),
	}
}

// Close deletes the underlying Z3 context.
func (s *Solver) Close() error {
	return s.ctx.Close()
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	return s.stats
}

// Solve checks the conjunction of constraints. If satisfiable, a model value
// is returned for each symbol. Cancellation of ctx interrupts the solver.
func (s *Solver) Solve(ctx context.Context, constraints []hoare.Expr, symbols []*hoare.SymbolExpr) (satisfiable bool, values []*hoare.ConstantExpr, err error) {
	if err := ctxErr(ctx); err != nil {
		return false, nil, err
	}

	t := time.Now()
	defer func() {
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
	}()

	solver := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return false, nil, err
	}
	C.Z3_solver_inc_ref(s.ctx.raw, solver)
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	if err := s.setTimeout(ctx, solver); err != nil {
		return false, nil, err
	}

	// Assert constraints.
	for _, constraint := range constraints {
		z3Constraint, err := s.ctx.toAST(constraint)
		if err != nil {
			return false, nil, err
		}
		C.Z3_solver_assert(s.ctx.raw, solver, z3Constraint)
		if err := s.ctx.err("Z3_solver_assert"); err != nil {
			return false, nil, err
		}
	}

	// Interrupt the check if the context is done first.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			C.Z3_interrupt(s.ctx.raw)
		case <-done:
		}
	}()
	ret := C.Z3_solver_check(s.ctx.raw, solver)
	close(done)

	// Exit immediately if unsatisfiable or the solver encountered an error.
	if err := s.ctx.err("Z3_solver_check"); err != nil {
		return false, nil, err
	} else if ret == C.Z3_L_FALSE {
		return false, nil, nil
	} else if ret == C.Z3_L_UNDEF {
		if err := ctxErr(ctx); err != nil {
			return false, nil, err
		}
		reason := C.GoString(C.Z3_solver_get_reason_unknown(s.ctx.raw, solver))
		switch {
		case strings.Contains(reason, "timeout"):
			return false, nil, hoare.ErrSolverTimeout
		case strings.Contains(reason, "canceled"):
			return false, nil, hoare.ErrSolverCanceled
		case strings.Contains(reason, "(resource limits reached)"):
			return false, nil, hoare.ErrSolverResourceLimit
		case strings.Contains(reason, "unknown"), strings.Contains(reason, "incomplete"):
			return false, nil, hoare.ErrSolverUnknown
		default:
			return false, nil, fmt.Errorf("z3: %s", reason)
		}
	} else if len(symbols) == 0 {
		return true, nil, nil // no symbolics, ignore model
	}

	// Calculate a model for the given formula.
	model := C.Z3_solver_get_model(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_get_model"); err != nil {
		return true, nil, err
	}

	// Fetch values for symbols.
	values, err = s.ctx.eval(model, symbols)
	if err != nil {
		return true, nil, err
	}
	return true, values, nil
}

// setTimeout limits the solver to the time remaining until the context
// deadline. An expired deadline is reported by the caller.
func (s *Solver) setTimeout(ctx context.Context, solver C.Z3_solver) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	timeout := time.Until(deadline)
	if timeout <= 0 {
		return nil
	}

	params := C.Z3_mk_params(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_params"); err != nil {
		return err
	}
	C.Z3_params_inc_ref(s.ctx.raw, params)
	defer C.Z3_params_dec_ref(s.ctx.raw, params)

	key := C.CString("timeout")
	defer C.free(unsafe.Pointer(key))
	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	C.Z3_params_set_uint(s.ctx.raw, params, C.Z3_mk_string_symbol(s.ctx.raw, key), C.uint(ms))
	if err := s.ctx.err("Z3_params_set_uint"); err != nil {
		return err
	}
	C.Z3_solver_set_params(s.ctx.raw, solver, params)
	return s.ctx.err("Z3_solver_set_params")
}

// ctxErr maps a done context to the matching solver error.
func ctxErr(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return hoare.ErrSolverTimeout
	default:
		return hoare.ErrSolverCanceled
	}
}

// Context represents a Z3 context object that is used for constructing expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return nil
}

// err returns the error for the last API call. Returns nil if last call was successful.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// toAST returns a new instance of Z3_ast from an expression.
func (ctx *Context) toAST(expr hoare.Expr) (C.Z3_ast, error) {
	switch expr := expr.(type) {
	case *hoare.ConstantExpr:
		return ctx.toConstantAST(expr)
	case *hoare.SymbolExpr:
		return ctx.toSymbolAST(expr)
	case *hoare.NotExpr:
		return ctx.toNotAST(expr)
	case *hoare.IteExpr:
		return ctx.toIteAST(expr)
	case *hoare.QuantifierExpr:
		return ctx.toQuantifierAST(expr)
	case *hoare.BinaryExpr:
		return ctx.toBinaryAST(expr)
	default:
		return nil, fmt.Errorf("z3.Context.toAST: invalid expression type: %T", expr)
	}
}

func (ctx *Context) toConstantAST(expr *hoare.ConstantExpr) (C.Z3_ast, error) {
	if expr.Width == hoare.WidthBool {
		if expr.IsTrue() {
			return ctx.makeTrue()
		}
		return ctx.makeFalse()
	} else if expr.Width <= 32 {
		return ctx.makeUint(expr.Width, uint32(expr.Value))
	}
	return nil, fmt.Errorf("z3.Context.toConstantAST: invalid expression width: %d", expr.Width)
}

func (ctx *Context) toSymbolAST(expr *hoare.SymbolExpr) (C.Z3_ast, error) {
	sort, err := ctx.makeSort(expr.Width)
	if err != nil {
		return nil, err
	}

	cname := C.CString(expr.Name)
	defer C.free(unsafe.Pointer(cname))
	nameSymbol := C.Z3_mk_string_symbol(ctx.raw, cname)

	return C.Z3_mk_const(ctx.raw, nameSymbol, sort), ctx.err("Z3_mk_const")
}

func (ctx *Context) toNotAST(expr *hoare.NotExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Expr)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
}

func (ctx *Context) toIteAST(expr *hoare.IteExpr) (C.Z3_ast, error) {
	cond, err := ctx.toAST(expr.Cond)
	if err != nil {
		return nil, err
	}
	then, err := ctx.toAST(expr.Then)
	if err != nil {
		return nil, err
	}
	els, err := ctx.toAST(expr.Else)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_ite(ctx.raw, cond, then, els), ctx.err("Z3_mk_ite")
}

func (ctx *Context) toQuantifierAST(expr *hoare.QuantifierExpr) (C.Z3_ast, error) {
	bound, err := ctx.toSymbolAST(expr.Var)
	if err != nil {
		return nil, err
	}
	app := C.Z3_to_app(ctx.raw, bound)
	if err := ctx.err("Z3_to_app"); err != nil {
		return nil, err
	}

	body, err := ctx.toAST(expr.Body)
	if err != nil {
		return nil, err
	}

	if expr.Exists {
		return C.Z3_mk_exists_const(ctx.raw, 0, 1, &app, 0, nil, body), ctx.err("Z3_mk_exists_const")
	}
	return C.Z3_mk_forall_const(ctx.raw, 0, 1, &app, 0, nil, body), ctx.err("Z3_mk_forall_const")
}

func (ctx *Context) toBinaryAST(expr *hoare.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(expr.RHS)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case hoare.ADD:
		return C.Z3_mk_bvadd(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvadd")
	case hoare.SUB:
		return C.Z3_mk_bvsub(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsub")
	case hoare.MUL:
		return C.Z3_mk_bvmul(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvmul")
	case hoare.SDIV:
		return C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsdiv")
	case hoare.SREM:
		return C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsrem")
	case hoare.AND:
		args := [2]C.Z3_ast{lhs, rhs}
		return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
	case hoare.OR:
		args := [2]C.Z3_ast{lhs, rhs}
		return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
	case hoare.XOR:
		return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
	case hoare.EQ:
		if hoare.ExprWidth(expr.LHS) == hoare.WidthBool {
			return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
		}
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case hoare.NE:
		args := [2]C.Z3_ast{lhs, rhs}
		return C.Z3_mk_distinct(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_distinct")
	case hoare.SLT:
		return C.Z3_mk_bvslt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvslt")
	case hoare.SLE:
		return C.Z3_mk_bvsle(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsle")
	case hoare.SGT:
		return C.Z3_mk_bvsgt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsgt")
	case hoare.SGE:
		return C.Z3_mk_bvsge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsge")
	default:
		return nil, fmt.Errorf("z3.Context.toBinaryAST: unexpected operation: %s", expr.Op)
	}
}

func (ctx *Context) makeTrue() (C.Z3_ast, error) {
	return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
}

func (ctx *Context) makeFalse() (C.Z3_ast, error) {
	return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
}

// makeSort returns the boolean sort for width 1 and a bit-vector sort otherwise.
func (ctx *Context) makeSort(width uint) (C.Z3_sort, error) {
	if width == hoare.WidthBool {
		return C.Z3_mk_bool_sort(ctx.raw), ctx.err("Z3_mk_bool_sort")
	}
	return ctx.makeBVSort(width)
}

func (ctx *Context) makeBVSort(width uint) (C.Z3_sort, error) {
	return C.Z3_mk_bv_sort(ctx.raw, C.uint(width)), ctx.err("Z3_mk_bv_sort")
}

func (ctx *Context) makeUint(width uint, value uint32) (C.Z3_ast, error) {
	t, err := ctx.makeBVSort(width)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int(ctx.raw, C.uint(value), t), ctx.err("Z3_mk_unsigned_int")
}

// eval evaluates symbols against a model. Symbols the model leaves
// unconstrained are completed with an arbitrary value.
func (ctx *Context) eval(model C.Z3_model, symbols []*hoare.SymbolExpr) ([]*hoare.ConstantExpr, error) {
	values := make([]*hoare.ConstantExpr, 0, len(symbols))
	for _, sym := range symbols {
		value, err := ctx.evalSymbol(model, sym)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

func (ctx *Context) evalSymbol(model C.Z3_model, sym *hoare.SymbolExpr) (*hoare.ConstantExpr, error) {
	z3Sym, err := ctx.toSymbolAST(sym)
	if err != nil {
		return nil, err
	}

	// Evaluate the expression against the Z3 model.
	var z3Expr C.Z3_ast
	C.Z3_model_eval(ctx.raw, model, z3Sym, C.bool(true), &z3Expr)
	if err := ctx.err("Z3_model_eval"); err != nil {
		return nil, err
	}

	if sym.Width == hoare.WidthBool {
		v := C.Z3_get_bool_value(ctx.raw, z3Expr)
		if err := ctx.err("Z3_get_bool_value"); err != nil {
			return nil, err
		}
		return hoare.NewBoolConstantExpr(v == C.Z3_L_TRUE), nil
	}

	var v C.uint64_t
	C.Z3_get_numeral_uint64(ctx.raw, z3Expr, &v)
	if err := ctx.err("Z3_get_numeral_uint64"); err != nil {
		return nil, err
	}
	return hoare.NewConstantExpr(uint64(v), sym.Width), nil
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Possible error codes.
const (
	ErrorCodeOK = iota
	ErrorCodeSortError
	ErrorCodeIOB
	ErrorCodeInvalidArg
	ErrorCodeParserError
	ErrorCodeNoParser
	ErrorCodeInvalidPattern
	ErrorCodeMemoutFail
	ErrorCodeFileAccessError
	ErrorCodeInternalFatal
	ErrorCodeInvalidUsage
	ErrorCodeDecRefError
	ErrorCodeException
)

// Stats represents solver statistics.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}
