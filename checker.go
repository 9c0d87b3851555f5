package hoare

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Solver determines the satisfiability of a conjunction of constraints.
type Solver interface {
	// Solve returns true if constraints are satisfiable. If so, values holds
	// a model value for each symbol, in the same order.
	Solve(ctx context.Context, constraints []Expr, symbols []*SymbolExpr) (satisfiable bool, values []*ConstantExpr, err error)
}

// Status represents a verdict.
type Status string

const (
	StatusProved    = Status("proved")    // every obligation holds
	StatusDisproved = Status("disproved") // some obligation has a counterexample
	StatusUnknown   = Status("unknown")   // solver could not decide
	StatusInvalid   = Status("invalid")   // structural error, nothing checked
)

// Mode determines whether checking stops at the first failure.
type Mode string

const (
	ModeFirstFailure = Mode("first-failure")
	ModeCollectAll   = Mode("collect-all")
)

// Witness is the concrete value of one variable in a counterexample.
type Witness struct {
	Name  string
	Value string
}

// Counterexample is an assignment under which an obligation fails.
// Inputs are listed first in declaration order.
type Counterexample []Witness

// Get returns the value of the named variable.
func (c Counterexample) Get(name string) (string, bool) {
	for _, w := range c {
		if w.Name == name {
			return w.Value, true
		}
	}
	return "", false
}

// String returns the counterexample as "name = value" pairs.
func (c Counterexample) String() string {
	a := make([]string, len(c))
	for i, w := range c {
		a[i] = w.Name + " = " + w.Value
	}
	return strings.Join(a, ", ")
}

// ObligationResult is the outcome of checking a single obligation.
type ObligationResult struct {
	Obligation     *Obligation
	Status         Status
	Counterexample Counterexample // set if disproved
	Reason         string         // set if unknown
	Duration       time.Duration
}

// Result is the verdict for one function.
type Result struct {
	Function    string
	Status      Status
	Err         error // structural error, if invalid
	Obligations []*ObligationResult
	Duration    time.Duration
}

// Failures returns the disproved obligations.
func (r *Result) Failures() []*ObligationResult {
	var a []*ObligationResult
	for _, or := range r.Obligations {
		if or.Status == StatusDisproved {
			a = append(a, or)
		}
	}
	return a
}

// Counterexample returns the counterexample of the first failure, if any.
func (r *Result) Counterexample() Counterexample {
	if a := r.Failures(); len(a) > 0 {
		return a[0].Counterexample
	}
	return nil
}

// Reason returns an explanation for an unknown or invalid verdict.
func (r *Result) Reason() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	for _, or := range r.Obligations {
		if or.Status == StatusUnknown {
			return fmt.Sprintf("%s: %s", or.Obligation, or.Reason)
		}
	}
	return ""
}

// Checker discharges obligations with a solver.
type Checker struct {
	Solver Solver

	// Mode determines whether checking stops at the first failure.
	Mode Mode

	// Maximum time per obligation. Zero means no limit.
	Timeout time.Duration

	Logger *zap.Logger
}

// NewChecker returns a new instance of Checker.
func NewChecker(solver Solver) *Checker {
	return &Checker{
		Solver: solver,
		Mode:   ModeFirstFailure,
		Logger: zap.NewNop(),
	}
}

// Check checks obligations in order and returns the function's verdict. A
// disproved obligation outranks an unknown one. Unknown obligations never
// stop checking.
func (c *Checker) Check(ctx context.Context, function string, obligations []*Obligation) *Result {
	t := time.Now()
	result := &Result{Function: function, Status: StatusProved}

	for _, ob := range obligations {
		or := c.CheckObligation(ctx, ob)
		result.Obligations = append(result.Obligations, or)

		switch or.Status {
		case StatusDisproved:
			result.Status = StatusDisproved
		case StatusUnknown:
			if result.Status == StatusProved {
				result.Status = StatusUnknown
			}
		}

		if or.Status == StatusDisproved && c.Mode != ModeCollectAll {
			break
		} else if ctx.Err() != nil {
			break
		}
	}

	result.Duration = time.Since(t)
	return result
}

// CheckObligation asks whether the path condition together with the negated
// goal is satisfiable. Unsatisfiable means the obligation is proved.
func (c *Checker) CheckObligation(ctx context.Context, ob *Obligation) *ObligationResult {
	t := time.Now()
	result := c.checkObligation(ctx, ob)
	result.Duration = time.Since(t)

	c.Logger.Debug("checked",
		zap.Stringer("obligation", ob),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func (c *Checker) checkObligation(ctx context.Context, ob *Obligation) *ObligationResult {
	result := &ObligationResult{Obligation: ob, Status: StatusProved}

	// Constant goals and infeasible paths need no solver.
	if IsConstantTrue(ob.Goal) {
		return result
	}
	for _, expr := range ob.Constraints {
		if IsConstantFalse(expr) {
			return result
		}
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	constraints := make([]Expr, len(ob.Constraints), len(ob.Constraints)+1)
	copy(constraints, ob.Constraints)
	constraints = append(constraints, NewNotExpr(ob.Goal))

	exprs := constraints
	for _, v := range ob.Vars {
		exprs = append(exprs, bindingExprs(v.Value)...)
	}
	symbols := FindSymbols(exprs...)

	satisfiable, values, err := c.Solver.Solve(ctx, constraints, symbols)
	if err != nil {
		result.Status, result.Reason = StatusUnknown, unknownReason(err)
		return result
	} else if !satisfiable {
		return result
	}

	result.Status = StatusDisproved
	result.Counterexample = NewCounterexample(ob.Vars, NewExprEvaluator(symbols, values))
	return result
}

// unknownReason returns a short description of an inconclusive solver result.
func unknownReason(err error) string {
	switch {
	case errors.Is(err, ErrSolverTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrSolverCanceled), errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrSolverResourceLimit):
		return "resource limit"
	default:
		return err.Error()
	}
}

// bindingExprs returns the scalar terms within b.
func bindingExprs(b Binding) []Expr {
	switch b := b.(type) {
	case Expr:
		return []Expr{b}
	case Tuple:
		var a []Expr
		for _, elem := range b {
			a = append(a, bindingExprs(elem)...)
		}
		return a
	case Array:
		var a []Expr
		for _, elem := range b {
			a = append(a, bindingExprs(elem)...)
		}
		return a
	default:
		return nil
	}
}

// NewCounterexample evaluates vars against a model. Variables that cannot be
// evaluated, such as quantified predicates, are omitted.
func NewCounterexample(vars []NamedBinding, ee *ExprEvaluator) Counterexample {
	c := make(Counterexample, 0, len(vars))
	for _, v := range vars {
		s, err := formatBinding(ee, v.Value)
		if err != nil {
			continue
		}
		c = append(c, Witness{Name: v.Name, Value: s})
	}
	return c
}

// formatBinding returns the concrete value of b in source syntax.
func formatBinding(ee *ExprEvaluator, b Binding) (string, error) {
	switch b := b.(type) {
	case Expr:
		value, err := ee.Evaluate(b)
		if err != nil {
			return "", err
		} else if value.Width == WidthBool {
			return strconv.FormatBool(value.IsTrue()), nil
		}
		return strconv.FormatInt(int64(value.Int32()), 10), nil
	case Tuple:
		s, err := formatBindings(ee, b)
		if len(b) == 1 {
			s += ","
		}
		return "(" + s + ")", err
	case Array:
		s, err := formatBindings(ee, b)
		return "[" + s + "]", err
	case Reference:
		return b.String(), nil
	case Unit:
		return "()", nil
	default:
		return "", fmt.Errorf("cannot format %T", b)
	}
}

func formatBindings(ee *ExprEvaluator, a []Binding) (string, error) {
	s := make([]string, len(a))
	for i := range a {
		v, err := formatBinding(ee, a[i])
		if err != nil {
			return "", err
		}
		s[i] = v
	}
	return strings.Join(s, ", "), nil
}
