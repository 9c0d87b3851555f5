package hoare_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/benbjohnson/hoare"
	"github.com/google/go-cmp/cmp"
)

// bruteSolver searches a small set of candidate values for a model. It only
// reports unsatisfiable when no combination of candidates satisfies every
// constraint, which is enough for the programs under test. Quantified
// constraints are reported as unknown.
type bruteSolver struct {
	// Maximum number of symbols searched. Defaults to 5.
	MaxSymbols int
}

var candidates32 = []int32{0, 1, -1, 2, -2, math.MinInt32, math.MaxInt32}

func (s *bruteSolver) Solve(ctx context.Context, constraints []hoare.Expr, symbols []*hoare.SymbolExpr) (bool, []*hoare.ConstantExpr, error) {
	if ctx.Err() != nil {
		return false, nil, hoare.ErrSolverCanceled
	}
	for _, expr := range constraints {
		if hasQuantifier(expr) {
			return false, nil, hoare.ErrSolverUnknown
		}
	}

	max := s.MaxSymbols
	if max == 0 {
		max = 5
	}
	if len(symbols) > max {
		return false, nil, hoare.ErrSolverResourceLimit
	}

	values := make([]*hoare.ConstantExpr, len(symbols))
	var search func(i int) bool
	search = func(i int) bool {
		if i == len(symbols) {
			return satisfies(constraints, symbols, values)
		}
		for _, v := range candidates(symbols[i]) {
			values[i] = v
			if search(i + 1) {
				return true
			}
		}
		return false
	}
	if !search(0) {
		return false, nil, nil
	}
	return true, values, nil
}

func candidates(sym *hoare.SymbolExpr) []*hoare.ConstantExpr {
	if sym.Width == hoare.WidthBool {
		return []*hoare.ConstantExpr{boolean(false), boolean(true)}
	}
	a := make([]*hoare.ConstantExpr, len(candidates32))
	for i, v := range candidates32 {
		a[i] = i32(v)
	}
	return a
}

func satisfies(constraints []hoare.Expr, symbols []*hoare.SymbolExpr, values []*hoare.ConstantExpr) bool {
	ee := hoare.NewExprEvaluator(symbols, values)
	for _, expr := range constraints {
		if v, err := ee.Evaluate(expr); err != nil || !v.IsTrue() {
			return false
		}
	}
	return true
}

func hasQuantifier(expr hoare.Expr) bool {
	v := &quantifierFinder{}
	hoare.WalkExpr(v, expr)
	return v.found
}

type quantifierFinder struct{ found bool }

func (v *quantifierFinder) Visit(expr hoare.Expr) hoare.ExprVisitor {
	if _, ok := expr.(*hoare.QuantifierExpr); ok {
		v.found = true
		return nil
	}
	return v
}

// funcSolver adapts a function to the Solver interface.
type funcSolver func(ctx context.Context, constraints []hoare.Expr, symbols []*hoare.SymbolExpr) (bool, []*hoare.ConstantExpr, error)

func (fn funcSolver) Solve(ctx context.Context, constraints []hoare.Expr, symbols []*hoare.SymbolExpr) (bool, []*hoare.ConstantExpr, error) {
	return fn(ctx, constraints, symbols)
}

// NewChecker returns a checker backed by a brute force solver.
func NewChecker(mode hoare.Mode) *hoare.Checker {
	c := hoare.NewChecker(&bruteSolver{})
	c.Mode = mode
	return c
}

func TestChecker_CheckObligation(t *testing.T) {
	t.Run("Proved", func(t *testing.T) {
		ob := &hoare.Obligation{
			ID:          1,
			Kind:        hoare.ObligationAssert,
			Constraints: []hoare.Expr{hoare.NewBinaryExpr(hoare.SLT, i32(0), x)},
			Goal:        hoare.NewBinaryExpr(hoare.SLE, i32(1), x),
			Vars:        []hoare.NamedBinding{{Name: "x", Value: x}},
		}
		if r := NewChecker(hoare.ModeFirstFailure).CheckObligation(context.Background(), ob); r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if r.Counterexample != nil {
			t.Fatalf("unexpected counterexample: %s", r.Counterexample)
		}
	})

	t.Run("Disproved", func(t *testing.T) {
		ob := &hoare.Obligation{
			ID:   1,
			Kind: hoare.ObligationPostcondition,
			Goal: hoare.NewBinaryExpr(hoare.SLE, i32(0), x),
			Vars: []hoare.NamedBinding{{Name: "x", Value: x}},
		}
		r := NewChecker(hoare.ModeFirstFailure).CheckObligation(context.Background(), ob)
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if got, want := r.Counterexample.String(), "x = -1"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})

	// Wrapping arithmetic makes x + 1 overflow at the maximum value.
	t.Run("Overflow", func(t *testing.T) {
		ob := &hoare.Obligation{
			ID:          1,
			Kind:        hoare.ObligationAssert,
			Constraints: []hoare.Expr{hoare.NewBinaryExpr(hoare.SLT, i32(0), x)},
			Goal:        hoare.NewBinaryExpr(hoare.SLT, i32(0), hoare.NewBinaryExpr(hoare.ADD, x, i32(1))),
			Vars:        []hoare.NamedBinding{{Name: "x", Value: x}},
		}
		r := NewChecker(hoare.ModeFirstFailure).CheckObligation(context.Background(), ob)
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if v, _ := r.Counterexample.Get("x"); v != "2147483647" {
			t.Fatalf("unexpected counterexample: %s", r.Counterexample)
		}
	})

	t.Run("ConstantGoal", func(t *testing.T) {
		c := hoare.NewChecker(funcSolver(func(context.Context, []hoare.Expr, []*hoare.SymbolExpr) (bool, []*hoare.ConstantExpr, error) {
			t.Fatal("solver must not be called")
			return false, nil, nil
		}))
		ob := &hoare.Obligation{ID: 1, Kind: hoare.ObligationAssert, Goal: boolean(true)}
		if r := c.CheckObligation(context.Background(), ob); r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s", r.Status)
		}

		// An infeasible path proves anything.
		ob = &hoare.Obligation{ID: 2, Kind: hoare.ObligationAssert, Constraints: []hoare.Expr{boolean(false)}, Goal: b}
		if r := c.CheckObligation(context.Background(), ob); r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s", r.Status)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		for _, tt := range []struct {
			err    error
			reason string
		}{
			{hoare.ErrSolverTimeout, "timeout"},
			{context.DeadlineExceeded, "timeout"},
			{hoare.ErrSolverCanceled, "canceled"},
			{hoare.ErrSolverResourceLimit, "resource limit"},
			{hoare.ErrSolverUnknown, "Solver unknown error"},
			{hoare.ErrNoCgo, "Solver unavailable: built without cgo"},
		} {
			t.Run(tt.reason, func(t *testing.T) {
				c := hoare.NewChecker(funcSolver(func(context.Context, []hoare.Expr, []*hoare.SymbolExpr) (bool, []*hoare.ConstantExpr, error) {
					return false, nil, tt.err
				}))
				r := c.CheckObligation(context.Background(), &hoare.Obligation{ID: 1, Kind: hoare.ObligationAssert, Goal: b})
				if r.Status != hoare.StatusUnknown {
					t.Fatalf("unexpected status: %s", r.Status)
				} else if r.Reason != tt.reason {
					t.Fatalf("reason=%q, want %q", r.Reason, tt.reason)
				}
			})
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		c := hoare.NewChecker(funcSolver(func(ctx context.Context, _ []hoare.Expr, _ []*hoare.SymbolExpr) (bool, []*hoare.ConstantExpr, error) {
			<-ctx.Done()
			return false, nil, hoare.ErrSolverTimeout
		}))
		c.Timeout = 1
		r := c.CheckObligation(context.Background(), &hoare.Obligation{ID: 1, Kind: hoare.ObligationAssert, Goal: b})
		if r.Status != hoare.StatusUnknown || r.Reason != "timeout" {
			t.Fatalf("unexpected result: %s %s", r.Status, r.Reason)
		}
	})

	// The negated goal is passed to the solver after the path condition and
	// symbols only reported in the counterexample are included.
	t.Run("Query", func(t *testing.T) {
		var constraints []hoare.Expr
		var symbols []*hoare.SymbolExpr
		c := hoare.NewChecker(funcSolver(func(_ context.Context, a []hoare.Expr, syms []*hoare.SymbolExpr) (bool, []*hoare.ConstantExpr, error) {
			constraints, symbols = a, syms
			return false, nil, nil
		}))

		ob := &hoare.Obligation{
			ID:          1,
			Kind:        hoare.ObligationAssert,
			Constraints: []hoare.Expr{b},
			Goal:        hoare.NewBinaryExpr(hoare.SLT, x, i32(5)),
			Vars:        []hoare.NamedBinding{{Name: "x", Value: x}, {Name: "y", Value: y}},
		}
		c.CheckObligation(context.Background(), ob)

		if diff := cmp.Diff(constraints, []hoare.Expr{b, hoare.NewNotExpr(ob.Goal)}); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff(symbols, []*hoare.SymbolExpr{b, x, y}); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestChecker_Check(t *testing.T) {
	proved := &hoare.Obligation{ID: 1, Kind: hoare.ObligationAssert, Desc: "x <= x", Goal: hoare.NewBinaryExpr(hoare.SLE, x, hoare.NewIteExpr(b, x, x))}
	failA := &hoare.Obligation{ID: 2, Kind: hoare.ObligationAssert, Desc: "x > 0", Goal: hoare.NewBinaryExpr(hoare.SLT, i32(0), x), Vars: []hoare.NamedBinding{{Name: "x", Value: x}}}
	failB := &hoare.Obligation{ID: 3, Kind: hoare.ObligationAssert, Desc: "y > 0", Goal: hoare.NewBinaryExpr(hoare.SLT, i32(0), y), Vars: []hoare.NamedBinding{{Name: "y", Value: y}}}
	unknown := &hoare.Obligation{ID: 4, Kind: hoare.ObligationAssert, Desc: "exists z: z > x", Goal: hoare.NewQuantifierExpr(true, hoare.NewSymbolExpr("z", 32), hoare.NewBinaryExpr(hoare.SLT, x, hoare.NewSymbolExpr("z", 32)))}

	t.Run("Proved", func(t *testing.T) {
		r := NewChecker(hoare.ModeFirstFailure).Check(context.Background(), "f", []*hoare.Obligation{proved})
		if r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if r.Function != "f" {
			t.Fatalf("unexpected function: %s", r.Function)
		} else if len(r.Obligations) != 1 {
			t.Fatalf("unexpected result count: %d", len(r.Obligations))
		}
	})

	t.Run("NoObligations", func(t *testing.T) {
		if r := NewChecker(hoare.ModeFirstFailure).Check(context.Background(), "f", nil); r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s", r.Status)
		}
	})

	t.Run("FirstFailure", func(t *testing.T) {
		r := NewChecker(hoare.ModeFirstFailure).Check(context.Background(), "f", []*hoare.Obligation{proved, failA, failB})
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if len(r.Obligations) != 2 {
			t.Fatalf("expected checking to stop at first failure, got %d results", len(r.Obligations))
		} else if got := r.Counterexample().String(); got != "x = 0" {
			t.Fatalf("unexpected counterexample: %s", got)
		}
	})

	t.Run("CollectAll", func(t *testing.T) {
		r := NewChecker(hoare.ModeCollectAll).Check(context.Background(), "f", []*hoare.Obligation{failA, proved, failB})
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if len(r.Obligations) != 3 {
			t.Fatalf("unexpected result count: %d", len(r.Obligations))
		}

		failures := r.Failures()
		if len(failures) != 2 {
			t.Fatalf("unexpected failure count: %d", len(failures))
		} else if failures[0].Obligation != failA || failures[1].Obligation != failB {
			t.Fatal("unexpected failure order")
		} else if got := failures[1].Counterexample.String(); got != "y = 0" {
			t.Fatalf("unexpected counterexample: %s", got)
		}
	})

	t.Run("UnknownContinues", func(t *testing.T) {
		r := NewChecker(hoare.ModeFirstFailure).Check(context.Background(), "f", []*hoare.Obligation{unknown, proved})
		if r.Status != hoare.StatusUnknown {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if len(r.Obligations) != 2 {
			t.Fatalf("unexpected result count: %d", len(r.Obligations))
		} else if reason := r.Reason(); !strings.HasPrefix(reason, "#4 assert: exists z: z > x: ") {
			t.Fatalf("unexpected reason: %s", reason)
		}
	})

	t.Run("DisprovedOutranksUnknown", func(t *testing.T) {
		r := NewChecker(hoare.ModeFirstFailure).Check(context.Background(), "f", []*hoare.Obligation{unknown, failA})
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		}
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := NewChecker(hoare.ModeCollectAll).Check(ctx, "f", []*hoare.Obligation{failA, failB})
		if r.Status != hoare.StatusUnknown {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if len(r.Obligations) != 1 {
			t.Fatalf("expected checking to stop, got %d results", len(r.Obligations))
		} else if r.Obligations[0].Reason != "canceled" {
			t.Fatalf("unexpected reason: %s", r.Obligations[0].Reason)
		}
	})
}

func TestResult_Reason(t *testing.T) {
	t.Run("Invalid", func(t *testing.T) {
		r := &hoare.Result{Function: "f", Status: hoare.StatusInvalid, Err: &hoare.StructuralError{Function: "f", Err: hoare.ErrRecursiveCall}}
		if got, want := r.Reason(), "f: recursive call"; got != want {
			t.Fatalf("Reason()=%q, want %q", got, want)
		}
	})

	t.Run("Proved", func(t *testing.T) {
		r := &hoare.Result{Function: "f", Status: hoare.StatusProved}
		if got := r.Reason(); got != "" {
			t.Fatalf("unexpected reason: %q", got)
		} else if r.Counterexample() != nil {
			t.Fatal("unexpected counterexample")
		}
	})
}

func TestNewCounterexample(t *testing.T) {
	n := hoare.NewSymbolExpr("n", hoare.Width32)
	ee := hoare.NewExprEvaluator(
		[]*hoare.SymbolExpr{b, n, x, y},
		[]*hoare.ConstantExpr{boolean(true), i32(-4), i32(3), i32(0)},
	)

	cex := hoare.NewCounterexample([]hoare.NamedBinding{
		{Name: "x", Value: x},
		{Name: "sum", Value: hoare.NewBinaryExpr(hoare.ADD, x, n)},
		{Name: "pair", Value: hoare.Tuple{y, b}},
		{Name: "one", Value: hoare.Tuple{x}},
		{Name: "arr", Value: hoare.Array{x, i32(7)}},
		{Name: "r", Value: hoare.Reference{Name: "x", Mutable: true}},
		{Name: "u", Value: hoare.Unit{}},
		{Name: "q", Value: hoare.NewQuantifierExpr(false, n, hoare.NewBinaryExpr(hoare.SLE, n, x))},
		{Name: "unbound", Value: hoare.NewSymbolExpr("w", 32)},
	}, ee)

	want := "x = 3, sum = -1, pair = (0, true), one = (3,), arr = [3, 7], r = &mut x, u = ()"
	if got := cex.String(); got != want {
		t.Fatalf("String()=%q, want %q", got, want)
	}

	if v, ok := cex.Get("sum"); !ok || v != "-1" {
		t.Fatalf("Get(sum)=%q, %v", v, ok)
	} else if _, ok := cex.Get("q"); ok {
		t.Fatal("expected quantified binding to be omitted")
	}
}

func TestChecker_SolverError(t *testing.T) {
	want := errors.New("marker")
	c := hoare.NewChecker(funcSolver(func(context.Context, []hoare.Expr, []*hoare.SymbolExpr) (bool, []*hoare.ConstantExpr, error) {
		return false, nil, want
	}))
	r := c.Check(context.Background(), "f", []*hoare.Obligation{{ID: 1, Kind: hoare.ObligationAssert, Goal: b}})
	if r.Status != hoare.StatusUnknown {
		t.Fatalf("unexpected status: %s", r.Status)
	} else if r.Obligations[0].Reason != "marker" {
		t.Fatalf("unexpected reason: %s", r.Obligations[0].Reason)
	}
}
