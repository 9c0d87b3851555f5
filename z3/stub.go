//go:build !cgo

package z3

import (
	"context"
	"time"

	"github.com/benbjohnson/hoare"
)

// Ensure solver implements interface.
var _ hoare.Solver = (*Solver)(nil)

// Solver is unavailable without cgo. Every call to Solve returns hoare.ErrNoCgo.
type Solver struct {
	stats Stats
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{}
}

// Close is a no-op.
func (s *Solver) Close() error { return nil }

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats { return s.stats }

// Solve always returns hoare.ErrNoCgo.
func (s *Solver) Solve(ctx context.Context, constraints []hoare.Expr, symbols []*hoare.SymbolExpr) (bool, []*hoare.ConstantExpr, error) {
	return false, nil, hoare.ErrNoCgo
}

// Stats represents solver statistics.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}
