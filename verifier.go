package hoare

import (
	"context"
	"io"
	"runtime"
	"time"

	"github.com/benbjohnson/hoare/ir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Verifier verifies every function of a program.
type Verifier struct {
	// Returns a new solver session. Each function gets its own session which
	// is closed after use if it implements io.Closer.
	NewSolver func() (Solver, error)

	// Number of functions verified concurrently. Defaults to the CPU count.
	Workers int

	// Maximum solver time per obligation. Zero means no limit.
	Timeout time.Duration

	Mode Mode

	// Called after each function is verified. May be called concurrently.
	OnResult func(*Result)

	Logger *zap.Logger
}

// NewVerifier returns a new instance of Verifier.
func NewVerifier(newSolver func() (Solver, error)) *Verifier {
	return &Verifier{
		NewSolver: newSolver,
		Workers:   runtime.NumCPU(),
		Mode:      ModeFirstFailure,
		Logger:    zap.NewNop(),
	}
}

// VerifyProgram returns one result per function in program order. Functions
// are independent so a structural error in one does not affect the others.
// Only a failure to create a solver is returned as an error.
func (v *Verifier) VerifyProgram(ctx context.Context, prog *ir.Program) ([]*Result, error) {
	results := make([]*Result, len(prog.Functions))

	g, ctx := errgroup.WithContext(ctx)
	if v.Workers > 0 {
		g.SetLimit(v.Workers)
	}
	for i, fn := range prog.Functions {
		i, fn := i, fn
		g.Go(func() error {
			result, err := v.VerifyFunction(ctx, prog, fn)
			if err != nil {
				return err
			}
			results[i] = result
			if v.OnResult != nil {
				v.OnResult(result)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// VerifyFunction validates, executes and checks a single function using a
// dedicated solver session.
func (v *Verifier) VerifyFunction(ctx context.Context, prog *ir.Program, fn *ir.Function) (*Result, error) {
	t := time.Now()
	logger := v.logger().With(zap.String("function", fn.Name))

	if err := ValidateFunction(prog, fn); err != nil {
		return v.invalid(logger, fn, err, t), nil
	}

	e := NewExecutor(prog, fn)
	e.Logger = logger
	obligations, err := e.Execute()
	if err != nil {
		return v.invalid(logger, fn, err, t), nil
	}

	solver, err := v.NewSolver()
	if err != nil {
		return nil, err
	}
	if closer, ok := solver.(io.Closer); ok {
		defer closer.Close()
	}

	c := NewChecker(solver)
	c.Mode, c.Timeout, c.Logger = v.Mode, v.Timeout, logger
	if c.Mode == "" {
		c.Mode = ModeFirstFailure
	}
	result := c.Check(ctx, fn.Name, obligations)
	result.Duration = time.Since(t)

	logger.Info("verified",
		zap.String("status", string(result.Status)),
		zap.Int("obligations", len(obligations)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (v *Verifier) invalid(logger *zap.Logger, fn *ir.Function, err error, t time.Time) *Result {
	logger.Info("invalid", zap.Error(err))
	return &Result{
		Function: fn.Name,
		Status:   StatusInvalid,
		Err:      err,
		Duration: time.Since(t),
	}
}

func (v *Verifier) logger() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}
