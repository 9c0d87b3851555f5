package hoare_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/benbjohnson/hoare"
	"github.com/benbjohnson/hoare/ir"
	"github.com/google/go-cmp/cmp"
)

// MustDecodeProgram decodes a program document. Fatal on error.
func MustDecodeProgram(tb testing.TB, src string) *ir.Program {
	tb.Helper()
	prog, err := ir.Decode(strings.NewReader(src))
	if err != nil {
		tb.Fatal(err)
	}
	return prog
}

// MustOpenProgram decodes the program document at path. Fatal on error.
func MustOpenProgram(tb testing.TB, path string) *ir.Program {
	tb.Helper()
	f, err := os.Open(path)
	if err != nil {
		tb.Fatal(err)
	}
	defer f.Close()

	prog, err := ir.Decode(f)
	if err != nil {
		tb.Fatal(err)
	}
	return prog
}

// MustExecute returns the obligations of the named function. Fatal on error.
func MustExecute(tb testing.TB, prog *ir.Program, name string) []*hoare.Obligation {
	tb.Helper()
	fn := prog.Function(name)
	if fn == nil {
		tb.Fatalf("function %q not found", name)
	}
	obligations, err := hoare.NewExecutor(prog, fn).Execute()
	if err != nil {
		tb.Fatal(err)
	}
	for i, ob := range obligations {
		if ob.ID != i+1 {
			tb.Fatalf("unexpected obligation id: %d", ob.ID)
		}
	}
	return obligations
}

// Execute returns the error from executing the named function.
func Execute(prog *ir.Program, name string) error {
	_, err := hoare.NewExecutor(prog, prog.Function(name)).Execute()
	return err
}

// Check checks every obligation with the brute force solver.
func Check(obligations []*hoare.Obligation) *hoare.Result {
	return NewChecker(hoare.ModeCollectAll).Check(context.Background(), "f", obligations)
}

// Kinds returns the kind of each obligation.
func Kinds(obligations []*hoare.Obligation) []hoare.ObligationKind {
	a := make([]hoare.ObligationKind, len(obligations))
	for i, ob := range obligations {
		a[i] = ob.Kind
	}
	return a
}

// Statuses returns the status of each obligation result.
func Statuses(r *hoare.Result) []hoare.Status {
	a := make([]hoare.Status, len(r.Obligations))
	for i, or := range r.Obligations {
		a[i] = or.Status
	}
	return a
}

func TestExecutor_Execute_Postcondition(t *testing.T) {
	prog := MustOpenProgram(t, "testdata/abs.yaml")

	t.Run("Ternary", func(t *testing.T) {
		obligations := MustExecute(t, prog, "abs")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationPostcondition}); diff != "" {
			t.Fatal(diff)
		} else if got, want := obligations[0].String(), "#1 postcondition: return_value >= 0"; got != want {
			t.Fatalf("String()=%q, want %q", got, want)
		}

		// Negating the minimum value wraps around.
		r := Check(obligations)
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if got, want := r.Counterexample().String(), "x = -2147483648, return_value = -2147483648"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})

	t.Run("If", func(t *testing.T) {
		obligations := MustExecute(t, prog, "abs_checked")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationPostcondition}); diff != "" {
			t.Fatal(diff)
		} else if r := Check(obligations); r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s", r.Status)
		}
	})

	t.Run("Trivial", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
    output: I32
    postcondition: "return_value == x"
    return_value: "x"
`)
		if obligations := MustExecute(t, prog, "f"); len(obligations) != 0 {
			t.Fatalf("unexpected obligations: %d", len(obligations))
		}
	})

	t.Run("Contradiction", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
    output: I32
    postcondition: "return_value == return_value + 1"
    return_value: "x"
`)
		r := Check(MustExecute(t, prog, "f"))
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if got, want := r.Counterexample().String(), "x = 0, return_value = 0"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})

	t.Run("Old", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, true]
    output: I32
    postcondition: "return_value == x'old + 1 && x == x'old"
    content:
      - Assignment: {Single: [x, "x + 1"]}
    return_value: "x"
`)
		obligations := MustExecute(t, prog, "f")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationPostcondition}); diff != "" {
			t.Fatal(diff)
		} else if r := Check(obligations); r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		}
	})
}

func TestExecutor_Execute_Division(t *testing.T) {
	t.Run("Unguarded", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
      - Declaration: [y, I32, false]
    output: I32
    return_value: "x / y"
`)
		obligations := MustExecute(t, prog, "f")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationDivision}); diff != "" {
			t.Fatal(diff)
		} else if got, want := obligations[0].String(), "#1 division-by-zero: y != 0"; got != want {
			t.Fatalf("String()=%q, want %q", got, want)
		}

		r := Check(obligations)
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if got, want := r.Counterexample().String(), "x = 0, y = 0"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})

	t.Run("Precondition", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
      - Declaration: [y, I32, false]
    output: I32
    precondition: "y != 0"
    return_value: "x % y"
`)
		if r := Check(MustExecute(t, prog, "f")); r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s", r.Status)
		}
	})

	// The right side of a conjunction is evaluated assuming the left side.
	t.Run("GuardedConjunction", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
      - Declaration: [y, I32, false]
    content:
      - ProveControl: {Assert: "y != 0 && x / y >= 0"}
`)
		obligations := MustExecute(t, prog, "f")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationDivision, hoare.ObligationAssert}); diff != "" {
			t.Fatal(diff)
		}
		if diff := cmp.Diff(Statuses(Check(obligations)), []hoare.Status{hoare.StatusProved, hoare.StatusDisproved}); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ConstantDivisor", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
    output: I32
    return_value: "x / 2"
`)
		if obligations := MustExecute(t, prog, "f"); len(obligations) != 0 {
			t.Fatalf("unexpected obligations: %d", len(obligations))
		}
	})
}

func TestExecutor_Execute_Array(t *testing.T) {
	t.Run("Bounds", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: get
    input:
      - Declaration: [a, {Array: [I32, 3]}, false]
      - Declaration: [i, I32, false]
    output: I32
    return_value: "a[i]"
`)
		obligations := MustExecute(t, prog, "get")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationBounds}); diff != "" {
			t.Fatal(diff)
		} else if got, want := obligations[0].Desc, "0 <= i < 3"; got != want {
			t.Fatalf("Desc=%q, want %q", got, want)
		}

		r := Check(obligations)
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if got, want := r.Counterexample().String(), "a = [0, 0, 0], i = -1"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})

	// A failed bounds check is assumed afterwards so later accesses of the
	// same index are not reported again.
	t.Run("Store", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: put
    input:
      - Declaration: [i, I32, false]
    content:
      - Binding: {Assignment: [a, {Array: [I32, 3]}, "[1, 2, 3]", true]}
      - Assignment: {Single: [{ArrayElem: [a, "i"]}, "5"]}
      - ProveControl: {Assert: "a[i] == 5"}
`)
		obligations := MustExecute(t, prog, "put")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationBounds, hoare.ObligationBounds, hoare.ObligationAssert}); diff != "" {
			t.Fatal(diff)
		}
		if diff := cmp.Diff(Statuses(Check(obligations)), []hoare.Status{hoare.StatusDisproved, hoare.StatusProved, hoare.StatusProved}); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ConstantIndex", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    content:
      - Binding: {Assignment: [a, {Array: [I32, 3]}, "[1, 2, 3]", true]}
      - Assignment: {Single: [{ArrayElem: [a, "1"]}, "5"]}
      - ProveControl: {Assert: "a == [1, 5, 3]"}
`)
		if obligations := MustExecute(t, prog, "f"); len(obligations) != 0 {
			t.Fatalf("unexpected obligations: %d", len(obligations))
		}
	})

	t.Run("Tuple", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [p, {Tuple: [I32, Bool]}, false]
    content:
      - ProveControl: {Assert: "p.1 || p.0 > 0"}
`)
		obligations := MustExecute(t, prog, "f")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationAssert}); diff != "" {
			t.Fatal(diff)
		}

		r := Check(obligations)
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if got, want := r.Counterexample().String(), "p = (0, false)"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})
}

func TestExecutor_Execute_If(t *testing.T) {
	prog := MustDecodeProgram(t, `
content:
  - name: sign
    input:
      - Declaration: [x, I32, false]
    content:
      - Binding: {Assignment: [s, I32, "0", true]}
      - Block:
          If:
            - ["x > 0", "x < 0"]
            - - [{Assignment: {Single: [s, "1"]}}]
              - [{Assignment: {Single: [s, "-1"]}}]
            - []
      - ProveControl: {Assert: "s >= -1 && s <= 1"}
      - ProveControl: {Assert: "s != 0"}
`)

	obligations := MustExecute(t, prog, "sign")
	if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationAssert, hoare.ObligationAssert}); diff != "" {
		t.Fatal(diff)
	}

	r := Check(obligations)
	if diff := cmp.Diff(Statuses(r), []hoare.Status{hoare.StatusProved, hoare.StatusDisproved}); diff != "" {
		t.Fatal(diff)
	} else if got, want := r.Counterexample().String(), "x = 0, s = 0"; got != want {
		t.Fatalf("counterexample=%q, want %q", got, want)
	}
}

func TestExecutor_Execute_While(t *testing.T) {
	prog := MustOpenProgram(t, "testdata/remainder.yaml")

	for _, tt := range []struct {
		name  string
		kinds []hoare.ObligationKind
	}{
		{
			name: "remainder",
			kinds: []hoare.ObligationKind{
				hoare.ObligationInvariantEntry,
				hoare.ObligationInvariantPreserved,
				hoare.ObligationPostcondition,
			},
		},

		// The invariant holds trivially on entry.
		{
			name: "remainder_partial",
			kinds: []hoare.ObligationKind{
				hoare.ObligationInvariantPreserved,
				hoare.ObligationPostcondition,
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			obligations := MustExecute(t, prog, tt.name)
			if diff := cmp.Diff(Kinds(obligations), tt.kinds); diff != "" {
				t.Fatal(diff)
			}
			if r := Check(obligations); r.Status != hoare.StatusProved {
				t.Fatalf("unexpected status: %s: %s", r.Status, r.Counterexample())
			}
		})
	}

	t.Run("NotInductive", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    content:
      - Binding: {Assignment: [n, I32, "0", true]}
      - ProveControl: {LoopInvariant: "n >= 0"}
      - Block:
          While:
            - "n != 2"
            - [{Assignment: {Single: [n, "n - 1"]}}]
`)
		obligations := MustExecute(t, prog, "f")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationInvariantPreserved}); diff != "" {
			t.Fatal(diff)
		}

		r := Check(obligations)
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if got, want := r.Counterexample().String(), "n = -1"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})

	t.Run("ErrMissingInvariant", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    content:
      - Block: {While: ["true", []]}
`)
		if err := Execute(prog, "f"); !errors.Is(err, hoare.ErrMissingInvariant) {
			t.Fatalf("unexpected error: %v", err)
		} else if !strings.HasPrefix(err.Error(), "f: ") {
			t.Fatalf("unexpected message: %s", err)
		}
	})
}

func TestExecutor_Execute_ForRange(t *testing.T) {
	prog := MustDecodeProgram(t, `
content:
  - name: count
    input:
      - Declaration: [n, I32, false]
    precondition: "n >= 0"
    postcondition: "s == n"
    content:
      - Binding: {Assignment: [s, I32, "0", true]}
      - ProveControl: {LoopInvariant: "s == i"}
      - Block:
          ForRange: [i, "0", "n", [{Assignment: {Single: [s, "s + 1"]}}]]
  - name: scope
    content:
      - Block:
          ForRange: [i, "0", "3", []]
      - ProveControl: {Assert: "i >= 0"}
`)

	t.Run("Invariant", func(t *testing.T) {
		obligations := MustExecute(t, prog, "count")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{
			hoare.ObligationInvariantEntry,
			hoare.ObligationInvariantPreserved,
			hoare.ObligationPostcondition,
		}); diff != "" {
			t.Fatal(diff)
		} else if got, want := obligations[0].Desc, "0 <= i <= n && s == i"; got != want {
			t.Fatalf("Desc=%q, want %q", got, want)
		}

		if r := Check(obligations); r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s: %s", r.Status, r.Counterexample())
		}
	})

	// Out of bounds writes in the last iteration are found without an invariant.
	t.Run("Overrun", func(t *testing.T) {
		obligations := MustExecute(t, MustOpenProgram(t, "testdata/fill.yaml"), "fill_overrun")

		r := Check(obligations)
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		}
		failure := r.Failures()[0]
		if failure.Obligation.Kind != hoare.ObligationBounds {
			t.Fatalf("unexpected kind: %s", failure.Obligation.Kind)
		} else if v, _ := failure.Counterexample.Get("i"); v != "2" {
			t.Fatalf("unexpected counterexample: %s", failure.Counterexample)
		}
	})

	t.Run("IteratorOutOfScope", func(t *testing.T) {
		if err := Execute(prog, "scope"); !errors.Is(err, hoare.ErrUndefinedVariable) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestExecutor_Execute_Call(t *testing.T) {
	prog := MustDecodeProgram(t, `
content:
  - name: inc
    input:
      - Declaration: [p, {ReferenceMutable: I32}, false]
    precondition: "*p < 100"
    postcondition: "*p == p'old + 1"
    content:
      - Assignment: {Single: ["*p", "*p + 1"]}

  - name: caller
    input:
      - Declaration: [a0, I32, false]
    precondition: "a0 < 100"
    content:
      - Binding: {Assignment: [a, I32, "a0", true]}
      - Binding: {Assignment: [_, Unit, "inc(&mut a)", false]}
      - ProveControl: {Assert: "a == a0 + 1"}

  - name: unchecked
    input:
      - Declaration: [a0, I32, false]
    content:
      - Binding: {Assignment: [a, I32, "a0", true]}
      - Binding: {Assignment: [_, Unit, "inc(&mut a)", false]}

  - name: shared
    content:
      - Binding: {Assignment: [a, I32, "0", true]}
      - Binding: {Assignment: [_, Unit, "inc(&a)", false]}
`)

	t.Run("Callee", func(t *testing.T) {
		if obligations := MustExecute(t, prog, "inc"); len(obligations) != 0 {
			t.Fatalf("unexpected obligations: %d", len(obligations))
		}
	})

	t.Run("Caller", func(t *testing.T) {
		obligations := MustExecute(t, prog, "caller")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationCallPrecondition, hoare.ObligationAssert}); diff != "" {
			t.Fatal(diff)
		} else if got, want := obligations[0].Desc, "inc: *p < 100"; got != want {
			t.Fatalf("Desc=%q, want %q", got, want)
		}
		if r := Check(obligations); r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s: %s", r.Status, r.Counterexample())
		}
	})

	t.Run("PreconditionViolated", func(t *testing.T) {
		obligations := MustExecute(t, prog, "unchecked")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationCallPrecondition}); diff != "" {
			t.Fatal(diff)
		}

		r := Check(obligations)
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if got, want := r.Counterexample().String(), "a0 = 2147483647"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})

	t.Run("ErrTypeMismatch", func(t *testing.T) {
		if err := Execute(prog, "shared"); !errors.Is(err, hoare.ErrTypeMismatch) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestExecutor_Execute_Quantifier(t *testing.T) {
	prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
    content:
      - ProveControl: {Assert: "forall z: z == 0 || x / z == x / z"}
      - ProveControl: {Assert: "exists z: z > x"}
`)

	// A guarded division inside a quantifier is defined for every binding.
	obligations := MustExecute(t, prog, "f")
	if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationAssert}); diff != "" {
		t.Fatal(diff)
	} else if _, ok := obligations[0].Goal.(*hoare.QuantifierExpr); !ok {
		t.Fatalf("unexpected goal: %s", obligations[0].Goal)
	}

	if r := Check(obligations); r.Status != hoare.StatusUnknown {
		t.Fatalf("unexpected status: %s", r.Status)
	}

	t.Run("SideCondition", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
    content:
      - ProveControl: {Assert: "forall z: x / z == x"}
`)
		// The divisor condition becomes part of the quantified body.
		obligations := MustExecute(t, prog, "f")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationAssert}); diff != "" {
			t.Fatal(diff)
		}
		q, ok := obligations[0].Goal.(*hoare.QuantifierExpr)
		if !ok {
			t.Fatalf("unexpected goal: %s", obligations[0].Goal)
		} else if body, ok := q.Body.(*hoare.BinaryExpr); !ok || body.Op != hoare.AND {
			t.Fatalf("unexpected body: %s", q.Body)
		}
	})
}

func TestExecutor_Execute_SideConditions(t *testing.T) {
	t.Run("Precondition", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [a, {Array: [I32, 2]}, false]
    precondition: "a[5] == 7"
    postcondition: "a[1] == 7"
`)
		// The precondition is assumed but its index must still be in range.
		obligations := MustExecute(t, prog, "f")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationBounds, hoare.ObligationPostcondition}); diff != "" {
			t.Fatal(diff)
		} else if got, want := obligations[0].Desc, "0 <= 5 < 2"; got != want {
			t.Fatalf("Desc=%q, want %q", got, want)
		}

		r := Check(obligations)
		if diff := cmp.Diff(Statuses(r), []hoare.Status{hoare.StatusDisproved, hoare.StatusProved}); diff != "" {
			t.Fatal(diff)
		} else if got, want := r.Counterexample().String(), "a = [0, 0]"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})

	t.Run("Assume", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
      - Declaration: [y, I32, false]
    content:
      - ProveControl: {Assume: "x / y > 0"}

  - name: guarded
    input:
      - Declaration: [x, I32, false]
      - Declaration: [y, I32, false]
    content:
      - ProveControl: {Assume: "y != 0 && x / y > 0"}
`)
		obligations := MustExecute(t, prog, "f")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationDivision}); diff != "" {
			t.Fatal(diff)
		} else if got, want := obligations[0].String(), "#1 division-by-zero: y != 0"; got != want {
			t.Fatalf("String()=%q, want %q", got, want)
		}

		r := Check(obligations)
		if r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		} else if got, want := r.Counterexample().String(), "x = 0, y = 0"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}

		if r := Check(MustExecute(t, prog, "guarded")); r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s", r.Status)
		}
	})

	t.Run("CalleeContract", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: scale
    input:
      - Declaration: [d, I32, false]
    output: I32
    precondition: "d != 0"
    postcondition: "return_value == 100 / d"
    return_value: "100 / d"

  - name: f
    input:
      - Declaration: [y, I32, false]
    content:
      - Binding: {Assignment: [r, I32, "scale(y)", false]}
`)
		// The postcondition's divisor is checked under the callee precondition.
		obligations := MustExecute(t, prog, "f")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationCallPrecondition, hoare.ObligationDivision}); diff != "" {
			t.Fatal(diff)
		} else if got, want := obligations[1].Desc, "d != 0"; got != want {
			t.Fatalf("Desc=%q, want %q", got, want)
		}

		r := Check(obligations)
		if diff := cmp.Diff(Statuses(r), []hoare.Status{hoare.StatusDisproved, hoare.StatusProved}); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestExecutor_Execute_Assignment(t *testing.T) {
	t.Run("TupleAssign", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: swap
    input:
      - Declaration: [x, I32, false]
      - Declaration: [y, I32, false]
    content:
      - Binding: {Assignment: [a, I32, "x", true]}
      - Binding: {Assignment: [b, I32, "y", true]}
      - Assignment: {Tuple: [{Single: [a, "b"]}, {Single: [b, "a"]}]}
      - ProveControl: {Assert: "a == y && b == x"}
      - ProveControl: {Assert: "a == x"}
`)
		obligations := MustExecute(t, prog, "swap")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationAssert}); diff != "" {
			t.Fatal(diff)
		} else if got, want := obligations[0].Desc, "a == x"; got != want {
			t.Fatalf("Desc=%q, want %q", got, want)
		}

		r := Check(obligations)
		if got, want := r.Counterexample().String(), "x = 0, y = 1, a = 1"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})

	t.Run("Assume", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
    content:
      - ProveControl: {Assume: "x > 0"}
      - ProveControl: {Assert: "x >= 1"}
`)
		if r := Check(MustExecute(t, prog, "f")); r.Status != hoare.StatusProved {
			t.Fatalf("unexpected status: %s", r.Status)
		}
	})

	t.Run("Declaration", func(t *testing.T) {
		prog := MustDecodeProgram(t, `
content:
  - name: f
    content:
      - Binding: {Declaration: [v, I32, false]}
      - ProveControl: {Assert: "v == v + 0"}
      - ProveControl: {Assert: "v > 0"}
`)
		obligations := MustExecute(t, prog, "f")
		if diff := cmp.Diff(Kinds(obligations), []hoare.ObligationKind{hoare.ObligationAssert}); diff != "" {
			t.Fatal(diff)
		} else if r := Check(obligations); r.Status != hoare.StatusDisproved {
			t.Fatalf("unexpected status: %s", r.Status)
		}
	})
}

func TestExecutor_Execute_Structural(t *testing.T) {
	for _, tt := range []struct {
		name string
		src  string
		err  error
	}{
		{
			name: "ErrUninitialized",
			src: `
content:
  - name: f
    content:
      - Binding: {Declaration: [u, Unknown, true]}
      - ProveControl: {Assert: "u > 0"}
`,
			err: hoare.ErrUninitialized,
		},
		{
			name: "ErrTypeMismatch",
			src: `
content:
  - name: f
    input:
      - Declaration: [c, Bool, false]
    content:
      - ProveControl: {Assert: "c > 0"}
`,
			err: hoare.ErrTypeMismatch,
		},
		{
			name: "ErrTypeMismatch/Let",
			src: `
content:
  - name: f
    content:
      - Binding: {Assignment: [v, I32, "true", false]}
`,
			err: hoare.ErrTypeMismatch,
		},
		{
			name: "ErrUnknownFunction",
			src: `
content:
  - name: f
    output: I32
    return_value: "g()"
`,
			err: hoare.ErrUnknownFunction,
		},
		{
			name: "ErrDanglingInvariant",
			src: `
content:
  - name: f
    content:
      - ProveControl: {LoopInvariant: "true"}
      - ProveControl: {Assert: "true"}
`,
			err: hoare.ErrDanglingInvariant,
		},
		{
			name: "ErrIfArity",
			src: `
content:
  - name: f
    content:
      - Block: {If: [["true"], [], []]}
`,
			err: hoare.ErrIfArity,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := Execute(MustDecodeProgram(t, tt.src), "f")
			if !errors.Is(err, tt.err) {
				t.Fatalf("unexpected error: %v", err)
			}
			var serr *hoare.StructuralError
			if !errors.As(err, &serr) || serr.Function != "f" {
				t.Fatalf("unexpected error type: %#v", err)
			}
		})
	}
}

func TestObligation_Dump(t *testing.T) {
	prog := MustDecodeProgram(t, `
content:
  - name: f
    input:
      - Declaration: [x, I32, false]
    precondition: "x < 10"
    content:
      - ProveControl: {Assert: "x < 5"}
`)
	obligations := MustExecute(t, prog, "f")
	if len(obligations) != 1 {
		t.Fatalf("unexpected obligations: %d", len(obligations))
	}

	out := obligations[0].Dump()
	for _, s := range []string{"OBLIGATION #1 assert: x < 5", "== CONSTRAINTS", "0. (bvslt x 10)", "== GOAL", "(bvslt x 5)", "== VARIABLES"} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in dump:\n%s", s, out)
		}
	}
}
