//go:build cgo

package z3_test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/hoare"
	"github.com/benbjohnson/hoare/ir"
	"github.com/benbjohnson/hoare/z3"
	"github.com/google/go-cmp/cmp"
)

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

// NewVerifier returns a verifier backed by Z3 sessions.
func NewVerifier() *hoare.Verifier {
	v := hoare.NewVerifier(func() (hoare.Solver, error) { return z3.NewSolver(), nil })
	v.Timeout = 10 * time.Second
	return v
}

func TestVerifier(t *testing.T) {
	for _, tt := range []struct {
		path string
		want map[string]hoare.Status
	}{
		{
			path: "../testdata/remainder.yaml",
			want: map[string]hoare.Status{
				"remainder":         hoare.StatusProved,
				"remainder_partial": hoare.StatusProved,
			},
		},
		{
			path: "../testdata/abs.yaml",
			want: map[string]hoare.Status{
				"abs":         hoare.StatusDisproved,
				"abs_checked": hoare.StatusProved,
				"abs_loop":    hoare.StatusInvalid,
			},
		},
		{
			path: "../testdata/fill.yaml",
			want: map[string]hoare.Status{
				"fill":         hoare.StatusProved,
				"fill_overrun": hoare.StatusDisproved,
			},
		},
		{
			path: "../testdata/sum.yaml",
			want: map[string]hoare.Status{
				"sum":           hoare.StatusDisproved,
				"sum_unbounded": hoare.StatusDisproved,
				"sum_weak":      hoare.StatusDisproved,
			},
		},
	} {
		t.Run(tt.path, func(t *testing.T) {
			results, err := NewVerifier().VerifyProgram(context.Background(), MustOpenProgram(t, tt.path))
			if err != nil {
				t.Fatal(err)
			}
			for _, r := range results {
				if want := tt.want[r.Function]; r.Status != want {
					t.Errorf("%s: status=%s, want %s (%s)", r.Function, r.Status, want, r.Reason())
				}
			}
		})
	}

	t.Run("Counterexample", func(t *testing.T) {
		prog := MustOpenProgram(t, "../testdata/abs.yaml")
		r, err := NewVerifier().VerifyFunction(context.Background(), prog, prog.Function("abs"))
		if err != nil {
			t.Fatal(err)
		} else if got, want := r.Counterexample().String(), "x = -2147483648, return_value = -2147483648"; got != want {
			t.Fatalf("counterexample=%q, want %q", got, want)
		}
	})

	t.Run("Overrun", func(t *testing.T) {
		prog := MustOpenProgram(t, "../testdata/fill.yaml")
		r, err := NewVerifier().VerifyFunction(context.Background(), prog, prog.Function("fill_overrun"))
		if err != nil {
			t.Fatal(err)
		} else if v, _ := r.Counterexample().Get("i"); v != "2" {
			t.Fatalf("unexpected counterexample: %s", r.Counterexample())
		}
	})

	// Preservation fails only once i*(i-1) wraps.
	t.Run("SumOverflow", func(t *testing.T) {
		prog := MustOpenProgram(t, "../testdata/sum.yaml")
		r, err := NewVerifier().VerifyFunction(context.Background(), prog, prog.Function("sum"))
		if err != nil {
			t.Fatal(err)
		} else if failures := r.Failures(); len(failures) != 1 || failures[0].Obligation.Kind != hoare.ObligationInvariantPreserved {
			t.Fatalf("unexpected failures: status=%s n=%d", r.Status, len(failures))
		}
	})

	t.Run("AbsIf", func(t *testing.T) {
		prog, err := ir.Decode(strings.NewReader(absIfProgram))
		if err != nil {
			t.Fatal(err)
		}

		results, err := NewVerifier().VerifyProgram(context.Background(), prog)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range results {
			if r.Status != hoare.StatusDisproved {
				t.Fatalf("%s: unexpected status: %s", r.Function, r.Status)
			}
		}

		// Negating the minimum value wraps to itself.
		if v, _ := results[0].Counterexample().Get("x"); v != "-2147483648" {
			t.Fatalf("unexpected counterexample: %s", results[0].Counterexample())
		}

		// Any negative input other than the minimum differs from its negation.
		v, _ := results[1].Counterexample().Get("x")
		if x, err := strconv.ParseInt(v, 10, 32); err != nil || x >= 0 {
			t.Fatalf("unexpected counterexample: %s", results[1].Counterexample())
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		prog := MustOpenProgram(t, "../testdata/abs.yaml")
		v := NewVerifier()

		summarize := func() []string {
			results, err := v.VerifyProgram(context.Background(), prog)
			if err != nil {
				t.Fatal(err)
			}
			a := make([]string, len(results))
			for i, r := range results {
				a[i] = fmt.Sprintf("%s: %s: %s", r.Function, r.Status, r.Counterexample())
			}
			return a
		}

		if diff := cmp.Diff(summarize(), summarize()); diff != "" {
			t.Fatal(diff)
		}
	})
}

const absIfProgram = `
content:
  - name: abs
    input:
      - Declaration: [x, I32, false]
    output: I32
    postcondition: "return_value >= 0"
    content:
      - Binding: {Assignment: [r, I32, "0", true]}
      - Block:
          If:
            - ["x < 0"]
            - [[{Assignment: {Single: [r, "-x"]}}]]
            - [{Assignment: {Single: [r, "x"]}}]
    return_value: "r"

  - name: abs_eq
    input:
      - Declaration: [x, I32, false]
    output: I32
    postcondition: "return_value == x"
    content:
      - Binding: {Assignment: [r, I32, "0", true]}
      - Block:
          If:
            - ["x < 0"]
            - [[{Assignment: {Single: [r, "-x"]}}]]
            - [{Assignment: {Single: [r, "x"]}}]
    return_value: "r"
`
