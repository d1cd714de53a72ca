package powell

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/powell/internal/optimization"
)

// shiftedQuadratic returns sum (x_i - c_i)^2.
func shiftedQuadratic(c []float64) optimization.ObjectiveFunction {
	return func(x []float64) (float64, error) {
		sum := 0.0
		for i, v := range x {
			d := v - c[i]
			sum += d * d
		}
		return sum, nil
	}
}

func rosenbrock(x []float64) (float64, error) {
	sum := 0.0
	for i := 0; i+1 < len(x); i++ {
		a := 1 - x[i]
		b := x[i+1] - x[i]*x[i]
		sum += a*a + 100*b*b
	}
	return sum, nil
}

// valley is a rotated, badly scaled quadratic with its minimum at (1, 1).
func valley(x []float64) (float64, error) {
	u := x[0] - x[1]
	v := x[0] + x[1] - 2
	return 100*u*u + v*v, nil
}

// countingObjective counts calls and, when limit >= 0, fails with
// ErrCancelled once limit calls have been made.
func countingObjective(f optimization.ObjectiveFunction, limit int) (optimization.ObjectiveFunction, *int) {
	calls := 0
	return func(x []float64) (float64, error) {
		if limit >= 0 && calls >= limit {
			return 0, optimization.ErrCancelled
		}
		calls++
		return f(x)
	}, &calls
}

func mustEval(t *testing.T, f optimization.ObjectiveFunction, x []float64) float64 {
	t.Helper()
	v, err := f(x)
	if err != nil {
		t.Fatalf("objective failed: %v", err)
	}
	return v
}

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// assertUnitRows checks every row of m has Euclidean norm 1.
func assertUnitRows(t *testing.T, m *mat.Dense, tol float64) {
	t.Helper()

	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		norm := floats.Norm(m.RawRowView(i), 2)
		if math.Abs(norm-1) > tol {
			t.Fatalf("row %d has norm %v", i, norm)
		}
	}
}
