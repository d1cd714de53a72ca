package linesearch

import (
	"math"

	"github.com/copyleftdev/powell/internal/optimization"
)

// cgold is the golden-section fraction used when a parabolic step is refused.
const cgold = 0.3819660

// Budget limits the work a Refiner spends on one bracket.
type Budget struct {
	// MaxIterations caps the number of refinement steps (one evaluation each).
	MaxIterations int
	// Tolerance is the relative abscissa tolerance.
	Tolerance float64
	// Epsilon is the absolute abscissa tolerance added to the relative one.
	Epsilon float64
}

// Refiner narrows a bracket down to a local minimum.
//
// Refine starts from b.T2 with the known value b.Y2 and never reports a
// value above it. It stops early once a value below critLimit is found.
// When f returns an error the refinement stops, cancelled is true and the
// best abscissa and value seen so far are returned. The error result is
// reserved for invalid arguments.
type Refiner interface {
	Refine(f Func, b Bracket, budget Budget, critLimit float64) (t, value float64, cancelled bool, err error)
}

// BrentRefiner is Brent's combination of parabolic interpolation and
// golden-section search.
type BrentRefiner struct{}

// NewBrentRefiner returns a BrentRefiner.
func NewBrentRefiner() *BrentRefiner {
	return &BrentRefiner{}
}

// Refine implements Refiner.
func (BrentRefiner) Refine(f Func, b Bracket, budget Budget, critLimit float64) (float64, float64, bool, error) {
	const op = "Refine"

	switch {
	case f == nil:
		return b.T2, b.Y2, false, optimization.InvalidArgument(component, op, "nil function")
	case !(b.T1 < b.T2 && b.T2 < b.T3):
		return b.T2, b.Y2, false, optimization.InvalidArgument(component, op,
			"bracket not ordered: %v, %v, %v", b.T1, b.T2, b.T3)
	case budget.MaxIterations < 0:
		return b.T2, b.Y2, false, optimization.InvalidArgument(component, op,
			"negative iteration budget %d", budget.MaxIterations)
	case budget.Tolerance < 0 || budget.Epsilon < 0:
		return b.T2, b.Y2, false, optimization.InvalidArgument(component, op, "negative tolerance")
	}

	lo, hi := b.T1, b.T3
	x, w, v := b.T2, b.T2, b.T2
	fx, fw, fv := b.Y2, b.Y2, b.Y2
	var d, e float64

	for iter := 0; iter < budget.MaxIterations; iter++ {
		if fx < critLimit {
			break
		}

		xm := 0.5 * (lo + hi)
		tol1 := budget.Tolerance*math.Abs(x) + budget.Epsilon
		tol2 := 2 * tol1
		if math.Abs(x-xm) <= tol2-0.5*(hi-lo) {
			break
		}

		golden := true
		if math.Abs(e) > tol1 {
			// Fit a parabola through x, w, v.
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			} else {
				q = -q
			}
			etemp := e
			e = d
			if math.Abs(p) < math.Abs(0.5*q*etemp) && p > q*(lo-x) && p < q*(hi-x) {
				d = p / q
				u := x + d
				if u-lo < tol2 || hi-u < tol2 {
					d = math.Copysign(tol1, xm-x)
				}
				golden = false
			}
		}
		if golden {
			if x >= xm {
				e = lo - x
			} else {
				e = hi - x
			}
			d = cgold * e
		}

		u := x + d
		if math.Abs(d) < tol1 {
			u = x + math.Copysign(tol1, d)
		}
		fu, err := f(u)
		if err != nil {
			return x, fx, true, nil
		}

		if fu <= fx {
			if u >= x {
				lo = x
			} else {
				hi = x
			}
			v, w, x = w, x, u
			fv, fw, fx = fw, fx, fu
			continue
		}

		if u < x {
			lo = u
		} else {
			hi = u
		}
		switch {
		case fu <= fw || w == x:
			v, w = w, u
			fv, fw = fw, fu
		case fu <= fv || v == x || v == w:
			v, fv = u, fu
		}
	}

	return x, fx, false, nil
}
