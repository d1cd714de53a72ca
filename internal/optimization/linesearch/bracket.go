package linesearch

import (
	"math"

	"github.com/copyleftdev/powell/internal/optimization"
)

const component = "linesearch"

// golden is the growth factor used when a bracket has to be pushed outward.
const golden = 1.618034

// DefaultMaxExtensions bounds the outward steps GridBracketer takes when the
// lowest sample sits on an end of the grid.
const DefaultMaxExtensions = 16

// Bracket is a triple T1 < T2 < T3 with the function values at each
// abscissa. When Bounded reports true a minimum lies inside [T1, T3].
type Bracket struct {
	T1, Y1 float64
	T2, Y2 float64
	T3, Y3 float64
}

// Bounded reports whether the middle value is strictly below both ends.
func (b Bracket) Bounded() bool {
	return b.Y2 < b.Y1 && b.Y2 < b.Y3
}

// emptyBracket carries no usable point; its middle value is +Inf so callers
// comparing against a current best never adopt it.
func emptyBracket() Bracket {
	inf := math.Inf(1)
	return Bracket{Y1: inf, Y2: inf, Y3: inf}
}

// Bracketer searches an interval for a bracketed minimum.
//
// Bracket samples f at npts abscissas spread over [low, high] (log spaced
// when logSpace is set, which requires low > 0). It returns early, without
// reporting cancellation, as soon as a value below critLimit is seen; the
// returned middle point is then that value. When f returns an error the
// search stops and cancelled is true; the bracket then holds the best point
// seen so far, or +Inf values when nothing was evaluated. The error result
// is reserved for invalid arguments.
type Bracketer interface {
	Bracket(f Func, low, high float64, npts int, logSpace bool, critLimit float64) (b Bracket, cancelled bool, err error)
}

// GridBracketer samples a fixed grid and, when the lowest sample is an end
// point, walks outward with golden-ratio growth until the function rises.
type GridBracketer struct {
	// MaxExtensions bounds the outward walk; 0 means DefaultMaxExtensions,
	// a negative value disables it.
	MaxExtensions int
}

// NewGridBracketer returns a GridBracketer with default settings.
func NewGridBracketer() *GridBracketer {
	return &GridBracketer{}
}

// Bracket implements Bracketer.
func (g *GridBracketer) Bracket(f Func, low, high float64, npts int, logSpace bool, critLimit float64) (Bracket, bool, error) {
	const op = "Bracket"

	switch {
	case f == nil:
		return emptyBracket(), false, optimization.InvalidArgument(component, op, "nil function")
	case npts < 3:
		return emptyBracket(), false, optimization.InvalidArgument(component, op, "need at least 3 points, got %d", npts)
	case !(high > low):
		return emptyBracket(), false, optimization.InvalidArgument(component, op, "empty interval [%v, %v]", low, high)
	case logSpace && !(low > 0):
		return emptyBracket(), false, optimization.InvalidArgument(component, op, "log spacing needs low > 0, got %v", low)
	}

	ts := abscissas(low, high, npts, logSpace)
	ys := make([]float64, npts)
	ibest := -1

	for i, t := range ts {
		y, err := f(t)
		if err != nil {
			if ibest < 0 {
				return emptyBracket(), true, nil
			}
			return around(ts[:i], ys[:i], ibest), true, nil
		}
		ys[i] = y
		if ibest < 0 || y < ys[ibest] {
			ibest = i
		}
		if y < critLimit {
			return around(ts[:i+1], ys[:i+1], i), false, nil
		}
	}

	if ibest > 0 && ibest < npts-1 {
		return around(ts, ys, ibest), false, nil
	}

	limit := g.MaxExtensions
	if limit == 0 {
		limit = DefaultMaxExtensions
	}

	// The lowest sample is an end point: walk outward from it.
	var inner, outer int
	if ibest == 0 {
		inner, outer = 1, 0
	} else {
		inner, outer = npts-2, npts-1
	}
	return extend(f, ts[inner], ys[inner], ts[outer], ys[outer], limit, critLimit)
}

// abscissas returns npts ascending points covering [low, high].
func abscissas(low, high float64, npts int, logSpace bool) []float64 {
	ts := make([]float64, npts)
	last := float64(npts - 1)
	for i := range ts {
		frac := float64(i) / last
		if logSpace {
			ts[i] = low * math.Pow(high/low, frac)
		} else {
			ts[i] = low + frac*(high-low)
		}
	}
	ts[0], ts[npts-1] = low, high
	return ts
}

// around builds the bracket centred on sample i of an ascending grid. At a
// grid end the missing neighbour is mirrored from the other side so that
// T1 < T2 < T3 still holds; its value is taken equal to the middle one,
// which keeps Bounded false.
func around(ts, ys []float64, i int) Bracket {
	b := Bracket{T2: ts[i], Y2: ys[i]}
	n := len(ts)

	var step float64
	switch {
	case i > 0:
		step = ts[i] - ts[i-1]
	case i+1 < n:
		step = ts[i+1] - ts[i]
	default:
		step = math.Max(math.Abs(ts[i])*1e-3, 1e-3)
	}

	if i > 0 {
		b.T1, b.Y1 = ts[i-1], ys[i-1]
	} else {
		b.T1, b.Y1 = ts[i]-step, ys[i]
	}
	if i+1 < n {
		b.T3, b.Y3 = ts[i+1], ys[i+1]
	} else {
		b.T3, b.Y3 = ts[i]+step, ys[i]
	}
	return b
}

// extend walks from inner through outer and beyond while the function keeps
// decreasing. (a, fa) is the inner point, (b, fb) the current lowest.
func extend(f Func, a, fa, b, fb float64, limit int, critLimit float64) (Bracket, bool, error) {
	for k := 0; k < limit; k++ {
		c := b + golden*(b-a)
		fc, err := f(c)
		if err != nil {
			return ordered(a, fa, b, fb, b+(b-a), fb), true, nil
		}
		if fc >= fb {
			return ordered(a, fa, b, fb, c, fc), false, nil
		}
		a, fa, b, fb = b, fb, c, fc
		if fb < critLimit {
			return ordered(a, fa, b, fb, b+(b-a), fb), false, nil
		}
	}
	// Still descending; hand back the best point with flat ends.
	return ordered(a, fa, b, fb, b+(b-a), fb), false, nil
}

// ordered returns the bracket of three collinear samples with b in the
// middle, sorted so that T1 < T3.
func ordered(a, fa, b, fb, c, fc float64) Bracket {
	if a > c {
		a, fa, c, fc = c, fc, a, fa
	}
	return Bracket{T1: a, Y1: fa, T2: b, Y2: fb, T3: c, Y3: fc}
}
