package powell

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/powell/internal/optimization/linesearch"
)

// spyBracketer counts line minimizations (first ladder step) and delegates.
type spyBracketer struct {
	inner  linesearch.Bracketer
	scale  float64
	starts int
}

func (s *spyBracketer) Bracket(f linesearch.Func, low, high float64, npts int, logSpace bool, critLimit float64) (linesearch.Bracket, bool, error) {
	if high == s.scale {
		s.starts++
	}
	return s.inner.Bracket(f, low, high, npts, logSpace, critLimit)
}

// spyRefiner records the budgets it is handed.
type spyRefiner struct {
	inner   linesearch.Refiner
	budgets []linesearch.Budget
}

func (s *spyRefiner) Refine(f linesearch.Func, b linesearch.Bracket, budget linesearch.Budget, critLimit float64) (float64, float64, bool, error) {
	s.budgets = append(s.budgets, budget)
	return s.inner.Refine(f, b, budget, critLimit)
}

func newTestRun(t *testing.T, n int, s *Settings) *run {
	t.Helper()
	resolved := resolve(s)
	require.NoError(t, resolved.validate())
	f := shiftedQuadratic(make([]float64, n))
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i + 1)
	}
	y, _ := f(x)
	return &run{
		ctx:    context.Background(),
		p:      Problem{Func: f},
		s:      resolved,
		logger: resolved.Logger,
		n:      n,
		x:      x,
		dirs:   identity(n),
		st:     state{fbest: y, prevBest: math.Inf(1), replaced: noSlot},
	}
}

func TestSweepSkipsJustReplacedFirstDirection(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		replaced int
		want     int
	}{
		{name: "no replacement", n: 3, replaced: noSlot, want: 3},
		{name: "slot 0 replaced", n: 3, replaced: 0, want: 2},
		{name: "other slot replaced", n: 3, replaced: 2, want: 3},
		{name: "one dimension always searched", n: 1, replaced: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &spyBracketer{inner: linesearch.NewGridBracketer(), scale: 1}
			s := DefaultSettings()
			s.Bracketer = spy

			r := newTestRun(t, tt.n, s)
			r.st.replaced = tt.replaced

			out, maxDelta, maxIndex := r.sweep()
			require.Equal(t, proceed, out)
			assert.Equal(t, tt.want, spy.starts)
			assert.GreaterOrEqual(t, maxDelta, 0.0)
			if tt.replaced == 0 && tt.n > 1 {
				assert.NotEqual(t, 0, maxIndex)
			}
		})
	}
}

func TestSweepTracksLargestDecrease(t *testing.T) {
	r := newTestRun(t, 3, nil)
	// x = (1, 2, 3): the third axis holds the largest decrease.
	out, maxDelta, maxIndex := r.sweep()
	require.Equal(t, proceed, out)
	assert.Equal(t, 2, maxIndex)
	assert.InDelta(t, 9, maxDelta, 1e-6)
	assertFloat64SlicesEqual(t, r.x, []float64{0, 0, 0}, 1e-6)
}

func TestBudgetSelection(t *testing.T) {
	s := DefaultSettings()
	s.Tolerance = 1e-4
	r := newTestRun(t, 2, s)

	light := r.budget()
	assert.Equal(t, linesearch.Budget{MaxIterations: 10, Tolerance: 1e-3, Epsilon: 1e-5}, light)

	r.st.stalls = 1
	thorough := r.budget()
	assert.Equal(t, linesearch.Budget{MaxIterations: 20, Tolerance: 1e-4, Epsilon: 1e-7}, thorough)
}

func TestThoroughBudgetAfterStall(t *testing.T) {
	spy := &spyRefiner{inner: linesearch.NewBrentRefiner()}
	s := DefaultSettings()
	s.Refiner = spy

	x := []float64{2}
	res, err := Minimize(context.Background(), Problem{Func: shiftedQuadratic([]float64{0})}, x, 4, s)
	require.NoError(t, err)
	require.Equal(t, Converged, res.Status)

	require.NotEmpty(t, spy.budgets)
	assert.Equal(t, 10, spy.budgets[0].MaxIterations)
	assert.Equal(t, 20, spy.budgets[len(spy.budgets)-1].MaxIterations)
}

func TestStalled(t *testing.T) {
	tests := []struct {
		name     string
		prevBest float64
		fbest    float64
		want     bool
	}{
		{name: "first pass", prevBest: math.Inf(1), fbest: 10, want: false},
		{name: "first pass infinite start", prevBest: math.Inf(1), fbest: math.Inf(1), want: true},
		{name: "small values absolute improvement", prevBest: 0.5, fbest: 0.5 - 2e-6, want: false},
		{name: "small values absolute stall", prevBest: 0.5, fbest: 0.5 - 5e-7, want: true},
		{name: "large values relative stall", prevBest: 1000, fbest: 1000 - 5e-4, want: true},
		{name: "large values relative improvement", prevBest: 1000, fbest: 1000 - 2e-3, want: false},
		{name: "negative large values", prevBest: -1000, fbest: -1000 - 2e-3, want: false},
		{name: "no change", prevBest: 3, fbest: 3, want: true},
		{name: "nan improvement is progress", prevBest: 3, fbest: math.NaN(), want: false},
		{name: "nan previous best is progress", prevBest: math.NaN(), fbest: 3, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := state{prevBest: tt.prevBest, fbest: tt.fbest}
			assert.Equal(t, tt.want, st.stalled(1e-6, 1))
		})
	}
}

func TestReplacementFavoured(t *testing.T) {
	// Decrease spread over the sweep and continuing along the net
	// direction: replace.
	assert.True(t, replacementFavoured(34.2, 32.9, 31.6, 0.65))
	// Trial barely better than the start: keep the set.
	assert.False(t, replacementFavoured(10, 5, 9.9, 1))
	// No curvature information when nothing improved.
	assert.False(t, replacementFavoured(1, 1, 1, 0))
}

func TestIdentity(t *testing.T) {
	d := identity(3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.Equal(t, want, d.At(i, j))
		}
	}
}

func TestResolveDefaults(t *testing.T) {
	s := resolve(nil)
	assert.Equal(t, DefaultTuning(), s.Tuning)
	assert.NotNil(t, s.Bracketer)
	assert.NotNil(t, s.Refiner)
	assert.NotNil(t, s.Logger)

	custom := &Settings{Scale: 2, Tolerance: 1e-3}
	s = resolve(custom)
	assert.Equal(t, 2.0, s.Scale)
	assert.Equal(t, 7, s.Tuning.BracketPoints)
	assert.Nil(t, custom.Bracketer)
}

func TestResolvePartialTuning(t *testing.T) {
	custom := DefaultSettings()
	custom.Tuning = Tuning{StallLimit: 5, Light: RefineBudget{MaxIterations: 4, ToleranceFactor: 10, Epsilon: 1e-5}}

	s := resolve(custom)
	def := DefaultTuning()
	assert.Equal(t, 5, s.Tuning.StallLimit)
	assert.Equal(t, 4, s.Tuning.Light.MaxIterations)
	assert.Equal(t, def.BracketPoints, s.Tuning.BracketPoints)
	assert.Equal(t, def.BracketMultipliers, s.Tuning.BracketMultipliers)
	assert.Equal(t, def.Thorough, s.Tuning.Thorough)
	assert.Zero(t, s.Tuning.SmallValue)
	require.NoError(t, s.validate())

	x := []float64{2, -1}
	res, err := Minimize(context.Background(), Problem{Func: shiftedQuadratic([]float64{0, 0})}, x, 5, custom)
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Status)
	assert.InDelta(t, 0, res.F, 1e-8)
}
