package objectives

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/powell/internal/optimization"
	"github.com/copyleftdev/powell/internal/optimization/powell"
)

func TestNames(t *testing.T) {
	names := Names()
	assert.Subset(t, names, []string{"beale", "booth", "rosenbrock", "shifted_quadratic", "sphere"})
	assert.True(t, sort.StringsAreSorted(names))
	assert.Len(t, All(), len(names))
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("himmelblau")
	require.Error(t, err)
	assert.ErrorIs(t, err, optimization.ErrInvalidArgument)
}

func TestDimensionConstraints(t *testing.T) {
	tests := []struct {
		name    string
		dim     int
		wantErr bool
	}{
		{name: "sphere", dim: 1},
		{name: "sphere", dim: 0, wantErr: true},
		{name: "rosenbrock", dim: 1, wantErr: true},
		{name: "rosenbrock", dim: 5},
		{name: "booth", dim: 2},
		{name: "booth", dim: 3, wantErr: true},
		{name: "beale", dim: 1, wantErr: true},
	}

	for _, tt := range tests {
		o, err := Lookup(tt.name)
		require.NoError(t, err)
		_, err = o.Func(tt.dim)
		if tt.wantErr {
			assert.ErrorIs(t, err, optimization.ErrInvalidArgument, "%s/%d", tt.name, tt.dim)
		} else {
			assert.NoError(t, err, "%s/%d", tt.name, tt.dim)
		}
	}
}

func TestMinimaAreZero(t *testing.T) {
	for _, o := range All() {
		dim := o.MinDim
		if o.MaxDim == 0 {
			dim = 4
		}
		f, err := o.Func(dim)
		require.NoError(t, err)

		v, err := f(o.MinimumAt(dim))
		require.NoError(t, err)
		assert.InDelta(t, 0, v, 1e-12, o.Name)
	}
}

func TestPowellFindsMinima(t *testing.T) {
	starts := map[string][]float64{
		"sphere":            {1, -2, 0.5},
		"shifted_quadratic": {0, 0, 0, 0},
		"rosenbrock":        {-1.2, 1},
		"booth":             {0, 0},
		"beale":             {2, 0.2},
	}

	for name, x0 := range starts {
		t.Run(name, func(t *testing.T) {
			o, err := Lookup(name)
			require.NoError(t, err)
			f, err := o.Func(len(x0))
			require.NoError(t, err)

			s := powell.DefaultSettings()
			s.Tolerance = 1e-12
			s.MaxIterations = 2000
			result, err := powell.NewOptimizer(s).Optimize(context.Background(), optimization.OptimizerConfig{
				Objective: f,
				Initial:   x0,
			})
			require.NoError(t, err)
			assert.Less(t, result.BestSolution.Value, 1e-4)
		})
	}
}

func TestRegister(t *testing.T) {
	absSum := func(x []float64) float64 {
		sum := 0.0
		for _, v := range x {
			sum += math.Abs(v)
		}
		return sum
	}

	require.NoError(t, Register(New("abs_sum", "sum of absolute values", 1, 0, absSum)))
	assert.Contains(t, Names(), "abs_sum")

	o, err := Lookup("abs_sum")
	require.NoError(t, err)
	f, err := o.Func(3)
	require.NoError(t, err)
	v, err := f([]float64{1, -2, 3})
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	tests := []struct {
		name string
		o    Objective
	}{
		{"duplicate", New("abs_sum", "", 1, 0, absSum)},
		{"builtin duplicate", New("sphere", "", 1, 0, absSum)},
		{"empty name", New("", "", 1, 0, absSum)},
		{"nil function", New("nil_fn", "", 1, 0, nil)},
		{"zero dimension", New("zero_dim", "", 0, 0, absSum)},
		{"inverted bounds", New("inverted", "", 3, 2, absSum)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Register(tt.o), optimization.ErrInvalidArgument)
		})
	}
}
