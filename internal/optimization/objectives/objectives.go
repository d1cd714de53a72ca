// Package objectives is a registry of named test functions for the CLI and
// the HTTP service.
package objectives

import (
	"sort"
	"sync"

	"github.com/copyleftdev/powell/internal/optimization"
)

const component = "objectives"

// Objective is a named test function together with its dimension
// constraint.
type Objective struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	MinDim      int       `json:"min_dim"`
	MaxDim      int       `json:"max_dim,omitempty"` // 0 means unbounded
	Minimum     []float64 `json:"-"`

	fn func(x []float64) float64
}

// Func returns the objective as an optimization.ObjectiveFunction after
// checking that dim is allowed.
func (o Objective) Func(dim int) (optimization.ObjectiveFunction, error) {
	if err := o.checkDim(dim); err != nil {
		return nil, err
	}
	fn := o.fn
	return func(x []float64) (float64, error) {
		return fn(x), nil
	}, nil
}

func (o Objective) checkDim(dim int) error {
	if dim < o.MinDim || (o.MaxDim > 0 && dim > o.MaxDim) {
		if o.MaxDim == o.MinDim {
			return optimization.InvalidArgument(component, "Func", "%s needs exactly %d variables, got %d", o.Name, o.MinDim, dim)
		}
		return optimization.InvalidArgument(component, "Func", "%s needs at least %d variables, got %d", o.Name, o.MinDim, dim)
	}
	return nil
}

// New builds an objective from fn. maxDim 0 means no upper bound.
func New(name, description string, minDim, maxDim int, fn func(x []float64) float64) Objective {
	return Objective{
		Name:        name,
		Description: description,
		MinDim:      minDim,
		MaxDim:      maxDim,
		fn:          fn,
	}
}

var (
	mu       sync.RWMutex
	registry = map[string]Objective{
		"sphere": {
			Name:        "sphere",
			Description: "sum of squares, minimum 0 at the origin",
			MinDim:      1,
			fn:          sphere,
		},
		"shifted_quadratic": {
			Name:        "shifted_quadratic",
			Description: "separable quadratic with minimum 0 at (3, -2, 3, -2, ...)",
			MinDim:      1,
			fn:          shiftedQuadratic,
		},
		"rosenbrock": {
			Name:        "rosenbrock",
			Description: "extended Rosenbrock valley, minimum 0 at (1, ..., 1)",
			MinDim:      2,
			fn:          rosenbrock,
		},
		"booth": {
			Name:        "booth",
			Description: "Booth function, minimum 0 at (1, 3)",
			MinDim:      2,
			MaxDim:      2,
			Minimum:     []float64{1, 3},
			fn:          booth,
		},
		"beale": {
			Name:        "beale",
			Description: "Beale function, minimum 0 at (3, 0.5)",
			MinDim:      2,
			MaxDim:      2,
			Minimum:     []float64{3, 0.5},
			fn:          beale,
		},
	}
)

// Register adds o to the registry. Names must be unique.
func Register(o Objective) error {
	switch {
	case o.Name == "":
		return optimization.InvalidArgument(component, "Register", "empty objective name")
	case o.fn == nil:
		return optimization.InvalidArgument(component, "Register", "%s has no function", o.Name)
	case o.MinDim < 1 || (o.MaxDim != 0 && o.MaxDim < o.MinDim):
		return optimization.InvalidArgument(component, "Register", "%s has invalid dimensions [%d, %d]", o.Name, o.MinDim, o.MaxDim)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[o.Name]; ok {
		return optimization.InvalidArgument(component, "Register", "objective %q already registered", o.Name)
	}
	registry[o.Name] = o
	return nil
}

// Lookup returns the objective registered under name.
func Lookup(name string) (Objective, error) {
	mu.RLock()
	o, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return Objective{}, optimization.InvalidArgument(component, "Lookup", "unknown objective %q", name)
	}
	return o, nil
}

// Names returns the registered objective names in sorted order.
func Names() []string {
	mu.RLock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	mu.RUnlock()
	sort.Strings(names)
	return names
}

// All returns every registered objective sorted by name.
func All() []Objective {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Objective, 0, len(registry))
	for _, o := range registry {
		out = append(out, o)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// MinimumAt returns the known minimizer of o in dim dimensions.
func (o Objective) MinimumAt(dim int) []float64 {
	if o.Minimum != nil {
		return append([]float64(nil), o.Minimum...)
	}
	x := make([]float64, dim)
	for i := range x {
		switch o.Name {
		case "rosenbrock":
			x[i] = 1
		case "shifted_quadratic":
			x[i] = shift(i)
		}
	}
	return x
}

func shift(i int) float64 {
	if i%2 == 0 {
		return 3
	}
	return -2
}

func sphere(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func shiftedQuadratic(x []float64) float64 {
	sum := 0.0
	for i, v := range x {
		d := v - shift(i)
		sum += d * d
	}
	return sum
}

func rosenbrock(x []float64) float64 {
	sum := 0.0
	for i := 0; i+1 < len(x); i++ {
		a := 1 - x[i]
		b := x[i+1] - x[i]*x[i]
		sum += a*a + 100*b*b
	}
	return sum
}

func booth(x []float64) float64 {
	a := x[0] + 2*x[1] - 7
	b := 2*x[0] + x[1] - 5
	return a*a + b*b
}

func beale(x []float64) float64 {
	u, v := x[0], x[1]
	a := 1.5 - u + u*v
	b := 2.25 - u + u*v*v
	c := 2.625 - u + u*v*v*v
	return a*a + b*b + c*c
}
