// Package linesearch turns an n-dimensional objective into a function of a
// single step length and provides the one-dimensional bracketing and
// refinement routines used by direction-set minimizers.
package linesearch

import (
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/powell/internal/optimization"
)

// Func is a function of a scalar step length. A non-nil error stops the
// caller, which then reports cancellation.
type Func func(t float64) (float64, error)

// Line binds a base point and a direction so that f(t) evaluates the
// objective at base + t*direction. A Line is built for one line search and
// discarded afterwards; it owns copies of its base point and scratch buffer
// so nothing the caller holds is written during the search.
type Line struct {
	objective optimization.ObjectiveFunction
	base      []float64
	direction []float64
	point     []float64
}

// NewLine binds objective to the line through base along direction.
// base is copied; direction is referenced and must not change while the
// Line is in use.
func NewLine(objective optimization.ObjectiveFunction, base, direction []float64) *Line {
	if len(base) != len(direction) {
		panic("linesearch: base and direction lengths differ")
	}
	return &Line{
		objective: objective,
		base:      append([]float64(nil), base...),
		direction: direction,
		point:     make([]float64, len(base)),
	}
}

// Value evaluates the objective at base + t*direction.
func (l *Line) Value(t float64) (float64, error) {
	floats.AddScaledTo(l.point, l.base, t, l.direction)
	return l.objective(l.point)
}

// Func returns Value as a Func.
func (l *Line) Func() Func {
	return l.Value
}

// Point writes base + t*direction into dst and returns it.
func (l *Line) Point(dst []float64, t float64) []float64 {
	return floats.AddScaledTo(dst, l.base, t, l.direction)
}

// Base returns the line's anchor point.
func (l *Line) Base() []float64 {
	return l.base
}
