package domain

import (
	"sort"
)

// newSurvivalInterpolator inverts a year→survival-probability curve into a
// probability→year function. The inverted curve is anchored at probability
// 1.0 mapping to year zero: everyone is alive at diagnosis. A uniform draw
// below the lowest tabulated probability falls outside the interpolable
// domain and yields no death within the modeled horizon.
func newSurvivalInterpolator(curve map[int]float64) *Interpolator {
	years := sortedYears(curve)

	// Survival probabilities decrease with years, so ascending probability
	// order is descending year order.
	x := make([]float64, 0, len(years)+1)
	y := make([]float64, 0, len(years)+1)
	for i := len(years) - 1; i >= 0; i-- {
		x = append(x, curve[years[i]])
		y = append(y, float64(years[i]))
	}
	x = append(x, 1.0)
	y = append(y, 0)

	return newInterpolator(x, y)
}

func sortedYears(curve map[int]float64) []int {
	years := make([]int, 0, len(curve))
	for year := range curve {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

// Interpolator is a monotone shape-preserving cubic interpolant
// (Fritsch–Carlson tangents, the PCHIP construction). It never overshoots
// the data and never extrapolates: evaluation outside the knot domain
// reports ok=false.
type Interpolator struct {
	x []float64 // knot positions, strictly ascending
	y []float64 // knot values
	m []float64 // knot tangents
}

func newInterpolator(x, y []float64) *Interpolator {
	n := len(x)
	m := make([]float64, n)

	h := make([]float64, n-1)
	delta := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = x[i+1] - x[i]
		delta[i] = (y[i+1] - y[i]) / h[i]
	}

	m[0] = delta[0]
	m[n-1] = delta[n-2]
	for i := 1; i < n-1; i++ {
		if delta[i-1]*delta[i] <= 0 {
			// Local extremum: a zero tangent keeps the interpolant monotone
			// on both sides.
			m[i] = 0
			continue
		}
		w1 := 2*h[i] + h[i-1]
		w2 := h[i] + 2*h[i-1]
		m[i] = (w1 + w2) / (w1/delta[i-1] + w2/delta[i])
	}

	return &Interpolator{x: x, y: y, m: m}
}

// Eval returns the interpolated value at u. Knot positions evaluate to their
// knot values exactly. ok is false when u lies outside the knot domain.
func (in *Interpolator) Eval(u float64) (float64, bool) {
	n := len(in.x)
	if u < in.x[0] || u > in.x[n-1] {
		return 0, false
	}

	i := sort.SearchFloat64s(in.x, u)
	if i < n && in.x[i] == u {
		return in.y[i], true
	}
	i-- // u lies strictly inside (x[i], x[i+1])

	h := in.x[i+1] - in.x[i]
	t := (u - in.x[i]) / h
	h00 := (1 + 2*t) * (1 - t) * (1 - t)
	h10 := t * (1 - t) * (1 - t)
	h01 := t * t * (3 - 2*t)
	h11 := t * t * (t - 1)
	return h00*in.y[i] + h10*h*in.m[i] + h01*in.y[i+1] + h11*h*in.m[i+1], true
}
