package domain

import (
	"math/rand"

	"github.com/rwdlab/rwdsim/internal/shared/errors"
)

// DensifyCurve fills a survival curve with one entry per whole year, from its
// first configured year through horizonYears. Missing interior years are
// linearly interpolated between their nearest configured neighbours. Years
// past the last configured one are extrapolated along the slope of the final
// two entries, stopping before the extrapolation reaches zero; a single-entry
// curve is held flat instead.
func DensifyCurve(curve map[int]float64, horizonYears int) (map[int]float64, error) {
	if len(curve) == 0 {
		return nil, errors.Configuration("survival curve must not be empty")
	}
	if horizonYears < 1 {
		return nil, errors.Configuration("observation horizon must be at least 1 year, got %d", horizonYears)
	}

	years := sortedYears(curve)
	first, last := years[0], years[len(years)-1]

	dense := make(map[int]float64, horizonYears-first+1)
	for year := first; year <= horizonYears; year++ {
		if prob, ok := curve[year]; ok {
			dense[year] = prob
			continue
		}
		if year < last {
			lower, upper := bracket(years, year)
			slope := (curve[upper] - curve[lower]) / float64(upper-lower)
			dense[year] = curve[lower] + slope*float64(year-lower)
			continue
		}
		if len(years) < 2 {
			dense[year] = curve[last]
			continue
		}
		prev := years[len(years)-2]
		slope := (curve[last] - curve[prev]) / float64(last-prev)
		prob := curve[last] + slope*float64(year-last)
		if prob <= 0 {
			break
		}
		dense[year] = prob
	}
	return dense, nil
}

// TrendingCurve synthesizes a year-keyed probability series moving from
// startProb in startYear to endProb over periodYears. Increments are drawn
// from rng for variability, scaled so the final year lands exactly on
// endProb; the series is strictly monotone between the endpoints.
func TrendingCurve(startYear, periodYears int, startProb, endProb float64, rng *rand.Rand) (map[int]float64, error) {
	if periodYears < 1 {
		return nil, errors.Configuration("trend period must be at least 1 year, got %d", periodYears)
	}
	if startProb < 0 || startProb > 1 {
		return nil, errors.Configuration("trend start probability must be between 0 and 1, got %g", startProb)
	}
	if endProb < 0 || endProb > 1 {
		return nil, errors.Configuration("trend end probability must be between 0 and 1, got %g", endProb)
	}

	curve := make(map[int]float64, periodYears)
	curve[startYear] = startProb

	if periodYears > 1 {
		increments := make([]float64, periodYears-1)
		total := 0.0
		for i := range increments {
			increments[i] = rng.Float64()
			total += increments[i]
		}

		scale := (endProb - startProb) / total
		prob := startProb
		for i, inc := range increments {
			prob += inc * scale
			curve[startYear+1+i] = prob
		}
	}

	// Rounding drift must not move the final year off the target.
	curve[startYear+periodYears-1] = endProb
	return curve, nil
}

// NormalizeWeights turns a year-keyed weight map into fractions summing to
// one, ordered by ascending year.
func NormalizeWeights(weights map[int]float64) ([]float64, error) {
	if len(weights) == 0 {
		return nil, errors.Configuration("weight map must not be empty")
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return nil, errors.Configuration("weights must sum to a positive total, got %g", total)
	}

	normalized := make([]float64, 0, len(weights))
	for _, year := range sortedYears(weights) {
		normalized = append(normalized, weights[year]/total)
	}
	return normalized, nil
}

// bracket returns the configured years immediately below and above year.
// Callers guarantee year lies strictly inside the configured range.
func bracket(years []int, year int) (lower, upper int) {
	for _, y := range years {
		if y < year {
			lower = y
		} else {
			return lower, y
		}
	}
	return lower, years[len(years)-1]
}
