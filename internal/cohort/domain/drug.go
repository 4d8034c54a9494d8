package domain

import (
	"sync"

	"github.com/rwdlab/rwdsim/internal/shared/errors"
)

// Drug is an immutable treatment configuration shared by the patients it is
// assigned to. Never mutated after validation.
type Drug struct {
	Name string `json:"name"`

	// SurvivalCurve maps whole years since diagnosis to the cumulative
	// probability of surviving to that year. Values lie strictly between 0
	// and 1 and decrease as years increase.
	SurvivalCurve map[int]float64 `json:"survival_curve"`

	// StartOffsetDays is the window, in days relative to diagnosis, in which
	// a treatment start may fall. Negative offsets are allowed: systemic
	// therapy can begin before the diagnosis is formally confirmed.
	StartOffsetDays DayRange `json:"start_offset_days"`

	// AbstractionLatencyDays is the abstraction latency range for this
	// drug's start event.
	AbstractionLatencyDays DayRange `json:"abstraction_latency_days"`

	// Weight is the integer sampling weight used for per-patient drug
	// selection.
	Weight int `json:"weight"`

	interpOnce sync.Once
	interp     *Interpolator
}

// Validate checks the drug configuration.
func (d *Drug) Validate() error {
	if d.Name == "" {
		return errors.Configuration("drug name must not be empty")
	}
	if len(d.SurvivalCurve) == 0 {
		return errors.Configuration("drug %s: survival curve must not be empty", d.Name)
	}
	prev := 1.0
	for _, year := range sortedYears(d.SurvivalCurve) {
		prob := d.SurvivalCurve[year]
		if year < 1 {
			return errors.Configuration("drug %s: survival curve years must be >= 1, got %d", d.Name, year)
		}
		if prob <= 0 || prob >= 1 {
			return errors.Configuration("drug %s: survival probability for year %d must be strictly between 0 and 1, got %g", d.Name, year, prob)
		}
		if prob >= prev {
			return errors.Configuration("drug %s: survival probabilities must strictly decrease with years, got %g at year %d", d.Name, prob, year)
		}
		prev = prob
	}
	if err := d.StartOffsetDays.Validate(); err != nil {
		return errors.Wrap(err, "drug "+d.Name+": start offset range")
	}
	if err := d.AbstractionLatencyDays.ValidateNonNegative(); err != nil {
		return errors.Wrap(err, "drug "+d.Name+": abstraction latency range")
	}
	if d.Weight <= 0 {
		return errors.Configuration("drug %s: sampling weight must be positive, got %d", d.Name, d.Weight)
	}
	return nil
}

// Sampler returns the inverse survival interpolator for this drug, building
// it on first use. The interpolant is cached for the drug's lifetime, so a
// cohort sharing one drug derives it once.
func (d *Drug) Sampler() *Interpolator {
	d.interpOnce.Do(func() {
		d.interp = newSurvivalInterpolator(d.SurvivalCurve)
	})
	return d.interp
}
