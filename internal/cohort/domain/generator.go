package domain

import (
	"math"
	"math/rand"
	"time"
)

// Generator draws ground-truth event dates and assembles the synthetic
// cohort. All randomness flows through one seeded source, so a run is fully
// reproducible from its parameters.
type Generator struct {
	params      *SimParams
	rng         *rand.Rand
	totalWeight int
}

// NewGenerator creates a generator over validated parameters.
func NewGenerator(params *SimParams, rng *rand.Rand) *Generator {
	total := 0
	for _, d := range params.Drugs {
		total += d.Weight
	}
	return &Generator{params: params, rng: rng, totalWeight: total}
}

// SampleDiagnosisDate draws a uniform date in [ObservationStart,
// ObservationEnd).
func (g *Generator) SampleDiagnosisDate() time.Time {
	days := int(g.params.ObservationEnd.Sub(g.params.ObservationStart).Hours() / 24)
	return g.params.ObservationStart.AddDate(0, 0, g.rng.Intn(days))
}

// SampleDeathDate draws a survival time from the drug's curve. A draw
// outside the interpolable range means the patient outlives the modeled
// horizon: no death date.
func (g *Generator) SampleDeathDate(diagnosis time.Time, drug *Drug) *time.Time {
	years, ok := drug.Sampler().Eval(g.rng.Float64())
	if !ok {
		return nil
	}
	death := diagnosis.AddDate(0, 0, int(math.Round(years*365.25)))
	return &death
}

// SampleRecordedDate derives the date a death was first noted in the source
// record. Nil death yields nil.
func (g *Generator) SampleRecordedDate(death *time.Time, latency DayRange) *time.Time {
	if death == nil {
		return nil
	}
	recorded := death.AddDate(0, 0, latency.Sample(g.rng))
	return &recorded
}

// SampleTreatmentDate draws a treatment start relative to diagnosis. The
// offset may be negative. Patients who die before the sampled start are
// never treated.
func (g *Generator) SampleTreatmentDate(diagnosis time.Time, death *time.Time, offsets DayRange) *time.Time {
	start := diagnosis.AddDate(0, 0, offsets.Sample(g.rng))
	if death != nil && !start.Before(*death) {
		return nil
	}
	return &start
}

// pickDrug selects a drug by weighted random choice, independently per
// patient.
func (g *Generator) pickDrug() *Drug {
	n := g.rng.Intn(g.totalWeight)
	for _, d := range g.params.Drugs {
		n -= d.Weight
		if n < 0 {
			return d
		}
	}
	return g.params.Drugs[len(g.params.Drugs)-1]
}

// Generate builds the full cohort with ids 1..N assigned in generation
// order. Every exported and abstracted stage starts unset.
func (g *Generator) Generate() (Cohort, error) {
	cohort := make(Cohort, 0, g.params.CohortSize)
	for id := 1; id <= g.params.CohortSize; id++ {
		p := &Patient{ID: id, Drug: g.pickDrug()}

		diagnosis := g.SampleDiagnosisDate()
		death := g.SampleDeathDate(diagnosis, p.Drug)
		recorded := g.SampleRecordedDate(death, g.params.DeathRecordingLatencyDays)
		treatment := g.SampleTreatmentDate(diagnosis, death, p.Drug.StartOffsetDays)

		if err := p.Timeline(EventDiagnosis).Set(StageOccurred, diagnosis); err != nil {
			return nil, err
		}
		if treatment != nil {
			if err := p.Timeline(EventDrugStart).Set(StageOccurred, *treatment); err != nil {
				return nil, err
			}
		}
		if death != nil {
			if err := p.Timeline(EventDeath).Set(StageOccurred, *death); err != nil {
				return nil, err
			}
			if err := p.Timeline(EventDeath).Set(StageRecorded, *recorded); err != nil {
				return nil, err
			}
		}

		cohort = append(cohort, p)
	}
	return cohort, nil
}
