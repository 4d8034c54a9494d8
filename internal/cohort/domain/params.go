package domain

import (
	"math/rand"
	"time"

	"github.com/rwdlab/rwdsim/internal/shared/errors"
)

// DefaultMaxAbstractionCycles bounds the abstraction loop when the
// parameters leave MaxAbstractionCycles unset. Convergence is normally
// reached far earlier; the bound only catches misconfigured inputs such as
// zero throughput.
const DefaultMaxAbstractionCycles = 1000

// MaxCohortSize is the largest cohort a single run may request.
const MaxCohortSize = 1_000_000

// DayRange is an inclusive integer range of day offsets.
type DayRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Validate checks that the range is ordered. Negative bounds are allowed.
func (r DayRange) Validate() error {
	if r.Min > r.Max {
		return errors.Configuration("day range min %d exceeds max %d", r.Min, r.Max)
	}
	return nil
}

// ValidateNonNegative checks that the range is ordered and holds no negative
// offsets. Latencies cannot run backwards in time.
func (r DayRange) ValidateNonNegative() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Min < 0 {
		return errors.Configuration("day range must not be negative, got min %d", r.Min)
	}
	return nil
}

// Sample draws a uniform integer offset from the range, bounds inclusive.
func (r DayRange) Sample(rng *rand.Rand) int {
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

// SimParams are the immutable parameters of one simulation run. Constructed
// and validated once at the boundary, read-only thereafter.
type SimParams struct {
	// ObservationStart and ObservationEnd bound the window in which
	// diagnoses occur. Half-open: [start, end).
	ObservationStart time.Time `json:"observation_start"`
	ObservationEnd   time.Time `json:"observation_end"`

	// StudyStart anchors the export cadence: export batches land on the
	// first day of months that are whole cadence multiples past this
	// month. Data predating the study exports at the first boundary after
	// it.
	StudyStart time.Time `json:"study_start"`

	CohortSize int `json:"cohort_size"`

	// ExportCadenceMonths is the fixed interval on which the downstream
	// database ingests new records.
	ExportCadenceMonths int `json:"export_cadence_months"`

	// PatientsAbstractedPerMonth caps how many patients the reviewer
	// workforce processes per month.
	PatientsAbstractedPerMonth int `json:"patients_abstracted_per_month"`

	DeathRecordingLatencyDays       DayRange `json:"death_recording_latency_days"`
	DiagnosisAbstractionLatencyDays DayRange `json:"diagnosis_abstraction_latency_days"`
	DeathAbstractionLatencyDays     DayRange `json:"death_abstraction_latency_days"`

	Drugs []*Drug `json:"drugs"`

	// Seed makes runs reproducible. Zero means seed from the clock.
	Seed int64 `json:"seed"`

	// MaxAbstractionCycles overrides the defensive iteration bound of the
	// abstraction loop. Zero selects DefaultMaxAbstractionCycles.
	MaxAbstractionCycles int `json:"max_abstraction_cycles,omitempty"`
}

// Validate rejects invalid parameters before the simulation starts.
func (p *SimParams) Validate() error {
	if p.ObservationStart.IsZero() || p.ObservationEnd.IsZero() {
		return errors.Configuration("observation window must be set")
	}
	if !p.ObservationEnd.After(p.ObservationStart) {
		return errors.Configuration("observation window must have positive length")
	}
	if p.ObservationEnd.Sub(p.ObservationStart) < 24*time.Hour {
		return errors.Configuration("observation window must span at least one whole day")
	}
	if p.StudyStart.IsZero() {
		return errors.Configuration("study start date must be set")
	}
	if p.CohortSize <= 0 {
		return errors.Configuration("cohort size must be positive, got %d", p.CohortSize)
	}
	if p.CohortSize > MaxCohortSize {
		return errors.Configuration("cohort size %d exceeds maximum %d", p.CohortSize, MaxCohortSize)
	}
	if p.ExportCadenceMonths <= 0 {
		return errors.Configuration("export cadence must be positive, got %d months", p.ExportCadenceMonths)
	}
	if p.PatientsAbstractedPerMonth < 0 {
		return errors.Configuration("abstraction throughput must not be negative, got %d", p.PatientsAbstractedPerMonth)
	}
	if err := p.DeathRecordingLatencyDays.ValidateNonNegative(); err != nil {
		return errors.Wrap(err, "death recording latency range")
	}
	if err := p.DiagnosisAbstractionLatencyDays.ValidateNonNegative(); err != nil {
		return errors.Wrap(err, "diagnosis abstraction latency range")
	}
	if err := p.DeathAbstractionLatencyDays.ValidateNonNegative(); err != nil {
		return errors.Wrap(err, "death abstraction latency range")
	}
	if p.MaxAbstractionCycles < 0 {
		return errors.Configuration("max abstraction cycles must not be negative, got %d", p.MaxAbstractionCycles)
	}
	if len(p.Drugs) == 0 {
		return errors.Configuration("at least one drug must be configured")
	}
	for _, d := range p.Drugs {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CycleBound returns the effective defensive bound for the abstraction loop.
func (p *SimParams) CycleBound() int {
	if p.MaxAbstractionCycles > 0 {
		return p.MaxAbstractionCycles
	}
	return DefaultMaxAbstractionCycles
}

// Date builds a calendar date at UTC midnight. All simulation dates use this
// representation.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
