package pipeline

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/shared/metrics"
	"github.com/rwdlab/rwdsim/internal/shared/types"
)

// Runner executes a full simulation: cohort generation, export scheduling,
// abstraction and the consistency audit.
type Runner struct {
	log zerolog.Logger
}

func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log}
}

// Result is everything a finished run produces.
type Result struct {
	Run        *domain.Run
	Table      domain.Table
	Violations []Violation
	Duration   time.Duration
}

// Execute runs one simulation end to end. Parameters are validated first;
// invalid parameters fail before any work starts. A zero seed is replaced by
// the clock and the effective seed is recorded on the run.
func (r *Runner) Execute(name string, params *domain.SimParams) (*Result, error) {
	start := time.Now()

	if err := params.Validate(); err != nil {
		metrics.RecordRun("rejected", time.Since(start), 0)
		return nil, err
	}

	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	log := r.log.With().Str("run", name).Int64("seed", seed).Logger()
	log.Info().
		Int("cohort_size", params.CohortSize).
		Int("export_cadence_months", params.ExportCadenceMonths).
		Int("patients_abstracted_per_month", params.PatientsAbstractedPerMonth).
		Int("drugs", len(params.Drugs)).
		Msg("starting simulation run")

	cohort, err := domain.NewGenerator(params, rng).Generate()
	if err != nil {
		metrics.RecordRun("failed", time.Since(start), params.CohortSize)
		return nil, err
	}

	if err := ScheduleExports(cohort, params); err != nil {
		metrics.RecordRun("failed", time.Since(start), params.CohortSize)
		return nil, err
	}

	cycles, err := NewSimulator(params, rng).Run(cohort)
	if err != nil {
		log.Error().Err(err).Int("cycles", cycles).Msg("simulation run failed")
		metrics.RecordRun("failed", time.Since(start), params.CohortSize)
		return nil, err
	}

	violations := CheckConsistency(cohort)
	table := domain.BuildTable(cohort)

	run := &domain.Run{
		ID:              types.NewID(),
		Name:            name,
		CreatedAt:       time.Now().UTC(),
		Seed:            seed,
		Cycles:          cycles,
		FullyAbstracted: cohort.FullyAbstracted(),
		Params:          params,
		Violations:      violationStrings(violations),
	}

	duration := time.Since(start)
	metrics.RecordRun("completed", duration, params.CohortSize)
	metrics.RecordConvergence(cycles)
	metrics.AddPatientsAbstracted(countAbstracted(cohort))
	metrics.AddConsistencyViolations(len(violations))

	log.Info().
		Str("run_id", run.ID.String()).
		Int("cycles", cycles).
		Bool("fully_abstracted", run.FullyAbstracted).
		Int("deaths", countDeaths(cohort)).
		Int("treated", countTreated(cohort)).
		Int("violations", len(violations)).
		Dur("duration", duration).
		Msg("simulation run completed")

	return &Result{
		Run:        run,
		Table:      table,
		Violations: violations,
		Duration:   duration,
	}, nil
}

func violationStrings(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.String())
	}
	return out
}

func countAbstracted(cohort domain.Cohort) int {
	n := 0
	for _, p := range cohort {
		if p.FullyAbstracted() {
			n++
		}
	}
	return n
}

func countDeaths(cohort domain.Cohort) int {
	n := 0
	for _, p := range cohort {
		if p.Timeline(domain.EventDeath).Has(domain.StageOccurred) {
			n++
		}
	}
	return n
}

func countTreated(cohort domain.Cohort) int {
	n := 0
	for _, p := range cohort {
		if p.Timeline(domain.EventDrugStart).Has(domain.StageOccurred) {
			n++
		}
	}
	return n
}
