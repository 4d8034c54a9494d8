package pipeline

import (
	"math/rand"
	"time"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/shared/errors"
)

// Simulator drives the abstraction workforce over a cohort whose export
// dates are already scheduled.
type Simulator struct {
	params *domain.SimParams
	rng    *rand.Rand
}

// NewSimulator creates a simulator sharing the run's random source.
func NewSimulator(params *domain.SimParams, rng *rand.Rand) *Simulator {
	return &Simulator{params: params, rng: rng}
}

// Run advances assessment dates cycle by cycle until no abstractable work
// remains, assigning abstracted dates as capacity allows. Returns the number
// of cycles taken. The loop is bounded: parameters that can never converge,
// such as zero throughput against pending work, yield a convergence error
// instead of spinning.
func (s *Simulator) Run(cohort domain.Cohort) (int, error) {
	assessment := firstOfMonth(s.params.StudyStart).AddDate(0, s.params.ExportCadenceMonths, 0)
	capacity := s.params.PatientsAbstractedPerMonth * s.params.ExportCadenceMonths
	bound := s.params.CycleBound()

	cycles := 0
	for {
		candidates := s.abstractable(cohort, assessment)
		if len(candidates) == 0 {
			break
		}

		cycles++
		if cycles > bound {
			return cycles, errors.Convergence(bound, len(candidates))
		}

		for _, idx := range s.pick(candidates, capacity) {
			if err := s.abstractPatient(cohort[idx], assessment); err != nil {
				return cycles, err
			}
		}

		assessment = assessment.AddDate(0, s.params.ExportCadenceMonths, 0)

		if cohort.FullyAbstracted() {
			break
		}
	}
	return cycles, nil
}

// abstractable returns the indices of patients with at least one event ready
// for abstraction at the assessment date. Indices keep the cohort's stable
// order, so selection depends only on the seed.
func (s *Simulator) abstractable(cohort domain.Cohort, assessment time.Time) []int {
	var candidates []int
	for i, p := range cohort {
		for _, k := range domain.EventKinds {
			if eventAbstractable(p.Timeline(k), assessment) {
				candidates = append(candidates, i)
				break
			}
		}
	}
	return candidates
}

// pick draws up to n distinct candidates uniformly, via a partial shuffle.
func (s *Simulator) pick(candidates []int, n int) []int {
	if n > len(candidates) {
		n = len(candidates)
	}
	for i := 0; i < n; i++ {
		j := i + s.rng.Intn(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	return candidates[:n]
}

// abstractPatient assigns abstracted dates to every ready event of one
// patient. A selected patient is processed whole: reviewers do not abstract
// half a chart.
func (s *Simulator) abstractPatient(p *domain.Patient, assessment time.Time) error {
	for _, k := range domain.EventKinds {
		tl := p.Timeline(k)
		if !eventAbstractable(tl, assessment) {
			continue
		}
		latency := s.latencyFor(k, p)
		abstracted := tl.Date(domain.StageExported).AddDate(0, 0, latency.Sample(s.rng))
		if err := tl.Set(domain.StageAbstracted, abstracted); err != nil {
			return err
		}
	}
	return nil
}

// latencyFor resolves the abstraction latency range of an event. Drug starts
// carry their own range per drug; the other events use the run parameters.
func (s *Simulator) latencyFor(k domain.EventKind, p *domain.Patient) domain.DayRange {
	switch k {
	case domain.EventDiagnosis:
		return s.params.DiagnosisAbstractionLatencyDays
	case domain.EventDrugStart:
		return p.Drug.AbstractionLatencyDays
	default:
		return s.params.DeathAbstractionLatencyDays
	}
}

// eventAbstractable reports whether an event is in the database by the
// assessment date and still awaiting abstraction.
func eventAbstractable(tl *domain.Timeline, assessment time.Time) bool {
	if tl.Has(domain.StageAbstracted) || !tl.Has(domain.StageExported) {
		return false
	}
	return !tl.Date(domain.StageExported).After(assessment)
}
