package domain

import (
	"testing"
	"time"

	"github.com/rwdlab/rwdsim/internal/shared/errors"
)

func validParams() *SimParams {
	return &SimParams{
		ObservationStart:                Date(2019, time.January, 1),
		ObservationEnd:                  Date(2020, time.December, 31),
		StudyStart:                      Date(2020, time.January, 1),
		CohortSize:                      100,
		ExportCadenceMonths:             1,
		PatientsAbstractedPerMonth:      50,
		DeathRecordingLatencyDays:       DayRange{Min: 0, Max: 14},
		DiagnosisAbstractionLatencyDays: DayRange{Min: 0, Max: 30},
		DeathAbstractionLatencyDays:     DayRange{Min: 0, Max: 30},
		Drugs: []*Drug{{
			Name:                   "drug-a",
			SurvivalCurve:          map[int]float64{1: 0.85, 3: 0.45, 5: 0.32},
			StartOffsetDays:        DayRange{Min: -30, Max: 60},
			AbstractionLatencyDays: DayRange{Min: 0, Max: 30},
			Weight:                 1,
		}},
		Seed: 1,
	}
}

func TestSimParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SimParams)
		wantErr bool
	}{
		{"valid", func(p *SimParams) {}, false},
		{"missing observation window", func(p *SimParams) { p.ObservationStart = time.Time{} }, true},
		{"inverted observation window", func(p *SimParams) {
			p.ObservationStart, p.ObservationEnd = p.ObservationEnd, p.ObservationStart
		}, true},
		{"sub-day observation window", func(p *SimParams) {
			p.ObservationStart = Date(2020, time.January, 1)
			p.ObservationEnd = Date(2020, time.January, 1).Add(12 * time.Hour)
		}, true},
		{"one-day observation window is allowed", func(p *SimParams) {
			p.ObservationStart = Date(2020, time.January, 1)
			p.ObservationEnd = Date(2020, time.January, 2)
		}, false},
		{"missing study start", func(p *SimParams) { p.StudyStart = time.Time{} }, true},
		{"zero cohort", func(p *SimParams) { p.CohortSize = 0 }, true},
		{"cohort above cap", func(p *SimParams) { p.CohortSize = MaxCohortSize + 1 }, true},
		{"zero cadence", func(p *SimParams) { p.ExportCadenceMonths = 0 }, true},
		{"negative throughput", func(p *SimParams) { p.PatientsAbstractedPerMonth = -1 }, true},
		{"zero throughput is allowed", func(p *SimParams) { p.PatientsAbstractedPerMonth = 0 }, false},
		{"negative recording latency", func(p *SimParams) {
			p.DeathRecordingLatencyDays = DayRange{Min: -1, Max: 5}
		}, true},
		{"inverted latency range", func(p *SimParams) {
			p.DiagnosisAbstractionLatencyDays = DayRange{Min: 10, Max: 5}
		}, true},
		{"no drugs", func(p *SimParams) { p.Drugs = nil }, true},
		{"negative cycle bound", func(p *SimParams) { p.MaxAbstractionCycles = -1 }, true},
		{"drug curve probability at one", func(p *SimParams) {
			p.Drugs[0].SurvivalCurve = map[int]float64{1: 1.0}
		}, true},
		{"drug curve not decreasing", func(p *SimParams) {
			p.Drugs[0].SurvivalCurve = map[int]float64{1: 0.5, 2: 0.6}
		}, true},
		{"drug curve year zero", func(p *SimParams) {
			p.Drugs[0].SurvivalCurve = map[int]float64{0: 0.5}
		}, true},
		{"drug zero weight", func(p *SimParams) { p.Drugs[0].Weight = 0 }, true},
		{"negative drug start offset allowed", func(p *SimParams) {
			p.Drugs[0].StartOffsetDays = DayRange{Min: -90, Max: -10}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate should fail")
				}
				if !errors.Is(err, errors.ErrConfiguration) {
					t.Errorf("error should be a configuration error, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
		})
	}
}

func TestCycleBound(t *testing.T) {
	p := validParams()
	if got := p.CycleBound(); got != DefaultMaxAbstractionCycles {
		t.Errorf("CycleBound = %d, want default %d", got, DefaultMaxAbstractionCycles)
	}
	p.MaxAbstractionCycles = 7
	if got := p.CycleBound(); got != 7 {
		t.Errorf("CycleBound = %d, want 7", got)
	}
}
