package domain

import (
	"math/rand"
	"testing"
	"time"
)

func TestGeneratorDiagnosisWindow(t *testing.T) {
	params := validParams()
	g := NewGenerator(params, rand.New(rand.NewSource(1)))

	for i := 0; i < 1000; i++ {
		d := g.SampleDiagnosisDate()
		if d.Before(params.ObservationStart) || !d.Before(params.ObservationEnd) {
			t.Fatalf("diagnosis %v outside [%v, %v)", d, params.ObservationStart, params.ObservationEnd)
		}
	}
}

func TestGeneratorNarrowestWindow(t *testing.T) {
	params := validParams()
	params.ObservationStart = Date(2020, time.January, 1)
	params.ObservationEnd = Date(2020, time.January, 2)
	if err := params.Validate(); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator(params, rand.New(rand.NewSource(6)))
	for i := 0; i < 100; i++ {
		if d := g.SampleDiagnosisDate(); !d.Equal(params.ObservationStart) {
			t.Fatalf("one-day window sampled %v, want %v", d, params.ObservationStart)
		}
	}
}

func TestGeneratorRecordingLatency(t *testing.T) {
	params := validParams()
	params.DeathRecordingLatencyDays = DayRange{Min: 3, Max: 10}
	g := NewGenerator(params, rand.New(rand.NewSource(2)))

	death := Date(2020, time.June, 1)
	for i := 0; i < 200; i++ {
		recorded := g.SampleRecordedDate(&death, params.DeathRecordingLatencyDays)
		if recorded == nil {
			t.Fatal("recorded date missing for a death")
		}
		gap := int(recorded.Sub(death).Hours() / 24)
		if gap < 3 || gap > 10 {
			t.Fatalf("recording gap %d days outside [3, 10]", gap)
		}
	}
	if got := g.SampleRecordedDate(nil, params.DeathRecordingLatencyDays); got != nil {
		t.Error("no death should mean no recorded date")
	}
}

func TestGeneratorTreatmentAgainstDeath(t *testing.T) {
	params := validParams()
	g := NewGenerator(params, rand.New(rand.NewSource(3)))

	diagnosis := Date(2020, time.June, 1)
	offsets := DayRange{Min: 10, Max: 10}

	t.Run("death before start suppresses treatment", func(t *testing.T) {
		death := Date(2020, time.June, 5)
		if got := g.SampleTreatmentDate(diagnosis, &death, offsets); got != nil {
			t.Errorf("treatment %v should be suppressed by death %v", got, death)
		}
	})

	t.Run("death on start date suppresses treatment", func(t *testing.T) {
		death := Date(2020, time.June, 11)
		if got := g.SampleTreatmentDate(diagnosis, &death, offsets); got != nil {
			t.Errorf("treatment on the death date should be suppressed")
		}
	})

	t.Run("death after start keeps treatment", func(t *testing.T) {
		death := Date(2020, time.July, 1)
		got := g.SampleTreatmentDate(diagnosis, &death, offsets)
		if got == nil || !got.Equal(Date(2020, time.June, 11)) {
			t.Errorf("treatment = %v, want 2020-06-11", got)
		}
	})

	t.Run("negative offset starts before diagnosis", func(t *testing.T) {
		got := g.SampleTreatmentDate(diagnosis, nil, DayRange{Min: -5, Max: -5})
		if got == nil || !got.Equal(Date(2020, time.May, 27)) {
			t.Errorf("treatment = %v, want 2020-05-27", got)
		}
	})
}

func TestGeneratorWeightedDrugChoice(t *testing.T) {
	params := validParams()
	heavy := &Drug{
		Name:          "heavy",
		SurvivalCurve: map[int]float64{1: 0.8},
		Weight:        9,
	}
	light := &Drug{
		Name:          "light",
		SurvivalCurve: map[int]float64{1: 0.8},
		Weight:        1,
	}
	params.Drugs = []*Drug{heavy, light}
	g := NewGenerator(params, rand.New(rand.NewSource(4)))

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		counts[g.pickDrug().Name]++
	}
	if counts["heavy"] < 8500 || counts["heavy"] > 9500 {
		t.Errorf("heavy drug picked %d of 10000, want near 9000", counts["heavy"])
	}
	if counts["heavy"]+counts["light"] != 10000 {
		t.Errorf("picks should cover every draw, got %v", counts)
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	build := func() Cohort {
		// Drugs cache their interpolator, fresh copies keep the runs
		// independent.
		p := validParams()
		p.CohortSize = 50
		cohort, err := NewGenerator(p, rand.New(rand.NewSource(99))).Generate()
		if err != nil {
			t.Fatal(err)
		}
		return cohort
	}

	a, b := build(), build()
	if len(a) != len(b) {
		t.Fatalf("cohort sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Drug.Name != b[i].Drug.Name {
			t.Fatalf("patient %d drug differs: %s vs %s", a[i].ID, a[i].Drug.Name, b[i].Drug.Name)
		}
		for _, k := range EventKinds {
			da, db := a[i].Timeline(k).Date(StageOccurred), b[i].Timeline(k).Date(StageOccurred)
			if (da == nil) != (db == nil) {
				t.Fatalf("patient %d %s presence differs", a[i].ID, k)
			}
			if da != nil && !da.Equal(*db) {
				t.Fatalf("patient %d %s differs: %v vs %v", a[i].ID, k, da, db)
			}
		}
	}
}

func TestGenerateAssignsSequentialIDs(t *testing.T) {
	params := validParams()
	params.CohortSize = 10
	cohort, err := NewGenerator(params, rand.New(rand.NewSource(5))).Generate()
	if err != nil {
		t.Fatal(err)
	}
	if len(cohort) != 10 {
		t.Fatalf("cohort size = %d, want 10", len(cohort))
	}
	for i, p := range cohort {
		if p.ID != i+1 {
			t.Fatalf("patient at index %d has id %d", i, p.ID)
		}
		if !p.Timeline(EventDiagnosis).Has(StageOccurred) {
			t.Fatalf("patient %d has no diagnosis", p.ID)
		}
		if p.Timeline(EventDiagnosis).Has(StageExported) {
			t.Fatalf("patient %d already exported", p.ID)
		}
	}
}
