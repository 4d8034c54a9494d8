package domain

import (
	"testing"
	"time"
)

func TestTimelineSetOrdering(t *testing.T) {
	occurred := Date(2020, time.March, 10)

	t.Run("stage before occurred is rejected", func(t *testing.T) {
		var tl Timeline
		if err := tl.Set(StageExported, Date(2020, time.April, 1)); err == nil {
			t.Error("Set(exported) before occurred should fail")
		}
	})

	t.Run("stage preceding its basis is rejected", func(t *testing.T) {
		var tl Timeline
		if err := tl.Set(StageOccurred, occurred); err != nil {
			t.Fatal(err)
		}
		if err := tl.Set(StageExported, Date(2020, time.March, 1)); err == nil {
			t.Error("export before the occurred date should fail")
		}
	})

	t.Run("recorded gap is skipped", func(t *testing.T) {
		// Diagnosis never gets a recorded date; export compares against
		// occurred instead.
		var tl Timeline
		if err := tl.Set(StageOccurred, occurred); err != nil {
			t.Fatal(err)
		}
		if err := tl.Set(StageExported, Date(2020, time.April, 1)); err != nil {
			t.Errorf("export after occurred should succeed: %v", err)
		}
		if err := tl.Set(StageAbstracted, Date(2020, time.April, 15)); err != nil {
			t.Errorf("abstraction after export should succeed: %v", err)
		}
	})

	t.Run("export compares against recorded when set", func(t *testing.T) {
		var tl Timeline
		if err := tl.Set(StageOccurred, occurred); err != nil {
			t.Fatal(err)
		}
		if err := tl.Set(StageRecorded, Date(2020, time.March, 20)); err != nil {
			t.Fatal(err)
		}
		if err := tl.Set(StageExported, Date(2020, time.March, 15)); err == nil {
			t.Error("export before the recorded date should fail")
		}
	})
}

func TestTimelineExportBasis(t *testing.T) {
	occurred := Date(2020, time.March, 10)
	recorded := Date(2020, time.March, 25)

	var tl Timeline
	if tl.ExportBasis() != nil {
		t.Error("empty timeline has no export basis")
	}

	tl.Set(StageOccurred, occurred)
	if got := tl.ExportBasis(); got == nil || !got.Equal(occurred) {
		t.Errorf("ExportBasis = %v, want occurred %v", got, occurred)
	}

	tl.Set(StageRecorded, recorded)
	if got := tl.ExportBasis(); got == nil || !got.Equal(recorded) {
		t.Errorf("ExportBasis = %v, want recorded %v", got, recorded)
	}
}

func TestPatientFullyAbstracted(t *testing.T) {
	p := &Patient{ID: 1}

	// No occurred events at all counts as fully abstracted.
	if !p.FullyAbstracted() {
		t.Error("empty patient should be fully abstracted")
	}

	diag := p.Timeline(EventDiagnosis)
	diag.Set(StageOccurred, Date(2020, time.March, 10))
	if p.FullyAbstracted() {
		t.Error("pending diagnosis should block full abstraction")
	}

	diag.Set(StageExported, Date(2020, time.April, 1))
	diag.Set(StageAbstracted, Date(2020, time.April, 20))
	if !p.FullyAbstracted() {
		t.Error("abstracted diagnosis with no other events should be fully abstracted")
	}
}
