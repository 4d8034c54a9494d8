package domain

import (
	"math"
	"testing"
)

func testCurve() map[int]float64 {
	return map[int]float64{1: 0.85, 3: 0.45, 5: 0.32}
}

func TestSurvivalInterpolatorKnots(t *testing.T) {
	interp := newSurvivalInterpolator(testCurve())

	tests := []struct {
		name string
		u    float64
		want float64
	}{
		{"anchor draw survives zero years", 1.0, 0},
		{"draw at year one knot", 0.85, 1},
		{"draw at year three knot", 0.45, 3},
		{"draw at year five knot", 0.32, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := interp.Eval(tt.u)
			if !ok {
				t.Fatalf("Eval(%g) not in domain", tt.u)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Eval(%g) = %g, want %g", tt.u, got, tt.want)
			}
		})
	}
}

func TestSurvivalInterpolatorOutsideDomain(t *testing.T) {
	interp := newSurvivalInterpolator(testCurve())

	// A draw below the lowest survival probability means the patient
	// outlives the modeled horizon.
	if _, ok := interp.Eval(0.1); ok {
		t.Error("Eval(0.1) should be outside the domain")
	}
	if _, ok := interp.Eval(0.3199); ok {
		t.Error("Eval below the last knot should be outside the domain")
	}
	if _, ok := interp.Eval(1.0001); ok {
		t.Error("Eval above 1.0 should be outside the domain")
	}
}

func TestSurvivalInterpolatorMonotone(t *testing.T) {
	interp := newSurvivalInterpolator(testCurve())

	// Lower survival draws must map to equal or longer survival times.
	prev := 0.0
	for i := 0; i <= 650; i++ {
		u := 1.0 - float64(i)*0.001
		years, ok := interp.Eval(u)
		if !ok {
			t.Fatalf("Eval(%g) not in domain", u)
		}
		if years < prev-1e-9 {
			t.Fatalf("Eval(%g) = %g, shorter than previous %g", u, years, prev)
		}
		if years < 0 {
			t.Fatalf("Eval(%g) = %g, negative survival", u, years)
		}
		prev = years
	}

	// Spot-check ordering across the knots.
	lo, _ := interp.Eval(0.9)
	hi, _ := interp.Eval(0.4)
	if lo >= hi {
		t.Errorf("Eval(0.9) = %g should be below Eval(0.4) = %g", lo, hi)
	}
}

func TestSurvivalInterpolatorBounds(t *testing.T) {
	interp := newSurvivalInterpolator(testCurve())

	// Between the year-1 and year-3 knots the result stays in (1, 3).
	for u := 0.46; u < 0.85; u += 0.01 {
		years, ok := interp.Eval(u)
		if !ok {
			t.Fatalf("Eval(%g) not in domain", u)
		}
		if years <= 1 || years >= 3 {
			t.Errorf("Eval(%g) = %g, want inside (1, 3)", u, years)
		}
	}
}

func TestDrugSamplerCached(t *testing.T) {
	d := &Drug{Name: "a", SurvivalCurve: testCurve(), Weight: 1}
	if d.Sampler() != d.Sampler() {
		t.Error("Sampler should return the cached interpolator")
	}
}
