package infrastructure

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
)

func date(y int, m time.Month, d int) *time.Time {
	v := domain.Date(y, m, d)
	return &v
}

func sampleTable() domain.Table {
	return domain.Table{
		{
			PatientID: 1,
			Drug:      "drug-a",
			Diagnosis: domain.StageDates{
				Occurred:   date(2020, time.February, 10),
				Exported:   date(2020, time.March, 1),
				Abstracted: date(2020, time.March, 15),
			},
			Death: domain.StageDates{
				Occurred:   date(2020, time.May, 2),
				Recorded:   date(2020, time.May, 6),
				Exported:   date(2020, time.June, 1),
				Abstracted: date(2020, time.June, 12),
			},
		},
		{
			PatientID: 2,
			Drug:      "drug-b",
			Diagnosis: domain.StageDates{
				Occurred: date(2020, time.April, 5),
			},
		},
	}
}

func TestTableCSVRoundTrip(t *testing.T) {
	table := sampleTable()

	var buf bytes.Buffer
	if err := WriteTable(&buf, table); err != nil {
		t.Fatal(err)
	}

	got, err := ReadTable(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(table) {
		t.Fatalf("got %d rows, want %d", len(got), len(table))
	}

	for i := range table {
		want, have := &table[i], &got[i]
		if have.PatientID != want.PatientID || have.Drug != want.Drug {
			t.Fatalf("row %d identity differs: %+v", i, have)
		}
		for _, k := range domain.EventKinds {
			w, h := want.Dates(k), have.Dates(k)
			checkDate(t, k.String()+" occurred", w.Occurred, h.Occurred)
			checkDate(t, k.String()+" recorded", w.Recorded, h.Recorded)
			checkDate(t, k.String()+" exported", w.Exported, h.Exported)
			checkDate(t, k.String()+" abstracted", w.Abstracted, h.Abstracted)
		}
	}
}

func checkDate(t *testing.T, field string, want, got *time.Time) {
	t.Helper()
	if (want == nil) != (got == nil) {
		t.Fatalf("%s presence differs: want %v, got %v", field, want, got)
	}
	if want != nil && !want.Equal(*got) {
		t.Fatalf("%s = %v, want %v", field, got, want)
	}
}

func TestReadTableRejectsBadHeader(t *testing.T) {
	in := "patient_id,drug,wrong\n1,a,2020-01-01\n"
	if _, err := ReadTable(strings.NewReader(in)); err == nil {
		t.Error("mismatched header should fail")
	}
}

func TestReadTableRejectsBadDate(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, nil); err != nil {
		t.Fatal(err)
	}
	in := buf.String() + "1,drug-a,not-a-date,,,,,,,,,\n"
	if _, err := ReadTable(strings.NewReader(in)); err == nil {
		t.Error("malformed date should fail")
	}
}
