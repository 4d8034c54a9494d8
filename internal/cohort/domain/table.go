package domain

import (
	"sort"
	"time"
)

// StageDates is the flattened view of one event's lifecycle dates.
type StageDates struct {
	Occurred   *time.Time `json:"occurred,omitempty"`
	Recorded   *time.Time `json:"recorded,omitempty"`
	Exported   *time.Time `json:"exported,omitempty"`
	Abstracted *time.Time `json:"abstracted,omitempty"`
}

// Row is one patient in the output table.
type Row struct {
	PatientID int        `json:"patient_id"`
	Drug      string     `json:"drug"`
	Diagnosis StageDates `json:"diagnosis"`
	DrugStart StageDates `json:"drug_start"`
	Death     StageDates `json:"death"`
}

// Dates returns the stage dates for an event kind.
func (r *Row) Dates(k EventKind) *StageDates {
	switch k {
	case EventDiagnosis:
		return &r.Diagnosis
	case EventDrugStart:
		return &r.DrugStart
	default:
		return &r.Death
	}
}

// Table is the row-oriented output of a finished simulation, one row per
// patient, sorted by diagnosis-occurred ascending. It is the sole interface
// handed to reporting.
type Table []Row

// BuildTable flattens a cohort into its output table.
func BuildTable(cohort Cohort) Table {
	table := make(Table, 0, len(cohort))
	for _, p := range cohort {
		row := Row{PatientID: p.ID, Drug: p.Drug.Name}
		for _, k := range EventKinds {
			tl := p.Timeline(k)
			dates := row.Dates(k)
			dates.Occurred = tl.Date(StageOccurred)
			dates.Recorded = tl.Date(StageRecorded)
			dates.Exported = tl.Date(StageExported)
			dates.Abstracted = tl.Date(StageAbstracted)
		}
		table = append(table, row)
	}
	sort.SliceStable(table, func(i, j int) bool {
		a, b := table[i].Diagnosis.Occurred, table[j].Diagnosis.Occurred
		if a.Equal(*b) {
			return table[i].PatientID < table[j].PatientID
		}
		return a.Before(*b)
	})
	return table
}
