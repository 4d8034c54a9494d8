package pipeline

import (
	"time"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
)

// firstOfMonth truncates a date to the first day of its month.
func firstOfMonth(d time.Time) time.Time {
	return domain.Date(d.Year(), d.Month(), 1)
}

// monthsBetween counts calendar months from a to b at month granularity.
// Negative when b's month precedes a's.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// ComputeExportDate returns the export-batch date for a source record that
// exists on basis. Batches run on the first day of months a whole cadence
// multiple past the study start month. A record created in a batch month
// misses that batch and rides the next one; records predating the study
// export at the first batch after it begins.
func ComputeExportDate(basis, studyStart time.Time, cadenceMonths int) time.Time {
	if basis.Before(studyStart) {
		return firstOfMonth(studyStart).AddDate(0, cadenceMonths, 0)
	}

	monthsSince := monthsBetween(studyStart, basis)
	monthsToNext := cadenceMonths - monthsSince%cadenceMonths
	if monthsSince%cadenceMonths == 0 {
		monthsToNext = cadenceMonths
	}

	return firstOfMonth(basis).AddDate(0, monthsToNext, 0)
}

// IsExported reports whether an event is visible in the downstream database
// on the given date. An event that never occurred is vacuously exported.
func IsExported(tl *domain.Timeline, asOf time.Time) bool {
	if !tl.Has(domain.StageOccurred) {
		return true
	}
	exported := tl.Date(domain.StageExported)
	return exported != nil && !exported.After(asOf)
}

// PatientFullyExported reports whether every event of the patient is visible
// in the downstream database on the given date.
func PatientFullyExported(p *domain.Patient, asOf time.Time) bool {
	for _, k := range domain.EventKinds {
		if !IsExported(p.Timeline(k), asOf) {
			return false
		}
	}
	return true
}

// ScheduleExports assigns the export date of every occurred event in the
// cohort. Death exports follow the recorded date, the other events their
// occurred date. Events that already carry an export date are left alone.
func ScheduleExports(cohort domain.Cohort, params *domain.SimParams) error {
	for _, p := range cohort {
		for _, k := range domain.EventKinds {
			tl := p.Timeline(k)
			basis := tl.ExportBasis()
			if basis == nil || tl.Has(domain.StageExported) {
				continue
			}
			exported := ComputeExportDate(*basis, params.StudyStart, params.ExportCadenceMonths)
			if err := tl.Set(domain.StageExported, exported); err != nil {
				return err
			}
		}
	}
	return nil
}
