package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
)

// Report summarizes what a researcher querying the abstracted database on a
// given date would see for a set of drugs. Only patients whose diagnosis has
// been abstracted by the report date are visible.
type Report struct {
	Name        string    `json:"name"`
	ReportDate  time.Time `json:"report_date"`
	NumPatients int       `json:"num_patients"`

	// Mean delays, in days, over the visible patients that carry both dates.
	DiagnosisExportDelayDays   float64 `json:"diagnosis_export_delay_days"`
	TreatmentExportDelayDays   float64 `json:"treatment_export_delay_days"`
	TreatmentAbstractDelayDays float64 `json:"treatment_abstract_delay_days"`
	ExportAbstractDelayDays    float64 `json:"export_abstract_delay_days"`

	// TreatedFraction is the share of visible patients whose treatment start
	// has been abstracted by the report date.
	TreatedFraction float64 `json:"treated_fraction"`

	// SurvivalFraction is the share of visible patients with no abstracted
	// death by the report date.
	SurvivalFraction float64 `json:"survival_fraction"`
}

// DataEquals compares two reports ignoring name and report date. Used to
// detect when a report series has stabilized. Empty reports never compare
// equal: a series must not stop on a leading stretch with no visible
// patients.
func (r *Report) DataEquals(other *Report) bool {
	if other == nil || r.NumPatients == 0 || other.NumPatients == 0 {
		return false
	}
	return r.NumPatients == other.NumPatients &&
		r.DiagnosisExportDelayDays == other.DiagnosisExportDelayDays &&
		r.TreatmentExportDelayDays == other.TreatmentExportDelayDays &&
		r.TreatmentAbstractDelayDays == other.TreatmentAbstractDelayDays &&
		r.ExportAbstractDelayDays == other.ExportAbstractDelayDays &&
		r.TreatedFraction == other.TreatedFraction &&
		r.SurvivalFraction == other.SurvivalFraction
}

// ForDrugs builds a report over the given drugs as of reportDate.
func ForDrugs(table domain.Table, reportDate time.Time, drugs map[string]bool, name string) *Report {
	rep := &Report{Name: name, ReportDate: reportDate}

	var (
		dxExport, txExport, txAbstract, exportAbstract meanAcc
		treated, survived                              int
	)

	for i := range table {
		row := &table[i]
		if !drugs[row.Drug] {
			continue
		}
		if !visible(row.Diagnosis.Abstracted, reportDate) {
			continue
		}
		rep.NumPatients++

		dxExport.add(daysBetween(row.Diagnosis.Occurred, row.Diagnosis.Exported))
		txExport.add(daysBetween(row.DrugStart.Occurred, row.DrugStart.Exported))
		txAbstract.add(daysBetween(row.DrugStart.Occurred, row.DrugStart.Abstracted))
		exportAbstract.add(daysBetween(row.Diagnosis.Exported, row.Diagnosis.Abstracted))

		if visible(row.DrugStart.Abstracted, reportDate) {
			treated++
		}
		if !visible(row.Death.Abstracted, reportDate) {
			survived++
		}
	}

	rep.DiagnosisExportDelayDays = dxExport.mean()
	rep.TreatmentExportDelayDays = txExport.mean()
	rep.TreatmentAbstractDelayDays = txAbstract.mean()
	rep.ExportAbstractDelayDays = exportAbstract.mean()
	if rep.NumPatients > 0 {
		rep.TreatedFraction = float64(treated) / float64(rep.NumPatients)
		rep.SurvivalFraction = float64(survived) / float64(rep.NumPatients)
	}
	return rep
}

// Series builds reports for one drug at a fixed day frequency starting at
// start, until the data stops changing between consecutive reports. maxCount
// caps the series when positive.
func Series(table domain.Table, drug string, start time.Time, frequencyDays int, maxCount int) []*Report {
	drugs := map[string]bool{drug: true}

	horizon := lastVisibility(table, drug)

	var series []*Report
	var last *Report
	date := start
	for {
		rep := ForDrugs(table, date, drugs, fmt.Sprintf("%s: %s", drug, date.Format("2006-01-02")))
		if maxCount > 0 {
			if len(series) >= maxCount {
				break
			}
		} else if rep.DataEquals(last) || (date.After(horizon) && rep.NumPatients == 0) {
			break
		}
		series = append(series, rep)
		last = rep
		date = date.AddDate(0, 0, frequencyDays)
	}
	return series
}

// lastVisibility returns the latest diagnosis abstraction date among a
// drug's patients. Past it, reports over an empty cohort can never change.
func lastVisibility(table domain.Table, drug string) time.Time {
	var latest time.Time
	for i := range table {
		if table[i].Drug != drug {
			continue
		}
		if d := table[i].Diagnosis.Abstracted; d != nil && d.After(latest) {
			latest = *d
		}
	}
	return latest
}

// WriteCSV writes reports as one CSV row each.
func WriteCSV(w io.Writer, reports []*Report) error {
	cw := csv.NewWriter(w)
	header := []string{
		"name", "report_date", "num_patients",
		"diagnosis_export_delay_days", "treatment_export_delay_days",
		"treatment_abstract_delay_days", "export_abstract_delay_days",
		"treated_fraction", "survival_fraction",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range reports {
		record := []string{
			r.Name,
			r.ReportDate.Format("2006-01-02"),
			fmt.Sprintf("%d", r.NumPatients),
			formatFloat(r.DiagnosisExportDelayDays),
			formatFloat(r.TreatmentExportDelayDays),
			formatFloat(r.TreatmentAbstractDelayDays),
			formatFloat(r.ExportAbstractDelayDays),
			formatFloat(r.TreatedFraction),
			formatFloat(r.SurvivalFraction),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

// visible reports whether a date exists and falls on or before the report
// date.
func visible(d *time.Time, reportDate time.Time) bool {
	return d != nil && !d.After(reportDate)
}

func daysBetween(from, to *time.Time) (float64, bool) {
	if from == nil || to == nil {
		return 0, false
	}
	return to.Sub(*from).Hours() / 24, true
}

// meanAcc accumulates an optional-valued mean.
type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) add(v float64, ok bool) {
	if !ok {
		return
	}
	m.sum += v
	m.n++
}

func (m *meanAcc) mean() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}
