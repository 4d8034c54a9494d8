package infrastructure

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/shared/errors"
)

const dateLayout = "2006-01-02"

// tableColumns is the canonical column order of a cohort CSV file.
var tableColumns = []string{
	"patient_id",
	"drug",
	"diagnosis_date",
	"diagnosis_date_exported",
	"diagnosis_date_abstracted",
	"drug_date",
	"drug_date_exported",
	"drug_date_abstracted",
	"death_date",
	"death_date_recorded",
	"death_date_exported",
	"death_date_abstracted",
}

// WriteTable writes a cohort table as CSV, one row per patient. Unset dates
// become empty cells.
func WriteTable(w io.Writer, table domain.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableColumns); err != nil {
		return err
	}
	for i := range table {
		row := &table[i]
		record := []string{
			strconv.Itoa(row.PatientID),
			row.Drug,
			formatDate(row.Diagnosis.Occurred),
			formatDate(row.Diagnosis.Exported),
			formatDate(row.Diagnosis.Abstracted),
			formatDate(row.DrugStart.Occurred),
			formatDate(row.DrugStart.Exported),
			formatDate(row.DrugStart.Abstracted),
			formatDate(row.Death.Occurred),
			formatDate(row.Death.Recorded),
			formatDate(row.Death.Exported),
			formatDate(row.Death.Abstracted),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable parses a cohort table from CSV, expecting the canonical header.
func ReadTable(r io.Reader) (domain.Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cohort CSV header")
	}
	if len(header) != len(tableColumns) {
		return nil, errors.BadRequest(fmt.Sprintf(
			"cohort CSV has %d columns, want %d", len(header), len(tableColumns)))
	}
	for i, col := range tableColumns {
		if header[i] != col {
			return nil, errors.BadRequest(fmt.Sprintf(
				"cohort CSV column %d is %q, want %q", i, header[i], col))
		}
	}

	var table domain.Table
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read cohort CSV")
		}

		id, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, errors.BadRequest(fmt.Sprintf("line %d: invalid patient id %q", line, record[0]))
		}
		row := domain.Row{PatientID: id, Drug: record[1]}

		dates := []**time.Time{
			&row.Diagnosis.Occurred,
			&row.Diagnosis.Exported,
			&row.Diagnosis.Abstracted,
			&row.DrugStart.Occurred,
			&row.DrugStart.Exported,
			&row.DrugStart.Abstracted,
			&row.Death.Occurred,
			&row.Death.Recorded,
			&row.Death.Exported,
			&row.Death.Abstracted,
		}
		for i, dst := range dates {
			cell := record[i+2]
			if cell == "" {
				continue
			}
			d, err := time.ParseInLocation(dateLayout, cell, time.UTC)
			if err != nil {
				return nil, errors.BadRequest(fmt.Sprintf(
					"line %d: invalid %s %q", line, tableColumns[i+2], cell))
			}
			*dst = &d
		}
		table = append(table, row)
	}
	return table, nil
}

func formatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(dateLayout)
}
