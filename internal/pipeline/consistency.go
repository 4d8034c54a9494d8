package pipeline

import (
	"fmt"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
)

// Violation is one consistency finding from the post-run audit. Violations
// are diagnostics attached to the run, never fatal.
type Violation struct {
	PatientID int    `json:"patient_id"`
	Event     string `json:"event,omitempty"`
	Message   string `json:"message"`
}

func (v Violation) String() string {
	if v.Event == "" {
		return fmt.Sprintf("patient %d: %s", v.PatientID, v.Message)
	}
	return fmt.Sprintf("patient %d: %s: %s", v.PatientID, v.Event, v.Message)
}

// CheckConsistency audits a finished cohort against the lifecycle ordering
// rules: every patient has a diagnosis, a death has a recorded date no
// earlier than the death itself, and each stage date follows the one before
// it.
func CheckConsistency(cohort domain.Cohort) []Violation {
	var violations []Violation
	for _, p := range cohort {
		if !p.Timeline(domain.EventDiagnosis).Has(domain.StageOccurred) {
			violations = append(violations, Violation{
				PatientID: p.ID,
				Message:   "diagnosis date is not set",
			})
		}

		death := p.Timeline(domain.EventDeath)
		if death.Has(domain.StageOccurred) {
			recorded := death.Date(domain.StageRecorded)
			if recorded == nil || death.Date(domain.StageOccurred).After(*recorded) {
				violations = append(violations, Violation{
					PatientID: p.ID,
					Event:     domain.EventDeath.String(),
					Message:   "death recorded date is missing or precedes the death",
				})
			}
		}

		for _, k := range domain.EventKinds {
			tl := p.Timeline(k)
			occurred := tl.Date(domain.StageOccurred)
			exported := tl.Date(domain.StageExported)
			abstracted := tl.Date(domain.StageAbstracted)

			if occurred != nil && exported != nil && occurred.After(*exported) {
				violations = append(violations, Violation{
					PatientID: p.ID,
					Event:     k.String(),
					Message:   "event date is after its export date",
				})
			}
			if exported != nil && abstracted != nil && exported.After(*abstracted) {
				violations = append(violations, Violation{
					PatientID: p.ID,
					Event:     k.String(),
					Message:   "export date is after its abstraction date",
				})
			}
			if occurred != nil && abstracted != nil && occurred.After(*abstracted) {
				violations = append(violations, Violation{
					PatientID: p.ID,
					Event:     k.String(),
					Message:   "event date is after its abstraction date",
				})
			}
		}
	}
	return violations
}
