package domain

import (
	"fmt"
	"time"
)

// EventKind identifies one of the three tracked clinical events.
type EventKind int

const (
	EventDiagnosis EventKind = iota
	EventDrugStart
	EventDeath
)

// EventKinds lists the tracked events in canonical order.
var EventKinds = [...]EventKind{EventDiagnosis, EventDrugStart, EventDeath}

func (k EventKind) String() string {
	switch k {
	case EventDiagnosis:
		return "diagnosis"
	case EventDrugStart:
		return "drug_start"
	case EventDeath:
		return "death"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Stage is a lifecycle stage of an event on its way through the reporting
// pipeline. Stages form a strict total order: occurred, recorded (death
// only), exported, abstracted.
type Stage int

const (
	// StageOccurred is the true real-world date the event happened.
	StageOccurred Stage = iota
	// StageRecorded is the date the event was first noted in the source
	// record. Only death carries this stage.
	StageRecorded
	// StageExported is the date the event becomes visible in the downstream
	// database.
	StageExported
	// StageAbstracted is the date a reviewer confirms the event for research
	// use.
	StageAbstracted
)

func (s Stage) String() string {
	switch s {
	case StageOccurred:
		return "occurred"
	case StageRecorded:
		return "recorded"
	case StageExported:
		return "exported"
	case StageAbstracted:
		return "abstracted"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Timeline holds the per-stage dates of a single event. A later stage may
// only be set once the occurred date exists, and never before the nearest
// earlier stage that holds a date.
type Timeline struct {
	dates [StageAbstracted + 1]*time.Time
}

// Date returns the date at the given stage, or nil when unset.
func (t *Timeline) Date(s Stage) *time.Time {
	return t.dates[s]
}

// Has reports whether the stage holds a date.
func (t *Timeline) Has(s Stage) bool {
	return t.dates[s] != nil
}

// Set records a date for a stage, enforcing the ordering invariant. Stages
// that do not apply (recorded, for non-death events) are simply left unset by
// callers; the check compares against the nearest earlier stage with a date.
func (t *Timeline) Set(s Stage, d time.Time) error {
	if s != StageOccurred && t.dates[StageOccurred] == nil {
		return fmt.Errorf("cannot set %s date before occurred date", s)
	}
	for prior := s - 1; prior >= StageOccurred; prior-- {
		p := t.dates[prior]
		if p == nil {
			continue
		}
		if d.Before(*p) {
			return fmt.Errorf("%s date %s precedes %s date %s",
				s, d.Format("2006-01-02"), prior, p.Format("2006-01-02"))
		}
		break
	}
	set := d
	t.dates[s] = &set
	return nil
}

// ExportBasis returns the date that drives database export for the event:
// the recorded date when present, otherwise the occurred date. Export cannot
// precede the source record's existence.
func (t *Timeline) ExportBasis() *time.Time {
	if t.dates[StageRecorded] != nil {
		return t.dates[StageRecorded]
	}
	return t.dates[StageOccurred]
}

// Patient is one cohort member. Created by the generator with all stages
// past occurred unset, mutated in place by the export scheduler and the
// abstraction simulator, never destroyed during a run.
type Patient struct {
	ID        int
	Drug      *Drug
	timelines [len(EventKinds)]Timeline
}

// Timeline returns the mutable timeline for an event.
func (p *Patient) Timeline(k EventKind) *Timeline {
	return &p.timelines[k]
}

// FullyAbstracted reports whether every occurred event has been abstracted.
func (p *Patient) FullyAbstracted() bool {
	for _, k := range EventKinds {
		tl := p.Timeline(k)
		if tl.Has(StageOccurred) && !tl.Has(StageAbstracted) {
			return false
		}
	}
	return true
}

// Cohort is the fixed-size arena of patients for one run. Indices are stable
// for the run's lifetime.
type Cohort []*Patient

// FullyAbstracted reports whether every patient's every occurred event has
// been abstracted.
func (c Cohort) FullyAbstracted() bool {
	for _, p := range c {
		if !p.FullyAbstracted() {
			return false
		}
	}
	return true
}
