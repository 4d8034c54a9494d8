package infrastructure

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/shared/errors"
)

// fileParams mirrors the parameter file layout. Dates are strings, survival
// curve keys are strings: both arrive from YAML and are converted during
// translation to domain parameters.
type fileParams struct {
	ObservationStart string `mapstructure:"observation_start"`
	ObservationEnd   string `mapstructure:"observation_end"`
	StudyStart       string `mapstructure:"study_start"`

	CohortSize                 int `mapstructure:"cohort_size"`
	ExportCadenceMonths        int `mapstructure:"export_cadence_months"`
	PatientsAbstractedPerMonth int `mapstructure:"patients_abstracted_per_month"`

	DeathRecordingLatencyDays       domain.DayRange `mapstructure:"death_recording_latency_days"`
	DiagnosisAbstractionLatencyDays domain.DayRange `mapstructure:"diagnosis_abstraction_latency_days"`
	DeathAbstractionLatencyDays     domain.DayRange `mapstructure:"death_abstraction_latency_days"`

	Drugs []fileDrug `mapstructure:"drugs"`

	Seed                 int64 `mapstructure:"seed"`
	MaxAbstractionCycles int   `mapstructure:"max_abstraction_cycles"`

	// DensifyCurvesToYears, when positive, fills every survival curve with
	// one entry per year up to this horizon before the run.
	DensifyCurvesToYears int `mapstructure:"densify_curves_to_years"`
}

type fileDrug struct {
	Name                   string             `mapstructure:"name"`
	SurvivalCurve          map[string]float64 `mapstructure:"survival_curve"`
	StartOffsetDays        domain.DayRange    `mapstructure:"start_offset_days"`
	AbstractionLatencyDays domain.DayRange    `mapstructure:"abstraction_latency_days"`
	Weight                 int                `mapstructure:"weight"`
}

// LoadParams reads a simulation parameter file. The format follows the file
// extension: yaml, toml and json all work. The returned parameters are
// validated.
func LoadParams(path string) (*domain.SimParams, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to read parameter file")
	}

	var fp fileParams
	if err := v.Unmarshal(&fp); err != nil {
		return nil, errors.Wrap(err, "failed to parse parameter file")
	}

	params, err := fp.toDomain()
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func (fp *fileParams) toDomain() (*domain.SimParams, error) {
	observationStart, err := parseDate("observation_start", fp.ObservationStart)
	if err != nil {
		return nil, err
	}
	observationEnd, err := parseDate("observation_end", fp.ObservationEnd)
	if err != nil {
		return nil, err
	}
	studyStart, err := parseDate("study_start", fp.StudyStart)
	if err != nil {
		return nil, err
	}

	drugs := make([]*domain.Drug, 0, len(fp.Drugs))
	for i := range fp.Drugs {
		fd := &fp.Drugs[i]
		curve, err := parseCurve(fd.Name, fd.SurvivalCurve)
		if err != nil {
			return nil, err
		}
		if fp.DensifyCurvesToYears > 0 {
			curve, err = domain.DensifyCurve(curve, fp.DensifyCurvesToYears)
			if err != nil {
				return nil, err
			}
		}
		weight := fd.Weight
		if weight == 0 {
			weight = 1
		}
		drugs = append(drugs, &domain.Drug{
			Name:                   fd.Name,
			SurvivalCurve:          curve,
			StartOffsetDays:        fd.StartOffsetDays,
			AbstractionLatencyDays: fd.AbstractionLatencyDays,
			Weight:                 weight,
		})
	}

	return &domain.SimParams{
		ObservationStart:                observationStart,
		ObservationEnd:                  observationEnd,
		StudyStart:                      studyStart,
		CohortSize:                      fp.CohortSize,
		ExportCadenceMonths:             fp.ExportCadenceMonths,
		PatientsAbstractedPerMonth:      fp.PatientsAbstractedPerMonth,
		DeathRecordingLatencyDays:       fp.DeathRecordingLatencyDays,
		DiagnosisAbstractionLatencyDays: fp.DiagnosisAbstractionLatencyDays,
		DeathAbstractionLatencyDays:     fp.DeathAbstractionLatencyDays,
		Drugs:                           drugs,
		Seed:                            fp.Seed,
		MaxAbstractionCycles:            fp.MaxAbstractionCycles,
	}, nil
}

func parseDate(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, errors.Configuration("%s must be set", field)
	}
	d, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, errors.Configuration("%s: invalid date %q, want YYYY-MM-DD", field, value)
	}
	return d, nil
}

func parseCurve(drug string, curve map[string]float64) (map[int]float64, error) {
	out := make(map[int]float64, len(curve))
	for key, prob := range curve {
		year, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, errors.Configuration("drug %s: survival curve year %q is not a whole number", drug, key)
		}
		out[year] = prob
	}
	return out, nil
}
