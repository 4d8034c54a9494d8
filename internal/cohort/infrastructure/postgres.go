package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/shared/database"
	"github.com/rwdlab/rwdsim/internal/shared/errors"
	"github.com/rwdlab/rwdsim/internal/shared/metrics"
	"github.com/rwdlab/rwdsim/internal/shared/types"
)

const defaultListLimit = 50

// PostgresRepository persists runs and their tables in Postgres.
type PostgresRepository struct {
	db *database.DB
}

var _ domain.Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SaveRun stores the run record and bulk-copies its table in one
// transaction.
func (r *PostgresRepository) SaveRun(ctx context.Context, run *domain.Run, table domain.Table) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("save_run", time.Since(start)) }()

	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run parameters")
	}
	violations := run.Violations
	if violations == nil {
		violations = []string{}
	}
	violationsJSON, err := json.Marshal(violations)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run violations")
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO rwdsim.runs (id, name, created_at, seed, cycles, fully_abstracted, params, violations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.Name, run.CreatedAt, run.Seed, run.Cycles, run.FullyAbstracted, paramsJSON, violationsJSON)
	if err != nil {
		return errors.Wrap(err, "failed to insert run")
	}

	rows := make([][]any, 0, len(table))
	for i := range table {
		row := &table[i]
		rows = append(rows, []any{
			run.ID, row.PatientID, row.Drug,
			row.Diagnosis.Occurred, row.Diagnosis.Recorded, row.Diagnosis.Exported, row.Diagnosis.Abstracted,
			row.DrugStart.Occurred, row.DrugStart.Recorded, row.DrugStart.Exported, row.DrugStart.Abstracted,
			row.Death.Occurred, row.Death.Recorded, row.Death.Exported, row.Death.Abstracted,
		})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"rwdsim", "patients"},
		[]string{
			"run_id", "patient_id", "drug",
			"diagnosis_occurred", "diagnosis_recorded", "diagnosis_exported", "diagnosis_abstracted",
			"drug_start_occurred", "drug_start_recorded", "drug_start_exported", "drug_start_abstracted",
			"death_occurred", "death_recorded", "death_exported", "death_abstracted",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return errors.Wrap(err, "failed to copy patients")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (r *PostgresRepository) GetRun(ctx context.Context, id types.ID) (*domain.Run, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_run", time.Since(start)) }()

	run := &domain.Run{}
	var paramsJSON, violationsJSON []byte
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, created_at, seed, cycles, fully_abstracted, params, violations
		FROM rwdsim.runs WHERE id = $1
	`, id).Scan(&run.ID, &run.Name, &run.CreatedAt, &run.Seed, &run.Cycles,
		&run.FullyAbstracted, &paramsJSON, &violationsJSON)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("run", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run")
	}

	if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal run parameters")
	}
	if err := json.Unmarshal(violationsJSON, &run.Violations); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal run violations")
	}
	return run, nil
}

func (r *PostgresRepository) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_runs", time.Since(start)) }()

	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, created_at, seed, cycles, fully_abstracted, params, violations
		FROM rwdsim.runs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run := &domain.Run{}
		var paramsJSON, violationsJSON []byte
		if err := rows.Scan(&run.ID, &run.Name, &run.CreatedAt, &run.Seed, &run.Cycles,
			&run.FullyAbstracted, &paramsJSON, &violationsJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal run parameters")
		}
		if err := json.Unmarshal(violationsJSON, &run.Violations); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal run violations")
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *PostgresRepository) GetTable(ctx context.Context, id types.ID) (domain.Table, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_table", time.Since(start)) }()

	if _, err := r.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT patient_id, drug,
			diagnosis_occurred, diagnosis_exported, diagnosis_abstracted,
			drug_start_occurred, drug_start_exported, drug_start_abstracted,
			death_occurred, death_recorded, death_exported, death_abstracted
		FROM rwdsim.patients WHERE run_id = $1
		ORDER BY diagnosis_occurred, patient_id
	`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query patients")
	}
	defer rows.Close()

	var table domain.Table
	for rows.Next() {
		var row domain.Row
		if err := rows.Scan(&row.PatientID, &row.Drug,
			&row.Diagnosis.Occurred, &row.Diagnosis.Exported, &row.Diagnosis.Abstracted,
			&row.DrugStart.Occurred, &row.DrugStart.Exported, &row.DrugStart.Abstracted,
			&row.Death.Occurred, &row.Death.Recorded, &row.Death.Exported, &row.Death.Abstracted); err != nil {
			return nil, errors.Wrap(err, "failed to scan patient")
		}
		table = append(table, row)
	}
	return table, rows.Err()
}
