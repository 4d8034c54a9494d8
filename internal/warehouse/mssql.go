package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/shared/config"
	"github.com/rwdlab/rwdsim/internal/shared/metrics"
	"github.com/rwdlab/rwdsim/internal/shared/types"
)

// Exporter publishes finished cohort tables into the SQL Server research
// warehouse.
type Exporter struct {
	db     *sql.DB
	schema string
}

// New opens a connection to the warehouse.
func New(ctx context.Context, cfg config.WarehouseConfig) (*Exporter, error) {
	db, err := sql.Open("sqlserver", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	return &Exporter{db: db, schema: cfg.Schema}, nil
}

// Health checks warehouse connectivity.
func (e *Exporter) Health(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close closes the warehouse connection.
func (e *Exporter) Close() error {
	return e.db.Close()
}

// EnsureSchema creates the cohort table when it is missing.
func (e *Exporter) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`
		IF NOT EXISTS (SELECT 1 FROM sys.tables t
			JOIN sys.schemas s ON t.schema_id = s.schema_id
			WHERE s.name = '%s' AND t.name = 'cohorts')
		CREATE TABLE %s.cohorts (
			run_id UNIQUEIDENTIFIER NOT NULL,
			patient_id INT NOT NULL,
			drug NVARCHAR(255) NOT NULL,
			diagnosis_date DATE NULL,
			diagnosis_date_exported DATE NULL,
			diagnosis_date_abstracted DATE NULL,
			drug_date DATE NULL,
			drug_date_exported DATE NULL,
			drug_date_abstracted DATE NULL,
			death_date DATE NULL,
			death_date_recorded DATE NULL,
			death_date_exported DATE NULL,
			death_date_abstracted DATE NULL,
			CONSTRAINT pk_cohorts PRIMARY KEY (run_id, patient_id)
		)
	`, e.schema, e.schema)

	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to ensure warehouse schema: %w", err)
	}
	return nil
}

// Publish writes a run's table into the warehouse. A republish replaces the
// run's previous rows.
func (e *Exporter) Publish(ctx context.Context, runID types.ID, table domain.Table) error {
	start := time.Now()

	err := e.publish(ctx, runID, table)
	if err != nil {
		metrics.RecordWarehousePublish("failed", time.Since(start))
		return err
	}
	metrics.RecordWarehousePublish("completed", time.Since(start))
	return nil
}

func (e *Exporter) publish(ctx context.Context, runID types.ID, table domain.Table) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin warehouse transaction: %w", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf(`DELETE FROM %s.cohorts WHERE run_id = @run_id`, e.schema)
	if _, err := tx.ExecContext(ctx, del, sql.Named("run_id", runID.String())); err != nil {
		return fmt.Errorf("failed to clear previous publish: %w", err)
	}

	ins := fmt.Sprintf(`
		INSERT INTO %s.cohorts (
			run_id, patient_id, drug,
			diagnosis_date, diagnosis_date_exported, diagnosis_date_abstracted,
			drug_date, drug_date_exported, drug_date_abstracted,
			death_date, death_date_recorded, death_date_exported, death_date_abstracted
		) VALUES (
			@run_id, @patient_id, @drug,
			@diagnosis_date, @diagnosis_date_exported, @diagnosis_date_abstracted,
			@drug_date, @drug_date_exported, @drug_date_abstracted,
			@death_date, @death_date_recorded, @death_date_exported, @death_date_abstracted
		)
	`, e.schema)

	stmt, err := tx.PrepareContext(ctx, ins)
	if err != nil {
		return fmt.Errorf("failed to prepare warehouse insert: %w", err)
	}
	defer stmt.Close()

	for i := range table {
		row := &table[i]
		_, err := stmt.ExecContext(ctx,
			sql.Named("run_id", runID.String()),
			sql.Named("patient_id", row.PatientID),
			sql.Named("drug", row.Drug),
			sql.Named("diagnosis_date", nullDate(row.Diagnosis.Occurred)),
			sql.Named("diagnosis_date_exported", nullDate(row.Diagnosis.Exported)),
			sql.Named("diagnosis_date_abstracted", nullDate(row.Diagnosis.Abstracted)),
			sql.Named("drug_date", nullDate(row.DrugStart.Occurred)),
			sql.Named("drug_date_exported", nullDate(row.DrugStart.Exported)),
			sql.Named("drug_date_abstracted", nullDate(row.DrugStart.Abstracted)),
			sql.Named("death_date", nullDate(row.Death.Occurred)),
			sql.Named("death_date_recorded", nullDate(row.Death.Recorded)),
			sql.Named("death_date_exported", nullDate(row.Death.Exported)),
			sql.Named("death_date_abstracted", nullDate(row.Death.Abstracted)),
		)
		if err != nil {
			return fmt.Errorf("failed to insert patient %d: %w", row.PatientID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit warehouse publish: %w", err)
	}
	return nil
}

func nullDate(d *time.Time) sql.NullTime {
	if d == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *d, Valid: true}
}
