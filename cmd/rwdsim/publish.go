package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/cohort/infrastructure"
	"github.com/rwdlab/rwdsim/internal/pipeline"
	"github.com/rwdlab/rwdsim/internal/shared/config"
	"github.com/rwdlab/rwdsim/internal/shared/types"
	"github.com/rwdlab/rwdsim/internal/warehouse"
)

var (
	publishParamsFile string
	publishCohortFile string
	publishRunID      string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a cohort table to the research warehouse",
	Long: `Publishes a cohort to the SQL Server research warehouse configured
through WAREHOUSE_* environment variables. The cohort comes from a CSV file,
or from a fresh simulation when no cohort file is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := newLogger()

		var table domain.Table
		if publishCohortFile != "" {
			f, err := os.Open(publishCohortFile)
			if err != nil {
				return err
			}
			defer f.Close()
			table, err = infrastructure.ReadTable(f)
			if err != nil {
				return err
			}
		} else {
			params, err := infrastructure.LoadParams(publishParamsFile)
			if err != nil {
				return err
			}
			result, err := pipeline.NewRunner(log).Execute("publish", params)
			if err != nil {
				return err
			}
			table = result.Table
		}

		runID := types.NewID()
		if publishRunID != "" {
			parsed, err := types.ParseID(publishRunID)
			if err != nil {
				return err
			}
			runID = parsed
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		exporter, err := warehouse.New(ctx, cfg.Warehouse)
		if err != nil {
			return err
		}
		defer exporter.Close()

		if err := exporter.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := exporter.Publish(ctx, runID, table); err != nil {
			return err
		}

		log.Info().
			Str("run_id", runID.String()).
			Int("patients", len(table)).
			Msg("cohort published to warehouse")
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVarP(&publishParamsFile, "params", "p", "", "path to the simulation parameter file")
	publishCmd.Flags().StringVar(&publishCohortFile, "cohort", "", "path to a cohort CSV to publish instead of simulating")
	publishCmd.Flags().StringVar(&publishRunID, "run-id", "", "run id to publish under (default a fresh id)")
	publishCmd.MarkFlagsOneRequired("params", "cohort")
}
