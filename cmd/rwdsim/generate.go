package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rwdlab/rwdsim/internal/cohort/infrastructure"
	"github.com/rwdlab/rwdsim/internal/pipeline"
)

var (
	generateParamsFile string
	generateOutput     string
	generateName       string
	generateSeed       int64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run a simulation and write the cohort table as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		params, err := infrastructure.LoadParams(generateParamsFile)
		if err != nil {
			return err
		}
		if generateSeed != 0 {
			params.Seed = generateSeed
		}

		result, err := pipeline.NewRunner(log).Execute(generateName, params)
		if err != nil {
			return err
		}

		out := os.Stdout
		if generateOutput != "" {
			f, err := os.Create(generateOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		if err := infrastructure.WriteTable(out, result.Table); err != nil {
			return err
		}

		for _, v := range result.Violations {
			log.Warn().Str("violation", v.String()).Msg("consistency violation")
		}
		if generateOutput != "" {
			log.Info().Str("output", generateOutput).Int("patients", len(result.Table)).Msg("cohort written")
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateParamsFile, "params", "p", "", "path to the simulation parameter file")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "path to the output CSV file (default stdout)")
	generateCmd.Flags().StringVar(&generateName, "name", "cli", "run name used in logs and events")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0, "override the seed from the parameter file")
	generateCmd.MarkFlagRequired("params")
}
