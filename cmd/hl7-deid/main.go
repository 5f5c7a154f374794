package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hl7-deid",
		Short:         "HL7v2 de-identification service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().String("phi", "", "PHI field configuration (.json, .yaml or .toml); defaults to PHI_FIELDS_PATH or the built-in profile")
	rootCmd.PersistentFlags().Int64("seed", 0, "fixed generator seed; defaults to GENERATOR_SEED, or a random seed per run")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(deidentifyCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(scrambleCmd())
	rootCmd.AddCommand(generatorsCmd())
	rootCmd.AddCommand(migrateCmd())

	return rootCmd
}
