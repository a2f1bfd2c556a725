package main

import (
	"github.com/spf13/cobra"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/api"
	"github.com/MeherajUlMahmmud/bank-statement-parser/version"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "bankparse",
	Short: "Bank statement extraction pipeline with LLM-powered OCR",
	Long: `bankparse turns scanned bank statement PDFs into structured,
queryable transaction data.

The pipeline includes:
  - PDF rasterization and OCR
  - LLM agents for cleanup, extraction, and normalization
  - Confidence scoring with review flagging
  - PII masking and CSV export`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.bankparse/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
