package main

import (
	"github.com/spf13/cobra"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running bankparse server via HTTP.

These commands require a running server (bankparse serve).
Use --server to specify a custom server URL.

Examples:
  bankparse api health                   # Check server health
  bankparse api statements upload x.pdf  # Upload a statement PDF
  bankparse api statements list          # List all statements`,
}

var statementsCmd = &cobra.Command{
	Use:   "statements",
	Short: "Statement management commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Persistent so all subcommands inherit it
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))

	statementsCmd.AddCommand((&endpoints.UploadEndpoint{}).Command(getServerURL))
	statementsCmd.AddCommand((&endpoints.ListStatementsEndpoint{}).Command(getServerURL))
	statementsCmd.AddCommand((&endpoints.GetStatementEndpoint{}).Command(getServerURL))
	statementsCmd.AddCommand((&endpoints.StatementStatusEndpoint{}).Command(getServerURL))
	statementsCmd.AddCommand((&endpoints.DeleteStatementEndpoint{}).Command(getServerURL))
	statementsCmd.AddCommand((&endpoints.ExportCSVEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(statementsCmd)
	rootCmd.AddCommand(apiCmd)
}
