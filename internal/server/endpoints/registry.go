package endpoints

import (
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},

		&UploadEndpoint{},
		&ListStatementsEndpoint{},
		&GetStatementEndpoint{},
		&StatementStatusEndpoint{},
		&DeleteStatementEndpoint{},
		&ExportCSVEndpoint{},
	}
}
