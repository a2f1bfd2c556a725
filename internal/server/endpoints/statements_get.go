package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/api"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/store"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/svcctx"
)

// GetStatementEndpoint handles GET /statements/{id}. It returns the
// statement with customer, bank, transaction, and log records.
type GetStatementEndpoint struct{}

var _ api.Endpoint = (*GetStatementEndpoint)(nil)

func (e *GetStatementEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/statements/{id}", e.handler
}

func (e *GetStatementEndpoint) RequiresInit() bool { return true }

func (e *GetStatementEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "statement id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	full, err := st.GetFull(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "statement not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, full)
}

func (e *GetStatementEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a statement with all extracted records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var full store.FullStatement
			if err := client.Get(cmd.Context(), "/statements/"+args[0], &full); err != nil {
				return err
			}
			return api.Output(full)
		},
	}
}
