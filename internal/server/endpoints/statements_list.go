package endpoints

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/api"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/store"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/svcctx"
)

// ListResponse is a page of statements plus the total row count.
type ListResponse struct {
	Total      int               `json:"total"`
	Statements []store.Statement `json:"statements"`
}

// ListStatementsEndpoint handles GET /statements with skip/limit paging.
type ListStatementsEndpoint struct{}

var _ api.Endpoint = (*ListStatementsEndpoint)(nil)

func (e *ListStatementsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/statements", e.handler
}

func (e *ListStatementsEndpoint) RequiresInit() bool { return true }

func (e *ListStatementsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 50)

	statements, total, err := st.List(r.Context(), skip, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if statements == nil {
		statements = []store.Statement{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Total: total, Statements: statements})
}

func (e *ListStatementsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var skip, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List uploaded statements",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := fmt.Sprintf("/statements?skip=%d&limit=%d", skip, limit)
			var resp ListResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of statements to skip")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of statements to return")
	return cmd
}

// queryInt parses an integer query parameter, falling back on bad input.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
