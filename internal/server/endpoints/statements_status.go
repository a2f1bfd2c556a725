package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/api"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/store"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/svcctx"
)

// StatusResponse reports where a statement is in its lifecycle.
type StatusResponse struct {
	ID       string    `json:"id"`
	Status   string    `json:"status"`
	Progress *Progress `json:"progress,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Progress carries result aggregates once processing completes.
type Progress struct {
	PageCount         int      `json:"page_count"`
	TotalTransactions int      `json:"total_transactions"`
	OverallConfidence *float64 `json:"overall_confidence,omitempty"`
	ProcessingTime    float64  `json:"processing_time"`
}

// StatementStatusEndpoint handles GET /statements/{id}/status.
type StatementStatusEndpoint struct{}

var _ api.Endpoint = (*StatementStatusEndpoint)(nil)

func (e *StatementStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/statements/{id}/status", e.handler
}

func (e *StatementStatusEndpoint) RequiresInit() bool { return true }

func (e *StatementStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	stmt, err := st.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "statement not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StatusResponse{ID: stmt.ID, Status: string(stmt.Status)}
	if stmt.Status == store.StatusCompleted {
		resp.Progress = &Progress{
			PageCount:         stmt.PageCount,
			TotalTransactions: stmt.TotalTransactions,
			OverallConfidence: stmt.OverallConfidence,
			ProcessingTime:    stmt.ProcessingTimeSeconds,
		}
	}
	if stmt.ProcessingError != nil {
		resp.Error = *stmt.ProcessingError
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *StatementStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Check a statement's processing status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/statements/"+args[0]+"/status", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			if resp.Progress != nil {
				fmt.Printf("Pages:        %d\n", resp.Progress.PageCount)
				fmt.Printf("Transactions: %d\n", resp.Progress.TotalTransactions)
				if resp.Progress.OverallConfidence != nil {
					fmt.Printf("Confidence:   %.2f\n", *resp.Progress.OverallConfidence)
				}
			}
			if resp.Error != "" {
				fmt.Printf("Error: %s\n", resp.Error)
			}
			return nil
		},
	}
}
