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

// DeleteResponse confirms a deletion.
type DeleteResponse struct {
	Message string `json:"message"`
}

// DeleteStatementEndpoint handles DELETE /statements/{id}. Removes the
// row (children cascade) and the stored PDF.
type DeleteStatementEndpoint struct{}

var _ api.Endpoint = (*DeleteStatementEndpoint)(nil)

func (e *DeleteStatementEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/statements/{id}", e.handler
}

func (e *DeleteStatementEndpoint) RequiresInit() bool { return true }

func (e *DeleteStatementEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	deleted, err := st.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "statement not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if blobs := svcctx.BlobsFrom(r.Context()); blobs != nil && deleted.FilePath != "" {
		if _, err := blobs.Delete(deleted.FilePath); err != nil {
			if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
				logger.Warn("failed to delete statement blob",
					"statement_id", id, "path", deleted.FilePath, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, DeleteResponse{Message: "Statement deleted successfully"})
}

func (e *DeleteStatementEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a statement and its extracted records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp DeleteResponse
			if err := client.Delete(cmd.Context(), "/statements/"+args[0], &resp); err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
}
