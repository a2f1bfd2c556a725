package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/api"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/export"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/store"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/svcctx"
)

// ExportCSVEndpoint handles GET /statements/{id}/csv. Only completed
// statements can be exported.
type ExportCSVEndpoint struct{}

var _ api.Endpoint = (*ExportCSVEndpoint)(nil)

func (e *ExportCSVEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/statements/{id}/csv", e.handler
}

func (e *ExportCSVEndpoint) RequiresInit() bool { return true }

func (e *ExportCSVEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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
	if full.Statement.Status != store.StatusCompleted {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("statement is not completed (status: %s)", full.Statement.Status))
		return
	}

	data, err := export.CSV(full)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := export.Filename(id, time.Now())
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (e *ExportCSVEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "csv <id>",
		Short: "Export a completed statement as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			data, err := client.Download(cmd.Context(), "/statements/"+args[0]+"/csv")
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = export.Filename(args[0], time.Now())
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("failed to write CSV: %w", err)
			}
			fmt.Printf("Wrote %s (%d bytes)\n", outPath, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file path (default: statement_<id>_<date>.csv)")
	return cmd
}
