package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/api"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/svcctx"
)

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	OCR      string `json:"ocr,omitempty"`
	LLM      string `json:"llm,omitempty"`
	Queue    *Queue `json:"queue,omitempty"`
}

// Queue reports background worker load.
type Queue struct {
	Depth    int `json:"depth"`
	InFlight int `json:"in_flight"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

var _ api.Endpoint = (*HealthEndpoint)(nil)

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler reports overall health. The database is load-bearing: it
// being down makes the service degraded (503). The OCR and LLM
// backends are reported but do not fail the check, since uploads
// queue until they recover.
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if st := svcctx.StoreFrom(r.Context()); st != nil {
		if err := st.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = "unhealthy"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	} else {
		resp.Status = "degraded"
		resp.Database = "not_initialized"
		status = http.StatusServiceUnavailable
	}

	if ocr := svcctx.OCRFrom(r.Context()); ocr != nil {
		if err := ocr.Ready(r.Context()); err != nil {
			resp.OCR = "unreachable"
		} else {
			resp.OCR = "ok"
		}
	}
	if llm := svcctx.CompleterFrom(r.Context()); llm != nil {
		if err := llm.Ready(r.Context()); err != nil {
			resp.LLM = "unreachable"
		} else {
			resp.LLM = "ok"
		}
	}
	if jobs := svcctx.JobsFrom(r.Context()); jobs != nil {
		resp.Queue = &Queue{Depth: jobs.QueueDepth(), InFlight: jobs.InFlight()}
	}

	writeJSON(w, status, resp)
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status:   %s\n", resp.Status)
			fmt.Printf("Database: %s\n", resp.Database)
			if resp.OCR != "" {
				fmt.Printf("OCR:      %s\n", resp.OCR)
			}
			if resp.LLM != "" {
				fmt.Printf("LLM:      %s\n", resp.LLM)
			}
			return nil
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
