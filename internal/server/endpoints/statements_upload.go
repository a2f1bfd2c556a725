package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/api"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/jobs"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/svcctx"
)

// UploadResponse is returned for an accepted (or deduplicated) upload.
type UploadResponse struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// UploadEndpoint handles POST /statements/upload with a multipart PDF.
type UploadEndpoint struct{}

var _ api.Endpoint = (*UploadEndpoint)(nil)

func (e *UploadEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/statements/upload", e.handler
}

func (e *UploadEndpoint) RequiresInit() bool { return true }

func (e *UploadEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	controller := svcctx.JobsFrom(r.Context())
	if controller == nil {
		writeError(w, http.StatusServiceUnavailable, "job controller not initialized")
		return
	}

	// Cap the body before buffering anything; the slack covers the
	// multipart framing around the file itself. The precise limit is
	// still enforced by Submit.
	r.Body = http.MaxBytesReader(w, r.Body, controller.MaxUploadSize()+(64<<10))

	const maxMemory = 64 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "request body exceeds maximum upload size")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	res, err := controller.Submit(r.Context(), header.Filename, content)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrEmptyFile),
		errors.Is(err, jobs.ErrFileTooLarge),
		errors.Is(err, jobs.ErrBadExtension):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, jobs.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := UploadResponse{
		JobID:    res.Statement.ID,
		Filename: res.Statement.Filename,
		Status:   string(res.Statement.Status),
		Message:  "Statement uploaded successfully and queued for processing",
	}
	if res.Duplicate {
		resp.Message = "This file has already been uploaded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *UploadEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a statement PDF for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp UploadResponse
			if err := client.Upload(cmd.Context(), "/statements/upload", "file", args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
