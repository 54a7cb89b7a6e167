package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sitevault/backend/app/services"
	"sitevault/backend/global"
	"sitevault/protocol"
)

type ExportController struct {
	Export *services.ExportService
}

func NewExportController(export *services.ExportService) *ExportController {
	return &ExportController{Export: export}
}

func (c *ExportController) Init(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	resp, err := c.Export.InitJob(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *ExportController) Process(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req protocol.DBProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.JobID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing job id")
		return
	}
	budget := time.Duration(req.TimeBudgetMs) * time.Millisecond
	resp, err := c.Export.Process(r.Context(), req.JobID, budget)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *ExportController) Download(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("id")
	if jobID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing job id")
		return
	}
	rc, size, err := c.Export.Open(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	if _, err := io.Copy(w, rc); err != nil {
		global.Logger.Error().Err(err).Str("job", jobID).Msg("artifact stream failed")
	}
}

func (c *ExportController) Finish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req protocol.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing job id")
		return
	}
	if err := c.Export.Finish(r.Context(), req.JobID); err != nil {
		global.Logger.Warn().Err(err).Str("job", req.JobID).Msg("export finish cleanup failed")
	}
	writeJSON(w, http.StatusOK, protocol.OKResponse{OK: true})
}
