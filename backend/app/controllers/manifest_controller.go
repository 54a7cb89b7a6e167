package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"sitevault/backend/app/services"
	"sitevault/backend/global"
	"sitevault/protocol"
)

type ManifestController struct {
	Manifest *services.ManifestService
}

func NewManifestController(manifest *services.ManifestService) *ManifestController {
	return &ManifestController{Manifest: manifest}
}

func (c *ManifestController) Init(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	resp, err := c.Manifest.InitJob(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *ManifestController) Page(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("id")
	if jobID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing job id")
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	resp, err := c.Manifest.Page(r.Context(), jobID, offset, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *ManifestController) Finish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req protocol.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing job id")
		return
	}
	if err := c.Manifest.Finish(r.Context(), req.JobID); err != nil {
		global.Logger.Warn().Err(err).Str("job", req.JobID).Msg("manifest finish cleanup failed")
	}
	writeJSON(w, http.StatusOK, protocol.OKResponse{OK: true})
}
