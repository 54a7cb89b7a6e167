package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"sitevault/backend/app/services"
	"sitevault/backend/global"
	"sitevault/protocol"
)

type FileController struct {
	Files *services.FileService
}

func NewFileController(files *services.FileService) *FileController {
	return &FileController{Files: files}
}

// Fetch streams one site file named by the "path" query parameter.
func (c *FileController) Fetch(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		writeJSONError(w, http.StatusBadRequest, "missing path")
		return
	}
	f, info, err := c.Files.Open(rel)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	if _, err := io.Copy(w, f); err != nil {
		global.Logger.Error().Err(err).Str("path", rel).Msg("file stream failed")
	}
}

// FetchBatch streams a zip of the requested paths, one transfer per batch.
func (c *FileController) FetchBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req protocol.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(req.Paths) == 0 {
		writeJSONError(w, http.StatusBadRequest, "empty batch")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	if err := c.Files.WriteBatch(w, req.Paths); err != nil {
		// Headers are gone already; all we can do is cut the stream short
		// and let the agent count the unit as failed.
		global.Logger.Error().Err(err).Int("paths", len(req.Paths)).Msg("batch stream failed")
	}
}
