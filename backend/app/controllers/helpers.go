package controllers

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"sitevault/backend/app/export"
	"sitevault/backend/app/services"
	"sitevault/protocol"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}

// writeServiceError maps service failures onto the protocol's status codes:
// unknown/expired jobs and corrupt cursors are client-correctable (the
// caller restarts the job), everything else is a server fault.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrJobNotFound), errors.Is(err, fs.ErrNotExist):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, export.ErrInvalidCursor):
		writeJSONError(w, http.StatusGone, err.Error())
	case errors.Is(err, services.ErrBadPath):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
