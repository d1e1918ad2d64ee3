package web

import (
	"encoding/json"
	"net/http"

	"confsched/internal/apperr"
	appLog "confsched/internal/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errorResponse struct {
	Error    string         `json:"error"`
	Kind     string         `json:"kind"`
	Issues   []apperr.Issue `json:"issues,omitempty"`
	Guidance string         `json:"guidance,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: "request"})
}

// writeAppError maps the error kind to a status and writes the error body.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := string(apperr.KindOf(err))
	if kind == "" {
		kind = "unknown"
	}
	if status >= http.StatusInternalServerError {
		appLog.Error("api request failed", err, "path", r.URL.Path, "request_id", RequestID(r.Context()))
	}
	writeJSON(w, status, errorResponse{
		Error:    err.Error(),
		Kind:     kind,
		Issues:   apperr.IssuesOf(err),
		Guidance: apperr.Guidance(err),
	})
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindSchemaValidation, apperr.KindEmptySchedule:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindNetworkFailure, apperr.KindAccessBlocked:
		return http.StatusBadGateway
	case apperr.KindStorageQuotaExceeded:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
