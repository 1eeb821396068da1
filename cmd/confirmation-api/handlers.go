package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/Lllllllleong/balanceconfirmflow/internal/services"
)

type api struct {
	wf *services.Workflow
}

// finalizeResponse carries the batch result even when the call failed.
type finalizeResponse struct {
	Result *services.FinalizeResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "method not allowed"})
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Error("Could not decode request body", "error", err)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "could not parse JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func statusFor(err error) int {
	var validation *services.ValidationError
	var block *services.SecurityBlockError
	var generation *services.GenerationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &block):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNoActivePartners), errors.As(err, &generation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := models.ErrorResponse{Error: err.Error()}
	var validation *services.ValidationError
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		resp.Error = "processing failed"
	}
	writeJSON(w, status, resp)
}

func (a *api) initializeSession(w http.ResponseWriter, r *http.Request) {
	var in models.SessionInput
	if !decode(w, r, &in) {
		return
	}
	session, docs, err := a.wf.InitializeSession(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.InitializeSessionResponse{Session: session, Documents: docs})
}

func (a *api) generateDocuments(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateDocumentsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Session == nil {
		writeError(w, &services.ValidationError{Field: "session", Message: "is required"})
		return
	}
	res, err := a.wf.GenerateDocuments(r.Context(), req.Session, req.Documents)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) matchSignedDocuments(w http.ResponseWriter, r *http.Request) {
	var req models.MatchSignedDocumentsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SignedFolder == "" {
		writeError(w, &services.ValidationError{Field: "signedFolder", Message: "is required"})
		return
	}
	res, err := a.wf.MatchSignedDocuments(r.Context(), req.Documents, req.SignedFolder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) finalizeSession(w http.ResponseWriter, r *http.Request) {
	var req models.FinalizeSessionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Session == nil {
		writeError(w, &services.ValidationError{Field: "session", Message: "is required"})
		return
	}
	res, err := a.wf.Finalize(r.Context(), req.Session, req.Documents)
	if err != nil {
		writeJSON(w, statusFor(err), finalizeResponse{Result: res, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, finalizeResponse{Result: res})
}

func (a *api) auditHashes(w http.ResponseWriter, r *http.Request) {
	var req models.AuditHashesRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, a.wf.AuditHashes(req.OriginalHash, req.SignedHash, req.ReturnedHash))
}

func (a *api) runSession(w http.ResponseWriter, r *http.Request) {
	var req models.RunSessionRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.wf.Run(r.Context(), req.Input, req.SignedFolder)
	if err != nil && res == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		slog.Warn("Session run finished with an error.", "error", err)
		writeJSON(w, statusFor(err), struct {
			*services.RunResult
			Error string `json:"error"`
		}{res, err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
