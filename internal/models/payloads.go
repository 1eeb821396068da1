package models

// These structs define the JSON payloads exchanged with the confirmation
// API functions and the storage trigger.

// InitializeSessionResponse is the output of the InitializeSession function.
type InitializeSessionResponse struct {
	Session   *Session         `json:"session"`
	Documents []DocumentRecord `json:"documents"`
}

// GenerateDocumentsRequest is the input for the GenerateDocuments function.
type GenerateDocumentsRequest struct {
	Session   *Session         `json:"session"`
	Documents []DocumentRecord `json:"documents"`
}

// MatchSignedDocumentsRequest is the input for the MatchSignedDocuments function.
type MatchSignedDocumentsRequest struct {
	Documents    []DocumentRecord `json:"documents"`
	SignedFolder string           `json:"signedFolder"`
}

// FinalizeSessionRequest is the input for the FinalizeSession function.
type FinalizeSessionRequest struct {
	Session   *Session         `json:"session"`
	Documents []DocumentRecord `json:"documents"`
}

type AuditHashesRequest struct {
	OriginalHash string `json:"originalHash"`
	SignedHash   string `json:"signedHash"`
	ReturnedHash string `json:"returnedHash"`
}

// RunSessionRequest drives a whole session in one call.
type RunSessionRequest struct {
	Input        SessionInput `json:"input"`
	SignedFolder string       `json:"signedFolder,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// GCSEvent is the payload of a Cloud Storage object notification.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}
