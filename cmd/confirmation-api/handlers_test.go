package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/Lllllllleong/balanceconfirmflow/internal/services"
	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileRenderer struct{}

func (fileRenderer) Render(ctx context.Context, req models.RenderRequest) (*models.RenderedDocument, error) {
	path := filepath.Join(req.OutputDir, fmt.Sprintf("generated-%d.pdf", req.RegistrationNumber))
	if err := os.WriteFile(path, []byte(req.Partner.Name), 0o644); err != nil {
		return nil, err
	}
	return &models.RenderedDocument{Path: path}, nil
}

func newTestAPI(t *testing.T) *api {
	t.Helper()
	store := memory.NewStore()
	store.PutPartner(models.Partner{ID: "p1", Name: "ACME SRL", Email: "office@acme.ro", ClientDUC: true, Active: true})
	wf, err := services.NewWorkflow(services.WorkflowDeps{
		Partners:      store,
		Counter:       memory.NewCounter(1),
		Renderer:      fileRenderer{},
		Registrations: store,
		Requests:      store,
		EmailLog:      store,
		Sender:        memory.NewMailbox(),
		Templates:     store,
		Policy:        services.DefaultSecurityPolicy(),
	})
	require.NoError(t, err)
	return &api{wf: wf}
}

func do(h http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestInitializeSession(t *testing.T) {
	a := newTestAPI(t)
	dir := t.TempDir()

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing partners", http.MethodPost, `{"category":"all","balanceDate":"2024-12-31","emailSubject":"s","outputFolder":"` + dir + `"}`, http.StatusBadRequest},
		{"no active partners", http.MethodPost, `{"partnerIds":["ghost"],"category":"all","balanceDate":"2024-12-31","emailSubject":"s","outputFolder":"` + dir + `"}`, http.StatusUnprocessableEntity},
		{"ok", http.MethodPost, `{"partnerIds":["p1"],"category":"all","balanceDate":"2024-12-31","emailSubject":"s","outputFolder":"` + dir + `"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(func(w http.ResponseWriter, r *http.Request) { a.initializeSession(w, r) }, tt.method, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestInitializeSession_returns_reserved_documents(t *testing.T) {
	a := newTestAPI(t)
	body := `{"partnerIds":["p1"],"category":"all","balanceDate":"2024-12-31","emailSubject":"s","outputFolder":"` + t.TempDir() + `"}`
	rec := do(func(w http.ResponseWriter, r *http.Request) { a.initializeSession(w, r) }, http.MethodPost, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.InitializeSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, int64(1), resp.Documents[0].RegistrationNumber)
	assert.NotEmpty(t, resp.Session.ID)
}

func TestFinalizeSession_requires_session(t *testing.T) {
	a := newTestAPI(t)
	rec := do(func(w http.ResponseWriter, r *http.Request) { a.finalizeSession(w, r) }, http.MethodPost, `{"documents":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "session", resp.Field)
}

func TestAuditHashes(t *testing.T) {
	a := newTestAPI(t)
	rec := do(func(w http.ResponseWriter, r *http.Request) { a.auditHashes(w, r) }, http.MethodPost, `{"originalHash":"a","signedHash":"a","returnedHash":"b"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var report services.AuditReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, services.AuditSuspect, report.Status)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&services.ValidationError{Field: "x"}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", &services.SecurityBlockError{PartnerName: "A"}), http.StatusForbidden},
		{services.ErrNoActivePartners, http.StatusUnprocessableEntity},
		{&services.GenerationError{}, http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", models.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}
