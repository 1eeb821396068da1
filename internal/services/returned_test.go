package services

import (
	"context"
	"testing"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistrationNumber(t *testing.T) {
	tests := []struct {
		name string
		want int64
		ok   bool
	}{
		{"CERERE DE CONFIRMARE DE SOLD Nr. 42 31.12.2024 - ACME SRL.pdf", 42, true},
		{"returned/2025/CERERE DE CONFIRMARE DE SOLD nr.7 - X.pdf", 7, true},
		{"Nr 0012 semnat.pdf", 12, true},
		{"scan nr. 0.pdf", 0, false},
		{"Numar 15.pdf", 0, false},
		{"random.pdf", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRegistrationNumber(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReturnedDocumentAuditor_AuditFile(t *testing.T) {
	dir := t.TempDir()
	originalPath := writeFile(t, dir, "original.pdf", "original")
	signedPath := writeFile(t, dir, "signed.pdf", "signed")
	originalHash, err := CalculateFileHash(originalPath)
	require.NoError(t, err)
	signedHash, err := CalculateFileHash(signedPath)
	require.NoError(t, err)

	tests := []struct {
		name     string
		returned string
		status   AuditStatus
		notes    string
	}{
		{"signed copy returned", "signed", AuditValid, "Hash chain is consistent; no action needed."},
		{"countersigned copy returned", "countersigned", AuditValid, "Hash chain is consistent; no action needed."},
		{"unsigned original returned", "original", AuditSuspect, "returned file equals the unsigned original: partner may have signed the wrong document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			require.NoError(t, store.CreateRegistration(context.Background(), models.Registration{
				Number: 9, OriginalHash: originalHash, SignedHash: signedHash,
			}))
			a, err := NewReturnedDocumentAuditor(store, nil)
			require.NoError(t, err)
			audited := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
			a.now = func() time.Time { return audited }

			path := writeFile(t, t.TempDir(), "returned.pdf", tt.returned)
			report, err := a.AuditFile(context.Background(), 9, path)
			require.NoError(t, err)
			assert.Equal(t, tt.status, report.Status)

			reg, err := store.GetRegistration(context.Background(), 9)
			require.NoError(t, err)
			assert.Equal(t, string(tt.status), reg.AuditStatus)
			assert.Equal(t, tt.notes, reg.AuditNotes)
			assert.Equal(t, audited, reg.AuditedAt)
			assert.Len(t, reg.ReturnedHash, 64)
		})
	}
}

func TestReturnedDocumentAuditor_errors(t *testing.T) {
	_, err := NewReturnedDocumentAuditor(nil, nil)
	require.Error(t, err)

	a, err := NewReturnedDocumentAuditor(memory.NewStore(), nil)
	require.NoError(t, err)

	_, err = a.AuditFile(context.Background(), 404, "/does/not/matter.pdf")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
