package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
)

var registrationNumberPattern = regexp.MustCompile(`(?i)\bNr\.?\s*(\d+)`)

// ParseRegistrationNumber extracts the number from a document name such as
// "CERERE DE CONFIRMARE DE SOLD Nr. 42 31.12.2024 - ACME.pdf".
func ParseRegistrationNumber(name string) (int64, bool) {
	m := registrationNumberPattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ReturnedDocumentAuditor audits a file a partner sent back against the
// hashes recorded when the document was registered.
type ReturnedDocumentAuditor struct {
	registrations RegistrationStore
	auditor       *HashAuditor
	now           func() time.Time
}

func NewReturnedDocumentAuditor(registrations RegistrationStore, auditor *HashAuditor) (*ReturnedDocumentAuditor, error) {
	if registrations == nil {
		return nil, fmt.Errorf("returned document auditor requires a registration store")
	}
	if auditor == nil {
		auditor = NewHashAuditor()
	}
	return &ReturnedDocumentAuditor{registrations: registrations, auditor: auditor, now: time.Now}, nil
}

// AuditFile hashes localPath, grades it against registration number and
// stores the verdict on the registration.
func (a *ReturnedDocumentAuditor) AuditFile(ctx context.Context, number int64, localPath string) (*AuditReport, error) {
	logCtx := slog.With("registrationNumber", number, "path", localPath)

	reg, err := a.registrations.GetRegistration(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to load registration %d: %w", number, err)
	}
	returned, err := CalculateFileHash(localPath)
	if err != nil {
		return nil, err
	}

	report := a.auditor.AuditHashes(reg.OriginalHash, reg.SignedHash, returned)
	notes := report.Recommendation
	if len(report.Warnings) > 0 {
		notes = strings.Join(report.Warnings, "; ")
	}
	audit := models.RegistrationAudit{
		ReturnedHash: returned,
		Status:       string(report.Status),
		Notes:        notes,
		AuditedAt:    a.now(),
	}
	if err := a.registrations.RecordAudit(ctx, number, audit); err != nil {
		return nil, fmt.Errorf("failed to record audit for %d: %w", number, err)
	}
	logCtx.Info("Returned document audited.", "status", report.Status, "returnedHash", returned)
	return &report, nil
}
