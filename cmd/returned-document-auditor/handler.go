package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/Lllllllleong/balanceconfirmflow/internal/services"
)

type auditHandler struct {
	auditor  *services.ReturnedDocumentAuditor
	download func(ctx context.Context, bucket, object, dest string) error
}

func newAuditHandler(registrations services.RegistrationStore, hashes *services.HashAuditor) (*auditHandler, error) {
	auditor, err := services.NewReturnedDocumentAuditor(registrations, hashes)
	if err != nil {
		return nil, err
	}
	return &auditHandler{auditor: auditor}, nil
}

// Process audits one uploaded object. Objects whose name carries no
// registration number, or whose registration is unknown, are skipped.
func (h *auditHandler) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	number, ok := services.ParseRegistrationNumber(e.Name)
	if !ok {
		logCtx.Info("Object name has no registration number. Skipping.")
		return nil
	}
	logCtx = logCtx.With("registrationNumber", number)

	tempDir, err := os.MkdirTemp("", "returned-audit-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, filepath.Base(e.Name))
	if err := h.download(ctx, e.Bucket, e.Name, localPath); err != nil {
		logCtx.Error("Failed to download returned document", "error", err)
		return err
	}

	report, err := h.auditor.AuditFile(ctx, number, localPath)
	if errors.Is(err, models.ErrNotFound) {
		logCtx.Warn("No registration for returned document. Skipping.")
		return nil
	}
	if err != nil {
		logCtx.Error("Failed to audit returned document", "error", err)
		return err
	}
	logCtx.Info("Returned document audit complete.", "status", report.Status, "findings", len(report.Findings))
	return nil
}
