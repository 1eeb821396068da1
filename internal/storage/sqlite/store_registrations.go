package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
)

// CreateRegistration inserts a registration. A duplicate number yields models.ErrAlreadyExists.
func (s *Store) CreateRegistration(ctx context.Context, reg models.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if reg.Number <= 0 {
		return fmt.Errorf("registration number must be positive")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO registrations (
		   number, document_name, original_hash, signed_hash, size, file_path,
		   partner_id, partner_name, template_name, session_id,
		   user_id, user_name, user_email, notes, registered_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.Number, reg.DocumentName, reg.OriginalHash, reg.SignedHash, reg.Size, reg.FilePath,
		reg.PartnerID, reg.PartnerName, reg.TemplateName, reg.SessionID,
		reg.UserID, reg.UserName, reg.UserEmail, reg.Notes, toMillis(reg.RegisteredAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("registration %d: %w", reg.Number, models.ErrAlreadyExists)
		}
		return fmt.Errorf("create registration %d: %w", reg.Number, err)
	}
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, number int64) (*models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		reg                     models.Registration
		registeredAt, auditedAt sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT number, document_name, original_hash, signed_hash, size, file_path,
		        partner_id, partner_name, template_name, session_id,
		        user_id, user_name, user_email, notes, registered_at,
		        returned_hash, audit_status, audit_notes, audited_at
		   FROM registrations WHERE number = ?`, number,
	).Scan(
		&reg.Number, &reg.DocumentName, &reg.OriginalHash, &reg.SignedHash, &reg.Size, &reg.FilePath,
		&reg.PartnerID, &reg.PartnerName, &reg.TemplateName, &reg.SessionID,
		&reg.UserID, &reg.UserName, &reg.UserEmail, &reg.Notes, &registeredAt,
		&reg.ReturnedHash, &reg.AuditStatus, &reg.AuditNotes, &auditedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("registration %d: %w", number, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get registration %d: %w", number, err)
	}
	reg.RegisteredAt = fromMillis(registeredAt)
	reg.AuditedAt = fromMillis(auditedAt)
	return &reg, nil
}

func (s *Store) RecordAudit(ctx context.Context, number int64, audit models.RegistrationAudit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE registrations SET returned_hash = ?, audit_status = ?, audit_notes = ?, audited_at = ? WHERE number = ?`,
		audit.ReturnedHash, audit.Status, audit.Notes, toMillis(audit.AuditedAt), number,
	)
	if err != nil {
		return fmt.Errorf("record audit for %d: %w", number, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("registration %d: %w", number, models.ErrNotFound)
	}
	return nil
}
