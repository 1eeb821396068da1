package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/google/uuid"
)

func (s *Store) CreateRequest(ctx context.Context, req models.ConfirmationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO confirmation_requests (
		   id, partner_id, partner_name, partner_email, session_id, registration_number,
		   document_name, document_path, document_hash, email_template_id, email_subject,
		   state, notes, created_by, created_at, sent_at, responded_at, reminder_count, last_reminder_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, req.PartnerID, req.PartnerName, req.PartnerEmail, req.SessionID, req.RegistrationNumber,
		req.DocumentName, req.DocumentPath, req.DocumentHash, req.EmailTemplateID, req.EmailSubject,
		string(req.State), req.Notes, req.CreatedBy, toMillis(req.CreatedAt), toMillis(req.SentAt),
		toMillis(req.RespondedAt), req.ReminderCount, toMillis(req.LastReminderAt),
	)
	if err != nil {
		return "", fmt.Errorf("create confirmation request: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateRequest(ctx context.Context, id string, patch models.RequestPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		sets []string
		args []any
	)
	if patch.State != nil {
		sets, args = append(sets, "state = ?"), append(args, string(*patch.State))
	}
	if patch.SentAt != nil {
		sets, args = append(sets, "sent_at = ?"), append(args, toMillis(*patch.SentAt))
	}
	if patch.Notes != nil {
		sets, args = append(sets, "notes = ?"), append(args, *patch.Notes)
	}
	if patch.ReminderCount != nil {
		sets, args = append(sets, "reminder_count = ?"), append(args, *patch.ReminderCount)
	}
	if patch.LastReminderAt != nil {
		sets, args = append(sets, "last_reminder_at = ?"), append(args, toMillis(*patch.LastReminderAt))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE confirmation_requests SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update confirmation request %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("confirmation request %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAwaitingResponse(ctx context.Context, sentBefore time.Time) ([]models.ConfirmationRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, partner_id, partner_name, partner_email, session_id, registration_number,
		        document_name, document_path, document_hash, email_template_id, email_subject,
		        state, notes, created_by, created_at, sent_at, responded_at, reminder_count, last_reminder_at
		   FROM confirmation_requests
		  WHERE state = ? AND responded_at IS NULL AND sent_at IS NOT NULL AND sent_at < ?
		  ORDER BY sent_at, id`,
		string(models.RequestSent), sentBefore.UTC().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("list requests awaiting response: %w", err)
	}
	defer rows.Close()

	var out []models.ConfirmationRequest
	for rows.Next() {
		var (
			req                                          models.ConfirmationRequest
			state                                        string
			createdAt, sentAt, respondedAt, lastReminder sql.NullInt64
		)
		if err := rows.Scan(
			&req.ID, &req.PartnerID, &req.PartnerName, &req.PartnerEmail, &req.SessionID, &req.RegistrationNumber,
			&req.DocumentName, &req.DocumentPath, &req.DocumentHash, &req.EmailTemplateID, &req.EmailSubject,
			&state, &req.Notes, &req.CreatedBy, &createdAt, &sentAt, &respondedAt, &req.ReminderCount, &lastReminder,
		); err != nil {
			return nil, fmt.Errorf("scan confirmation request: %w", err)
		}
		req.State = models.RequestState(state)
		req.CreatedAt = fromMillis(createdAt)
		req.SentAt = fromMillis(sentAt)
		req.RespondedAt = fromMillis(respondedAt)
		req.LastReminderAt = fromMillis(lastReminder)
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *Store) AppendEmailLog(ctx context.Context, e models.EmailLogEntry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO email_log (
		   id, kind, session_id, request_id, partner_id, recipient, recipient_name, subject,
		   template_id, message_id, status, error, attempts, max_attempts, last_attempt_at,
		   next_attempt_at, signature_status, attachment_hash, original_hash, created_by, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(e.Kind), e.SessionID, e.RequestID, e.PartnerID, e.Recipient, e.RecipientName, e.Subject,
		e.TemplateID, e.MessageID, string(e.Status), e.Error, e.Attempts, e.MaxAttempts, toMillis(e.LastAttemptAt),
		toMillis(e.NextAttemptAt), e.SignatureStatus, e.AttachmentHash, e.OriginalHash, e.CreatedBy, toMillis(e.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("append email log: %w", err)
	}
	return id, nil
}

// EmailLogForRequest returns the log entries of one request in creation order.
func (s *Store) EmailLogForRequest(ctx context.Context, requestID string) ([]models.EmailLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, kind, session_id, request_id, partner_id, recipient, recipient_name, subject,
		        template_id, message_id, status, error, attempts, max_attempts, last_attempt_at,
		        next_attempt_at, signature_status, attachment_hash, original_hash, created_by, created_at
		   FROM email_log WHERE request_id = ? ORDER BY created_at, rowid`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list email log: %w", err)
	}
	defer rows.Close()

	var out []models.EmailLogEntry
	for rows.Next() {
		var (
			e                                 models.EmailLogEntry
			kind, status                      string
			lastAttempt, nextAttempt, created sql.NullInt64
		)
		if err := rows.Scan(
			&e.ID, &kind, &e.SessionID, &e.RequestID, &e.PartnerID, &e.Recipient, &e.RecipientName, &e.Subject,
			&e.TemplateID, &e.MessageID, &status, &e.Error, &e.Attempts, &e.MaxAttempts, &lastAttempt,
			&nextAttempt, &e.SignatureStatus, &e.AttachmentHash, &e.OriginalHash, &e.CreatedBy, &created,
		); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		e.Kind = models.EmailKind(kind)
		e.Status = models.SendStatus(status)
		e.LastAttemptAt = fromMillis(lastAttempt)
		e.NextAttemptAt = fromMillis(nextAttempt)
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
