package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultMaxSendAttempts = 3
	defaultSendRetryDelay  = 15 * time.Minute
)

// PartnerOutcome is what happened to one partner during finalization.
type PartnerOutcome struct {
	PartnerID          string `json:"partnerId"`
	PartnerName        string `json:"partnerName"`
	RegistrationNumber int64  `json:"registrationNumber"`
	Registered         bool   `json:"registered"`
	Sent               bool   `json:"sent"`
	RequestID          string `json:"requestId,omitempty"`
	MessageID          string `json:"messageId,omitempty"`
	SignatureStatus    string `json:"signatureStatus,omitempty"`
	Issue              string `json:"issue,omitempty"`
	// Status is the document record status after the partner was processed.
	Status models.DocumentStatus `json:"status,omitempty"`
}

// FinalizeResult aggregates a batch. Security blocks appear in Issues tagged
// with SecurityBlockTag.
type FinalizeResult struct {
	Registered       int              `json:"registered"`
	Sent             int              `json:"sent"`
	SkippedPreFlight int              `json:"skippedPreFlight"`
	FailedSend       int              `json:"failedSend"`
	SecurityBlocked  int              `json:"securityBlocked"`
	Issues           []string         `json:"issues"`
	Outcomes         []PartnerOutcome `json:"outcomes"`
}

// CommitterOption configures a FinalizationCommitter.
type CommitterOption func(*FinalizationCommitter)

// WithArchiver keeps a copy of every registered document.
func WithArchiver(a DocumentArchiver) CommitterOption {
	return func(c *FinalizationCommitter) { c.archiver = a }
}

// WithNotifier reports every finalized batch.
func WithNotifier(n BatchNotifier) CommitterOption {
	return func(c *FinalizationCommitter) { c.notifier = n }
}

// WithSendRetryPolicy sets the attempt budget and delay recorded on failed sends.
func WithSendRetryPolicy(maxAttempts int, delay time.Duration) CommitterOption {
	return func(c *FinalizationCommitter) {
		c.maxSendAttempts = maxAttempts
		c.retryDelay = delay
	}
}

// WithCommitterClock replaces time.Now, mostly for tests.
func WithCommitterClock(now func() time.Time) CommitterOption {
	return func(c *FinalizationCommitter) { c.now = now }
}

// FinalizationCommitter registers documents and sends confirmation requests
// for every partner that passes pre-flight.
type FinalizationCommitter struct {
	preflight       *PreFlightValidator
	registrations   RegistrationStore
	requests        ConfirmationRequestStore
	emailLog        EmailLogStore
	sender          EmailSender
	archiver        DocumentArchiver
	notifier        BatchNotifier
	maxSendAttempts int
	retryDelay      time.Duration
	now             func() time.Time
}

func NewFinalizationCommitter(preflight *PreFlightValidator, registrations RegistrationStore, requests ConfirmationRequestStore, emailLog EmailLogStore, sender EmailSender, opts ...CommitterOption) (*FinalizationCommitter, error) {
	if preflight == nil || registrations == nil || requests == nil || emailLog == nil || sender == nil {
		return nil, fmt.Errorf("finalization committer requires pre-flight, registration, request, email log and sender dependencies")
	}
	c := &FinalizationCommitter{
		preflight:       preflight,
		registrations:   registrations,
		requests:        requests,
		emailLog:        emailLog,
		sender:          sender,
		maxSendAttempts: defaultMaxSendAttempts,
		retryDelay:      defaultSendRetryDelay,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Finalize processes partners one after another. A failure for one partner
// never stops the others. When the batch holds a single partner and that
// partner was blocked as unsigned, the *SecurityBlockError is returned with the result.
func (c *FinalizationCommitter) Finalize(ctx context.Context, session *models.Session, matched []models.DocumentRecord) (*FinalizeResult, error) {
	ctx, span := tracer.Start(ctx, "Finalize")
	defer span.End()

	logCtx := slog.With("sessionId", session.ID)
	logCtx.Info("Starting finalization.", "documents", len(matched), "blockUnsigned", c.preflight.Policy().blocksUnsigned())

	result := &FinalizeResult{Issues: []string{}, Outcomes: []PartnerOutcome{}}
	var lastBlock *SecurityBlockError
	for _, doc := range matched {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, blockErr := c.commitPartner(ctx, logCtx.With("partnerId", doc.PartnerID, "registrationNumber", doc.RegistrationNumber), session, doc, result)
		if blockErr != nil {
			lastBlock = blockErr
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	span.SetAttributes(
		attribute.Int("batch.registered", result.Registered),
		attribute.Int("batch.sent", result.Sent),
		attribute.Int("batch.skipped", result.SkippedPreFlight),
		attribute.Int("batch.failedSend", result.FailedSend),
	)
	logCtx.Info("Finalization finished.", "registered", result.Registered, "sent", result.Sent, "skipped", result.SkippedPreFlight, "failedSend", result.FailedSend, "securityBlocked", result.SecurityBlocked)

	if c.notifier != nil {
		if err := c.notifier.NotifyBatchFinalized(ctx, session.ID, *result); err != nil {
			logCtx.Warn("Failed to publish batch summary.", "error", err)
		}
	}

	if len(matched) == 1 && lastBlock != nil {
		return result, lastBlock
	}
	return result, nil
}

func (c *FinalizationCommitter) commitPartner(ctx context.Context, logCtx *slog.Logger, session *models.Session, doc models.DocumentRecord, result *FinalizeResult) (PartnerOutcome, *SecurityBlockError) {
	outcome := PartnerOutcome{PartnerID: doc.PartnerID, PartnerName: doc.PartnerName, RegistrationNumber: doc.RegistrationNumber, Status: doc.Status}
	issue := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		outcome.Issue = msg
		result.Issues = append(result.Issues, msg)
	}

	pre := c.preflight.Check(ctx, session, doc)
	outcome.SignatureStatus = pre.SignatureStatus
	if !pre.OK {
		result.SkippedPreFlight++
		var blockErr *SecurityBlockError
		if errors.As(pre.Err, &blockErr) {
			result.SecurityBlocked++
			logCtx.Warn("Sending blocked: unsigned document.", "hash", blockErr.Hash)
			issue("%s", blockErr.Error())
			return outcome, blockErr
		}
		logCtx.Warn("Partner skipped by pre-flight check.", "reason", pre.Reason, "error", pre.Err)
		if pre.Err != nil {
			issue("%s: %s: %v", doc.PartnerName, pre.Reason, pre.Err)
		} else {
			issue("%s: %s", doc.PartnerName, pre.Reason)
		}
		return outcome, nil
	}
	partner := pre.Partner
	outcome.PartnerName = partner.Name

	// Stage A: the registration keeps the number reserved at session start.
	if doc.RegistrationNumber <= 0 {
		issue("%s: document has no reserved registration number", partner.Name)
		return outcome, nil
	}
	reg := models.Registration{
		Number:       doc.RegistrationNumber,
		DocumentName: doc.DocumentName,
		OriginalHash: doc.OriginalHash,
		SignedHash:   doc.SignedHash,
		Size:         doc.Size,
		FilePath:     pre.FilePath,
		PartnerID:    partner.ID,
		PartnerName:  partner.Name,
		TemplateName: doc.TemplateName,
		SessionID:    session.ID,
		UserID:       session.User.ID,
		UserName:     session.User.Name,
		UserEmail:    session.User.Email,
		Notes:        session.Notes,
		RegisteredAt: c.now(),
	}
	if err := c.registrations.CreateRegistration(ctx, reg); err != nil {
		logCtx.Error("Failed to register document.", "error", err)
		issue("%s: failed to register document: %v", partner.Name, err)
		return outcome, nil
	}
	doc.Status = models.StatusRegistered
	outcome.Status = doc.Status
	result.Registered++
	outcome.Registered = true
	logCtx.Info("Document registered.")

	if c.archiver != nil {
		if err := c.archiver.ArchiveDocument(ctx, reg, pre.FilePath); err != nil {
			logCtx.Warn("Failed to archive registered document.", "error", err)
		}
	}

	// Stage B: request record, send, audit trail.
	createdAt := c.now()
	requestID, err := c.requests.CreateRequest(ctx, models.ConfirmationRequest{
		PartnerID:          partner.ID,
		PartnerName:        partner.Name,
		PartnerEmail:       partner.Email,
		SessionID:          session.ID,
		RegistrationNumber: doc.RegistrationNumber,
		DocumentName:       doc.DocumentName,
		DocumentPath:       pre.FilePath,
		DocumentHash:       pre.FileHash,
		EmailTemplateID:    pre.EmailTemplateID,
		EmailSubject:       pre.Subject,
		State:              models.RequestPending,
		Notes:              fmt.Sprintf("Sent in session %s for %s", session.ID, partner.Name),
		CreatedBy:          session.User.ID,
		CreatedAt:          createdAt,
	})
	if err != nil {
		logCtx.Error("Failed to create confirmation request.", "error", err)
		issue("%s: failed to create confirmation request: %v", partner.Name, err)
		return outcome, nil
	}
	outcome.RequestID = requestID

	messageID, sendErr := c.sender.Send(ctx, models.OutgoingEmail{
		To:          partner.Email,
		ToName:      partner.Name,
		Subject:     pre.Subject,
		HTML:        pre.HTML,
		Text:        pre.Text,
		Attachments: []models.Attachment{{Filename: doc.DocumentName, Path: pre.FilePath}},
		Metadata: map[string]string{
			"sessionId":          session.ID,
			"requestId":          requestID,
			"partnerId":          partner.ID,
			"registrationNumber": strconv.FormatInt(doc.RegistrationNumber, 10),
			"signatureStatus":    pre.SignatureStatus,
		},
	})

	attemptAt := c.now()
	entry := models.EmailLogEntry{
		Kind:            models.EmailConfirmation,
		SessionID:       session.ID,
		RequestID:       requestID,
		PartnerID:       partner.ID,
		Recipient:       partner.Email,
		RecipientName:   partner.Name,
		Subject:         pre.Subject,
		TemplateID:      pre.EmailTemplateID,
		Attempts:        1,
		MaxAttempts:     c.maxSendAttempts,
		LastAttemptAt:   attemptAt,
		SignatureStatus: pre.SignatureStatus,
		AttachmentHash:  pre.FileHash,
		OriginalHash:    doc.OriginalHash,
		CreatedBy:       session.User.ID,
		CreatedAt:       attemptAt,
	}

	var patch models.RequestPatch
	if sendErr != nil {
		transient := &TransientSendError{Attempt: 1, NextAttemptAt: attemptAt.Add(c.retryDelay), Err: sendErr}
		state := models.RequestFailed
		notes := transient.Error()
		patch = models.RequestPatch{State: &state, Notes: &notes}
		entry.Status = models.SendFailed
		entry.Error = sendErr.Error()
		if c.maxSendAttempts > 1 {
			entry.NextAttemptAt = transient.NextAttemptAt
		}
		result.FailedSend++
		logCtx.Error("Failed to send confirmation email.", "error", sendErr)
		issue("%s: failed to send email: %v", partner.Name, sendErr)
	} else {
		state := models.RequestSent
		patch = models.RequestPatch{State: &state, SentAt: &attemptAt}
		entry.Status = models.SendSuccess
		entry.MessageID = messageID
		result.Sent++
		outcome.Sent = true
		outcome.MessageID = messageID
		logCtx.Info("Confirmation email sent.", "messageId", messageID, "signatureStatus", pre.SignatureStatus)
	}

	if err := c.requests.UpdateRequest(ctx, requestID, patch); err != nil {
		logCtx.Error("Failed to update confirmation request state.", "requestId", requestID, "error", err)
		result.Issues = append(result.Issues, fmt.Sprintf("%s: failed to update confirmation request: %v", partner.Name, err))
	}
	if _, err := c.emailLog.AppendEmailLog(ctx, entry); err != nil {
		logCtx.Error("Failed to append email log entry.", "error", err)
		result.Issues = append(result.Issues, fmt.Sprintf("%s: failed to write email log: %v", partner.Name, err))
	}
	return outcome, nil
}
