package services

import (
	"context"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
)

// PartnerGateway reads partner master data. GetPartner returns
// models.ErrNotFound for unknown ids.
type PartnerGateway interface {
	GetPartner(ctx context.Context, id string) (*models.Partner, error)
	ListActivePartners(ctx context.Context) ([]models.Partner, error)
}

// NumberCounter hands out registration numbers. Reserve claims count
// consecutive numbers atomically and returns the first one.
type NumberCounter interface {
	Reserve(ctx context.Context, count int) (int64, error)
}

// DocumentRenderer turns a template and partner data into a file on disk.
type DocumentRenderer interface {
	Render(ctx context.Context, req models.RenderRequest) (*models.RenderedDocument, error)
}

// RegistrationStore is the permanent journal of issued documents. Creating a
// registration with a number that already exists must fail.
type RegistrationStore interface {
	CreateRegistration(ctx context.Context, reg models.Registration) error
	GetRegistration(ctx context.Context, number int64) (*models.Registration, error)
	RecordAudit(ctx context.Context, number int64, audit models.RegistrationAudit) error
}

// ConfirmationRequestStore persists confirmation requests.
type ConfirmationRequestStore interface {
	CreateRequest(ctx context.Context, req models.ConfirmationRequest) (string, error)
	UpdateRequest(ctx context.Context, id string, patch models.RequestPatch) error
	// ListAwaitingResponse returns sent requests with no response whose
	// SentAt is before the cutoff.
	ListAwaitingResponse(ctx context.Context, sentBefore time.Time) ([]models.ConfirmationRequest, error)
}

// EmailLogStore appends to the email audit trail.
type EmailLogStore interface {
	AppendEmailLog(ctx context.Context, entry models.EmailLogEntry) (string, error)
}

// EmailSender delivers one message and returns the transport's message id.
type EmailSender interface {
	Send(ctx context.Context, msg models.OutgoingEmail) (string, error)
}

// EmailTemplateStore reads stored email templates.
type EmailTemplateStore interface {
	ListActiveTemplates(ctx context.Context) ([]models.EmailTemplate, error)
	GetTemplate(ctx context.Context, id string) (*models.EmailTemplate, error)
}

// BatchNotifier is told about every finalized batch. Optional.
type BatchNotifier interface {
	NotifyBatchFinalized(ctx context.Context, sessionID string, result FinalizeResult) error
}

// DocumentArchiver keeps a copy of every registered document. Optional.
type DocumentArchiver interface {
	ArchiveDocument(ctx context.Context, reg models.Registration, localPath string) error
}
