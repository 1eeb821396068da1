package models

import "time"

// RequestState is the lifecycle of a ConfirmationRequest.
type RequestState string

const (
	RequestPending RequestState = "pending"
	RequestSent    RequestState = "sent"
	RequestFailed  RequestState = "failed"
)

// ConfirmationRequest tracks one balance-confirmation request sent to a partner.
type ConfirmationRequest struct {
	ID                 string       `firestore:"-" json:"id"`
	PartnerID          string       `firestore:"partnerId" json:"partnerId"`
	PartnerName        string       `firestore:"partnerName" json:"partnerName"`
	PartnerEmail       string       `firestore:"partnerEmail,omitempty" json:"partnerEmail,omitempty"`
	SessionID          string       `firestore:"sessionId" json:"sessionId"`
	RegistrationNumber int64        `firestore:"registrationNumber" json:"registrationNumber"`
	DocumentName       string       `firestore:"documentName" json:"documentName"`
	DocumentPath       string       `firestore:"documentPath" json:"documentPath"`
	DocumentHash       string       `firestore:"documentHash" json:"documentHash"`
	EmailTemplateID    string       `firestore:"emailTemplateId,omitempty" json:"emailTemplateId,omitempty"`
	EmailSubject       string       `firestore:"emailSubject,omitempty" json:"emailSubject,omitempty"`
	State              RequestState `firestore:"state" json:"state"`
	Notes              string       `firestore:"notes,omitempty" json:"notes,omitempty"`
	CreatedBy          string       `firestore:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt          time.Time    `firestore:"createdAt" json:"createdAt"`
	SentAt             time.Time    `firestore:"sentAt,omitempty" json:"sentAt,omitempty"`
	RespondedAt        time.Time    `firestore:"respondedAt,omitempty" json:"respondedAt,omitempty"`
	ReminderCount      int          `firestore:"reminderCount" json:"reminderCount"`
	LastReminderAt     time.Time    `firestore:"lastReminderAt,omitempty" json:"lastReminderAt,omitempty"`
}

// RequestPatch carries the fields to change on a ConfirmationRequest.
// Nil fields are left untouched.
type RequestPatch struct {
	State          *RequestState
	SentAt         *time.Time
	Notes          *string
	ReminderCount  *int
	LastReminderAt *time.Time
}

// EmailKind distinguishes the first request from follow-ups.
type EmailKind string

const (
	EmailConfirmation EmailKind = "confirmation"
	EmailReminder     EmailKind = "reminder"
)

// SendStatus is the outcome of one send attempt.
type SendStatus string

const (
	SendSuccess SendStatus = "success"
	SendFailed  SendStatus = "failed"
)

// Signature statuses recorded on email log entries.
const (
	SignatureUnsignedDetected = "unsigned-detected"
	SignatureValid            = "signed-valid"
)

// EmailLogEntry is one row of the email audit trail, one per send attempt.
type EmailLogEntry struct {
	ID              string     `firestore:"-" json:"id"`
	Kind            EmailKind  `firestore:"kind" json:"kind"`
	SessionID       string     `firestore:"sessionId,omitempty" json:"sessionId,omitempty"`
	RequestID       string     `firestore:"requestId,omitempty" json:"requestId,omitempty"`
	PartnerID       string     `firestore:"partnerId" json:"partnerId"`
	Recipient       string     `firestore:"recipient" json:"recipient"`
	RecipientName   string     `firestore:"recipientName,omitempty" json:"recipientName,omitempty"`
	Subject         string     `firestore:"subject" json:"subject"`
	TemplateID      string     `firestore:"templateId,omitempty" json:"templateId,omitempty"`
	MessageID       string     `firestore:"messageId,omitempty" json:"messageId,omitempty"`
	Status          SendStatus `firestore:"status" json:"status"`
	Error           string     `firestore:"error,omitempty" json:"error,omitempty"`
	Attempts        int        `firestore:"attempts" json:"attempts"`
	MaxAttempts     int        `firestore:"maxAttempts" json:"maxAttempts"`
	LastAttemptAt   time.Time  `firestore:"lastAttemptAt" json:"lastAttemptAt"`
	NextAttemptAt   time.Time  `firestore:"nextAttemptAt,omitempty" json:"nextAttemptAt,omitempty"`
	SignatureStatus string     `firestore:"signatureStatus,omitempty" json:"signatureStatus,omitempty"`
	AttachmentHash  string     `firestore:"attachmentHash,omitempty" json:"attachmentHash,omitempty"`
	OriginalHash    string     `firestore:"originalHash,omitempty" json:"originalHash,omitempty"`
	CreatedBy       string     `firestore:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt" json:"createdAt"`
}

// Attachment is a file sent alongside an email.
type Attachment struct {
	Filename string
	Path     string
}

// OutgoingEmail is the message handed to an EmailSender.
type OutgoingEmail struct {
	To          string
	ToName      string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
	Metadata    map[string]string
}
