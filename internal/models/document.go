package models

import "time"

// DocumentStatus tracks a document record through a session.
type DocumentStatus string

const (
	StatusReserved   DocumentStatus = "reserved"
	StatusGenerated  DocumentStatus = "generated"
	StatusMatched    DocumentStatus = "matched"
	StatusRegistered DocumentStatus = "registered"
)

// DocumentRecord is the per-partner working record carried between the
// session stages. It is never persisted as-is; Registration is the permanent form.
type DocumentRecord struct {
	RegistrationNumber int64          `json:"registrationNumber"`
	PartnerID          string         `json:"partnerId"`
	PartnerName        string         `json:"partnerName"`
	PartnerType        string         `json:"partnerType,omitempty"`
	TemplateName       string         `json:"templateName,omitempty"`
	DocumentName       string         `json:"documentName"`
	GeneratedPath      string         `json:"generatedPath,omitempty"`
	OriginalHash       string         `json:"originalHash,omitempty"`
	SignedPath         string         `json:"signedPath,omitempty"`
	SignedHash         string         `json:"signedHash,omitempty"`
	Size               int64          `json:"size,omitempty"`
	PageCount          int            `json:"pageCount,omitempty"`
	Status             DocumentStatus `json:"status"`
}

// CandidatePath is the file that would be sent: the signed upload if one was
// matched, otherwise the generated document.
func (d DocumentRecord) CandidatePath() string {
	if d.SignedPath != "" {
		return d.SignedPath
	}
	return d.GeneratedPath
}

// Registration is the permanent journal entry for an issued document.
// Its Number is the number reserved at session start.
type Registration struct {
	Number       int64     `firestore:"number" json:"number"`
	DocumentName string    `firestore:"documentName" json:"documentName"`
	OriginalHash string    `firestore:"originalHash" json:"originalHash"`
	SignedHash   string    `firestore:"signedHash,omitempty" json:"signedHash,omitempty"`
	Size         int64     `firestore:"size" json:"size"`
	FilePath     string    `firestore:"filePath" json:"filePath"`
	PartnerID    string    `firestore:"partnerId" json:"partnerId"`
	PartnerName  string    `firestore:"partnerName" json:"partnerName"`
	TemplateName string    `firestore:"templateName,omitempty" json:"templateName,omitempty"`
	SessionID    string    `firestore:"sessionId" json:"sessionId"`
	UserID       string    `firestore:"userId,omitempty" json:"userId,omitempty"`
	UserName     string    `firestore:"userName,omitempty" json:"userName,omitempty"`
	UserEmail    string    `firestore:"userEmail,omitempty" json:"userEmail,omitempty"`
	Notes        string    `firestore:"notes,omitempty" json:"notes,omitempty"`
	RegisteredAt time.Time `firestore:"registeredAt" json:"registeredAt"`

	ReturnedHash string    `firestore:"returnedHash,omitempty" json:"returnedHash,omitempty"`
	AuditStatus  string    `firestore:"auditStatus,omitempty" json:"auditStatus,omitempty"`
	AuditNotes   string    `firestore:"auditNotes,omitempty" json:"auditNotes,omitempty"`
	AuditedAt    time.Time `firestore:"auditedAt,omitempty" json:"auditedAt,omitempty"`
}

// RegistrationAudit is the outcome of comparing a partner-returned file
// against a registration.
type RegistrationAudit struct {
	ReturnedHash string
	Status       string
	Notes        string
	AuditedAt    time.Time
}
