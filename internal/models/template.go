package models

// Template kinds.
const (
	TemplateKindEmail = "email"
	TemplateKindPDF   = "pdf"
)

// Email template buckets.
const (
	BucketClient   = "client"
	BucketFurnizor = "furnizor"
	BucketGeneral  = "general"
)

// EmailTemplate is a stored message body with placeholders.
type EmailTemplate struct {
	ID       string `firestore:"-" json:"id"`
	Name     string `firestore:"name" json:"name"`
	Kind     string `firestore:"kind" json:"kind"`
	Category string `firestore:"category" json:"category"`
	Active   bool   `firestore:"active" json:"active"`
	Subject  string `firestore:"subject,omitempty" json:"subject,omitempty"`
	Body     string `firestore:"body" json:"body"`
}
