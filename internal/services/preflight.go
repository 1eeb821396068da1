package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
)

// SecurityPolicy controls how the pre-flight gate treats unsigned files.
type SecurityPolicy struct {
	// BlockUnsignedFiles refuses to send a file identical to the generated original.
	BlockUnsignedFiles bool
	// AllowUnsignedOverride lifts the block, for development environments only.
	AllowUnsignedOverride bool
}

// DefaultSecurityPolicy blocks unsigned files.
func DefaultSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{BlockUnsignedFiles: true}
}

func (p SecurityPolicy) blocksUnsigned() bool {
	return p.BlockUnsignedFiles && !p.AllowUnsignedOverride
}

// PreFlightResult is the verdict for one partner. When OK is false, Reason
// says why and nothing may be written for the partner.
type PreFlightResult struct {
	OK              bool
	Partner         *models.Partner
	EmailTemplateID string
	Subject         string
	HTML            string
	Text            string
	FilePath        string
	FileHash        string
	SignatureStatus string
	Reason          string
	Err             error
}

// PreFlightOption configures a PreFlightValidator.
type PreFlightOption func(*PreFlightValidator)

// WithCompanyName sets the value of the company-name placeholder.
func WithCompanyName(name string) PreFlightOption {
	return func(v *PreFlightValidator) { v.companyName = name }
}

// WithPreFlightClock replaces time.Now, mostly for tests.
func WithPreFlightClock(now func() time.Time) PreFlightOption {
	return func(v *PreFlightValidator) { v.now = now }
}

// PreFlightValidator checks every precondition of a partner's send before
// anything is written.
type PreFlightValidator struct {
	partners    PartnerGateway
	resolver    *TemplateResolver
	templates   EmailTemplateStore
	policy      SecurityPolicy
	companyName string
	now         func() time.Time
}

func NewPreFlightValidator(partners PartnerGateway, resolver *TemplateResolver, templates EmailTemplateStore, policy SecurityPolicy, opts ...PreFlightOption) (*PreFlightValidator, error) {
	if partners == nil || resolver == nil || templates == nil {
		return nil, fmt.Errorf("pre-flight validator requires a partner gateway, a template resolver and a template store")
	}
	v := &PreFlightValidator{
		partners:  partners,
		resolver:  resolver,
		templates: templates,
		policy:    policy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Policy returns the security policy the validator enforces.
func (v *PreFlightValidator) Policy() SecurityPolicy { return v.policy }

func skip(reason string, err error) PreFlightResult {
	return PreFlightResult{Reason: reason, Err: err}
}

// Check runs the pre-flight steps in order and stops at the first failure.
func (v *PreFlightValidator) Check(ctx context.Context, session *models.Session, doc models.DocumentRecord) PreFlightResult {
	partner, err := v.partners.GetPartner(ctx, doc.PartnerID)
	if errors.Is(err, models.ErrNotFound) {
		return skip("partner not found", err)
	}
	if err != nil {
		return skip("failed to load partner", err)
	}
	if strings.TrimSpace(partner.Email) == "" {
		return skip("partner has no email address", nil)
	}

	templateID, ok, err := v.resolver.EmailTemplate(ctx, session.Category, *partner)
	if err != nil {
		return skip("failed to resolve email template", err)
	}
	if !ok {
		return skip("no email template available", nil)
	}
	tmpl, err := v.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return skip("failed to load email template", err)
	}
	if strings.TrimSpace(tmpl.Body) == "" {
		return skip("email template is empty", nil)
	}

	values := PlaceholderValues{
		PartnerName:        partner.Name,
		PartnerCUI:         partner.CUI,
		PartnerAddress:     partner.Address,
		Representative:     partner.Representative,
		BalanceDate:        session.BalanceDate,
		RegistrationNumber: doc.RegistrationNumber,
		DocumentName:       doc.DocumentName,
		SenderName:         session.User.Name,
		SenderEmail:        session.User.Email,
		SenderRole:         session.User.Role,
		CompanyName:        v.companyName,
		CurrentDate:        v.now(),
	}
	htmlBody := ApplyPlaceholders(tmpl.Body, values)
	subject := session.EmailSubject
	if strings.TrimSpace(subject) == "" {
		subject = tmpl.Subject
	}
	subject = ApplyPlaceholders(subject, values)

	path := doc.CandidatePath()
	if path == "" {
		return skip("no document file for partner", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return skip("document file not found", err)
	}
	hash, err := CalculateFileHash(path)
	if err != nil {
		return skip("failed to hash document file", err)
	}

	status := models.SignatureValid
	if hash == doc.OriginalHash {
		status = models.SignatureUnsignedDetected
		if v.policy.blocksUnsigned() {
			blockErr := &SecurityBlockError{PartnerID: partner.ID, PartnerName: partner.Name, Hash: hash}
			return PreFlightResult{Partner: partner, FilePath: path, FileHash: hash, SignatureStatus: status, Reason: blockErr.Error(), Err: blockErr}
		}
		slog.Warn("Unsigned document allowed by policy override.", "sessionId", session.ID, "partnerId", partner.ID, "hash", hash)
	}

	return PreFlightResult{
		OK:              true,
		Partner:         partner,
		EmailTemplateID: templateID,
		Subject:         subject,
		HTML:            htmlBody,
		Text:            HTMLToText(htmlBody),
		FilePath:        path,
		FileHash:        hash,
		SignatureStatus: status,
	}
}
