package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
)

// TemplateCatalog maps partner types to document template file names.
type TemplateCatalog struct {
	Documents map[string]string `yaml:"documents"`
}

// DefaultTemplateCatalog returns the built-in template file names.
func DefaultTemplateCatalog() TemplateCatalog {
	return TemplateCatalog{Documents: map[string]string{
		models.PartnerClientDUC:   "document_template_clienți-duc.docx",
		models.PartnerClientDL:    "document_template_clienți-dl.docx",
		models.PartnerFurnizorDUC: "document_template_furnizori-duc.docx",
		models.PartnerFurnizorDL:  "document_template_furnizori-dl.docx",
	}}
}

type partnerTypeRule struct {
	partnerType string
	matches     func(models.Partner) bool
}

// partnerTypeRules is evaluated top to bottom; the first match wins.
var partnerTypeRules = []partnerTypeRule{
	{models.PartnerClientDUC, func(p models.Partner) bool { return p.ClientDUC }},
	{models.PartnerClientDL, func(p models.Partner) bool { return p.ClientDL }},
	{models.PartnerFurnizorDUC, func(p models.Partner) bool { return p.FurnizorDUC }},
	{models.PartnerFurnizorDL, func(p models.Partner) bool { return p.FurnizorDL }},
}

// PartnerType derives a partner's type from its classification flags.
// Unclassified partners count as DUC clients.
func PartnerType(p models.Partner) string {
	for _, rule := range partnerTypeRules {
		if rule.matches(p) {
			return rule.partnerType
		}
	}
	return models.PartnerClientDUC
}

// EmailBucket maps a session category to the email template bucket used for a partner.
func EmailBucket(category string, p models.Partner) string {
	if category == models.CategoryAll {
		category = PartnerType(p)
	}
	switch {
	case strings.HasPrefix(category, "client_"):
		return models.BucketClient
	case strings.HasPrefix(category, "furnizor_"):
		return models.BucketFurnizor
	default:
		return models.BucketGeneral
	}
}

type emailTemplateRule struct {
	name string
	pick func(templates []models.EmailTemplate, bucket string) (models.EmailTemplate, bool)
}

func firstInCategory(category string) func([]models.EmailTemplate, string) (models.EmailTemplate, bool) {
	return func(templates []models.EmailTemplate, _ string) (models.EmailTemplate, bool) {
		for _, t := range templates {
			if t.Category == category {
				return t, true
			}
		}
		return models.EmailTemplate{}, false
	}
}

// emailTemplateFallbacks is the lookup chain for email templates.
var emailTemplateFallbacks = []emailTemplateRule{
	{"bucket", func(templates []models.EmailTemplate, bucket string) (models.EmailTemplate, bool) {
		return firstInCategory(bucket)(templates, bucket)
	}},
	{"client", firstInCategory(models.BucketClient)},
	{"any", func(templates []models.EmailTemplate, _ string) (models.EmailTemplate, bool) {
		if len(templates) == 0 {
			return models.EmailTemplate{}, false
		}
		return templates[0], true
	}},
}

// TemplateResolver picks the document and email templates for a partner.
type TemplateResolver struct {
	catalog   TemplateCatalog
	templates EmailTemplateStore
}

// NewTemplateResolver creates a resolver. An empty catalog falls back to the defaults.
func NewTemplateResolver(catalog TemplateCatalog, templates EmailTemplateStore) (*TemplateResolver, error) {
	if templates == nil {
		return nil, fmt.Errorf("template resolver requires an email template store")
	}
	if len(catalog.Documents) == 0 {
		catalog = DefaultTemplateCatalog()
	}
	return &TemplateResolver{catalog: catalog, templates: templates}, nil
}

// DocumentTemplate returns the document template file name for a partner.
func (r *TemplateResolver) DocumentTemplate(category string, p models.Partner) string {
	partnerType := category
	if category == models.CategoryAll {
		partnerType = PartnerType(p)
	}
	if name, ok := r.catalog.Documents[partnerType]; ok {
		return name
	}
	return r.catalog.Documents[models.PartnerClientDUC]
}

// EmailTemplate returns the id of the email template to use for a partner.
// ok is false when no active email template exists at all; that is not an error.
func (r *TemplateResolver) EmailTemplate(ctx context.Context, category string, p models.Partner) (string, bool, error) {
	all, err := r.templates.ListActiveTemplates(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to list email templates: %w", err)
	}
	active := make([]models.EmailTemplate, 0, len(all))
	for _, t := range all {
		if t.Active && t.Kind == models.TemplateKindEmail {
			active = append(active, t)
		}
	}

	bucket := EmailBucket(category, p)
	for _, rule := range emailTemplateFallbacks {
		if t, ok := rule.pick(active, bucket); ok {
			if rule.name != "bucket" {
				slog.Debug("Email template resolved through fallback.", "partnerId", p.ID, "bucket", bucket, "fallback", rule.name, "templateId", t.ID)
			}
			return t.ID, true, nil
		}
	}
	return "", false, nil
}
