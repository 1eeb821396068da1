package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

// GenerateResult holds the documents that rendered and the partners that did not.
type GenerateResult struct {
	Documents []models.DocumentRecord `json:"documents"`
	Failures  []*PartnerError         `json:"failures"`
}

// DocumentGenerator renders one document per reserved record.
type DocumentGenerator struct {
	partners PartnerGateway
	resolver *TemplateResolver
	renderer DocumentRenderer
	now      func() time.Time
}

func NewDocumentGenerator(partners PartnerGateway, resolver *TemplateResolver, renderer DocumentRenderer) (*DocumentGenerator, error) {
	if partners == nil || resolver == nil || renderer == nil {
		return nil, fmt.Errorf("document generator requires a partner gateway, a template resolver and a renderer")
	}
	return &DocumentGenerator{partners: partners, resolver: resolver, renderer: renderer, now: time.Now}, nil
}

// GenerateDocuments renders the reserved records in order. A failing partner is
// recorded and skipped. If nothing could be generated a *GenerationError listing
// every failure is returned.
func (g *DocumentGenerator) GenerateDocuments(ctx context.Context, session *models.Session, reserved []models.DocumentRecord) (*GenerateResult, error) {
	ctx, span := tracer.Start(ctx, "GenerateDocuments")
	defer span.End()

	logCtx := slog.With("sessionId", session.ID)
	logCtx.Info("Starting document generation.", "documents", len(reserved))

	result := &GenerateResult{}
	for _, rec := range reserved {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := g.generateOne(ctx, session, rec)
		if err != nil {
			perr := &PartnerError{PartnerID: rec.PartnerID, PartnerName: rec.PartnerName, Stage: "generate", Err: err}
			logCtx.Error("Document generation failed.", "partnerId", rec.PartnerID, "registrationNumber", rec.RegistrationNumber, "error", err)
			result.Failures = append(result.Failures, perr)
			continue
		}
		logCtx.Info("Document generated.", "partnerId", doc.PartnerID, "registrationNumber", doc.RegistrationNumber, "originalHash", doc.OriginalHash)
		result.Documents = append(result.Documents, *doc)
	}

	span.SetAttributes(attribute.Int("documents.generated", len(result.Documents)), attribute.Int("documents.failed", len(result.Failures)))
	if len(result.Documents) == 0 {
		genErr := &GenerationError{Failures: result.Failures}
		recordError(span, genErr)
		return result, genErr
	}
	logCtx.Info("Document generation finished.", "generated", len(result.Documents), "failed", len(result.Failures))
	return result, nil
}

func (g *DocumentGenerator) generateOne(ctx context.Context, session *models.Session, rec models.DocumentRecord) (*models.DocumentRecord, error) {
	partner, err := g.partners.GetPartner(ctx, rec.PartnerID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("partner %s no longer exists", rec.PartnerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load partner: %w", err)
	}

	templateName := g.resolver.DocumentTemplate(session.Category, *partner)
	rendered, err := g.renderer.Render(ctx, models.RenderRequest{
		SessionID:          session.ID,
		Partner:            *partner,
		RegistrationNumber: rec.RegistrationNumber,
		BalanceDate:        session.BalanceDate,
		IssueDate:          g.now(),
		TemplateName:       templateName,
		OutputDir:          session.OutputFolder,
		User:               session.User,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", templateName, err)
	}
	if rendered == nil || rendered.Path == "" {
		return nil, fmt.Errorf("renderer returned no file for %s", templateName)
	}

	if rendered.Hash == "" {
		if rendered.Hash, err = CalculateFileHash(rendered.Path); err != nil {
			return nil, fmt.Errorf("failed to calculate file hash: %w", err)
		}
	}
	if rendered.Size == 0 {
		info, err := os.Stat(rendered.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat generated file: %w", err)
		}
		rendered.Size = info.Size()
	}

	doc := rec
	doc.PartnerName = partner.Name
	doc.PartnerType = PartnerType(*partner)
	doc.TemplateName = templateName
	doc.DocumentName = filepath.Base(rendered.Path)
	doc.GeneratedPath = rendered.Path
	doc.OriginalHash = rendered.Hash
	doc.Size = rendered.Size
	doc.PageCount = rendered.PageCount
	doc.Status = models.StatusGenerated
	return &doc, nil
}
