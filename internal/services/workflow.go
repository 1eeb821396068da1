package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
)

// WorkflowDeps are the collaborators of a Workflow. Archiver and Notifier are optional.
type WorkflowDeps struct {
	Partners      PartnerGateway
	Counter       NumberCounter
	Renderer      DocumentRenderer
	Registrations RegistrationStore
	Requests      ConfirmationRequestStore
	EmailLog      EmailLogStore
	Sender        EmailSender
	Templates     EmailTemplateStore
	Archiver      DocumentArchiver
	Notifier      BatchNotifier

	Catalog     TemplateCatalog
	Policy      SecurityPolicy
	CompanyName string
}

// Workflow drives a confirmation session through its stages.
type Workflow struct {
	initializer *SessionInitializer
	generator   *DocumentGenerator
	matcher     *SignedDocumentMatcher
	committer   *FinalizationCommitter
	auditor     *HashAuditor
}

// NewWorkflow wires the stage components together.
func NewWorkflow(deps WorkflowDeps) (*Workflow, error) {
	resolver, err := NewTemplateResolver(deps.Catalog, deps.Templates)
	if err != nil {
		return nil, err
	}
	initializer, err := NewSessionInitializer(deps.Partners, deps.Counter)
	if err != nil {
		return nil, err
	}
	generator, err := NewDocumentGenerator(deps.Partners, resolver, deps.Renderer)
	if err != nil {
		return nil, err
	}
	preflight, err := NewPreFlightValidator(deps.Partners, resolver, deps.Templates, deps.Policy, WithCompanyName(deps.CompanyName))
	if err != nil {
		return nil, err
	}
	var opts []CommitterOption
	if deps.Archiver != nil {
		opts = append(opts, WithArchiver(deps.Archiver))
	}
	if deps.Notifier != nil {
		opts = append(opts, WithNotifier(deps.Notifier))
	}
	committer, err := NewFinalizationCommitter(preflight, deps.Registrations, deps.Requests, deps.EmailLog, deps.Sender, opts...)
	if err != nil {
		return nil, err
	}
	return &Workflow{
		initializer: initializer,
		generator:   generator,
		matcher:     NewSignedDocumentMatcher(),
		committer:   committer,
		auditor:     NewHashAuditor(),
	}, nil
}

func (w *Workflow) InitializeSession(ctx context.Context, in models.SessionInput) (*models.Session, []models.DocumentRecord, error) {
	return w.initializer.InitializeSession(ctx, in)
}

func (w *Workflow) GenerateDocuments(ctx context.Context, session *models.Session, reserved []models.DocumentRecord) (*GenerateResult, error) {
	return w.generator.GenerateDocuments(ctx, session, reserved)
}

func (w *Workflow) MatchSignedDocuments(ctx context.Context, generated []models.DocumentRecord, folder string) (*MatchResult, error) {
	return w.matcher.MatchSignedDocuments(ctx, generated, folder)
}

func (w *Workflow) Finalize(ctx context.Context, session *models.Session, matched []models.DocumentRecord) (*FinalizeResult, error) {
	return w.committer.Finalize(ctx, session, matched)
}

func (w *Workflow) AuditHashes(original, signed, returned string) AuditReport {
	return w.auditor.AuditHashes(original, signed, returned)
}

// SignedSubfolder is where Run looks for signed files when no folder is given.
// It sits under the session output folder so the unsigned originals written
// there are never candidates.
const SignedSubfolder = "semnate"

// RunResult collects the output of every stage of Run.
type RunResult struct {
	Session   *models.Session `json:"session"`
	Generated *GenerateResult `json:"generated"`
	Matched   *MatchResult    `json:"matched"`
	Finalized *FinalizeResult `json:"finalized"`
}

// Run executes a whole session in one call: initialize, generate, match the
// signed files found in signedFolder, finalize. An empty signedFolder means
// SignedSubfolder under the session's output folder; a missing default folder
// means nothing has been signed yet.
func (w *Workflow) Run(ctx context.Context, in models.SessionInput, signedFolder string) (*RunResult, error) {
	session, reserved, err := w.InitializeSession(ctx, in)
	if err != nil {
		return nil, err
	}
	logCtx := slog.With("sessionId", session.ID)
	run := &RunResult{Session: session}

	if run.Generated, err = w.GenerateDocuments(ctx, session, reserved); err != nil {
		return run, err
	}

	useDefault := strings.TrimSpace(signedFolder) == ""
	if useDefault {
		signedFolder = filepath.Join(session.OutputFolder, SignedSubfolder)
	}
	run.Matched, err = w.MatchSignedDocuments(ctx, run.Generated.Documents, signedFolder)
	if useDefault && errors.Is(err, fs.ErrNotExist) {
		logCtx.Warn("Signed documents folder does not exist yet.", "folder", signedFolder)
		run.Matched, err = &MatchResult{Unmatched: run.Generated.Documents}, nil
	}
	if err != nil {
		return run, fmt.Errorf("failed to match signed documents: %w", err)
	}
	if len(run.Matched.Matched) == 0 {
		logCtx.Warn("No signed documents matched, nothing to finalize.")
		run.Finalized = &FinalizeResult{Issues: []string{}, Outcomes: []PartnerOutcome{}}
		return run, nil
	}

	run.Finalized, err = w.Finalize(ctx, session, run.Matched.Matched)
	return run, err
}
