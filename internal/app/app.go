// Package app assembles the workflow from configuration. Every cmd entry
// point builds its dependencies through New.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/balanceconfirmflow/internal/config"
	"github.com/Lllllllleong/balanceconfirmflow/internal/gcp"
	"github.com/Lllllllleong/balanceconfirmflow/internal/mail"
	"github.com/Lllllllleong/balanceconfirmflow/internal/render"
	"github.com/Lllllllleong/balanceconfirmflow/internal/services"
	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/firestoredb"
	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/memory"
	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/postgres"
	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/sqlite"
)

// stores groups the backend implementations of every port.
type stores struct {
	partners      services.PartnerGateway
	counter       services.NumberCounter
	registrations services.RegistrationStore
	requests      services.ConfirmationRequestStore
	emailLog      services.EmailLogStore
	templates     services.EmailTemplateStore
	sender        services.EmailSender
}

// App holds the assembled components and the clients that must be closed.
type App struct {
	Config        *config.Config
	Workflow      *services.Workflow
	Reminders     *services.ReminderScheduler
	Registrations services.RegistrationStore
	Auditor       *services.HashAuditor
	Storage       *storage.Client

	closers []func() error
}

// Option adjusts what New creates.
type Option func(*options)

type options struct {
	withStorage bool
	renderer    services.DocumentRenderer
	sender      services.EmailSender
}

// WithStorageClient makes New create a Cloud Storage client even when no
// archive bucket is configured.
func WithStorageClient() Option {
	return func(o *options) { o.withStorage = true }
}

// WithRenderer replaces the subprocess renderer.
func WithRenderer(r services.DocumentRenderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithSender replaces the configured email transport.
func WithSender(s services.EmailSender) Option {
	return func(o *options) { o.sender = s }
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{Config: cfg, Auditor: services.NewHashAuditor()}
	ready := false
	defer func() {
		if !ready {
			_ = a.Close()
		}
	}()

	st, err := a.openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if o.sender != nil {
		st.sender = o.sender
	}

	if cfg.NumberingDatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.NumberingDatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		numbering, err := postgres.New(pool)
		if err != nil {
			return nil, err
		}
		if err := numbering.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		st.counter = numbering
		st.registrations = numbering
		slog.Info("Registration numbering uses Postgres.")
	}
	a.Registrations = st.registrations

	renderer := o.renderer
	if renderer == nil {
		renderer, err = render.NewSubprocessRenderer(render.SubprocessConfig{
			Command:      cfg.RendererCommand,
			Script:       cfg.RendererScript,
			TemplatesDir: cfg.TemplatesDir,
			DBPath:       cfg.RendererDBPath,
			Timeout:      cfg.RendererTimeout,
		})
		if err != nil {
			return nil, err
		}
	}

	catalog, err := config.LoadTemplateCatalog(cfg.TemplateCatalog)
	if err != nil {
		return nil, err
	}

	deps := services.WorkflowDeps{
		Partners:      st.partners,
		Counter:       st.counter,
		Renderer:      renderer,
		Registrations: st.registrations,
		Requests:      st.requests,
		EmailLog:      st.emailLog,
		Sender:        st.sender,
		Templates:     st.templates,
		Catalog:       catalog,
		Policy:        cfg.Policy(),
		CompanyName:   cfg.CompanyName,
	}

	if cfg.ArchiveBucket != "" || o.withStorage {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.Storage = client
		a.closers = append(a.closers, client.Close)
	}
	if cfg.ArchiveBucket != "" {
		archive, err := gcp.NewDocumentArchive(a.Storage, cfg.ArchiveBucket, gcp.WithArchivePrefix(cfg.ArchivePrefix))
		if err != nil {
			return nil, err
		}
		deps.Archiver = archive
	}
	if cfg.WorkflowID != "" {
		client, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create executions client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		notifier, err := gcp.NewWorkflowNotifier(client, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID)
		if err != nil {
			return nil, err
		}
		deps.Notifier = notifier
	}

	a.Workflow, err = services.NewWorkflow(deps)
	if err != nil {
		return nil, err
	}
	a.Reminders, err = services.NewReminderScheduler(st.requests, st.partners, st.emailLog, st.sender, cfg.Reminders())
	if err != nil {
		return nil, err
	}
	ready = true
	slog.Info("Application assembled.", "backend", cfg.StoreBackend, "blockUnsigned", deps.Policy.BlockUnsignedFiles, "archive", cfg.ArchiveBucket != "", "notifier", cfg.WorkflowID != "")
	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		s := memory.NewStore()
		return &stores{
			partners: s, counter: memory.NewCounter(1), registrations: s,
			requests: s, emailLog: s, templates: s, sender: memory.NewMailbox(),
		}, nil

	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		st := &stores{
			partners: s, counter: s, registrations: s,
			requests: s, emailLog: s, templates: s,
		}
		if cfg.ProjectID == "" {
			slog.Warn("No PROJECT_ID configured, emails are kept in memory and not delivered.")
			st.sender = memory.NewMailbox()
			return st, nil
		}
		client, err := a.firestoreClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if st.sender, err = mail.NewOutbox(client, cfg.MailCollection, cfg.MailFrom); err != nil {
			return nil, err
		}
		return st, nil

	case config.BackendFirestore:
		client, err := a.firestoreClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s, err := firestoredb.New(client, firestoredb.DefaultCollections())
		if err != nil {
			return nil, err
		}
		outbox, err := mail.NewOutbox(client, cfg.MailCollection, cfg.MailFrom)
		if err != nil {
			return nil, err
		}
		return &stores{
			partners: s, counter: s, registrations: s,
			requests: s, emailLog: s, templates: s, sender: outbox,
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func (a *App) firestoreClient(ctx context.Context, cfg *config.Config) (*firestore.Client, error) {
	client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.DatabaseID)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Close releases every client in reverse creation order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
