// Package postgres keeps the registration number counter and the registration
// journal in PostgreSQL, for deployments where the accounting database owns
// document numbering.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dialectPostgres          = "postgres"
	defaultCounterTable      = "number_counters"
	defaultRegistrationTable = "registrations"
	registrationCounter      = "registration"
	uniqueViolation          = "23505"
)

// NewPoolConfig parses dsn and applies the pool limits used by the service.
func NewPoolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second
	return cfg, nil
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := NewPoolConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Numbering implements the number counter and the registration store.
type Numbering struct {
	pool              *pgxpool.Pool
	counterTable      string
	registrationTable string
}

// Option configures Numbering.
type Option func(*Numbering) error

// WithTableNames overrides the counter and registration table names.
func WithTableNames(counterTable, registrationTable string) Option {
	return func(n *Numbering) error {
		if counterTable == "" || registrationTable == "" {
			return errors.New("table names must not be empty")
		}
		n.counterTable = counterTable
		n.registrationTable = registrationTable
		return nil
	}
}

func New(pool *pgxpool.Pool, opts ...Option) (*Numbering, error) {
	if pool == nil {
		return nil, errors.New("postgres numbering requires a pool")
	}
	n := &Numbering{pool: pool, counterTable: defaultCounterTable, registrationTable: defaultRegistrationTable}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// EnsureSchema creates the tables if they are missing.
func (n *Numbering) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    name TEXT PRIMARY KEY,
    next_value BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS %[2]s (
    number BIGINT PRIMARY KEY,
    document_name TEXT NOT NULL,
    original_hash TEXT NOT NULL,
    signed_hash TEXT NOT NULL DEFAULT '',
    size BIGINT NOT NULL DEFAULT 0,
    file_path TEXT NOT NULL,
    partner_id TEXT NOT NULL,
    partner_name TEXT NOT NULL,
    template_name TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    user_name TEXT NOT NULL DEFAULT '',
    user_email TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    registered_at TIMESTAMPTZ NOT NULL,
    returned_hash TEXT NOT NULL DEFAULT '',
    audit_status TEXT NOT NULL DEFAULT '',
    audit_notes TEXT NOT NULL DEFAULT '',
    audited_at TIMESTAMPTZ
);`, pgx.Identifier{n.counterTable}.Sanitize(), pgx.Identifier{n.registrationTable}.Sanitize())
	if _, err := n.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure numbering schema: %w", err)
	}
	return nil
}

func (n *Numbering) buildSeedCounter() (string, []any, error) {
	builder := goqu.Dialect(dialectPostgres)
	seed := builder.From(n.registrationTable).
		Select(goqu.L("?::text", registrationCounter), goqu.L("COALESCE(MAX(number), 0) + 1"))
	return builder.Insert(n.counterTable).
		Cols("name", "next_value").
		FromQuery(seed).
		OnConflict(goqu.DoNothing()).
		Prepared(true).
		ToSQL()
}

func (n *Numbering) buildAdvanceCounter(count int) (string, []any, error) {
	return goqu.Dialect(dialectPostgres).
		Update(n.counterTable).
		Set(goqu.Record{"next_value": goqu.L("next_value + ?", count)}).
		Where(goqu.C("name").Eq(registrationCounter)).
		Returning(goqu.L("next_value - ?", count)).
		Prepared(true).
		ToSQL()
}

// Reserve claims count consecutive numbers. The counter row lock serialises
// concurrent reservations.
func (n *Numbering) Reserve(ctx context.Context, count int) (int64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("reserve count must be positive, got %d", count)
	}
	seedSQL, seedArgs, err := n.buildSeedCounter()
	if err != nil {
		return 0, fmt.Errorf("build seed query: %w", err)
	}
	advanceSQL, advanceArgs, err := n.buildAdvanceCounter(count)
	if err != nil {
		return 0, fmt.Errorf("build advance query: %w", err)
	}

	tx, err := n.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, seedSQL, seedArgs...); err != nil {
		return 0, fmt.Errorf("seed counter: %w", err)
	}
	var first int64
	if err := tx.QueryRow(ctx, advanceSQL, advanceArgs...).Scan(&first); err != nil {
		return 0, fmt.Errorf("advance counter: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit reserve: %w", err)
	}
	return first, nil
}

// CreateRegistration inserts a registration. A duplicate number yields models.ErrAlreadyExists.
func (n *Numbering) CreateRegistration(ctx context.Context, reg models.Registration) error {
	query, args, err := goqu.Dialect(dialectPostgres).
		Insert(n.registrationTable).
		Rows(goqu.Record{
			"number":        reg.Number,
			"document_name": reg.DocumentName,
			"original_hash": reg.OriginalHash,
			"signed_hash":   reg.SignedHash,
			"size":          reg.Size,
			"file_path":     reg.FilePath,
			"partner_id":    reg.PartnerID,
			"partner_name":  reg.PartnerName,
			"template_name": reg.TemplateName,
			"session_id":    reg.SessionID,
			"user_id":       reg.UserID,
			"user_name":     reg.UserName,
			"user_email":    reg.UserEmail,
			"notes":         reg.Notes,
			"registered_at": reg.RegisteredAt.UTC(),
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build registration insert: %w", err)
	}
	if _, err := n.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("registration %d: %w", reg.Number, models.ErrAlreadyExists)
		}
		return fmt.Errorf("create registration %d: %w", reg.Number, err)
	}
	return nil
}

func (n *Numbering) GetRegistration(ctx context.Context, number int64) (*models.Registration, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(n.registrationTable).
		Select("number", "document_name", "original_hash", "signed_hash", "size", "file_path",
			"partner_id", "partner_name", "template_name", "session_id", "user_id", "user_name",
			"user_email", "notes", "registered_at", "returned_hash", "audit_status", "audit_notes", "audited_at").
		Where(goqu.C("number").Eq(number)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build registration select: %w", err)
	}

	var (
		reg       models.Registration
		auditedAt *time.Time
	)
	err = n.pool.QueryRow(ctx, query, args...).Scan(
		&reg.Number, &reg.DocumentName, &reg.OriginalHash, &reg.SignedHash, &reg.Size, &reg.FilePath,
		&reg.PartnerID, &reg.PartnerName, &reg.TemplateName, &reg.SessionID, &reg.UserID, &reg.UserName,
		&reg.UserEmail, &reg.Notes, &reg.RegisteredAt, &reg.ReturnedHash, &reg.AuditStatus, &reg.AuditNotes, &auditedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("registration %d: %w", number, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get registration %d: %w", number, err)
	}
	if auditedAt != nil {
		reg.AuditedAt = *auditedAt
	}
	return &reg, nil
}

func (n *Numbering) RecordAudit(ctx context.Context, number int64, audit models.RegistrationAudit) error {
	query, args, err := goqu.Dialect(dialectPostgres).
		Update(n.registrationTable).
		Set(goqu.Record{
			"returned_hash": audit.ReturnedHash,
			"audit_status":  audit.Status,
			"audit_notes":   audit.Notes,
			"audited_at":    audit.AuditedAt.UTC(),
		}).
		Where(goqu.C("number").Eq(number)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build audit update: %w", err)
	}
	tag, err := n.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("record audit for %d: %w", number, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registration %d: %w", number, models.ErrNotFound)
	}
	return nil
}
