package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
)

const partnerColumns = `id, name, cui, onrc, email, representative, address, phone,
	client_duc, client_dl, furnizor_duc, furnizor_dl, active`

// PutPartner inserts or replaces a partner.
func (s *Store) PutPartner(ctx context.Context, p models.Partner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("partner id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO partners (`+partnerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.CUI, p.ONRC, p.Email, p.Representative, p.Address, p.Phone,
		boolToInt(p.ClientDUC), boolToInt(p.ClientDL), boolToInt(p.FurnizorDUC), boolToInt(p.FurnizorDL), boolToInt(p.Active),
	)
	if err != nil {
		return fmt.Errorf("put partner %s: %w", p.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPartner(row rowScanner) (models.Partner, error) {
	var p models.Partner
	err := row.Scan(&p.ID, &p.Name, &p.CUI, &p.ONRC, &p.Email, &p.Representative, &p.Address, &p.Phone,
		&p.ClientDUC, &p.ClientDL, &p.FurnizorDUC, &p.FurnizorDL, &p.Active)
	return p, err
}

func (s *Store) GetPartner(ctx context.Context, id string) (*models.Partner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := scanPartner(s.sqlDB.QueryRowContext(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("partner %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get partner %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) ListActivePartners(ctx context.Context) ([]models.Partner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+partnerColumns+` FROM partners WHERE active = 1 ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list active partners: %w", err)
	}
	defer rows.Close()

	var out []models.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const templateColumns = `id, name, kind, category, active, subject, body`

// PutTemplate inserts or replaces an email template.
func (s *Store) PutTemplate(ctx context.Context, t models.EmailTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO email_templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Kind, t.Category, boolToInt(t.Active), t.Subject, t.Body,
	)
	if err != nil {
		return fmt.Errorf("put email template %s: %w", t.ID, err)
	}
	return nil
}

func scanTemplate(row rowScanner) (models.EmailTemplate, error) {
	var t models.EmailTemplate
	err := row.Scan(&t.ID, &t.Name, &t.Kind, &t.Category, &t.Active, &t.Subject, &t.Body)
	return t, err
}

func (s *Store) ListActiveTemplates(ctx context.Context) ([]models.EmailTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+templateColumns+` FROM email_templates WHERE active = 1 ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list email templates: %w", err)
	}
	defer rows.Close()

	var out []models.EmailTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*models.EmailTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := scanTemplate(s.sqlDB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM email_templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email template %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get email template %s: %w", id, err)
	}
	return &t, nil
}
