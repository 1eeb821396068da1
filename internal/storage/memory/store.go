// Package memory keeps every store in process memory. It backs tests and
// local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/google/uuid"
)

// Store implements the partner, template, registration, request and email log stores.
type Store struct {
	mu            sync.Mutex
	partners      map[string]models.Partner
	templates     map[string]models.EmailTemplate
	registrations map[int64]models.Registration
	requests      map[string]models.ConfirmationRequest
	requestOrder  []string
	emailLog      []models.EmailLogEntry
}

func NewStore() *Store {
	return &Store{
		partners:      make(map[string]models.Partner),
		templates:     make(map[string]models.EmailTemplate),
		registrations: make(map[int64]models.Registration),
		requests:      make(map[string]models.ConfirmationRequest),
	}
}

// PutPartner adds or replaces a partner.
func (s *Store) PutPartner(p models.Partner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partners[p.ID] = p
}

// PutTemplate adds or replaces an email template.
func (s *Store) PutTemplate(t models.EmailTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
}

func (s *Store) GetPartner(ctx context.Context, id string) (*models.Partner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[id]
	if !ok {
		return nil, fmt.Errorf("partner %s: %w", id, models.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) ListActivePartners(ctx context.Context) ([]models.Partner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Partner
	for _, p := range s.partners {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListActiveTemplates(ctx context.Context) ([]models.EmailTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EmailTemplate
	for _, t := range s.templates {
		if t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*models.EmailTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("email template %s: %w", id, models.ErrNotFound)
	}
	return &t, nil
}

func (s *Store) CreateRegistration(ctx context.Context, reg models.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrations[reg.Number]; ok {
		return fmt.Errorf("registration %d: %w", reg.Number, models.ErrAlreadyExists)
	}
	s.registrations[reg.Number] = reg
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, number int64) (*models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[number]
	if !ok {
		return nil, fmt.Errorf("registration %d: %w", number, models.ErrNotFound)
	}
	return &reg, nil
}

func (s *Store) RecordAudit(ctx context.Context, number int64, audit models.RegistrationAudit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[number]
	if !ok {
		return fmt.Errorf("registration %d: %w", number, models.ErrNotFound)
	}
	reg.ReturnedHash = audit.ReturnedHash
	reg.AuditStatus = audit.Status
	reg.AuditNotes = audit.Notes
	reg.AuditedAt = audit.AuditedAt
	s.registrations[number] = reg
	return nil
}

func (s *Store) CreateRequest(ctx context.Context, req models.ConfirmationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req.ID = uuid.NewString()
	s.requests[req.ID] = req
	s.requestOrder = append(s.requestOrder, req.ID)
	return req.ID, nil
}

func (s *Store) UpdateRequest(ctx context.Context, id string, patch models.RequestPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("confirmation request %s: %w", id, models.ErrNotFound)
	}
	if patch.State != nil {
		req.State = *patch.State
	}
	if patch.SentAt != nil {
		req.SentAt = *patch.SentAt
	}
	if patch.Notes != nil {
		req.Notes = *patch.Notes
	}
	if patch.ReminderCount != nil {
		req.ReminderCount = *patch.ReminderCount
	}
	if patch.LastReminderAt != nil {
		req.LastReminderAt = *patch.LastReminderAt
	}
	s.requests[id] = req
	return nil
}

func (s *Store) ListAwaitingResponse(ctx context.Context, sentBefore time.Time) ([]models.ConfirmationRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConfirmationRequest
	for _, id := range s.requestOrder {
		req := s.requests[id]
		if req.State == models.RequestSent && req.RespondedAt.IsZero() && req.SentAt.Before(sentBefore) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *Store) AppendEmailLog(ctx context.Context, entry models.EmailLogEntry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uuid.NewString()
	s.emailLog = append(s.emailLog, entry)
	return entry.ID, nil
}

// Registrations returns every registration ordered by number.
func (s *Store) Registrations() []models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Registration, 0, len(s.registrations))
	for _, r := range s.registrations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Requests returns every confirmation request in creation order.
func (s *Store) Requests() []models.ConfirmationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConfirmationRequest, 0, len(s.requestOrder))
	for _, id := range s.requestOrder {
		out = append(out, s.requests[id])
	}
	return out
}

// EmailLog returns the email log in append order.
func (s *Store) EmailLog() []models.EmailLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EmailLogEntry(nil), s.emailLog...)
}
