// Package firestoredb implements every store and the number counter on Cloud Firestore.
package firestoredb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const registrationCounter = "registration"

// Collections names the Firestore collections used by the store.
type Collections struct {
	Partners      string
	Templates     string
	Counters      string
	Registrations string
	Requests      string
	EmailLog      string
}

func DefaultCollections() Collections {
	return Collections{
		Partners:      "partners",
		Templates:     "emailTemplates",
		Counters:      "counters",
		Registrations: "registrations",
		Requests:      "confirmationRequests",
		EmailLog:      "emailLog",
	}
}

// Store is the Firestore-backed implementation of the workflow stores.
type Store struct {
	client *firestore.Client
	cols   Collections
}

func New(client *firestore.Client, cols Collections) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore store requires a client")
	}
	return &Store{client: client, cols: cols}, nil
}

func registrationID(number int64) string {
	return fmt.Sprintf("%010d", number)
}

func isNotFound(err error) bool { return status.Code(err) == codes.NotFound }

func (s *Store) GetPartner(ctx context.Context, id string) (*models.Partner, error) {
	snap, err := s.client.Collection(s.cols.Partners).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("partner %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get partner %s: %w", id, err)
	}
	var p models.Partner
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to decode partner %s: %w", id, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func (s *Store) ListActivePartners(ctx context.Context) ([]models.Partner, error) {
	it := s.client.Collection(s.cols.Partners).Where("active", "==", true).Documents(ctx)
	defer it.Stop()

	var out []models.Partner
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list partners: %w", err)
		}
		var p models.Partner
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("failed to decode partner %s: %w", snap.Ref.ID, err)
		}
		p.ID = snap.Ref.ID
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PutPartner creates or replaces a partner document.
func (s *Store) PutPartner(ctx context.Context, p models.Partner) error {
	if _, err := s.client.Collection(s.cols.Partners).Doc(p.ID).Set(ctx, p); err != nil {
		return fmt.Errorf("failed to write partner %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) ListActiveTemplates(ctx context.Context) ([]models.EmailTemplate, error) {
	docs, err := s.client.Collection(s.cols.Templates).Where("active", "==", true).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list email templates: %w", err)
	}
	out := make([]models.EmailTemplate, 0, len(docs))
	for _, snap := range docs {
		var t models.EmailTemplate
		if err := snap.DataTo(&t); err != nil {
			return nil, fmt.Errorf("failed to decode email template %s: %w", snap.Ref.ID, err)
		}
		t.ID = snap.Ref.ID
		out = append(out, t)
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
	snap, err := s.client.Collection(s.cols.Templates).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("email template %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email template %s: %w", id, err)
	}
	var t models.EmailTemplate
	if err := snap.DataTo(&t); err != nil {
		return nil, fmt.Errorf("failed to decode email template %s: %w", id, err)
	}
	t.ID = snap.Ref.ID
	return &t, nil
}

// PutTemplate creates or replaces an email template document.
func (s *Store) PutTemplate(ctx context.Context, t models.EmailTemplate) error {
	if _, err := s.client.Collection(s.cols.Templates).Doc(t.ID).Set(ctx, t); err != nil {
		return fmt.Errorf("failed to write email template %s: %w", t.ID, err)
	}
	return nil
}

// Reserve claims count consecutive numbers inside a transaction. A missing
// counter starts after the highest registered number.
func (s *Store) Reserve(ctx context.Context, count int) (int64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("reserve count must be positive, got %d", count)
	}
	ref := s.client.Collection(s.cols.Counters).Doc(registrationCounter)
	var first int64
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		next := int64(1)
		if snap != nil && snap.Exists() {
			v, err := snap.DataAt("next")
			if err != nil {
				return err
			}
			n, ok := v.(int64)
			if !ok {
				return fmt.Errorf("counter value has unexpected type %T", v)
			}
			next = n
		} else {
			latest, err := tx.Documents(s.client.Collection(s.cols.Registrations).OrderBy("number", firestore.Desc).Limit(1)).GetAll()
			if err != nil {
				return err
			}
			if len(latest) == 1 {
				if v, err := latest[0].DataAt("number"); err == nil {
					if n, ok := v.(int64); ok {
						next = n + 1
					}
				}
			}
		}
		first = next
		return tx.Set(ref, map[string]any{"next": next + int64(count), "updatedAt": time.Now()})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reserve registration numbers: %w", err)
	}
	return first, nil
}

// CreateRegistration stores a registration under its number. Firestore's
// Create fails on an existing document, which rejects duplicates.
func (s *Store) CreateRegistration(ctx context.Context, reg models.Registration) error {
	_, err := s.client.Collection(s.cols.Registrations).Doc(registrationID(reg.Number)).Create(ctx, reg)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("registration %d: %w", reg.Number, models.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create registration %d: %w", reg.Number, err)
	}
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, number int64) (*models.Registration, error) {
	snap, err := s.client.Collection(s.cols.Registrations).Doc(registrationID(number)).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("registration %d: %w", number, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration %d: %w", number, err)
	}
	var reg models.Registration
	if err := snap.DataTo(&reg); err != nil {
		return nil, fmt.Errorf("failed to decode registration %d: %w", number, err)
	}
	return &reg, nil
}

func (s *Store) RecordAudit(ctx context.Context, number int64, audit models.RegistrationAudit) error {
	updates := []firestore.Update{
		{Path: "returnedHash", Value: audit.ReturnedHash},
		{Path: "auditStatus", Value: audit.Status},
		{Path: "auditNotes", Value: audit.Notes},
		{Path: "auditedAt", Value: audit.AuditedAt},
	}
	_, err := s.client.Collection(s.cols.Registrations).Doc(registrationID(number)).Update(ctx, updates)
	if isNotFound(err) {
		return fmt.Errorf("registration %d: %w", number, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to record audit for %d: %w", number, err)
	}
	return nil
}

func (s *Store) CreateRequest(ctx context.Context, req models.ConfirmationRequest) (string, error) {
	ref, _, err := s.client.Collection(s.cols.Requests).Add(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create confirmation request: %w", err)
	}
	return ref.ID, nil
}

func (s *Store) UpdateRequest(ctx context.Context, id string, patch models.RequestPatch) error {
	var updates []firestore.Update
	if patch.State != nil {
		updates = append(updates, firestore.Update{Path: "state", Value: string(*patch.State)})
	}
	if patch.SentAt != nil {
		updates = append(updates, firestore.Update{Path: "sentAt", Value: *patch.SentAt})
	}
	if patch.Notes != nil {
		updates = append(updates, firestore.Update{Path: "notes", Value: *patch.Notes})
	}
	if patch.ReminderCount != nil {
		updates = append(updates, firestore.Update{Path: "reminderCount", Value: *patch.ReminderCount})
	}
	if patch.LastReminderAt != nil {
		updates = append(updates, firestore.Update{Path: "lastReminderAt", Value: *patch.LastReminderAt})
	}
	if len(updates) == 0 {
		return nil
	}
	_, err := s.client.Collection(s.cols.Requests).Doc(id).Update(ctx, updates)
	if isNotFound(err) {
		return fmt.Errorf("confirmation request %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update confirmation request %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListAwaitingResponse(ctx context.Context, sentBefore time.Time) ([]models.ConfirmationRequest, error) {
	it := s.client.Collection(s.cols.Requests).
		Where("state", "==", string(models.RequestSent)).
		Where("sentAt", "<", sentBefore).
		Documents(ctx)
	defer it.Stop()

	var out []models.ConfirmationRequest
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list requests awaiting response: %w", err)
		}
		var req models.ConfirmationRequest
		if err := snap.DataTo(&req); err != nil {
			return nil, fmt.Errorf("failed to decode confirmation request %s: %w", snap.Ref.ID, err)
		}
		if !req.RespondedAt.IsZero() {
			continue
		}
		req.ID = snap.Ref.ID
		out = append(out, req)
	}
	return out, nil
}

func (s *Store) AppendEmailLog(ctx context.Context, entry models.EmailLogEntry) (string, error) {
	ref, _, err := s.client.Collection(s.cols.EmailLog).Add(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("failed to append email log entry: %w", err)
	}
	return ref.ID, nil
}
