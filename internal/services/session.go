package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const balanceDateLayout = "2006-01-02"

// SessionInitializer validates a session request and reserves registration numbers.
type SessionInitializer struct {
	partners PartnerGateway
	counter  NumberCounter
	now      func() time.Time
}

func NewSessionInitializer(partners PartnerGateway, counter NumberCounter) (*SessionInitializer, error) {
	if partners == nil || counter == nil {
		return nil, fmt.Errorf("session initializer requires a partner gateway and a number counter")
	}
	return &SessionInitializer{partners: partners, counter: counter, now: time.Now}, nil
}

// InitializeSession validates the input, keeps the active partners in the
// caller's order and reserves one number per partner. Nothing is persisted
// apart from the counter advance.
func (s *SessionInitializer) InitializeSession(ctx context.Context, in models.SessionInput) (*models.Session, []models.DocumentRecord, error) {
	ctx, span := tracer.Start(ctx, "InitializeSession")
	defer span.End()

	balanceDate, err := validateSessionInput(in)
	if err != nil {
		return nil, nil, err
	}

	session := &models.Session{
		ID:           uuid.NewString(),
		User:         in.User,
		Category:     strings.TrimSpace(in.Category),
		BalanceDate:  balanceDate,
		EmailSubject: in.EmailSubject,
		OutputFolder: in.OutputFolder,
		Notes:        in.Notes,
		CreatedAt:    s.now(),
	}
	logCtx := slog.With("sessionId", session.ID, "userId", in.User.ID)
	logCtx.Info("Initializing session.", "requestedPartners", len(in.PartnerIDs), "category", session.Category)

	seen := make(map[string]bool, len(in.PartnerIDs))
	var active []models.Partner
	for _, id := range in.PartnerIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		partner, err := s.partners.GetPartner(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			logCtx.Warn("Partner not found, dropping from session.", "partnerId", id)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load partner %s: %w", id, err)
		}
		if !partner.Active {
			logCtx.Warn("Partner is inactive, dropping from session.", "partnerId", id)
			continue
		}
		active = append(active, *partner)
	}
	if len(active) == 0 {
		return nil, nil, ErrNoActivePartners
	}

	first, err := s.counter.Reserve(ctx, len(active))
	if err != nil {
		recordError(span, err)
		return nil, nil, fmt.Errorf("failed to reserve registration numbers: %w", err)
	}

	records := make([]models.DocumentRecord, 0, len(active))
	for i, p := range active {
		number := first + int64(i)
		name := DocumentName(number, balanceDate, p.Name)
		records = append(records, models.DocumentRecord{
			RegistrationNumber: number,
			PartnerID:          p.ID,
			PartnerName:        p.Name,
			PartnerType:        PartnerType(p),
			DocumentName:       name,
			GeneratedPath:      filepath.Join(in.OutputFolder, name),
			Status:             models.StatusReserved,
		})
		session.PartnerIDs = append(session.PartnerIDs, p.ID)
	}

	span.SetAttributes(attribute.String("session.id", session.ID), attribute.Int("session.partners", len(records)))
	logCtx.Info("Session initialized.", "activePartners", len(records), "firstNumber", first, "lastNumber", first+int64(len(records))-1)
	return session, records, nil
}

func validateSessionInput(in models.SessionInput) (time.Time, error) {
	if len(in.PartnerIDs) == 0 {
		return time.Time{}, &ValidationError{Field: "partnerIds", Message: "at least one partner is required"}
	}
	for _, id := range in.PartnerIDs {
		if strings.TrimSpace(id) == "" {
			return time.Time{}, &ValidationError{Field: "partnerIds", Message: "partner ids must not be empty"}
		}
	}
	required := []struct{ field, value string }{
		{"category", in.Category},
		{"balanceDate", in.BalanceDate},
		{"emailSubject", in.EmailSubject},
		{"outputFolder", in.OutputFolder},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return time.Time{}, &ValidationError{Field: r.field, Message: "is required"}
		}
	}
	balanceDate, err := time.Parse(balanceDateLayout, strings.TrimSpace(in.BalanceDate))
	if err != nil {
		return time.Time{}, &ValidationError{Field: "balanceDate", Message: "must be a date in YYYY-MM-DD format"}
	}
	return balanceDate, nil
}
