package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"golang.org/x/sync/errgroup"
)

// ErrSchedulerRunning is returned by Start when the scheduler already runs.
var ErrSchedulerRunning = errors.New("reminder scheduler already running")

// ReminderSettings controls when reminders go out.
type ReminderSettings struct {
	CheckInterval        time.Duration
	DaysBeforeReminder   int
	ReminderIntervalDays int
	MaxReminders         int
	Concurrency          int
	Subject              string
}

// DefaultReminderSettings: first reminder a week after sending, then every
// three days, three reminders at most.
func DefaultReminderSettings() ReminderSettings {
	return ReminderSettings{
		CheckInterval:        time.Hour,
		DaysBeforeReminder:   7,
		ReminderIntervalDays: 3,
		MaxReminders:         3,
		Concurrency:          4,
		Subject:              "Reamintire: " + documentTitle,
	}
}

// ReminderSweepResult summarises one pass over pending requests.
type ReminderSweepResult struct {
	Checked int
	Sent    int
	Failed  int
}

// ReminderScheduler periodically reminds partners who have not answered.
// Each instance is independent; Start hands back the handle that stops it.
type ReminderScheduler struct {
	requests ConfirmationRequestStore
	partners PartnerGateway
	emailLog EmailLogStore
	sender   EmailSender
	settings ReminderSettings
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

func NewReminderScheduler(requests ConfirmationRequestStore, partners PartnerGateway, emailLog EmailLogStore, sender EmailSender, settings ReminderSettings) (*ReminderScheduler, error) {
	if requests == nil || partners == nil || emailLog == nil || sender == nil {
		return nil, fmt.Errorf("reminder scheduler requires request, partner, email log and sender dependencies")
	}
	if settings.CheckInterval <= 0 {
		return nil, fmt.Errorf("reminder check interval must be positive")
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	return &ReminderScheduler{
		requests: requests,
		partners: partners,
		emailLog: emailLog,
		sender:   sender,
		settings: settings,
		now:      time.Now,
	}, nil
}

// ReminderHandle controls a started scheduler.
type ReminderHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the scheduler and waits for the running sweep to finish.
func (h *ReminderHandle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the scheduler loop has exited.
func (h *ReminderHandle) Done() <-chan struct{} { return h.done }

// Start runs a sweep immediately and then every CheckInterval until the
// handle is stopped or ctx is cancelled.
func (s *ReminderScheduler) Start(ctx context.Context) (*ReminderHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrSchedulerRunning
	}
	s.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	h := &ReminderHandle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		s.loop(loopCtx)
	}()
	slog.Info("Reminder scheduler started.", "checkInterval", s.settings.CheckInterval.String(), "maxReminders", s.settings.MaxReminders)
	return h, nil
}

func (s *ReminderScheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.settings.CheckInterval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Reminder sweep failed.", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("Reminder scheduler stopped.")
			return
		case <-ticker.C:
		}
	}
}

func (s *ReminderScheduler) due(req models.ConfirmationRequest, now time.Time) bool {
	if req.ReminderCount >= s.settings.MaxReminders {
		return false
	}
	if req.LastReminderAt.IsZero() {
		return true
	}
	return !now.Before(req.LastReminderAt.AddDate(0, 0, s.settings.ReminderIntervalDays))
}

// RunOnce sends every reminder that is due now.
func (s *ReminderScheduler) RunOnce(ctx context.Context) (ReminderSweepResult, error) {
	ctx, span := tracer.Start(ctx, "ReminderSweep")
	defer span.End()

	now := s.now()
	cutoff := now.AddDate(0, 0, -s.settings.DaysBeforeReminder)
	pending, err := s.requests.ListAwaitingResponse(ctx, cutoff)
	if err != nil {
		recordError(span, err)
		return ReminderSweepResult{}, fmt.Errorf("failed to list requests awaiting response: %w", err)
	}

	var (
		mu     sync.Mutex
		result = ReminderSweepResult{Checked: len(pending)}
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.settings.Concurrency)
	for _, req := range pending {
		if !s.due(req, now) {
			continue
		}
		eg.Go(func() error {
			err := s.remind(gctx, req, now)
			if err != nil {
				s.recordFailedAttempt(gctx, req, now)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				slog.Warn("Reminder not sent.", "requestId", req.ID, "partnerId", req.PartnerID, "error", err)
				return nil
			}
			result.Sent++
			return nil
		})
	}
	_ = eg.Wait()

	if result.Sent > 0 || result.Failed > 0 {
		slog.Info("Reminder sweep finished.", "checked", result.Checked, "sent", result.Sent, "failed", result.Failed)
	}
	return result, ctx.Err()
}

// recordFailedAttempt stamps LastReminderAt without counting a reminder, so a
// failing request waits ReminderIntervalDays before the next try.
func (s *ReminderScheduler) recordFailedAttempt(ctx context.Context, req models.ConfirmationRequest, now time.Time) {
	if err := s.requests.UpdateRequest(ctx, req.ID, models.RequestPatch{LastReminderAt: &now}); err != nil {
		slog.Error("Failed to record reminder attempt.", "requestId", req.ID, "error", err)
	}
}

func (s *ReminderScheduler) remind(ctx context.Context, req models.ConfirmationRequest, now time.Time) error {
	partner, err := s.partners.GetPartner(ctx, req.PartnerID)
	if err != nil {
		return fmt.Errorf("failed to load partner: %w", err)
	}
	if partner.Email == "" {
		return fmt.Errorf("partner has no email address")
	}

	number := req.ReminderCount + 1
	html := fmt.Sprintf("<p>Stimate partener,</p><p>Vă reamintim că așteptăm confirmarea soldului pentru documentul %s (Nr. %d).</p><p>Reamintirea %d din %d.</p>",
		req.DocumentName, req.RegistrationNumber, number, s.settings.MaxReminders)
	msg := models.OutgoingEmail{
		To:      partner.Email,
		ToName:  partner.Name,
		Subject: s.settings.Subject,
		HTML:    html,
		Text:    HTMLToText(html),
		Metadata: map[string]string{
			"requestId":          req.ID,
			"partnerId":          partner.ID,
			"registrationNumber": strconv.FormatInt(req.RegistrationNumber, 10),
			"reminder":           strconv.Itoa(number),
		},
	}
	if _, err := os.Stat(req.DocumentPath); err == nil {
		msg.Attachments = []models.Attachment{{Filename: req.DocumentName, Path: req.DocumentPath}}
	}

	messageID, sendErr := s.sender.Send(ctx, msg)
	entry := models.EmailLogEntry{
		Kind:           models.EmailReminder,
		SessionID:      req.SessionID,
		RequestID:      req.ID,
		PartnerID:      partner.ID,
		Recipient:      partner.Email,
		RecipientName:  partner.Name,
		Subject:        msg.Subject,
		MessageID:      messageID,
		Status:         models.SendSuccess,
		Attempts:       1,
		MaxAttempts:    1,
		LastAttemptAt:  now,
		AttachmentHash: req.DocumentHash,
		CreatedAt:      now,
	}
	if sendErr != nil {
		entry.Status = models.SendFailed
		entry.Error = sendErr.Error()
	}
	if _, err := s.emailLog.AppendEmailLog(ctx, entry); err != nil {
		slog.Error("Failed to append reminder log entry.", "requestId", req.ID, "error", err)
	}
	if sendErr != nil {
		return fmt.Errorf("failed to send reminder: %w", sendErr)
	}

	count := number
	if err := s.requests.UpdateRequest(ctx, req.ID, models.RequestPatch{ReminderCount: &count, LastReminderAt: &now}); err != nil {
		return fmt.Errorf("failed to record reminder: %w", err)
	}
	return nil
}
