package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reminderNow = time.Date(2025, 2, 20, 8, 0, 0, 0, time.UTC)

func reminderSettings() ReminderSettings {
	s := DefaultReminderSettings()
	s.CheckInterval = time.Hour
	return s
}

func newReminderScheduler(t *testing.T, store *memory.Store, mailbox *memory.Mailbox) *ReminderScheduler {
	t.Helper()
	s, err := NewReminderScheduler(store, store, store, mailbox, reminderSettings())
	require.NoError(t, err)
	s.now = func() time.Time { return reminderNow }
	return s
}

func seedRequest(t *testing.T, store *memory.Store, req models.ConfirmationRequest) string {
	t.Helper()
	if req.PartnerID == "" {
		req.PartnerID = "p1"
	}
	if req.State == "" {
		req.State = models.RequestSent
	}
	req.DocumentName = "CERERE DE CONFIRMARE DE SOLD Nr. 5 31.12.2024 - Alfa.pdf"
	req.RegistrationNumber = 5
	id, err := store.CreateRequest(context.Background(), req)
	require.NoError(t, err)
	return id
}

func daysAgo(n int) time.Time { return reminderNow.AddDate(0, 0, -n) }

func TestReminderRunOnce_due_logic(t *testing.T) {
	store := memory.NewStore()
	store.PutPartner(models.Partner{ID: "p1", Name: "Alfa Construct SRL", Email: "office@alfa.ro", Active: true})
	mailbox := memory.NewMailbox()

	first := seedRequest(t, store, models.ConfirmationRequest{SentAt: daysAgo(10)})
	seedRequest(t, store, models.ConfirmationRequest{SentAt: daysAgo(3)})
	exhausted := seedRequest(t, store, models.ConfirmationRequest{SentAt: daysAgo(10), ReminderCount: 3, LastReminderAt: daysAgo(5)})
	recent := seedRequest(t, store, models.ConfirmationRequest{SentAt: daysAgo(20), ReminderCount: 1, LastReminderAt: daysAgo(1)})
	again := seedRequest(t, store, models.ConfirmationRequest{SentAt: daysAgo(20), ReminderCount: 1, LastReminderAt: daysAgo(3)})
	seedRequest(t, store, models.ConfirmationRequest{SentAt: daysAgo(10), State: models.RequestPending})
	seedRequest(t, store, models.ConfirmationRequest{SentAt: daysAgo(10), RespondedAt: daysAgo(2)})

	res, err := newReminderScheduler(t, store, mailbox).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Checked)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 0, res.Failed)

	byID := map[string]models.ConfirmationRequest{}
	for _, r := range store.Requests() {
		byID[r.ID] = r
	}
	assert.Equal(t, 1, byID[first].ReminderCount)
	assert.Equal(t, reminderNow, byID[first].LastReminderAt)
	assert.Equal(t, 2, byID[again].ReminderCount)
	assert.Equal(t, 3, byID[exhausted].ReminderCount)
	assert.Equal(t, 1, byID[recent].ReminderCount)

	sent := mailbox.Sent()
	require.Len(t, sent, 2)
	for _, m := range sent {
		assert.Equal(t, "office@alfa.ro", m.To)
		assert.Contains(t, m.Subject, "Reamintire")
		assert.Contains(t, m.Text, "Nr. 5")
		assert.Empty(t, m.Attachments, "missing files are not attached")
	}

	log := store.EmailLog()
	require.Len(t, log, 2)
	for _, e := range log {
		assert.Equal(t, models.EmailReminder, e.Kind)
		assert.Equal(t, models.SendSuccess, e.Status)
	}
}

func TestReminderRunOnce_attaches_existing_document(t *testing.T) {
	store := memory.NewStore()
	store.PutPartner(models.Partner{ID: "p1", Name: "Alfa Construct SRL", Email: "office@alfa.ro", Active: true})
	mailbox := memory.NewMailbox()
	path := writeFile(t, t.TempDir(), "doc.pdf", "signed")
	seedRequest(t, store, models.ConfirmationRequest{SentAt: daysAgo(8), DocumentPath: path})

	_, err := newReminderScheduler(t, store, mailbox).RunOnce(context.Background())
	require.NoError(t, err)

	sent := mailbox.Sent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, path, sent[0].Attachments[0].Path)
}

func TestReminderRunOnce_failed_attempts_wait_for_next_interval(t *testing.T) {
	store := memory.NewStore()
	store.PutPartner(models.Partner{ID: "p1", Name: "Alfa Construct SRL", Email: "office@alfa.ro", Active: true})
	store.PutPartner(models.Partner{ID: "p2", Name: "Fara Email SRL", Active: true})
	mailbox := memory.NewMailbox()
	mailbox.FailFor("office@alfa.ro", errors.New("smtp down"))

	seedRequest(t, store, models.ConfirmationRequest{SentAt: daysAgo(9)})
	seedRequest(t, store, models.ConfirmationRequest{PartnerID: "p2", SentAt: daysAgo(9)})
	seedRequest(t, store, models.ConfirmationRequest{PartnerID: "ghost", SentAt: daysAgo(9)})

	s := newReminderScheduler(t, store, mailbox)
	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 0, res.Sent)

	for _, r := range store.Requests() {
		assert.Equal(t, 0, r.ReminderCount)
		assert.Equal(t, reminderNow, r.LastReminderAt, "failed attempts wait for the next interval")
	}
	log := store.EmailLog()
	require.Len(t, log, 1, "only attempted sends are logged")
	assert.Equal(t, models.SendFailed, log[0].Status)
	assert.Equal(t, "smtp down", log[0].Error)

	res, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed, "no retry within the interval")
	assert.Len(t, store.EmailLog(), 1)

	reminderLater := reminderNow.AddDate(0, 0, reminderSettings().ReminderIntervalDays)
	s.now = func() time.Time { return reminderLater }
	res, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Failed, "retried once the interval has passed")
}

func TestReminderScheduler_start_stop(t *testing.T) {
	store := memory.NewStore()
	store.PutPartner(models.Partner{ID: "p1", Name: "Alfa Construct SRL", Email: "office@alfa.ro", Active: true})
	mailbox := memory.NewMailbox()
	seedRequest(t, store, models.ConfirmationRequest{SentAt: daysAgo(10)})
	s := newReminderScheduler(t, store, mailbox)

	h, err := s.Start(context.Background())
	require.NoError(t, err)

	_, err = s.Start(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerRunning)

	require.Eventually(t, func() bool { return len(mailbox.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)

	h.Stop()
	h.Stop()
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	h2, err := s.Start(context.Background())
	require.NoError(t, err, "a stopped scheduler can be started again")
	h2.Stop()
}

func TestReminderScheduler_stops_with_context(t *testing.T) {
	s := newReminderScheduler(t, memory.NewStore(), memory.NewMailbox())
	ctx, cancel := context.WithCancel(context.Background())
	h, err := s.Start(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}

func TestNewReminderScheduler_validation(t *testing.T) {
	store := memory.NewStore()
	_, err := NewReminderScheduler(nil, store, store, memory.NewMailbox(), reminderSettings())
	require.Error(t, err)

	settings := reminderSettings()
	settings.CheckInterval = 0
	_, err = NewReminderScheduler(store, store, store, memory.NewMailbox(), settings)
	require.Error(t, err)
}
