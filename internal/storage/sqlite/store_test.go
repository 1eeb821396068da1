package sqlite

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "confirmations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func Test_Open_requires_path(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func Test_Reserve_hands_out_consecutive_ranges(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	first, err := store.Reserve(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := store.Reserve(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), second)

	_, err = store.Reserve(ctx, 0)
	assert.Error(t, err)
}

func Test_Reserve_starts_after_highest_registration(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateRegistration(ctx, models.Registration{
		Number: 41, DocumentName: "doc.pdf", OriginalHash: "h", FilePath: "/tmp/doc.pdf",
		PartnerID: "p1", PartnerName: "ACME", SessionID: "s1", RegisteredAt: time.Now(),
	}))

	first, err := store.Reserve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(42), first)
}

func Test_Reserve_concurrent_ranges_do_not_overlap(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	const workers, perWorker = 8, 3
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		starts []int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := store.Reserve(ctx, perWorker)
			assert.NoError(t, err)
			mu.Lock()
			starts = append(starts, first)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, starts, workers)
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	for i, s := range starts {
		assert.Equal(t, int64(1+i*perWorker), s)
	}
}

func Test_CreateRegistration_rejects_duplicate_number(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	reg := models.Registration{
		Number: 7, DocumentName: "doc.pdf", OriginalHash: "aa", SignedHash: "bb", Size: 10,
		FilePath: "/tmp/doc.pdf", PartnerID: "p1", PartnerName: "ACME", SessionID: "s1",
		RegisteredAt: time.Date(2024, 12, 31, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, store.CreateRegistration(ctx, reg))
	err := store.CreateRegistration(ctx, reg)
	assert.ErrorIs(t, err, models.ErrAlreadyExists)

	got, err := store.GetRegistration(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "aa", got.OriginalHash)
	assert.Equal(t, "bb", got.SignedHash)
	assert.True(t, reg.RegisteredAt.Equal(got.RegisteredAt))
}

func Test_RecordAudit(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	err := store.RecordAudit(ctx, 99, models.RegistrationAudit{Status: "VALID"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, store.CreateRegistration(ctx, models.Registration{
		Number: 3, DocumentName: "d", OriginalHash: "o", FilePath: "f", PartnerID: "p", PartnerName: "n", SessionID: "s", RegisteredAt: time.Now(),
	}))
	auditedAt := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordAudit(ctx, 3, models.RegistrationAudit{ReturnedHash: "r", Status: "SUSPECT", Notes: "check", AuditedAt: auditedAt}))

	got, err := store.GetRegistration(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "r", got.ReturnedHash)
	assert.Equal(t, "SUSPECT", got.AuditStatus)
	assert.True(t, auditedAt.Equal(got.AuditedAt))
}

func Test_Partners_and_templates(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutPartner(ctx, models.Partner{ID: "p1", Name: "Beta", Email: "b@x.ro", FurnizorDL: true, Active: true}))
	require.NoError(t, store.PutPartner(ctx, models.Partner{ID: "p2", Name: "Alfa", Active: true}))
	require.NoError(t, store.PutPartner(ctx, models.Partner{ID: "p3", Name: "Gama", Active: false}))

	got, err := store.GetPartner(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.FurnizorDL)
	assert.False(t, got.ClientDUC)

	_, err = store.GetPartner(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	active, err := store.ListActivePartners(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Alfa", active[0].Name)

	require.NoError(t, store.PutTemplate(ctx, models.EmailTemplate{ID: "t1", Name: "Client", Kind: models.TemplateKindEmail, Category: "client", Active: true, Body: "<p>x</p>"}))
	require.NoError(t, store.PutTemplate(ctx, models.EmailTemplate{ID: "t2", Name: "Old", Kind: models.TemplateKindEmail, Category: "client", Active: false, Body: "<p>y</p>"}))
	templates, err := store.ListActiveTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "t1", templates[0].ID)

	_, err = store.GetTemplate(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func Test_Requests_lifecycle_and_awaiting_response(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	id, err := store.CreateRequest(ctx, models.ConfirmationRequest{
		PartnerID: "p1", PartnerName: "ACME", SessionID: "s1", RegistrationNumber: 5,
		DocumentName: "doc.pdf", DocumentPath: "/tmp/doc.pdf", DocumentHash: "h",
		State: models.RequestPending, CreatedAt: now.AddDate(0, 0, -10),
	})
	require.NoError(t, err)

	none, err := store.ListAwaitingResponse(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, none)

	sent := models.RequestSent
	sentAt := now.AddDate(0, 0, -8)
	require.NoError(t, store.UpdateRequest(ctx, id, models.RequestPatch{State: &sent, SentAt: &sentAt}))

	awaiting, err := store.ListAwaitingResponse(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, id, awaiting[0].ID)
	assert.True(t, sentAt.Equal(awaiting[0].SentAt))

	count := 1
	require.NoError(t, store.UpdateRequest(ctx, id, models.RequestPatch{ReminderCount: &count, LastReminderAt: &now}))
	awaiting, err = store.ListAwaitingResponse(ctx, now)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, 1, awaiting[0].ReminderCount)

	err = store.UpdateRequest(ctx, "missing", models.RequestPatch{State: &sent})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func Test_AppendEmailLog(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.AppendEmailLog(ctx, models.EmailLogEntry{
		Kind: models.EmailConfirmation, RequestID: "r1", PartnerID: "p1", Recipient: "a@b.ro", Subject: "s",
		Status: models.SendFailed, Error: "smtp down", Attempts: 1, MaxAttempts: 3,
		LastAttemptAt: now, NextAttemptAt: now.Add(15 * time.Minute), CreatedAt: now,
		SignatureStatus: models.SignatureValid, AttachmentHash: "signed", OriginalHash: "orig",
	})
	require.NoError(t, err)

	entries, err := store.EmailLogForRequest(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SendFailed, entries[0].Status)
	assert.Equal(t, "signed", entries[0].AttachmentHash)
	assert.Equal(t, "orig", entries[0].OriginalHash)
	assert.True(t, now.Add(15*time.Minute).Equal(entries[0].NextAttemptAt))
}

func Test_context_cancelled(t *testing.T) {
	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Reserve(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = store.GetPartner(ctx, "p1")
	assert.ErrorIs(t, err, context.Canceled)
}
