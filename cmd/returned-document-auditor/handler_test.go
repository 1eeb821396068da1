package main

import (
	"context"
	"os"
	"testing"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/Lllllllleong/balanceconfirmflow/internal/services"
	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloHash = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func newTestHandler(t *testing.T, store *memory.Store, content string) *auditHandler {
	t.Helper()
	h, err := newAuditHandler(store, services.NewHashAuditor())
	require.NoError(t, err)
	h.download = func(ctx context.Context, bucket, object, dest string) error {
		return os.WriteFile(dest, []byte(content), 0o644)
	}
	return h
}

func TestProcess_records_audit(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRegistration(ctx, models.Registration{Number: 42, OriginalHash: "orig", SignedHash: helloHash}))

	h := newTestHandler(t, store, "hello")
	err := h.Process(ctx, models.GCSEvent{Bucket: "returned", Name: "inbox/CERERE DE CONFIRMARE DE SOLD Nr. 42 31.12.2024 - ACME.pdf"})
	require.NoError(t, err)

	reg, err := store.GetRegistration(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, helloHash, reg.ReturnedHash)
	assert.Equal(t, string(services.AuditValid), reg.AuditStatus)
	assert.False(t, reg.AuditedAt.IsZero())
}

func TestProcess_original_returned_is_suspect(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRegistration(ctx, models.Registration{Number: 7, OriginalHash: helloHash, SignedHash: "signed"}))

	h := newTestHandler(t, store, "hello")
	require.NoError(t, h.Process(ctx, models.GCSEvent{Bucket: "b", Name: "Nr 7.pdf"}))

	reg, err := store.GetRegistration(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, string(services.AuditSuspect), reg.AuditStatus)
	assert.NotEmpty(t, reg.AuditNotes)
}

func TestProcess_skips(t *testing.T) {
	store := memory.NewStore()
	h := newTestHandler(t, store, "hello")

	assert.NoError(t, h.Process(context.Background(), models.GCSEvent{Bucket: "b", Name: "random.pdf"}))
	assert.NoError(t, h.Process(context.Background(), models.GCSEvent{Bucket: "b", Name: "Nr. 99 unknown.pdf"}))
}
