package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"google.golang.org/api/googleapi"
)

// DocumentArchive copies registered documents into a GCS bucket. Objects are
// written once; an existing object is left alone.
type DocumentArchive struct {
	client     *storage.Client
	bucket     string
	prefix     string
	maxRetries int
	backoff    time.Duration
}

type ArchiveOption func(*DocumentArchive)

// WithArchivePrefix places every object under prefix.
func WithArchivePrefix(prefix string) ArchiveOption {
	return func(a *DocumentArchive) { a.prefix = prefix }
}

// WithUploadRetry sets how many upload attempts are made and the first backoff.
func WithUploadRetry(maxRetries int, backoff time.Duration) ArchiveOption {
	return func(a *DocumentArchive) {
		if maxRetries > 0 {
			a.maxRetries = maxRetries
		}
		if backoff > 0 {
			a.backoff = backoff
		}
	}
}

func NewDocumentArchive(client *storage.Client, bucket string, opts ...ArchiveOption) (*DocumentArchive, error) {
	if client == nil || bucket == "" {
		return nil, fmt.Errorf("document archive requires a storage client and a bucket")
	}
	a := &DocumentArchive{
		client:     client,
		bucket:     bucket,
		prefix:     "registrations",
		maxRetries: 4,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ObjectName is the archive key for a registration.
func (a *DocumentArchive) ObjectName(reg models.Registration) string {
	return path.Join(a.prefix, fmt.Sprintf("%010d", reg.Number), reg.DocumentName)
}

func (a *DocumentArchive) ArchiveDocument(ctx context.Context, reg models.Registration, localPath string) error {
	object := a.ObjectName(reg)
	backoff := a.backoff
	var lastErr error

	for i := 0; i < a.maxRetries; i++ {
		err := a.uploadOnce(ctx, localPath, object, reg)
		if err == nil {
			return nil
		}
		if isPreconditionFailed(err) {
			slog.Info("Archive object already exists, skipping.", "gcsObject", object)
			return nil
		}

		lastErr = err
		slog.Warn(
			"Archive upload failed, will retry.",
			"gcsObject", object,
			"attempt", i+1,
			"maxRetries", a.maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("archive upload for %s failed after all retries: %w", object, lastErr)
}

func (a *DocumentArchive) uploadOnce(ctx context.Context, localPath, object string, reg models.Registration) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer f.Close()

	writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
	w.ContentType = "application/pdf"
	w.Metadata = map[string]string{
		"registrationNumber": fmt.Sprintf("%d", reg.Number),
		"partnerId":          reg.PartnerID,
		"originalHash":       reg.OriginalHash,
		"signedHash":         reg.SignedHash,
	}

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// DownloadObject streams gs://bucket/object into destPath.
func DownloadObject(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}
