package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/balanceconfirmflow/internal/app"
	"github.com/Lllllllleong/balanceconfirmflow/internal/config"
	"github.com/Lllllllleong/balanceconfirmflow/internal/gcp"
	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	handlerInstance *auditHandler
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("AuditReturnedDocument", auditReturnedDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func newHandler(ctx context.Context) (*auditHandler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.WithStorageClient())
	if err != nil {
		return nil, err
	}
	h, err := newAuditHandler(a.Registrations, a.Auditor)
	if err != nil {
		return nil, err
	}
	h.download = func(ctx context.Context, bucket, object, dest string) error {
		return gcp.DownloadObject(ctx, a.Storage, bucket, object, dest)
	}
	return h, nil
}

// auditReturnedDocument is the Cloud Function entry point.
func auditReturnedDocument(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		handlerInstance, initErr = newHandler(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return handlerInstance.Process(ctx, gcsEvent)
}
