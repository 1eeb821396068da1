package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/balanceconfirmflow/internal/app"
	"github.com/Lllllllleong/balanceconfirmflow/internal/config"
)

var (
	apiInstance *api
	once        sync.Once
	initErr     error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("InitializeSession", withAPI((*api).initializeSession))
	functions.HTTP("GenerateDocuments", withAPI((*api).generateDocuments))
	functions.HTTP("MatchSignedDocuments", withAPI((*api).matchSignedDocuments))
	functions.HTTP("FinalizeSession", withAPI((*api).finalizeSession))
	functions.HTTP("AuditHashes", withAPI((*api).auditHashes))
	functions.HTTP("RunSession", withAPI((*api).runSession))
}

// main is required by the Go Functions Framework.
func main() {}

func withAPI(h func(*api, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			var cfg *config.Config
			cfg, initErr = config.Load()
			if initErr != nil {
				return
			}
			var a *app.App
			a, initErr = app.New(context.Background(), cfg)
			if initErr != nil {
				return
			}
			apiInstance = &api{wf: a.Workflow}
		})
		if initErr != nil {
			slog.Error("Critical error during function initialization", "error", initErr)
			http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
			return
		}
		h(apiInstance, w, r)
	}
}
