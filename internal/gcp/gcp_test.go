package gcp

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/Lllllllleong/balanceconfirmflow/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestDocumentArchive_ObjectName(t *testing.T) {
	a := &DocumentArchive{prefix: "registrations"}
	name := a.ObjectName(models.Registration{Number: 42, DocumentName: "doc.pdf"})
	assert.Equal(t, "registrations/0000000042/doc.pdf", name)
}

func TestNewDocumentArchive_requires_bucket(t *testing.T) {
	_, err := NewDocumentArchive(nil, "bucket")
	assert.Error(t, err)
}

func TestIsPreconditionFailed(t *testing.T) {
	assert.True(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusPreconditionFailed}))
	assert.False(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusNotFound}))
	assert.False(t, isPreconditionFailed(assert.AnError))
}

func TestBatchArgument_json(t *testing.T) {
	arg := NewBatchArgument("s-1", services.FinalizeResult{Registered: 2, Sent: 1, FailedSend: 1, Issues: []string{"x"}})
	raw, err := json.Marshal(arg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionId":"s-1","registered":2,"sent":1,"skipped":0,"failedSend":1,"securityBlocked":0,"issues":["x"]}`, string(raw))
}

func TestWorkflowNotifier_Parent(t *testing.T) {
	n := &WorkflowNotifier{projectID: "p", location: "europe-west1", workflowID: "batches"}
	assert.Equal(t, "projects/p/locations/europe-west1/workflows/batches", n.Parent())
	_, err := NewWorkflowNotifier(nil, "p", "l", "w")
	assert.Error(t, err)
}
