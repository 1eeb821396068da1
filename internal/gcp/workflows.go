package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/balanceconfirmflow/internal/services"
)

// WorkflowNotifier starts a Cloud Workflows execution for every finalized batch.
type WorkflowNotifier struct {
	client     *executions.Client
	projectID  string
	location   string
	workflowID string
}

func NewWorkflowNotifier(client *executions.Client, projectID, location, workflowID string) (*WorkflowNotifier, error) {
	if client == nil || projectID == "" || location == "" || workflowID == "" {
		return nil, fmt.Errorf("workflow notifier requires a client, project, location and workflow id")
	}
	return &WorkflowNotifier{client: client, projectID: projectID, location: location, workflowID: workflowID}, nil
}

// BatchArgument is the execution argument sent to the workflow.
type BatchArgument struct {
	SessionID       string   `json:"sessionId"`
	Registered      int      `json:"registered"`
	Sent            int      `json:"sent"`
	SkippedCount    int      `json:"skipped"`
	FailedSend      int      `json:"failedSend"`
	SecurityBlocked int      `json:"securityBlocked"`
	Issues          []string `json:"issues,omitempty"`
}

func NewBatchArgument(sessionID string, result services.FinalizeResult) BatchArgument {
	return BatchArgument{
		SessionID:       sessionID,
		Registered:      result.Registered,
		Sent:            result.Sent,
		SkippedCount:    result.SkippedPreFlight,
		FailedSend:      result.FailedSend,
		SecurityBlocked: result.SecurityBlocked,
		Issues:          result.Issues,
	}
}

func (n *WorkflowNotifier) Parent() string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", n.projectID, n.location, n.workflowID)
}

func (n *WorkflowNotifier) NotifyBatchFinalized(ctx context.Context, sessionID string, result services.FinalizeResult) error {
	payload, err := json.Marshal(NewBatchArgument(sessionID, result))
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: n.Parent(),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	exec, err := n.client.CreateExecution(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	slog.Info("Batch workflow triggered.", "sessionId", sessionID, "execution", exec.GetName())
	return nil
}
