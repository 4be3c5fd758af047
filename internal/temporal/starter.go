package temporal

import (
	"context"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"

	"uberfix/internal/domain"
)

// WorkflowStarter is the subset of client.Client the notifier uses.
type WorkflowStarter interface {
	SignalWithStartWorkflow(ctx context.Context, workflowID string, signalName string, signalArg interface{},
		options client.StartWorkflowOptions, workflow interface{}, workflowArgs ...interface{}) (client.WorkflowRun, error)
}

// StageNotifier starts or signals the per-request notification workflow after
// every persisted stage change.
type StageNotifier struct {
	Client    WorkflowStarter
	TaskQueue string
	IDPrefix  string
	Channel   domain.NotificationChannel
	Debounce  time.Duration
}

func (n *StageNotifier) StageChanged(ctx context.Context, req domain.MaintenanceRequest, from domain.WorkflowStage) error {
	workflowID := NotificationWorkflowID(n.IDPrefix, req.ID)
	opts := client.StartWorkflowOptions{
		ID:                    workflowID,
		TaskQueue:             n.TaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}
	input := WorkflowInput{
		RequestID: req.ID,
		Stage:     req.WorkflowStage,
		FromStage: from,
		Channel:   n.Channel,
		Debounce:  n.Debounce,
	}
	signal := StageChangedSignal{Stage: req.WorkflowStage, FromStage: from}

	if _, err := n.Client.SignalWithStartWorkflow(ctx, workflowID, StageChangedSignalName, signal, opts, StageNotificationWorkflowName, input); err != nil {
		return fmt.Errorf("signal-with-start %s: %w", workflowID, err)
	}
	return nil
}

func NotificationWorkflowID(prefix, requestID string) string {
	return fmt.Sprintf("%s-%s", prefix, requestID)
}
