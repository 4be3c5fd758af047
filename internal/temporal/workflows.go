package temporal

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"uberfix/internal/domain"
)

const StageNotificationWorkflowName = "StageNotificationWorkflow"

type WorkflowInput struct {
	RequestID string
	Stage     domain.WorkflowStage
	FromStage domain.WorkflowStage
	Channel   domain.NotificationChannel
	// Debounce is how long the workflow waits for further stage changes
	// before messaging the customer. Zero sends immediately.
	Debounce time.Duration
}

type WorkflowResult struct {
	RequestID  string
	Stage      domain.WorkflowStage
	Status     domain.NotificationStatus
	ProviderID string
	// Sent counts messages delivered by this run.
	Sent int
}

// StageNotificationWorkflow tells the customer about the request's current
// stage. Stage changes signalled while it waits restart the wait, and changes
// signalled while it is sending trigger one more round.
func StageNotificationWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	signals := workflow.GetSignalChannel(ctx, StageChangedSignalName)

	result := WorkflowResult{RequestID: input.RequestID, Stage: input.Stage}
	pending := input.Stage
	var notified domain.WorkflowStage

	for {
		pending = debounce(ctx, signals, input.Debounce, pending)

		round, err := notifyOnce(ctx, input)
		if err != nil {
			return result, err
		}
		result.Stage = round.Stage
		result.Status = round.Status
		result.ProviderID = round.ProviderID
		if round.Status == domain.NotificationSent {
			result.Sent++
		}
		notified = round.Stage

		// Pick up changes that arrived while activities were running.
		changed := false
		for {
			var sig StageChangedSignal
			if !signals.ReceiveAsync(&sig) {
				break
			}
			pending = sig.Stage
			changed = changed || sig.Stage != notified
		}
		if !changed {
			logger.Info("stage notification finished", "request_id", input.RequestID, "stage", string(notified), "status", string(result.Status))
			return result, nil
		}
	}
}

// debounce waits until window passes with no new stage signal and returns the
// latest signalled stage.
func debounce(ctx workflow.Context, signals workflow.ReceiveChannel, window time.Duration, stage domain.WorkflowStage) domain.WorkflowStage {
	if window <= 0 {
		return stage
	}
	for {
		timerCtx, cancel := workflow.WithCancel(ctx)
		timer := workflow.NewTimer(timerCtx, window)
		fired := false

		sel := workflow.NewSelector(ctx)
		sel.AddFuture(timer, func(workflow.Future) { fired = true })
		sel.AddReceive(signals, func(c workflow.ReceiveChannel, _ bool) {
			var sig StageChangedSignal
			c.Receive(ctx, &sig)
			stage = sig.Stage
		})
		sel.Select(ctx)
		cancel()
		if fired {
			return stage
		}
	}
}

// notifyOnce loads the request, renders and sends the message for its current
// stage and records the outcome. Delivery failures are recorded, not returned.
func notifyOnce(ctx workflow.Context, input WorkflowInput) (domain.Notification, error) {
	var loaded LoadRequestOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyLoadRequest), (*Activities).LoadRequestActivity, LoadRequestInput{
		RequestID: input.RequestID,
	}).Get(ctx, &loaded); err != nil {
		return domain.Notification{}, err
	}
	req := loaded.Request

	note := domain.Notification{
		RequestID: input.RequestID,
		Stage:     req.WorkflowStage,
		Channel:   input.Channel,
		Recipient: req.CustomerPhone,
		Status:    domain.NotificationSkipped,
	}

	var rendered RenderMessageOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyRenderMessage), (*Activities).RenderMessageActivity, RenderMessageInput{
		Request: req,
	}).Get(ctx, &rendered); err != nil {
		return domain.Notification{}, err
	}

	if !rendered.Skip {
		note.Body = rendered.Body

		var sent SendNotificationOutput
		err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicySendNotification), (*Activities).SendNotificationActivity, SendNotificationInput{
			RequestID: input.RequestID,
			Channel:   input.Channel,
			To:        req.CustomerPhone,
			Body:      rendered.Body,
		}).Get(ctx, &sent)
		switch {
		case err != nil:
			note.Status = domain.NotificationFailed
			note.Error = failureMessage(err)
		case sent.Skipped:
			note.Status = domain.NotificationSkipped
		default:
			note.Status = domain.NotificationSent
			note.ProviderID = sent.ProviderID
		}
	}

	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyRecordNotification), (*Activities).RecordNotificationActivity, RecordNotificationInput{
		Notification: note,
	}).Get(ctx, nil); err != nil {
		return domain.Notification{}, err
	}
	return note, nil
}

func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
