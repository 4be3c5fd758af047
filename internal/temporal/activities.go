package temporal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"uberfix/internal/domain"
	"uberfix/internal/notify"
)

const (
	errTypeRequestNotFound = "RequestNotFound"
	errTypePermanentSend   = "PermanentSendError"
)

type ActivityStore interface {
	GetRequest(ctx context.Context, requestID string) (domain.MaintenanceRequest, error)
	InsertNotification(ctx context.Context, n domain.Notification) error
}

type NotificationRecorder interface {
	ObserveNotification(channel domain.NotificationChannel, status domain.NotificationStatus)
}

type Activities struct {
	Store ActivityStore
	// Sender is nil when no gateway is configured; sends are then recorded
	// as skipped.
	Sender  notify.Sender
	Metrics NotificationRecorder
}

type LoadRequestInput struct {
	RequestID string
}

type LoadRequestOutput struct {
	Request domain.MaintenanceRequest
}

type RenderMessageInput struct {
	Request domain.MaintenanceRequest
}

type RenderMessageOutput struct {
	Body string
	Skip bool
}

type SendNotificationInput struct {
	RequestID string
	Channel   domain.NotificationChannel
	To        string
	Body      string
}

type SendNotificationOutput struct {
	ProviderID string
	Skipped    bool
}

type RecordNotificationInput struct {
	Notification domain.Notification
}

func (a *Activities) LoadRequestActivity(ctx context.Context, input LoadRequestInput) (LoadRequestOutput, error) {
	req, err := a.Store.GetRequest(ctx, input.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LoadRequestOutput{}, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("request %s not found", input.RequestID), errTypeRequestNotFound, err)
		}
		return LoadRequestOutput{}, err
	}
	return LoadRequestOutput{Request: req}, nil
}

func (a *Activities) RenderMessageActivity(_ context.Context, input RenderMessageInput) (RenderMessageOutput, error) {
	if domain.NormalizePhone(input.Request.CustomerPhone) == "" {
		return RenderMessageOutput{Skip: true}, nil
	}
	body, ok := notify.BuildStageMessage(input.Request)
	if !ok {
		return RenderMessageOutput{Skip: true}, nil
	}
	return RenderMessageOutput{Body: body}, nil
}

func (a *Activities) SendNotificationActivity(ctx context.Context, input SendNotificationInput) (SendNotificationOutput, error) {
	if a.Sender == nil {
		return SendNotificationOutput{Skipped: true}, nil
	}

	providerID, err := a.Sender.Send(ctx, notify.Message{
		RequestID: input.RequestID,
		Channel:   input.Channel,
		To:        domain.NormalizePhone(input.To),
		Body:      input.Body,
	})
	if err != nil {
		activity.GetLogger(ctx).Warn("notification send failed", "request_id", input.RequestID, "error", err)
		if notify.IsPermanent(err) {
			return SendNotificationOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), errTypePermanentSend, err)
		}
		return SendNotificationOutput{}, err
	}
	return SendNotificationOutput{ProviderID: providerID}, nil
}

func (a *Activities) RecordNotificationActivity(ctx context.Context, input RecordNotificationInput) error {
	if err := a.Store.InsertNotification(ctx, input.Notification); err != nil {
		return err
	}
	if a.Metrics != nil {
		a.Metrics.ObserveNotification(input.Notification.Channel, input.Notification.Status)
	}
	return nil
}
