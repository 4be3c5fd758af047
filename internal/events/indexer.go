package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"uberfix/internal/domain"
)

type AttachmentStore interface {
	GetRequest(ctx context.Context, requestID string) (domain.MaintenanceRequest, error)
	SaveAttachment(ctx context.Context, att domain.Attachment) (domain.Attachment, error)
}

type AttachmentMetrics interface {
	RecordAttachment(source string)
}

// AttachmentIndexer records attachment metadata for objects that land in the
// bucket. The API records its own uploads under the same object key, and
// whichever write lands second updates the existing row in place.
type AttachmentIndexer struct {
	Store   AttachmentStore
	Metrics AttachmentMetrics
	Logger  *zap.Logger
	Now     func() time.Time
}

func (ix *AttachmentIndexer) Handle(ctx context.Context, event AttachmentEvent) error {
	logger := ix.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := ix.Store.GetRequest(ctx, event.RequestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.Warn("attachment for unknown request ignored",
				zap.String("object_key", event.ObjectKey),
				zap.String("request_id", event.RequestID),
			)
			return nil
		}
		return fmt.Errorf("load request %s: %w", event.RequestID, err)
	}

	contentType := event.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(event.Filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	now := time.Now
	if ix.Now != nil {
		now = ix.Now
	}

	att := domain.Attachment{
		ID:          uuid.NewString(),
		RequestID:   event.RequestID,
		ObjectKey:   event.ObjectKey,
		Filename:    path.Base(event.Filename),
		ContentType: contentType,
		SizeBytes:   event.SizeBytes,
		CreatedAt:   now().UTC(),
	}
	stored, err := ix.Store.SaveAttachment(ctx, att)
	if err != nil {
		return fmt.Errorf("record attachment %s: %w", event.ObjectKey, err)
	}
	if ix.Metrics != nil {
		ix.Metrics.RecordAttachment("bucket_event")
	}
	logger.Info("attachment recorded",
		zap.String("attachment_id", stored.ID),
		zap.String("object_key", event.ObjectKey),
		zap.String("request_id", event.RequestID),
		zap.Int64("size_bytes", event.SizeBytes),
	)
	return nil
}
