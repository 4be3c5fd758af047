package events

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7/pkg/notification"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

var errStreamClosed = errors.New("bucket notification stream closed")

type AttachmentEvent struct {
	RequestID   string
	Filename    string
	ObjectKey   string
	ContentType string
	SizeBytes   int64
	EventName   string
}

type AttachmentEventSource interface {
	Run(ctx context.Context, handler func(context.Context, AttachmentEvent) error) error
}

// BucketListener is satisfied by *minio.Client.
type BucketListener interface {
	ListenBucketNotification(ctx context.Context, bucketName, prefix, suffix string, events []string) <-chan notification.Info
}

type MinioAttachmentEventSource struct {
	listener BucketListener
	bucket   string
	ignore   []string
}

type SourceOption func(*MinioAttachmentEventSource)

// WithIgnoredPrefixes skips object keys under any of prefixes. Request ids
// never contain a slash, so a prefix like "exports/" cannot shadow a request.
func WithIgnoredPrefixes(prefixes ...string) SourceOption {
	return func(s *MinioAttachmentEventSource) {
		for _, p := range prefixes {
			if p = strings.TrimLeft(strings.TrimSpace(p), "/"); p != "" {
				s.ignore = append(s.ignore, p)
			}
		}
	}
}

func NewMinioAttachmentEventSource(listener BucketListener, bucket string, opts ...SourceOption) *MinioAttachmentEventSource {
	s := &MinioAttachmentEventSource{listener: listener, bucket: bucket}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled or the notification stream fails. Each
// notification batch is reduced to attachment events before handler runs, so
// a batch that writes one key twice is handled once with its last record.
func (s *MinioAttachmentEventSource) Run(ctx context.Context, handler func(context.Context, AttachmentEvent) error) error {
	stream := s.listener.ListenBucketNotification(ctx, s.bucket, "", "", []string{objectCreatedEvent})
	for {
		var info notification.Info
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case info, ok = <-stream:
		}

		switch {
		case ctx.Err() != nil:
			return nil
		case !ok:
			return errStreamClosed
		case info.Err != nil:
			return fmt.Errorf("bucket notification stream: %w", info.Err)
		}

		for _, event := range s.attachmentEvents(info.Records) {
			if err := handler(ctx, event); err != nil {
				return err
			}
		}
	}
}

func (s *MinioAttachmentEventSource) attachmentEvents(records []notification.Event) []AttachmentEvent {
	out := make([]AttachmentEvent, 0, len(records))
	seen := make(map[string]int, len(records))
	for _, record := range records {
		event, ok := s.toAttachmentEvent(record)
		if !ok {
			continue
		}
		if i, dup := seen[event.ObjectKey]; dup {
			out[i] = event
			continue
		}
		seen[event.ObjectKey] = len(out)
		out = append(out, event)
	}
	return out
}

func (s *MinioAttachmentEventSource) toAttachmentEvent(record notification.Event) (AttachmentEvent, bool) {
	objectKey, err := decodeObjectKey(record.S3.Object.Key)
	if err != nil || s.ignored(objectKey) {
		return AttachmentEvent{}, false
	}
	requestID, filename, err := parseObjectKey(objectKey)
	if err != nil {
		return AttachmentEvent{}, false
	}
	return AttachmentEvent{
		RequestID:   requestID,
		Filename:    filename,
		ObjectKey:   objectKey,
		ContentType: record.S3.Object.ContentType,
		SizeBytes:   record.S3.Object.Size,
		EventName:   record.EventName,
	}, true
}

// ignored reports keys that are not request attachments: folder markers,
// dotfiles and configured prefixes.
func (s *MinioAttachmentEventSource) ignored(objectKey string) bool {
	if strings.HasSuffix(objectKey, "/") || strings.HasPrefix(path.Base(objectKey), ".") {
		return true
	}
	for _, prefix := range s.ignore {
		if strings.HasPrefix(objectKey, prefix) {
			return true
		}
	}
	return false
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

func parseObjectKey(objectKey string) (string, string, error) {
	cleaned := strings.Trim(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	requestID, filename, found := strings.Cut(cleaned, "/")
	if !found {
		return "", "", fmt.Errorf("object key %q does not match request_id/filename", objectKey)
	}
	requestID = strings.TrimSpace(requestID)
	filename = strings.TrimSpace(filename)
	if requestID == "" || filename == "" {
		return "", "", fmt.Errorf("object key %q missing request id or filename", objectKey)
	}
	return requestID, filename, nil
}
