package events

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/stretchr/testify/require"
)

func TestParseObjectKey(t *testing.T) {
	tests := []struct {
		name          string
		objectKey     string
		wantRequestID string
		wantFile      string
		wantErr       bool
	}{
		{name: "valid", objectKey: "req-123/photo.jpg", wantRequestID: "req-123", wantFile: "photo.jpg"},
		{name: "valid nested", objectKey: "req-123/before/kitchen.png", wantRequestID: "req-123", wantFile: "before/kitchen.png"},
		{name: "windows separators", objectKey: `req-123\invoice.pdf`, wantRequestID: "req-123", wantFile: "invoice.pdf"},
		{name: "invalid no slash", objectKey: "req-123", wantErr: true},
		{name: "invalid empty", objectKey: "", wantErr: true},
		{name: "invalid blank filename", objectKey: "req-123/ ", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			requestID, filename, err := parseObjectKey(tc.objectKey)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if requestID != tc.wantRequestID {
				t.Fatalf("requestID mismatch: got %q want %q", requestID, tc.wantRequestID)
			}
			if filename != tc.wantFile {
				t.Fatalf("filename mismatch: got %q want %q", filename, tc.wantFile)
			}
		})
	}
}

func TestDecodeObjectKey(t *testing.T) {
	decoded, err := decodeObjectKey("req-123%2Fwater%20damage.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != "req-123/water damage.jpg" {
		t.Fatalf("decoded mismatch: got %q", decoded)
	}
}

type fakeListener struct {
	stream chan notification.Info
	bucket string
	events []string
}

func newFakeListener(batches ...notification.Info) *fakeListener {
	l := &fakeListener{stream: make(chan notification.Info, len(batches))}
	for _, b := range batches {
		l.stream <- b
	}
	return l
}

func (l *fakeListener) ListenBucketNotification(_ context.Context, bucket, _, _ string, events []string) <-chan notification.Info {
	l.bucket = bucket
	l.events = events
	return l.stream
}

func objectCreated(key string, size int64, contentType string) notification.Event {
	var ev notification.Event
	ev.EventName = "s3:ObjectCreated:Put"
	ev.S3.Object.Key = key
	ev.S3.Object.Size = size
	ev.S3.Object.ContentType = contentType
	return ev
}

func collect(t *testing.T, source *MinioAttachmentEventSource) ([]AttachmentEvent, error) {
	t.Helper()
	var got []AttachmentEvent
	err := source.Run(context.Background(), func(_ context.Context, ev AttachmentEvent) error {
		got = append(got, ev)
		return nil
	})
	return got, err
}

func TestMinioAttachmentEventSourceFiltersAndDedupes(t *testing.T) {
	listener := newFakeListener(notification.Info{Records: []notification.Event{
		objectCreated("req-1%2Fleak.png", 10, "image/png"),
		objectCreated("req-1/", 0, ""),
		objectCreated("req-1/.DS_Store", 6, ""),
		objectCreated("exports%2F2025-05.csv", 300, "text/csv"),
		objectCreated("orphan.txt", 1, ""),
		objectCreated("req-1/leak.png", 12, "image/png"),
		objectCreated("req-2/invoice.pdf", 99, "application/pdf"),
	}})
	close(listener.stream)

	source := NewMinioAttachmentEventSource(listener, "request-attachments", WithIgnoredPrefixes(" /exports/ ", ""))
	got, err := collect(t, source)
	require.ErrorIs(t, err, errStreamClosed)
	require.Equal(t, "request-attachments", listener.bucket)
	require.Equal(t, []string{objectCreatedEvent}, listener.events)

	require.Len(t, got, 2)
	require.Equal(t, "req-1/leak.png", got[0].ObjectKey)
	require.Equal(t, "leak.png", got[0].Filename)
	require.Equal(t, int64(12), got[0].SizeBytes)
	require.Equal(t, "req-2", got[1].RequestID)
	require.Equal(t, "application/pdf", got[1].ContentType)
	require.Equal(t, "s3:ObjectCreated:Put", got[1].EventName)
}

func TestMinioAttachmentEventSourceStopsOnStreamError(t *testing.T) {
	listener := newFakeListener(notification.Info{Err: errors.New("connection reset")})

	_, err := collect(t, NewMinioAttachmentEventSource(listener, "b"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
}

func TestMinioAttachmentEventSourceReturnsHandlerError(t *testing.T) {
	listener := newFakeListener(notification.Info{Records: []notification.Event{
		objectCreated("req-1/a.png", 1, ""),
		objectCreated("req-1/b.png", 1, ""),
	}})
	source := NewMinioAttachmentEventSource(listener, "b")

	calls := 0
	err := source.Run(context.Background(), func(context.Context, AttachmentEvent) error {
		calls++
		return errors.New("store down")
	})
	require.EqualError(t, err, "store down")
	require.Equal(t, 1, calls)
}

func TestMinioAttachmentEventSourceExitsOnCancel(t *testing.T) {
	listener := newFakeListener()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMinioAttachmentEventSource(listener, "b").Run(ctx, func(context.Context, AttachmentEvent) error {
		t.Fatal("handler must not run")
		return nil
	})
	require.NoError(t, err)
}
