//go:build system

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"uberfix/internal/domain"
)

// newTestPostgresStore connects to UBERFIX_TEST_POSTGRES_DSN and applies the
// schema. Requests whose ids come from the returned func are deleted when the
// test ends; the database is otherwise shared.
func newTestPostgresStore(t *testing.T) (*PostgresStore, func(prefix string) string) {
	t.Helper()
	dsn := os.Getenv("UBERFIX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set UBERFIX_TEST_POSTGRES_DSN to run postgres store tests")
	}

	store, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Migrate(ctx))

	var ids []string
	t.Cleanup(func() {
		for _, id := range ids {
			_, _ = store.db.ExecContext(context.Background(), `DELETE FROM maintenance_requests WHERE id = $1`, id)
		}
		_ = store.Close()
	})
	newID := func(prefix string) string {
		id := prefix + "-" + uuid.NewString()
		ids = append(ids, id)
		return id
	}
	return store, newID
}

func TestPostgresStoreApplyTransition(t *testing.T) {
	ctx := context.Background()
	store, newID := newTestPostgresStore(t)
	id := newID("req")
	seeded := seedRequest(t, store, id, domain.StageInProgress, time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond))

	archived := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	update := domain.StageUpdate{Stage: domain.StageCompleted, Status: domain.LegacyCompleted, ArchivedAt: &archived}
	expected := domain.StageInProgress
	event := &domain.StageEvent{FromStage: domain.StageInProgress, ToStage: domain.StageCompleted, Actor: "tech-7", CreatedAt: archived}

	applied, err := store.ApplyTransition(ctx, id, &expected, update, event)
	require.NoError(t, err)
	require.True(t, applied)

	got, err := store.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StageCompleted, got.WorkflowStage)
	require.Equal(t, domain.LegacyCompleted, got.Status)
	require.NotNil(t, got.ArchivedAt)
	require.True(t, got.ArchivedAt.Equal(archived))
	require.True(t, got.UpdatedAt.After(seeded.UpdatedAt))

	events, err := store.ListStageEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.StageInProgress, events[0].FromStage)
	require.Equal(t, domain.StageCompleted, events[0].ToStage)
	require.Equal(t, "tech-7", events[0].Actor)

	// Stale expectation: the request already moved on.
	applied, err = store.ApplyTransition(ctx, id, &expected, domain.StageUpdate{Stage: domain.StageOnHold, Status: domain.LegacyOpen}, nil)
	require.NoError(t, err)
	require.False(t, applied)

	// Rewriting the current stage leaves updated_at alone.
	current := domain.StageCompleted
	applied, err = store.ApplyTransition(ctx, id, &current, update, nil)
	require.NoError(t, err)
	require.True(t, applied)
	again, err := store.GetRequest(ctx, id)
	require.NoError(t, err)
	require.True(t, again.UpdatedAt.Equal(got.UpdatedAt))

	// A nil expectation writes unconditionally.
	applied, err = store.ApplyTransition(ctx, id, nil, domain.StageUpdate{Stage: domain.StageOnHold, Status: domain.LegacyOpen}, nil)
	require.NoError(t, err)
	require.True(t, applied)
	held, err := store.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StageOnHold, held.WorkflowStage)
	require.Nil(t, held.ArchivedAt)

	applied, err = store.ApplyTransition(ctx, newID("missing"), nil, update, nil)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestPostgresStoreListRequestsStageFilter(t *testing.T) {
	ctx := context.Background()
	store, newID := newTestPostgresStore(t)
	// Far-future created_at keeps these rows at the head of the default order.
	base := time.Date(2199, 1, 1, 0, 0, 0, 0, time.UTC)
	submitted := newID("req")
	cancelled := newID("req")
	seedRequest(t, store, submitted, domain.StageSubmitted, base)
	seedRequest(t, store, cancelled, domain.StageCancelled, base.Add(time.Hour))

	byStatus, err := store.ListRequests(ctx, domain.RequestFilter{Statuses: []domain.LegacyStatus{domain.LegacyCancelled}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	require.Equal(t, cancelled, byStatus[0].ID)

	byStage, err := store.ListRequests(ctx, domain.RequestFilter{Stages: []domain.WorkflowStage{domain.StageSubmitted}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, byStage, 1)
	require.Equal(t, submitted, byStage[0].ID)
}

func TestPostgresStoreSaveAttachmentUpserts(t *testing.T) {
	ctx := context.Background()
	store, newID := newTestPostgresStore(t)
	id := newID("req")
	seedRequest(t, store, id, domain.StageAssigned, time.Now().UTC())

	att := domain.Attachment{
		ID:          uuid.NewString(),
		RequestID:   id,
		ObjectKey:   AttachmentObjectKey(id, "photo.jpg"),
		Filename:    "photo.jpg",
		ContentType: "image/jpeg",
		SizeBytes:   1024,
	}
	first, err := store.SaveAttachment(ctx, att)
	require.NoError(t, err)
	require.Equal(t, att.ID, first.ID)

	att.ID = uuid.NewString()
	att.SizeBytes = 2048
	second, err := store.SaveAttachment(ctx, att)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(2048), second.SizeBytes)

	atts, err := store.ListAttachments(ctx, id)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	require.Equal(t, first.ID, atts[0].ID)
	require.Equal(t, int64(2048), atts[0].SizeBytes)
}
