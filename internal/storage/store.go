package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"uberfix/internal/domain"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultListLimit = 50
	maxListLimit     = 500
)

// Store is implemented by PostgresStore and SQLiteStore. Missing rows are
// reported as sql.ErrNoRows.
type Store interface {
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	CreateRequest(ctx context.Context, req domain.MaintenanceRequest) error
	GetRequest(ctx context.Context, requestID string) (domain.MaintenanceRequest, error)
	ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.MaintenanceRequest, error)
	ApplyTransition(ctx context.Context, requestID string, expected *domain.WorkflowStage, update domain.StageUpdate, event *domain.StageEvent) (bool, error)
	ListStageEvents(ctx context.Context, requestID string) ([]domain.StageEvent, error)
	CountByStage(ctx context.Context) ([]domain.StageCount, error)

	SaveAttachment(ctx context.Context, att domain.Attachment) (domain.Attachment, error)
	ListAttachments(ctx context.Context, requestID string) ([]domain.Attachment, error)

	InsertNotification(ctx context.Context, n domain.Notification) error
	ListNotifications(ctx context.Context, requestID string) ([]domain.Notification, error)
}

// Open connects to the configured driver and applies the schema.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch driver {
	case DriverPostgres, "":
		store, err = NewPostgresStore(dsn)
	case DriverSQLite:
		store, err = NewSQLiteStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate %s store: %w", driver, err)
	}
	return store, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const requestColumns = `id, title, description, customer_name, customer_phone, location, priority,
	workflow_stage, status, assigned_to, created_at, updated_at, archived_at`

func scanRequest(row rowScanner) (domain.MaintenanceRequest, error) {
	var rec domain.MaintenanceRequest
	var assignedTo sql.NullString
	var archivedAt sql.NullTime
	if err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Description,
		&rec.CustomerName,
		&rec.CustomerPhone,
		&rec.Location,
		&rec.Priority,
		&rec.WorkflowStage,
		&rec.Status,
		&assignedTo,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&archivedAt,
	); err != nil {
		return domain.MaintenanceRequest{}, err
	}
	if assignedTo.Valid {
		rec.AssignedTo = &assignedTo.String
	}
	if archivedAt.Valid {
		ts := archivedAt.Time.UTC()
		rec.ArchivedAt = &ts
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func scanStageEvent(row rowScanner) (domain.StageEvent, error) {
	var ev domain.StageEvent
	if err := row.Scan(&ev.ID, &ev.RequestID, &ev.FromStage, &ev.ToStage, &ev.Actor, &ev.Note, &ev.CreatedAt); err != nil {
		return domain.StageEvent{}, err
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	return ev, nil
}

const attachmentColumns = `id, request_id, object_key, filename, content_type, size_bytes, created_at`

func scanAttachment(row rowScanner) (domain.Attachment, error) {
	var att domain.Attachment
	if err := row.Scan(&att.ID, &att.RequestID, &att.ObjectKey, &att.Filename, &att.ContentType, &att.SizeBytes, &att.CreatedAt); err != nil {
		return domain.Attachment{}, err
	}
	att.CreatedAt = att.CreatedAt.UTC()
	return att, nil
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(&n.RequestID, &n.Stage, &n.Channel, &n.Recipient, &n.Body, &n.ProviderID, &n.Status, &n.Error); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// stageCounts fills zero counts so dashboards always show every stage.
func stageCounts(found map[domain.WorkflowStage]int64) []domain.StageCount {
	out := make([]domain.StageCount, 0, len(found))
	seen := make(map[domain.WorkflowStage]struct{})
	for _, def := range domain.Stages() {
		out = append(out, domain.StageCount{Stage: def.Key, Label: def.Label, Count: found[def.Key]})
		seen[def.Key] = struct{}{}
	}
	extra := make([]domain.StageCount, 0)
	for stage, count := range found {
		if _, ok := seen[stage]; ok {
			continue
		}
		extra = append(extra, domain.StageCount{Stage: stage, Label: domain.Lookup(string(stage)).Label, Count: count})
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Stage < extra[j].Stage })
	return append(out, extra...)
}

func listWindow(filter domain.RequestFilter) (int, int) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stageStrings(stages []domain.WorkflowStage) []string {
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		out = append(out, string(s))
	}
	return out
}

func statusStrings(statuses []domain.LegacyStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
