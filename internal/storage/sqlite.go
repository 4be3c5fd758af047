package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"uberfix/internal/domain"
)

// SQLiteStore backs local development and tests. Use ":memory:" for a
// throwaway database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection serialises writers and keeps ":memory:" databases alive
	// for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, SQLiteSchema)
	return err
}

func (s *SQLiteStore) CreateRequest(ctx context.Context, req domain.MaintenanceRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_requests (
			id, title, description, customer_name, customer_phone, location, priority,
			workflow_stage, status, assigned_to, created_at, updated_at, archived_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.Title, req.Description, req.CustomerName, req.CustomerPhone, req.Location, string(req.Priority),
		string(req.WorkflowStage), string(req.Status), req.AssignedTo, req.CreatedAt.UTC(), req.UpdatedAt.UTC(), nullableTime(req.ArchivedAt))
	return err
}

func (s *SQLiteStore) GetRequest(ctx context.Context, requestID string) (domain.MaintenanceRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM maintenance_requests
		WHERE id = ?
	`, requestID)
	return scanRequest(row)
}

func (s *SQLiteStore) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.MaintenanceRequest, error) {
	limit, offset := listWindow(filter)

	conditions := make([]string, 0, 2)
	args := make([]any, 0)
	if len(filter.Stages) > 0 {
		conditions = append(conditions, "workflow_stage IN ("+placeholders(len(filter.Stages))+")")
		for _, stage := range stageStrings(filter.Stages) {
			args = append(args, stage)
		}
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, status := range statusStrings(filter.Statuses) {
			args = append(args, status)
		}
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM maintenance_requests
		`+where+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.MaintenanceRequest, 0)
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *SQLiteStore) ApplyTransition(ctx context.Context, requestID string, expected *domain.WorkflowStage, update domain.StageUpdate, event *domain.StageEvent) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE maintenance_requests
		SET workflow_stage = ?1, status = ?2, archived_at = ?3,
		    updated_at = CASE WHEN workflow_stage = ?1 THEN updated_at ELSE ?4 END
		WHERE id = ?5`
	args := []any{string(update.Stage), string(update.Status), nullableTime(update.ArchivedAt), time.Now().UTC(), requestID}
	if expected != nil {
		query += ` AND workflow_stage = ?6`
		args = append(args, string(*expected))
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if event != nil {
		createdAt := event.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stage_events (request_id, from_stage, to_stage, actor, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, requestID, string(event.FromStage), string(event.ToStage), event.Actor, event.Note, createdAt.UTC())
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) ListStageEvents(ctx context.Context, requestID string) ([]domain.StageEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, from_stage, to_stage, actor, note, created_at
		FROM stage_events
		WHERE request_id = ?
		ORDER BY id ASC
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StageEvent, 0)
	for rows.Next() {
		ev, err := scanStageEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *SQLiteStore) CountByStage(ctx context.Context) ([]domain.StageCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_stage, COUNT(*)
		FROM maintenance_requests
		GROUP BY workflow_stage
	`)
	if err != nil {
		return nil, fmt.Errorf("count requests by stage: %w", err)
	}
	defer rows.Close()

	found := make(map[domain.WorkflowStage]int64)
	for rows.Next() {
		var stage string
		var count int64
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		found[domain.WorkflowStage(stage)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stageCounts(found), nil
}

// SaveAttachment records att keyed by its object key. A second write for the
// same key keeps the stored id and created_at and takes the new metadata, so
// the returned row is always the one ListAttachments serves.
func (s *SQLiteStore) SaveAttachment(ctx context.Context, att domain.Attachment) (domain.Attachment, error) {
	createdAt := att.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO request_attachments (id, request_id, object_key, filename, content_type, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (object_key) DO UPDATE SET
			filename = excluded.filename,
			content_type = excluded.content_type,
			size_bytes = excluded.size_bytes
		RETURNING `+attachmentColumns+`
	`, att.ID, att.RequestID, att.ObjectKey, att.Filename, att.ContentType, att.SizeBytes, createdAt.UTC())
	return scanAttachment(row)
}

func (s *SQLiteStore) ListAttachments(ctx context.Context, requestID string) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM request_attachments
		WHERE request_id = ?
		ORDER BY created_at ASC, id
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Attachment, 0)
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, att)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *SQLiteStore) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (request_id, stage, channel, recipient, body, provider_id, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.RequestID, string(n.Stage), string(n.Channel), n.Recipient, n.Body, n.ProviderID, string(n.Status), n.Error, time.Now().UTC())
	return err
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, requestID string) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, stage, channel, recipient, body, provider_id, status, error
		FROM notifications
		WHERE request_id = ?
		ORDER BY id ASC
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
