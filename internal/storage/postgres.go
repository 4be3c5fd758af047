package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"uberfix/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, PostgresSchema)
	return err
}

func (s *PostgresStore) CreateRequest(ctx context.Context, req domain.MaintenanceRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_requests (
			id, title, description, customer_name, customer_phone, location, priority,
			workflow_stage, status, assigned_to, created_at, updated_at, archived_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, req.ID, req.Title, req.Description, req.CustomerName, req.CustomerPhone, req.Location, req.Priority,
		req.WorkflowStage, req.Status, req.AssignedTo, req.CreatedAt, req.UpdatedAt, nullableTime(req.ArchivedAt))
	return err
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID string) (domain.MaintenanceRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM maintenance_requests
		WHERE id = $1
	`, requestID)
	return scanRequest(row)
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.MaintenanceRequest, error) {
	limit, offset := listWindow(filter)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM maintenance_requests
		WHERE (cardinality($1::text[]) = 0 OR workflow_stage = ANY($1))
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`, pq.Array(stageStrings(filter.Stages)), pq.Array(statusStrings(filter.Statuses)), limit, offset)
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

// ApplyTransition writes the stage columns and the history row in one
// transaction. When expected is set the update only applies if the request
// is still in that stage; the boolean reports whether a row was updated.
func (s *PostgresStore) ApplyTransition(ctx context.Context, requestID string, expected *domain.WorkflowStage, update domain.StageUpdate, event *domain.StageEvent) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var expectedStage sql.NullString
	if expected != nil {
		expectedStage = sql.NullString{String: string(*expected), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE maintenance_requests
		SET workflow_stage = $2,
		    status = $3,
		    archived_at = $4,
		    updated_at = CASE WHEN workflow_stage = $2 THEN updated_at ELSE NOW() END
		WHERE id = $1 AND ($5::text IS NULL OR workflow_stage = $5)
	`, requestID, update.Stage, update.Status, nullableTime(update.ArchivedAt), expectedStage)
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
			createdAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stage_events (request_id, from_stage, to_stage, actor, note, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, requestID, event.FromStage, event.ToStage, event.Actor, event.Note, createdAt)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) ListStageEvents(ctx context.Context, requestID string) ([]domain.StageEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, from_stage, to_stage, actor, note, created_at
		FROM stage_events
		WHERE request_id = $1
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

func (s *PostgresStore) CountByStage(ctx context.Context) ([]domain.StageCount, error) {
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
		var stage domain.WorkflowStage
		var count int64
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		found[stage] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stageCounts(found), nil
}

func (s *PostgresStore) SaveAttachment(ctx context.Context, att domain.Attachment) (domain.Attachment, error) {
	createdAt := att.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO request_attachments (id, request_id, object_key, filename, content_type, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (object_key) DO UPDATE SET
			filename = EXCLUDED.filename,
			content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes
		RETURNING `+attachmentColumns+`
	`, att.ID, att.RequestID, att.ObjectKey, att.Filename, att.ContentType, att.SizeBytes, createdAt)
	return scanAttachment(row)
}

func (s *PostgresStore) ListAttachments(ctx context.Context, requestID string) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM request_attachments
		WHERE request_id = $1
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

func (s *PostgresStore) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (request_id, stage, channel, recipient, body, provider_id, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.RequestID, n.Stage, n.Channel, n.Recipient, n.Body, n.ProviderID, n.Status, n.Error)
	return err
}

func (s *PostgresStore) ListNotifications(ctx context.Context, requestID string) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, stage, channel, recipient, body, provider_id, status, error
		FROM notifications
		WHERE request_id = $1
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
