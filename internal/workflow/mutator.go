// Package workflow moves maintenance requests between stages.
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"uberfix/internal/domain"
)

type Policy string

const (
	// PolicyStrict only accepts targets listed in the current stage's next
	// stages, or the current stage itself.
	PolicyStrict Policy = "strict"
	// PolicyPermissive accepts any registered stage.
	PolicyPermissive Policy = "permissive"
)

var (
	ErrUnknownStage      = errors.New("unknown workflow stage")
	ErrIllegalTransition = errors.New("transition not allowed from current stage")
	ErrRequestNotFound   = errors.New("maintenance request not found")
	ErrStageConflict     = errors.New("request stage changed concurrently")
)

const (
	OutcomeApplied   = "applied"
	OutcomeUnchanged = "unchanged"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
)

type Store interface {
	GetRequest(ctx context.Context, requestID string) (domain.MaintenanceRequest, error)
	ApplyTransition(ctx context.Context, requestID string, expected *domain.WorkflowStage, update domain.StageUpdate, event *domain.StageEvent) (bool, error)
}

// Notifier is told about every stage change after it is persisted.
type Notifier interface {
	StageChanged(ctx context.Context, req domain.MaintenanceRequest, from domain.WorkflowStage) error
}

type Recorder interface {
	ObserveTransition(from, to domain.WorkflowStage, outcome string)
}

type TransitionRequest struct {
	RequestID string
	Target    string
	Actor     string
	Note      string
}

type TransitionResult struct {
	RequestID  string               `json:"request_id"`
	From       domain.WorkflowStage `json:"from_stage"`
	To         domain.WorkflowStage `json:"to_stage"`
	Status     domain.LegacyStatus  `json:"status"`
	ArchivedAt *time.Time           `json:"archived_at"`
	Changed    bool                 `json:"changed"`
	Progress   domain.Projection    `json:"progress"`
}

type Mutator struct {
	Store    Store
	Notifier Notifier
	Recorder Recorder
	Policy   Policy
	Logger   *zap.Logger
	Now      func() time.Time
}

func ParsePolicy(v string) (Policy, error) {
	switch Policy(v) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyPermissive:
		return PolicyPermissive, nil
	default:
		return "", fmt.Errorf("unknown transition policy %q", v)
	}
}

// Transition persists the target stage together with its derived legacy
// status and archived_at stamp. Store failures are returned wrapped and are
// never retried.
func (m *Mutator) Transition(ctx context.Context, in TransitionRequest) (TransitionResult, error) {
	target := domain.NormalizeStage(in.Target)
	if !domain.IsKnownStage(string(target)) {
		m.observe("", target, OutcomeRejected)
		return TransitionResult{}, fmt.Errorf("%w: %q", ErrUnknownStage, in.Target)
	}

	current, err := m.Store.GetRequest(ctx, in.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			m.observe("", target, OutcomeRejected)
			return TransitionResult{}, fmt.Errorf("%w: %s", ErrRequestNotFound, in.RequestID)
		}
		m.observe("", target, OutcomeFailed)
		return TransitionResult{}, fmt.Errorf("load request %s: %w", in.RequestID, err)
	}
	from := current.WorkflowStage
	changed := from != target

	var expected *domain.WorkflowStage
	if m.policy() == PolicyStrict {
		if changed && !domain.CanTransition(string(from), string(target)) {
			m.observe(from, target, OutcomeRejected)
			return TransitionResult{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, target)
		}
		expected = &from
	}

	now := m.now()
	update := domain.StageUpdateFor(target, current.ArchivedAt, now)
	var event *domain.StageEvent
	if changed {
		event = &domain.StageEvent{
			RequestID: in.RequestID,
			FromStage: from,
			ToStage:   target,
			Actor:     in.Actor,
			Note:      in.Note,
			CreatedAt: now,
		}
	}

	applied, err := m.Store.ApplyTransition(ctx, in.RequestID, expected, update, event)
	if err != nil {
		m.observe(from, target, OutcomeFailed)
		return TransitionResult{}, fmt.Errorf("persist transition %s -> %s: %w", from, target, err)
	}
	if !applied {
		if expected != nil {
			m.observe(from, target, OutcomeConflict)
			return TransitionResult{}, fmt.Errorf("%w: %s is no longer %s", ErrStageConflict, in.RequestID, from)
		}
		m.observe(from, target, OutcomeRejected)
		return TransitionResult{}, fmt.Errorf("%w: %s", ErrRequestNotFound, in.RequestID)
	}

	updated := current
	updated.WorkflowStage = update.Stage
	updated.Status = update.Status
	updated.ArchivedAt = update.ArchivedAt
	if changed {
		updated.UpdatedAt = now
	}

	if changed {
		m.observe(from, target, OutcomeApplied)
		m.logger().Info("request stage changed",
			zap.String("request_id", in.RequestID),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
			zap.String("actor", in.Actor),
		)
		if m.Notifier != nil {
			if err := m.Notifier.StageChanged(ctx, updated, from); err != nil {
				m.logger().Warn("stage change notification failed",
					zap.String("request_id", in.RequestID),
					zap.String("stage", string(target)),
					zap.Error(err),
				)
			}
		}
	} else {
		m.observe(from, target, OutcomeUnchanged)
	}

	return TransitionResult{
		RequestID:  in.RequestID,
		From:       from,
		To:         update.Stage,
		Status:     update.Status,
		ArchivedAt: update.ArchivedAt,
		Changed:    changed,
		Progress:   domain.Project(string(update.Stage)),
	}, nil
}

func (m *Mutator) policy() Policy {
	if m.Policy == "" {
		return PolicyStrict
	}
	return m.Policy
}

func (m *Mutator) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Mutator) logger() *zap.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return zap.NewNop()
}

func (m *Mutator) observe(from, to domain.WorkflowStage, outcome string) {
	if m.Recorder != nil {
		m.Recorder.ObserveTransition(from, to, outcome)
	}
}
