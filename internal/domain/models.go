package domain

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type NotificationChannel string

const (
	ChannelSMS      NotificationChannel = "sms"
	ChannelWhatsApp NotificationChannel = "whatsapp"
)

type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
	NotificationSkipped NotificationStatus = "SKIPPED"
)

type MaintenanceRequest struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	CustomerName  string        `json:"customer_name"`
	CustomerPhone string        `json:"customer_phone"`
	Location      string        `json:"location"`
	Priority      Priority      `json:"priority"`
	WorkflowStage WorkflowStage `json:"workflow_stage"`
	Status        LegacyStatus  `json:"status"`
	AssignedTo    *string       `json:"assigned_to,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ArchivedAt    *time.Time    `json:"archived_at"`
}

type NewRequest struct {
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	CustomerName  string        `json:"customer_name"`
	CustomerPhone string        `json:"customer_phone"`
	Location      string        `json:"location"`
	Priority      Priority      `json:"priority"`
	Stage         WorkflowStage `json:"workflow_stage"`
}

// StageUpdate is the full set of columns a transition writes.
type StageUpdate struct {
	Stage      WorkflowStage
	Status     LegacyStatus
	ArchivedAt *time.Time
}

type StageEvent struct {
	ID        int64         `json:"id"`
	RequestID string        `json:"request_id"`
	FromStage WorkflowStage `json:"from_stage"`
	ToStage   WorkflowStage `json:"to_stage"`
	Actor     string        `json:"actor,omitempty"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type Attachment struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	ObjectKey   string    `json:"object_key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

type Notification struct {
	RequestID  string              `json:"request_id"`
	Stage      WorkflowStage       `json:"stage"`
	Channel    NotificationChannel `json:"channel"`
	Recipient  string              `json:"recipient"`
	Body       string              `json:"body"`
	ProviderID string              `json:"provider_id,omitempty"`
	Status     NotificationStatus  `json:"status"`
	Error      string              `json:"error,omitempty"`
}

type RequestFilter struct {
	Stages   []WorkflowStage
	Statuses []LegacyStatus
	Limit    int
	Offset   int
}

type StageCount struct {
	Stage WorkflowStage `json:"stage"`
	Label string        `json:"label"`
	Count int64         `json:"count"`
}

type ValidationResult struct {
	FailedRules []string `json:"failed_rules"`
}

// StageUpdateFor derives every column a move to stage writes. previous is the
// request's current archived_at; it is kept when re-entering an archiving
// stage so repeated transitions do not restamp it.
func StageUpdateFor(stage WorkflowStage, previous *time.Time, now time.Time) StageUpdate {
	update := StageUpdate{Stage: stage, Status: LegacyStatusFor(stage)}
	if IsArchivingStage(stage) {
		if previous != nil {
			ts := *previous
			update.ArchivedAt = &ts
		} else {
			ts := now.UTC()
			update.ArchivedAt = &ts
		}
	}
	return update
}
