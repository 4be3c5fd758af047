package domain

type WorkflowStage string

const (
	StageDraft        WorkflowStage = "draft"
	StageSubmitted    WorkflowStage = "submitted"
	StageAcknowledged WorkflowStage = "acknowledged"
	StageAssigned     WorkflowStage = "assigned"
	StageScheduled    WorkflowStage = "scheduled"
	StageInProgress   WorkflowStage = "in_progress"
	StageInspection   WorkflowStage = "inspection"
	StageWaitingParts WorkflowStage = "waiting_parts"
	StageCompleted    WorkflowStage = "completed"
	StageBilled       WorkflowStage = "billed"
	StagePaid         WorkflowStage = "paid"
	StageClosed       WorkflowStage = "closed"
	StageOnHold       WorkflowStage = "on_hold"
	StageCancelled    WorkflowStage = "cancelled"
)

// LegacyStatus is the coarse status column older reports still query.
type LegacyStatus string

const (
	LegacyOpen       LegacyStatus = "Open"
	LegacyInProgress LegacyStatus = "In Progress"
	LegacyCompleted  LegacyStatus = "Completed"
	LegacyClosed     LegacyStatus = "Closed"
	LegacyCancelled  LegacyStatus = "Cancelled"
)

const (
	fallbackColor = "gray"
	fallbackIcon  = "circle"
)

type StageDefinition struct {
	Key          WorkflowStage   `json:"key" yaml:"key"`
	Label        string          `json:"label" yaml:"label"`
	Description  string          `json:"description" yaml:"description"`
	Color        string          `json:"color" yaml:"color"`
	Icon         string          `json:"icon" yaml:"icon"`
	LegacyStatus LegacyStatus    `json:"legacy_status" yaml:"legacy_status"`
	NextStages   []WorkflowStage `json:"next_stages" yaml:"next_stages"`
	Actions      []string        `json:"actions" yaml:"actions"`
	Known        bool            `json:"known" yaml:"known"`
}

// stageOrder is the declaration order used for listings and dashboards.
var stageOrder = []WorkflowStage{
	StageDraft,
	StageSubmitted,
	StageAcknowledged,
	StageAssigned,
	StageScheduled,
	StageInProgress,
	StageInspection,
	StageWaitingParts,
	StageCompleted,
	StageBilled,
	StagePaid,
	StageClosed,
	StageOnHold,
	StageCancelled,
}

var stageRegistry = map[WorkflowStage]StageDefinition{
	StageDraft: {
		Label:        "Draft",
		Description:  "Request is being prepared and has not been sent yet",
		Color:        "slate",
		Icon:         "file-pen",
		LegacyStatus: LegacyOpen,
		NextStages:   []WorkflowStage{StageSubmitted, StageCancelled},
		Actions:      []string{"submit", "cancel"},
	},
	StageSubmitted: {
		Label:        "Submitted",
		Description:  "Customer submitted the request",
		Color:        "blue",
		Icon:         "send",
		LegacyStatus: LegacyOpen,
		NextStages:   []WorkflowStage{StageAcknowledged, StageOnHold, StageCancelled},
		Actions:      []string{"acknowledge", "hold", "cancel"},
	},
	StageAcknowledged: {
		Label:        "Acknowledged",
		Description:  "Operations team reviewed the request",
		Color:        "indigo",
		Icon:         "check",
		LegacyStatus: LegacyOpen,
		NextStages:   []WorkflowStage{StageAssigned, StageOnHold, StageCancelled},
		Actions:      []string{"assign", "hold", "cancel"},
	},
	StageAssigned: {
		Label:        "Assigned",
		Description:  "A technician or vendor was dispatched",
		Color:        "violet",
		Icon:         "user-check",
		LegacyStatus: LegacyInProgress,
		NextStages:   []WorkflowStage{StageScheduled, StageInProgress, StageOnHold, StageCancelled},
		Actions:      []string{"schedule", "start", "hold", "cancel"},
	},
	StageScheduled: {
		Label:        "Scheduled",
		Description:  "A visit was booked with the customer",
		Color:        "cyan",
		Icon:         "calendar",
		LegacyStatus: LegacyInProgress,
		NextStages:   []WorkflowStage{StageInProgress, StageOnHold, StageCancelled},
		Actions:      []string{"start", "hold", "cancel"},
	},
	StageInProgress: {
		Label:        "In Progress",
		Description:  "Work is underway on site",
		Color:        "amber",
		Icon:         "wrench",
		LegacyStatus: LegacyInProgress,
		NextStages:   []WorkflowStage{StageInspection, StageWaitingParts, StageCompleted, StageOnHold},
		Actions:      []string{"inspect", "wait_parts", "complete", "hold"},
	},
	StageInspection: {
		Label:        "Inspection",
		Description:  "Work is being checked before sign-off",
		Color:        "orange",
		Icon:         "search",
		LegacyStatus: LegacyInProgress,
		NextStages:   []WorkflowStage{StageInProgress, StageWaitingParts, StageCompleted},
		Actions:      []string{"resume", "wait_parts", "complete"},
	},
	StageWaitingParts: {
		Label:        "Waiting for Parts",
		Description:  "Work is paused until parts arrive",
		Color:        "yellow",
		Icon:         "package",
		LegacyStatus: LegacyInProgress,
		NextStages:   []WorkflowStage{StageInProgress, StageCancelled},
		Actions:      []string{"resume", "cancel"},
	},
	StageCompleted: {
		Label:        "Completed",
		Description:  "Work finished and signed off",
		Color:        "green",
		Icon:         "circle-check",
		LegacyStatus: LegacyCompleted,
		NextStages:   []WorkflowStage{StageBilled, StageClosed},
		Actions:      []string{"bill", "close"},
	},
	StageBilled: {
		Label:        "Billed",
		Description:  "Invoice was issued to the customer",
		Color:        "teal",
		Icon:         "receipt",
		LegacyStatus: LegacyCompleted,
		NextStages:   []WorkflowStage{StagePaid},
		Actions:      []string{"record_payment"},
	},
	StagePaid: {
		Label:        "Paid",
		Description:  "Payment was received",
		Color:        "emerald",
		Icon:         "wallet",
		LegacyStatus: LegacyCompleted,
		NextStages:   []WorkflowStage{StageClosed},
		Actions:      []string{"close"},
	},
	StageClosed: {
		Label:        "Closed",
		Description:  "Request is finished and archived",
		Color:        "zinc",
		Icon:         "archive",
		LegacyStatus: LegacyClosed,
	},
	StageOnHold: {
		Label:        "On Hold",
		Description:  "Request is paused pending customer or operations input",
		Color:        "stone",
		Icon:         "pause",
		LegacyStatus: LegacyOpen,
		NextStages:   []WorkflowStage{StageAcknowledged, StageAssigned, StageInProgress, StageCancelled},
		Actions:      []string{"resume", "cancel"},
	},
	StageCancelled: {
		Label:        "Cancelled",
		Description:  "Request was cancelled",
		Color:        "red",
		Icon:         "x",
		LegacyStatus: LegacyCancelled,
	},
}

// NormalizeStage maps empty input to the draft stage.
func NormalizeStage(key string) WorkflowStage {
	if key == "" {
		return StageDraft
	}
	return WorkflowStage(key)
}

func IsKnownStage(key string) bool {
	_, ok := stageRegistry[NormalizeStage(key)]
	return ok
}

// Lookup never fails: unknown keys come back as a display-only definition
// labelled with the raw key.
func Lookup(key string) StageDefinition {
	stage := NormalizeStage(key)
	def, ok := stageRegistry[stage]
	if !ok {
		return StageDefinition{
			Key:          stage,
			Label:        string(stage),
			Color:        fallbackColor,
			Icon:         fallbackIcon,
			LegacyStatus: LegacyStatus(stage),
			NextStages:   []WorkflowStage{},
			Actions:      []string{},
		}
	}
	def.Key = stage
	def.Known = true
	def.NextStages = append([]WorkflowStage{}, def.NextStages...)
	def.Actions = append([]string{}, def.Actions...)
	return def
}

func LegacyStatusFor(stage WorkflowStage) LegacyStatus {
	return Lookup(string(stage)).LegacyStatus
}

// Stages returns every registered definition in declaration order.
func Stages() []StageDefinition {
	out := make([]StageDefinition, 0, len(stageOrder))
	for _, stage := range stageOrder {
		out = append(out, Lookup(string(stage)))
	}
	return out
}

// IsArchivingStage reports whether entering stage stamps archived_at.
func IsArchivingStage(stage WorkflowStage) bool {
	return stage == StageCompleted || stage == StageClosed
}
