package temporal

import "uberfix/internal/domain"

// StageChangedSignalName is delivered through SignalWithStart so bursts of
// transitions on one request collapse into a single customer message.
const StageChangedSignalName = "stageChanged"

type StageChangedSignal struct {
	Stage     domain.WorkflowStage `json:"stage"`
	FromStage domain.WorkflowStage `json:"from_stage"`
}
