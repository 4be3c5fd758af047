package notify

import (
	"strconv"
	"strings"

	"uberfix/internal/domain"
)

const stageUpdateTemplate = `UberFix: {{GREETING}}
Request "{{TITLE}}" is now {{STAGE_LABEL}} ({{PROGRESS}}% done).
{{DETAIL}}
Ref: {{REQUEST_REF}}`

// stageDetails holds the customer-facing line per stage. Stages missing here
// are internal and produce no message.
var stageDetails = map[domain.WorkflowStage]string{
	domain.StageSubmitted:    "We received your request and will review it shortly.",
	domain.StageAcknowledged: "Our team has reviewed your request.",
	domain.StageAssigned:     "A technician has been assigned to your request.",
	domain.StageScheduled:    "Your visit has been scheduled. We will confirm the time with you.",
	domain.StageInProgress:   "Work on your request has started.",
	domain.StageInspection:   "The technician is inspecting the completed work.",
	domain.StageWaitingParts: "We are waiting for parts. We will update you once they arrive.",
	domain.StageCompleted:    "The work is complete. Thank you for choosing UberFix.",
	domain.StageBilled:       "Your invoice has been issued.",
	domain.StagePaid:         "We received your payment. Thank you.",
	domain.StageClosed:       "Your request is closed.",
	domain.StageOnHold:       "Your request is on hold. We will contact you with next steps.",
	domain.StageCancelled:    "Your request was cancelled. Reply to this message if this is unexpected.",
}

func RenderTemplate(tpl string, vars map[string]string) string {
	rendered := tpl
	for k, v := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+k+"}}", v)
	}
	return rendered
}

// BuildStageMessage renders the customer message for req's current stage.
// ok is false for stages that do not notify the customer.
func BuildStageMessage(req domain.MaintenanceRequest) (body string, ok bool) {
	detail, ok := stageDetails[req.WorkflowStage]
	if !ok {
		return "", false
	}

	greeting := "Hello"
	if name := strings.TrimSpace(req.CustomerName); name != "" {
		greeting = "Hello " + name
	}
	proj := domain.Project(string(req.WorkflowStage))
	progress := "0"
	if proj.OnHappyPath {
		progress = strconv.Itoa(proj.ProgressPercent)
	}

	return RenderTemplate(stageUpdateTemplate, map[string]string{
		"GREETING":    greeting,
		"TITLE":       strings.TrimSpace(req.Title),
		"STAGE_LABEL": proj.Stage.Label,
		"PROGRESS":    progress,
		"DETAIL":      detail,
		"REQUEST_REF": shortRef(req.ID),
	}), true
}

func shortRef(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}
