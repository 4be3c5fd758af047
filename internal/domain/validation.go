package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 4000
)

func ValidateNewRequest(v NewRequest) ValidationResult {
	failed := make([]string, 0)

	title := strings.TrimSpace(v.Title)
	if title == "" {
		failed = append(failed, "request.title_required")
	} else if utf8.RuneCountInString(title) > maxTitleLength {
		failed = append(failed, "request.title_too_long")
	}
	if utf8.RuneCountInString(v.Description) > maxDescriptionLength {
		failed = append(failed, "request.description_too_long")
	}
	if strings.TrimSpace(v.CustomerName) == "" {
		failed = append(failed, "request.customer_name_required")
	}
	if v.CustomerPhone != "" && !isPhoneNumber(v.CustomerPhone) {
		failed = append(failed, "request.customer_phone_format")
	}
	switch v.Priority {
	case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
	default:
		failed = append(failed, "request.priority_known")
	}
	switch v.Stage {
	case "", StageDraft, StageSubmitted:
	default:
		failed = append(failed, "request.initial_stage_draft_or_submitted")
	}

	return ValidationResult{FailedRules: failed}
}

func ValidationPassed(r ValidationResult) bool {
	return len(r.FailedRules) == 0
}

// isPhoneNumber accepts E.164-style numbers with optional spaces or dashes.
func isPhoneNumber(v string) bool {
	digits := 0
	for i, r := range strings.TrimSpace(v) {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

// NormalizePhone strips separators so gateways receive +<digits>.
func NormalizePhone(v string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(v) {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
