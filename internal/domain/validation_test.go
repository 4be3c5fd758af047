package domain

import "testing"

func TestValidateNewRequestRules(t *testing.T) {
	valid := NewRequest{
		Title:         "Leaking kitchen tap",
		Description:   "Water pooling under the sink",
		CustomerName:  "Mona",
		CustomerPhone: "+20 100-123-4567",
		Priority:      PriorityHigh,
		Stage:         StageSubmitted,
	}
	res := ValidateNewRequest(valid)
	if !ValidationPassed(res) {
		t.Fatalf("expected no failed rules, got %v", res.FailedRules)
	}

	invalid := valid
	invalid.Title = "  "
	invalid.CustomerPhone = "call me"
	invalid.Priority = "whenever"
	invalid.Stage = StageCompleted
	res = ValidateNewRequest(invalid)
	want := []string{
		"request.title_required",
		"request.customer_phone_format",
		"request.priority_known",
		"request.initial_stage_draft_or_submitted",
	}
	if len(res.FailedRules) != len(want) {
		t.Fatalf("failed rules = %v, want %v", res.FailedRules, want)
	}
	for i := range want {
		if res.FailedRules[i] != want[i] {
			t.Fatalf("failed rules = %v, want %v", res.FailedRules, want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone(" +20 100-123-4567 "); got != "+201001234567" {
		t.Fatalf("NormalizePhone() = %q", got)
	}
}
