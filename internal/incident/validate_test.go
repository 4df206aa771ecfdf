package incident

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func validCandidate() map[string]any {
	return map[string]any{
		"title":    "Brute force attempt on admin account",
		"severity": "High",
		"status":   "New",
		"summary":  "Multiple failed SSH logins from one source IP followed by a success.",
		"indicators": []map[string]any{
			{"type": "ip", "value": "203.0.113.7", "confidence": 90},
		},
		"suggestedActions": []map[string]any{
			{
				"actionId":      "4f5a1f1e-8d3a-4b44-9a3e-111111111111",
				"type":          "block_ip",
				"target":        "203.0.113.7",
				"justification": "Source of the brute force attempt.",
				"kestraFlowId":  "system.block-ip",
			},
		},
	}
}

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal candidate: %v", err)
	}
	return b
}

func TestValidate_Accepts(t *testing.T) {
	t.Parallel()

	inc, err := Validate(mustRaw(t, validCandidate()))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if inc.Severity != SeverityHigh {
		t.Errorf("severity = %q, want %q", inc.Severity, SeverityHigh)
	}
	if inc.Status != StatusNew {
		t.Errorf("status = %q, want %q", inc.Status, StatusNew)
	}
	if len(inc.Indicators) != 1 || inc.Indicators[0].Confidence != 90 {
		t.Errorf("indicators = %+v, want one with confidence 90", inc.Indicators)
	}
	if len(inc.SuggestedActions) != 1 || inc.SuggestedActions[0].Type != ActionBlockIP {
		t.Errorf("actions = %+v, want one block_ip", inc.SuggestedActions)
	}
}

func TestValidate_RejectsUnknownSeverity(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	c["severity"] = "Extreme"

	_, err := Validate(mustRaw(t, c))
	if err == nil {
		t.Fatal("expected error for severity outside the enum")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if verr.Field != "severity" {
		t.Errorf("field = %q, want %q", verr.Field, "severity")
	}
}

func TestValidate_RejectsUnknownActionType(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	c["suggestedActions"] = []map[string]any{
		{
			"type":          "delete_database",
			"target":        "prod",
			"justification": "nuke it",
		},
	}

	_, err := Validate(mustRaw(t, c))
	if err == nil {
		t.Fatal("expected error for action type outside the enum")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if !strings.Contains(verr.Field, "suggestedActions[0]") {
		t.Errorf("field = %q, want suggestedActions[0] prefix", verr.Field)
	}
}

func TestValidate_RejectsUnknownIndicatorType(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	c["indicators"] = []map[string]any{
		{"type": "registry_key", "value": "HKLM\\Foo"},
	}

	if _, err := Validate(mustRaw(t, c)); err == nil {
		t.Fatal("expected error for indicator type outside the enum")
	}
}

func TestValidate_RequiresTitleAndSummary(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"title", "summary"} {
		c := validCandidate()
		c[field] = "   "
		_, err := Validate(mustRaw(t, c))
		if err == nil {
			t.Errorf("expected error for blank %s", field)
		}
	}
}

func TestValidate_StripsForgedLogRefs(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	c["logEntryIds"] = []string{"forged-1", "forged-2"}
	c["incidentId"] = "forged-uuid"

	inc, err := Validate(mustRaw(t, c))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(inc.LogEntryIDs) != 0 {
		t.Errorf("logEntryIds = %v, want empty (model cannot bind logs)", inc.LogEntryIDs)
	}
	if inc.IncidentID != "" {
		t.Errorf("incidentId = %q, want empty (lifecycle stamps it)", inc.IncidentID)
	}
}

func TestValidate_ConfidenceDefaultAndClamp(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	c["indicators"] = []map[string]any{
		{"type": "ip", "value": "198.51.100.1"},                      // absent -> 75
		{"type": "user", "value": "svc-backup", "confidence": 0},     // explicit zero stays
		{"type": "domain", "value": "evil.test", "confidence": 250},  // clamp high
		{"type": "hash", "value": "deadbeef", "confidence": -10},     // clamp low
	}

	inc, err := Validate(mustRaw(t, c))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := []int{DefaultConfidence, 0, 100, 0}
	for i, w := range want {
		if inc.Indicators[i].Confidence != w {
			t.Errorf("indicators[%d].confidence = %d, want %d", i, inc.Indicators[i].Confidence, w)
		}
	}
}

func TestValidate_DefaultsStatusToNew(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	delete(c, "status")

	inc, err := Validate(mustRaw(t, c))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if inc.Status != StatusNew {
		t.Errorf("status = %q, want %q", inc.Status, StatusNew)
	}
}

func TestValidate_GeneratesMissingActionID(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	c["suggestedActions"] = []map[string]any{
		{
			"type":          "create_ticket",
			"target":        "SOC queue",
			"justification": "Track follow-up investigation.",
		},
	}

	inc, err := Validate(mustRaw(t, c))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if inc.SuggestedActions[0].ActionID == "" {
		t.Error("expected a generated actionId")
	}
}

func TestValidate_RejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	if _, err := Validate(json.RawMessage(`{"title": `)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}
