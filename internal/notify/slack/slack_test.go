package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/aegis/internal/incident"
)

func testIncident() *incident.Incident {
	return &incident.Incident{
		IncidentID: "4f5a1f1e-8d3a-4b44-9a3e-111111111111",
		Title:      "Brute force against bastion",
		Severity:   incident.SeverityCritical,
		Status:     incident.StatusNew,
		Summary:    "Repeated SSH failures from one IP followed by a success.",
		Indicators: []incident.Indicator{
			{Type: incident.IndicatorIP, Value: "203.0.113.7", Confidence: 90},
		},
		SuggestedActions: []incident.SuggestedAction{
			{ActionID: "a1", Type: incident.ActionBlockIP, Target: "203.0.113.7", Justification: "Brute force source."},
		},
		CreatedAt: time.Date(2026, 5, 1, 14, 23, 0, 0, time.UTC),
	}
}

func TestNotify_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	if err := n.Notify(context.Background(), testIncident()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, summary, divider, context = 7 blocks
	if len(blocks) != 7 {
		t.Errorf("blocks count = %d, want 7", len(blocks))
	}

	// Verify header contains the title and critical emoji
	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Brute force against bastion") {
		t.Errorf("header text = %q, want to contain the incident title", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Errorf("header should contain red circle for critical severity")
	}
}

func TestNotify_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.Notify(context.Background(), testIncident()); err != nil {
		t.Fatalf("Notify with empty URL should be no-op, got: %v", err)
	}
}

func TestNotify_TruncatesLongSummary(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inc := testIncident()
	inc.Summary = strings.Repeat("x", maxSummaryLen*2)

	n := New(srv.URL)
	if err := n.Notify(context.Background(), inc); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	blocks := got["blocks"].([]any)
	summary := blocks[4].(map[string]any)
	summaryText := summary["text"].(map[string]any)["text"].(string)
	if len(summaryText) > maxSummaryLen+len("*Summary*\n\n") {
		t.Errorf("summary text len = %d, want truncated to %d plus heading", len(summaryText), maxSummaryLen)
	}
	if !strings.HasSuffix(summaryText, "...") {
		t.Error("truncated summary should end with ellipsis")
	}
}

func TestNotify_WebhookError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := New(srv.URL)
	if err := n.Notify(context.Background(), testIncident()); err == nil {
		t.Fatal("expected error on webhook rejection")
	}
}

func TestActionSummary(t *testing.T) {
	t.Parallel()

	if got := actionSummary(nil); got != "none" {
		t.Errorf("actionSummary(nil) = %q, want none", got)
	}
	actions := []incident.SuggestedAction{
		{Type: incident.ActionBlockIP},
		{Type: incident.ActionCreateTicket},
	}
	if got := actionSummary(actions); got != "block_ip, create_ticket" {
		t.Errorf("actionSummary = %q", got)
	}
}
