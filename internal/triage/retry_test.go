package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/go-core/log"
)

const goodAnswer = `{
	"title": "Suspicious login burst",
	"severity": "High",
	"status": "New",
	"summary": "Repeated SSH failures from one IP followed by a success.",
	"indicators": [{"type": "ip", "value": "203.0.113.7", "confidence": 85}],
	"suggestedActions": [{
		"actionId": "4f5a1f1e-8d3a-4b44-9a3e-111111111111",
		"type": "block_ip",
		"target": "203.0.113.7",
		"justification": "Brute force source.",
		"kestraFlowId": "system.block-ip"
	}]
}`

// mockProvider returns scripted responses/errors in call order.
type mockProvider struct {
	mu    sync.Mutex
	calls int
	resps []*CompletionResponse
	errs  []error
}

func (m *mockProvider) Complete(_ context.Context, _ *CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.resps) {
		return m.resps[i], nil
	}
	return nil, Fatal("unexpected extra call", nil)
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func textResp(content string) *CompletionResponse {
	return &CompletionResponse{
		Content:      content,
		FinishReason: "stop",
		Usage:        Usage{InputTokens: 100, OutputTokens: 50},
	}
}

func newTestController(p Provider, hooks Hooks) *Controller {
	c := NewController(NewInvoker(p), log.Nop(), hooks)
	c.delay = time.Millisecond // keep tests fast
	return c
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	p := &mockProvider{resps: []*CompletionResponse{textResp(goodAnswer)}}
	c := newTestController(p, Hooks{})

	outcome, err := c.Run(context.Background(), "failed login x50", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", outcome.Attempts)
	}
	if outcome.Incident.Title != "Suspicious login burst" {
		t.Errorf("title = %q", outcome.Incident.Title)
	}
	if p.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", p.callCount())
	}
}

func TestRun_RecoverableThenSuccess(t *testing.T) {
	t.Parallel()

	p := &mockProvider{resps: []*CompletionResponse{
		textResp(`this is not json at all`),
		textResp(goodAnswer),
	}}
	c := newTestController(p, Hooks{})

	outcome, err := c.Run(context.Background(), "failed login x50", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", outcome.Attempts)
	}
	if p.callCount() != 2 {
		t.Errorf("provider calls = %d, want 2", p.callCount())
	}
}

func TestRun_SchemaRejectionIsRecoverable(t *testing.T) {
	t.Parallel()

	// Syntactically valid JSON that fails the schema (bad severity), then good.
	bad := `{"title":"x","severity":"Extreme","summary":"y"}`
	p := &mockProvider{resps: []*CompletionResponse{textResp(bad), textResp(goodAnswer)}}
	c := newTestController(p, Hooks{})

	outcome, err := c.Run(context.Background(), "log text", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", outcome.Attempts)
	}
}

func TestRun_ExhaustsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	p := &mockProvider{resps: []*CompletionResponse{
		textResp(`garbage`),
		textResp(`more garbage`),
		textResp(goodAnswer), // must never be reached
	}}

	var outcomes []string
	c := newTestController(p, Hooks{
		OnOutcome: func(outcome string, _ int, _ float64) {
			outcomes = append(outcomes, outcome)
		},
	})

	_, err := c.Run(context.Background(), "log text", "")
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if got := p.callCount(); got != MaxAttempts {
		t.Errorf("provider calls = %d, want exactly %d", got, MaxAttempts)
	}
	if len(outcomes) != 1 || outcomes[0] != "exhausted" {
		t.Errorf("outcomes = %v, want [exhausted]", outcomes)
	}
}

func TestRun_FatalStopsImmediately(t *testing.T) {
	t.Parallel()

	p := &mockProvider{errs: []error{Fatal("authentication", errors.New("401"))}}

	var outcomes []string
	c := newTestController(p, Hooks{
		OnOutcome: func(outcome string, _ int, _ float64) {
			outcomes = append(outcomes, outcome)
		},
	})

	_, err := c.Run(context.Background(), "log text", "")
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if got := p.callCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry on fatal)", got)
	}
	if len(outcomes) != 1 || outcomes[0] != "fatal" {
		t.Errorf("outcomes = %v, want [fatal]", outcomes)
	}
}

func TestRun_EmptyResponseIsFatal(t *testing.T) {
	t.Parallel()

	p := &mockProvider{resps: []*CompletionResponse{textResp("   ")}}
	c := newTestController(p, Hooks{})

	_, err := c.Run(context.Background(), "log text", "")
	if err == nil {
		t.Fatal("expected error for empty response")
	}
	if got := p.callCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestRun_ProviderJSONFailureIsRecoverable(t *testing.T) {
	t.Parallel()

	p := &mockProvider{resps: []*CompletionResponse{
		{Content: "partial", FinishReason: FinishJSONFailed},
		textResp(goodAnswer),
	}}
	c := newTestController(p, Hooks{})

	outcome, err := c.Run(context.Background(), "log text", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", outcome.Attempts)
	}
}

func TestRun_ReportsLLMCallUsage(t *testing.T) {
	t.Parallel()

	p := &mockProvider{resps: []*CompletionResponse{textResp(goodAnswer)}}

	var gotUsage Usage
	c := newTestController(p, Hooks{
		OnLLMCall: func(usage Usage, _ float64) { gotUsage = usage },
	})

	if _, err := c.Run(context.Background(), "log text", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotUsage.InputTokens != 100 || gotUsage.OutputTokens != 50 {
		t.Errorf("usage = %+v, want 100/50", gotUsage)
	}
}

func TestRun_CreatesSpans(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	p := &mockProvider{resps: []*CompletionResponse{
		textResp(`not json`),
		textResp(goodAnswer),
	}}
	c := newTestController(p, Hooks{})

	if _, err := c.Run(context.Background(), "failed login x50", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	spans := exporter.GetSpans()
	counts := make(map[string]int)
	for _, s := range spans {
		counts[s.Name]++
	}
	if counts["triage.run"] != 1 {
		t.Errorf("triage.run spans = %d, want 1", counts["triage.run"])
	}
	if counts["llm.call"] != 2 {
		t.Errorf("llm.call spans = %d, want 2", counts["llm.call"])
	}

	attemptSeen := make(map[int64]bool)
	for _, s := range spans {
		if s.Name != "llm.call" {
			continue
		}
		attrs := make(map[string]any)
		for _, a := range s.Attributes {
			attrs[string(a.Key)] = a.Value.AsInterface()
		}
		if v, ok := attrs["gen_ai.operation.name"]; !ok || v != "llm.call" {
			t.Errorf("llm.call span missing gen_ai.operation.name=llm.call, got %v", v)
		}
		if v, ok := attrs["aegis.triage.attempt"].(int64); ok {
			attemptSeen[v] = true
		}
	}
	if !attemptSeen[1] || !attemptSeen[2] {
		t.Errorf("attempt attributes = %v, want both 1 and 2", attemptSeen)
	}

	for _, s := range spans {
		if s.Name != "triage.run" {
			continue
		}
		attrs := make(map[string]any)
		for _, a := range s.Attributes {
			attrs[string(a.Key)] = a.Value.AsInterface()
		}
		if v, ok := attrs["aegis.triage.attempts"]; !ok || v != int64(2) {
			t.Errorf("triage.run attempts attribute = %v, want 2", v)
		}
	}
}

func TestExtractCandidate_StripsCodeFences(t *testing.T) {
	t.Parallel()

	content := "```json\n{\"title\":\"x\"}\n```"
	raw, err := extractCandidate(content)
	if err != nil {
		t.Fatalf("extractCandidate: %v", err)
	}
	if string(raw) != `{"title":"x"}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestExtractCandidate_TrailingProse(t *testing.T) {
	t.Parallel()

	content := `Here is the assessment: {"title":"x"} Let me know if you need more.`
	raw, err := extractCandidate(content)
	if err != nil {
		t.Fatalf("extractCandidate: %v", err)
	}
	if string(raw) != `{"title":"x"}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestExtractCandidate_NoObject(t *testing.T) {
	t.Parallel()

	if _, err := extractCandidate("no object here"); err == nil {
		t.Fatal("expected error when no JSON object present")
	}
}
