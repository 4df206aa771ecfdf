package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linnemanlabs/aegis/internal/incident"
	"github.com/linnemanlabs/aegis/internal/remediation"
)

// ResponseTokens bounds the structured completion output.
const ResponseTokens = 2048

// Invoker builds the triage instruction payload, issues the inference call,
// and extracts the candidate structured object from the response. Stateless
// per invocation; it performs no I/O beyond the outbound LLM call.
type Invoker struct {
	provider Provider
}

// NewInvoker creates an invoker backed by the given provider.
func NewInvoker(provider Provider) *Invoker {
	return &Invoker{provider: provider}
}

// InvokeResult is one successful inference: the extracted candidate object,
// the raw textual answer kept for audit, and token usage.
type InvokeResult struct {
	Candidate json.RawMessage
	RawAnswer string
	Usage     Usage
}

// Invoke runs one triage inference for logText. pastContext carries the
// prior incident summary on re-triage and may be empty. Failures come back
// as a classified *Error.
func (inv *Invoker) Invoke(ctx context.Context, logText, pastContext string) (*InvokeResult, error) {
	resp, err := inv.provider.Complete(ctx, &CompletionRequest{
		System:    buildSystemPrompt(),
		User:      buildUserPrompt(logText, pastContext),
		MaxTokens: ResponseTokens,
	})
	if err != nil {
		return nil, err
	}

	if resp.FinishReason == FinishJSONFailed {
		return nil, Recoverable("provider rejected structured output", nil)
	}

	if strings.TrimSpace(resp.Content) == "" {
		return nil, Fatal("empty response", nil)
	}

	candidate, err := extractCandidate(resp.Content)
	if err != nil {
		return nil, Recoverable("no JSON object in response", err)
	}

	return &InvokeResult{
		Candidate: candidate,
		RawAnswer: resp.Content,
		Usage:     resp.Usage,
	}, nil
}

// extractCandidate pulls the first JSON object out of the model's answer,
// tolerating markdown code fences and prose around the object.
func extractCandidate(content string) (json.RawMessage, error) {
	s := strings.TrimSpace(content)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found")
	}
	obj := s[start : end+1]

	if !json.Valid([]byte(obj)) {
		return nil, fmt.Errorf("extracted object is not valid JSON")
	}
	return json.RawMessage(obj), nil
}

// buildSystemPrompt describes the required output shape, the closed enums,
// and the static action-to-flow mapping the model must embed. The mapping is
// owned here, never invented by the model.
func buildSystemPrompt() string {
	var b strings.Builder

	b.WriteString(`You are Aegis, a SOC triage AI. You convert a raw security log or alert into one structured incident assessment.

Respond with a single JSON object and nothing else. Shape:

{
  "title": "<short human-readable incident title>",
  "severity": "<one of: `)
	for i, s := range incident.Severities {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(s))
	}
	b.WriteString(`>",
  "status": "New",
  "summary": "<2-4 sentence analyst summary of what happened and why it matters>",
  "indicators": [
    {"type": "<one of: ip, domain, hash, user, file_path>", "value": "<the indicator>", "confidence": <0-100>}
  ],
  "suggestedActions": [
    {"actionId": "<fresh UUID>", "type": "<one of: block_ip, disable_user, isolate_host, create_ticket>", "target": "<what the action applies to>", "justification": "<why>", "kestraFlowId": "<see mapping below>"}
  ]
}

For kestraFlowId use exactly this mapping by action type:
`)
	fmt.Fprintf(&b, "  block_ip -> %s\n", remediation.FlowBlockIP)
	fmt.Fprintf(&b, "  disable_user -> %s\n", remediation.FlowDisableUser)
	fmt.Fprintf(&b, "  create_ticket -> %s\n", remediation.FlowCreateTicket)
	b.WriteString(`  isolate_host -> omit kestraFlowId (no automated flow)

Extract only indicators present in the log. Suggest actions proportionate to the severity. Do not include any other fields.`)

	return b.String()
}

// buildUserPrompt wraps the log text, appending prior-incident context on
// re-triage so the model can refine rather than repeat its assessment.
func buildUserPrompt(logText, pastContext string) string {
	if pastContext == "" {
		return fmt.Sprintf("Triage this log:\n\n%s", logText)
	}
	return fmt.Sprintf("Triage this log:\n\n%s\n\nA previous assessment of this log concluded:\n%s\n\nRe-evaluate from scratch; the previous assessment may be wrong.", logText, pastContext)
}
