package triage

import "context"

// Provider is the interface for any structured-completion LLM backend.
// Implementations classify their failures with Recoverable/Fatal so the
// retry controller never inspects transport details.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is a single-shot structured completion: one system
// instruction, one user message, JSON-object output.
type CompletionRequest struct {
	System    string
	User      string
	MaxTokens int
}

// FinishJSONFailed is the finish reason providers report when the model's
// output failed their own structured-output validation. It is the one
// provider-signaled failure classified recoverable.
const FinishJSONFailed = "json_validation_failed"

// CompletionResponse is the provider's answer.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage reports token consumption for a single call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
