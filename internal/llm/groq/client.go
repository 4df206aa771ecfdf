// Package groq implements the triage.Provider interface against the Groq
// OpenAI-compatible chat completions API.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/aegis/internal/triage"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

// DefaultModel is used when no model is configured.
const DefaultModel = "llama-3.3-70b-versatile"

// Client calls the Groq chat completions endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Groq client with the given API key and model name.
func New(apiKey, model string, opts ...Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type request struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type choice struct {
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type response struct {
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

// Complete sends a single structured completion request. Failures are
// classified for the retry controller: transport and API errors are fatal,
// except the provider's rejection of its own structured output
// (json_validate_failed), which is recoverable.
func (c *Client) Complete(ctx context.Context, req *triage.CompletionRequest) (*triage.CompletionResponse, error) {
	payload := request{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens:      req.MaxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, triage.Fatal("marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, triage.Fatal("create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, triage.Fatal("network", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, triage.Fatal("read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var out response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, triage.Fatal("unmarshal response", err)
	}

	if len(out.Choices) == 0 {
		return nil, triage.Fatal("empty response", fmt.Errorf("no choices returned"))
	}

	ch := out.Choices[0]
	return &triage.CompletionResponse{
		Content:      ch.Message.Content,
		FinishReason: ch.FinishReason,
		Usage: triage.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
	}, nil
}

// codeJSONValidateFailed is Groq's error code when JSON mode could not
// produce a valid object. Unlike other API errors it is retryable: the next
// generation may well validate.
const codeJSONValidateFailed = "json_validate_failed"

type apiErrorBody struct {
	Error struct {
		Message          string `json:"message"`
		Type             string `json:"type"`
		Code             string `json:"code"`
		FailedGeneration string `json:"failed_generation"`
	} `json:"error"`
}

func classifyStatus(status int, body []byte) error {
	var ae apiErrorBody
	if json.Unmarshal(body, &ae) == nil && ae.Error.Code == codeJSONValidateFailed {
		cause := fmt.Errorf("groq rejected generated JSON: %s", ae.Error.Message)
		if fg := ae.Error.FailedGeneration; fg != "" {
			cause = fmt.Errorf("groq rejected generated JSON: %s; failed generation: %s", ae.Error.Message, fg)
		}
		return triage.Recoverable("provider rejected structured output", cause)
	}

	err := fmt.Errorf("groq api error %d: %s", status, body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return triage.Fatal("authentication", err)
	case http.StatusTooManyRequests:
		return triage.Fatal("rate_limit", err)
	default:
		return triage.Fatal("api_error", err)
	}
}
