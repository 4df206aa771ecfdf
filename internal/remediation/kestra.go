// Package remediation dispatches analyst-approved actions to Kestra flows
// and reads back recent execution state for the dashboard.
package remediation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"
)

const (
	httpTimeout = 15 * time.Second

	// perFlowFetch is how many executions each single-flow query requests.
	perFlowFetch = 10

	// StatusLimit bounds the merged status result.
	StatusLimit = 10
)

// DispatchError reports a failed flow execution request. It is isolated per
// call and never invalidates the incident the action came from.
type DispatchError struct {
	FlowID string
	Status int
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("dispatch %s: kestra returned %d: %v", e.FlowID, e.Status, e.Err)
	}
	return fmt.Sprintf("dispatch %s: %v", e.FlowID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Execution is one triggered or observed flow execution.
type Execution struct {
	ExecutionID string    `json:"executionId"`
	FlowID      string    `json:"flowId"`
	FlowURI     string    `json:"flowUri,omitempty"`
	Status      string    `json:"status,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
}

// Client talks to the Kestra executions API with basic auth. The tenant ID
// is part of the URI path on Kestra OSS v0.23+.
type Client struct {
	baseURL    string
	tenantID   string
	username   string
	password   string
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Kestra client. baseURL points at the API root, e.g.
// http://localhost:8080/api/v1.
func New(baseURL, tenantID, username, password string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	if tenantID == "" {
		tenantID = "main"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tenantID:   tenantID,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

type executionResponse struct {
	ID string `json:"id"`
}

// Execute triggers a flow execution. flowID is namespace-qualified, e.g.
// "system.block-ip". Payload keys are sent as individual multipart form
// fields, which is the input encoding Kestra expects.
func (c *Client) Execute(ctx context.Context, flowID string, payload map[string]any) (*Execution, error) {
	namespace, simpleID, ok := splitFlowID(flowID)
	if !ok {
		return nil, &DispatchError{FlowID: flowID, Err: fmt.Errorf("flow id must be namespace-qualified")}
	}

	executionURI := fmt.Sprintf("%s/%s/executions/%s/%s", c.baseURL, c.tenantID, namespace, simpleID)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range payload {
		field, err := formValue(value)
		if err != nil {
			return nil, &DispatchError{FlowID: flowID, Err: fmt.Errorf("encode payload field %s: %w", key, err)}
		}
		if err := mw.WriteField(key, field); err != nil {
			return nil, &DispatchError{FlowID: flowID, Err: fmt.Errorf("write payload field %s: %w", key, err)}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, &DispatchError{FlowID: flowID, Err: fmt.Errorf("close multipart body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, executionURI, &buf)
	if err != nil {
		return nil, &DispatchError{FlowID: flowID, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: baseURL is from trusted config, not user input
	if err != nil {
		return nil, &DispatchError{FlowID: flowID, Err: fmt.Errorf("kestra unreachable: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &DispatchError{FlowID: flowID, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &DispatchError{FlowID: flowID, Status: resp.StatusCode, Err: fmt.Errorf("authentication failed, check kestra credentials")}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &DispatchError{FlowID: flowID, Status: resp.StatusCode, Err: fmt.Errorf("flow not deployed in namespace %q", namespace)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &DispatchError{FlowID: flowID, Status: resp.StatusCode, Err: fmt.Errorf("%s", truncate(string(body), 512))}
	}

	var er executionResponse
	if err := json.Unmarshal(body, &er); err != nil || er.ID == "" {
		return nil, &DispatchError{FlowID: flowID, Status: resp.StatusCode, Err: fmt.Errorf("no execution id in response")}
	}

	return &Execution{
		ExecutionID: er.ID,
		FlowID:      flowID,
		FlowURI:     executionURI,
		StartedAt:   time.Now().UTC(),
	}, nil
}

type kestraExecution struct {
	ID        string `json:"id"`
	FlowID    string `json:"flowId"`
	Namespace string `json:"namespace"`
	State     struct {
		Current   string    `json:"current"`
		Duration  string    `json:"duration"`
		StartDate time.Time `json:"startDate"`
	} `json:"state"`
}

type kestraSearchResponse struct {
	Results []kestraExecution `json:"results"`
}

// RecentExecutions fans out one query per known flow (Kestra only supports
// single-flow searches), merges the results by start time descending, and
// truncates to StatusLimit. A single flow's query failure is logged and
// skipped so one broken flow doesn't blank the whole status widget.
func (c *Client) RecentExecutions(ctx context.Context, flowIDs []string) ([]Execution, error) {
	lists := make([][]Execution, len(flowIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, flowID := range flowIDs {
		g.Go(func() error {
			execs, err := c.executionsForFlow(gctx, flowID)
			if err != nil {
				c.logger.Warn(gctx, "kestra flow status query failed", "flow_id", flowID, "error", err)
				return nil
			}
			lists[i] = execs
			return nil
		})
	}
	_ = g.Wait() // per-flow errors are swallowed above

	return MergeExecutions(lists, StatusLimit), nil
}

func (c *Client) executionsForFlow(ctx context.Context, flowID string) ([]Execution, error) {
	namespace, simpleID, ok := splitFlowID(flowID)
	if !ok {
		return nil, fmt.Errorf("flow id %q must be namespace-qualified", flowID)
	}

	q := url.Values{}
	q.Set("namespace", namespace)
	q.Set("flowId", simpleID)
	q.Set("size", strconv.Itoa(perFlowFetch))
	q.Set("sort", "startDate")
	q.Set("order", "DESC")

	searchURI := fmt.Sprintf("%s/%s/executions?%s", c.baseURL, c.tenantID, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURI, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: baseURL is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("kestra unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kestra returned %d: %s", resp.StatusCode, truncate(string(body), 512))
	}

	var sr kestraSearchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	execs := make([]Execution, 0, len(sr.Results))
	for _, ke := range sr.Results {
		execs = append(execs, Execution{
			ExecutionID: ke.ID,
			FlowID:      ke.Namespace + "." + ke.FlowID,
			Status:      ke.State.Current,
			Duration:    formatDuration(ke.State.Duration),
			StartedAt:   ke.State.StartDate,
		})
	}
	return execs, nil
}

// MergeExecutions merges per-flow execution lists into one list ordered by
// start time descending, truncated to limit.
func MergeExecutions(lists [][]Execution, limit int) []Execution {
	var merged []Execution
	for _, l := range lists {
		merged = append(merged, l...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].StartedAt.After(merged[j].StartedAt)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func splitFlowID(flowID string) (namespace, simpleID string, ok bool) {
	namespace, simpleID, found := strings.Cut(flowID, ".")
	if !found || namespace == "" || simpleID == "" {
		return "", "", false
	}
	return namespace, simpleID, true
}

func formValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case nil:
		return "", nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// isoDurationRe matches Kestra's ISO-8601 second durations, e.g. "PT16.26S".
var isoDurationRe = regexp.MustCompile(`PT([\d.]+)S`)

// formatDuration converts a Kestra "PTxx.xS" duration into a plain "xx.xs"
// string for display. Unparseable input yields "0.0s".
func formatDuration(iso string) string {
	m := isoDurationRe.FindStringSubmatch(iso)
	if m == nil {
		return "0.0s"
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "0.0s"
	}
	return fmt.Sprintf("%.1fs", secs)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
