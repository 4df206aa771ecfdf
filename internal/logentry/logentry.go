// Package logentry defines the raw ingested log event model.
package logentry

import (
	"fmt"
	"time"
)

// Source identifies the ingestion channel a log entry arrived through.
type Source string

const (
	// SourceManual is analyst-entered text from the dashboard.
	SourceManual Source = "manual"

	// SourceWebhook is machine-pushed data from external systems (SIEM, firewalls).
	SourceWebhook Source = "webhook"

	// SourceAPI is programmatic ingestion through the public API.
	SourceAPI Source = "api"

	// SourceWorkflow is a callback from a remediation workflow execution.
	SourceWorkflow Source = "workflow-callback"
)

// ParseSource validates s against the closed source enum.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceManual, SourceWebhook, SourceAPI, SourceWorkflow:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown log source %q", s)
}

// LogEntry is one ingested raw event. RawText is immutable once created and
// a LogEntry is never deleted by the triage pipeline.
type LogEntry struct {
	ID        string    `json:"id"`
	RawText   string    `json:"rawText"`
	UserID    string    `json:"userId,omitempty"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}
