// Package incident defines the structured triage assessment model and its
// schema validator. An Incident is append-only: re-triage creates a sibling
// record referencing the same log, it never mutates an existing one.
package incident

import "time"

// Severity is the analyst-facing impact classification.
type Severity string

const (
	SeverityCritical      Severity = "Critical"
	SeverityHigh          Severity = "High"
	SeverityMedium        Severity = "Medium"
	SeverityLow           Severity = "Low"
	SeverityInformational Severity = "Informational"
)

// Severities lists the closed severity enum in descending order of impact.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInformational,
}

// Valid reports whether s is a member of the closed severity enum.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInformational:
		return true
	}
	return false
}

// Status tracks an incident through the analyst workflow.
type Status string

const (
	StatusNew           Status = "New"
	StatusTriaged       Status = "Triaged"
	StatusInvestigating Status = "Investigating"
	StatusContained     Status = "Contained"
	StatusClosed        Status = "Closed"
)

// Valid reports whether s is a member of the closed status enum.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusTriaged, StatusInvestigating, StatusContained, StatusClosed:
		return true
	}
	return false
}

// IndicatorType classifies an extracted indicator of compromise.
type IndicatorType string

const (
	IndicatorIP       IndicatorType = "ip"
	IndicatorDomain   IndicatorType = "domain"
	IndicatorHash     IndicatorType = "hash"
	IndicatorUser     IndicatorType = "user"
	IndicatorFilePath IndicatorType = "file_path"
)

// Valid reports whether t is a member of the closed indicator-type enum.
func (t IndicatorType) Valid() bool {
	switch t {
	case IndicatorIP, IndicatorDomain, IndicatorHash, IndicatorUser, IndicatorFilePath:
		return true
	}
	return false
}

// ActionType classifies a proposed remediation step.
type ActionType string

const (
	ActionBlockIP      ActionType = "block_ip"
	ActionDisableUser  ActionType = "disable_user"
	ActionIsolateHost  ActionType = "isolate_host"
	ActionCreateTicket ActionType = "create_ticket"
)

// Valid reports whether t is a member of the closed action-type enum.
func (t ActionType) Valid() bool {
	switch t {
	case ActionBlockIP, ActionDisableUser, ActionIsolateHost, ActionCreateTicket:
		return true
	}
	return false
}

// DefaultConfidence is applied to indicators that omit a confidence score.
const DefaultConfidence = 75

// Indicator is a typed piece of evidence (IOC) extracted from a log.
type Indicator struct {
	Type       IndicatorType `json:"type"`
	Value      string        `json:"value"`
	Confidence int           `json:"confidence"`
}

// SuggestedAction is a proposed remediation step. KestraFlowID links the
// action to an externally defined workflow when one exists for its type.
type SuggestedAction struct {
	ActionID      string     `json:"actionId"`
	Type          ActionType `json:"type"`
	Target        string     `json:"target"`
	Justification string     `json:"justification"`
	KestraFlowID  string     `json:"kestraFlowId,omitempty"`
}

// Incident is one structured assessment of a log entry. IncidentID is a
// freshly generated UUID distinct from any store-assigned key, and
// LogEntryIDs is bound solely by the lifecycle manager.
type Incident struct {
	IncidentID       string            `json:"incidentId"`
	Title            string            `json:"title"`
	Severity         Severity          `json:"severity"`
	Status           Status            `json:"status"`
	Summary          string            `json:"summary"`
	Indicators       []Indicator       `json:"indicators"`
	SuggestedActions []SuggestedAction `json:"suggestedActions"`
	LogEntryIDs      []string          `json:"logEntryIds"`
	CreatedAt        time.Time         `json:"createdAt"`
}
