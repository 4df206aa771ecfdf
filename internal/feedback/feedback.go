// Package feedback validates analyst corrections on incident assessments and
// forwards them to a fine-tuning pipeline.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linnemanlabs/aegis/internal/incident"
)

// MinJustificationLen is the minimum length of the analyst's free-text
// justification. Shorter submissions carry no training signal.
const MinJustificationLen = 10

// Payload is one analyst correction: the incident it applies to, the
// corrected severity and action set, and why.
type Payload struct {
	IncidentID       string                     `json:"incidentId"`
	Severity         incident.Severity          `json:"severity"`
	SuggestedActions []incident.SuggestedAction `json:"suggestedActions"`
	Justification    string                     `json:"justification"`
	SubmittedAt      time.Time                  `json:"submittedAt"`
}

// ValidationError reports a payload that fails submission rules.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid feedback: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the payload against submission rules. It does not verify
// that the referenced incident exists; feedback on a deleted or foreign
// incident is still useful training signal.
func (p *Payload) Validate() error {
	if _, err := uuid.Parse(p.IncidentID); err != nil {
		return invalid("incidentId", "must be a UUID: %v", err)
	}
	if !p.Severity.Valid() {
		return invalid("severity", "%q is not in the closed enum", p.Severity)
	}
	for i := range p.SuggestedActions {
		if err := p.SuggestedActions[i].Validate(); err != nil {
			return invalid(fmt.Sprintf("suggestedActions[%d]", i), "%v", err)
		}
	}
	if len(strings.TrimSpace(p.Justification)) < MinJustificationLen {
		return invalid("justification", "must be at least %d characters", MinJustificationLen)
	}
	return nil
}

// Sink receives validated feedback payloads.
type Sink interface {
	Submit(ctx context.Context, p *Payload) error
}
