package incident

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ValidationError reports a candidate that does not conform to the incident
// schema. It is always recoverable from the caller's perspective: the model
// can be asked again.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid incident candidate: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// candidate mirrors the wire shape the model is asked to produce. A separate
// type from Incident so unknown or forged fields (logEntryIds in particular)
// never leak into the validated result.
type candidate struct {
	Title            string               `json:"title"`
	Severity         string               `json:"severity"`
	Status           string               `json:"status"`
	Summary          string               `json:"summary"`
	Indicators       []candidateIndicator `json:"indicators"`
	SuggestedActions []SuggestedAction    `json:"suggestedActions"`
}

// candidateIndicator keeps confidence as a pointer so "absent" (default 75)
// is distinguishable from an explicit 0.
type candidateIndicator struct {
	Type       IndicatorType `json:"type"`
	Value      string        `json:"value"`
	Confidence *int          `json:"confidence"`
}

// Validate checks a raw candidate object against the incident schema and
// returns a normalized Incident. Enum violations, missing required fields,
// and malformed JSON all yield a *ValidationError.
//
// The returned Incident carries no IncidentID, LogEntryIDs, or CreatedAt;
// those are stamped by the lifecycle manager, never taken from the model.
func Validate(raw json.RawMessage) (*Incident, error) {
	var c candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, invalid("candidate", "not a JSON object: %v", err)
	}

	if strings.TrimSpace(c.Title) == "" {
		return nil, invalid("title", "required")
	}
	if strings.TrimSpace(c.Summary) == "" {
		return nil, invalid("summary", "required")
	}

	sev := Severity(c.Severity)
	if !sev.Valid() {
		return nil, invalid("severity", "%q is not in the closed enum", c.Severity)
	}

	// Status defaults to New when the model omits it.
	st := Status(c.Status)
	if c.Status == "" {
		st = StatusNew
	} else if !st.Valid() {
		return nil, invalid("status", "%q is not in the closed enum", c.Status)
	}

	indicators := make([]Indicator, 0, len(c.Indicators))
	for i, ind := range c.Indicators {
		if !ind.Type.Valid() {
			return nil, invalid(fmt.Sprintf("indicators[%d].type", i), "%q is not in the closed enum", ind.Type)
		}
		if strings.TrimSpace(ind.Value) == "" {
			return nil, invalid(fmt.Sprintf("indicators[%d].value", i), "required")
		}
		conf := DefaultConfidence
		if ind.Confidence != nil {
			conf = *ind.Confidence
		}
		if conf < 0 {
			conf = 0
		}
		if conf > 100 {
			conf = 100
		}
		indicators = append(indicators, Indicator{Type: ind.Type, Value: ind.Value, Confidence: conf})
	}

	actions := make([]SuggestedAction, 0, len(c.SuggestedActions))
	for i, act := range c.SuggestedActions {
		if err := act.Validate(); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return nil, invalid(fmt.Sprintf("suggestedActions[%d].%s", i, verr.Field), "%s", verr.Reason)
			}
			return nil, invalid(fmt.Sprintf("suggestedActions[%d]", i), "%v", err)
		}
		if act.ActionID == "" {
			act.ActionID = uuid.NewString()
		}
		actions = append(actions, act)
	}

	return &Incident{
		Title:            c.Title,
		Severity:         sev,
		Status:           st,
		Summary:          c.Summary,
		Indicators:       indicators,
		SuggestedActions: actions,
	}, nil
}

// Validate checks a suggested action against the closed action-type enum and
// required fields. A missing ActionID is allowed here; callers default it.
func (a *SuggestedAction) Validate() error {
	if !a.Type.Valid() {
		return invalid("type", "%q is not in the closed enum", a.Type)
	}
	if strings.TrimSpace(a.Target) == "" {
		return invalid("target", "required")
	}
	if strings.TrimSpace(a.Justification) == "" {
		return invalid("justification", "required")
	}
	return nil
}
