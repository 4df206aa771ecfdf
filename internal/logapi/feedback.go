package logapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/linnemanlabs/aegis/internal/feedback"
)

// handleFeedback accepts an analyst correction and forwards it to the
// fine-tuning sink. Shape violations are the caller's fault (400); a sink
// rejection is an upstream fault (502).
func (a *API) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if a.sink == nil {
		http.Error(w, `{"error":"feedback not configured"}`, http.StatusNotFound)
		return
	}

	var p feedback.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	p.SubmittedAt = time.Now().UTC()

	if err := p.Validate(); err != nil {
		var verr *feedback.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": verr.Error(),
				"field": verr.Field,
			})
			return
		}
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	if err := a.sink.Submit(r.Context(), &p); err != nil {
		a.logger.Error(r.Context(), err, "feedback submission failed", "incident_id", p.IncidentID)
		http.Error(w, `{"error":"feedback sink rejected submission"}`, http.StatusBadGateway)
		return
	}

	a.logger.Info(r.Context(), "feedback accepted", "incident_id", p.IncidentID, "severity", string(p.Severity))
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}
