package logapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/aegis/internal/remediation"
)

type executeRequest struct {
	FlowID  string         `json:"flowId"`
	Payload map[string]any `json:"payload"`
}

type executeResponse struct {
	Success   bool                   `json:"success"`
	Execution *remediation.Execution `json:"execution"`
}

// handleRemediationExecute dispatches one approved action to its Kestra
// flow. Only flows in the static table are dispatchable; the model never
// gets to name an arbitrary flow.
func (a *API) handleRemediationExecute(w http.ResponseWriter, r *http.Request) {
	if a.remediator == nil {
		http.Error(w, `{"error":"remediation not configured"}`, http.StatusNotFound)
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.FlowID == "" {
		http.Error(w, `{"error":"flowId is required"}`, http.StatusBadRequest)
		return
	}
	if !slices.Contains(remediation.KnownFlows(), req.FlowID) {
		http.Error(w, `{"error":"unknown flowId"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("aegis.flow.id", req.FlowID))

	exec, err := a.remediator.Execute(r.Context(), req.FlowID, req.Payload)
	if err != nil {
		a.logger.Error(r.Context(), err, "remediation dispatch failed", "flow_id", req.FlowID)
		var derr *remediation.DispatchError
		if errors.As(err, &derr) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":  derr.Error(),
				"flowId": derr.FlowID,
			})
			return
		}
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	a.logger.Info(r.Context(), "remediation dispatched",
		"flow_id", req.FlowID,
		"execution_id", exec.ExecutionID,
	)
	writeJSON(w, http.StatusOK, executeResponse{Success: true, Execution: exec})
}

type statusResponse struct {
	Success    bool                    `json:"success"`
	Executions []remediation.Execution `json:"executions"`
}

// handleRemediationStatus returns the merged recent executions across the
// known flow table.
func (a *API) handleRemediationStatus(w http.ResponseWriter, r *http.Request) {
	if a.remediator == nil {
		http.Error(w, `{"error":"remediation not configured"}`, http.StatusNotFound)
		return
	}

	execs, err := a.remediator.RecentExecutions(r.Context(), remediation.KnownFlows())
	if err != nil {
		a.logger.Error(r.Context(), err, "remediation status query failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusBadGateway)
		return
	}
	if execs == nil {
		execs = []remediation.Execution{}
	}

	writeJSON(w, http.StatusOK, statusResponse{Success: true, Executions: execs})
}
