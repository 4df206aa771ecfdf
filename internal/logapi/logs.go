package logapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/aegis/internal/incident"
	"github.com/linnemanlabs/aegis/internal/logentry"
	"github.com/linnemanlabs/aegis/internal/triage"
)

// webhookUserID attributes machine-pushed logs with no caller identity.
const webhookUserID = "system-source"

type ingestRequest struct {
	RawText string `json:"rawText"`
	UserID  string `json:"userId"`
}

type ingestResponse struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message,omitempty"`
	Log      *logentry.LogEntry `json:"log"`
	Incident *incident.Incident `json:"incident"`
}

func (a *API) handleIngestLog(w http.ResponseWriter, r *http.Request) {
	a.ingest(w, r, logentry.SourceManual, "")
}

func (a *API) handleIngestWebhook(w http.ResponseWriter, r *http.Request) {
	a.ingest(w, r, logentry.SourceWebhook, webhookUserID)
}

// ingest accepts the log and runs triage. A triage failure is reported in
// the body, not the status code: the log was persisted and the request
// succeeded.
func (a *API) ingest(w http.ResponseWriter, r *http.Request, source logentry.Source, defaultUserID string) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = defaultUserID
	}

	result, err := a.svc.Ingest(r.Context(), req.RawText, req.UserID, source)
	if err != nil {
		if errors.Is(err, triage.ErrEmptyRawText) {
			http.Error(w, `{"error":"rawText must not be empty"}`, http.StatusBadRequest)
			return
		}
		a.logger.Error(r.Context(), err, "log ingestion failed", "source", string(source))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("aegis.log.id", result.Log.ID),
		attribute.Bool("aegis.triage.succeeded", result.TriageSucceeded),
	)

	resp := ingestResponse{
		Success:  true,
		Log:      result.Log,
		Incident: result.Incident,
	}
	if !result.TriageSucceeded {
		resp.Message = "log saved, triage failed: " + result.TriageError
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("aegis.log.id", id))

	result, err := a.svc.Reprocess(r.Context(), id)
	if err != nil {
		if triage.IsNotFound(err) {
			http.Error(w, `{"error":"log entry not found"}`, http.StatusNotFound)
			return
		}
		a.logger.Error(r.Context(), err, "re-triage failed", "log_id", id)
		http.Error(w, `{"error":"re-triage failed"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Success:  true,
		Log:      result.Log,
		Incident: result.Incident,
	})
}

type logIncidentsResponse struct {
	Success   bool                `json:"success"`
	Incidents []incident.Incident `json:"incidents"`
}

// handleLogIncidents returns every assessment ever produced for a log,
// newest first. Re-triage appends rather than replaces, so the history can
// hold several incidents, or none when triage has only ever failed.
func (a *API) handleLogIncidents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("aegis.log.id", id))

	incs, err := a.svc.IncidentsForLog(r.Context(), id)
	if err != nil {
		if triage.IsNotFound(err) {
			http.Error(w, `{"error":"log entry not found"}`, http.StatusNotFound)
			return
		}
		a.logger.Error(r.Context(), err, "incident history read failed", "log_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if incs == nil {
		incs = []incident.Incident{}
	}

	writeJSON(w, http.StatusOK, logIncidentsResponse{Success: true, Incidents: incs})
}

type listResponse struct {
	Success   bool                     `json:"success"`
	TotalLogs int                      `json:"totalLogs"`
	Page      int                      `json:"page"`
	Limit     int                      `json:"limit"`
	Logs      []triage.LogWithIncident `json:"logs"`
}

func (a *API) handleListLogs(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	page, err := a.svc.ListLogs(r.Context(), f)
	if err != nil {
		a.logger.Error(r.Context(), err, "log listing failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Success:   true,
		TotalLogs: page.TotalLogs,
		Page:      page.Page,
		Limit:     page.Limit,
		Logs:      page.Logs,
	})
}

func parseListFilter(r *http.Request) (triage.ListFilter, error) {
	q := r.URL.Query()
	var f triage.ListFilter

	if s := q.Get("source"); s != "" {
		src, err := logentry.ParseSource(s)
		if err != nil {
			return f, errors.New("invalid source filter")
		}
		f.Source = src
	}
	if s := q.Get("severity"); s != "" {
		sev := incident.Severity(s)
		if !sev.Valid() {
			return f, errors.New("invalid severity filter")
		}
		f.Severity = sev
	}
	f.Search = q.Get("search")

	if s := q.Get("startDate"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, errors.New("invalid startDate, want RFC 3339")
		}
		f.Start = &t
	}
	if s := q.Get("endDate"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, errors.New("invalid endDate, want RFC 3339")
		}
		f.End = &t
	}

	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	return f, nil
}
