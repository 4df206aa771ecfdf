// Package logapi exposes the HTTP API: log ingestion, re-triage, the
// paginated listing, the live SSE stream, feedback submission, and
// remediation dispatch.
package logapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/aegis/internal/feedback"
	"github.com/linnemanlabs/aegis/internal/incident"
	"github.com/linnemanlabs/aegis/internal/logentry"
	"github.com/linnemanlabs/aegis/internal/remediation"
	"github.com/linnemanlabs/aegis/internal/stream"
	"github.com/linnemanlabs/aegis/internal/triage"
)

// TriageService defines the business operations logapi needs.
type TriageService interface {
	Ingest(ctx context.Context, rawText, userID string, source logentry.Source) (*triage.IngestResult, error)
	Reprocess(ctx context.Context, logID string) (*triage.IngestResult, error)
	ListLogs(ctx context.Context, f triage.ListFilter) (*triage.LogPage, error)
	IncidentsForLog(ctx context.Context, logID string) ([]incident.Incident, error)
}

// Remediator dispatches flows and reads back execution state.
type Remediator interface {
	Execute(ctx context.Context, flowID string, payload map[string]any) (*remediation.Execution, error)
	RecentExecutions(ctx context.Context, flowIDs []string) ([]remediation.Execution, error)
}

// API holds dependencies for HTTP handlers. remediator, sink, and hub are
// optional; their endpoints degrade when absent.
type API struct {
	logger     log.Logger
	svc        TriageService
	remediator Remediator
	sink       feedback.Sink
	hub        *stream.Hub

	// webhookMW guards the machine ingestion endpoint; nil means open.
	webhookMW func(http.Handler) http.Handler
}

// Option configures the API.
type Option func(*API)

// WithRemediator enables the remediation endpoints.
func WithRemediator(r Remediator) Option {
	return func(a *API) { a.remediator = r }
}

// WithFeedbackSink enables the feedback endpoint.
func WithFeedbackSink(s feedback.Sink) Option {
	return func(a *API) { a.sink = s }
}

// WithStreamHub enables the SSE stream endpoint.
func WithStreamHub(h *stream.Hub) Option {
	return func(a *API) { a.hub = h }
}

// WithWebhookAuth guards POST /logs/webhook with the given middleware.
func WithWebhookAuth(mw func(http.Handler) http.Handler) Option {
	return func(a *API) { a.webhookMW = mw }
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, opts ...Option) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	a := &API{
		logger: logger,
		svc:    svc,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/logs", a.handleIngestLog)
		if a.webhookMW != nil {
			r.With(a.webhookMW).Post("/logs/webhook", a.handleIngestWebhook)
		} else {
			r.Post("/logs/webhook", a.handleIngestWebhook)
		}
		r.Post("/logs/{id}/reprocess", a.handleReprocess)
		r.Get("/logs/{id}/incidents", a.handleLogIncidents)
		r.Get("/logs", a.handleListLogs)
		r.Get("/logs/stream", a.handleStream)
		r.Post("/feedback", a.handleFeedback)
		r.Post("/remediation/execute", a.handleRemediationExecute)
		r.Get("/remediation/status", a.handleRemediationStatus)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
