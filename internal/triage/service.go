package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/aegis/internal/incident"
	"github.com/linnemanlabs/aegis/internal/logentry"
	"github.com/linnemanlabs/go-core/log"
)

// Notifier pushes a newly created incident to an external channel (Slack).
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, inc *incident.Incident) error
}

// Publisher fans a newly inserted log entry out to live stream subscribers.
type Publisher interface {
	Publish(le *logentry.LogEntry)
}

// IngestResult is the outcome of one ingestion or re-triage request. The
// log is always present; Incident is nil when triage failed, which is still
// a successful ingestion from the caller's point of view.
type IngestResult struct {
	Log             *logentry.LogEntry
	Incident        *incident.Incident
	TriageSucceeded bool
	TriageError     string
}

// Service is the business boundary for the triage pipeline: it owns the
// persist-log-first ordering, the soft-failure policy on ingestion, and the
// hard-failure policy on explicit re-triage.
type Service struct {
	store      Store
	controller *Controller
	lifecycle  *Lifecycle
	logger     log.Logger
	metrics    *Metrics
	notifier   Notifier
	publisher  Publisher
}

// NewService creates the triage service. notifier and publisher may be nil.
func NewService(store Store, controller *Controller, lifecycle *Lifecycle, logger log.Logger, metrics *Metrics, notifier Notifier, publisher Publisher) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:      store,
		controller: controller,
		lifecycle:  lifecycle,
		logger:     logger,
		metrics:    metrics,
		notifier:   notifier,
		publisher:  publisher,
	}
}

// Ingest persists the raw text as a LogEntry and then attempts triage.
// The log write must succeed before any triage attempt; a triage failure
// (or an incident-save failure) never fails the ingestion: the log exists
// and is re-triageable later.
func (s *Service) Ingest(ctx context.Context, rawText, userID string, source logentry.Source) (*IngestResult, error) {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return nil, ErrEmptyRawText
	}

	le := &logentry.LogEntry{
		ID:        ulid.Make().String(),
		RawText:   rawText,
		UserID:    userID,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateLog(ctx, le); err != nil {
		return nil, fmt.Errorf("create log entry: %w", err)
	}

	if s.publisher != nil {
		s.publisher.Publish(le)
	}

	L := s.logger.With("log_id", le.ID, "source", string(source))

	result := &IngestResult{Log: le}

	outcome, err := s.controller.Run(ctx, le.RawText, "")
	if err != nil {
		result.TriageError = err.Error()
		s.countIngest(source, false)
		// Fatal provider failures are logged distinctly for operators even
		// though the caller sees the same soft "accepted, not triaged".
		if ClassOf(err) == ClassFatal {
			L.Error(ctx, err, "triage failed with fatal error")
		} else {
			L.Warn(ctx, "triage failed after retries", "error", err)
		}
		return result, nil
	}

	persisted, err := s.lifecycle.FinalizeNew(ctx, outcome.Incident, le.ID)
	if err != nil {
		result.TriageError = err.Error()
		s.countIngest(source, false)
		L.Error(ctx, err, "incident save failed after successful triage")
		return result, nil
	}

	result.Incident = persisted
	result.TriageSucceeded = true
	s.countIngest(source, true)
	s.notify(ctx, persisted)

	L.Info(ctx, "log triaged",
		"incident_id", persisted.IncidentID,
		"severity", string(persisted.Severity),
		"attempts", outcome.Attempts,
	)
	return result, nil
}

// Reprocess re-runs triage on an existing log, producing a new sibling
// incident and leaving every prior incident untouched. Unlike ingestion,
// failures here are hard errors: re-triage is an explicit analyst action
// expected to surface its outcome.
func (s *Service) Reprocess(ctx context.Context, logID string) (*IngestResult, error) {
	le, ok, err := s.store.GetLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("get log entry: %w", err)
	}
	if !ok {
		return nil, ErrLogNotFound
	}

	pastContext := s.priorContext(ctx, logID)

	outcome, err := s.controller.Run(ctx, le.RawText, pastContext)
	if err != nil {
		s.countRetriage(false)
		return nil, fmt.Errorf("re-triage: %w", err)
	}

	persisted, err := s.lifecycle.FinalizeRetriage(ctx, outcome.Incident, le.ID)
	if err != nil {
		s.countRetriage(false)
		return nil, err
	}

	s.countRetriage(true)
	s.notify(ctx, persisted)

	s.logger.Info(ctx, "log re-triaged",
		"log_id", le.ID,
		"incident_id", persisted.IncidentID,
		"severity", string(persisted.Severity),
		"attempts", outcome.Attempts,
	)

	return &IngestResult{Log: le, Incident: persisted, TriageSucceeded: true}, nil
}

// GetLog retrieves a log entry by ID.
func (s *Service) GetLog(ctx context.Context, id string) (*logentry.LogEntry, bool, error) {
	return s.store.GetLog(ctx, id)
}

// IncidentsForLog returns the full append-only assessment history for a log,
// newest first. The log must exist; its history may legitimately be empty
// when every triage attempt failed.
func (s *Service) IncidentsForLog(ctx context.Context, logID string) ([]incident.Incident, error) {
	_, ok, err := s.GetLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("get log entry: %w", err)
	}
	if !ok {
		return nil, ErrLogNotFound
	}
	return s.store.IncidentsForLog(ctx, logID)
}

// ListLogs returns the filtered, paginated listing with each log's most
// recent incident attached.
func (s *Service) ListLogs(ctx context.Context, f ListFilter) (*LogPage, error) {
	return s.store.ListLogs(ctx, f)
}

// priorContext summarizes the most recent existing incident for re-triage
// context. Failures here are non-fatal; re-triage proceeds without context.
func (s *Service) priorContext(ctx context.Context, logID string) string {
	incs, err := s.store.IncidentsForLog(ctx, logID)
	if err != nil {
		s.logger.Warn(ctx, "failed to load prior incidents for re-triage context", "log_id", logID, "error", err)
		return ""
	}
	if len(incs) == 0 {
		return ""
	}
	latest := incs[0]
	for _, inc := range incs[1:] {
		if inc.CreatedAt.After(latest.CreatedAt) {
			latest = inc
		}
	}
	return fmt.Sprintf("%s (severity %s): %s", latest.Title, latest.Severity, latest.Summary)
}

// notify fires the incident notification without blocking or failing the
// request. The request context may be cancelled as soon as the response is
// written, so the send detaches from it.
func (s *Service) notify(ctx context.Context, inc *incident.Incident) {
	if s.notifier == nil {
		return
	}
	if inc.Severity != incident.SeverityCritical && inc.Severity != incident.SeverityHigh {
		return
	}
	go func(ctx context.Context) {
		if err := s.notifier.Notify(ctx, inc); err != nil {
			s.logger.Warn(ctx, "incident notification failed", "incident_id", inc.IncidentID, "error", err)
		}
	}(context.WithoutCancel(ctx))
}

func (s *Service) countIngest(source logentry.Source, triaged bool) {
	if s.metrics == nil {
		return
	}
	outcome := "untriaged"
	if triaged {
		outcome = "triaged"
	}
	s.metrics.IngestsTotal.WithLabelValues(string(source), outcome).Inc()
}

func (s *Service) countRetriage(success bool) {
	if s.metrics == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "success"
	}
	s.metrics.RetriagesTotal.WithLabelValues(outcome).Inc()
}

// IsNotFound reports whether err is the missing-log error, for handlers
// mapping it to 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLogNotFound)
}
