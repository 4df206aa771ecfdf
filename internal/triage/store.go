package triage

import (
	"context"
	"time"

	"github.com/linnemanlabs/aegis/internal/incident"
	"github.com/linnemanlabs/aegis/internal/logentry"
)

// ListFilter narrows the paginated log listing. Zero values mean "no
// filter". Severity and Search match against each log's most recent
// incident in addition to the log itself.
type ListFilter struct {
	Source   logentry.Source
	Severity incident.Severity
	Search   string
	Start    *time.Time
	End      *time.Time
	Page     int
	Limit    int
}

// LogWithIncident pairs a log entry with its most recent incident, if any.
// "Most recent" is by incident creation time: incidents are an append-only
// audit trail, so the latest sibling is the current assessment.
type LogWithIncident struct {
	Log      logentry.LogEntry  `json:"log"`
	Incident *incident.Incident `json:"incident,omitempty"`
}

// LogPage is one page of the filtered log listing.
type LogPage struct {
	TotalLogs int               `json:"totalLogs"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
	Logs      []LogWithIncident `json:"logs"`
}

// Store is the persistence interface for log entries and incidents. Each
// write is independently atomic; the (log, incident) pair is deliberately
// not transactional, since an orphaned log is re-triageable.
type Store interface {
	CreateLog(ctx context.Context, le *logentry.LogEntry) error
	GetLog(ctx context.Context, id string) (*logentry.LogEntry, bool, error)
	ListLogs(ctx context.Context, f ListFilter) (*LogPage, error)

	CreateIncident(ctx context.Context, inc *incident.Incident) error
	IncidentsForLog(ctx context.Context, logID string) ([]incident.Incident, error)
}
