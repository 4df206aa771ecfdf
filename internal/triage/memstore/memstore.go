// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/linnemanlabs/aegis/internal/incident"
	"github.com/linnemanlabs/aegis/internal/logentry"
	"github.com/linnemanlabs/aegis/internal/triage"
)

// Store holds log entries and incidents in memory. Suitable for dev/testing.
type Store struct {
	mu        sync.RWMutex
	logs      map[string]*logentry.LogEntry
	logOrder  []string // insertion order, newest appended last
	incidents map[string]*incident.Incident
	byLog     map[string][]string // log ID -> incident IDs, append order
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		logs:      make(map[string]*logentry.LogEntry),
		incidents: make(map[string]*incident.Incident),
		byLog:     make(map[string][]string),
	}
}

// CreateLog stores a copy of the log entry.
func (s *Store) CreateLog(_ context.Context, le *logentry.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *le
	s.logs[le.ID] = &cp
	s.logOrder = append(s.logOrder, le.ID)
	return nil
}

// GetLog retrieves a log entry by ID. Returns a copy.
func (s *Store) GetLog(_ context.Context, id string) (*logentry.LogEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	le, ok := s.logs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *le
	return &cp, true, nil
}

// CreateIncident stores a copy of the incident and indexes it per log.
func (s *Store) CreateIncident(_ context.Context, inc *incident.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inc
	s.incidents[inc.IncidentID] = &cp
	for _, logID := range inc.LogEntryIDs {
		s.byLog[logID] = append(s.byLog[logID], inc.IncidentID)
	}
	return nil
}

// IncidentsForLog returns copies of all incidents referencing logID, newest
// first.
func (s *Store) IncidentsForLog(_ context.Context, logID string) ([]incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incidentsForLogLocked(logID), nil
}

func (s *Store) incidentsForLogLocked(logID string) []incident.Incident {
	ids := s.byLog[logID]
	out := make([]incident.Incident, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.incidents[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ListLogs filters and paginates logs, newest first, attaching each log's
// most recent incident.
func (s *Store) ListLogs(_ context.Context, f triage.ListFilter) (*triage.LogPage, error) {
	page, limit := normalizePage(f.Page, f.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Non-nil so an empty page serializes as [], matching the SQL store.
	matched := make([]triage.LogWithIncident, 0)
	for i := len(s.logOrder) - 1; i >= 0; i-- {
		le := s.logs[s.logOrder[i]]

		if f.Source != "" && le.Source != f.Source {
			continue
		}
		if f.Start != nil && le.CreatedAt.Before(*f.Start) {
			continue
		}
		if f.End != nil && le.CreatedAt.After(*f.End) {
			continue
		}

		var latest *incident.Incident
		if incs := s.incidentsForLogLocked(le.ID); len(incs) > 0 {
			latest = &incs[0]
		}

		if f.Severity != "" && (latest == nil || latest.Severity != f.Severity) {
			continue
		}
		if f.Search != "" && !matchSearch(le, latest, f.Search) {
			continue
		}

		cp := *le
		matched = append(matched, triage.LogWithIncident{Log: cp, Incident: latest})
	}

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &triage.LogPage{
		TotalLogs: total,
		Page:      page,
		Limit:     limit,
		Logs:      matched[start:end],
	}, nil
}

func matchSearch(le *logentry.LogEntry, inc *incident.Incident, search string) bool {
	q := strings.ToLower(search)
	if strings.Contains(strings.ToLower(le.RawText), q) {
		return true
	}
	if inc == nil {
		return false
	}
	return strings.Contains(strings.ToLower(inc.Title), q) ||
		strings.Contains(strings.ToLower(inc.Summary), q)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
