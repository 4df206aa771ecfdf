// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/aegis/internal/incident"
	"github.com/linnemanlabs/aegis/internal/logentry"
	"github.com/linnemanlabs/aegis/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/aegis/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists log entries and incidents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool is owned by the
// caller and shared process-wide.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// CreateLog inserts a log entry. The row is immutable once written.
func (s *Store) CreateLog(ctx context.Context, le *logentry.LogEntry) error {
	ctx, span := tracer.Start(ctx, "pgstore.CreateLog", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	var userID *string
	if le.UserID != "" {
		userID = &le.UserID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO log_entries (id, raw_text, user_id, source, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		le.ID, le.RawText, userID, string(le.Source), le.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// GetLog retrieves a log entry by ID.
func (s *Store) GetLog(ctx context.Context, id string) (*logentry.LogEntry, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetLog", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	row := s.pool.QueryRow(ctx,
		`SELECT id, raw_text, user_id, source, created_at FROM log_entries WHERE id = $1`, id)

	le, err := scanLogRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	return le, true, nil
}

// CreateIncident inserts a new incident row. Incidents are never updated.
func (s *Store) CreateIncident(ctx context.Context, inc *incident.Incident) error {
	ctx, span := tracer.Start(ctx, "pgstore.CreateIncident", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	indicatorsJSON, err := json.Marshal(inc.Indicators)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}
	actionsJSON, err := json.Marshal(inc.SuggestedActions)
	if err != nil {
		return fmt.Errorf("marshal suggested actions: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO incidents (incident_id, title, severity, status, summary, indicators, suggested_actions, log_entry_ids, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inc.IncidentID, inc.Title, string(inc.Severity), string(inc.Status), inc.Summary,
		indicatorsJSON, actionsJSON, inc.LogEntryIDs, inc.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

const incidentColumns = `incident_id, title, severity, status, summary, indicators, suggested_actions, log_entry_ids, created_at`

// IncidentsForLog returns all incidents referencing logID, newest first.
func (s *Store) IncidentsForLog(ctx context.Context, logID string) ([]incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.IncidentsForLog", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE log_entry_ids @> ARRAY[$1]::text[] ORDER BY created_at DESC`,
		logID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, *inc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

// ListLogs filters and paginates log entries, newest first, attaching each
// log's most recent incident via a lateral join (the append-only audit
// trail makes "latest by created_at" the current assessment).
func (s *Store) ListLogs(ctx context.Context, f triage.ListFilter) (*triage.LogPage, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListLogs", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	where, args := buildListWhere(f)

	from := `FROM log_entries l
		LEFT JOIN LATERAL (
			SELECT ` + incidentColumns + ` FROM incidents
			WHERE log_entry_ids @> ARRAY[l.id]::text[]
			ORDER BY created_at DESC LIMIT 1
		) i ON TRUE`

	var total int
	countQuery := `SELECT COUNT(*) ` + from + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("count logs: %w", err)
	}

	query := `SELECT l.id, l.raw_text, l.user_id, l.source, l.created_at,
			i.incident_id, i.title, i.severity, i.status, i.summary, i.indicators, i.suggested_actions, i.log_entry_ids, i.created_at ` +
		from + where +
		fmt.Sprintf(` ORDER BY l.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	logs := make([]triage.LogWithIncident, 0, limit)
	for rows.Next() {
		lwi, err := scanLogWithIncident(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		logs = append(logs, *lwi)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate logs: %w", err)
	}

	return &triage.LogPage{TotalLogs: total, Page: page, Limit: limit, Logs: logs}, nil
}

func buildListWhere(f triage.ListFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Source != "" {
		add("l.source = $%d", string(f.Source))
	}
	if f.Start != nil {
		add("l.created_at >= $%d", *f.Start)
	}
	if f.End != nil {
		add("l.created_at <= $%d", *f.End)
	}
	if f.Severity != "" {
		add("i.severity = $%d", string(f.Severity))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(l.raw_text ILIKE $%d OR i.title ILIKE $%d OR i.summary ILIKE $%d)", n, n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanLogRow(row pgx.Row) (*logentry.LogEntry, error) {
	var (
		le     logentry.LogEntry
		userID *string
		source string
	)
	if err := row.Scan(&le.ID, &le.RawText, &userID, &source, &le.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan log entry: %w", err)
	}
	if userID != nil {
		le.UserID = *userID
	}
	le.Source = logentry.Source(source)
	return &le, nil
}

func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var (
		inc            incident.Incident
		severity       string
		status         string
		indicatorsJSON []byte
		actionsJSON    []byte
	)
	err := row.Scan(&inc.IncidentID, &inc.Title, &severity, &status, &inc.Summary,
		&indicatorsJSON, &actionsJSON, &inc.LogEntryIDs, &inc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	inc.Severity = incident.Severity(severity)
	inc.Status = incident.Status(status)
	if err := json.Unmarshal(indicatorsJSON, &inc.Indicators); err != nil {
		return nil, fmt.Errorf("unmarshal indicators: %w", err)
	}
	if err := json.Unmarshal(actionsJSON, &inc.SuggestedActions); err != nil {
		return nil, fmt.Errorf("unmarshal suggested actions: %w", err)
	}
	return &inc, nil
}

func scanLogWithIncident(row pgx.Row) (*triage.LogWithIncident, error) {
	var (
		le     logentry.LogEntry
		userID *string
		source string

		incidentID     *string
		title          *string
		severity       *string
		status         *string
		summary        *string
		indicatorsJSON []byte
		actionsJSON    []byte
		logEntryIDs    []string
		incCreatedAt   *time.Time
	)

	err := row.Scan(&le.ID, &le.RawText, &userID, &source, &le.CreatedAt,
		&incidentID, &title, &severity, &status, &summary,
		&indicatorsJSON, &actionsJSON, &logEntryIDs, &incCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan log row: %w", err)
	}

	if userID != nil {
		le.UserID = *userID
	}
	le.Source = logentry.Source(source)

	lwi := &triage.LogWithIncident{Log: le}

	if incidentID != nil {
		inc := &incident.Incident{
			IncidentID:  *incidentID,
			Title:       *title,
			Severity:    incident.Severity(*severity),
			Status:      incident.Status(*status),
			Summary:     *summary,
			LogEntryIDs: logEntryIDs,
			CreatedAt:   *incCreatedAt,
		}
		if err := json.Unmarshal(indicatorsJSON, &inc.Indicators); err != nil {
			return nil, fmt.Errorf("unmarshal indicators: %w", err)
		}
		if err := json.Unmarshal(actionsJSON, &inc.SuggestedActions); err != nil {
			return nil, fmt.Errorf("unmarshal suggested actions: %w", err)
		}
		lwi.Incident = inc
	}

	return lwi, nil
}
