package triage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linnemanlabs/aegis/internal/incident"
)

// RetriageTitlePrefix marks incidents produced by an explicit re-triage so
// the sibling records are visually distinguishable in the audit trail.
const RetriageTitlePrefix = "[RE-TRIAGE] "

// Lifecycle finalizes validated triage results into persisted incidents.
// It always stamps a fresh incident identifier and binds exactly one log
// entry, overwriting anything the model may have produced. Incidents are
// append-only: re-triage creates a sibling, never an edit.
type Lifecycle struct {
	store Store
}

// NewLifecycle creates a lifecycle manager backed by the given store.
func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// FinalizeNew stamps and persists a first-triage incident for logID.
// A persistence failure is returned as *StorageError, distinct from triage
// failure, because the two are actionable differently.
func (l *Lifecycle) FinalizeNew(ctx context.Context, validated *incident.Incident, logID string) (*incident.Incident, error) {
	return l.finalize(ctx, validated, logID, "")
}

// FinalizeRetriage stamps and persists a re-triage incident for logID,
// prefixing the title so the new record is distinguishable from the one it
// supersedes. The prior incident is never touched.
func (l *Lifecycle) FinalizeRetriage(ctx context.Context, validated *incident.Incident, logID string) (*incident.Incident, error) {
	return l.finalize(ctx, validated, logID, RetriageTitlePrefix)
}

func (l *Lifecycle) finalize(ctx context.Context, validated *incident.Incident, logID, titlePrefix string) (*incident.Incident, error) {
	inc := *validated
	inc.IncidentID = uuid.NewString()
	inc.LogEntryIDs = []string{logID}
	inc.Title = titlePrefix + inc.Title
	inc.CreatedAt = time.Now().UTC()

	if err := l.store.CreateIncident(ctx, &inc); err != nil {
		return nil, &StorageError{Err: err}
	}
	return &inc, nil
}
