package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/wisbric/confcore/internal/dbtx"
)

// Service is the audit pipeline's application-facing API.
type Service struct {
	repo *Repo
}

// NewService constructs a Service.
func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

// Recorder is the narrow interface other components depend on so they can
// write an audit row in the same transaction as their own mutation without
// importing the rest of this package.
type Recorder interface {
	Record(ctx context.Context, db dbtx.DBTX, ev Event) (Event, error)
}

// Record inserts ev, minting a correlation id if the caller didn't supply one.
func (s *Service) Record(ctx context.Context, db dbtx.DBTX, ev Event) (Event, error) {
	if ev.CorrelationID == nil || *ev.CorrelationID == "" {
		id := uuid.NewString()
		ev.CorrelationID = &id
	}
	return s.repo.Insert(ctx, db, ev)
}

// List returns a filtered, paginated page of events for an org.
func (s *Service) List(ctx context.Context, db dbtx.DBTX, orgID string, f Filter) ([]Event, int, error) {
	return s.repo.List(ctx, db, orgID, f)
}

// Export streams every event matching the filter to fn, newest-first.
func (s *Service) Export(ctx context.Context, db dbtx.DBTX, orgID string, f Filter, fn func(Event) error) error {
	return s.repo.Stream(ctx, db, orgID, f, fn)
}

var _ Recorder = (*Service)(nil)
