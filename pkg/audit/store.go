package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/confcore/internal/dbtx"
)

const eventColumns = `event_id, org_id, source, event_type, occurred_at, sequence, actor, team_node_id, summary, details, correlation_id`

// Repo is the C2 repository for AuditEvent rows.
type Repo struct{}

// NewRepo constructs a Repo.
func NewRepo() *Repo { return &Repo{} }

// Insert appends one event. occurred_at and sequence are assigned by the
// database (now() and nextval of audit_events_sequence_seq) so that every insert,
// whatever transaction it runs in, gets a total order within the org.
func (r *Repo) Insert(ctx context.Context, db dbtx.DBTX, ev Event) (Event, error) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}

	details, err := json.Marshal(ev.Details)
	if err != nil {
		return Event{}, fmt.Errorf("encoding audit details: %w", err)
	}

	row := db.QueryRow(ctx, `
		INSERT INTO audit_events (event_id, org_id, source, event_type, occurred_at, sequence, actor, team_node_id, summary, details, correlation_id)
		VALUES ($1, $2, $3, $4, now(), nextval('audit_events_sequence_seq'), $5, $6, $7, $8, $9)
		RETURNING `+eventColumns,
		ev.EventID, ev.OrgID, ev.Source, ev.EventType, ev.Actor, ev.TeamNodeID, ev.Summary, details, ev.CorrelationID,
	)

	inserted, err := scanEvent(row)
	if err != nil {
		return Event{}, fmt.Errorf("inserting audit event: %w", err)
	}
	return inserted, nil
}

func scanEvent(row pgx.Row) (Event, error) {
	var ev Event
	var details []byte
	if err := row.Scan(
		&ev.EventID, &ev.OrgID, &ev.Source, &ev.EventType, &ev.OccurredAt, &ev.Sequence,
		&ev.Actor, &ev.TeamNodeID, &ev.Summary, &details, &ev.CorrelationID,
	); err != nil {
		return Event{}, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &ev.Details); err != nil {
			return Event{}, fmt.Errorf("decoding audit details: %w", err)
		}
	}
	return ev, nil
}

// Filter narrows a List/Export query. Zero values mean "no constraint".
type Filter struct {
	Sources    []Source
	TeamNodeID string
	Since      *time.Time
	Until      *time.Time
	Search     string
	Limit      int
	Offset     int
}

func (f Filter) where(orgID string) (string, []any) {
	clauses := []string{"org_id = $1"}
	args := []any{orgID}

	if len(f.Sources) > 0 {
		clauses = append(clauses, fmt.Sprintf("source = ANY($%d)", len(args)+1))
		args = append(args, f.Sources)
	}
	if f.TeamNodeID != "" {
		clauses = append(clauses, fmt.Sprintf("team_node_id = $%d", len(args)+1))
		args = append(args, f.TeamNodeID)
	}
	if f.Since != nil {
		clauses = append(clauses, fmt.Sprintf("occurred_at >= $%d", len(args)+1))
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		clauses = append(clauses, fmt.Sprintf("occurred_at <= $%d", len(args)+1))
		args = append(args, *f.Until)
	}
	if f.Search != "" {
		clauses = append(clauses, fmt.Sprintf("(summary ILIKE $%d OR details::text ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+f.Search+"%")
	}

	return strings.Join(clauses, " AND "), args
}

// List returns a page of events newest-first, plus the total count matching
// the filter (ignoring limit/offset).
func (r *Repo) List(ctx context.Context, db dbtx.DBTX, orgID string, f Filter) ([]Event, int, error) {
	where, args := f.where(orgID)

	countRow := db.QueryRow(ctx, `SELECT count(*) FROM audit_events WHERE `+where, args...)
	var total int
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}
	query := `SELECT ` + eventColumns + ` FROM audit_events WHERE ` + where +
		fmt.Sprintf(" ORDER BY occurred_at DESC, sequence DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning audit event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit events: %w", err)
	}

	return out, total, nil
}

// Stream runs the filtered query without a limit cap (export use) and
// invokes fn for each row in newest-first order.
func (r *Repo) Stream(ctx context.Context, db dbtx.DBTX, orgID string, f Filter, fn func(Event) error) error {
	where, args := f.where(orgID)
	query := `SELECT ` + eventColumns + ` FROM audit_events WHERE ` + where + ` ORDER BY occurred_at DESC, sequence DESC`

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("streaming audit events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return fmt.Errorf("scanning audit event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}
