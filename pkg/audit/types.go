// Package audit implements the unified audit pipeline (C7): synchronous,
// same-transaction insertion of token/config/agent events, plus the
// filtered query and CSV export surface.
package audit

import "time"

// Source classifies where an AuditEvent originated.
type Source string

const (
	SourceToken  Source = "token"
	SourceConfig Source = "config"
	SourceAgent  Source = "agent"
)

// Event is one append-only audit row.
type Event struct {
	EventID       string
	OrgID         string
	Source        Source
	EventType     string
	OccurredAt    time.Time
	Sequence      int64 // value from one shared sequence; tiebreaker for total ordering
	Actor         string
	TeamNodeID    *string
	Summary       string
	Details       map[string]any
	CorrelationID *string
}

// ExportColumns is the stable column order for CSV export, per the
// component's external contract.
var ExportColumns = []string{
	"event_id", "occurred_at", "source", "event_type", "actor",
	"team_node_id", "summary", "correlation_id",
}
