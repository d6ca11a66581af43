package audit

import (
	"encoding/csv"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/confcore/internal/httpserver"
	"github.com/wisbric/confcore/pkg/identity"
)

// Handler exposes the admin audit feed and CSV export, plus ingestion of
// agent-sourced events reported by external automation.
type Handler struct {
	svc  *Service
	pool *pgxpool.Pool
}

func NewHandler(svc *Service, pool *pgxpool.Pool) *Handler {
	return &Handler{svc: svc, pool: pool}
}

// Routes mounts under /admin/orgs/{org}/audit.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/export", h.handleExport)
	r.Post("/agent-events", h.handleIngestAgentEvent)
	return r
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	principal := identity.FromContext(r.Context())
	if !principal.HasPermission(identity.PermAdminAll) {
		httpserver.RespondError(w, http.StatusForbidden, "permission_denied", "admin permission required")
		return false
	}
	return true
}

func parseFilter(r *http.Request, params httpserver.OffsetParams) Filter {
	q := r.URL.Query()
	f := Filter{
		TeamNodeID: q.Get("team_node_id"),
		Search:     q.Get("search"),
		Limit:      params.Limit,
		Offset:     params.Offset,
	}
	if raw := q.Get("source"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			f.Sources = append(f.Sources, Source(s))
		}
	}
	if raw := q.Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.Since = &t
		}
	}
	if raw := q.Get("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.Until = &t
		}
	}
	return f
}

type eventResponse struct {
	EventID       string         `json:"event_id"`
	OrgID         string         `json:"org_id"`
	Source        Source         `json:"source"`
	EventType     string         `json:"event_type"`
	OccurredAt    string         `json:"occurred_at"`
	Sequence      int64          `json:"sequence"`
	Actor         string         `json:"actor"`
	TeamNodeID    *string        `json:"team_node_id,omitempty"`
	Summary       string         `json:"summary"`
	Details       map[string]any `json:"details,omitempty"`
	CorrelationID *string        `json:"correlation_id,omitempty"`
}

func toEventResponse(ev Event) eventResponse {
	return eventResponse{
		EventID:       ev.EventID,
		OrgID:         ev.OrgID,
		Source:        ev.Source,
		EventType:     ev.EventType,
		OccurredAt:    ev.OccurredAt.UTC().Format(time.RFC3339),
		Sequence:      ev.Sequence,
		Actor:         ev.Actor,
		TeamNodeID:    ev.TeamNodeID,
		Summary:       ev.Summary,
		Details:       ev.Details,
		CorrelationID: ev.CorrelationID,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	org := chi.URLParam(r, "org")

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	f := parseFilter(r, params)

	events, total, err := h.svc.List(r.Context(), h.pool, org, f)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}

	items := make([]eventResponse, len(events))
	for i, ev := range events {
		items[i] = toEventResponse(ev)
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewEventPage(items, params, total))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	org := chi.URLParam(r, "org")
	f := parseFilter(r, httpserver.OffsetParams{Limit: 0, Offset: 0})

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.csv"`)

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return
	}

	err := h.svc.Export(r.Context(), h.pool, org, f, func(ev Event) error {
		teamNodeID := ""
		if ev.TeamNodeID != nil {
			teamNodeID = *ev.TeamNodeID
		}
		correlationID := ""
		if ev.CorrelationID != nil {
			correlationID = *ev.CorrelationID
		}
		return cw.Write([]string{
			ev.EventID,
			ev.OccurredAt.UTC().Format(time.RFC3339),
			string(ev.Source),
			ev.EventType,
			ev.Actor,
			teamNodeID,
			ev.Summary,
			correlationID,
		})
	})
	cw.Flush()
	if err != nil {
		httpserver.RespondAppErr(w, err)
	}
}

type agentEventRequest struct {
	EventType  string         `json:"event_type" validate:"required"`
	TeamNodeID *string        `json:"team_node_id,omitempty"`
	Summary    string         `json:"summary" validate:"required"`
	Details    map[string]any `json:"details,omitempty"`
}

// handleIngestAgentEvent lets authenticated automation (a team bearer or
// admin) report an agent-sourced event into the unified audit feed.
func (h *Handler) handleIngestAgentEvent(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	org := chi.URLParam(r, "org")

	var req agentEventRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ev, err := h.svc.Record(r.Context(), h.pool, Event{
		OrgID:      org,
		Source:     SourceAgent,
		EventType:  req.EventType,
		Actor:      principal.TokenID,
		TeamNodeID: req.TeamNodeID,
		Summary:    req.Summary,
		Details:    req.Details,
	})
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, toEventResponse(ev))
}
