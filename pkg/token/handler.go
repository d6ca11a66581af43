package token

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/confcore/internal/httpserver"
	"github.com/wisbric/confcore/pkg/identity"
)

// Handler exposes the team-token admin routes.
type Handler struct {
	svc  *Service
	pool *pgxpool.Pool
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, pool *pgxpool.Pool) *Handler {
	return &Handler{svc: svc, pool: pool}
}

// Routes mounts under /admin/orgs/{org}/teams/{team}/tokens.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleIssue)
	r.Post("/{tokenID}/revoke", h.handleRevoke)
	return r
}

type issueRequest struct {
	ExpiresInDays *int `json:"expires_in_days,omitempty"`
}

type issueResponse struct {
	TokenID   string  `json:"token_id"`
	Token     string  `json:"token"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if !principal.HasPermission(identity.PermAdminAll) {
		httpserver.RespondError(w, http.StatusForbidden, "permission_denied", "admin permission required")
		return
	}

	org := chi.URLParam(r, "org")
	team := chi.URLParam(r, "team")

	var req issueRequest
	if r.ContentLength != 0 {
		if !httpserver.DecodeAndValidate(w, r, &req) {
			return
		}
	}

	issued, err := h.svc.Issue(r.Context(), h.pool, org, team, principal.TokenID, req.ExpiresInDays)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}

	resp := issueResponse{TokenID: issued.TokenID, Token: issued.Secret}
	if issued.ExpiresAt != nil {
		s := issued.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	httpserver.Respond(w, http.StatusCreated, resp)
}

type tokenSummary struct {
	TokenID       string  `json:"token_id"`
	TeamNodeID    string  `json:"team_node_id"`
	IssuedAt      string  `json:"issued_at"`
	IssuedBy      string  `json:"issued_by"`
	LastUsedAt    *string `json:"last_used_at,omitempty"`
	ExpiresAt     *string `json:"expires_at,omitempty"`
	RevokedAt     *string `json:"revoked_at,omitempty"`
	RevokedReason string  `json:"revoked_reason,omitempty"`
}

func toSummary(t Token) tokenSummary {
	s := tokenSummary{
		TokenID:       t.TokenID,
		TeamNodeID:    t.TeamNodeID,
		IssuedAt:      t.IssuedAt.UTC().Format(time.RFC3339),
		IssuedBy:      t.IssuedBy,
		RevokedReason: t.RevokedReason,
	}
	if t.LastUsedAt != nil {
		v := t.LastUsedAt.UTC().Format(time.RFC3339)
		s.LastUsedAt = &v
	}
	if t.ExpiresAt != nil {
		v := t.ExpiresAt.UTC().Format(time.RFC3339)
		s.ExpiresAt = &v
	}
	if t.RevokedAt != nil {
		v := t.RevokedAt.UTC().Format(time.RFC3339)
		s.RevokedAt = &v
	}
	return s
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if !principal.HasPermission(identity.PermAdminAll) {
		httpserver.RespondError(w, http.StatusForbidden, "permission_denied", "admin permission required")
		return
	}

	org := chi.URLParam(r, "org")
	team := chi.URLParam(r, "team")

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	tokens, total, err := h.svc.ListForTeam(r.Context(), h.pool, org, team, params.Limit, params.Offset)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}

	items := make([]tokenSummary, len(tokens))
	for i, t := range tokens {
		items[i] = toSummary(t)
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if !principal.HasPermission(identity.PermAdminAll) {
		httpserver.RespondError(w, http.StatusForbidden, "permission_denied", "admin permission required")
		return
	}

	org := chi.URLParam(r, "org")
	tokenID := chi.URLParam(r, "tokenID")

	if err := h.svc.Revoke(r.Context(), h.pool, org, tokenID, principal.TokenID); err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "revoked"})
}
