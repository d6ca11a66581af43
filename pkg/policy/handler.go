package policy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/confcore/internal/httpserver"
	"github.com/wisbric/confcore/pkg/identity"
)

// Handler exposes the admin security-policy and pending-proposal routes.
type Handler struct {
	svc  *Service
	pool *pgxpool.Pool
}

func NewHandler(svc *Service, pool *pgxpool.Pool) *Handler {
	return &Handler{svc: svc, pool: pool}
}

// Routes mounts under /admin/orgs/{org}.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/security-policies", h.handleGet)
	r.Put("/security-policies", h.handlePut)
	r.Get("/proposals", h.handleListProposals)
	r.Post("/proposals/{proposalID}/resolve", h.handleResolveProposal)
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

type policyRequest struct {
	TokenExpiryDays         *int               `json:"token_expiry_days,omitempty"`
	TokenWarnBeforeDays     *int               `json:"token_warn_before_days,omitempty"`
	TokenRevokeInactiveDays *int               `json:"token_revoke_inactive_days,omitempty"`
	LockedPaths             []string           `json:"locked_paths"`
	MaxValues               map[string]float64 `json:"max_values"`
	RequireApprovalPrompts  bool               `json:"require_approval_for_prompts"`
	RequireApprovalTools    bool               `json:"require_approval_for_tools"`
	LogAllChanges           bool               `json:"log_all_changes"`
}

func toResponse(p SecurityPolicy) policyRequest {
	return policyRequest{
		TokenExpiryDays:         p.TokenExpiryDays,
		TokenWarnBeforeDays:     p.TokenWarnBeforeDays,
		TokenRevokeInactiveDays: p.TokenRevokeInactiveDays,
		LockedPaths:             p.LockedPaths,
		MaxValues:               p.MaxValues,
		RequireApprovalPrompts:  p.RequireApprovalPrompts,
		RequireApprovalTools:    p.RequireApprovalTools,
		LogAllChanges:           p.LogAllChanges,
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	org := chi.URLParam(r, "org")

	p, err := h.svc.Get(r.Context(), h.pool, org)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, toResponse(p))
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	org := chi.URLParam(r, "org")
	principal := identity.FromContext(r.Context())

	var req policyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	p := SecurityPolicy{
		OrgID:                   org,
		TokenExpiryDays:         req.TokenExpiryDays,
		TokenWarnBeforeDays:     req.TokenWarnBeforeDays,
		TokenRevokeInactiveDays: req.TokenRevokeInactiveDays,
		LockedPaths:             req.LockedPaths,
		MaxValues:               req.MaxValues,
		RequireApprovalPrompts:  req.RequireApprovalPrompts,
		RequireApprovalTools:    req.RequireApprovalTools,
		LogAllChanges:           req.LogAllChanges,
	}

	out, err := h.svc.Put(r.Context(), h.pool, p, principal.TokenID)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, toResponse(out))
}

type proposalResponse struct {
	ProposalID string `json:"proposal_id"`
	NodeID     string `json:"node_id"`
	ProposedBy string `json:"proposed_by"`
	Status     string `json:"status"`
	Changes    []PathChange `json:"changes"`
}

func (h *Handler) handleListProposals(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	org := chi.URLParam(r, "org")

	proposals, err := h.svc.ListPending(r.Context(), h.pool, org)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}

	out := make([]proposalResponse, 0, len(proposals))
	for _, sp := range proposals {
		changes, err := sp.Changes()
		if err != nil {
			httpserver.RespondAppErr(w, err)
			return
		}
		out = append(out, proposalResponse{
			ProposalID: sp.ProposalID,
			NodeID:     sp.NodeID,
			ProposedBy: sp.ProposedBy,
			Status:     sp.Status,
			Changes:    changes,
		})
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"proposals": out})
}

type resolveRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
}

func (h *Handler) handleResolveProposal(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	org := chi.URLParam(r, "org")
	proposalID := chi.URLParam(r, "proposalID")
	principal := identity.FromContext(r.Context())

	var req resolveRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	sp, err := h.svc.Resolve(r.Context(), h.pool, org, proposalID, req.Decision, principal.TokenID)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"proposal_id": sp.ProposalID, "status": sp.Status})
}
