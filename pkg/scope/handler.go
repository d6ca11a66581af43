package scope

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/internal/httpserver"
	"github.com/wisbric/confcore/pkg/identity"
	"github.com/wisbric/confcore/pkg/policy"
)

// Handler exposes both the admin node/config routes and the team-scoped
// /config/me routes. Both sets share the same Service; the admin routes
// additionally require identity.PermAdminAll, while /config/me derives its
// target node from the caller's own TeamNodeID.
type Handler struct {
	svc    *Service
	policy *policy.Service
	pool   *pgxpool.Pool
}

func NewHandler(svc *Service, policySvc *policy.Service, pool *pgxpool.Pool) *Handler {
	return &Handler{svc: svc, policy: policySvc, pool: pool}
}

// AdminRoutes mounts under /admin/orgs/{org}.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/nodes", h.handleListNodes)
	r.Post("/nodes", h.handleCreateNode)
	r.Get("/nodes/{node}", h.handleGetNode)
	r.Patch("/nodes/{node}", h.handleUpdateNode)
	r.Delete("/nodes/{node}", h.handleDeleteNode)
	r.Get("/nodes/{node}/effective", h.handleAdminEffective)
	r.Get("/nodes/{node}/raw", h.handleAdminRaw)
	r.Put("/nodes/{node}/config", h.handleAdminPutConfig)
	return r
}

// SelfRoutes mounts under /config/me.
func (h *Handler) SelfRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/effective", h.handleSelfEffective)
	r.Get("/raw", h.handleSelfRaw)
	r.Put("/", h.handleSelfPut)
	return r
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	principal := identity.FromContext(r.Context())
	if !principal.HasPermission(identity.PermAdminAll) {
		httpserver.RespondError(w, http.StatusForbidden, "permission_denied", "admin permission required")
		return false
	}
	return true
}

type nodeResponse struct {
	OrgID     string  `json:"org_id"`
	NodeID    string  `json:"node_id"`
	ParentID  *string `json:"parent_id,omitempty"`
	NodeType  string  `json:"node_type"`
	Name      string  `json:"name"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

func toNodeResponse(n Node) nodeResponse {
	return nodeResponse{
		OrgID:     n.OrgID,
		NodeID:    n.NodeID,
		ParentID:  n.ParentID,
		NodeType:  string(n.NodeType),
		Name:      n.Name,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: n.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) handleListNodes(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	org := chi.URLParam(r, "org")

	nodes, err := h.svc.ListNodes(r.Context(), h.pool, org)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	out := make([]nodeResponse, len(nodes))
	for i, n := range nodes {
		out[i] = toNodeResponse(n)
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"nodes": out})
}

type createNodeRequest struct {
	NodeID   string  `json:"node_id" validate:"required"`
	ParentID *string `json:"parent_id"`
	NodeType string  `json:"node_type" validate:"required,oneof=org unit team"`
	Name     string  `json:"name" validate:"required"`
}

func (h *Handler) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	org := chi.URLParam(r, "org")
	principal := identity.FromContext(r.Context())

	var req createNodeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	n := Node{OrgID: org, NodeID: req.NodeID, ParentID: req.ParentID, NodeType: NodeType(req.NodeType), Name: req.Name}
	created, err := h.svc.CreateNode(r.Context(), h.pool, n, principal.TokenID)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, toNodeResponse(created))
}

func (h *Handler) handleGetNode(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	org, node := chi.URLParam(r, "org"), chi.URLParam(r, "node")

	nodes, err := h.svc.ListNodes(r.Context(), h.pool, org)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	for _, n := range nodes {
		if n.NodeID == node {
			httpserver.Respond(w, http.StatusOK, toNodeResponse(n))
			return
		}
	}
	httpserver.RespondAppErr(w, apperr.New(apperr.NotFound, "node not found"))
}

func (h *Handler) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	org, node := chi.URLParam(r, "org"), chi.URLParam(r, "node")
	principal := identity.FromContext(r.Context())

	// Decode into raw messages first so a present-but-null "parent_id" (move
	// to root) can be distinguished from an absent one (leave unchanged).
	var fields map[string]json.RawMessage
	if err := httpserver.Decode(r, &fields); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var name *string
	if raw, ok := fields["name"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "invalid_input", "name must be a string")
			return
		}
		name = &v
	}

	var newParent *string
	hasParent := false
	if raw, ok := fields["parent_id"]; ok {
		hasParent = true
		var v *string
		if err := json.Unmarshal(raw, &v); err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "invalid_input", "parent_id must be a string or null")
			return
		}
		newParent = v
	}
	updated, err := h.svc.UpdateNode(r.Context(), h.pool, org, node, name, newParent, hasParent, principal.TokenID)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, toNodeResponse(updated))
}

func (h *Handler) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	org, node := chi.URLParam(r, "org"), chi.URLParam(r, "node")
	principal := identity.FromContext(r.Context())

	if err := h.svc.DeleteNode(r.Context(), h.pool, org, node, principal.TokenID); err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleAdminEffective(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	org, node := chi.URLParam(r, "org"), chi.URLParam(r, "node")

	cfg, err := h.svc.EffectiveConfig(r.Context(), h.pool, org, node)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, cfg)
}

func (h *Handler) handleAdminRaw(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	org, node := chi.URLParam(r, "org"), chi.URLParam(r, "node")
	principal := identity.FromContext(r.Context())

	cfg, err := h.svc.RawConfig(r.Context(), h.pool, org, node, principal.HasPermission(identity.PermAdminAll))
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, cfg)
}

func (h *Handler) handleAdminPutConfig(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	org, node := chi.URLParam(r, "org"), chi.URLParam(r, "node")
	principal := identity.FromContext(r.Context())

	h.putConfig(w, r, org, node, principal.TokenID)
}

// putConfig is shared by the admin and self-service write paths: it loads
// the node's current local config, deep-merges the incoming patch,
// enforces the org's security policy against the diff, and persists the
// applied subset (queuing approval-gated paths instead).
func (h *Handler) putConfig(w http.ResponseWriter, r *http.Request, org, node, actor string) {
	var rawPatch map[string]any
	if err := httpserver.Decode(r, &rawPatch); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	patch := NormalizeNulls(rawPatch)

	pol, err := h.policy.Get(r.Context(), h.pool, org)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}

	changes := policy.Diff(patch)
	applied, pending, err := policy.Enforce(pol, changes)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}

	if len(pending) > 0 {
		if _, err := h.policy.QueueProposal(r.Context(), h.pool, org, node, pending, actor); err != nil {
			httpserver.RespondAppErr(w, err)
			return
		}
	}

	current, err := h.svc.RawConfig(r.Context(), h.pool, org, node, true)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}

	merged := DeepMerge(current, policy.ApplyChanges(applied))
	if err := h.svc.PutConfig(r.Context(), h.pool, org, node, merged, actor); err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"config":           merged,
		"pending_approval": len(pending) > 0,
	})
}

func (h *Handler) handleSelfEffective(w http.ResponseWriter, r *http.Request) {
	p := identity.FromContext(r.Context())
	if p == nil || p.TeamNodeID == nil {
		httpserver.RespondError(w, http.StatusForbidden, "permission_denied", "a team bearer is required")
		return
	}
	cfg, err := h.svc.EffectiveConfig(r.Context(), h.pool, p.OrgID, *p.TeamNodeID)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, cfg)
}

func (h *Handler) handleSelfRaw(w http.ResponseWriter, r *http.Request) {
	p := identity.FromContext(r.Context())
	if p == nil || p.TeamNodeID == nil {
		httpserver.RespondError(w, http.StatusForbidden, "permission_denied", "a team bearer is required")
		return
	}

	lineage, err := h.svc.Lineage(r.Context(), h.pool, p.OrgID, *p.TeamNodeID)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}
	cfg, err := h.svc.RawConfig(r.Context(), h.pool, p.OrgID, *p.TeamNodeID, false)
	if err != nil {
		httpserver.RespondAppErr(w, err)
		return
	}

	lineageIDs := make([]string, len(lineage))
	for i, n := range lineage {
		lineageIDs[i] = n.NodeID
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"config": cfg, "lineage": lineageIDs})
}

func (h *Handler) handleSelfPut(w http.ResponseWriter, r *http.Request) {
	p := identity.FromContext(r.Context())
	if p == nil || p.TeamNodeID == nil || !p.HasPermission(identity.PermConfigWriteSelf) {
		httpserver.RespondError(w, http.StatusForbidden, "permission_denied", "write access to own team config is required")
		return
	}
	h.putConfig(w, r, p.OrgID, *p.TeamNodeID, p.TokenID)
}
