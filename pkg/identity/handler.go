package identity

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/confcore/internal/httpserver"
)

// Handler exposes identity introspection.
type Handler struct{}

func NewHandler() *Handler { return &Handler{} }

// Routes mounts GET /auth/me.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/me", h.handleMe)
	return r
}

type meResponse struct {
	Role        Role     `json:"role"`
	AuthKind    AuthKind `json:"auth_kind"`
	OrgID       string   `json:"org_id,omitempty"`
	TeamNodeID  *string  `json:"team_node_id,omitempty"`
	Permissions []string `json:"permissions"`
	CanWrite    bool     `json:"can_write"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p := FromContext(r.Context())
	if p == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	perms := make([]string, 0, len(p.Permissions))
	for perm := range p.Permissions {
		perms = append(perms, perm)
	}
	sort.Strings(perms)

	httpserver.Respond(w, http.StatusOK, meResponse{
		Role:        p.Role,
		AuthKind:    p.AuthKind,
		OrgID:       p.OrgID,
		TeamNodeID:  p.TeamNodeID,
		Permissions: perms,
		CanWrite:    p.CanWrite(),
	})
}
