package scope

import (
	"context"
	"fmt"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/internal/crypto"
	"github.com/wisbric/confcore/internal/dbtx"
	"github.com/wisbric/confcore/internal/httpserver"
	"github.com/wisbric/confcore/pkg/audit"
	"github.com/wisbric/confcore/pkg/policy"
)

// correlationID returns the request's correlation id as the pointer shape
// audit.Event expects, or nil if the context carries none.
func correlationID(ctx context.Context) *string {
	if id := httpserver.CorrelationIDFromContext(ctx); id != "" {
		return &id
	}
	return nil
}

// TokenRevoker is the narrow interface scope depends on to cascade-revoke
// tokens when a team node is deleted, satisfied structurally by
// token.Service.RevokeAllForTeam without an import cycle.
type TokenRevoker interface {
	RevokeAllForTeam(ctx context.Context, db dbtx.DBTX, orgID, teamNodeID string) error
}

// Service wires the node/config repositories, the encryption manager, the
// audit trail, and token cascade-revocation together into the C3 tree
// engine operations.
type Service struct {
	nodes       *NodeRepo
	configs     *ConfigRepo
	crypto      *crypto.Manager
	isSensitive crypto.SensitivePredicate
	auditor     audit.Recorder
	tokens      TokenRevoker
	maxDepth    int
}

func NewService(nodes *NodeRepo, configs *ConfigRepo, mgr *crypto.Manager, isSensitive crypto.SensitivePredicate, auditor audit.Recorder, tokens TokenRevoker, maxDepth int) *Service {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTreeDepth
	}
	return &Service{nodes: nodes, configs: configs, crypto: mgr, isSensitive: isSensitive, auditor: auditor, tokens: tokens, maxDepth: maxDepth}
}

// NodeType reports a node's node_type, satisfying token.NodeTypeChecker
// without token importing scope.
func (s *Service) NodeType(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) (string, error) {
	n, err := s.nodes.Get(ctx, db, orgID, nodeID)
	if err != nil {
		return "", err
	}
	return string(n.NodeType), nil
}

// CreateNode inserts a node after validating the parent and nesting rules:
// a root (no parent) may only be node_type=org, and only one root per org.
func (s *Service) CreateNode(ctx context.Context, db dbtx.DBTX, n Node, actor string) (Node, error) {
	if n.ParentID == nil {
		if n.NodeType != NodeTypeOrg {
			return Node{}, apperr.New(apperr.InvalidInput, "a root node must be node_type=org")
		}
		existing, err := s.nodes.List(ctx, db, n.OrgID)
		if err != nil {
			return Node{}, err
		}
		for _, e := range existing {
			if e.ParentID == nil {
				return Node{}, apperr.New(apperr.Conflict, "org already has a root node")
			}
		}
	} else {
		parent, err := s.nodes.Get(ctx, db, n.OrgID, *n.ParentID)
		if err != nil {
			if apperr.Is(err, apperr.NotFound) {
				return Node{}, apperr.New(apperr.InvalidInput, "parent node does not exist in this org")
			}
			return Node{}, err
		}
		if !validNesting(parent.NodeType, n.NodeType) {
			return Node{}, apperr.Newf(apperr.InvalidInput, "node_type %q cannot nest under %q", n.NodeType, parent.NodeType)
		}
	}

	created, err := s.nodes.Create(ctx, db, n)
	if err != nil {
		return Node{}, err
	}

	_, err = s.auditor.Record(ctx, db, audit.Event{
		OrgID:         created.OrgID,
		Source:        audit.SourceConfig,
		EventType:     "node.created",
		Actor:         actor,
		TeamNodeID:    teamNodeIDOf(created),
		Summary:       fmt.Sprintf("node %s created", created.NodeID),
		CorrelationID: correlationID(ctx),
	})
	if err != nil {
		return Node{}, err
	}
	return created, nil
}

// validNesting enforces org > unit > team: an org or a unit may hold units
// and teams (units may nest under units, and a team may sit directly under
// the org); nothing nests under a team.
func validNesting(parent, child NodeType) bool {
	switch parent {
	case NodeTypeOrg:
		return child == NodeTypeUnit || child == NodeTypeTeam
	case NodeTypeUnit:
		return child == NodeTypeUnit || child == NodeTypeTeam
	default:
		return false
	}
}

func teamNodeIDOf(n Node) *string {
	if n.NodeType != NodeTypeTeam {
		return nil
	}
	id := n.NodeID
	return &id
}

// UpdateNode renames and/or reparents a node, rejecting a reparent that
// would introduce a cycle. reparent distinguishes "parent_id omitted" (keep
// current parent) from "parent_id: null" (move to root), since both decode
// newParentID to nil.
func (s *Service) UpdateNode(ctx context.Context, db dbtx.DBTX, orgID, nodeID string, name *string, newParentID *string, reparent bool, actor string) (Node, error) {
	if reparent && newParentID != nil {
		all, err := s.nodes.List(ctx, db, orgID)
		if err != nil {
			return Node{}, err
		}
		if WouldCreateCycle(all, nodeID, *newParentID) {
			return Node{}, apperr.New(apperr.InvalidInput, "reparenting would create a cycle")
		}
	}

	updated, err := s.nodes.UpdateNameAndParent(ctx, db, orgID, nodeID, name, newParentID, reparent)
	if err != nil {
		return Node{}, err
	}

	_, err = s.auditor.Record(ctx, db, audit.Event{
		OrgID:         orgID,
		Source:        audit.SourceConfig,
		EventType:     "node.updated",
		Actor:         actor,
		TeamNodeID:    teamNodeIDOf(updated),
		Summary:       fmt.Sprintf("node %s updated", nodeID),
		CorrelationID: correlationID(ctx),
	})
	if err != nil {
		return Node{}, err
	}
	return updated, nil
}

// DeleteNode refuses deletion of a node with children, otherwise cascades
// its NodeConfig and, for team nodes, revokes all attached tokens, all in
// the caller's transaction.
func (s *Service) DeleteNode(ctx context.Context, db dbtx.DBTX, orgID, nodeID, actor string) error {
	children, err := s.nodes.Children(ctx, db, orgID, nodeID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return apperr.New(apperr.Conflict, "node has children; delete descendants first")
	}

	n, err := s.nodes.Get(ctx, db, orgID, nodeID)
	if err != nil {
		return err
	}

	if n.NodeType == NodeTypeTeam {
		if err := s.tokens.RevokeAllForTeam(ctx, db, orgID, nodeID); err != nil {
			return err
		}
	}

	if err := s.configs.Delete(ctx, db, orgID, nodeID); err != nil {
		return err
	}

	if err := s.nodes.Delete(ctx, db, orgID, nodeID); err != nil {
		return err
	}

	_, err = s.auditor.Record(ctx, db, audit.Event{
		OrgID:         orgID,
		Source:        audit.SourceConfig,
		EventType:     "node.deleted",
		Actor:         actor,
		TeamNodeID:    teamNodeIDOf(n),
		Summary:       fmt.Sprintf("node %s deleted", nodeID),
		CorrelationID: correlationID(ctx),
	})
	return err
}

// Lineage returns the root-to-self chain of nodes.
func (s *Service) Lineage(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) ([]Node, error) {
	all, err := s.nodes.List(ctx, db, orgID)
	if err != nil {
		return nil, err
	}
	return Lineage(all, nodeID, s.maxDepth)
}

// EffectiveConfig computes the deep-merged, decrypted configuration for a
// node across its full root-to-leaf lineage.
func (s *Service) EffectiveConfig(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) (map[string]any, error) {
	chain, err := s.Lineage(ctx, db, orgID, nodeID)
	if err != nil {
		return nil, err
	}

	configs := make([]map[string]any, 0, len(chain))
	for _, n := range chain {
		nc, err := s.configs.Get(ctx, db, orgID, n.NodeID)
		if err != nil {
			return nil, err
		}
		decrypted, err := s.crypto.DecryptSubtree(nc.Config)
		if err != nil {
			return nil, err
		}
		configs = append(configs, decrypted)
	}

	return MergeLineage(configs), nil
}

// RawConfig returns a node's local overrides. Unless includeSecrets is set
// (the caller carries admin:*), sensitive leaves are replaced with a masked
// placeholder rather than their decrypted value.
func (s *Service) RawConfig(ctx context.Context, db dbtx.DBTX, orgID, nodeID string, includeSecrets bool) (map[string]any, error) {
	nc, err := s.configs.Get(ctx, db, orgID, nodeID)
	if err != nil {
		return nil, err
	}

	if includeSecrets {
		return s.crypto.DecryptSubtree(nc.Config)
	}
	return maskEnvelopes(nc.Config), nil
}

const maskedPlaceholder = "***"

// maskEnvelopes walks a node's stored config, replacing every encryption
// envelope with a fixed placeholder instead of decrypting it.
func maskEnvelopes(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = maskValue(v)
	}
	return out
}

func maskValue(v any) any {
	switch t := v.(type) {
	case string:
		if crypto.IsEnvelope(t) {
			return maskedPlaceholder
		}
		return t
	case map[string]any:
		return maskEnvelopes(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = maskValue(e)
		}
		return out
	default:
		return v
	}
}

// PutConfig replaces a node's local config, encrypting sensitive fields
// before persisting, and records an audit event in the same transaction.
func (s *Service) PutConfig(ctx context.Context, db dbtx.DBTX, orgID, nodeID string, config map[string]any, actor string) error {
	n, err := s.nodes.Get(ctx, db, orgID, nodeID)
	if err != nil {
		return err
	}

	encrypted, err := s.crypto.EncryptSubtree(config, s.isSensitive)
	if err != nil {
		return err
	}

	if err := s.configs.Upsert(ctx, db, NodeConfig{OrgID: orgID, NodeID: nodeID, Config: encrypted, UpdatedBy: actor}); err != nil {
		return err
	}

	_, err = s.auditor.Record(ctx, db, audit.Event{
		OrgID:         orgID,
		Source:        audit.SourceConfig,
		EventType:     "config.updated",
		Actor:         actor,
		TeamNodeID:    teamNodeIDOf(n),
		Summary:       fmt.Sprintf("local config for %s updated", nodeID),
		CorrelationID: correlationID(ctx),
	})
	return err
}

// ApplyPathChanges merges a set of approved policy path changes into a
// node's live config and persists the result. It satisfies
// policy.ConfigApplier so an approved proposal's changes can be written back
// without policy importing scope.
func (s *Service) ApplyPathChanges(ctx context.Context, db dbtx.DBTX, orgID, nodeID string, changes []policy.PathChange, actor string) error {
	current, err := s.RawConfig(ctx, db, orgID, nodeID, true)
	if err != nil {
		return err
	}
	merged := DeepMerge(current, policy.ApplyChanges(changes))
	return s.PutConfig(ctx, db, orgID, nodeID, merged, actor)
}

// ListNodes returns every node in an org.
func (s *Service) ListNodes(ctx context.Context, db dbtx.DBTX, orgID string) ([]Node, error) {
	return s.nodes.List(ctx, db, orgID)
}

// Children returns a node's direct children.
func (s *Service) Children(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) ([]Node, error) {
	return s.nodes.Children(ctx, db, orgID, nodeID)
}
