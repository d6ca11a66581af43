package policy

import (
	"context"
	"fmt"

	"github.com/wisbric/confcore/internal/dbtx"
	"github.com/wisbric/confcore/internal/httpserver"
	"github.com/wisbric/confcore/pkg/audit"
)

// correlationID returns the request's correlation id as the pointer shape
// audit.Event expects, or nil if the context carries none (e.g. a
// background job rather than an HTTP request).
func correlationID(ctx context.Context) *string {
	if id := httpserver.CorrelationIDFromContext(ctx); id != "" {
		return &id
	}
	return nil
}

// ConfigApplier is the narrow interface policy depends on to write an
// approved proposal's changes into a node's live config, without importing
// pkg/scope (which itself depends on policy for Diff/Enforce/ApplyChanges).
// scope.Service satisfies this via ApplyPathChanges, which owns the
// deep-merge semantics the way every other config write does.
type ConfigApplier interface {
	ApplyPathChanges(ctx context.Context, db dbtx.DBTX, orgID, nodeID string, changes []PathChange, actor string) error
}

// Service wires the policy repository, proposal store, and audit trail
// together for the admin-facing policy endpoints.
type Service struct {
	policies  *Repo
	proposals *ProposalRepo
	auditor   audit.Recorder
	configs   ConfigApplier
}

func NewService(policies *Repo, proposals *ProposalRepo, auditor audit.Recorder, configs ConfigApplier) *Service {
	return &Service{policies: policies, proposals: proposals, auditor: auditor, configs: configs}
}

func (s *Service) Get(ctx context.Context, db dbtx.DBTX, orgID string) (SecurityPolicy, error) {
	return s.policies.Get(ctx, db, orgID)
}

// Put replaces an org's policy and records an audit event in the same
// transaction.
func (s *Service) Put(ctx context.Context, db dbtx.DBTX, p SecurityPolicy, actor string) (SecurityPolicy, error) {
	out, err := s.policies.Upsert(ctx, db, p)
	if err != nil {
		return SecurityPolicy{}, err
	}

	_, err = s.auditor.Record(ctx, db, audit.Event{
		OrgID:         p.OrgID,
		Source:        audit.SourceConfig,
		EventType:     "policy.updated",
		Actor:         actor,
		Summary:       "security policy updated",
		CorrelationID: correlationID(ctx),
		Details: map[string]any{
			"locked_paths": p.LockedPaths,
		},
	})
	if err != nil {
		return SecurityPolicy{}, err
	}
	return out, nil
}

// QueueProposal persists a set of approval-gated changes as a pending
// proposal and records an audit event noting that the write was deferred.
func (s *Service) QueueProposal(ctx context.Context, db dbtx.DBTX, orgID, nodeID string, changes []PathChange, actor string) (StoredProposal, error) {
	sp, err := s.proposals.Create(ctx, db, PendingProposal{OrgID: orgID, NodeID: nodeID, Changes: changes, ProposedBy: actor})
	if err != nil {
		return StoredProposal{}, err
	}

	_, err = s.auditor.Record(ctx, db, audit.Event{
		OrgID:         orgID,
		Source:        audit.SourceConfig,
		EventType:     "policy.proposal.queued",
		Actor:         actor,
		TeamNodeID:    &nodeID,
		Summary:       "config change queued for approval",
		CorrelationID: correlationID(ctx),
	})
	if err != nil {
		return StoredProposal{}, err
	}
	return sp, nil
}

// ListPending returns every proposal awaiting approval for an org.
func (s *Service) ListPending(ctx context.Context, db dbtx.DBTX, orgID string) ([]StoredProposal, error) {
	return s.proposals.ListPending(ctx, db, orgID)
}

// Resolve approves or rejects a pending proposal and records an audit event.
// Approving writes the proposal's changes into the node's live config in the
// same transaction; rejecting leaves the config untouched.
func (s *Service) Resolve(ctx context.Context, db dbtx.DBTX, orgID, proposalID, status, actor string) (StoredProposal, error) {
	sp, err := s.proposals.Resolve(ctx, db, orgID, proposalID, status)
	if err != nil {
		return StoredProposal{}, err
	}

	if status == "approved" {
		changes, err := sp.Changes()
		if err != nil {
			return StoredProposal{}, err
		}
		if err := s.configs.ApplyPathChanges(ctx, db, orgID, sp.NodeID, changes, actor); err != nil {
			return StoredProposal{}, fmt.Errorf("applying approved proposal: %w", err)
		}
	}

	_, err = s.auditor.Record(ctx, db, audit.Event{
		OrgID:         orgID,
		Source:        audit.SourceConfig,
		EventType:     "policy.proposal." + status,
		Actor:         actor,
		TeamNodeID:    &sp.NodeID,
		Summary:       "pending config proposal " + status,
		CorrelationID: correlationID(ctx),
	})
	if err != nil {
		return StoredProposal{}, err
	}
	return sp, nil
}
