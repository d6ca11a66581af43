package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/internal/dbtx"
)

// StoredProposal is a PendingProposal as persisted, with an id for
// approve/reject addressing and a status.
type StoredProposal struct {
	ProposalID string
	OrgID      string
	NodeID     string
	ChangesRaw []byte
	ProposedBy string
	Status     string // pending, approved, rejected
}

const proposalColumns = `proposal_id, org_id, node_id, changes, proposed_by, status`

// ProposalRepo persists approval-gated changes queued by the policy engine.
type ProposalRepo struct{}

func NewProposalRepo() *ProposalRepo { return &ProposalRepo{} }

func (r *ProposalRepo) Create(ctx context.Context, db dbtx.DBTX, p PendingProposal) (StoredProposal, error) {
	raw, err := json.Marshal(p.Changes)
	if err != nil {
		return StoredProposal{}, fmt.Errorf("encoding proposed changes: %w", err)
	}

	row := db.QueryRow(ctx, `
		INSERT INTO pending_proposals (proposal_id, org_id, node_id, changes, proposed_by, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING `+proposalColumns,
		uuid.NewString(), p.OrgID, p.NodeID, raw, p.ProposedBy,
	)

	var sp StoredProposal
	if err := row.Scan(&sp.ProposalID, &sp.OrgID, &sp.NodeID, &sp.ChangesRaw, &sp.ProposedBy, &sp.Status); err != nil {
		return StoredProposal{}, fmt.Errorf("creating pending proposal: %w", err)
	}
	return sp, nil
}

func (r *ProposalRepo) Get(ctx context.Context, db dbtx.DBTX, orgID, proposalID string) (StoredProposal, error) {
	row := db.QueryRow(ctx, `SELECT `+proposalColumns+` FROM pending_proposals WHERE org_id = $1 AND proposal_id = $2`, orgID, proposalID)
	var sp StoredProposal
	err := row.Scan(&sp.ProposalID, &sp.OrgID, &sp.NodeID, &sp.ChangesRaw, &sp.ProposedBy, &sp.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StoredProposal{}, apperr.New(apperr.NotFound, "proposal not found")
		}
		return StoredProposal{}, fmt.Errorf("getting proposal: %w", err)
	}
	return sp, nil
}

func (r *ProposalRepo) ListPending(ctx context.Context, db dbtx.DBTX, orgID string) ([]StoredProposal, error) {
	rows, err := db.Query(ctx, `SELECT `+proposalColumns+` FROM pending_proposals WHERE org_id = $1 AND status = 'pending' ORDER BY proposal_id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing pending proposals: %w", err)
	}
	defer rows.Close()

	var out []StoredProposal
	for rows.Next() {
		var sp StoredProposal
		if err := rows.Scan(&sp.ProposalID, &sp.OrgID, &sp.NodeID, &sp.ChangesRaw, &sp.ProposedBy, &sp.Status); err != nil {
			return nil, fmt.Errorf("scanning proposal: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// Resolve marks a pending proposal approved or rejected. Applying an
// approved proposal's changes back into the node's config is the caller's
// responsibility, via Service.Resolve's ConfigApplier (pkg/scope owns config
// writes).
func (r *ProposalRepo) Resolve(ctx context.Context, db dbtx.DBTX, orgID, proposalID, status string) (StoredProposal, error) {
	row := db.QueryRow(ctx, `
		UPDATE pending_proposals SET status = $3
		WHERE org_id = $1 AND proposal_id = $2 AND status = 'pending'
		RETURNING `+proposalColumns,
		orgID, proposalID, status,
	)
	var sp StoredProposal
	err := row.Scan(&sp.ProposalID, &sp.OrgID, &sp.NodeID, &sp.ChangesRaw, &sp.ProposedBy, &sp.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StoredProposal{}, apperr.New(apperr.NotFound, "no pending proposal with that id")
		}
		return StoredProposal{}, fmt.Errorf("resolving proposal: %w", err)
	}
	return sp, nil
}

// Changes decodes the stored change set back into PathChange values.
func (sp StoredProposal) Changes() ([]PathChange, error) {
	var changes []PathChange
	if err := json.Unmarshal(sp.ChangesRaw, &changes); err != nil {
		return nil, fmt.Errorf("decoding proposal changes: %w", err)
	}
	return changes, nil
}
