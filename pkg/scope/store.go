package scope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/internal/dbtx"
)

const nodeColumns = `org_id, node_id, parent_id, node_type, name, created_at, updated_at`

// NodeRepo is the C2 repository for Node rows.
type NodeRepo struct{}

// NewNodeRepo constructs a NodeRepo. It holds no state; every method takes
// the DBTX it should run against, so the same repo serves pooled reads and
// transactional writes.
func NewNodeRepo() *NodeRepo { return &NodeRepo{} }

func scanNode(row pgx.Row) (Node, error) {
	var n Node
	err := row.Scan(&n.OrgID, &n.NodeID, &n.ParentID, &n.NodeType, &n.Name, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// Create inserts a new node. Returns Conflict on a duplicate (org_id, node_id)
// and FKViolation if parent_id does not reference an existing node in the org.
func (r *NodeRepo) Create(ctx context.Context, db dbtx.DBTX, n Node) (Node, error) {
	query := `INSERT INTO nodes (` + nodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING ` + nodeColumns

	row := db.QueryRow(ctx, query, n.OrgID, n.NodeID, n.ParentID, n.NodeType, n.Name)
	created, err := scanNode(row)
	if err != nil {
		return Node{}, mapNodeWriteError(err)
	}
	return created, nil
}

// Get returns a single node, or NotFound.
func (r *NodeRepo) Get(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) (Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE org_id = $1 AND node_id = $2`
	row := db.QueryRow(ctx, query, orgID, nodeID)
	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Node{}, apperr.New(apperr.NotFound, "node not found")
		}
		return Node{}, fmt.Errorf("getting node: %w", err)
	}
	return n, nil
}

// List returns every node in an org.
func (r *NodeRepo) List(ctx context.Context, db dbtx.DBTX, orgID string) ([]Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE org_id = $1 ORDER BY node_id`
	rows, err := db.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	return scanNodes(rows)
}

// Children returns the direct children of a node.
func (r *NodeRepo) Children(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) ([]Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE org_id = $1 AND parent_id = $2 ORDER BY node_id`
	rows, err := db.Query(ctx, query, orgID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	return scanNodes(rows)
}

func scanNodes(rows pgx.Rows) ([]Node, error) {
	defer rows.Close()
	var out []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return out, nil
}

// UpdateNameAndParent renames a node and/or reparents it. Pass nil for a
// field that should be left unchanged.
func (r *NodeRepo) UpdateNameAndParent(ctx context.Context, db dbtx.DBTX, orgID, nodeID string, name *string, parentID *string, reparent bool) (Node, error) {
	var row pgx.Row
	switch {
	case name != nil && reparent:
		row = db.QueryRow(ctx, `UPDATE nodes SET name = $3, parent_id = $4, updated_at = now()
			WHERE org_id = $1 AND node_id = $2 RETURNING `+nodeColumns, orgID, nodeID, *name, parentID)
	case name != nil:
		row = db.QueryRow(ctx, `UPDATE nodes SET name = $3, updated_at = now()
			WHERE org_id = $1 AND node_id = $2 RETURNING `+nodeColumns, orgID, nodeID, *name)
	case reparent:
		row = db.QueryRow(ctx, `UPDATE nodes SET parent_id = $3, updated_at = now()
			WHERE org_id = $1 AND node_id = $2 RETURNING `+nodeColumns, orgID, nodeID, parentID)
	default:
		return r.Get(ctx, db, orgID, nodeID)
	}

	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Node{}, apperr.New(apperr.NotFound, "node not found")
		}
		return Node{}, mapNodeWriteError(err)
	}
	return n, nil
}

// Delete removes a node. Callers must have already verified it has no children.
func (r *NodeRepo) Delete(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) error {
	tag, err := db.Exec(ctx, `DELETE FROM nodes WHERE org_id = $1 AND node_id = $2`, orgID, nodeID)
	if err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "node not found")
	}
	return nil
}

func mapNodeWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return apperr.New(apperr.Conflict, "node_id already exists in this org")
		case "23503": // foreign_key_violation
			return apperr.New(apperr.FKViolation, "parent node does not exist")
		case "08000", "08003", "08006", "57P01":
			return apperr.Wrap(apperr.Transient, err, "database connection error")
		}
	}
	return fmt.Errorf("writing node: %w", err)
}

// ConfigRepo is the C2 repository for NodeConfig rows. The Config field it
// reads and writes is the encrypted-at-rest JSON; callers run it through the
// crypto module's subtree encrypt/decrypt on the way in and out.
type ConfigRepo struct{}

// NewConfigRepo constructs a ConfigRepo.
func NewConfigRepo() *ConfigRepo { return &ConfigRepo{} }

// Get returns a node's local config, or an empty map if none has been set yet.
func (r *ConfigRepo) Get(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) (NodeConfig, error) {
	var raw []byte
	nc := NodeConfig{OrgID: orgID, NodeID: nodeID, Config: map[string]any{}}

	row := db.QueryRow(ctx, `SELECT config, updated_at, updated_by FROM node_configs WHERE org_id = $1 AND node_id = $2`, orgID, nodeID)
	if err := row.Scan(&raw, &nc.UpdatedAt, &nc.UpdatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nc, nil
		}
		return NodeConfig{}, fmt.Errorf("getting node config: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &nc.Config); err != nil {
			return NodeConfig{}, fmt.Errorf("decoding node config: %w", err)
		}
	}
	return nc, nil
}

// Upsert replaces a node's local config (already encrypted by the caller).
func (r *ConfigRepo) Upsert(ctx context.Context, db dbtx.DBTX, nc NodeConfig) error {
	raw, err := json.Marshal(nc.Config)
	if err != nil {
		return fmt.Errorf("encoding node config: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO node_configs (org_id, node_id, config, updated_at, updated_by)
		VALUES ($1, $2, $3, now(), $4)
		ON CONFLICT (org_id, node_id) DO UPDATE SET config = EXCLUDED.config, updated_at = now(), updated_by = EXCLUDED.updated_by
	`, nc.OrgID, nc.NodeID, raw, nc.UpdatedBy)
	if err != nil {
		return mapNodeWriteError(err)
	}
	return nil
}

// Delete removes a node's local config, if any.
func (r *ConfigRepo) Delete(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) error {
	_, err := db.Exec(ctx, `DELETE FROM node_configs WHERE org_id = $1 AND node_id = $2`, orgID, nodeID)
	if err != nil {
		return fmt.Errorf("deleting node config: %w", err)
	}
	return nil
}
