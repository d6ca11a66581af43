// Package scope implements the node tree engine (C3): CRUD over the
// org→unit→team forest, ancestry/lineage, cycle prevention, and the
// deep-merge that turns a lineage of local overrides into an effective
// configuration.
package scope

import "time"

// NodeType is the position of a Node in its org's tree.
type NodeType string

const (
	NodeTypeOrg  NodeType = "org"
	NodeTypeUnit NodeType = "unit"
	NodeTypeTeam NodeType = "team"
)

// DefaultMaxTreeDepth bounds lineage walks; exceeding it means the stored data has
// a cycle, which is a fatal invariant violation rather than a request error.
const DefaultMaxTreeDepth = 32

// Node is one entry in an org's rooted forest. OrgID+NodeID is the natural
// key; NodeID is opaque and unique only within its org.
type Node struct {
	OrgID     string
	NodeID    string
	ParentID  *string
	NodeType  NodeType
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NodeConfig holds a node's local configuration overrides. Config is the
// stored form, with sensitive fields held as encryption envelopes; the
// service encrypts them immediately before a write and decrypts (or masks)
// them immediately after a read.
type NodeConfig struct {
	OrgID     string
	NodeID    string
	Config    map[string]any
	UpdatedAt time.Time
	UpdatedBy string
}
