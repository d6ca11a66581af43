// Package token implements the token store (C4): issuance, peppered-HMAC
// hashing, lookup, last-used coalescing, revocation, and the expiry/
// inactivity policy applied both at resolve time and by the background
// sweep.
package token

import (
	"context"
	"time"

	"github.com/wisbric/confcore/internal/dbtx"
)

// RevokeReason records why a token stopped being active.
type RevokeReason string

const (
	RevokeReasonManual   RevokeReason = "manual"
	RevokeReasonExpired  RevokeReason = "expired"
	RevokeReasonInactive RevokeReason = "inactive"
)

// Token is one issued team-scoped bearer credential. The plaintext secret
// is never stored; only its peppered HMAC hash is.
type Token struct {
	TokenID      string
	OrgID        string
	TeamNodeID   string
	TokenHash    []byte
	IssuedAt     time.Time
	IssuedBy     string
	LastUsedAt   *time.Time
	ExpiresAt    *time.Time
	RevokedAt    *time.Time
	RevokedReason string
}

// Active reports whether t is currently usable: not revoked, and not past
// its expiry if one is set.
func (t Token) Active(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Issued is returned once, at issuance, carrying the plaintext secret that
// will never be retrievable again.
type Issued struct {
	TokenID   string
	Secret    string
	ExpiresAt *time.Time
}

// NodeTypeChecker lets the token service validate that a node being issued
// a token is a team node, without importing the scope package (scope in
// turn calls Service.RevokeAllForTeam through its own TokenRevoker interface
// to cascade-revoke on team deletion).
type NodeTypeChecker interface {
	NodeType(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) (string, error)
}
