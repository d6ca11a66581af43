// Package policy implements the security policy engine (C6): per-org
// guardrails enforced against a proposed config diff before it is written.
package policy

// SecurityPolicy is the exactly-zero-or-one-per-org guardrail row.
type SecurityPolicy struct {
	OrgID                   string
	TokenExpiryDays         *int
	TokenWarnBeforeDays     *int
	TokenRevokeInactiveDays *int
	LockedPaths             []string
	MaxValues               map[string]float64
	RequireApprovalPrompts  bool
	RequireApprovalTools    bool
	LogAllChanges           bool
}

// PathChange is a single dotted-path leaf assignment or deletion derived
// by Diff from walking a proposed patch.
type PathChange struct {
	Path      string
	Value     any // nil when the change is a delete
	IsDelete  bool
	IsNumeric bool
	Numeric   float64
}

// PendingProposal is a change set that matched an approval-gated path and
// was queued instead of applied.
type PendingProposal struct {
	OrgID     string
	NodeID    string
	Changes   []PathChange
	ProposedBy string
}
