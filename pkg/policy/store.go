package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wisbric/confcore/internal/dbtx"
)

const policyColumns = `org_id, token_expiry_days, token_warn_before_days, token_revoke_inactive_days,
	locked_paths, max_values, require_approval_prompts, require_approval_tools, log_all_changes`

// Repo is the C6 repository for SecurityPolicy rows.
type Repo struct{}

func NewRepo() *Repo { return &Repo{} }

// Get returns an org's policy, or the zero-value policy (no restrictions)
// if none has been configured yet — "exactly zero or one row per org".
func (r *Repo) Get(ctx context.Context, db dbtx.DBTX, orgID string) (SecurityPolicy, error) {
	var raw []byte
	p := SecurityPolicy{OrgID: orgID, MaxValues: map[string]float64{}}

	row := db.QueryRow(ctx, `SELECT `+policyColumns+` FROM security_policies WHERE org_id = $1`, orgID)
	err := row.Scan(&p.OrgID, &p.TokenExpiryDays, &p.TokenWarnBeforeDays, &p.TokenRevokeInactiveDays,
		&p.LockedPaths, &raw, &p.RequireApprovalPrompts, &p.RequireApprovalTools, &p.LogAllChanges)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, nil
		}
		return SecurityPolicy{}, fmt.Errorf("getting security policy: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.MaxValues); err != nil {
			return SecurityPolicy{}, fmt.Errorf("decoding max_values: %w", err)
		}
	}
	return p, nil
}

// Upsert replaces an org's policy in full.
func (r *Repo) Upsert(ctx context.Context, db dbtx.DBTX, p SecurityPolicy) (SecurityPolicy, error) {
	raw, err := json.Marshal(p.MaxValues)
	if err != nil {
		return SecurityPolicy{}, fmt.Errorf("encoding max_values: %w", err)
	}

	row := db.QueryRow(ctx, `
		INSERT INTO security_policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (org_id) DO UPDATE SET
			token_expiry_days = EXCLUDED.token_expiry_days,
			token_warn_before_days = EXCLUDED.token_warn_before_days,
			token_revoke_inactive_days = EXCLUDED.token_revoke_inactive_days,
			locked_paths = EXCLUDED.locked_paths,
			max_values = EXCLUDED.max_values,
			require_approval_prompts = EXCLUDED.require_approval_prompts,
			require_approval_tools = EXCLUDED.require_approval_tools,
			log_all_changes = EXCLUDED.log_all_changes
		RETURNING `+policyColumns,
		p.OrgID, p.TokenExpiryDays, p.TokenWarnBeforeDays, p.TokenRevokeInactiveDays,
		p.LockedPaths, raw, p.RequireApprovalPrompts, p.RequireApprovalTools, p.LogAllChanges,
	)

	var out SecurityPolicy
	var outRaw []byte
	if err := row.Scan(&out.OrgID, &out.TokenExpiryDays, &out.TokenWarnBeforeDays, &out.TokenRevokeInactiveDays,
		&out.LockedPaths, &outRaw, &out.RequireApprovalPrompts, &out.RequireApprovalTools, &out.LogAllChanges); err != nil {
		return SecurityPolicy{}, fmt.Errorf("upserting security policy: %w", err)
	}
	out.MaxValues = map[string]float64{}
	if len(outRaw) > 0 {
		if err := json.Unmarshal(outRaw, &out.MaxValues); err != nil {
			return SecurityPolicy{}, fmt.Errorf("decoding max_values: %w", err)
		}
	}
	return out, nil
}
