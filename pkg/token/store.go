package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/internal/dbtx"
)

const tokenColumns = `token_id, org_id, team_node_id, token_hash, issued_at, issued_by, last_used_at, expires_at, revoked_at, revoked_reason`

// Repo is the C2 repository for Token rows.
type Repo struct{}

// NewRepo constructs a Repo.
func NewRepo() *Repo { return &Repo{} }

func scanToken(row pgx.Row) (Token, error) {
	var t Token
	err := row.Scan(&t.TokenID, &t.OrgID, &t.TeamNodeID, &t.TokenHash, &t.IssuedAt, &t.IssuedBy,
		&t.LastUsedAt, &t.ExpiresAt, &t.RevokedAt, &t.RevokedReason)
	return t, err
}

// Create inserts a new token row.
func (r *Repo) Create(ctx context.Context, db dbtx.DBTX, t Token) (Token, error) {
	if t.TokenID == "" {
		t.TokenID = uuid.NewString()
	}
	row := db.QueryRow(ctx, `
		INSERT INTO tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, now(), $5, NULL, $6, NULL, NULL)
		RETURNING `+tokenColumns,
		t.TokenID, t.OrgID, t.TeamNodeID, t.TokenHash, t.IssuedBy, t.ExpiresAt,
	)
	created, err := scanToken(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Token{}, apperr.New(apperr.Conflict, "token_id already exists")
			case "23503":
				return Token{}, apperr.New(apperr.FKViolation, "team node does not exist")
			}
		}
		return Token{}, fmt.Errorf("creating token: %w", err)
	}
	return created, nil
}

// GetByHash looks up a token by its HMAC hash.
func (r *Repo) GetByHash(ctx context.Context, db dbtx.DBTX, hash []byte) (Token, error) {
	row := db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE token_hash = $1`, hash)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, apperr.New(apperr.NotFound, "token not found")
		}
		return Token{}, fmt.Errorf("looking up token: %w", err)
	}
	return t, nil
}

// Get returns a single token by id, scoped to an org.
func (r *Repo) Get(ctx context.Context, db dbtx.DBTX, orgID, tokenID string) (Token, error) {
	row := db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE org_id = $1 AND token_id = $2`, orgID, tokenID)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, apperr.New(apperr.NotFound, "token not found")
		}
		return Token{}, fmt.Errorf("getting token: %w", err)
	}
	return t, nil
}

// ListForTeam returns a team's tokens, newest first.
func (r *Repo) ListForTeam(ctx context.Context, db dbtx.DBTX, orgID, teamNodeID string, limit, offset int) ([]Token, int, error) {
	return r.list(ctx, db, `org_id = $1 AND team_node_id = $2`, []any{orgID, teamNodeID}, limit, offset)
}

// ListForOrg returns every token in an org, newest first.
func (r *Repo) ListForOrg(ctx context.Context, db dbtx.DBTX, orgID string, limit, offset int) ([]Token, int, error) {
	return r.list(ctx, db, `org_id = $1`, []any{orgID}, limit, offset)
}

func (r *Repo) list(ctx context.Context, db dbtx.DBTX, where string, args []any, limit, offset int) ([]Token, int, error) {
	var total int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM tokens WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting tokens: %w", err)
	}

	if limit <= 0 {
		limit = 25
	}
	query := fmt.Sprintf(`SELECT %s FROM tokens WHERE %s ORDER BY issued_at DESC LIMIT $%d OFFSET $%d`,
		tokenColumns, where, len(args)+1, len(args)+2)
	rows, err := db.Query(ctx, query, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning token: %w", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// TouchLastUsed sets last_used_at to the given time.
func (r *Repo) TouchLastUsed(ctx context.Context, db dbtx.DBTX, tokenID string, at time.Time) error {
	_, err := db.Exec(ctx, `UPDATE tokens SET last_used_at = $2 WHERE token_id = $1`, tokenID, at)
	if err != nil {
		return fmt.Errorf("touching token last_used_at: %w", err)
	}
	return nil
}

// Revoke sets revoked_at/revoked_reason if the token is not already revoked.
// Idempotent: revoking an already-revoked token is a no-op success.
func (r *Repo) Revoke(ctx context.Context, db dbtx.DBTX, tokenID string, reason RevokeReason) error {
	_, err := db.Exec(ctx, `
		UPDATE tokens SET revoked_at = now(), revoked_reason = $2
		WHERE token_id = $1 AND revoked_at IS NULL
	`, tokenID, string(reason))
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// RevokeAllForTeam revokes every currently-active token on a team node,
// used by the scope engine's cascade-revoke on team deletion.
func (r *Repo) RevokeAllForTeam(ctx context.Context, db dbtx.DBTX, orgID, teamNodeID string, reason RevokeReason) error {
	_, err := db.Exec(ctx, `
		UPDATE tokens SET revoked_at = now(), revoked_reason = $3
		WHERE org_id = $1 AND team_node_id = $2 AND revoked_at IS NULL
	`, orgID, teamNodeID, string(reason))
	if err != nil {
		return fmt.Errorf("revoking team tokens: %w", err)
	}
	return nil
}

// SweepBatch locks up to limit tokens that are either expired or inactive
// beyond their org's configured windows, using SELECT ... FOR UPDATE SKIP
// LOCKED so concurrent sweeper instances never double-process a token, then
// revokes them within the same transaction. Returns the revoked tokens so
// the caller can emit audit events for each.
func (r *Repo) SweepBatch(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]Token, []RevokeReason, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+prefixColumns("t", tokenColumns)+`,
			CASE
				WHEN t.expires_at IS NOT NULL AND t.expires_at <= $1 THEN 'expired'
				ELSE 'inactive'
			END AS reason
		FROM tokens t
		LEFT JOIN security_policies p ON p.org_id = t.org_id
		WHERE t.revoked_at IS NULL
		AND (
			(t.expires_at IS NOT NULL AND t.expires_at <= $1)
			OR (p.token_revoke_inactive_days IS NOT NULL
				AND COALESCE(t.last_used_at, t.issued_at) <= $1 - (p.token_revoke_inactive_days || ' days')::interval)
		)
		ORDER BY t.issued_at
		LIMIT $2
		FOR UPDATE OF t SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("selecting sweep batch: %w", err)
	}
	defer rows.Close()

	var tokens []Token
	var reasons []RevokeReason
	for rows.Next() {
		var t Token
		var reason string
		if err := rows.Scan(&t.TokenID, &t.OrgID, &t.TeamNodeID, &t.TokenHash, &t.IssuedAt, &t.IssuedBy,
			&t.LastUsedAt, &t.ExpiresAt, &t.RevokedAt, &t.RevokedReason, &reason); err != nil {
			return nil, nil, fmt.Errorf("scanning sweep candidate: %w", err)
		}
		tokens = append(tokens, t)
		reasons = append(reasons, RevokeReason(reason))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating sweep candidates: %w", err)
	}

	for i, t := range tokens {
		if err := r.Revoke(ctx, tx, t.TokenID, reasons[i]); err != nil {
			return nil, nil, err
		}
	}

	return tokens, reasons, nil
}

// prefixColumns rewrites a comma-separated column list with a table alias
// prefix, used when the sweep query joins against security_policies.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
