package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/internal/dbtx"
)

// AdminToken is a DB-resident admin credential, optionally scoped to a
// single org (OrgID nil means global, usable against any org).
type AdminToken struct {
	TokenID   string
	OrgID     *string
	TokenHash []byte
	Scopes    []string
	CreatedAt time.Time
	RevokedAt *time.Time
}

const adminTokenColumns = "token_id, org_id, token_hash, scopes, created_at, revoked_at"

// AdminTokenRepo persists DB-resident admin tokens (step 2 of the
// resolution order, between the env override and team tokens).
type AdminTokenRepo struct{}

func NewAdminTokenRepo() *AdminTokenRepo { return &AdminTokenRepo{} }

func (r *AdminTokenRepo) GetByHash(ctx context.Context, db dbtx.DBTX, hash []byte) (AdminToken, error) {
	row := db.QueryRow(ctx,
		`SELECT `+adminTokenColumns+` FROM admin_tokens WHERE token_hash = $1 AND revoked_at IS NULL`,
		hash,
	)
	return scanAdminToken(row)
}

func (r *AdminTokenRepo) Create(ctx context.Context, db dbtx.DBTX, t AdminToken) (AdminToken, error) {
	if t.TokenID == "" {
		t.TokenID = uuid.NewString()
	}
	row := db.QueryRow(ctx,
		`INSERT INTO admin_tokens (token_id, org_id, token_hash, scopes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+adminTokenColumns,
		t.TokenID, t.OrgID, t.TokenHash, t.Scopes,
	)
	return scanAdminToken(row)
}

func (r *AdminTokenRepo) Revoke(ctx context.Context, db dbtx.DBTX, tokenID string) error {
	tag, err := db.Exec(ctx,
		`UPDATE admin_tokens SET revoked_at = now() WHERE token_id = $1 AND revoked_at IS NULL`,
		tokenID,
	)
	if err != nil {
		return apperr.Wrap(apperr.Transient, err, "revoking admin token")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "admin token not found or already revoked")
	}
	return nil
}

func scanAdminToken(row pgx.Row) (AdminToken, error) {
	var t AdminToken
	err := row.Scan(&t.TokenID, &t.OrgID, &t.TokenHash, &t.Scopes, &t.CreatedAt, &t.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AdminToken{}, apperr.New(apperr.NotFound, "admin token not found")
		}
		return AdminToken{}, apperr.Wrap(apperr.Transient, err, "scanning admin token")
	}
	return t, nil
}
