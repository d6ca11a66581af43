package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/internal/dbtx"
)

// SSOConfig is the per-org identity-provider configuration. ClientSecret is
// stored as an encryption envelope, never in plaintext.
type SSOConfig struct {
	OrgID           string
	ProviderType    string
	Issuer          string
	ClientID        string
	ClientSecretEnv string // envelope string, see internal/crypto
	AllowedDomains  []string
}

const ssoConfigColumns = "org_id, provider_type, issuer, client_id, client_secret, allowed_domains"

// SSOConfigRepo persists per-org SSO configuration used by step 4 of the
// resolution order.
type SSOConfigRepo struct{}

func NewSSOConfigRepo() *SSOConfigRepo { return &SSOConfigRepo{} }

func (r *SSOConfigRepo) Get(ctx context.Context, db dbtx.DBTX, orgID string) (SSOConfig, error) {
	row := db.QueryRow(ctx, `SELECT `+ssoConfigColumns+` FROM sso_configs WHERE org_id = $1`, orgID)
	var c SSOConfig
	err := row.Scan(&c.OrgID, &c.ProviderType, &c.Issuer, &c.ClientID, &c.ClientSecretEnv, &c.AllowedDomains)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SSOConfig{}, apperr.New(apperr.NotFound, "no SSO configuration for org")
		}
		return SSOConfig{}, apperr.Wrap(apperr.Transient, err, "loading SSO configuration")
	}
	return c, nil
}

func (r *SSOConfigRepo) Upsert(ctx context.Context, db dbtx.DBTX, c SSOConfig) (SSOConfig, error) {
	row := db.QueryRow(ctx,
		`INSERT INTO sso_configs (org_id, provider_type, issuer, client_id, client_secret, allowed_domains)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (org_id) DO UPDATE SET
		   provider_type = EXCLUDED.provider_type,
		   issuer = EXCLUDED.issuer,
		   client_id = EXCLUDED.client_id,
		   client_secret = EXCLUDED.client_secret,
		   allowed_domains = EXCLUDED.allowed_domains
		 RETURNING `+ssoConfigColumns,
		c.OrgID, c.ProviderType, c.Issuer, c.ClientID, c.ClientSecretEnv, c.AllowedDomains,
	)
	var out SSOConfig
	if err := row.Scan(&out.OrgID, &out.ProviderType, &out.Issuer, &out.ClientID, &out.ClientSecretEnv, &out.AllowedDomains); err != nil {
		return SSOConfig{}, apperr.Wrap(apperr.Transient, err, "upserting SSO configuration")
	}
	return out, nil
}
