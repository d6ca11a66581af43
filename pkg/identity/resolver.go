package identity

import (
	"context"
	"crypto/hmac"
	"crypto/subtle"
	"strings"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/internal/dbtx"
	"github.com/wisbric/confcore/pkg/token"
)

// Resolver implements the fixed-precedence identity resolution order: env
// admin override, DB admin token, team token, SSO JWT, else unauthenticated.
type Resolver struct {
	pepper        string
	adminOverride string
	admins        *AdminTokenRepo
	sso           *SSOConfigRepo
	tokens        *token.Service
	verifiers     *verifierCache
	limiter       *RateLimiter
}

// NewResolver constructs a Resolver. adminOverride may be empty, disabling
// step 1. limiter may be nil, disabling per-IP abuse defense.
func NewResolver(pepper, adminOverride string, admins *AdminTokenRepo, sso *SSOConfigRepo, tokens *token.Service, limiter *RateLimiter) *Resolver {
	return &Resolver{
		pepper:        pepper,
		adminOverride: adminOverride,
		admins:        admins,
		sso:           sso,
		tokens:        tokens,
		verifiers:     newVerifierCache(),
		limiter:       limiter,
	}
}

// Resolve turns a raw bearer credential into a Principal, trying each
// authentication method in the fixed precedence order. orgHint is the org
// slug/id taken from the request route (e.g. /admin/orgs/{org}/...); it is
// only consulted for step 4 (SSO), since admin overrides, admin tokens, and
// team tokens are self-describing. sourceIP gates every step after the
// override (2-4) against a per-IP failure budget; an empty sourceIP or a nil
// limiter disables that defense. It returns an apperr.Unauthenticated
// error when none apply.
func (r *Resolver) Resolve(ctx context.Context, db dbtx.DBTX, orgHint, sourceIP, bearer string) (*Principal, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, apperr.New(apperr.Unauthenticated, "no credential presented")
	}

	// 1. Process-wide admin override.
	if r.adminOverride != "" && secureEqual(bearer, r.adminOverride) {
		return &Principal{
			Role:        RoleAdmin,
			AuthKind:    AuthKindEnvOverride,
			Permissions: permSet(PermAdminAll),
		}, nil
	}

	if allowed, err := r.limiter.Allowed(ctx, sourceIP); err != nil {
		return nil, err
	} else if !allowed {
		return nil, apperr.New(apperr.Unauthenticated, "too many failed authentication attempts")
	}

	// Opaque admin/team tokens are bare base64url strings; a JWT always
	// carries two dots. Skipping the two DB-backed hash lookups for a
	// bearer that structurally can't be one saves a pair of round trips on
	// every SSO-authenticated request without changing precedence: an
	// opaque-shaped token still tries 2 and 3 before SSO, and a JWT-shaped
	// one would never have matched either lookup anyway.
	if !looksLikeJWT(bearer) {
		// 2. DB-resident admin token.
		hash := hmacHash(r.pepper, bearer)
		if admin, err := r.admins.GetByHash(ctx, db, hash); err == nil {
			_ = r.limiter.Reset(ctx, sourceIP)
			orgID := ""
			if admin.OrgID != nil {
				orgID = *admin.OrgID
			}
			return &Principal{
				Role:        RoleAdmin,
				AuthKind:    AuthKindAdminToken,
				OrgID:       orgID,
				Permissions: permSet(admin.Scopes...),
				TokenID:     admin.TokenID,
			}, nil
		} else if !apperr.Is(err, apperr.NotFound) {
			return nil, err
		}

		// 3. Team token.
		if tok, err := r.tokens.Resolve(ctx, db, bearer); err == nil {
			_ = r.limiter.Reset(ctx, sourceIP)
			teamNodeID := tok.TeamNodeID
			return &Principal{
				Role:        RoleTeam,
				AuthKind:    AuthKindTeamToken,
				OrgID:       tok.OrgID,
				TeamNodeID:  &teamNodeID,
				Permissions: permSet(PermConfigRead, PermConfigWriteSelf),
				TokenID:     tok.TokenID,
			}, nil
		} else if !apperr.Is(err, apperr.NotFound) {
			return nil, err
		}
	}

	// 4. SSO JWT, only attempted when the route carries an org hint.
	if orgHint != "" {
		if p, err := r.resolveSSO(ctx, db, orgHint, bearer); err == nil {
			return p, nil
		}
	}

	_ = r.limiter.RecordFailure(ctx, sourceIP)
	return nil, apperr.New(apperr.Unauthenticated, "no authentication method matched")
}

// looksLikeJWT reports whether bearer has the three dot-separated segments
// of a compact JWT, as opposed to the bare base64url opaque tokens this
// service issues for admin/team credentials.
func looksLikeJWT(bearer string) bool {
	return strings.Count(bearer, ".") == 2
}

func (r *Resolver) resolveSSO(ctx context.Context, db dbtx.DBTX, orgID, bearer string) (*Principal, error) {
	cfg, err := r.sso.Get(ctx, db, orgID)
	if err != nil {
		return nil, err
	}
	claims, err := verifySSOToken(ctx, r.verifiers, cfg, bearer)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthenticated, err, "SSO verification failed")
	}

	p := &Principal{
		Role:     claims.Role,
		AuthKind: AuthKindSSO,
		OrgID:    orgID,
	}
	if claims.TeamNodeID != "" {
		p.TeamNodeID = &claims.TeamNodeID
	}
	switch claims.Role {
	case RoleAdmin:
		p.Permissions = permSet(PermAdminAll)
	case RoleTeam:
		p.Permissions = permSet(PermConfigRead, PermConfigWriteSelf)
	default:
		p.Permissions = permSet(PermConfigRead)
	}
	return p, nil
}

func hmacHash(pepper, secret string) []byte {
	return token.Hash(pepper, secret)
}

// secureEqual compares two strings in constant time, avoiding a
// timing side-channel on the admin override comparison.
func secureEqual(a, b string) bool {
	return len(a) == len(b) && hmac.Equal([]byte(a), []byte(b)) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
