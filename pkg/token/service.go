package token

import (
	"context"
	"sync"
	"time"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/internal/dbtx"
	"github.com/wisbric/confcore/internal/httpserver"
	"github.com/wisbric/confcore/pkg/audit"
	"github.com/wisbric/confcore/pkg/policy"
)

// PolicyProvider is the narrow read interface the token service uses to cap
// issued token lifetimes at an org's configured token_expiry_days,
// satisfied by policy.Service.Get.
type PolicyProvider interface {
	Get(ctx context.Context, db dbtx.DBTX, orgID string) (policy.SecurityPolicy, error)
}

// Service is the token lifecycle's application-facing API.
type Service struct {
	repo     *Repo
	pepper   string
	nodes    NodeTypeChecker
	auditor  audit.Recorder
	policies PolicyProvider

	touchMu      sync.Mutex
	touchPending map[string]time.Time // token_id -> most recent observed use, flushed periodically
}

// NewService constructs a Service. pepper must be at least 32 bytes; this
// is validated at config load time, not here.
func NewService(repo *Repo, pepper string, nodes NodeTypeChecker, auditor audit.Recorder, policies PolicyProvider) *Service {
	return &Service{
		repo:         repo,
		pepper:       pepper,
		nodes:        nodes,
		auditor:      auditor,
		policies:     policies,
		touchPending: make(map[string]time.Time),
	}
}

// correlationID returns the request's correlation id as the pointer shape
// audit.Event expects, or nil if the context carries none.
func correlationID(ctx context.Context) *string {
	if id := httpserver.CorrelationIDFromContext(ctx); id != "" {
		return &id
	}
	return nil
}

// Issue creates a token for a team node, returning the plaintext secret
// exactly once. Fails with InvalidInput if the node is not node_type=team.
// requestedDays, if given, is the caller's requested lifetime in days; the
// org's token_expiry_days policy defaults it when omitted and caps it when
// the request asks for longer than the policy allows.
func (s *Service) Issue(ctx context.Context, db dbtx.DBTX, orgID, teamNodeID, issuedBy string, requestedDays *int) (Issued, error) {
	nodeType, err := s.nodes.NodeType(ctx, db, orgID, teamNodeID)
	if err != nil {
		return Issued{}, err
	}
	if nodeType != "team" {
		return Issued{}, apperr.New(apperr.InvalidInput, "tokens can only be issued to team nodes")
	}

	expiresAt, err := s.resolveExpiry(ctx, db, orgID, requestedDays)
	if err != nil {
		return Issued{}, err
	}

	secret, err := GenerateSecret()
	if err != nil {
		return Issued{}, err
	}

	t := Token{
		OrgID:      orgID,
		TeamNodeID: teamNodeID,
		TokenHash:  Hash(s.pepper, secret),
		IssuedBy:   issuedBy,
		ExpiresAt:  expiresAt,
	}
	created, err := s.repo.Create(ctx, db, t)
	if err != nil {
		return Issued{}, err
	}

	teamNode := teamNodeID
	if _, err := s.auditor.Record(ctx, db, audit.Event{
		OrgID:         orgID,
		Source:        audit.SourceToken,
		EventType:     "token.issued",
		Actor:         issuedBy,
		TeamNodeID:    &teamNode,
		Summary:       "issued a token for team " + teamNodeID,
		CorrelationID: correlationID(ctx),
	}); err != nil {
		return Issued{}, err
	}

	return Issued{TokenID: created.TokenID, Secret: secret, ExpiresAt: created.ExpiresAt}, nil
}

// resolveExpiry applies the org's token_expiry_days policy as a default (no
// days requested) or a ceiling (requested lifetime longer than the policy
// allows). A nil policy ceiling and a nil request both mean "no expiry".
func (s *Service) resolveExpiry(ctx context.Context, db dbtx.DBTX, orgID string, requestedDays *int) (*time.Time, error) {
	var ceiling *int
	if s.policies != nil {
		pol, err := s.policies.Get(ctx, db, orgID)
		if err != nil {
			return nil, err
		}
		ceiling = pol.TokenExpiryDays
	}

	days := requestedDays
	switch {
	case days == nil:
		days = ceiling
	case ceiling != nil && *days > *ceiling:
		days = ceiling
	}
	if days == nil {
		return nil, nil
	}

	t := time.Now().UTC().AddDate(0, 0, *days)
	return &t, nil
}

// Resolve looks up a bearer by its peppered hash. An active-but-expired
// token is revoked in place and reported as NotFound, per the component's
// expiry policy.
func (s *Service) Resolve(ctx context.Context, db dbtx.DBTX, bearer string) (Token, error) {
	hash := Hash(s.pepper, bearer)
	t, err := s.repo.GetByHash(ctx, db, hash)
	if err != nil {
		return Token{}, err
	}

	now := time.Now().UTC()
	if t.RevokedAt != nil {
		return Token{}, apperr.New(apperr.NotFound, "token not found")
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
		_ = s.repo.Revoke(ctx, db, t.TokenID, RevokeReasonExpired)
		return Token{}, apperr.New(apperr.NotFound, "token not found")
	}

	s.markUsed(t.TokenID, now)
	return t, nil
}

// markUsed coalesces last_used_at writes in memory; FlushTouches persists
// them, at most once per token per flush interval.
func (s *Service) markUsed(tokenID string, at time.Time) {
	s.touchMu.Lock()
	defer s.touchMu.Unlock()
	s.touchPending[tokenID] = at
}

// FlushTouches persists every coalesced last_used_at update and clears the
// buffer. Called on a periodic timer and on graceful shutdown.
func (s *Service) FlushTouches(ctx context.Context, db dbtx.DBTX) error {
	s.touchMu.Lock()
	pending := s.touchPending
	s.touchPending = make(map[string]time.Time)
	s.touchMu.Unlock()

	for tokenID, at := range pending {
		if err := s.repo.TouchLastUsed(ctx, db, tokenID, at); err != nil {
			return err
		}
	}
	return nil
}

// Revoke idempotently revokes a single token and records an audit event.
func (s *Service) Revoke(ctx context.Context, db dbtx.DBTX, orgID, tokenID, actor string) error {
	t, err := s.repo.Get(ctx, db, orgID, tokenID)
	if err != nil {
		return err
	}
	if err := s.repo.Revoke(ctx, db, tokenID, RevokeReasonManual); err != nil {
		return err
	}

	teamNode := t.TeamNodeID
	_, err = s.auditor.Record(ctx, db, audit.Event{
		OrgID:         orgID,
		Source:        audit.SourceToken,
		EventType:     "token.revoked",
		Actor:         actor,
		TeamNodeID:    &teamNode,
		Summary:       "revoked token " + tokenID,
		CorrelationID: correlationID(ctx),
	})
	return err
}

// RevokeAllForTeam cascades revocation to every token on a team node, for
// use by the scope engine on team deletion. It does not emit its own audit
// event per token; callers wrap this in the node-deletion audit entry.
func (s *Service) RevokeAllForTeam(ctx context.Context, db dbtx.DBTX, orgID, teamNodeID string) error {
	return s.repo.RevokeAllForTeam(ctx, db, orgID, teamNodeID, RevokeReasonManual)
}

// ListForTeam returns a paginated, newest-first list of a team's tokens.
func (s *Service) ListForTeam(ctx context.Context, db dbtx.DBTX, orgID, teamNodeID string, limit, offset int) ([]Token, int, error) {
	return s.repo.ListForTeam(ctx, db, orgID, teamNodeID, limit, offset)
}

// ListForOrg returns a paginated, newest-first list of every token in an org.
func (s *Service) ListForOrg(ctx context.Context, db dbtx.DBTX, orgID string, limit, offset int) ([]Token, int, error) {
	return s.repo.ListForOrg(ctx, db, orgID, limit, offset)
}
