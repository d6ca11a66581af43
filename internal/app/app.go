// Package app wires every confcore component into a runnable server:
// config, storage, crypto, identity, the tree/token/policy/audit services,
// the background sweep worker, and the HTTP routes that expose them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/confcore/internal/config"
	"github.com/wisbric/confcore/internal/crypto"
	"github.com/wisbric/confcore/internal/dbtx"
	"github.com/wisbric/confcore/internal/httpserver"
	"github.com/wisbric/confcore/internal/platform"
	"github.com/wisbric/confcore/internal/sweep"
	"github.com/wisbric/confcore/internal/telemetry"
	"github.com/wisbric/confcore/pkg/audit"
	"github.com/wisbric/confcore/pkg/identity"
	"github.com/wisbric/confcore/pkg/policy"
	"github.com/wisbric/confcore/pkg/scope"
	"github.com/wisbric/confcore/pkg/token"
)

// Run is the main application entry point: it loads infrastructure, wires
// every domain component, and serves HTTP until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting confcore", "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	retiredKeys, err := cfg.RetiredKeys()
	if err != nil {
		return fmt.Errorf("parsing retired encryption keys: %w", err)
	}
	cryptoMgr, err := crypto.NewManager(cfg.EncryptionKeyID, cfg.EncryptionKey, retiredKeys)
	if err != nil {
		return fmt.Errorf("initializing encryption manager: %w", err)
	}
	isSensitive := crypto.NewSensitivePredicate(cfg.SensitiveKeys)

	metricsReg := telemetry.NewMetricsRegistry()

	// Wiring order matters here: scope, token, and policy form a three-way
	// dependency (policy applies approved proposals through scope, scope
	// revokes tokens through token, token caps expiry through policy), so
	// two settable shims stand in for scope.Service until it's built, and
	// policy is constructed before token so token can hold a real
	// *policy.Service rather than a shim of its own.
	auditRepo := audit.NewRepo()
	auditSvc := audit.NewService(auditRepo)

	tokenRepo := token.NewRepo()
	nodeRepo := scope.NewNodeRepo()
	configRepo := scope.NewConfigRepo()

	policyRepo := policy.NewRepo()
	proposalRepo := policy.NewProposalRepo()

	scopeForToken := &scopeNodeTypeShim{}
	scopeForPolicy := &scopeConfigApplierShim{}

	policySvc := policy.NewService(policyRepo, proposalRepo, auditSvc, scopeForPolicy)
	tokenSvc := token.NewService(tokenRepo, cfg.TokenPepper, scopeForToken, auditSvc, policySvc)

	scopeSvc := scope.NewService(nodeRepo, configRepo, cryptoMgr, isSensitive, auditSvc, tokenSvc, cfg.MaxTreeDepth)
	scopeForToken.svc = scopeSvc
	scopeForPolicy.svc = scopeSvc

	adminRepo := identity.NewAdminTokenRepo()
	ssoRepo := identity.NewSSOConfigRepo()
	limiter := identity.NewRateLimiter(rdb, 20, 15*time.Minute)
	resolver := identity.NewResolver(cfg.TokenPepper, cfg.AdminOverrideToken, adminRepo, ssoRepo, tokenSvc, limiter)

	srv := httpserver.NewServer(
		httpserver.Config{CORSAllowedOrigins: cfg.CORSAllowedOrigins},
		logger, db, rdb, metricsReg,
		identity.Middleware(resolver, db, logger),
	)

	srv.Auth.Mount("/", identity.NewHandler().Routes())

	scopeHandler := scope.NewHandler(scopeSvc, policySvc, db)
	srv.AdminOrgs.Mount("/", scopeHandler.AdminRoutes())
	srv.SelfOrgs.Mount("/", scopeHandler.SelfRoutes())

	tokenHandler := token.NewHandler(tokenSvc, db)
	srv.AdminOrgs.Mount("/teams/{team}/tokens", tokenHandler.Routes())

	auditHandler := audit.NewHandler(auditSvc, db)
	srv.AdminOrgs.Mount("/audit", auditHandler.Routes())

	policyHandler := policy.NewHandler(policySvc, db)
	srv.AdminOrgs.Mount("/", policyHandler.Routes())

	sweepWorker := sweep.NewWorker(db, tokenRepo, auditSvc, rdb, logger)
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	go sweepWorker.RunLoop(sweepCtx, time.Duration(cfg.SweepIntervalSeconds)*time.Second)
	defer cancelSweep()

	flushInterval := time.Duration(cfg.TouchFlushIntervalSeconds) * time.Second
	go runTouchFlushLoop(ctx, tokenSvc, db, flushInterval, logger)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := tokenSvc.FlushTouches(shutdownCtx, db); err != nil {
			logger.Error("flushing token touches on shutdown", "error", err)
		}
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runTouchFlushLoop periodically persists coalesced token last_used_at
// updates so a crash loses at most one interval's worth of touches.
func runTouchFlushLoop(ctx context.Context, tokenSvc *token.Service, db *pgxpool.Pool, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tokenSvc.FlushTouches(ctx, db); err != nil {
				logger.Error("flushing token touches", "error", err)
			}
		}
	}
}

// scopeNodeTypeShim breaks the scope<->token construction-order cycle: token
// needs a NodeTypeChecker at construction time, but the concrete
// scope.Service isn't built until after token.Service exists (token.Service
// satisfies scope.TokenRevoker, the other half of the cycle). svc is set
// once, immediately after scope.NewService returns, before any request is served.
type scopeNodeTypeShim struct {
	svc *scope.Service
}

func (s *scopeNodeTypeShim) NodeType(ctx context.Context, db dbtx.DBTX, orgID, nodeID string) (string, error) {
	return s.svc.NodeType(ctx, db, orgID, nodeID)
}

// scopeConfigApplierShim breaks the scope<->policy construction-order cycle
// the same way: policy needs a ConfigApplier at construction time, but the
// concrete scope.Service isn't built until after it (scope.Service needs
// token.Service, which in turn needs the policy.Service this shim stands in
// for). svc is set once, immediately after scope.NewService returns.
type scopeConfigApplierShim struct {
	svc *scope.Service
}

func (s *scopeConfigApplierShim) ApplyPathChanges(ctx context.Context, db dbtx.DBTX, orgID, nodeID string, changes []policy.PathChange, actor string) error {
	return s.svc.ApplyPathChanges(ctx, db, orgID, nodeID, changes, actor)
}
