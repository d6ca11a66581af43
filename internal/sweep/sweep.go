// Package sweep implements the background token sweeper (C9): a scheduled
// worker that revokes expired and inactive team tokens in small batches,
// safe to run as multiple concurrent process instances.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/confcore/internal/telemetry"
	"github.com/wisbric/confcore/pkg/audit"
	"github.com/wisbric/confcore/pkg/token"
)

const (
	batchSize = 256
	lockKey   = "confcore:sweep:lock"
)

// Worker periodically sweeps expired/inactive tokens. FOR UPDATE SKIP
// LOCKED already makes concurrent sweep instances safe at the row level;
// lock additionally elects a single leader per tick via Redis so that
// idle replicas don't all pay the empty-batch query cost every interval.
// lock is optional: a nil client means every instance sweeps every tick.
type Worker struct {
	pool    *pgxpool.Pool
	tokens  *token.Repo
	auditor audit.Recorder
	lock    *redis.Client
	logger  *slog.Logger
}

func NewWorker(pool *pgxpool.Pool, tokens *token.Repo, auditor audit.Recorder, lock *redis.Client, logger *slog.Logger) *Worker {
	return &Worker{pool: pool, tokens: tokens, auditor: auditor, lock: lock, logger: logger}
}

// acquireLease tries to become this tick's sweep leader, returning true if
// it should proceed. Always true when no lock client is configured.
func (w *Worker) acquireLease(ctx context.Context, interval time.Duration) bool {
	if w.lock == nil {
		return true
	}
	ok, err := w.lock.SetNX(ctx, lockKey, "1", interval/2).Result()
	if err != nil {
		w.logger.Warn("sweep lease check failed, proceeding unleased", "error", err)
		return true
	}
	return ok
}

// RunLoop runs sweeps on interval until ctx is cancelled. It sweeps once at
// start so a freshly deployed instance doesn't wait a full interval before
// its first pass.
func (w *Worker) RunLoop(ctx context.Context, interval time.Duration) {
	w.logger.Info("token sweep loop started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if w.acquireLease(ctx, interval) {
		if err := w.SweepOnce(ctx); err != nil {
			w.logger.Error("initial token sweep", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("token sweep loop stopped")
			return
		case <-ticker.C:
			if !w.acquireLease(ctx, interval) {
				continue
			}
			if err := w.SweepOnce(ctx); err != nil {
				w.logger.Error("token sweep", "error", err)
			}
		}
	}
}

// SweepOnce drains every revocable token in batches of batchSize, each in
// its own transaction so a single bad batch cannot hold a long-lived lock.
func (w *Worker) SweepOnce(ctx context.Context) error {
	total := 0
	for {
		revoked, err := w.sweepBatch(ctx)
		if err != nil {
			return err
		}
		total += revoked
		if revoked < batchSize {
			break
		}
	}
	telemetry.SweepRunsTotal.Inc()

	if total > 0 {
		w.logger.Info("token sweep completed", "revoked", total)
	}
	return nil
}

func (w *Worker) sweepBatch(ctx context.Context) (int, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning sweep transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	revoked, reasons, err := w.tokens.SweepBatch(ctx, tx, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("sweeping token batch: %w", err)
	}

	// Sweeps aren't driven by an HTTP request, so there's no caller-supplied
	// correlation id to propagate. Mint one per batch instead of leaving
	// Record mint a fresh one per token, so every token this batch revoked
	// traces back to the same sweep pass in the audit log.
	batchID := uuid.NewString()
	for i, t := range revoked {
		if _, err := w.auditor.Record(ctx, tx, audit.Event{
			OrgID:         t.OrgID,
			Source:        audit.SourceToken,
			EventType:     "token.swept",
			Actor:         "sweeper",
			TeamNodeID:    &t.TeamNodeID,
			Summary:       fmt.Sprintf("token %s revoked by sweep (%s)", t.TokenID, reasons[i]),
			CorrelationID: &batchID,
		}); err != nil {
			return 0, fmt.Errorf("recording sweep audit event: %w", err)
		}
		telemetry.SweepTokensRevokedTotal.WithLabelValues(string(reasons[i])).Inc()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing sweep transaction: %w", err)
	}
	return len(revoked), nil
}
