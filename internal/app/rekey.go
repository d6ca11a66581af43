package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/confcore/internal/config"
	"github.com/wisbric/confcore/internal/crypto"
	"github.com/wisbric/confcore/internal/platform"
	"github.com/wisbric/confcore/internal/telemetry"
)

// Rekey walks every encrypted value reachable from node_configs and
// sso_configs, re-encrypting anything still sealed under a retired key with
// the active one. It is invoked via the "rekey" CLI mode rather than an
// HTTP endpoint: re-keying touches every row in two tables and is meant to
// run once, offline or during a maintenance window, after rotating
// ENCRYPTION_KEY_ID/ENCRYPTION_KEY and moving the old key into
// ENCRYPTION_KEYS_RETIRED.
func Rekey(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	retiredKeys, err := cfg.RetiredKeys()
	if err != nil {
		return fmt.Errorf("parsing retired encryption keys: %w", err)
	}
	cryptoMgr, err := crypto.NewManager(cfg.EncryptionKeyID, cfg.EncryptionKey, retiredKeys)
	if err != nil {
		return fmt.Errorf("initializing encryption manager: %w", err)
	}

	configsRekeyed, err := rekeyNodeConfigs(ctx, db, cryptoMgr, logger)
	if err != nil {
		return fmt.Errorf("rekeying node configs: %w", err)
	}
	ssoRekeyed, err := rekeySSOConfigs(ctx, db, cryptoMgr, logger)
	if err != nil {
		return fmt.Errorf("rekeying SSO configs: %w", err)
	}

	logger.Info("rekey complete", "active_key", cfg.EncryptionKeyID,
		"node_configs_rekeyed", configsRekeyed, "sso_configs_rekeyed", ssoRekeyed)
	return nil
}

type nodeConfigRow struct {
	orgID  string
	nodeID string
	config map[string]any
}

func rekeyNodeConfigs(ctx context.Context, db *pgxpool.Pool, mgr *crypto.Manager, logger *slog.Logger) (int, error) {
	rows, err := db.Query(ctx, `SELECT org_id, node_id, config FROM node_configs`)
	if err != nil {
		return 0, fmt.Errorf("listing node configs: %w", err)
	}
	var candidates []nodeConfigRow
	for rows.Next() {
		var row nodeConfigRow
		var raw []byte
		if err := rows.Scan(&row.orgID, &row.nodeID, &raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning node config: %w", err)
		}
		row.config = map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &row.config); err != nil {
				rows.Close()
				return 0, fmt.Errorf("decoding node config %s/%s: %w", row.orgID, row.nodeID, err)
			}
		}
		candidates = append(candidates, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterating node configs: %w", err)
	}
	rows.Close()

	rekeyed := 0
	for _, row := range candidates {
		updated, changed, err := mgr.RekeySubtree(row.config)
		if err != nil {
			return rekeyed, fmt.Errorf("rekeying node config %s/%s: %w", row.orgID, row.nodeID, err)
		}
		if !changed {
			continue
		}
		raw, err := json.Marshal(updated)
		if err != nil {
			return rekeyed, fmt.Errorf("encoding rekeyed config %s/%s: %w", row.orgID, row.nodeID, err)
		}
		if _, err := db.Exec(ctx, `UPDATE node_configs SET config = $3 WHERE org_id = $1 AND node_id = $2`,
			row.orgID, row.nodeID, raw); err != nil {
			return rekeyed, fmt.Errorf("writing rekeyed config %s/%s: %w", row.orgID, row.nodeID, err)
		}
		rekeyed++
		logger.Debug("rekeyed node config", "org_id", row.orgID, "node_id", row.nodeID)
	}
	return rekeyed, nil
}

func rekeySSOConfigs(ctx context.Context, db *pgxpool.Pool, mgr *crypto.Manager, logger *slog.Logger) (int, error) {
	rows, err := db.Query(ctx, `SELECT org_id, client_secret FROM sso_configs`)
	if err != nil {
		return 0, fmt.Errorf("listing SSO configs: %w", err)
	}
	type ssoRow struct {
		orgID  string
		secret string
	}
	var candidates []ssoRow
	for rows.Next() {
		var row ssoRow
		if err := rows.Scan(&row.orgID, &row.secret); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning SSO config: %w", err)
		}
		candidates = append(candidates, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterating SSO configs: %w", err)
	}
	rows.Close()

	rekeyed := 0
	for _, row := range candidates {
		updated, changed, err := mgr.RekeyValue(row.secret)
		if err != nil {
			return rekeyed, fmt.Errorf("rekeying SSO config %s: %w", row.orgID, err)
		}
		if !changed {
			continue
		}
		if _, err := db.Exec(ctx, `UPDATE sso_configs SET client_secret = $2 WHERE org_id = $1`, row.orgID, updated); err != nil {
			return rekeyed, fmt.Errorf("writing rekeyed SSO config %s: %w", row.orgID, err)
		}
		rekeyed++
		logger.Debug("rekeyed SSO config", "org_id", row.orgID)
	}
	return rekeyed, nil
}
