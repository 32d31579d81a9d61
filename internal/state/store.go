package state

import (
	"context"
	"errors"
	"strings"

	logx "newsbot/pkg/logx"
)

// Store owns all access to the persisted seen-set.
//
// Contract:
//   - Load returns an empty SeenState when no prior state exists.
//   - Commit durably and atomically replaces persisted state; a crash
//     mid-commit must leave the previously committed state intact.
//   - Exactly one Load and at most one Commit per run.
type Store interface {
	Load(ctx context.Context) (*SeenState, error)
	Commit(ctx context.Context, s *SeenState) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("state path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "json":
		return openJSON(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown state driver: " + driver)
	}
}

// resetOnCorrupt reports whether the configured corruption policy is "reset".
func resetOnCorrupt(cfg Config) bool {
	return strings.EqualFold(strings.TrimSpace(cfg.OnCorrupt), "reset")
}
