package storage

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nixlim/latency-top/internal/config"
	"github.com/nixlim/latency-top/internal/logging"
	"github.com/nixlim/latency-top/internal/state"
)

// NewStore returns the store for cfg and whether it persists to disk. An
// empty db_path, or a database that cannot be opened, yields an in-memory
// store.
func NewStore(cfg config.StorageConfig, log *zap.Logger) (state.Store, bool, error) {
	log = logging.OrNop(log)
	if cfg.DBPath == "" {
		return state.NewMemoryStore(state.WithLogger(log)), false, nil
	}

	dbPath := expandTilde(cfg.DBPath)

	store, err := NewSQLiteStore(dbPath, cfg.RetentionDays, cfg.SummaryRetentionDays, WithLogger(log))
	if err != nil {
		log.Warn("SQLite storage unavailable, falling back to in-memory store",
			zap.String("db_path", dbPath), zap.Error(err))
		return state.NewMemoryStore(state.WithLogger(log)), false, nil
	}

	return store, true, nil
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
