package cli

import (
	"fmt"

	"github.com/lazypower/substream/internal/config"
	"github.com/lazypower/substream/internal/store"
)

// loadConfig reads --config and applies --db on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

// resolveDBPath returns the configured path, or ~/.substream/substream.db.
func resolveDBPath(cfg config.Config) (string, error) {
	if cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}
	p, err := store.DefaultDBPath()
	if err != nil {
		return "", fmt.Errorf("resolve db path: %w", err)
	}
	return p, nil
}

// openDB is a helper that opens the history database for CLI commands.
func openDB(cfg config.Config) (*store.DB, string, error) {
	p, err := resolveDBPath(cfg)
	if err != nil {
		return nil, "", err
	}
	db, err := store.Open(p)
	if err != nil {
		return nil, p, fmt.Errorf("open database: %w", err)
	}
	return db, p, nil
}
