package cli

import (
	_ "embed"
	"fmt"

	"go.uber.org/zap"

	"github.com/lazypower/fungimap/internal/config"
	"github.com/lazypower/fungimap/internal/entity"
	"github.com/lazypower/fungimap/internal/observability"
	"github.com/lazypower/fungimap/internal/store"
)

// demoCatalog is served when no catalog path is configured.
//
//go:embed catalog.json
var demoCatalog []byte

// loadConfig reads --config, or the default path when the flag is unset.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// openDB opens the configured database, falling back to the default path.
func openDB(cfg config.Config) (*store.DB, string, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	return db, dbPath, nil
}

// loadCatalog reads the configured catalog, or the built-in demo catalog.
func loadCatalog(cfg config.Config) ([]entity.Entity, error) {
	if cfg.Catalog.Path == "" {
		return entity.Parse(demoCatalog)
	}
	entities, err := entity.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("catalog %s has no usable records", cfg.Catalog.Path)
	}
	return entities, nil
}
