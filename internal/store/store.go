// Package store persists mappings, either as the JSON document the remapper
// has always used or in a SQLite database.
package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"keyremap/internal/config"
	"keyremap/internal/mapping"
)

var (
	// ErrInvalidDocument is returned when a mapping file does not match the
	// mapping list schema.
	ErrInvalidDocument = errors.New("store: invalid mapping document")

	// ErrUnknownType is returned by Open for an unsupported store type.
	ErrUnknownType = errors.New("store: unknown store type")
)

// Open opens the store described by cfg. An empty path selects the default
// file for the store type inside the data directory.
func Open(cfg config.StoreConfig) (mapping.Store, error) {
	switch cfg.Type {
	case config.StoreJSON, "":
		path := cfg.Path
		if path == "" {
			path = config.DefaultStorePath()
		}
		return NewFileStore(path)
	case config.StoreSQLite:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(config.DataDir(), runtime.GOOS+"_mappings.db")
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
}
