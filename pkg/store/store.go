package store

import (
	"fmt"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// MemoryPath selects the in-memory store.
const MemoryPath = ":memory:"

// Store provides persistence for scan results.
// This interface abstracts the underlying storage implementation,
// allowing for different backends.
type Store interface {
	// AddScan records the outcome of scanning one source. Recording a
	// source again replaces the earlier record.
	AddScan(r types.SourceResult) error

	// AddMatch stores a match record. A match at the same source and
	// offset replaces the earlier one.
	AddMatch(m *types.Match) error

	// GetMatches retrieves the matches of one source in offset order.
	GetMatches(source string) ([]*types.Match, error)

	// GetAllMatches retrieves all matches in insertion order.
	GetAllMatches() ([]*types.Match, error)

	// GetScans retrieves all scan records in insertion order.
	GetScans() ([]types.SourceResult, error)

	// Close closes the database connection.
	Close() error
}

// Config for store initialization.
type Config struct {
	// Path is the database file path.
	// Use ":memory:" for an in-memory store (useful for testing).
	Path string
}

// New creates a Store: in memory for ":memory:", SQLite otherwise.
func New(cfg Config) (Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if cfg.Path == MemoryPath {
		return NewMemory(), nil
	}
	return NewSQLite(cfg.Path)
}
