package store

import (
	"sort"
	"sync"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

type matchKey struct {
	source string
	offset uint64
}

// MemoryStore implements Store using in-memory data structures.
type MemoryStore struct {
	mu      sync.RWMutex
	matches []*types.Match
	index   map[matchKey]int // position in matches
	scans   []types.SourceResult
	byName  map[string]int // position in scans
}

// NewMemory creates a new in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		index:  make(map[matchKey]int),
		byName: make(map[string]int),
	}
}

// AddScan records the outcome of scanning one source.
func (m *MemoryStore) AddScan(r types.SourceResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i, ok := m.byName[r.Source]; ok {
		m.scans[i] = r
		return nil
	}
	m.byName[r.Source] = len(m.scans)
	m.scans = append(m.scans, r)
	return nil
}

// AddMatch stores a match record.
func (m *MemoryStore) AddMatch(match *types.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := matchKey{source: match.Source, offset: match.Offset}
	if i, ok := m.index[key]; ok {
		m.matches[i] = match
		return nil
	}
	m.index[key] = len(m.matches)
	m.matches = append(m.matches, match)
	return nil
}

// GetMatches retrieves the matches of one source in offset order.
func (m *MemoryStore) GetMatches(source string) ([]*types.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*types.Match{}
	for _, match := range m.matches {
		if match.Source == source {
			result = append(result, match)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Offset < result[j].Offset })
	return result, nil
}

// GetAllMatches retrieves all matches in insertion order.
func (m *MemoryStore) GetAllMatches() ([]*types.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid external modifications
	result := make([]*types.Match, len(m.matches))
	copy(result, m.matches)
	return result, nil
}

// GetScans retrieves all scan records in insertion order.
func (m *MemoryStore) GetScans() ([]types.SourceResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]types.SourceResult, len(m.scans))
	copy(result, m.scans)
	return result, nil
}

// Close closes the store.
// For in-memory store, this is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
