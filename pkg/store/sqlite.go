package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// driverName is the database/sql driver registered by modernc.org/sqlite.
const driverName = "sqlite"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-based store.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps writes serialized and makes ":memory:"
	// databases behave as one database.
	db.SetMaxOpenConns(1)

	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// AddScan records the outcome of scanning one source.
func (s *SQLiteStore) AddScan(r types.SourceResult) error {
	kind, path := "", r.Source
	if r.Provenance != nil {
		kind, path = r.Provenance.Kind(), r.Provenance.Path()
	}
	var errText *string
	if r.Err != nil {
		msg := r.Err.Error()
		errText = &msg
	}

	_, err := s.db.Exec(`
		INSERT INTO scans (source, kind, path, match_count, error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			kind = excluded.kind,
			path = excluded.path,
			match_count = excluded.match_count,
			error = excluded.error
	`, r.Source, kind, path, r.Count, errText)
	if err != nil {
		return fmt.Errorf("inserting scan: %w", err)
	}
	return nil
}

// AddMatch stores a match record.
func (s *SQLiteStore) AddMatch(m *types.Match) error {
	var start *int64
	var before, after []byte
	if m.Context != nil {
		v := int64(m.Context.Start)
		start = &v
		before, after = m.Context.Before, m.Context.After
	}

	_, err := s.db.Exec(`
		INSERT INTO matches (source, byte_offset, length, context_start, context_before, context_after)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, byte_offset) DO UPDATE SET
			length = excluded.length,
			context_start = excluded.context_start,
			context_before = excluded.context_before,
			context_after = excluded.context_after
	`, m.Source, int64(m.Offset), m.Length, start, before, after)
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}
	return nil
}

// GetMatches retrieves the matches of one source in offset order.
func (s *SQLiteStore) GetMatches(source string) ([]*types.Match, error) {
	return s.queryMatches(`
		SELECT source, byte_offset, length, context_start, context_before, context_after
		FROM matches
		WHERE source = ?
		ORDER BY byte_offset
	`, source)
}

// GetAllMatches retrieves all matches in insertion order.
func (s *SQLiteStore) GetAllMatches() ([]*types.Match, error) {
	return s.queryMatches(`
		SELECT source, byte_offset, length, context_start, context_before, context_after
		FROM matches
		ORDER BY id
	`)
}

func (s *SQLiteStore) queryMatches(query string, args ...any) ([]*types.Match, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	matches := []*types.Match{}
	for rows.Next() {
		var m types.Match
		var offset int64
		var start sql.NullInt64
		var before, after []byte

		if err := rows.Scan(&m.Source, &offset, &m.Length, &start, &before, &after); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		m.Offset = uint64(offset)
		if start.Valid {
			m.Context = &types.Snippet{
				Start:  uint64(start.Int64),
				Before: before,
				After:  after,
			}
		}
		matches = append(matches, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return matches, nil
}

// GetScans retrieves all scan records in insertion order.
func (s *SQLiteStore) GetScans() ([]types.SourceResult, error) {
	rows, err := s.db.Query(`
		SELECT source, kind, path, match_count, error
		FROM scans
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	scans := []types.SourceResult{}
	for rows.Next() {
		var r types.SourceResult
		var prov types.RecordedProvenance
		var errText sql.NullString

		if err := rows.Scan(&r.Source, &prov.SourceKind, &prov.SourcePath, &r.Count, &errText); err != nil {
			return nil, fmt.Errorf("scanning scan record: %w", err)
		}
		r.Provenance = prov
		if errText.Valid {
			r.Err = errors.New(errText.String)
		}
		scans = append(scans, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scans: %w", err)
	}
	return scans, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
