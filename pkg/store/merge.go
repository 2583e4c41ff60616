package store

import (
	"database/sql"
	"fmt"
	"os"
)

// MergeConfig configures the merge operation.
type MergeConfig struct {
	// SourcePaths are the database files to merge from.
	SourcePaths []string
	// DestPath is the destination database file.
	DestPath string
}

// MergeStats tracks merge operation statistics.
type MergeStats struct {
	ScansMerged      int
	MatchesMerged    int
	SourcesProcessed int
}

// Merge combines multiple datastores into one. Records already present in
// the destination (same source, or same source and offset) are kept.
func Merge(cfg MergeConfig) (*MergeStats, error) {
	if len(cfg.SourcePaths) == 0 {
		return nil, fmt.Errorf("no source databases specified")
	}
	if cfg.DestPath == "" {
		return nil, fmt.Errorf("destination path is required")
	}

	destDB, err := sql.Open(driverName, cfg.DestPath)
	if err != nil {
		return nil, fmt.Errorf("opening destination database: %w", err)
	}
	defer destDB.Close()
	destDB.SetMaxOpenConns(1)

	if err := CreateSchema(destDB); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	stats := &MergeStats{}
	for _, sourcePath := range cfg.SourcePaths {
		if _, err := os.Stat(sourcePath); err != nil {
			return stats, fmt.Errorf("merging from %s: %w", sourcePath, err)
		}
		sourceStats, err := mergeFrom(destDB, sourcePath)
		if err != nil {
			return stats, fmt.Errorf("merging from %s: %w", sourcePath, err)
		}
		stats.ScansMerged += sourceStats.ScansMerged
		stats.MatchesMerged += sourceStats.MatchesMerged
		stats.SourcesProcessed++
	}

	return stats, nil
}

// mergeFrom copies data from a source database to the destination.
func mergeFrom(destDB *sql.DB, sourcePath string) (*MergeStats, error) {
	sourceDB, err := sql.Open(driverName, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("opening source database: %w", err)
	}
	defer sourceDB.Close()

	var version int
	if err := sourceDB.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	if version != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d (want %d)", version, SchemaVersion)
	}

	stats := &MergeStats{}

	tx, err := destDB.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	scanCount, err := mergeScans(tx, sourceDB)
	if err != nil {
		return nil, fmt.Errorf("merging scans: %w", err)
	}
	stats.ScansMerged = scanCount

	matchCount, err := mergeMatches(tx, sourceDB)
	if err != nil {
		return nil, fmt.Errorf("merging matches: %w", err)
	}
	stats.MatchesMerged = matchCount

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return stats, nil
}

func mergeScans(tx *sql.Tx, sourceDB *sql.DB) (int, error) {
	rows, err := sourceDB.Query("SELECT source, kind, path, match_count, error FROM scans ORDER BY id")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO scans (source, kind, path, match_count, error)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	count := 0
	for rows.Next() {
		var source, kind, path string
		var matchCount int
		var errText *string
		if err := rows.Scan(&source, &kind, &path, &matchCount, &errText); err != nil {
			return count, err
		}
		result, err := stmt.Exec(source, kind, path, matchCount, errText)
		if err != nil {
			return count, err
		}
		affected, _ := result.RowsAffected()
		if affected > 0 {
			count++
		}
	}
	return count, rows.Err()
}

func mergeMatches(tx *sql.Tx, sourceDB *sql.DB) (int, error) {
	rows, err := sourceDB.Query(`
		SELECT source, byte_offset, length, context_start, context_before, context_after
		FROM matches
		ORDER BY id
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO matches
		(source, byte_offset, length, context_start, context_before, context_after)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	count := 0
	for rows.Next() {
		var source string
		var offset int64
		var length int
		var start *int64
		var before, after []byte

		if err := rows.Scan(&source, &offset, &length, &start, &before, &after); err != nil {
			return count, err
		}
		result, err := stmt.Exec(source, offset, length, start, before, after)
		if err != nil {
			return count, err
		}
		affected, _ := result.RowsAffected()
		if affected > 0 {
			count++
		}
	}
	return count, rows.Err()
}
